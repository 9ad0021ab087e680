// Package worker drains the station's score queue to the scoring server.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/heatscore/internal/adapters/mq/queue"
	"github.com/okian/heatscore/internal/domain/model"
	"github.com/okian/heatscore/pkg/logger"
	"github.com/okian/heatscore/pkg/metrics"
)

// Default drainer configuration constants.
const (
	defaultSubmitTimeout = 10 * time.Second
)

// Trigger reasons.
const (
	ReasonConnectivity = "connectivity restored"
	ReasonRetry        = "user retry"
	ReasonTimer        = "periodic timer"
	ReasonEnqueued     = "score enqueued"
)

// State is the drainer's position in its cycle.
type State int32

const (
	StateIdle State = iota
	StateDraining
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StatePaused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Submitter delivers one score to the server. Errors wrapping a permanent
// model error are never retried.
type Submitter interface {
	Submit(ctx context.Context, sub model.ScoreSubmission) (duplicate bool, err error)
}

// Queue is the part of the station queue the drainer consumes.
type Queue interface {
	Peek(ctx context.Context) (queue.Entry, bool)
	Confirm(ctx context.Context, id string) error
	Reject(ctx context.Context, id, reason string) error
	MarkAttempt(ctx context.Context, id string, cause error) error
	Len(ctx context.Context) int
}

// Report summarizes one drain cycle.
type Report struct {
	Flushed   int
	Rejected  int
	Remaining int
	State     State
	Err       error
}

// Drainer submits queued scores front to back, one at a time.
type Drainer struct {
	queue     Queue
	submitter Submitter

	submitTimeout time.Duration
	observer      func(Report)

	state   atomic.Int32
	running atomic.Bool
	online  atomic.Bool
	trigger chan string

	logger logger.Logger
}

// New creates a drainer over q. It starts online.
func New(q Queue, submitter Submitter, opts ...Option) *Drainer {
	d := &Drainer{
		queue:         q,
		submitter:     submitter,
		submitTimeout: defaultSubmitTimeout,
		trigger:       make(chan string, 1),
	}
	d.online.Store(true)
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.GetOrNop().Named("drainer")
	}
	return d
}

// State returns the current state.
func (d *Drainer) State() State { return State(d.state.Load()) }

// Online reports the last connectivity the drainer was told about.
func (d *Drainer) Online() bool { return d.online.Load() }

// SetOnline records connectivity. Coming back online triggers a drain.
func (d *Drainer) SetOnline(online bool) {
	was := d.online.Swap(online)
	metrics.UpdateStationOnline(online)
	if online && !was {
		d.Trigger(ReasonConnectivity)
	}
}

// Trigger asks Run to start a cycle. Triggers arriving while one is
// already waiting are coalesced.
func (d *Drainer) Trigger(reason string) {
	select {
	case d.trigger <- reason:
	default:
	}
}

// Run serves triggers until ctx is done.
func (d *Drainer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-d.trigger:
			rep, err := d.Drain(ctx)
			switch {
			case errors.Is(err, ErrOffline), errors.Is(err, ErrDrainInProgress):
				d.logger.Debug(ctx, "drain skipped", logger.String("reason", reason), logger.Error(err))
			case err != nil:
				d.logger.Warn(ctx, "drain paused",
					logger.String("reason", reason),
					logger.Int("remaining", rep.Remaining),
					logger.Error(err),
				)
			}
		}
	}
}

// Drain runs one cycle: submit the front entry until the queue is empty or
// a transient failure pauses the cycle. Permanent failures are rejected and
// the cycle moves on. The returned error is the transient failure, if any.
func (d *Drainer) Drain(ctx context.Context) (Report, error) {
	if !d.online.Load() {
		return Report{Remaining: d.queue.Len(ctx), State: d.State()}, ErrOffline
	}
	if !d.running.CompareAndSwap(false, true) {
		return Report{}, ErrDrainInProgress
	}
	defer d.running.Store(false)

	d.state.Store(int32(StateDraining))
	rep := d.cycle(ctx)
	d.state.Store(int32(rep.State))
	rep.Remaining = d.queue.Len(ctx)

	metrics.RecordDrainCycle(rep.State.String(), rep.Flushed, rep.Rejected)
	if rep.Flushed > 0 || rep.Rejected > 0 {
		d.logger.Info(ctx, "drain cycle finished",
			logger.Int("flushed", rep.Flushed),
			logger.Int("rejected", rep.Rejected),
			logger.Int("remaining", rep.Remaining),
			logger.String("state", rep.State.String()),
		)
	}
	if d.observer != nil {
		d.observer(rep)
	}
	return rep, rep.Err
}

func (d *Drainer) cycle(ctx context.Context) Report {
	var rep Report
	for {
		if err := ctx.Err(); err != nil {
			rep.State, rep.Err = StatePaused, err
			return rep
		}
		if !d.online.Load() {
			rep.State, rep.Err = StatePaused, ErrOffline
			return rep
		}
		e, ok := d.queue.Peek(ctx)
		if !ok {
			rep.State = StateIdle
			return rep
		}

		err := d.submit(ctx, e.Submission)
		log := d.logger.With(
			logger.String("submission_id", e.ID()),
			logger.Int64("round_heat_id", e.Submission.RoundHeatID),
			logger.Int("run_num", e.Submission.RunNum),
			logger.Int64("athlete_id", e.Submission.AthleteID),
		)
		switch {
		case err == nil:
			if cerr := d.queue.Confirm(ctx, e.ID()); cerr != nil {
				// The server has the score; a later replay is acknowledged as a duplicate.
				log.Error(ctx, "confirm failed", logger.Error(cerr))
				rep.State, rep.Err = StatePaused, cerr
				return rep
			}
			rep.Flushed++
		case model.IsPermanent(err):
			if rerr := d.queue.Reject(ctx, e.ID(), err.Error()); rerr != nil {
				log.Error(ctx, "reject failed", logger.Error(rerr))
				rep.State, rep.Err = StatePaused, rerr
				return rep
			}
			rep.Rejected++
		default:
			if merr := d.queue.MarkAttempt(ctx, e.ID(), err); merr != nil {
				log.Error(ctx, "recording attempt failed", logger.Error(merr))
			}
			log.Debug(ctx, "submission failed, pausing", logger.Error(err))
			rep.State, rep.Err = StatePaused, err
			return rep
		}
	}
}

func (d *Drainer) submit(ctx context.Context, sub model.ScoreSubmission) error {
	ctx, cancel := context.WithTimeout(ctx, d.submitTimeout)
	defer cancel()
	_, err := d.submitter.Submit(ctx, sub)
	return err
}
