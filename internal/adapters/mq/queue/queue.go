// Package queue is the judge station's durable submission queue.
//
// Scores are appended in entry order and leave the queue only after the
// server confirms them, or after a permanent rejection moves them to the
// rejected list. Every mutation is persisted before it returns.
package queue

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/heatscore/internal/domain/model"
	"github.com/okian/heatscore/pkg/logger"
	"github.com/okian/heatscore/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultMaxPending   = 10_000
	defaultHistoryLimit = 200
)

// Entry is one queued submission with its delivery bookkeeping.
type Entry struct {
	Submission model.ScoreSubmission `json:"submission"`
	EnqueuedAt time.Time             `json:"enqueued_at"`
	Attempts   int                   `json:"attempts"`
	LastError  string                `json:"last_error,omitempty"`
	ResolvedAt time.Time             `json:"resolved_at,omitempty"`
}

// ID returns the submission id.
func (e Entry) ID() string { return e.Submission.SubmissionID }

// State is the persisted queue document.
type State struct {
	Pending   []Entry `json:"pending"`
	Rejected  []Entry `json:"rejected"`
	Confirmed []Entry `json:"confirmed"`
}

func (s State) clone() State {
	return State{
		Pending:   slices.Clone(s.Pending),
		Rejected:  slices.Clone(s.Rejected),
		Confirmed: slices.Clone(s.Confirmed),
	}
}

// Storage persists the queue document.
type Storage interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
}

// Status is what the judge sees: how many scores are still unconfirmed.
type Status struct {
	Pending      int
	Rejected     int
	Confirmed    int
	OldestQueued time.Time
}

// Queue is a persistent FIFO of score submissions.
type Queue struct {
	mu      sync.Mutex
	storage Storage
	state   State

	maxPending   int
	historyLimit int
	scoreRange   model.ScoreRange
	now          func() time.Time
	newID        func() string

	logger logger.Logger
}

// Open loads the persisted queue from storage.
func Open(ctx context.Context, storage Storage, opts ...Option) (*Queue, error) {
	if storage == nil {
		return nil, ErrNoStorage
	}
	q := &Queue{
		storage:      storage,
		maxPending:   defaultMaxPending,
		historyLimit: defaultHistoryLimit,
		scoreRange:   model.DefaultScoreRange,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = logger.GetOrNop().Named("queue")
	}

	st, err := storage.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	q.state = st
	q.observe()
	if n := len(st.Pending); n > 0 {
		q.logger.Info(ctx, "restored unconfirmed scores", logger.Int("pending", n), logger.Int("rejected", len(st.Rejected)))
	}
	return q, nil
}

// commit persists next and makes it current. On failure the previous state
// is kept so memory never runs ahead of disk.
func (q *Queue) commit(ctx context.Context, op string, next State) error {
	if err := q.storage.Save(ctx, next); err != nil {
		metrics.RecordErrorByComponent("queue", op)
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	q.state = next
	metrics.RecordQueueOperation(op)
	q.observe()
	return nil
}

func (q *Queue) observe() {
	metrics.UpdateQueueDepth(len(q.state.Pending), len(q.state.Rejected))
}

// Enqueue validates sub, stamps it with an id and enqueue time, and
// persists it at the back of the queue. A submission that already carries
// an id keeps it.
func (q *Queue) Enqueue(ctx context.Context, sub model.ScoreSubmission) (Entry, error) {
	if err := sub.Validate(q.scoreRange); err != nil {
		return Entry{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	// Rejected entries stay until discarded, so they count against the cap.
	if len(q.state.Pending)+len(q.state.Rejected) >= q.maxPending {
		return Entry{}, ErrStorageFull
	}
	if sub.SubmissionID == "" {
		sub.SubmissionID = q.newID()
	}
	e := Entry{Submission: sub, EnqueuedAt: q.now().UTC()}

	next := q.state.clone()
	next.Pending = append(next.Pending, e)
	if err := q.commit(ctx, "enqueue", next); err != nil {
		return Entry{}, err
	}
	q.logger.Debug(ctx, "score queued",
		logger.String("submission_id", sub.SubmissionID),
		logger.Int64("round_heat_id", sub.RoundHeatID),
		logger.Int("run_num", sub.RunNum),
		logger.Int64("athlete_id", sub.AthleteID),
	)
	return e, nil
}

// Peek returns the front entry without removing it.
func (q *Queue) Peek(_ context.Context) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.state.Pending) == 0 {
		return Entry{}, false
	}
	return q.state.Pending[0], true
}

// front returns a copy of the state and checks id is at its front.
func (q *Queue) front(id string) (State, Entry, error) {
	if len(q.state.Pending) == 0 {
		return State{}, Entry{}, ErrEmpty
	}
	if q.state.Pending[0].ID() != id {
		return State{}, Entry{}, fmt.Errorf("%w: %s", ErrNotFront, id)
	}
	next := q.state.clone()
	e := next.Pending[0]
	next.Pending = next.Pending[1:]
	return next, e, nil
}

// MarkAttempt records a failed delivery of the front entry. The entry stays
// where it is.
func (q *Queue) MarkAttempt(ctx context.Context, id string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.state.Pending) == 0 || q.state.Pending[0].ID() != id {
		return fmt.Errorf("%w: %s", ErrNotFront, id)
	}
	next := q.state.clone()
	next.Pending[0].Attempts++
	if cause != nil {
		next.Pending[0].LastError = cause.Error()
	}
	return q.commit(ctx, "attempt", next)
}

// Confirm removes the front entry once the server has accepted it. Only the
// front may be confirmed.
func (q *Queue) Confirm(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	next, e, err := q.front(id)
	if err != nil {
		return err
	}
	e.Attempts++
	e.LastError = ""
	e.ResolvedAt = q.now().UTC()
	next.Confirmed = append(next.Confirmed, e)
	if over := len(next.Confirmed) - q.historyLimit; over > 0 {
		next.Confirmed = slices.Clone(next.Confirmed[over:])
	}
	return q.commit(ctx, "confirm", next)
}

// Reject moves the front entry to the rejected list so that later scores
// are not blocked behind one the server can never accept.
func (q *Queue) Reject(ctx context.Context, id, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	next, e, err := q.front(id)
	if err != nil {
		return err
	}
	e.Attempts++
	e.LastError = reason
	e.ResolvedAt = q.now().UTC()
	next.Rejected = append(next.Rejected, e)
	if err := q.commit(ctx, "reject", next); err != nil {
		return err
	}
	q.logger.Warn(ctx, "score rejected by server",
		logger.String("submission_id", id),
		logger.String("reason", reason),
		logger.Int64("round_heat_id", e.Submission.RoundHeatID),
		logger.Int("run_num", e.Submission.RunNum),
		logger.Int64("athlete_id", e.Submission.AthleteID),
	)
	return nil
}

// Discard drops a rejected entry after the judge has acknowledged it.
func (q *Queue) Discard(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := slices.IndexFunc(q.state.Rejected, func(e Entry) bool { return e.ID() == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := q.state.clone()
	next.Rejected = slices.Delete(next.Rejected, i, i+1)
	return q.commit(ctx, "discard", next)
}

// Len returns the number of unconfirmed entries.
func (q *Queue) Len(_ context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.state.Pending)
}

// Pending returns a copy of the unconfirmed entries in delivery order.
func (q *Queue) Pending(_ context.Context) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.state.Pending)
}

// Rejected returns a copy of the rejected entries.
func (q *Queue) Rejected(_ context.Context) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.state.Rejected)
}

// Confirmed returns the recent confirmation history, oldest first.
func (q *Queue) Confirmed(_ context.Context) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.state.Confirmed)
}

// Status summarizes the queue for the retry-pending indicator.
func (q *Queue) Status(_ context.Context) Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := Status{
		Pending:   len(q.state.Pending),
		Rejected:  len(q.state.Rejected),
		Confirmed: len(q.state.Confirmed),
	}
	if st.Pending > 0 {
		st.OldestQueued = q.state.Pending[0].EnqueuedAt
	}
	return st
}
