package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/heatscore/internal/adapters/mq/queue"
	worker "github.com/okian/heatscore/internal/adapters/mq/worker"
	"github.com/okian/heatscore/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

// mockSubmitter records delivered submissions and fails the ones it is told to.
type mockSubmitter struct {
	mu        sync.Mutex
	delivered []model.ScoreSubmission
	failures  map[int64]error // by athlete id
	block     chan struct{}
}

func newMockSubmitter() *mockSubmitter {
	return &mockSubmitter{failures: make(map[int64]error)}
}

func (m *mockSubmitter) Submit(ctx context.Context, sub model.ScoreSubmission) (bool, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failures[sub.AthleteID]; ok {
		return false, err
	}
	m.delivered = append(m.delivered, sub)
	return false, nil
}

func (m *mockSubmitter) setFailure(athleteID int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, athleteID)
		return
	}
	m.failures[athleteID] = err
}

func (m *mockSubmitter) athletes() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.delivered))
	for i, s := range m.delivered {
		out[i] = s.AthleteID
	}
	return out
}

func newQueue(n int) *queue.Queue {
	ctx := context.Background()
	q, err := queue.Open(ctx, queue.NewMemoryStorage())
	convey.So(err, convey.ShouldBeNil)
	for a := 1; a <= n; a++ {
		_, err := q.Enqueue(ctx, model.ScoreSubmission{
			RoundHeatID: 11, RunNum: 1, PersonnelID: 100, AthleteID: int64(a), Bib: a, Score: float64(60 + a),
		})
		convey.So(err, convey.ShouldBeNil)
	}
	return q
}

func pendingAthletes(q *queue.Queue) []int64 {
	var out []int64
	for _, e := range q.Pending(context.Background()) {
		out = append(out, e.Submission.AthleteID)
	}
	return out
}

func TestDrainer_Drain(t *testing.T) {
	convey.Convey("Given a drainer over three queued scores", t, func() {
		ctx := context.Background()
		q := newQueue(3)
		sub := newMockSubmitter()
		var reports []worker.Report
		d := worker.New(q, sub, worker.WithObserver(func(r worker.Report) { reports = append(reports, r) }))

		convey.Convey("When every submission succeeds", func() {
			rep, err := d.Drain(ctx)

			convey.Convey("Then all are delivered in order and the queue is empty", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(sub.athletes(), convey.ShouldResemble, []int64{1, 2, 3})
				convey.So(rep.Flushed, convey.ShouldEqual, 3)
				convey.So(rep.Remaining, convey.ShouldEqual, 0)
				convey.So(d.State(), convey.ShouldEqual, worker.StateIdle)
				convey.So(reports, convey.ShouldHaveLength, 1)
			})
		})

		convey.Convey("When the second submission fails transiently", func() {
			sub.setFailure(2, errors.New("dial tcp: connection refused"))
			rep, err := d.Drain(ctx)

			convey.Convey("Then the cycle pauses with the failed entry still at the front", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(rep.Flushed, convey.ShouldEqual, 1)
				convey.So(rep.Remaining, convey.ShouldEqual, 2)
				convey.So(d.State(), convey.ShouldEqual, worker.StatePaused)
				convey.So(pendingAthletes(q), convey.ShouldResemble, []int64{2, 3})
				front, _ := q.Peek(ctx)
				convey.So(front.Attempts, convey.ShouldEqual, 1)
			})

			convey.Convey("And a later successful cycle applies the rest in order", func() {
				sub.setFailure(2, nil)
				rep, err := d.Drain(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(rep.Flushed, convey.ShouldEqual, 2)
				convey.So(sub.athletes(), convey.ShouldResemble, []int64{1, 2, 3})
				convey.So(d.State(), convey.ShouldEqual, worker.StateIdle)
			})
		})

		convey.Convey("When a submission has no run record", func() {
			sub.setFailure(1, fmt.Errorf("%w: Run result not found", model.ErrRunResultNotFound))
			rep, err := d.Drain(ctx)

			convey.Convey("Then it is rejected and the later scores still go through", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rep.Rejected, convey.ShouldEqual, 1)
				convey.So(rep.Flushed, convey.ShouldEqual, 2)
				convey.So(sub.athletes(), convey.ShouldResemble, []int64{2, 3})
				rejected := q.Rejected(ctx)
				convey.So(rejected, convey.ShouldHaveLength, 1)
				convey.So(rejected[0].LastError, convey.ShouldContainSubstring, "Run result not found")
			})
		})

		convey.Convey("When a session problem occurs", func() {
			sub.setFailure(1, model.ErrUnauthorized)
			_, err := d.Drain(ctx)

			convey.Convey("Then it is treated as transient", func() {
				convey.So(errors.Is(err, model.ErrUnauthorized), convey.ShouldBeTrue)
				convey.So(q.Len(ctx), convey.ShouldEqual, 3)
				convey.So(q.Rejected(ctx), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When offline", func() {
			d.SetOnline(false)
			rep, err := d.Drain(ctx)

			convey.Convey("Then no cycle starts", func() {
				convey.So(errors.Is(err, worker.ErrOffline), convey.ShouldBeTrue)
				convey.So(rep.Remaining, convey.ShouldEqual, 3)
				convey.So(sub.athletes(), convey.ShouldBeEmpty)
			})
		})
	})
}

func TestDrainer_Timeout(t *testing.T) {
	convey.Convey("Given a server that never answers", t, func() {
		ctx := context.Background()
		q := newQueue(1)
		sub := newMockSubmitter()
		sub.block = make(chan struct{})
		d := worker.New(q, sub, worker.WithSubmitTimeout(20*time.Millisecond))

		convey.Convey("When draining", func() {
			_, err := d.Drain(ctx)

			convey.Convey("Then the per-submission timeout pauses the cycle", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
				convey.So(d.State(), convey.ShouldEqual, worker.StatePaused)
				convey.So(q.Len(ctx), convey.ShouldEqual, 1)
			})
		})
	})
}

func TestDrainer_SingleCycle(t *testing.T) {
	convey.Convey("Given a cycle blocked on the server", t, func() {
		ctx := context.Background()
		q := newQueue(2)
		sub := newMockSubmitter()
		sub.block = make(chan struct{})
		d := worker.New(q, sub)

		done := make(chan error, 1)
		go func() {
			_, err := d.Drain(ctx)
			done <- err
		}()
		convey.So(waitFor(func() bool { return d.State() == worker.StateDraining }), convey.ShouldBeTrue)

		convey.Convey("When a second cycle is requested", func() {
			_, err := d.Drain(ctx)

			convey.Convey("Then it is refused", func() {
				convey.So(errors.Is(err, worker.ErrDrainInProgress), convey.ShouldBeTrue)
				close(sub.block)
				convey.So(<-done, convey.ShouldBeNil)
				convey.So(sub.athletes(), convey.ShouldResemble, []int64{1, 2})
			})
		})
	})
}

func TestDrainer_OfflineRoundTrip(t *testing.T) {
	convey.Convey("Given a station that goes offline", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := newQueue(0)
		sub := newMockSubmitter()
		d := worker.New(q, sub)
		d.SetOnline(false)
		go d.Run(ctx)

		convey.Convey("When five scores are entered and connectivity returns", func() {
			for a := 1; a <= 5; a++ {
				_, err := q.Enqueue(ctx, model.ScoreSubmission{
					RoundHeatID: 11, RunNum: 2, PersonnelID: 100, AthleteID: int64(a), Bib: a, Score: 70,
				})
				convey.So(err, convey.ShouldBeNil)
				d.Trigger(worker.ReasonEnqueued)
			}
			convey.So(q.Len(ctx), convey.ShouldEqual, 5)
			d.SetOnline(true)

			convey.Convey("Then all five drain in entry order and the queue ends empty", func() {
				convey.So(waitFor(func() bool { return q.Len(ctx) == 0 }), convey.ShouldBeTrue)
				convey.So(sub.athletes(), convey.ShouldResemble, []int64{1, 2, 3, 4, 5})
			})
		})
	})
}

func TestState_String(t *testing.T) {
	convey.Convey("Given drainer states", t, func() {
		convey.So(worker.StateIdle.String(), convey.ShouldEqual, "idle")
		convey.So(worker.StateDraining.String(), convey.ShouldEqual, "draining")
		convey.So(worker.StatePaused.String(), convey.ShouldEqual, "paused")
	})
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
