package queue

import (
	"time"

	"github.com/okian/heatscore/internal/domain/model"
	"github.com/okian/heatscore/pkg/logger"
)

// Option applies a configuration option to the Queue.
type Option func(*Queue)

// WithMaxPending caps pending plus rejected entries; Enqueue past it fails
// with ErrStorageFull until entries are confirmed or discarded.
func WithMaxPending(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxPending = n
		}
	}
}

// WithHistoryLimit bounds the confirmed history kept for display.
func WithHistoryLimit(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.historyLimit = n
		}
	}
}

// WithScoreRange sets the score range checked at enqueue.
func WithScoreRange(r model.ScoreRange) Option {
	return func(q *Queue) {
		if r.Min < r.Max {
			q.scoreRange = r
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(gen func() string) Option {
	return func(q *Queue) {
		if gen != nil {
			q.newID = gen
		}
	}
}

// WithLogger sets a custom logger for the queue.
func WithLogger(l logger.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}
