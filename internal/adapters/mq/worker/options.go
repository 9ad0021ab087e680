package worker

import (
	"time"

	"github.com/okian/heatscore/pkg/logger"
)

// Option applies a configuration option to the Drainer.
type Option func(*Drainer)

// WithSubmitTimeout bounds each submission; a timeout pauses the cycle.
func WithSubmitTimeout(d time.Duration) Option {
	return func(dr *Drainer) {
		if d > 0 {
			dr.submitTimeout = d
		}
	}
}

// WithObserver is called with every cycle's report.
func WithObserver(fn func(Report)) Option {
	return func(d *Drainer) {
		d.observer = fn
	}
}

// WithLogger sets a custom logger for the drainer.
func WithLogger(logger logger.Logger) Option {
	return func(d *Drainer) {
		if logger != nil {
			d.logger = logger
		}
	}
}
