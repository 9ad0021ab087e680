package station

import (
	"context"
	"sync"
	"time"

	"github.com/okian/heatscore/pkg/logger"
)

// Prober checks whether the scoring server answers.
type Prober interface {
	Healthy(ctx context.Context) error
}

// Monitor turns health probes into online/offline transitions.
type Monitor struct {
	prober  Prober
	notify  func(online bool)
	timeout time.Duration

	mu     sync.Mutex
	known  bool
	online bool

	logger logger.Logger
}

// NewMonitor reports every probe result to notify. Transitions are logged.
func NewMonitor(prober Prober, notify func(online bool), timeout time.Duration, log logger.Logger) *Monitor {
	if log == nil {
		log = logger.GetOrNop().Named("monitor")
	}
	return &Monitor{prober: prober, notify: notify, timeout: timeout, logger: log}
}

// Probe runs one health check and returns the resulting connectivity.
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	err := m.prober.Healthy(ctx)
	online := err == nil

	m.mu.Lock()
	changed := !m.known || m.online != online
	m.known, m.online = true, online
	m.mu.Unlock()

	if changed {
		if online {
			m.logger.Info(ctx, "scoring server reachable")
		} else {
			m.logger.Warn(ctx, "scoring server unreachable, scores stay queued", logger.Error(err))
		}
	}
	if m.notify != nil {
		m.notify(online)
	}
	return online
}

// Online returns the last probe result.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}
