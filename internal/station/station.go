// Package station runs a judge station: the durable score queue, its
// drainer, connectivity detection and the head judge's live board.
package station

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.etcd.io/bbolt"

	"github.com/okian/heatscore/internal/adapters/http/client"
	"github.com/okian/heatscore/internal/adapters/mq/queue"
	"github.com/okian/heatscore/internal/adapters/mq/worker"
	"github.com/okian/heatscore/internal/domain/model"
	"github.com/okian/heatscore/internal/domain/types"
	"github.com/okian/heatscore/pkg/logger"
)

// Config holds station settings.
type Config struct {
	ServerURL     string
	DataPath      string
	RoundHeatID   int64
	PersonnelID   int64
	ProbeEvery    time.Duration
	DrainEvery    time.Duration
	PollEvery     time.Duration
	SubmitTimeout time.Duration
	ProbeTimeout  time.Duration
	MaxPending    int
	ScoreRange    model.ScoreRange
}

// DefaultConfig returns the settings used when flags are not given.
func DefaultConfig() Config {
	return Config{
		ServerURL:     "http://localhost:9080",
		DataPath:      "station.db",
		ProbeEvery:    5 * time.Second,
		DrainEvery:    30 * time.Second,
		PollEvery:     3 * time.Second,
		SubmitTimeout: 10 * time.Second,
		ProbeTimeout:  3 * time.Second,
		MaxPending:    10_000,
		ScoreRange:    model.DefaultScoreRange,
	}
}

// Status is what the station shows the judge.
type Status struct {
	Queue          queue.Status
	Online         bool
	Drainer        worker.State
	SessionExpires time.Time
}

// Station owns every station component and the bolt file behind them.
type Station struct {
	cfg Config

	db       *bbolt.DB
	queue    *queue.Queue
	client   *client.Client
	drainer  *worker.Drainer
	monitor  *Monitor
	sessions *SessionStore
	poller   *Poller

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	logger logger.Logger
}

// Option configures a Station.
type Option func(*stationOptions)

type stationOptions struct {
	onReport func(worker.Report)
	onBoard  func(Board)
	logger   logger.Logger
}

// WithReportHandler receives every drain report, e.g. to refresh a
// "N scores not yet confirmed" indicator.
func WithReportHandler(fn func(worker.Report)) Option {
	return func(o *stationOptions) { o.onReport = fn }
}

// WithBoardHandler enables the live board poller for the head judge.
func WithBoardHandler(fn func(Board)) Option {
	return func(o *stationOptions) { o.onBoard = fn }
}

// WithLogger sets a custom logger for the station.
func WithLogger(l logger.Logger) Option {
	return func(o *stationOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Open opens the station's bolt file and restores its queue and session.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Station, error) {
	o := stationOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.GetOrNop().Named("station")
	}

	db, err := queue.OpenBolt(cfg.DataPath)
	if err != nil {
		return nil, err
	}
	q, err := queue.Open(ctx, queue.NewBoltStorage(db),
		queue.WithMaxPending(cfg.MaxPending),
		queue.WithScoreRange(cfg.ScoreRange),
		queue.WithLogger(o.logger.Named("queue")),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Station{
		cfg:      cfg,
		db:       db,
		queue:    q,
		client:   client.New(cfg.ServerURL, client.WithTimeout(cfg.SubmitTimeout), client.WithLogger(o.logger.Named("client"))),
		sessions: NewSessionStore(db),
		logger:   o.logger,
	}
	s.drainer = worker.New(q, s.client,
		worker.WithSubmitTimeout(cfg.SubmitTimeout),
		worker.WithObserver(o.onReport),
		worker.WithLogger(o.logger.Named("drainer")),
	)
	if o.onBoard != nil && cfg.RoundHeatID > 0 {
		s.poller = NewPoller(s.client, cfg.RoundHeatID, cfg.PollEvery, o.onBoard, o.logger.Named("poller"))
	}
	s.monitor = NewMonitor(s.client, s.setOnline, cfg.ProbeTimeout, o.logger.Named("monitor"))

	if sess, ok, err := s.sessions.Load(ctx); err != nil {
		s.logger.Warn(ctx, "stored panel session unreadable", logger.Error(err))
	} else if ok && sess.Valid(time.Now()) {
		s.client.SetToken(sess.Token)
	}
	return s, nil
}

func (s *Station) setOnline(online bool) {
	s.drainer.SetOnline(online)
	if s.poller == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.poller.SetOnline(context.Background(), online)
	}
}

// Start probes connectivity and runs the drainer, the scheduled probes and
// the periodic drain trigger until Stop.
func (s *Station) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	rctx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc("@every "+s.cfg.ProbeEvery.String(), func() { s.monitor.Probe(rctx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule probe: %w", err)
	}
	if _, err := c.AddFunc("@every "+s.cfg.DrainEvery.String(), func() { s.drainer.Trigger(worker.ReasonTimer) }); err != nil {
		cancel()
		return fmt.Errorf("schedule drain: %w", err)
	}

	s.cron, s.cancel, s.done, s.running = c, cancel, make(chan struct{}), true
	go func() {
		defer close(s.done)
		s.drainer.Run(rctx)
	}()
	c.Start()
	go s.monitor.Probe(rctx)
	s.drainer.Trigger(worker.ReasonTimer)

	s.logger.Info(ctx, "station started",
		logger.String("server", s.cfg.ServerURL),
		logger.Int("pending", s.queue.Len(ctx)),
	)
	return nil
}

// Stop halts background work. Queued scores stay on disk.
func (s *Station) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c, cancel, done := s.cron, s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	<-c.Stop().Done()
	cancel()
	<-done
	if s.poller != nil {
		s.mu.Lock()
		s.poller.Stop()
		s.mu.Unlock()
	}
}

// Close stops the station and closes the bolt file.
func (s *Station) Close() error {
	s.Stop()
	return s.db.Close()
}

// Enqueue queues a score and asks the drainer to deliver it.
func (s *Station) Enqueue(ctx context.Context, sub model.ScoreSubmission) (queue.Entry, error) {
	e, err := s.queue.Enqueue(ctx, sub)
	if err != nil {
		return queue.Entry{}, err
	}
	s.drainer.Trigger(worker.ReasonEnqueued)
	return e, nil
}

// Retry asks for a drain cycle now.
func (s *Station) Retry() { s.drainer.Trigger(worker.ReasonRetry) }

// Probe checks connectivity now and updates the drainer and poller.
func (s *Station) Probe(ctx context.Context) bool { return s.monitor.Probe(ctx) }

// DrainOnce probes the server and runs a single drain cycle in the caller's
// goroutine.
func (s *Station) DrainOnce(ctx context.Context) (worker.Report, error) {
	if !s.monitor.Probe(ctx) {
		return worker.Report{Remaining: s.queue.Len(ctx), State: s.drainer.State()}, worker.ErrOffline
	}
	return s.drainer.Drain(ctx)
}

// Discard drops a rejected score the judge has acknowledged.
func (s *Station) Discard(ctx context.Context, id string) error {
	return s.queue.Discard(ctx, id)
}

// Login verifies the judge's passcode with the server and stores the
// resulting session.
func (s *Station) Login(ctx context.Context, req types.SessionRequest) (Session, error) {
	resp, err := s.client.Login(ctx, req)
	if err != nil {
		return Session{}, err
	}
	sess := Session{Token: resp.Token, ExpiresAt: resp.ExpiresAt, RoundHeatID: req.RoundHeatID, PersonnelID: req.PersonnelID}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return Session{}, err
	}
	s.logger.Info(ctx, "panel session opened",
		logger.Int64("personnel_id", req.PersonnelID),
		logger.Int64("round_heat_id", req.RoundHeatID),
	)
	return sess, nil
}

// Logout forgets the stored session.
func (s *Station) Logout(ctx context.Context) error {
	s.client.SetToken("")
	return s.sessions.Clear(ctx)
}

// Status reports queue depth, connectivity and session expiry.
func (s *Station) Status(ctx context.Context) Status {
	st := Status{
		Queue:   s.queue.Status(ctx),
		Online:  s.monitor.Online(),
		Drainer: s.drainer.State(),
	}
	if sess, ok, err := s.sessions.Load(ctx); err == nil && ok {
		st.SessionExpires = sess.ExpiresAt
	}
	return st
}

// Pending returns the unconfirmed scores in delivery order.
func (s *Station) Pending(ctx context.Context) []queue.Entry { return s.queue.Pending(ctx) }

// Rejected returns scores the server refused permanently.
func (s *Station) Rejected(ctx context.Context) []queue.Entry { return s.queue.Rejected(ctx) }

// Board fetches the live board once.
func (s *Station) Board(ctx context.Context) (Board, error) {
	if s.cfg.RoundHeatID <= 0 {
		return Board{}, ErrNoHeat
	}
	p := s.poller
	if p == nil {
		p = NewPoller(s.client, s.cfg.RoundHeatID, s.cfg.PollEvery, nil, s.logger)
	}
	return p.Refresh(ctx)
}
