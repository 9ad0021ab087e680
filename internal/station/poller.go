package station

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okian/heatscore/internal/adapters/http/client"
	"github.com/okian/heatscore/internal/domain/types"
	"github.com/okian/heatscore/pkg/logger"
)

// Board is one refresh of the head judge's live view.
type Board struct {
	Standings types.Standings
	Runs      []types.AthleteRuns
	FetchedAt time.Time
}

// BoardSource reads the live views from the server.
type BoardSource interface {
	Standings(ctx context.Context, q client.Query) (types.Standings, error)
	RunBoard(ctx context.Context, roundHeatID int64) ([]types.AthleteRuns, error)
}

// Poller refreshes the head judge board on a schedule while started. It
// is started when the station comes online and stopped when it goes
// offline, so no refresh outlives its owner.
type Poller struct {
	source      BoardSource
	roundHeatID int64
	every       time.Duration
	onUpdate    func(Board)

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
	first   sync.WaitGroup

	logger logger.Logger
}

// NewPoller polls heat roundHeatID every interval and hands each board to onUpdate.
func NewPoller(source BoardSource, roundHeatID int64, every time.Duration, onUpdate func(Board), log logger.Logger) *Poller {
	if log == nil {
		log = logger.GetOrNop().Named("poller")
	}
	if every < time.Second {
		every = time.Second
	}
	return &Poller{source: source, roundHeatID: roundHeatID, every: every, onUpdate: onUpdate, logger: log}
}

// Start begins polling with an immediate refresh. Starting a running
// poller is a no-op.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	pctx, cancel := context.WithCancel(ctx)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", p.every), func() { p.refresh(pctx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule board refresh: %w", err)
	}
	p.cron, p.cancel, p.running = c, cancel, true
	c.Start()
	p.first.Add(1)
	go func() {
		defer p.first.Done()
		p.refresh(pctx)
	}()
	p.logger.Debug(ctx, "board polling started", logger.Int64("round_heat_id", p.roundHeatID), logger.Duration("every", p.every))
	return nil
}

// Stop cancels in-flight refreshes and waits for them to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	c, cancel := p.cron, p.cancel
	p.running = false
	p.mu.Unlock()

	cancel()
	<-c.Stop().Done()
	p.first.Wait()
}

// Running reports whether the poller is started.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// SetOnline starts or stops polling with connectivity.
func (p *Poller) SetOnline(ctx context.Context, online bool) {
	if online {
		if err := p.Start(ctx); err != nil {
			p.logger.Error(ctx, "start board polling", logger.Error(err))
		}
		return
	}
	p.Stop()
}

// Refresh fetches the board once.
func (p *Poller) Refresh(ctx context.Context) (Board, error) {
	st, err := p.source.Standings(ctx, client.Query{RoundHeatID: p.roundHeatID})
	if err != nil {
		return Board{}, err
	}
	runs, err := p.source.RunBoard(ctx, p.roundHeatID)
	if err != nil {
		return Board{}, err
	}
	return Board{Standings: st, Runs: runs, FetchedAt: time.Now()}, nil
}

func (p *Poller) refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	b, err := p.Refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn(ctx, "board refresh failed", logger.Int64("round_heat_id", p.roundHeatID), logger.Error(err))
		}
		return
	}
	if p.onUpdate != nil {
		p.onUpdate(b)
	}
}
