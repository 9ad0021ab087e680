package heatsim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/heatscore/internal/adapters/http/client"
	"github.com/okian/heatscore/internal/domain/model"
	"github.com/okian/heatscore/internal/domain/types"
	"github.com/okian/heatscore/pkg/logger"
)

const settlePoll = 200 * time.Millisecond

// Target is the scoring server the panel submits to.
type Target interface {
	Healthy(ctx context.Context) error
	RunBoard(ctx context.Context, roundHeatID int64) ([]types.AthleteRuns, error)
	Submit(ctx context.Context, sub model.ScoreSubmission) (bool, error)
	Standings(ctx context.Context, q client.Query) (types.Standings, error)
}

// Run scores a whole heat against target and verifies the served
// standings. The heat should not carry scores from earlier runs of the
// panel, since those also count on the server.
func Run(ctx context.Context, target Target, cfg Config, log logger.Logger) (Stats, error) {
	if log == nil {
		log = logger.GetOrNop().Named("heatsim")
	}
	stats := Stats{StartTime: time.Now()}
	if len(cfg.Judges) == 0 {
		return stats, ErrNoJudges
	}

	log.Info(ctx, "starting heat simulation",
		logger.Int64("round_heat_id", cfg.RoundHeatID),
		logger.Int("runs", cfg.Runs),
		logger.Int("judges", len(cfg.Judges)),
		logger.Int("workers", cfg.Workers),
	)

	if err := target.Healthy(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	roster, err := fetchRoster(ctx, target, cfg.RoundHeatID)
	if err != nil {
		return stats, err
	}
	stats.Athletes = len(roster)

	panel := NewGenerator(cfg.Seed, cfg.ScoreRange).Heat(cfg.RoundHeatID, roster, cfg.Runs, cfg.Judges)
	for _, subs := range panel {
		stats.Generated += len(subs)
	}

	applied := submitPanel(ctx, target, cfg, panel, &stats, log)
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	want := Expected(cfg, roster, applied)
	stats.Ranked = len(want.Ranked)
	err = settle(ctx, target, cfg, want)
	stats.Duration = time.Since(stats.StartTime)

	log.Info(ctx, "heat simulation finished",
		logger.Int("athletes", stats.Athletes),
		logger.Int("submitted", stats.Submitted),
		logger.Int("applied", stats.Applied),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", stats.Duration),
	)
	return stats, err
}

func fetchRoster(ctx context.Context, target Target, roundHeatID int64) ([]model.HeatEntry, error) {
	board, err := target.RunBoard(ctx, roundHeatID)
	if err != nil {
		return nil, fmt.Errorf("fetch start list: %w", err)
	}
	if len(board) == 0 {
		return nil, fmt.Errorf("%w: round heat %d", ErrEmptyHeat, roundHeatID)
	}
	roster := make([]model.HeatEntry, len(board))
	for i, a := range board {
		roster[i] = model.HeatEntry{RoundHeatID: roundHeatID, AthleteID: a.AthleteID, Bib: a.BibNum, FirstName: a.Name}
	}
	return roster, nil
}

// submitPanel sends every judge's scores through a pool of workers and
// returns the submissions the server applied. Each judge's list stays in
// order on one worker, as on a real station.
func submitPanel(ctx context.Context, target Target, cfg Config, panel [][]model.ScoreSubmission, stats *Stats, log logger.Logger) []model.ScoreSubmission {
	var (
		submitted, ok, dup, rejected, failed atomic.Int64

		mu      sync.Mutex
		applied []model.ScoreSubmission
		wg      sync.WaitGroup
	)

	jobs := make(chan []model.ScoreSubmission)
	workers := max(1, min(cfg.Workers, len(panel)))
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for subs := range jobs {
				for i, sub := range subs {
					if ctx.Err() != nil {
						return
					}
					submitted.Add(1)
					_, err := target.Submit(ctx, sub)
					switch {
					case err == nil:
						ok.Add(1)
						mu.Lock()
						applied = append(applied, sub)
						mu.Unlock()
					case model.IsPermanent(err):
						rejected.Add(1)
						log.Warn(ctx, "score rejected", logger.Int("run_num", sub.RunNum), logger.Int("bib", sub.Bib), logger.Error(err))
						continue
					default:
						failed.Add(1)
						log.Warn(ctx, "score not delivered", logger.Int("run_num", sub.RunNum), logger.Int("bib", sub.Bib), logger.Error(err))
						continue
					}
					if cfg.ReplayEvery > 0 && (i+1)%cfg.ReplayEvery == 0 {
						submitted.Add(1)
						d, err := target.Submit(ctx, sub)
						if err == nil && d {
							dup.Add(1)
						} else if err != nil && !errors.Is(err, context.Canceled) {
							failed.Add(1)
						}
					}
				}
			}
		}()
	}

feed:
	for _, subs := range panel {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- subs:
		}
	}
	close(jobs)
	wg.Wait()

	stats.Submitted = int(submitted.Load())
	stats.Applied = int(ok.Load())
	stats.Duplicate = int(dup.Load())
	stats.Rejected = int(rejected.Load())
	stats.Failed = int(failed.Load())
	return applied
}

// settle polls the standings until they match want or SettleTimeout passes.
func settle(ctx context.Context, target Target, cfg Config, want model.Standings) error {
	deadline := time.Now().Add(cfg.SettleTimeout)
	for {
		got, err := target.Standings(ctx, client.Query{RoundHeatID: cfg.RoundHeatID})
		if err != nil {
			return fmt.Errorf("fetch standings: %w", err)
		}
		verr := Verify(want, got)
		if verr == nil || time.Now().After(deadline) {
			return verr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(settlePoll):
		}
	}
}
