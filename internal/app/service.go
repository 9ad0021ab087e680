// Package service wires score resolution, the score upsert and the
// aggregation views behind the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/heatscore/internal/adapters/repository"
	"github.com/okian/heatscore/internal/domain/dedupe"
	"github.com/okian/heatscore/internal/domain/gate"
	"github.com/okian/heatscore/internal/domain/model"
	"github.com/okian/heatscore/internal/domain/scoring"
	"github.com/okian/heatscore/internal/domain/types"
	"github.com/okian/heatscore/pkg/logger"
	"github.com/okian/heatscore/pkg/metrics"
)

// Service implements the API dependencies for the scoring server.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	calc    *scoring.Calculator
	deduper dedupe.Deduper
	issuer  *gate.Issuer

	// Configuration
	dedupeSize     int
	scoreRange     model.ScoreRange
	requireSession bool

	// State
	started   bool
	startedAt time.Time
	applied   atomic.Int64
	replayed  atomic.Int64
	rejected  atomic.Int64

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithCalculator sets the scoring rule calculator.
func WithCalculator(c *scoring.Calculator) Option {
	return func(s *Service) {
		if c != nil {
			s.calc = c
		}
	}
}

// WithDedupeSize sets how many submission ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithScoreRange sets the accepted judge score range.
func WithScoreRange(r model.ScoreRange) Option {
	return func(s *Service) {
		if r.Min < r.Max {
			s.scoreRange = r
		}
	}
}

// WithIssuer enables panel sessions.
func WithIssuer(i *gate.Issuer) Option {
	return func(s *Service) {
		s.issuer = i
	}
}

// WithRequirePanelSession makes Submit demand a session covering the submission.
func WithRequirePanelSession(required bool) Option {
	return func(s *Service) {
		s.requireSession = required
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service over store.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		calc:       scoring.New(),
		dedupeSize: 100_000,
		scoreRange: model.DefaultScoreRange,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the replay cache. Calling it twice is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.store == nil {
		return ErrNoStore
	}
	if s.requireSession && s.issuer == nil {
		return ErrSessionsDisabled
	}
	if s.logger == nil {
		s.logger = logger.GetOrNop().Named("service")
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "scoring service started",
		logger.String("scoring_rule", string(s.calc.Rule())),
		logger.Int("dedupe_size", s.dedupeSize),
		logger.Bool("require_panel_session", s.requireSession),
	)
	return nil
}

// Stop marks the service stopped. The store is owned by the caller.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.logger.Info(context.Background(), "scoring service stopped",
		logger.Int64("applied", s.applied.Load()),
		logger.Int64("replayed", s.replayed.Load()),
		logger.Int64("rejected", s.rejected.Load()),
	)
}

func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// RequiresSession reports whether Submit needs a panel session.
func (s *Service) RequiresSession() bool { return s.requireSession }

// SubmitResult tells the caller whether the submission was a replay.
type SubmitResult struct {
	Duplicate bool
}

// Submit validates, resolves and stores one judge score. session may be nil
// when panel sessions are not required.
func (s *Service) Submit(ctx context.Context, sub model.ScoreSubmission, session *model.PanelSession) (SubmitResult, error) {
	if err := s.running(); err != nil {
		return SubmitResult{}, err
	}
	start := time.Now()
	log := s.logger.With(
		logger.Int64("round_heat_id", sub.RoundHeatID),
		logger.Int("run_num", sub.RunNum),
		logger.Int64("personnel_id", sub.PersonnelID),
		logger.Int64("athlete_id", sub.AthleteID),
	)

	if err := sub.Validate(s.scoreRange); err != nil {
		s.reject(metrics.OutcomeInvalid)
		return SubmitResult{}, err
	}
	if s.requireSession {
		switch {
		case session == nil:
			metrics.RecordSubmission(metrics.OutcomeUnauthorized)
			return SubmitResult{}, model.ErrUnauthorized
		case !session.Covers(sub):
			metrics.RecordSubmission(metrics.OutcomeUnauthorized)
			log.Warn(ctx, "panel session does not cover submission",
				logger.Int64("session_personnel_id", session.PersonnelID),
				logger.Int64("session_round_heat_id", session.RoundHeatID),
			)
			return SubmitResult{}, model.ErrForbidden
		}
	}

	if sub.SubmissionID != "" && s.deduper.Seen(ctx, sub.SubmissionID, sub.Fingerprint()) {
		s.replayed.Add(1)
		metrics.RecordSubmission(metrics.OutcomeDuplicate)
		log.Debug(ctx, "replayed submission acknowledged", logger.String("submission_id", sub.SubmissionID))
		return SubmitResult{Duplicate: true}, nil
	}

	runResultID, err := s.store.ResolveRunResult(ctx, sub.Key())
	switch {
	case errors.Is(err, model.ErrRunResultNotFound):
		s.reject(metrics.OutcomeNotFound)
		log.Warn(ctx, "run result not found")
		return SubmitResult{}, err
	case errors.Is(err, model.ErrAmbiguousRunResult):
		s.reject(metrics.OutcomeAmbiguous)
		return SubmitResult{}, err
	case err != nil:
		metrics.RecordSubmission(metrics.OutcomeError)
		log.Error(ctx, "resolve run result failed", logger.Error(err))
		return SubmitResult{}, fmt.Errorf("resolve: %w", err)
	}

	if err := s.store.UpsertScore(ctx, model.JudgeScore{
		PersonnelID: sub.PersonnelID,
		RunResultID: runResultID,
		Score:       sub.Score,
	}); err != nil {
		metrics.RecordSubmission(metrics.OutcomeError)
		log.Error(ctx, "upsert judge score failed", logger.Int64("run_result_id", runResultID), logger.Error(err))
		return SubmitResult{}, fmt.Errorf("upsert: %w", err)
	}

	if sub.SubmissionID != "" {
		s.deduper.SeenAndRecord(ctx, sub.SubmissionID, sub.Fingerprint())
		metrics.UpdateDedupeSize(s.deduper.Size())
	}
	s.applied.Add(1)
	metrics.RecordSubmission(metrics.OutcomeApplied)
	metrics.RecordSubmissionLatency(float64(time.Since(start).Microseconds()) / 1000)
	log.Debug(ctx, "judge score applied", logger.Int64("run_result_id", runResultID), logger.Float64("score", sub.Score))
	return SubmitResult{}, nil
}

func (s *Service) reject(outcome string) {
	s.rejected.Add(1)
	metrics.RecordSubmission(outcome)
}

// BestScores returns each athlete's best run score in scope.
func (s *Service) BestScores(ctx context.Context, scope repository.Scope) ([]types.BestScore, error) {
	defer observeView("best_scores", time.Now())
	scope.PersonnelID = 0
	rows, err := s.store.ScoreRows(ctx, scope)
	if err != nil {
		return nil, err
	}
	best := s.calc.BestScores(rows)
	out := make([]types.BestScore, len(best))
	for i, b := range best {
		out[i] = types.BestScore{BibNum: b.Bib, AthleteID: b.AthleteID, Best: b.Best}
	}
	return out, nil
}

// JudgeBest returns one judge's best score per bib in scope.
func (s *Service) JudgeBest(ctx context.Context, scope repository.Scope) ([]types.JudgeBest, error) {
	defer observeView("judge_best", time.Now())
	if scope.PersonnelID <= 0 {
		return nil, fmt.Errorf("%w: personnel_id is required", model.ErrInvalidSubmission)
	}
	rows, err := s.store.ScoreRows(ctx, scope)
	if err != nil {
		return nil, err
	}
	best := s.calc.JudgeBest(rows, scope.PersonnelID)
	out := make([]types.JudgeBest, len(best))
	for i, b := range best {
		out[i] = types.JudgeBest{BibNum: b.Bib, BestRunScore: b.BestRunScore}
	}
	return out, nil
}

// Standings ranks the athletes in scope.
func (s *Service) Standings(ctx context.Context, scope repository.Scope) (types.Standings, error) {
	defer observeView("standings", time.Now())
	scope.PersonnelID = 0
	roster, err := s.store.Roster(ctx, scope)
	if err != nil {
		return types.Standings{}, err
	}
	rows, err := s.store.ScoreRows(ctx, scope)
	if err != nil {
		return types.Standings{}, err
	}
	st := s.calc.Standings(roster, rows)
	return types.Standings{Ranked: toStandings(st.Ranked), Unranked: toStandings(st.Unranked)}, nil
}

func toStandings(in []model.Standing) []types.Standing {
	out := make([]types.Standing, len(in))
	for i, st := range in {
		out[i] = types.Standing{Rank: st.Rank, BibNum: st.Bib, AthleteID: st.AthleteID, Name: st.Name}
		if st.Scored {
			out[i].Best = ptr(st.Best)
		}
	}
	return out
}

// RunBoard returns every judge's marks per run for one heat.
func (s *Service) RunBoard(ctx context.Context, roundHeatID int64) ([]types.AthleteRuns, error) {
	defer observeView("run_board", time.Now())
	scope := repository.Scope{RoundHeatID: roundHeatID}
	roster, err := s.store.Roster(ctx, scope)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ScoreRows(ctx, scope)
	if err != nil {
		return nil, err
	}
	board := s.calc.RunBoard(roster, rows)
	out := make([]types.AthleteRuns, len(board))
	for i, a := range board {
		line := types.AthleteRuns{BibNum: a.Bib, AthleteID: a.AthleteID, Name: a.Name, Runs: make([]types.Run, len(a.Runs))}
		if a.Scored {
			line.Best = ptr(a.Best)
		}
		for j, r := range a.Runs {
			run := types.Run{RunNum: r.RunNum, Marks: make([]types.JudgeMark, len(r.Marks))}
			for k, m := range r.Marks {
				run.Marks[k] = types.JudgeMark{PersonnelID: m.PersonnelID, Score: m.Score}
			}
			if r.Scored {
				run.Score = ptr(r.Score)
			}
			line.Runs[j] = run
		}
		out[i] = line
	}
	return out, nil
}

func ptr(v float64) *float64 { return &v }

func observeView(view string, start time.Time) {
	metrics.RecordViewQuery(view, float64(time.Since(start).Microseconds())/1000)
}

// Ready reports whether the store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	if err := s.running(); err != nil {
		return err
	}
	return s.store.Ping(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":             s.started,
		"scoringRule":         string(s.calc.Rule()),
		"requirePanelSession": s.requireSession,
		"dedupeSize":          s.dedupeSize,
		"submissionsApplied":  s.applied.Load(),
		"submissionsReplayed": s.replayed.Load(),
		"submissionsRejected": s.rejected.Load(),
	}
	if s.started {
		stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
		stats["dedupeEntries"] = s.deduper.Size()
	}
	return stats
}
