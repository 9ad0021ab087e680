// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/okian/heatscore/internal/adapters/repository"
	service "github.com/okian/heatscore/internal/app"
	"github.com/okian/heatscore/internal/domain/model"
	"github.com/okian/heatscore/internal/domain/types"
	"github.com/okian/heatscore/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	Submit(ctx context.Context, sub model.ScoreSubmission, session *model.PanelSession) (service.SubmitResult, error)
	RequiresSession() bool

	BestScores(ctx context.Context, scope repository.Scope) ([]types.BestScore, error)
	JudgeBest(ctx context.Context, scope repository.Scope) ([]types.JudgeBest, error)
	Standings(ctx context.Context, scope repository.Scope) (types.Standings, error)
	RunBoard(ctx context.Context, roundHeatID int64) ([]types.AthleteRuns, error)

	OpenSession(ctx context.Context, req types.SessionRequest) (types.SessionResponse, error)
	ParseSession(token string) (model.PanelSession, error)

	Ready(ctx context.Context) error
	GetStats() map[string]interface{}
}

// Server wires HTTP routes for the scoring API.
type Server struct {
	deps           Dependencies
	requestTimeout time.Duration
	sessionLimiter *IPRateLimiter
	logger         logger.Logger

	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	scoresHandler    *ScoresHandler
	standingsHandler *StandingsHandler
	sessionHandler   *SessionHandler
}

// Option configures a Server.
type Option func(*Server)

// WithRequestTimeout bounds every request's context.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithSessionRateLimit throttles POST /api/panel/session per client IP.
func WithSessionRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond > 0 && burst > 0 {
			s.sessionLimiter = NewIPRateLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:           deps,
		requestTimeout: 5 * time.Second,
		sessionLimiter: NewIPRateLimiter(rate.Limit(1), 10),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.GetOrNop().Named("api")
	}

	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(deps)
	s.scoresHandler = NewScoresHandler(deps, s.logger)
	s.standingsHandler = NewStandingsHandler(deps, s.logger)
	s.sessionHandler = NewSessionHandler(deps, s.logger)
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	if r == nil {
		panic("router is nil")
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/readyz", s.healthHandler.HandleReady)
	r.Get("/stats", s.statsHandler.HandleStats)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout))

		r.Post("/scores", s.scoresHandler.HandleSubmit)
		r.Get("/scores/best", s.scoresHandler.HandleBest)
		r.Get("/standings", s.standingsHandler.HandleStandings)
		r.Get("/heats/{roundHeatID}/runs", s.standingsHandler.HandleRunBoard)

		r.With(RateLimitMiddleware(s.sessionLimiter)).Post("/panel/session", s.sessionHandler.HandleOpenSession)
	})
}

// Routes builds a router with every route registered.
func (s *Server) Routes(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	s.Register(ctx, r)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg})
}

// queryID parses an optional positive integer query parameter. Missing
// parameters parse as zero.
func queryID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &paramError{name: name}
	}
	return id, nil
}

// scopeFromQuery reads the view filters shared by the read endpoints.
func scopeFromQuery(r *http.Request) (repository.Scope, error) {
	var (
		scope repository.Scope
		err   error
	)
	for _, p := range []struct {
		name string
		dst  *int64
	}{
		{"round_heat_id", &scope.RoundHeatID},
		{"round_id", &scope.RoundID},
		{"event_id", &scope.EventID},
		{"division_id", &scope.DivisionID},
		{"personnel_id", &scope.PersonnelID},
	} {
		if *p.dst, err = queryID(r, p.name); err != nil {
			return repository.Scope{}, err
		}
	}
	return scope, scope.Validate()
}
