package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/heatscore/internal/adapters/http/api"
	"github.com/okian/heatscore/internal/adapters/http/swagger"
	"github.com/okian/heatscore/internal/adapters/repository"
	service "github.com/okian/heatscore/internal/app"
	"github.com/okian/heatscore/internal/config"
	"github.com/okian/heatscore/internal/domain/gate"
	"github.com/okian/heatscore/internal/domain/model"
	"github.com/okian/heatscore/internal/domain/scoring"
	"github.com/okian/heatscore/pkg/logger"
	"github.com/okian/heatscore/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString("heatscore: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (.env -> defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	if err := logger.InitWithFormat(cfg.LogFormat, os.Stdout); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := newService(cfg, store, log)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	go startMetricsUpdater(ctx, cfg.MetricsInterval(), store)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("db_driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// openStore connects to the database, applies the schema and inserts the
// configured seed heats.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (*repository.SQLStore, error) {
	store, err := repository.Open(ctx, cfg.DBDriver, cfg.DBDSN,
		repository.WithMaxOpenConns(cfg.DBMaxOpenConns),
		repository.WithLogger(log.Named("repository")),
	)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	if cfg.SeedFile == "" {
		return store, nil
	}
	heats, err := repository.LoadSeedFile(cfg.SeedFile)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	for _, h := range heats {
		if err := store.SeedHeat(ctx, h); err != nil {
			_ = store.Close()
			return nil, err
		}
		log.Info(ctx, "heat seeded",
			logger.Int64("round_heat_id", h.RoundHeatID),
			logger.Int("athletes", len(h.Athletes)),
			logger.Int("runs", h.Runs),
		)
	}
	return store, nil
}

// newService builds the scoring service from configuration.
func newService(cfg *config.Config, store repository.Store, log logger.Logger) (*service.Service, error) {
	rule, err := scoring.ParseRule(cfg.ScoringRule)
	if err != nil {
		return nil, err
	}
	calc := scoring.New(
		scoring.WithRule(rule),
		scoring.WithTrimMinJudges(cfg.TrimMinJudges),
		scoring.WithPrecision(cfg.ScorePrecision),
	)

	opts := []service.Option{
		service.WithLogger(log.Named("service")),
		service.WithCalculator(calc),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithScoreRange(model.ScoreRange{Min: cfg.ScoreMin, Max: cfg.ScoreMax}),
		service.WithRequirePanelSession(cfg.RequirePanelSession),
	}
	if cfg.SessionSecret != "" {
		issuer, err := gate.NewIssuer(cfg.SessionSecret, gate.WithTTL(cfg.SessionTTL))
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithIssuer(issuer))
	}
	return service.New(store, opts...), nil
}

// newRouter mounts the scoring API and its OpenAPI document.
func newRouter(ctx context.Context, cfg *config.Config, svc *service.Service) http.Handler {
	r := chi.NewRouter()
	api.NewServer(svc,
		api.WithRequestTimeout(cfg.RequestTimeout()),
		api.WithSessionRateLimit(cfg.SessionRatePerSec, cfg.SessionBurst),
		api.WithLogger(logger.Get().Named("api")),
	).Register(ctx, r)
	swagger.Register(ctx, r)
	return r
}

// dbStatser reports connection pool usage.
type dbStatser interface {
	Stats() sql.DBStats
}

// startMetricsUpdater refreshes store and runtime gauges until ctx is done.
func startMetricsUpdater(ctx context.Context, every time.Duration, db dbStatser) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateDBMetrics(db)
			updateSystemMetrics()
		}
	}
}

func updateDBMetrics(db dbStatser) {
	st := db.Stats()
	metrics.UpdateDBStats(st.OpenConnections, st.InUse)
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
