package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/okian/heatscore/internal/domain/model"
	"github.com/okian/heatscore/pkg/logger"
	"github.com/okian/heatscore/pkg/metrics"
)

// Supported drivers, named as registered with database/sql.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const defaultMaxOpenConns = 10

// SQLStore implements Store over database/sql.
type SQLStore struct {
	db           *sql.DB
	driver       string
	log          logger.Logger
	maxOpenConns int
	now          func() time.Time
}

var _ Store = (*SQLStore)(nil)

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := New(db, driver, opts...)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return s, nil
}

// New wraps an already opened *sql.DB.
func New(db *sql.DB, driver string, opts ...Option) *SQLStore {
	s := &SQLStore{
		db:           db,
		driver:       driver,
		log:          logger.GetOrNop(),
		maxOpenConns: defaultMaxOpenConns,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if driver == DriverSQLite {
		// one writer; also keeps a :memory: database alive on its only connection
		s.maxOpenConns = 1
	}
	db.SetMaxOpenConns(s.maxOpenConns)
	s.log = s.log.Named("repository")
	return s
}

// DB exposes the pool for setup tooling and tests.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Close closes the pool.
func (s *SQLStore) Close() error { return s.db.Close() }

// Ping verifies the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Stats returns pool statistics.
func (s *SQLStore) Stats() sql.DBStats { return s.db.Stats() }

func (s *SQLStore) q(query string) string { return rebind(s.driver, query) }

const resolveQuery = `SELECT run_result_id FROM run_result
WHERE round_heat_id = ? AND run_num = ? AND athlete_id = ?
ORDER BY run_result_id LIMIT 2`

// ResolveRunResult returns the run record id for key.
func (s *SQLStore) ResolveRunResult(ctx context.Context, key model.RunKey) (int64, error) {
	rows, err := s.db.QueryContext(ctx, s.q(resolveQuery), key.RoundHeatID, key.RunNum, key.AthleteID)
	if err != nil {
		metrics.RecordResolutionFailure("query")
		return 0, fmt.Errorf("resolve %s: %w", key, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("resolve %s: %w", key, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("resolve %s: %w", key, err)
	}

	switch len(ids) {
	case 0:
		metrics.RecordResolutionFailure(metrics.OutcomeNotFound)
		return 0, fmt.Errorf("%w: %s", ErrRunResultNotFound, key)
	case 1:
		return ids[0], nil
	default:
		metrics.RecordResolutionFailure(metrics.OutcomeAmbiguous)
		s.log.Error(ctx, "multiple run results share one key",
			logger.Int64("round_heat_id", key.RoundHeatID),
			logger.Int("run_num", key.RunNum),
			logger.Int64("athlete_id", key.AthleteID),
			logger.Any("run_result_ids", ids),
		)
		return 0, fmt.Errorf("%w: %s", ErrAmbiguousRunResult, key)
	}
}

// Unchanged scores keep their updated_at so a replay leaves the row identical.
const upsertQuery = `INSERT INTO judge_score (personnel_id, run_result_id, score, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (personnel_id, run_result_id) DO UPDATE
SET score = excluded.score, updated_at = excluded.updated_at
WHERE judge_score.score <> excluded.score`

// UpsertScore writes the judge's score for a run record.
func (s *SQLStore) UpsertScore(ctx context.Context, js model.JudgeScore) error {
	start := time.Now()
	at := js.UpdatedAt
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(ctx, s.q(upsertQuery), js.PersonnelID, js.RunResultID, js.Score, at.UTC())
	metrics.RecordUpsertLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "upsert")
		return fmt.Errorf("upsert judge %d run result %d: %w", js.PersonnelID, js.RunResultID, err)
	}
	return nil
}

const getScoreQuery = `SELECT score, updated_at FROM judge_score WHERE personnel_id = ? AND run_result_id = ?`

// GetScore reads one stored judge score.
func (s *SQLStore) GetScore(ctx context.Context, personnelID, runResultID int64) (model.JudgeScore, error) {
	js := model.JudgeScore{PersonnelID: personnelID, RunResultID: runResultID}
	err := s.db.QueryRowContext(ctx, s.q(getScoreQuery), personnelID, runResultID).Scan(&js.Score, &js.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.JudgeScore{}, ErrNotFound
	}
	if err != nil {
		return model.JudgeScore{}, fmt.Errorf("get score: %w", err)
	}
	return js, nil
}

// scopeWhere renders the filters of a scope. Column aliases: rr = run_result
// or heat_entry, r = round, js = judge_score.
func scopeWhere(sc Scope, heatCol string, withJudge bool) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v int64) {
		if v > 0 {
			conds = append(conds, cond)
			args = append(args, v)
		}
	}
	add(heatCol+" = ?", sc.RoundHeatID)
	add("r.round_id = ?", sc.RoundID)
	add("r.event_id = ?", sc.EventID)
	add("r.division_id = ?", sc.DivisionID)
	if withJudge {
		add("js.personnel_id = ?", sc.PersonnelID)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const scoreRowsQuery = `SELECT rr.round_heat_id, rr.run_num, rr.athlete_id, COALESCE(he.bib_num, 0), js.personnel_id, js.score
FROM judge_score js
JOIN run_result rr ON rr.run_result_id = js.run_result_id
JOIN round_heat rh ON rh.round_heat_id = rr.round_heat_id
JOIN round r ON r.round_id = rh.round_id
LEFT JOIN heat_entry he ON he.round_heat_id = rr.round_heat_id AND he.athlete_id = rr.athlete_id`

// ScoreRows returns every judge score in scope joined with run and bib.
func (s *SQLStore) ScoreRows(ctx context.Context, sc Scope) ([]model.ScoreRow, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	where, args := scopeWhere(sc, "rr.round_heat_id", true)
	query := scoreRowsQuery + where + " ORDER BY rr.round_heat_id, rr.athlete_id, rr.run_num, js.personnel_id"

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("score rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ScoreRow
	for rows.Next() {
		var r model.ScoreRow
		if err := rows.Scan(&r.RoundHeatID, &r.RunNum, &r.AthleteID, &r.Bib, &r.PersonnelID, &r.Score); err != nil {
			return nil, fmt.Errorf("score rows: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("score rows: %w", err)
	}
	return out, nil
}

const rosterQuery = `SELECT he.round_heat_id, he.athlete_id, he.bib_num, a.first_name, a.last_name
FROM heat_entry he
JOIN athlete a ON a.athlete_id = he.athlete_id
JOIN round_heat rh ON rh.round_heat_id = he.round_heat_id
JOIN round r ON r.round_id = rh.round_id`

// Roster returns the athletes starting in scope, ordered by bib.
func (s *SQLStore) Roster(ctx context.Context, sc Scope) ([]model.HeatEntry, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	where, args := scopeWhere(sc, "he.round_heat_id", false)
	query := rosterQuery + where + " ORDER BY he.bib_num, he.athlete_id"

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.HeatEntry
	for rows.Next() {
		var e model.HeatEntry
		if err := rows.Scan(&e.RoundHeatID, &e.AthleteID, &e.Bib, &e.FirstName, &e.LastName); err != nil {
			return nil, fmt.Errorf("roster: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	return out, nil
}

const heatContextQuery = `SELECT r.event_id, r.division_id, r.round_id
FROM round_heat rh JOIN round r ON r.round_id = rh.round_id
WHERE rh.round_heat_id = ?`

// HeatContext returns the event, division and round of a heat.
func (s *SQLStore) HeatContext(ctx context.Context, roundHeatID int64) (model.PanelSession, error) {
	p := model.PanelSession{RoundHeatID: roundHeatID}
	err := s.db.QueryRowContext(ctx, s.q(heatContextQuery), roundHeatID).Scan(&p.EventID, &p.DivisionID, &p.RoundID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PanelSession{}, ErrNotFound
	}
	if err != nil {
		return model.PanelSession{}, fmt.Errorf("heat context: %w", err)
	}
	return p, nil
}

const judgeQuery = `SELECT event_id, passcode_hash FROM judge WHERE personnel_id = ?`

// JudgeCredentials returns a judge's event and passcode hash.
func (s *SQLStore) JudgeCredentials(ctx context.Context, personnelID int64) (int64, string, error) {
	var (
		eventID int64
		hash    string
	)
	err := s.db.QueryRowContext(ctx, s.q(judgeQuery), personnelID).Scan(&eventID, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", ErrNotFound
	}
	if err != nil {
		return 0, "", fmt.Errorf("judge credentials: %w", err)
	}
	return eventID, hash, nil
}
