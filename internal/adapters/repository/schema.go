package repository

import (
	"context"
	"fmt"
)

// Migrate creates all tables the scoring path reads and writes.
// Safe to call multiple times.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// The DDL is shared by postgres and sqlite.
const schema = `
CREATE TABLE IF NOT EXISTS event (
    event_id BIGINT PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS division (
    division_id BIGINT PRIMARY KEY,
    event_id BIGINT NOT NULL REFERENCES event(event_id),
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS round (
    round_id BIGINT PRIMARY KEY,
    event_id BIGINT NOT NULL REFERENCES event(event_id),
    division_id BIGINT NOT NULL REFERENCES division(division_id),
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS round_heat (
    round_heat_id BIGINT PRIMARY KEY,
    round_id BIGINT NOT NULL REFERENCES round(round_id),
    heat_num INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_round_heat_round ON round_heat(round_id);

CREATE TABLE IF NOT EXISTS athlete (
    athlete_id BIGINT PRIMARY KEY,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS heat_entry (
    round_heat_id BIGINT NOT NULL REFERENCES round_heat(round_heat_id),
    athlete_id BIGINT NOT NULL REFERENCES athlete(athlete_id),
    bib_num INTEGER NOT NULL,
    PRIMARY KEY (round_heat_id, athlete_id)
);

CREATE TABLE IF NOT EXISTS judge (
    personnel_id BIGINT PRIMARY KEY,
    event_id BIGINT NOT NULL REFERENCES event(event_id),
    name TEXT NOT NULL,
    passcode_hash TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS run_result (
    run_result_id BIGINT PRIMARY KEY,
    round_heat_id BIGINT NOT NULL REFERENCES round_heat(round_heat_id),
    run_num INTEGER NOT NULL,
    athlete_id BIGINT NOT NULL REFERENCES athlete(athlete_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_run_result_key ON run_result(round_heat_id, run_num, athlete_id);

CREATE TABLE IF NOT EXISTS judge_score (
    personnel_id BIGINT NOT NULL,
    run_result_id BIGINT NOT NULL REFERENCES run_result(run_result_id),
    score DOUBLE PRECISION NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (personnel_id, run_result_id)
);

CREATE INDEX IF NOT EXISTS idx_judge_score_run ON judge_score(run_result_id);
`
