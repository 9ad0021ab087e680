package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// HeatSetup describes one heat and everything the scoring path expects to
// exist before judges start submitting. Heat setup tooling and tests use it;
// the scoring path never creates run records itself.
type HeatSetup struct {
	EventID     int64          `koanf:"event_id"`
	EventName   string         `koanf:"event_name"`
	DivisionID  int64          `koanf:"division_id"`
	Division    string         `koanf:"division"`
	RoundID     int64          `koanf:"round_id"`
	RoundName   string         `koanf:"round_name"`
	RoundHeatID int64          `koanf:"round_heat_id"`
	HeatNum     int            `koanf:"heat_num"`
	Runs        int            `koanf:"runs"`
	Athletes    []SetupAthlete `koanf:"athletes"`
	Judges      []SetupJudge   `koanf:"judges"`
}

// SetupAthlete is an athlete starting in the heat.
type SetupAthlete struct {
	AthleteID int64  `koanf:"athlete_id"`
	FirstName string `koanf:"first_name"`
	LastName  string `koanf:"last_name"`
	Bib       int    `koanf:"bib"`
}

// SetupJudge is a judge on the event panel. Passcode is only read from
// seed files and is hashed before it reaches the store.
type SetupJudge struct {
	PersonnelID  int64  `koanf:"personnel_id"`
	Name         string `koanf:"name"`
	Passcode     string `koanf:"passcode"`
	PasscodeHash string `koanf:"passcode_hash"`
}

// SeedHeat inserts the heat, its start list and one run record per athlete
// and run. Rows that already exist are left alone.
func (s *SQLStore) SeedHeat(ctx context.Context, h HeatSetup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed heat: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	exec := func(query string, args ...any) error {
		if _, err := tx.ExecContext(ctx, s.q(query), args...); err != nil {
			return fmt.Errorf("seed heat %d: %w", h.RoundHeatID, err)
		}
		return nil
	}

	steps := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO event (event_id, name) VALUES (?, ?) ON CONFLICT DO NOTHING`, []any{h.EventID, h.EventName}},
		{`INSERT INTO division (division_id, event_id, name) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`, []any{h.DivisionID, h.EventID, h.Division}},
		{`INSERT INTO round (round_id, event_id, division_id, name) VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`, []any{h.RoundID, h.EventID, h.DivisionID, h.RoundName}},
		{`INSERT INTO round_heat (round_heat_id, round_id, heat_num) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`, []any{h.RoundHeatID, h.RoundID, h.HeatNum}},
	}
	for _, st := range steps {
		if err := exec(st.query, st.args...); err != nil {
			return err
		}
	}

	for _, j := range h.Judges {
		if err := exec(`INSERT INTO judge (personnel_id, event_id, name, passcode_hash) VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`,
			j.PersonnelID, h.EventID, j.Name, j.PasscodeHash); err != nil {
			return err
		}
	}

	nextID, err := s.nextRunResultID(ctx, tx)
	if err != nil {
		return err
	}
	for _, a := range h.Athletes {
		if err := exec(`INSERT INTO athlete (athlete_id, first_name, last_name) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
			a.AthleteID, a.FirstName, a.LastName); err != nil {
			return err
		}
		if err := exec(`INSERT INTO heat_entry (round_heat_id, athlete_id, bib_num) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
			h.RoundHeatID, a.AthleteID, a.Bib); err != nil {
			return err
		}
		for run := 1; run <= h.Runs; run++ {
			if err := exec(`INSERT INTO run_result (run_result_id, round_heat_id, run_num, athlete_id) VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`,
				nextID, h.RoundHeatID, run, a.AthleteID); err != nil {
				return err
			}
			nextID++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed heat %d: %w", h.RoundHeatID, err)
	}
	return nil
}

func (s *SQLStore) nextRunResultID(ctx context.Context, tx *sql.Tx) (int64, error) {
	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(run_result_id), 0) + 1 FROM run_result`).Scan(&id); err != nil {
		return 0, fmt.Errorf("next run result id: %w", err)
	}
	return id, nil
}
