// Package repository resolves run records, upserts judge scores and reads
// the score rows behind the aggregation views.
package repository

import (
	"context"

	"github.com/okian/heatscore/internal/domain/model"
)

// Resolver maps a run key to its run record id.
type Resolver interface {
	// ResolveRunResult returns ErrRunResultNotFound when no record matches and
	// ErrAmbiguousRunResult when more than one does.
	ResolveRunResult(ctx context.Context, key model.RunKey) (int64, error)
}

// ScoreWriter stores judge scores.
type ScoreWriter interface {
	// UpsertScore inserts the score or replaces the judge's previous score
	// for the same run record in one statement.
	UpsertScore(ctx context.Context, s model.JudgeScore) error
}

// ScoreReader reads the rows the views are computed from.
type ScoreReader interface {
	ScoreRows(ctx context.Context, scope Scope) ([]model.ScoreRow, error)
	Roster(ctx context.Context, scope Scope) ([]model.HeatEntry, error)
}

// PanelDirectory answers the questions the passcode gate asks.
type PanelDirectory interface {
	// HeatContext returns the event, division and round a heat belongs to.
	HeatContext(ctx context.Context, roundHeatID int64) (model.PanelSession, error)
	// JudgeCredentials returns the judge's event and passcode hash.
	JudgeCredentials(ctx context.Context, personnelID int64) (eventID int64, passcodeHash string, err error)
}

// Store is everything the scoring service needs from persistence.
type Store interface {
	Resolver
	ScoreWriter
	ScoreReader
	PanelDirectory
	Ping(ctx context.Context) error
}

// Scope selects the rows a view covers. Either RoundHeatID or RoundID is
// required; the remaining fields narrow further.
type Scope struct {
	RoundHeatID int64
	RoundID     int64
	EventID     int64
	DivisionID  int64
	PersonnelID int64 // score rows only
}

// Validate rejects scopes that would read a whole event.
func (s Scope) Validate() error {
	if s.RoundHeatID <= 0 && s.RoundID <= 0 {
		return ErrInvalidScope
	}
	return nil
}
