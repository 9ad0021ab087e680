package heatsim

import (
	"errors"
	"fmt"
	"math"

	"github.com/okian/heatscore/internal/domain/model"
	"github.com/okian/heatscore/internal/domain/scoring"
	"github.com/okian/heatscore/internal/domain/types"
)

// bestTolerance absorbs float formatting between server and client.
const bestTolerance = 1e-6

// Expected computes the standings the server should serve once applied
// has been stored.
func Expected(cfg Config, roster []model.HeatEntry, applied []model.ScoreSubmission) model.Standings {
	calc := scoring.New(
		scoring.WithRule(cfg.Rule),
		scoring.WithTrimMinJudges(cfg.TrimMinJudges),
		scoring.WithPrecision(cfg.Precision),
	)
	rows := make([]model.ScoreRow, len(applied))
	for i, s := range applied {
		rows[i] = model.ScoreRow{
			RoundHeatID: s.RoundHeatID,
			RunNum:      s.RunNum,
			AthleteID:   s.AthleteID,
			Bib:         s.Bib,
			PersonnelID: s.PersonnelID,
			Score:       s.Score,
		}
	}
	return calc.Standings(roster, rows)
}

// Verify compares served standings with the expected ones line by line.
// Every difference is reported.
func Verify(want model.Standings, got types.Standings) error {
	var errs []error
	if len(got.Ranked) != len(want.Ranked) {
		errs = append(errs, fmt.Errorf("%w: %d ranked, want %d", ErrMismatch, len(got.Ranked), len(want.Ranked)))
	}
	for i := range min(len(got.Ranked), len(want.Ranked)) {
		g, w := got.Ranked[i], want.Ranked[i]
		switch {
		case g.BibNum != w.Bib:
			errs = append(errs, fmt.Errorf("%w: line %d is bib %d, want bib %d", ErrMismatch, i+1, g.BibNum, w.Bib))
		case g.Rank != w.Rank:
			errs = append(errs, fmt.Errorf("%w: bib %d ranked %d, want %d", ErrMismatch, g.BibNum, g.Rank, w.Rank))
		case g.Best == nil || math.Abs(*g.Best-w.Best) > bestTolerance:
			errs = append(errs, fmt.Errorf("%w: bib %d best %v, want %.2f", ErrMismatch, g.BibNum, bestString(g.Best), w.Best))
		}
	}
	if len(got.Unranked) != len(want.Unranked) {
		errs = append(errs, fmt.Errorf("%w: %d unranked, want %d", ErrMismatch, len(got.Unranked), len(want.Unranked)))
	}
	return errors.Join(errs...)
}

func bestString(b *float64) string {
	if b == nil {
		return "null"
	}
	return fmt.Sprintf("%.2f", *b)
}
