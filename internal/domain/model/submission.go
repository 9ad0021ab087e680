// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// ScoreSubmission is one judge's score for one athlete's run, as entered
// at the judging station and sent to the server.
type ScoreSubmission struct {
	SubmissionID string  `json:"submission_id,omitempty"` // assigned at enqueue, used for replay detection
	RoundHeatID  int64   `json:"round_heat_id"`
	RunNum       int     `json:"run_num"`
	PersonnelID  int64   `json:"personnel_id"`
	AthleteID    int64   `json:"athlete_id"`
	Bib          int     `json:"bib"`
	Score        float64 `json:"score"`
}

// ScoreRange bounds an accepted judge score, inclusive on both ends.
type ScoreRange struct {
	Min float64
	Max float64
}

// DefaultScoreRange is the 0-100 scale used by most freestyle formats.
var DefaultScoreRange = ScoreRange{Min: 0, Max: 100}

// Key returns the run record key the submission resolves against.
func (s ScoreSubmission) Key() RunKey {
	return RunKey{RoundHeatID: s.RoundHeatID, RunNum: s.RunNum, AthleteID: s.AthleteID}
}

// Fingerprint identifies the submission payload: judge, run record key and
// score. Two submissions under one id are a replay only when their
// fingerprints match.
func (s ScoreSubmission) Fingerprint() string {
	return fmt.Sprintf("%d/%d/%d/%d/%s", s.RoundHeatID, s.RunNum, s.AthleteID, s.PersonnelID,
		strconv.FormatFloat(s.Score, 'g', -1, 64))
}

// Validate checks the submission shape. Errors wrap ErrInvalidSubmission.
func (s ScoreSubmission) Validate(r ScoreRange) error {
	switch {
	case s.RoundHeatID <= 0:
		return fmt.Errorf("%w: round_heat_id must be positive", ErrInvalidSubmission)
	case s.RunNum <= 0:
		return fmt.Errorf("%w: run_num must be positive", ErrInvalidSubmission)
	case s.PersonnelID <= 0:
		return fmt.Errorf("%w: personnel_id must be positive", ErrInvalidSubmission)
	case s.AthleteID <= 0:
		return fmt.Errorf("%w: athlete_id must be positive", ErrInvalidSubmission)
	case s.Bib < 0:
		return fmt.Errorf("%w: bib must not be negative", ErrInvalidSubmission)
	case math.IsNaN(s.Score) || math.IsInf(s.Score, 0):
		return fmt.Errorf("%w: score must be a number", ErrInvalidSubmission)
	case s.Score < r.Min || s.Score > r.Max:
		return fmt.Errorf("%w: score %g outside [%g, %g]", ErrInvalidSubmission, s.Score, r.Min, r.Max)
	}
	return nil
}

// RunKey identifies one athlete's run within a heat.
type RunKey struct {
	RoundHeatID int64
	RunNum      int
	AthleteID   int64
}

func (k RunKey) String() string {
	return fmt.Sprintf("heat=%d run=%d athlete=%d", k.RoundHeatID, k.RunNum, k.AthleteID)
}

// RunResult is the authoritative server-side run record.
type RunResult struct {
	RunResultID int64
	RunKey
}

// JudgeScore is the stored score of one judge for one run record.
type JudgeScore struct {
	PersonnelID int64
	RunResultID int64
	Score       float64
	UpdatedAt   time.Time
}
