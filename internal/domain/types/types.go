// Package types contains the JSON shapes served by the HTTP API and read
// back by the station client.
package types

import "time"

// SubmitResponse acknowledges an applied score.
type SubmitResponse struct {
	Success   bool `json:"success"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// ErrorResponse carries a client-safe error message.
type ErrorResponse struct {
	Error string `json:"error"`
}

// BestScore is a line of GET /api/scores/best without a judge filter.
type BestScore struct {
	BibNum    int     `json:"bib_num"`
	AthleteID int64   `json:"athlete_id"`
	Best      float64 `json:"best"`
}

// JudgeBest is a line of GET /api/scores/best filtered to one judge.
type JudgeBest struct {
	BibNum       int     `json:"bib_num"`
	BestRunScore float64 `json:"best_run_score"`
}

// Standing is one results line. Best is null for unranked athletes.
type Standing struct {
	Rank      int      `json:"rank,omitempty"`
	BibNum    int      `json:"bib_num"`
	AthleteID int64    `json:"athlete_id"`
	Name      string   `json:"name"`
	Best      *float64 `json:"best"`
}

// Standings is the body of GET /api/standings.
type Standings struct {
	Ranked   []Standing `json:"ranked"`
	Unranked []Standing `json:"unranked"`
}

// JudgeMark is one judge's score on a run.
type JudgeMark struct {
	PersonnelID int64   `json:"personnel_id"`
	Score       float64 `json:"score"`
}

// Run is one run on the head judge board.
type Run struct {
	RunNum int         `json:"run_num"`
	Marks  []JudgeMark `json:"marks"`
	Score  *float64    `json:"score"`
}

// AthleteRuns is one athlete's row on the head judge board.
type AthleteRuns struct {
	BibNum    int      `json:"bib_num"`
	AthleteID int64    `json:"athlete_id"`
	Name      string   `json:"name"`
	Runs      []Run    `json:"runs"`
	Best      *float64 `json:"best"`
}

// SessionRequest opens a judging panel session.
type SessionRequest struct {
	EventID     int64  `json:"event_id"`
	DivisionID  int64  `json:"division_id"`
	RoundID     int64  `json:"round_id"`
	RoundHeatID int64  `json:"round_heat_id"`
	PersonnelID int64  `json:"personnel_id"`
	Passcode    string `json:"passcode"`
}

// SessionResponse returns the signed panel token.
type SessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
