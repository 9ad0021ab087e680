// Package heatsim drives a scoring server with a simulated judging panel
// and checks the standings it serves against a local computation.
package heatsim

import (
	"time"

	"github.com/okian/heatscore/internal/domain/model"
	"github.com/okian/heatscore/internal/domain/scoring"
)

// Config holds configuration for one simulated heat.
type Config struct {
	RoundHeatID   int64            // heat to score, must already be seeded
	Runs          int              // runs per athlete
	Judges        []int64          // personnel ids on the panel
	Workers       int              // concurrent submitters
	ReplayEvery   int              // resend every Nth submission with the same id, 0 disables
	Seed          uint64           // score generator seed
	ScoreRange    model.ScoreRange // range the generated scores fall in
	Rule          scoring.Rule     // server's scoring rule, for the expected standings
	TrimMinJudges int
	Precision     int
	SettleTimeout time.Duration // how long standings may take to match
}

// DefaultConfig returns a three-run, three-judge heat.
func DefaultConfig() Config {
	return Config{
		Runs:          3,
		Judges:        []int64{100, 200, 300},
		Workers:       4,
		ReplayEvery:   5,
		Seed:          1,
		ScoreRange:    model.DefaultScoreRange,
		Rule:          scoring.RuleMean,
		TrimMinJudges: 5,
		Precision:     2,
		SettleTimeout: 10 * time.Second,
	}
}

// Stats holds simulation statistics.
type Stats struct {
	Athletes  int
	Generated int
	Submitted int
	Applied   int
	Duplicate int
	Rejected  int
	Failed    int
	Ranked    int
	StartTime time.Time
	Duration  time.Duration
}
