package heatsim

import (
	"math"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/okian/heatscore/internal/domain/model"
)

// Athlete tiers as fractions of the score range. A judge's score lands
// within judgeSpread of the athlete's level for the run.
const (
	tierAverage = iota
	tierHigh
	tierLow
	tierElite
	tierCount
)

const (
	judgeSpread = 0.06
	runSpread   = 0.12
	decimals    = 10 // judges enter one decimal
)

var tierBounds = [tierCount][2]float64{
	tierAverage: {0.40, 0.70},
	tierHigh:    {0.70, 0.88},
	tierLow:     {0.10, 0.40},
	tierElite:   {0.88, 0.97},
}

// Generator produces judge scores for a heat from a seeded faker so a
// simulation can be repeated.
type Generator struct {
	faker *gofakeit.Faker
	rng   model.ScoreRange
}

// NewGenerator creates a generator over r.
func NewGenerator(seed uint64, r model.ScoreRange) *Generator {
	return &Generator{faker: gofakeit.New(seed), rng: r}
}

// Heat returns one submission per athlete, run and judge, grouped by judge
// and ordered by run then start list within each judge.
func (g *Generator) Heat(roundHeatID int64, roster []model.HeatEntry, runs int, judges []int64) [][]model.ScoreSubmission {
	levels := make(map[int64][]float64, len(roster))
	for _, a := range roster {
		base := g.level()
		perRun := make([]float64, runs)
		for r := range perRun {
			perRun[r] = clamp(base+g.faker.Float64Range(-runSpread, runSpread/2), 0, 1)
		}
		levels[a.AthleteID] = perRun
	}

	out := make([][]model.ScoreSubmission, len(judges))
	for j, judge := range judges {
		subs := make([]model.ScoreSubmission, 0, runs*len(roster))
		for run := 1; run <= runs; run++ {
			for _, a := range roster {
				subs = append(subs, model.ScoreSubmission{
					SubmissionID: uuid.NewString(),
					RoundHeatID:  roundHeatID,
					RunNum:       run,
					PersonnelID:  judge,
					AthleteID:    a.AthleteID,
					Bib:          a.Bib,
					Score:        g.score(levels[a.AthleteID][run-1]),
				})
			}
		}
		out[j] = subs
	}
	return out
}

func (g *Generator) level() float64 {
	b := tierBounds[g.faker.Number(0, tierCount-1)]
	return g.faker.Float64Range(b[0], b[1])
}

func (g *Generator) score(level float64) float64 {
	f := clamp(level+g.faker.Float64Range(-judgeSpread, judgeSpread), 0, 1)
	v := g.rng.Min + f*(g.rng.Max-g.rng.Min)
	return clamp(math.Round(v*decimals)/decimals, g.rng.Min, g.rng.Max)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
