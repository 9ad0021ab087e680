package scoring

import (
	"sort"

	"github.com/okian/heatscore/internal/domain/model"
)

type runID struct {
	roundHeatID int64
	runNum      int
}

// athleteRuns collects one athlete's judge scores per run.
type athleteRuns struct {
	athleteID int64
	bib       int
	runs      map[runID][]model.ScoreRow
}

func groupByAthlete(rows []model.ScoreRow) map[int64]*athleteRuns {
	out := make(map[int64]*athleteRuns)
	for _, r := range rows {
		a, ok := out[r.AthleteID]
		if !ok {
			a = &athleteRuns{athleteID: r.AthleteID, bib: r.Bib, runs: make(map[runID][]model.ScoreRow)}
			out[r.AthleteID] = a
		}
		id := runID{roundHeatID: r.RoundHeatID, runNum: r.RunNum}
		a.runs[id] = append(a.runs[id], r)
	}
	return out
}

func scoresOf(rows []model.ScoreRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Score
	}
	return out
}

// best returns the highest run score over runs with at least one judge score.
func (c *Calculator) best(a *athleteRuns) (float64, bool) {
	var best float64
	found := false
	for _, rows := range a.runs {
		s, ok := c.RunScore(scoresOf(rows))
		if !ok {
			continue
		}
		if !found || s > best {
			best, found = s, true
		}
	}
	return best, found
}

// BestScores returns every athlete's best run score, highest first.
// Athletes without a scored run do not appear.
func (c *Calculator) BestScores(rows []model.ScoreRow) []model.BestScore {
	grouped := groupByAthlete(rows)
	out := make([]model.BestScore, 0, len(grouped))
	for _, a := range grouped {
		if b, ok := c.best(a); ok {
			out = append(out, model.BestScore{AthleteID: a.athleteID, Bib: a.bib, Best: b})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return rankedBefore(out[i].Best, out[i].Bib, out[i].AthleteID, out[j].Best, out[j].Bib, out[j].AthleteID)
	})
	return out
}

// rankedBefore orders by best descending, then bib and athlete id ascending.
func rankedBefore(bestA float64, bibA int, idA int64, bestB float64, bibB int, idB int64) bool {
	if bestA != bestB {
		return bestA > bestB
	}
	if bibA != bibB {
		return bibA < bibB
	}
	return idA < idB
}

// Standings ranks the roster by best run score. Equal bests share a rank
// and the next rank skips (1, 2, 2, 4). Athletes on the roster with no
// scored run are listed as unranked, ordered by bib.
func (c *Calculator) Standings(roster []model.HeatEntry, rows []model.ScoreRow) model.Standings {
	grouped := groupByAthlete(rows)
	entries := rosterIndex(roster)

	res := model.Standings{Ranked: []model.Standing{}, Unranked: []model.Standing{}}
	seen := make(map[int64]bool, len(grouped))
	for _, a := range grouped {
		seen[a.athleteID] = true
		st := model.Standing{AthleteID: a.athleteID, Bib: a.bib}
		if e, ok := entries[a.athleteID]; ok {
			st.Bib, st.Name = e.Bib, e.Name()
		}
		if b, ok := c.best(a); ok {
			st.Best, st.Scored = b, true
			res.Ranked = append(res.Ranked, st)
			continue
		}
		res.Unranked = append(res.Unranked, st)
	}
	for _, e := range entries {
		if !seen[e.AthleteID] {
			res.Unranked = append(res.Unranked, model.Standing{AthleteID: e.AthleteID, Bib: e.Bib, Name: e.Name()})
		}
	}

	sort.Slice(res.Ranked, func(i, j int) bool {
		a, b := res.Ranked[i], res.Ranked[j]
		return rankedBefore(a.Best, a.Bib, a.AthleteID, b.Best, b.Bib, b.AthleteID)
	})
	for i := range res.Ranked {
		if i > 0 && res.Ranked[i].Best == res.Ranked[i-1].Best {
			res.Ranked[i].Rank = res.Ranked[i-1].Rank
			continue
		}
		res.Ranked[i].Rank = i + 1
	}

	sort.Slice(res.Unranked, func(i, j int) bool {
		a, b := res.Unranked[i], res.Unranked[j]
		if a.Bib != b.Bib {
			return a.Bib < b.Bib
		}
		return a.AthleteID < b.AthleteID
	})
	return res
}

// rosterIndex keeps the first entry per athlete.
func rosterIndex(roster []model.HeatEntry) map[int64]model.HeatEntry {
	out := make(map[int64]model.HeatEntry, len(roster))
	for _, e := range roster {
		if _, ok := out[e.AthleteID]; !ok {
			out[e.AthleteID] = e
		}
	}
	return out
}

// JudgeBest returns, per bib, the highest score the given judge has entered.
func (c *Calculator) JudgeBest(rows []model.ScoreRow, personnelID int64) []model.JudgeBest {
	best := make(map[int]float64)
	for _, r := range rows {
		if r.PersonnelID != personnelID {
			continue
		}
		if cur, ok := best[r.Bib]; !ok || r.Score > cur {
			best[r.Bib] = r.Score
		}
	}
	out := make([]model.JudgeBest, 0, len(best))
	for bib, s := range best {
		out = append(out, model.JudgeBest{Bib: bib, BestRunScore: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bib < out[j].Bib })
	return out
}

// RunBoard lays out every judge's mark per run for one heat, ordered by bib.
func (c *Calculator) RunBoard(roster []model.HeatEntry, rows []model.ScoreRow) []model.AthleteRuns {
	grouped := groupByAthlete(rows)
	entries := rosterIndex(roster)
	for id, e := range entries {
		if _, ok := grouped[id]; !ok {
			grouped[id] = &athleteRuns{athleteID: id, bib: e.Bib, runs: map[runID][]model.ScoreRow{}}
		}
	}

	out := make([]model.AthleteRuns, 0, len(grouped))
	for _, a := range grouped {
		line := model.AthleteRuns{AthleteID: a.athleteID, Bib: a.bib, Runs: []model.RunLine{}}
		if e, ok := entries[a.athleteID]; ok {
			line.Bib, line.Name = e.Bib, e.Name()
		}
		for id, scored := range a.runs {
			run := model.RunLine{RunNum: id.runNum, Marks: make([]model.JudgeMark, 0, len(scored))}
			for _, r := range scored {
				run.Marks = append(run.Marks, model.JudgeMark{PersonnelID: r.PersonnelID, Score: r.Score})
			}
			sort.Slice(run.Marks, func(i, j int) bool { return run.Marks[i].PersonnelID < run.Marks[j].PersonnelID })
			run.Score, run.Scored = c.RunScore(scoresOf(scored))
			if run.Scored && (!line.Scored || run.Score > line.Best) {
				line.Best, line.Scored = run.Score, true
			}
			line.Runs = append(line.Runs, run)
		}
		sort.Slice(line.Runs, func(i, j int) bool { return line.Runs[i].RunNum < line.Runs[j].RunNum })
		out = append(out, line)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bib != out[j].Bib {
			return out[i].Bib < out[j].Bib
		}
		return out[i].AthleteID < out[j].AthleteID
	})
	return out
}
