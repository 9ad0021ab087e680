package model

// HeatEntry is an athlete starting in a heat.
type HeatEntry struct {
	RoundHeatID int64
	AthleteID   int64
	Bib         int
	FirstName   string
	LastName    string
}

// Name returns "First Last", trimmed when either part is missing.
func (e HeatEntry) Name() string {
	switch {
	case e.FirstName == "":
		return e.LastName
	case e.LastName == "":
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

// ScoreRow is one stored judge score joined with its run and start entry.
// The aggregation views consume these.
type ScoreRow struct {
	RoundHeatID int64
	RunNum      int
	AthleteID   int64
	Bib         int
	PersonnelID int64
	Score       float64
}

// BestScore is an athlete's best run score in the selected scope.
type BestScore struct {
	AthleteID int64
	Bib       int
	Best      float64
}

// JudgeBest is one judge's highest score given to a bib.
type JudgeBest struct {
	Bib          int
	BestRunScore float64
}

// Standing is a ranked or unranked line in the results.
type Standing struct {
	Rank      int // 0 when unranked
	AthleteID int64
	Bib       int
	Name      string
	Best      float64
	Scored    bool
}

// Standings splits athletes with at least one scored run from those without.
type Standings struct {
	Ranked   []Standing
	Unranked []Standing
}

// JudgeMark is a single judge's score inside a run.
type JudgeMark struct {
	PersonnelID int64
	Score       float64
}

// RunLine is one run of one athlete on the head judge board.
type RunLine struct {
	RunNum int
	Marks  []JudgeMark
	Score  float64
	Scored bool
}

// AthleteRuns groups the runs of one athlete in a heat.
type AthleteRuns struct {
	AthleteID int64
	Bib       int
	Name      string
	Runs      []RunLine
	Best      float64
	Scored    bool
}
