// Package scoring reduces judge scores to run scores and builds the
// best-score, standings and head judge views from stored score rows.
package scoring

import (
	"fmt"
	"math"
	"sort"
)

// Rule names how the judge scores of one run reduce to a single run score.
type Rule string

// Supported rules.
const (
	RuleMean        Rule = "mean"
	RuleTrimmedMean Rule = "trimmed_mean"
	RuleMedian      Rule = "median"
)

// Defaults.
const (
	defaultTrimMinJudges = 5
	defaultPrecision     = 2
	maxPrecision         = 6
)

// ParseRule validates a rule name.
func ParseRule(s string) (Rule, error) {
	switch r := Rule(s); r {
	case RuleMean, RuleTrimmedMean, RuleMedian:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRule, s)
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithRule selects the run score rule.
func WithRule(r Rule) Option {
	return func(c *Calculator) {
		if r != "" {
			c.rule = r
		}
	}
}

// WithTrimMinJudges sets how many judges must have scored before
// trimmed_mean drops the highest and lowest score.
func WithTrimMinJudges(n int) Option {
	return func(c *Calculator) {
		if n >= 3 {
			c.trimMinJudges = n
		}
	}
}

// WithPrecision sets the number of decimals run scores are rounded to.
func WithPrecision(decimals int) Option {
	return func(c *Calculator) {
		if decimals >= 0 && decimals <= maxPrecision {
			c.precision = decimals
		}
	}
}

// Calculator computes run scores and the aggregation views. It holds no
// state besides its configuration and is safe for concurrent use.
type Calculator struct {
	rule          Rule
	trimMinJudges int
	precision     int
	scale         float64
}

// New creates a Calculator. The default rule is the plain mean rounded to
// two decimals.
func New(opts ...Option) *Calculator {
	c := &Calculator{
		rule:          RuleMean,
		trimMinJudges: defaultTrimMinJudges,
		precision:     defaultPrecision,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.scale = math.Pow(10, float64(c.precision))
	return c
}

// Rule returns the configured rule.
func (c *Calculator) Rule() Rule { return c.rule }

// RunScore reduces one run's judge scores. ok is false when nobody has
// scored the run yet. The result does not depend on the order of scores.
func (c *Calculator) RunScore(scores []float64) (score float64, ok bool) {
	n := len(scores)
	if n == 0 {
		return 0, false
	}
	sorted := make([]float64, n)
	copy(sorted, scores)
	sort.Float64s(sorted)

	switch c.rule {
	case RuleMedian:
		if n%2 == 1 {
			score = sorted[n/2]
		} else {
			score = (sorted[n/2-1] + sorted[n/2]) / 2
		}
	case RuleTrimmedMean:
		if n >= c.trimMinJudges {
			sorted = sorted[1 : n-1]
		}
		score = mean(sorted)
	default:
		score = mean(sorted)
	}
	return c.round(score), true
}

func (c *Calculator) round(v float64) float64 {
	return math.Round(v*c.scale) / c.scale
}

func mean(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
