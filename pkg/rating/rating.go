// Package rating turns cohorts of real-world statistics into the small
// integer attribute scales the target platforms store. Ratings are
// assigned by percentile rank within one cohort (a league-season),
// mapped through a fixed step table, then adjusted per position and
// clamped to the platform's scale.
package rating

import (
	"errors"
	"fmt"
	"sort"
)

// ErrRange reports a table or profile value outside its declared bounds.
var ErrRange = errors.New("out of range")

// Scale is the closed integer range a platform stores attributes in.
type Scale struct {
	Min, Max int
}

// Clamp forces v into the scale.
func (s Scale) Clamp(v int) int {
	if v < s.Min {
		return s.Min
	}
	if v > s.Max {
		return s.Max
	}
	return v
}

// Step maps percentiles at or above Threshold to Rating.
type Step struct {
	Threshold float64
	Rating    int
}

// StepTable converts a percentile into a platform rating. Entries are
// ordered by descending threshold and the last entry must cover 0.
type StepTable []Step

func (t StepTable) validate(s Scale) error {
	if len(t) == 0 {
		return fmt.Errorf("%w: empty step table", ErrRange)
	}
	for i, step := range t {
		if step.Rating < s.Min || step.Rating > s.Max {
			return fmt.Errorf("%w: step rating %d outside scale [%d,%d]", ErrRange, step.Rating, s.Min, s.Max)
		}
		if i > 0 && (step.Threshold >= t[i-1].Threshold || step.Rating >= t[i-1].Rating) {
			return fmt.Errorf("%w: step table not strictly decreasing at index %d", ErrRange, i)
		}
	}
	if t[len(t)-1].Threshold != 0 {
		return fmt.Errorf("%w: step table does not cover percentile 0", ErrRange)
	}
	return nil
}

// Rating returns the rating for a percentile in [0, 100].
func (t StepTable) Rating(percentile float64) int {
	for _, step := range t {
		if percentile >= step.Threshold {
			return step.Rating
		}
	}
	return t[len(t)-1].Rating
}

// PercentileTable ranks a value within one statistic's cohort. Built
// once per cohort and discarded after the mapping pass.
type PercentileTable struct {
	sorted []float64
}

// NewPercentileTable copies and sorts the cohort's raw values.
func NewPercentileTable(values []float64) *PercentileTable {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return &PercentileTable{sorted: sorted}
}

// Percentile returns v's rank in [0, 100). Tied values all receive the
// average rank of the tied group.
func (t *PercentileTable) Percentile(v float64) float64 {
	n := len(t.sorted)
	if n == 0 {
		return 50
	}
	below := sort.SearchFloat64s(t.sorted, v)
	end := sort.Search(n, func(i int) bool { return t.sorted[i] > v })
	tied := end - below
	rank := float64(below)
	if tied > 1 {
		rank += float64(tied-1) / 2
	}
	return rank / float64(n) * 100
}

// Cohort bundles one PercentileTable per statistic.
type Cohort struct {
	tables map[string]*PercentileTable
}

// NewCohort builds the percentile tables for one league-season worth of
// raw statistic values.
func NewCohort(stats map[string][]float64) *Cohort {
	c := &Cohort{tables: make(map[string]*PercentileTable, len(stats))}
	for name, values := range stats {
		c.tables[name] = NewPercentileTable(values)
	}
	return c
}

// Percentile ranks v within the named statistic. Unknown statistics
// rank at the median so a missing category never skews a player.
func (c *Cohort) Percentile(stat string, v float64) float64 {
	t, ok := c.tables[stat]
	if !ok {
		return 50
	}
	return t.Percentile(v)
}
