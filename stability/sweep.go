package stability

import (
	"fmt"
	"strings"
)

// pairValues are the canonical normalized settings probed for every
// parameter pair: the corners of the unit square plus three points on its
// diagonal.
var pairValues = [][2]float64{
	{0, 0},
	{1, 1},
	{0, 1},
	{1, 0},
	{0.3, 0.3},
	{0.5, 0.5},
	{0.7, 0.7},
}

// Setting assigns a normalized value to one parameter index.
type Setting struct {
	Index int
	Value float64
}

// Combination is one point of the parameter sweep. An empty Settings
// slice is the all-default baseline.
type Combination struct {
	Settings []Setting
}

// Baseline reports whether the combination leaves every parameter at its
// default.
func (c Combination) Baseline() bool {
	return len(c.Settings) == 0
}

// Params returns the combination as a parameter snapshot for the harness.
// The baseline returns nil.
func (c Combination) Params() map[int]float64 {
	if len(c.Settings) == 0 {
		return nil
	}

	params := make(map[int]float64, len(c.Settings))
	for _, s := range c.Settings {
		params[s.Index] = s.Value
	}
	return params
}

func (c Combination) String() string {
	if c.Baseline() {
		return "baseline"
	}

	parts := make([]string, len(c.Settings))
	for i, s := range c.Settings {
		parts[i] = fmt.Sprintf("p%d=%.2f", s.Index, s.Value)
	}
	return strings.Join(parts, " ")
}

// Sweep enumerates parameter combinations lazily: the baseline first, then
// the canonical values for every parameter pair (i, j) with i < j. Nothing
// is materialized, so a caller on a time budget can stop early.
type Sweep struct {
	numParams int

	started bool
	i, j, k int
}

// NewSweep returns an enumerator over numParams parameters.
func NewSweep(numParams int) *Sweep {
	return &Sweep{numParams: numParams, i: 0, j: 1}
}

// Total returns the number of combinations the sweep will produce.
func (s *Sweep) Total() int {
	pairs := s.numParams * (s.numParams - 1) / 2
	return 1 + pairs*len(pairValues)
}

// Next returns the next combination. The second return value is false once
// the sweep is exhausted.
func (s *Sweep) Next() (Combination, bool) {
	if !s.started {
		s.started = true
		return Combination{}, true
	}

	if s.numParams < 2 || s.i >= s.numParams-1 {
		return Combination{}, false
	}

	v := pairValues[s.k]
	combo := Combination{Settings: []Setting{
		{Index: s.i, Value: v[0]},
		{Index: s.j, Value: v[1]},
	}}

	s.k++
	if s.k == len(pairValues) {
		s.k = 0
		s.j++
		if s.j == s.numParams {
			s.i++
			s.j = s.i + 1
		}
	}

	return combo, true
}
