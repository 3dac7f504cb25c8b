// Package tracker provides objective sinks for the early stopping control
// loop: an in-memory history with summary statistics and an SQLite-backed
// run recorder
package tracker

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// History is an in-memory tracker that records every objective value it is
// given, in order
type History struct {
	values []float64
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{values: make([]float64, 0)}
}

// LogObjective appends the objective value for one epoch tick
func (h *History) LogObjective(value float64) {
	h.values = append(h.values, value)
}

// Len returns the number of recorded values
func (h *History) Len() int {
	return len(h.values)
}

// Values returns a copy of the recorded values in log order
func (h *History) Values() []float64 {
	out := make([]float64, len(h.values))
	copy(out, h.values)
	return out
}

// Summary holds aggregate statistics over a recorded run
type Summary struct {
	Count int
	Mean  float64
	Std   float64
	Min   float64
	Max   float64
}

// Summarize computes aggregate statistics over the recorded values.
// An empty history yields a zero summary
func (h *History) Summarize() Summary {
	if len(h.values) == 0 {
		return Summary{}
	}
	return Summary{
		Count: len(h.values),
		Mean:  stat.Mean(h.values, nil),
		Std:   stat.StdDev(h.values, nil),
		Min:   floats.Min(h.values),
		Max:   floats.Max(h.values),
	}
}
