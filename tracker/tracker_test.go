package tracker

import (
	"math"
	"testing"
)

func TestHistoryRecordsInOrder(t *testing.T) {
	h := NewHistory()
	for _, v := range []float64{1, 2, 3} {
		h.LogObjective(v)
	}

	values := h.Values()
	if len(values) != 3 {
		t.Fatalf("expected 3 values, got %d", len(values))
	}
	for i, want := range []float64{1, 2, 3} {
		if values[i] != want {
			t.Errorf("value %d: expected %v, got %v", i, want, values[i])
		}
	}

	// the returned slice is a copy
	values[0] = 99
	if h.Values()[0] != 1 {
		t.Errorf("Values returned a live alias")
	}
}

func TestHistorySummary(t *testing.T) {
	h := NewHistory()
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		h.LogObjective(v)
	}

	s := h.Summarize()
	if s.Count != 8 {
		t.Errorf("expected count 8, got %d", s.Count)
	}
	if math.Abs(s.Mean-5.0) > 1e-9 {
		t.Errorf("expected mean 5.0, got %v", s.Mean)
	}
	if s.Min != 2 || s.Max != 9 {
		t.Errorf("expected min 2 max 9, got %v %v", s.Min, s.Max)
	}
	// sample standard deviation of the classic example set
	if math.Abs(s.Std-2.13809) > 1e-4 {
		t.Errorf("expected std ~2.138, got %v", s.Std)
	}
}

func TestHistoryEmptySummary(t *testing.T) {
	s := NewHistory().Summarize()
	if s.Count != 0 || s.Mean != 0 || s.Min != 0 || s.Max != 0 {
		t.Errorf("expected zero summary, got %+v", s)
	}
}
