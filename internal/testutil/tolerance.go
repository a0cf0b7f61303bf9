package testutil

import (
	"math"
	"testing"
)

// RequireNearlyEqual fails t unless got matches want element-wise within
// tol (absolute).
func RequireNearlyEqual(t *testing.T, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range got {
		if d := math.Abs(got[i] - want[i]); d > tol {
			t.Fatalf("sample %d mismatch: got %v want %v (diff %v > %v)",
				i, got[i], want[i], d, tol)
		}
	}
}

// RequireFinite fails t on the first NaN or Inf in any of the given
// channels.
func RequireFinite(t *testing.T, channels ...[]float64) {
	t.Helper()

	for ch, data := range channels {
		for i, v := range data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("non-finite value %v at channel %d, sample %d", v, ch, i)
			}
		}
	}
}
