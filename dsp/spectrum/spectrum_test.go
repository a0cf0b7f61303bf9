package spectrum

import (
	"math"
	"testing"
)

func TestMagnitudeAndPower(t *testing.T) {
	in := []complex128{complex(3, 4), complex(0, 0), complex(-1, 0), complex(0, 2)}

	mag := Magnitude(in)
	wantMag := []float64{5, 0, 1, 2}
	for i := range mag {
		if math.Abs(mag[i]-wantMag[i]) > 1e-12 {
			t.Fatalf("magnitude mismatch at %d: got %v want %v", i, mag[i], wantMag[i])
		}
	}

	pow := Power(in)
	wantPow := []float64{25, 0, 1, 4}
	for i := range pow {
		if math.Abs(pow[i]-wantPow[i]) > 1e-12 {
			t.Fatalf("power mismatch at %d: got %v want %v", i, pow[i], wantPow[i])
		}
	}

	if Magnitude(nil) != nil || Power(nil) != nil {
		t.Fatalf("expected nil output for empty input")
	}
}

func TestPhase(t *testing.T) {
	in := []complex128{complex(1, 0), complex(0, 1), complex(-1, 0)}

	phase := Phase(in)
	want := []float64{0, math.Pi / 2, math.Pi}
	for i := range phase {
		if math.Abs(phase[i]-want[i]) > 1e-12 {
			t.Fatalf("phase mismatch at %d: got %v want %v", i, phase[i], want[i])
		}
	}
}

func TestWrapPhase(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{5 * math.Pi, math.Pi},
	}

	for _, tc := range cases {
		got := WrapPhase(tc.in)
		if math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("wrap(%v) mismatch: got %v want %v", tc.in, got, tc.want)
		}
		if got <= -math.Pi || got > math.Pi {
			t.Fatalf("wrap(%v) = %v outside (-pi, pi]", tc.in, got)
		}
	}
}

func TestUnwrapPhase(t *testing.T) {
	// A linearly decreasing phase that wraps twice.
	wrapped := []float64{0, -2, -3, 3, 2, 0, -1, -3, 3}
	out := UnwrapPhase(wrapped)

	for i := 1; i < len(out); i++ {
		if out[i] > out[i-1] {
			t.Fatalf("unwrapped phase not monotonic at %d: %v > %v", i, out[i], out[i-1])
		}
	}
}

func TestNearestBin(t *testing.T) {
	bin, err := NearestBin(1000, 48000, 4096)
	if err != nil {
		t.Fatalf("nearest bin error: %v", err)
	}

	want := int(math.Round(1000.0 / 48000.0 * 4096.0))
	if bin != want {
		t.Fatalf("bin mismatch: got %d want %d", bin, want)
	}

	// Clamped to Nyquist bin.
	bin, err = NearestBin(1e9, 48000, 4096)
	if err != nil {
		t.Fatalf("nearest bin error: %v", err)
	}
	if bin != 2048 {
		t.Fatalf("expected clamp to Nyquist bin 2048, got %d", bin)
	}

	if _, err := NearestBin(100, 0, 4096); err == nil {
		t.Fatalf("expected error for zero sample rate")
	}
}

func TestBinFrequencyRoundTrip(t *testing.T) {
	const sr = 48000.0
	const fftSize = 8192

	for _, f := range []float64{20, 440, 1000, 10000} {
		bin, err := NearestBin(f, sr, fftSize)
		if err != nil {
			t.Fatalf("nearest bin error: %v", err)
		}

		got := BinFrequency(bin, sr, fftSize)
		if math.Abs(got-f) > sr/float64(fftSize) {
			t.Fatalf("round trip mismatch for %v Hz: got %v", f, got)
		}
	}
}

func TestSmoothFractionalOctave(t *testing.T) {
	freq := []float64{100, 200, 400, 800, 1600}
	vals := []float64{1, 3, 5, 7, 9}

	out, err := SmoothFractionalOctave(freq, vals, 1)
	if err != nil {
		t.Fatalf("smoothing error: %v", err)
	}

	if len(out) != len(vals) {
		t.Fatalf("length mismatch: got %d want %d", len(out), len(vals))
	}

	// Wide-band smoothing must not extrapolate beyond the data range.
	for i, v := range out {
		if v < 1 || v > 9 {
			t.Fatalf("smoothed value out of range at %d: %v", i, v)
		}
	}

	if _, err := SmoothFractionalOctave(freq, vals[:3], 1); err == nil {
		t.Fatalf("expected length mismatch error")
	}

	if _, err := SmoothFractionalOctave(freq, vals, 0); err == nil {
		t.Fatalf("expected fraction error")
	}
}
