package spectrum

import (
	"math"
	"testing"
)

func sineBlock(freq, sampleRate float64, n int) []float64 {
	out := make([]float64, n)
	step := 2 * math.Pi * freq / sampleRate
	for i := range out {
		out[i] = math.Sin(step * float64(i))
	}
	return out
}

func TestGoertzelDetectsTargetTone(t *testing.T) {
	const sr = 48000.0
	const n = 4800

	block := sineBlock(1000, sr, n)

	onTarget, err := AnalyzeBlock(block, 1000, sr)
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}

	offTarget, err := AnalyzeBlock(block, 3000, sr)
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}

	if onTarget <= offTarget*100 {
		t.Fatalf("tone not detected: on-target %v, off-target %v", onTarget, offTarget)
	}
}

func TestGoertzelMagnitudeScaling(t *testing.T) {
	const sr = 48000.0
	const n = 4800

	// For a full-scale sine aligned to the analysis length, the Goertzel
	// magnitude approximates N/2 * amplitude.
	block := sineBlock(1000, sr, n)

	g, err := NewGoertzel(1000, sr)
	if err != nil {
		t.Fatalf("constructor error: %v", err)
	}

	g.ProcessBlock(block)

	got := g.Magnitude()
	want := float64(n) / 2

	if math.Abs(got-want)/want > 0.01 {
		t.Fatalf("magnitude mismatch: got %v want ~%v", got, want)
	}
}

func TestGoertzelReset(t *testing.T) {
	g, err := NewGoertzel(440, 48000)
	if err != nil {
		t.Fatalf("constructor error: %v", err)
	}

	g.ProcessBlock(sineBlock(440, 48000, 1024))
	if g.Power() == 0 {
		t.Fatalf("expected non-zero power after processing")
	}

	g.Reset()
	if g.Power() != 0 {
		t.Fatalf("expected zero power after reset, got %v", g.Power())
	}
}

func TestGoertzelValidation(t *testing.T) {
	if _, err := NewGoertzel(440, 0); err == nil {
		t.Fatalf("expected error for zero sample rate")
	}

	if _, err := NewGoertzel(30000, 48000); err == nil {
		t.Fatalf("expected error for frequency above Nyquist")
	}

	if _, err := NewGoertzel(math.NaN(), 48000); err == nil {
		t.Fatalf("expected error for NaN frequency")
	}
}

func TestGoertzelPowerDBFloor(t *testing.T) {
	g, err := NewGoertzel(440, 48000)
	if err != nil {
		t.Fatalf("constructor error: %v", err)
	}

	if got := g.PowerDB(); got != -300 {
		t.Fatalf("expected -300 dB floor on silence, got %v", got)
	}
}
