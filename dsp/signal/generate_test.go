package signal

import (
	"errors"
	"math"
	"testing"

	algofft "github.com/cwbudde/algo-fft"

	"github.com/cwbudde/algo-verify/dsp/core"
	"github.com/cwbudde/algo-verify/internal/testutil"
)

func testGenerator(opts ...Option) *Generator {
	return NewGeneratorWithOptions(
		[]core.ProcessorOption{core.WithSampleRate(48000)},
		opts...,
	)
}

func TestImpulse(t *testing.T) {
	g := testGenerator()

	stim, err := g.Impulse(1.0, 64)
	if err != nil {
		t.Fatalf("impulse error: %v", err)
	}

	if stim.Channels() != 2 {
		t.Fatalf("channel count mismatch: got %d want 2", stim.Channels())
	}
	if stim.Samples() != 64 {
		t.Fatalf("sample count mismatch: got %d want 64", stim.Samples())
	}

	for ch := 0; ch < stim.Channels(); ch++ {
		data := stim.Channel(ch)
		if data[0] != 1.0 {
			t.Fatalf("channel %d impulse mismatch: got %v want 1", ch, data[0])
		}
		for i := 1; i < len(data); i++ {
			if data[i] != 0 {
				t.Fatalf("channel %d sample %d not zero: %v", ch, i, data[i])
			}
		}
	}

	if _, err := g.Impulse(1.0, 0); err == nil {
		t.Fatalf("expected error for zero length")
	}
}

func TestSineFrequencyAndAmplitude(t *testing.T) {
	g := testGenerator()

	stim, err := g.Sine(1000, 0.5, 0.1)
	if err != nil {
		t.Fatalf("sine error: %v", err)
	}

	data := stim.Channel(0)
	if len(data) != 4800 {
		t.Fatalf("sample count mismatch: got %d want 4800", len(data))
	}

	peak := 0.0
	for _, v := range data {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if math.Abs(peak-0.5) > 1e-3 {
		t.Fatalf("peak mismatch: got %v want 0.5", peak)
	}

	// Zero-crossing count approximates 2*f*duration.
	crossings := 0
	for i := 1; i < len(data); i++ {
		if data[i-1]*data[i] < 0 {
			crossings++
		}
	}
	if crossings < 195 || crossings > 205 {
		t.Fatalf("zero crossing count out of range: %d", crossings)
	}
}

func TestSineRejectsInvalidFrequency(t *testing.T) {
	g := testGenerator()

	if _, err := g.Sine(24000, 0.5, 0.1); !errors.Is(err, ErrFrequencyRange) {
		t.Fatalf("expected ErrFrequencyRange for Nyquist, got %v", err)
	}
	if _, err := g.Sine(0, 0.5, 0.1); !errors.Is(err, ErrFrequencyRange) {
		t.Fatalf("expected ErrFrequencyRange for zero, got %v", err)
	}
	if _, err := g.Sine(-100, 0.5, 0.1); !errors.Is(err, ErrFrequencyRange) {
		t.Fatalf("expected ErrFrequencyRange for negative, got %v", err)
	}
}

func TestSweptSinePhaseContinuity(t *testing.T) {
	g := testGenerator()

	stim, err := g.SweptSine(20, 20000, 0.5)
	if err != nil {
		t.Fatalf("sweep error: %v", err)
	}

	// A phase-continuous sweep has no sample-to-sample jump larger than
	// the maximum slope of a sine at the end frequency.
	data := stim.Channel(0)
	maxStep := 2 * math.Pi * 20000 / 48000

	for i := 1; i < len(data); i++ {
		if math.Abs(data[i]-data[i-1]) > maxStep {
			t.Fatalf("phase discontinuity at %d: step %v", i, math.Abs(data[i]-data[i-1]))
		}
	}

	if _, err := g.SweptSine(20000, 20, 0.5); err == nil {
		t.Fatalf("expected error for inverted frequency order")
	}
}

func TestNoiseDeterminism(t *testing.T) {
	a, err := testGenerator(WithSeed(42)).WhiteNoise(1.0, 0.1)
	if err != nil {
		t.Fatalf("noise error: %v", err)
	}

	b, err := testGenerator(WithSeed(42)).WhiteNoise(1.0, 0.1)
	if err != nil {
		t.Fatalf("noise error: %v", err)
	}

	testutil.RequireNearlyEqual(t, a.Channel(0), b.Channel(0), 0)

	c, err := testGenerator(WithSeed(43)).WhiteNoise(1.0, 0.1)
	if err != nil {
		t.Fatalf("noise error: %v", err)
	}

	same := true
	for i := range a.Channel(0) {
		if a.Channel(0)[i] != c.Channel(0)[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("different seeds produced identical noise")
	}
}

func TestPinkNoiseAmplitude(t *testing.T) {
	stim, err := testGenerator(WithSeed(7)).PinkNoise(0.8, 0.5)
	if err != nil {
		t.Fatalf("pink noise error: %v", err)
	}
	testutil.RequireFinite(t, stim.Channel(0))

	peak := 0.0
	for _, v := range stim.Channel(0) {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if math.Abs(peak-0.8) > 1e-9 {
		t.Fatalf("normalized peak mismatch: got %v want 0.8", peak)
	}
}

// octaveSlope estimates the average spectral slope in dB per octave from
// the band power around 100-200 Hz against 5-10 kHz.
func octaveSlope(t *testing.T, data []float64, sampleRate float64) float64 {
	t.Helper()

	const fftSize = 65536
	if len(data) < fftSize {
		t.Fatalf("signal too short for slope estimate: %d", len(data))
	}

	in := make([]complex128, fftSize)
	for i := 0; i < fftSize; i++ {
		in[i] = complex(data[i], 0)
	}

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		t.Fatalf("fft plan error: %v", err)
	}
	out := make([]complex128, fftSize)
	if err := plan.Forward(out, in); err != nil {
		t.Fatalf("fft error: %v", err)
	}

	binWidth := sampleRate / fftSize
	bandPower := func(lo, hi float64) float64 {
		sum := 0.0
		n := 0
		for i := int(lo / binWidth); i < int(hi/binWidth); i++ {
			x := out[i]
			sum += real(x)*real(x) + imag(x)*imag(x)
			n++
		}
		return sum / float64(n)
	}

	low := bandPower(100, 200)
	high := bandPower(5000, 10000)

	// Band centers are the geometric means, 141 Hz and 7071 Hz.
	octaves := math.Log2(math.Sqrt(5000*10000) / math.Sqrt(100*200))

	return 10 * math.Log10(high/low) / octaves
}

func TestWhiteNoiseSpectralSlope(t *testing.T) {
	stim, err := testGenerator(WithSeed(3)).WhiteNoise(0.8, 2.0)
	if err != nil {
		t.Fatalf("white noise error: %v", err)
	}

	slope := octaveSlope(t, stim.Channel(0), 48000)
	if math.Abs(slope) > 1.5 {
		t.Fatalf("white noise slope out of range: got %v dB/octave want ~0", slope)
	}
}

func TestPinkNoiseSpectralSlope(t *testing.T) {
	stim, err := testGenerator(WithSeed(3)).PinkNoise(0.8, 2.0)
	if err != nil {
		t.Fatalf("pink noise error: %v", err)
	}

	slope := octaveSlope(t, stim.Channel(0), 48000)
	if slope > -1.5 || slope < -4.5 {
		t.Fatalf("pink noise slope out of range: got %v dB/octave want ~-3", slope)
	}
}

func TestDualTonePeak(t *testing.T) {
	stim, err := testGenerator().DualTone(60, 7000, 0.25, 0.2)
	if err != nil {
		t.Fatalf("dual tone error: %v", err)
	}

	peak := 0.0
	for _, v := range stim.Channel(0) {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if peak > 0.5+1e-9 {
		t.Fatalf("dual tone peak exceeds 2*amplitude: %v", peak)
	}
	if peak < 0.25 {
		t.Fatalf("dual tone peak implausibly low: %v", peak)
	}
}

func TestIndependentStereoTone(t *testing.T) {
	stim, err := testGenerator().IndependentStereoTone(440, 880, 0.5, 0.1)
	if err != nil {
		t.Fatalf("stereo tone error: %v", err)
	}

	left := stim.Channel(0)
	right := stim.Channel(1)

	identical := true
	for i := range left {
		if left[i] != right[i] {
			identical = false
			break
		}
	}
	if identical {
		t.Fatalf("independent channels are identical")
	}
}

func TestExponentialDecayEnvelope(t *testing.T) {
	const rt60 = 0.5

	stim, err := testGenerator().ExponentialDecay(1000, rt60, 1.0)
	if err != nil {
		t.Fatalf("decay error: %v", err)
	}

	// At t = rt60 the envelope must be 60 dB below the start.
	data := stim.Channel(0)
	idx := int(rt60 * 48000)

	windowPeak := 0.0
	for i := idx; i < idx+100 && i < len(data); i++ {
		if a := math.Abs(data[i]); a > windowPeak {
			windowPeak = a
		}
	}

	wantMax := math.Pow(10, -60.0/20) * 1.1
	if windowPeak > wantMax {
		t.Fatalf("envelope at rt60 too high: got %v want <= %v", windowPeak, wantMax)
	}
}

func TestStimulusClone(t *testing.T) {
	stim, err := testGenerator().Sine(440, 0.5, 0.01)
	if err != nil {
		t.Fatalf("sine error: %v", err)
	}

	clone := stim.Clone()
	clone.Data[0][0] = 99

	if stim.Data[0][0] == 99 {
		t.Fatalf("clone shares backing storage with original")
	}
}

func TestOscillatorPhaseContinuity(t *testing.T) {
	osc, err := NewOscillator(440, 0.5, 48000)
	if err != nil {
		t.Fatalf("oscillator error: %v", err)
	}

	// Stream two consecutive blocks and compare against one continuous run.
	blockA := [][]float64{make([]float64, 256), make([]float64, 256)}
	blockB := [][]float64{make([]float64, 256), make([]float64, 256)}
	osc.Fill(blockA)
	osc.Fill(blockB)

	ref, err := NewOscillator(440, 0.5, 48000)
	if err != nil {
		t.Fatalf("oscillator error: %v", err)
	}
	whole := [][]float64{make([]float64, 512)}
	ref.Fill(whole)

	for i := 0; i < 256; i++ {
		if math.Abs(blockA[0][i]-whole[0][i]) > 1e-12 {
			t.Fatalf("first block mismatch at %d", i)
		}
		if math.Abs(blockB[0][i]-whole[0][256+i]) > 1e-9 {
			t.Fatalf("second block not phase-continuous at %d: got %v want %v", i, blockB[0][i], whole[0][256+i])
		}
	}
}

func TestOscillatorValidation(t *testing.T) {
	if _, err := NewOscillator(30000, 0.5, 48000); !errors.Is(err, ErrFrequencyRange) {
		t.Fatalf("expected ErrFrequencyRange, got %v", err)
	}
	if _, err := NewOscillator(440, 0.5, 0); err == nil {
		t.Fatalf("expected error for zero sample rate")
	}
}
