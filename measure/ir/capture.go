package ir

import (
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/algo-verify/dsp/conv"
	"github.com/cwbudde/algo-verify/dsp/core"
	"github.com/cwbudde/algo-verify/dsp/signal"
	"github.com/cwbudde/algo-verify/engine"
	"github.com/cwbudde/algo-verify/harness"
)

// CaptureConfig holds impulse response capture parameters.
type CaptureConfig struct {
	SampleRate float64
	BlockSize  int
	// Amplitude of the excitation impulse.
	Amplitude float64
	// Duration of the captured tail in seconds.
	Duration float64
	// Timeout bounds the capture wall clock. Zero disables it.
	Timeout time.Duration
}

// CaptureImpulseResponse excites the engine with a single impulse and
// returns the mono response. The returned error, when non-nil, is a
// *harness.Failure.
func CaptureImpulseResponse(factory engine.Factory, cfg CaptureConfig, params map[int]float64) ([]float64, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 512
	}
	if cfg.Amplitude <= 0 {
		cfg.Amplitude = 1
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 2
	}

	gen := signal.NewGenerator(core.WithSampleRate(cfg.SampleRate))

	stim, err := gen.Impulse(cfg.Amplitude, int(cfg.Duration*cfg.SampleRate))
	if err != nil {
		return nil, harness.NewFailure(harness.FailurePrecondition, "impulse stimulus: %v", err)
	}

	out, err := harness.RunUnit(factory, harness.Config{
		SampleRate: cfg.SampleRate,
		BlockSize:  cfg.BlockSize,
		Timeout:    cfg.Timeout,
	}, stim, params)
	if err != nil {
		return nil, err
	}

	return out.Channel(0), nil
}

// FromSweep recovers an impulse response from a logarithmic sine sweep and
// the system's response to it. The inverse filter is the time-reversed
// sweep with a 6 dB/octave attenuation envelope, so the convolution of
// sweep and inverse collapses to a bandlimited impulse. The recovered IR
// is aligned to that impulse and normalized against it.
func FromSweep(stimulus, response []float64, f0, f1 float64) ([]float64, error) {
	if len(stimulus) < 2 {
		return nil, fmt.Errorf("ir: sweep stimulus too short: %d", len(stimulus))
	}
	if len(response) < len(stimulus) {
		return nil, fmt.Errorf("ir: response shorter than stimulus: %d < %d",
			len(response), len(stimulus))
	}
	if f0 <= 0 || f1 <= f0 {
		return nil, fmt.Errorf("ir: invalid sweep range: %f..%f", f0, f1)
	}

	n := len(stimulus)
	lnRatio := math.Log(f1 / f0)

	inverse := make([]float64, n)
	for i := range inverse {
		src := n - 1 - i
		// Instantaneous frequency at src grows as f0*exp(t/T*lnRatio);
		// dividing by that ratio flattens the sweep's pink spectrum.
		env := math.Exp(-float64(src) / float64(n-1) * lnRatio)
		inverse[i] = stimulus[src] * env
	}

	// Reference convolution locates and scales the recovered impulse.
	reference, err := conv.Convolve(stimulus, inverse)
	if err != nil {
		return nil, fmt.Errorf("ir: reference convolution: %w", err)
	}

	peakIdx, peakVal := conv.FindPeak(reference)
	if peakVal == 0 {
		return nil, ErrNoDecay
	}

	raw, err := conv.Convolve(response, inverse)
	if err != nil {
		return nil, fmt.Errorf("ir: response convolution: %w", err)
	}

	ir := raw[peakIdx:]
	scale := 1 / math.Abs(peakVal)
	out := make([]float64, len(ir))
	for i, x := range ir {
		out[i] = x * scale
	}

	return out, nil
}
