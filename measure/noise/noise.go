// Package noise measures the self-noise of an engine driven with digital
// silence.
package noise

import (
	"time"

	algofft "github.com/cwbudde/algo-fft"

	"github.com/cwbudde/algo-verify/dsp/signal"
	"github.com/cwbudde/algo-verify/dsp/spectrum"
	"github.com/cwbudde/algo-verify/dsp/window"
	"github.com/cwbudde/algo-verify/engine"
	"github.com/cwbudde/algo-verify/harness"
	"github.com/cwbudde/algo-verify/stats/frequency"
	stattime "github.com/cwbudde/algo-verify/stats/time"
)

const (
	defaultDuration       = 1.0
	defaultSettleFraction = 0.1
	defaultFFTSize        = 8192
	// Readings are floored here so a perfectly silent engine reports a
	// finite level.
	silenceFloorDB = -200.0
	// Below this flatness the self-noise is dominated by discrete tones.
	tonalFlatness = 0.2
)

// Config holds noise floor measurement parameters.
type Config struct {
	SampleRate     float64
	BlockSize      int
	Duration       float64
	SettleFraction float64
	FFTSize        int
	// Timeout bounds the measurement wall clock. Zero disables it.
	Timeout time.Duration
}

// Result holds the noise floor measurement.
type Result struct {
	NoiseFloorDB float64
	PeakDB       float64
	Flatness     float64
	Centroid     float64
	// Tonal marks self-noise concentrated in discrete spectral lines
	// (idle tones, oscillator bleed) rather than broadband noise.
	Tonal bool
}

// Measure drives the engine with silence and reports what comes out.
// The returned error, when non-nil, is a *harness.Failure.
func Measure(factory engine.Factory, cfg Config, params map[int]float64) (Result, error) {
	cfg = normalizeConfig(cfg)

	samples := int(cfg.Duration * cfg.SampleRate)
	stim := &signal.Stimulus{
		Data:       [][]float64{make([]float64, samples), make([]float64, samples)},
		SampleRate: cfg.SampleRate,
		Label:      "silence",
	}

	out, err := harness.RunUnit(factory, harness.Config{
		SampleRate: cfg.SampleRate,
		BlockSize:  cfg.BlockSize,
		Timeout:    cfg.Timeout,
	}, stim, params)
	if err != nil {
		return Result{}, err
	}

	skip := int(cfg.SettleFraction * float64(out.Samples()))
	tail := out.Channel(0)[skip:]

	if len(tail) < cfg.FFTSize {
		return Result{}, harness.NewFailure(harness.FailurePrecondition,
			"%d samples after settle, need %d", len(tail), cfg.FFTSize)
	}

	st := stattime.Calculate(tail)

	res := Result{
		NoiseFloorDB: floorDB(st.RMS_dB),
		PeakDB:       floorDB(st.Peak_dB),
	}

	shape, err := spectralShape(tail[:cfg.FFTSize], cfg)
	if err != nil {
		return Result{}, err
	}

	res.Flatness = shape.Flatness
	res.Centroid = shape.Centroid
	res.Tonal = res.NoiseFloorDB > silenceFloorDB && shape.Flatness < tonalFlatness

	return res, nil
}

func spectralShape(samples []float64, cfg Config) (frequency.Stats, error) {
	coeffs := window.Generate(window.TypeHann, cfg.FFTSize)

	in := make([]complex128, cfg.FFTSize)
	for i := range samples {
		in[i] = complex(samples[i]*coeffs[i], 0)
	}

	plan, err := algofft.NewPlan64(cfg.FFTSize)
	if err != nil {
		return frequency.Stats{}, harness.NewFailure(harness.FailurePrecondition, "fft plan: %v", err)
	}

	out := make([]complex128, cfg.FFTSize)
	if err := plan.Forward(out, in); err != nil {
		return frequency.Stats{}, harness.NewFailure(harness.FailurePrecondition, "fft: %v", err)
	}

	magnitude := spectrum.Magnitude(out[:cfg.FFTSize/2+1])

	return frequency.Calculate(magnitude, cfg.SampleRate, cfg.FFTSize), nil
}

func floorDB(db float64) float64 {
	if db < silenceFloorDB {
		return silenceFloorDB
	}

	return db
}

func normalizeConfig(cfg Config) Config {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}

	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 512
	}

	if cfg.Duration <= 0 {
		cfg.Duration = defaultDuration
	}

	if cfg.SettleFraction <= 0 || cfg.SettleFraction >= 1 {
		cfg.SettleFraction = defaultSettleFraction
	}

	if cfg.FFTSize <= 0 {
		cfg.FFTSize = defaultFFTSize
	}

	return cfg
}
