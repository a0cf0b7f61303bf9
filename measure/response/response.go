// Package response measures the steady-state frequency response of an
// engine by stepping pure tones across the audible band.
package response

import (
	"fmt"
	"math"
	"time"

	algofft "github.com/cwbudde/algo-fft"

	"github.com/cwbudde/algo-verify/dsp/core"
	"github.com/cwbudde/algo-verify/dsp/signal"
	"github.com/cwbudde/algo-verify/dsp/spectrum"
	"github.com/cwbudde/algo-verify/dsp/window"
	"github.com/cwbudde/algo-verify/engine"
	"github.com/cwbudde/algo-verify/harness"
)

const (
	defaultPoints       = 60
	minPoints           = 8
	maxPoints           = 512
	defaultFFTSize      = 8192
	defaultAmplitude    = 0.5
	defaultToneDuration = 0.3
	startFrequency      = 20.0
	// The sweep stops just under Nyquist so the top tone stays generable.
	nyquistMargin = 0.95
	// Linear magnitudes are clamped here before log10 so silent bins read
	// -200 dB instead of -Inf.
	magnitudeFloor = 1e-10
)

// Config holds frequency response measurement parameters.
type Config struct {
	SampleRate float64
	BlockSize  int
	// Points is the number of log-spaced measurement frequencies.
	Points       int
	FFTSize      int
	Amplitude    float64
	ToneDuration float64
	WindowType   window.Type
	// Timeout bounds the whole measurement across all points. Zero
	// disables it.
	Timeout time.Duration
}

// Point is one measured frequency response sample.
type Point struct {
	Frequency    float64
	MagnitudeDB  float64
	PhaseRadians float64
}

// Result holds the measured point grid and descriptors derived from it.
type Result struct {
	Points             []Point
	CutoffFrequency    float64
	SlopeDBPerOctave   float64
	PassbandFlatnessDB float64
	ResonantPeakDB     float64
	ResonanceFrequency float64
}

// Measure steps log-spaced tones from 20 Hz to just under Nyquist through
// one engine instance (reset per point), comparing output to input spectrum
// at the tone bin. The returned error, when non-nil, is a *harness.Failure.
func Measure(factory engine.Factory, cfg Config, params map[int]float64) (Result, error) {
	cfg = normalizeConfig(cfg)

	e, err := factory()
	if err != nil {
		return Result{}, harness.NewFailure(harness.FailureCreation,
			"engine construction failed: %v", err)
	}

	if err := e.Prepare(cfg.SampleRate, cfg.BlockSize); err != nil {
		return Result{}, harness.NewFailure(harness.FailureCreation,
			"engine prepare failed: %v", err)
	}

	plan, err := algofft.NewPlan64(cfg.FFTSize)
	if err != nil {
		return Result{}, harness.NewFailure(harness.FailurePrecondition,
			"fft plan: %v", err)
	}

	gen := signal.NewGenerator(
		core.WithSampleRate(cfg.SampleRate),
		core.WithBlockSize(cfg.BlockSize),
	)
	coeffs := window.Generate(cfg.WindowType, cfg.FFTSize)

	frequencies := logSpacedFrequencies(cfg)
	points := make([]Point, 0, len(frequencies))

	// One budget spans the whole point grid, so a hung engine cannot
	// stretch the unit by timing out point after point.
	var deadline time.Time
	if cfg.Timeout > 0 {
		deadline = time.Now().Add(cfg.Timeout)
	}

	for _, freq := range frequencies {
		stim, err := gen.Sine(freq, cfg.Amplitude, cfg.ToneDuration)
		if err != nil {
			return Result{}, harness.NewFailure(harness.FailurePrecondition,
				"stimulus at %.1f Hz: %v", freq, err)
		}

		e.Reset()
		if len(params) > 0 {
			if err := e.UpdateParameters(params); err != nil {
				return Result{}, harness.NewFailure(harness.FailureEngineFault,
					"parameter update failed: %v", err)
			}
		}

		budget := cfg.Timeout
		if !deadline.IsZero() {
			if budget = time.Until(deadline); budget <= 0 {
				return Result{}, harness.NewFailure(harness.FailureTimeout,
					"unit exceeded %s budget", cfg.Timeout)
			}
		}

		out, err := harness.RunBlockwiseTimeout(e, stim, cfg.BlockSize, budget)
		if err != nil {
			return Result{}, err
		}

		point, err := analyzePoint(plan, coeffs, stim.Channel(0), out.Channel(0), freq, cfg)
		if err != nil {
			return Result{}, err
		}

		points = append(points, point)
	}

	res := Result{Points: points}
	res.deriveDescriptors()

	return res, nil
}

// analyzePoint compares input and output spectra at the tone bin, reading
// the final FFTSize samples so ring-in does not bias the reading.
func analyzePoint(plan *algofft.Plan[complex128], coeffs, in, out []float64, freq float64, cfg Config) (Point, error) {
	bin, err := spectrum.NearestBin(freq, cfg.SampleRate, cfg.FFTSize)
	if err != nil {
		return Point{}, harness.NewFailure(harness.FailurePrecondition,
			"bin for %.1f Hz: %v", freq, err)
	}

	tail := len(in) - cfg.FFTSize

	inSpec, err := windowedSpectrum(plan, coeffs, in[tail:])
	if err != nil {
		return Point{}, err
	}

	outSpec, err := windowedSpectrum(plan, coeffs, out[tail:])
	if err != nil {
		return Point{}, err
	}

	inMag := math.Max(cmplxAbs(inSpec[bin]), magnitudeFloor)
	outMag := math.Max(cmplxAbs(outSpec[bin]), magnitudeFloor)

	phase := spectrum.WrapPhase(
		math.Atan2(imag(outSpec[bin]), real(outSpec[bin])) -
			math.Atan2(imag(inSpec[bin]), real(inSpec[bin])))

	return Point{
		Frequency:    freq,
		MagnitudeDB:  20 * math.Log10(outMag/inMag),
		PhaseRadians: phase,
	}, nil
}

func windowedSpectrum(plan *algofft.Plan[complex128], coeffs, samples []float64) ([]complex128, error) {
	in := make([]complex128, len(coeffs))
	for i := range coeffs {
		in[i] = complex(samples[i]*coeffs[i], 0)
	}

	out := make([]complex128, len(coeffs))
	if err := plan.Forward(out, in); err != nil {
		return nil, harness.NewFailure(harness.FailurePrecondition, "fft: %v", err)
	}

	return out, nil
}

// deriveDescriptors fills the cutoff, slope, flatness and resonance fields
// from the point grid.
func (r *Result) deriveDescriptors() {
	n := len(r.Points)
	if n == 0 {
		return
	}

	// Passband reference: mean level over the first 20% of points.
	refCount := n / 5
	if refCount < 1 {
		refCount = 1
	}

	var refSum float64
	for _, p := range r.Points[:refCount] {
		refSum += p.MagnitudeDB
	}
	reference := refSum / float64(refCount)

	var variance float64
	for _, p := range r.Points[:refCount] {
		d := p.MagnitudeDB - reference
		variance += d * d
	}
	r.PassbandFlatnessDB = math.Sqrt(variance / float64(refCount))

	// Cutoff: first point falling 3 dB under the reference.
	cutoffIdx := -1
	for i, p := range r.Points {
		if p.MagnitudeDB < reference-3 {
			r.CutoffFrequency = p.Frequency
			cutoffIdx = i
			break
		}
	}

	// Stopband slope: regression of level against log2(frequency) over the
	// tail past the cutoff.
	if cutoffIdx >= 0 && cutoffIdx < n-1 {
		r.SlopeDBPerOctave = fitSlope(r.Points[cutoffIdx:])
	}

	// Resonance: largest excursion above the reference.
	for _, p := range r.Points {
		if excess := p.MagnitudeDB - reference; excess > r.ResonantPeakDB {
			r.ResonantPeakDB = excess
			r.ResonanceFrequency = p.Frequency
		}
	}
}

// Smoothed returns a copy of the result with 1/fraction-octave smoothing
// applied to the magnitude grid. Descriptors are re-derived from the
// smoothed points.
func (r Result) Smoothed(fraction int) (Result, error) {
	freqs := make([]float64, len(r.Points))
	mags := make([]float64, len(r.Points))
	for i, p := range r.Points {
		freqs[i] = p.Frequency
		mags[i] = p.MagnitudeDB
	}

	smoothed, err := spectrum.SmoothFractionalOctave(freqs, mags, fraction)
	if err != nil {
		return Result{}, fmt.Errorf("response: smoothing: %w", err)
	}

	out := Result{Points: make([]Point, len(r.Points))}
	for i, p := range r.Points {
		p.MagnitudeDB = smoothed[i]
		out.Points[i] = p
	}
	out.deriveDescriptors()

	return out, nil
}

func fitSlope(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}

	// Least squares of magnitudeDB over octaves.
	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		x := math.Log2(p.Frequency)
		sumX += x
		sumY += p.MagnitudeDB
		sumXY += x * p.MagnitudeDB
		sumXX += x * x
	}

	n := float64(len(points))
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}

	return (n*sumXY - sumX*sumY) / denom
}

func logSpacedFrequencies(cfg Config) []float64 {
	top := cfg.SampleRate / 2 * nyquistMargin
	ratio := math.Log(top / startFrequency)

	freqs := make([]float64, cfg.Points)
	for i := range freqs {
		t := float64(i) / float64(cfg.Points-1)
		freqs[i] = startFrequency * math.Exp(t*ratio)
	}

	return freqs
}

func normalizeConfig(cfg Config) Config {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}

	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 512
	}

	if cfg.Points <= 0 {
		cfg.Points = defaultPoints
	}
	if cfg.Points < minPoints {
		cfg.Points = minPoints
	}
	if cfg.Points > maxPoints {
		cfg.Points = maxPoints
	}

	if cfg.FFTSize <= 0 {
		cfg.FFTSize = defaultFFTSize
	}

	if cfg.Amplitude <= 0 {
		cfg.Amplitude = defaultAmplitude
	}

	if cfg.ToneDuration <= 0 {
		cfg.ToneDuration = defaultToneDuration
	}

	// The analysis window reads the tail of the response, so the tone must
	// cover at least one FFT frame.
	if minDuration := float64(cfg.FFTSize) / cfg.SampleRate; cfg.ToneDuration < minDuration {
		cfg.ToneDuration = minDuration
	}

	if cfg.WindowType == window.TypeRectangular {
		cfg.WindowType = window.TypeHann
	}

	return cfg
}

func cmplxAbs(x complex128) float64 {
	return math.Hypot(real(x), imag(x))
}
