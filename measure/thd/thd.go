// Package thd measures total harmonic distortion of a sine response.
package thd

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/cwbudde/algo-fft"

	"github.com/cwbudde/algo-verify/dsp/window"
)

const (
	defaultMaxHarmonic    = 7
	defaultSettleFraction = 0.1
	defaultFFTSize        = 16384
)

// ErrSignalTooShort is returned when fewer than FFTSize samples remain
// after the settle skip.
var ErrSignalTooShort = errors.New("thd: signal shorter than analysis window")

// Config holds THD calculation parameters.
type Config struct {
	SampleRate      float64
	FFTSize         int
	FundamentalFreq float64
	// MaxHarmonic is the highest harmonic order included (7 covers the
	// 2nd through 7th).
	MaxHarmonic int
	// CaptureBins widens the per-harmonic pickup to the strongest bin
	// within +/- CaptureBins of the nominal bin, absorbing window leakage.
	// Zero selects the first-minimum width of the configured window.
	CaptureBins int
	WindowType  window.Type
	// SettleFraction of the signal is skipped before analysis so ring-in
	// does not bias the spectrum. Default 0.1.
	SettleFraction float64
}

// Result holds THD measurement results.
type Result struct {
	FundamentalFreq  float64
	FundamentalLevel float64
	THDPercent       float64
	THDdB            float64
	// HarmonicLevels[k] is the linear level of harmonic k+2 relative to
	// the fundamental.
	HarmonicLevels []float64
	THDN           float64
	SINAD          float64
	OddEvenRatio   float64
}

// Calculator performs THD analysis on sine responses.
type Calculator struct {
	cfg Config
}

// NewCalculator creates a new THD calculator.
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: normalizeConfig(cfg)}
}

// AnalyzeSignal performs one-shot THD analysis from a time-domain signal.
func AnalyzeSignal(signal []float64, cfg Config) (Result, error) {
	return NewCalculator(cfg).AnalyzeSignal(signal)
}

// AnalyzeSignal computes THD metrics from a real-valued time-domain signal.
// The settle fraction is skipped, one FFT window is taken from what
// remains, and every metric is read from that single spectrum.
func (c *Calculator) AnalyzeSignal(signal []float64) (Result, error) {
	cfg := c.cfg

	skip := int(cfg.SettleFraction * float64(len(signal)))
	if len(signal)-skip < cfg.FFTSize {
		return Result{}, fmt.Errorf("%w: %d samples after settle, need %d",
			ErrSignalTooShort, len(signal)-skip, cfg.FFTSize)
	}

	segment := signal[skip : skip+cfg.FFTSize]
	coeffs := window.Generate(cfg.WindowType, cfg.FFTSize)

	inData := make([]complex128, cfg.FFTSize)
	for i, x := range segment {
		inData[i] = complex(x*coeffs[i], 0)
	}

	plan, err := algofft.NewPlan64(cfg.FFTSize)
	if err != nil {
		return Result{}, fmt.Errorf("thd: fft plan: %w", err)
	}

	out := make([]complex128, cfg.FFTSize)
	if err := plan.Forward(out, inData); err != nil {
		return Result{}, fmt.Errorf("thd: fft: %w", err)
	}

	binCount := cfg.FFTSize/2 + 1
	magSquared := make([]float64, binCount)
	for i := range magSquared {
		x := out[i]
		magSquared[i] = real(x)*real(x) + imag(x)*imag(x)
	}

	return c.fromMagnitudeSquared(magSquared)
}

func (c *Calculator) fromMagnitudeSquared(magSquared []float64) (Result, error) {
	cfg := c.cfg
	maxBin := len(magSquared) - 1
	binHz := cfg.SampleRate / float64(cfg.FFTSize)

	fundamentalBin := clampInt(int(math.Round(cfg.FundamentalFreq/binHz)), 1, maxBin)

	captureBins := cfg.CaptureBins
	if captureBins*2 >= fundamentalBin {
		captureBins = (fundamentalBin - 1) / 2
	}

	fundamental := pickPeak(magSquared, fundamentalBin, captureBins)
	if fundamental <= 0 {
		return Result{}, fmt.Errorf("thd: no fundamental energy at %.1f Hz", cfg.FundamentalFreq)
	}

	var (
		harmonicPower float64
		oddPower      float64
		evenPower     float64
		levels        []float64
	)

	for k := 2; k <= cfg.MaxHarmonic; k++ {
		bin := k * fundamentalBin
		if bin > maxBin {
			break
		}

		p := pickPeak(magSquared, bin, captureBins)

		harmonicPower += p
		if k%2 == 0 {
			evenPower += p
		} else {
			oddPower += p
		}

		levels = append(levels, math.Sqrt(p/fundamental))
	}

	thd := math.Sqrt(harmonicPower / fundamental)

	// Noise+distortion residual: everything in the band except the
	// fundamental pickup region. DC is excluded.
	var totalPower, pickedFundamental float64
	for i := 1; i <= maxBin; i++ {
		totalPower += magSquared[i]
	}
	lo := clampInt(fundamentalBin-captureBins, 1, maxBin)
	hi := clampInt(fundamentalBin+captureBins, 1, maxBin)
	for i := lo; i <= hi; i++ {
		pickedFundamental += magSquared[i]
	}

	residual := totalPower - pickedFundamental
	if residual < 0 {
		residual = 0
	}

	thdn := math.Sqrt(residual / fundamental)

	sinad := math.Inf(1)
	if thdn > 0 {
		sinad = 20 * math.Log10(1/thdn)
	}

	oddEven := math.Inf(1)
	if evenPower > 0 {
		oddEven = oddPower / evenPower
	}

	return Result{
		FundamentalFreq:  float64(fundamentalBin) * binHz,
		FundamentalLevel: math.Sqrt(fundamental),
		THDPercent:       100 * thd,
		THDdB:            ratioToDB(thd),
		HarmonicLevels:   levels,
		THDN:             thdn,
		SINAD:            sinad,
		OddEvenRatio:     oddEven,
	}, nil
}

// pickPeak returns the largest squared magnitude within +/- captureBins of
// the nominal bin.
func pickPeak(magSquared []float64, bin, captureBins int) float64 {
	lo := clampInt(bin-captureBins, 0, len(magSquared)-1)
	hi := clampInt(bin+captureBins, 0, len(magSquared)-1)

	best := 0.0
	for i := lo; i <= hi; i++ {
		if magSquared[i] > best {
			best = magSquared[i]
		}
	}

	return best
}

func normalizeConfig(cfg Config) Config {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}

	if cfg.FFTSize <= 0 {
		cfg.FFTSize = defaultFFTSize
	}

	if cfg.FundamentalFreq <= 0 {
		cfg.FundamentalFreq = 1000
	}

	if cfg.MaxHarmonic < 2 {
		cfg.MaxHarmonic = defaultMaxHarmonic
	}

	if cfg.SettleFraction <= 0 || cfg.SettleFraction >= 1 {
		cfg.SettleFraction = defaultSettleFraction
	}

	if cfg.WindowType == window.TypeRectangular {
		cfg.WindowType = window.TypeHann
	}

	if cfg.CaptureBins <= 0 {
		cfg.CaptureBins = int(math.Round(window.Info(cfg.WindowType).FirstMinimumBins))
	}

	return cfg
}

func ratioToDB(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}

	return 20 * math.Log10(v)
}

func clampInt(val, lo, hi int) int {
	if val < lo {
		return lo
	}

	if val > hi {
		return hi
	}

	return val
}
