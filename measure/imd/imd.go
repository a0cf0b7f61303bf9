// Package imd measures intermodulation distortion of a two-tone response.
package imd

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/cwbudde/algo-fft"

	"github.com/cwbudde/algo-verify/dsp/window"
)

const (
	defaultSettleFraction = 0.1
	defaultFFTSize        = 16384
)

// ErrSignalTooShort is returned when fewer than FFTSize samples remain
// after the settle skip.
var ErrSignalTooShort = errors.New("imd: signal shorter than analysis window")

// Config holds IMD calculation parameters. F1 and F2 are the two stimulus
// tone frequencies, F1 < F2 (the SMPTE-style default pair is 60 Hz and
// 7 kHz).
type Config struct {
	SampleRate     float64
	FFTSize        int
	F1             float64
	F2             float64
	CaptureBins    int
	WindowType     window.Type
	SettleFraction float64
}

// ProductLevel is the level measured at one intermodulation product.
type ProductLevel struct {
	Label     string
	Frequency float64
	// Level is linear amplitude relative to the combined fundamental level.
	Level float64
}

// Result holds IMD measurement results.
type Result struct {
	IMDPercent    float64
	IMDdB         float64
	ProductLevels []ProductLevel
}

// Calculator performs IMD analysis on dual-tone responses.
type Calculator struct {
	cfg Config
}

// NewCalculator creates a new IMD calculator.
func NewCalculator(cfg Config) (*Calculator, error) {
	cfg = normalizeConfig(cfg)

	if cfg.F1 <= 0 || cfg.F2 <= 0 {
		return nil, fmt.Errorf("imd: tone frequencies must be > 0: %f, %f", cfg.F1, cfg.F2)
	}
	if cfg.F1 >= cfg.F2 {
		return nil, fmt.Errorf("imd: f1 must be below f2: %f >= %f", cfg.F1, cfg.F2)
	}
	if cfg.F2 >= cfg.SampleRate/2 {
		return nil, fmt.Errorf("imd: f2 must be below Nyquist: %f", cfg.F2)
	}

	return &Calculator{cfg: cfg}, nil
}

// AnalyzeSignal performs one-shot IMD analysis from a time-domain signal.
func AnalyzeSignal(signal []float64, cfg Config) (Result, error) {
	calc, err := NewCalculator(cfg)
	if err != nil {
		return Result{}, err
	}

	return calc.AnalyzeSignal(signal)
}

// AnalyzeSignal computes IMD metrics from the response to a dual-tone
// stimulus. The settle fraction is skipped and one windowed FFT supplies
// every product reading.
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
		return Result{}, fmt.Errorf("imd: fft plan: %w", err)
	}

	out := make([]complex128, cfg.FFTSize)
	if err := plan.Forward(out, inData); err != nil {
		return Result{}, fmt.Errorf("imd: fft: %w", err)
	}

	binCount := cfg.FFTSize/2 + 1
	magSquared := make([]float64, binCount)
	for i := range magSquared {
		x := out[i]
		magSquared[i] = real(x)*real(x) + imag(x)*imag(x)
	}

	return c.fromMagnitudeSquared(magSquared)
}

// products lists the second- and third-order intermodulation frequencies.
func (c *Calculator) products() []ProductLevel {
	f1, f2 := c.cfg.F1, c.cfg.F2

	return []ProductLevel{
		{Label: "f2-f1", Frequency: f2 - f1},
		{Label: "f2+f1", Frequency: f2 + f1},
		{Label: "2f1-f2", Frequency: 2*f1 - f2},
		{Label: "2f1+f2", Frequency: 2*f1 + f2},
		{Label: "2f2-f1", Frequency: 2*f2 - f1},
		{Label: "2f2+f1", Frequency: 2*f2 + f1},
	}
}

func (c *Calculator) fromMagnitudeSquared(magSquared []float64) (Result, error) {
	cfg := c.cfg
	maxBin := len(magSquared) - 1
	binHz := cfg.SampleRate / float64(cfg.FFTSize)
	nyquist := cfg.SampleRate / 2

	pick := func(freq float64) float64 {
		bin := clampInt(int(math.Round(freq/binHz)), 0, maxBin)
		lo := clampInt(bin-cfg.CaptureBins, 0, maxBin)
		hi := clampInt(bin+cfg.CaptureBins, 0, maxBin)

		best := 0.0
		for i := lo; i <= hi; i++ {
			if magSquared[i] > best {
				best = magSquared[i]
			}
		}

		return best
	}

	a1 := pick(cfg.F1)
	a2 := pick(cfg.F2)

	fundamental := a1 + a2
	if fundamental <= 0 {
		return Result{}, fmt.Errorf("imd: no tone energy at %.1f/%.1f Hz", cfg.F1, cfg.F2)
	}

	fundamentalLevel := math.Sqrt(fundamental)

	var productPower float64
	levels := make([]ProductLevel, 0, 6)

	for _, p := range c.products() {
		// Products folded to DC or beyond Nyquist cannot be read.
		if p.Frequency <= 0 || p.Frequency >= nyquist {
			continue
		}

		power := pick(p.Frequency)
		productPower += power

		p.Level = math.Sqrt(power) / fundamentalLevel
		levels = append(levels, p)
	}

	imd := math.Sqrt(productPower / fundamental)

	return Result{
		IMDPercent:    100 * imd,
		IMDdB:         ratioToDB(imd),
		ProductLevels: levels,
	}, nil
}

func normalizeConfig(cfg Config) Config {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}

	if cfg.FFTSize <= 0 {
		cfg.FFTSize = defaultFFTSize
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
