package signal

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/algo-verify/dsp/buffer"
	"github.com/cwbudde/algo-verify/dsp/core"
)

// ErrFrequencyRange is returned when a requested tone frequency falls
// outside (0, Nyquist).
var ErrFrequencyRange = errors.New("signal: frequency must be > 0 and below Nyquist")

const defaultChannels = 2

// Generator creates deterministic stimuli from a shared configuration.
// All generation is pure given (config, seed); the same parameters always
// produce the same samples.
type Generator struct {
	cfg      core.ProcessorConfig
	seed     int64
	channels int
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed sets the deterministic random seed for noise generation.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.seed = seed
	}
}

// WithChannels sets the output channel count. Default is stereo.
func WithChannels(channels int) Option {
	return func(g *Generator) {
		if channels > 0 {
			g.channels = channels
		}
	}
}

// NewGenerator creates a configured stimulus generator.
func NewGenerator(opts ...core.ProcessorOption) *Generator {
	return &Generator{
		cfg:      core.ApplyProcessorOptions(opts...),
		seed:     1,
		channels: defaultChannels,
	}
}

// NewGeneratorWithOptions creates a stimulus generator with signal-specific options.
func NewGeneratorWithOptions(coreOpts []core.ProcessorOption, opts ...Option) *Generator {
	g := NewGenerator(coreOpts...)
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Config returns the generator processor configuration.
func (g *Generator) Config() core.ProcessorConfig {
	return g.cfg
}

// Seed returns the generator noise seed.
func (g *Generator) Seed() int64 {
	return g.seed
}

// Impulse generates a unit impulse of amplitude at sample 0 followed by
// n-1 zeros, duplicated on every channel.
func (g *Generator) Impulse(amplitude float64, n int) (*Stimulus, error) {
	if n <= 0 {
		return nil, fmt.Errorf("impulse length must be > 0: %d", n)
	}

	stim := g.newStimulus("impulse", n)
	for ch := range stim.Data {
		stim.Data[ch][0] = amplitude
	}
	return stim, nil
}

// Sine generates a phase-continuous sine wave, identical on every channel.
// duration is in seconds. Frequencies at or above Nyquist are rejected.
func (g *Generator) Sine(freqHz, amplitude, duration float64) (*Stimulus, error) {
	n, err := g.sampleCount(duration)
	if err != nil {
		return nil, err
	}
	if err := g.validateFrequency(freqHz); err != nil {
		return nil, err
	}

	stim := g.newStimulus(fmt.Sprintf("sine-%.1fHz", freqHz), n)
	fillSine(stim.Data[0], freqHz, amplitude, g.cfg.SampleRate)
	duplicateChannels(stim.Data)
	return stim, nil
}

// SweptSine generates a logarithmic sine sweep from f0 to f1 using the
// closed-form phase integral
//
//	phi(t) = 2*pi * f0 * T/ln(f1/f0) * (e^(t/T*ln(f1/f0)) - 1)
//
// which keeps the phase continuous over the whole sweep.
func (g *Generator) SweptSine(f0, f1, duration float64) (*Stimulus, error) {
	n, err := g.sampleCount(duration)
	if err != nil {
		return nil, err
	}
	if err := g.validateFrequency(f0); err != nil {
		return nil, err
	}
	if err := g.validateFrequency(f1); err != nil {
		return nil, err
	}
	if f0 >= f1 {
		return nil, fmt.Errorf("sweep start frequency must be below end frequency: %f >= %f", f0, f1)
	}

	stim := g.newStimulus(fmt.Sprintf("sweep-%.0f-%.0fHz", f0, f1), n)

	T := duration
	lnRatio := math.Log(f1 / f0)
	for i := range stim.Data[0] {
		t := float64(i) / g.cfg.SampleRate
		phase := 2 * math.Pi * f0 * T / lnRatio * (math.Exp(t/T*lnRatio) - 1)
		stim.Data[0][i] = math.Sin(phase)
	}
	duplicateChannels(stim.Data)
	return stim, nil
}

// WhiteNoise generates deterministic uniform white noise in
// [-amplitude, amplitude], identical on every channel.
func (g *Generator) WhiteNoise(amplitude, duration float64) (*Stimulus, error) {
	n, err := g.sampleCount(duration)
	if err != nil {
		return nil, err
	}
	if amplitude < 0 {
		return nil, fmt.Errorf("noise amplitude must be >= 0: %f", amplitude)
	}

	stim := g.newStimulus("white-noise", n)
	rng := rand.New(rand.NewSource(g.seed))
	for i := range stim.Data[0] {
		stim.Data[0][i] = (rng.Float64()*2 - 1) * amplitude
	}
	duplicateChannels(stim.Data)
	return stim, nil
}

// PinkNoise generates deterministic pink (1/f) noise by shaping white noise
// with a 6-section first-order IIR cascade, then normalizing the result to
// the requested peak amplitude.
func (g *Generator) PinkNoise(amplitude, duration float64) (*Stimulus, error) {
	if amplitude < 0 {
		return nil, fmt.Errorf("noise amplitude must be >= 0: %f", amplitude)
	}

	n, err := g.sampleCount(duration)
	if err != nil {
		return nil, err
	}

	stim := g.newStimulus("pink-noise", n)
	rng := rand.New(rand.NewSource(g.seed))

	var b0, b1, b2, b3, b4, b5 float64
	data := stim.Data[0]
	peak := 0.0
	for i := range data {
		white := rng.Float64()*2 - 1

		b0 = 0.99886*b0 + white*0.0555179
		b1 = 0.99332*b1 + white*0.0750759
		b2 = 0.96900*b2 + white*0.1538520
		b3 = 0.86650*b3 + white*0.3104856
		b4 = 0.55000*b4 + white*0.5329522
		b5 = -0.7616*b5 - white*0.0168980

		data[i] = b0 + b1 + b2 + b3 + b4 + b5 + white*0.5362
		if a := math.Abs(data[i]); a > peak {
			peak = a
		}
	}

	if peak > 0 {
		scale := amplitude / peak
		for i := range data {
			data[i] *= scale
		}
	}

	duplicateChannels(stim.Data)
	return stim, nil
}

// DualTone generates two equal-amplitude sine tones summed, identical on
// every channel. amplitude applies per tone, so the peak can reach
// 2*amplitude.
func (g *Generator) DualTone(f1, f2, amplitude, duration float64) (*Stimulus, error) {
	n, err := g.sampleCount(duration)
	if err != nil {
		return nil, err
	}
	if err := g.validateFrequency(f1); err != nil {
		return nil, err
	}
	if err := g.validateFrequency(f2); err != nil {
		return nil, err
	}

	stim := g.newStimulus(fmt.Sprintf("dual-tone-%.0f+%.0fHz", f1, f2), n)

	step1 := 2 * math.Pi * f1 / g.cfg.SampleRate
	step2 := 2 * math.Pi * f2 / g.cfg.SampleRate
	for i := range stim.Data[0] {
		fi := float64(i)
		stim.Data[0][i] = amplitude * (math.Sin(step1*fi) + math.Sin(step2*fi))
	}
	duplicateChannels(stim.Data)
	return stim, nil
}

// IndependentStereoTone generates a distinct sine per stereo channel, used
// for channel-balance and crosstalk tests. The generator must be configured
// with at least two channels.
func (g *Generator) IndependentStereoTone(fL, fR, amplitude, duration float64) (*Stimulus, error) {
	if g.channels < 2 {
		return nil, fmt.Errorf("independent stereo tone requires >= 2 channels: %d", g.channels)
	}

	n, err := g.sampleCount(duration)
	if err != nil {
		return nil, err
	}
	if err := g.validateFrequency(fL); err != nil {
		return nil, err
	}
	if err := g.validateFrequency(fR); err != nil {
		return nil, err
	}

	stim := g.newStimulus(fmt.Sprintf("stereo-tone-%.0f/%.0fHz", fL, fR), n)
	fillSine(stim.Data[0], fL, amplitude, g.cfg.SampleRate)
	fillSine(stim.Data[1], fR, amplitude, g.cfg.SampleRate)
	for ch := 2; ch < len(stim.Data); ch++ {
		copy(stim.Data[ch], stim.Data[0])
	}
	return stim, nil
}

// ExponentialDecay generates a sine at fc under an exponential envelope that
// decays 60 dB over rt60 seconds. Used to validate reverberation-time
// estimators against a known decay constant.
func (g *Generator) ExponentialDecay(fc, rt60, duration float64) (*Stimulus, error) {
	n, err := g.sampleCount(duration)
	if err != nil {
		return nil, err
	}
	if err := g.validateFrequency(fc); err != nil {
		return nil, err
	}
	if rt60 <= 0 {
		return nil, fmt.Errorf("decay rt60 must be > 0: %f", rt60)
	}

	stim := g.newStimulus(fmt.Sprintf("decay-%.2fs", rt60), n)

	// 60 dB amplitude decay corresponds to a factor of 1000: ln(1000)/rt60.
	decay := math.Log(1000) / rt60
	step := 2 * math.Pi * fc / g.cfg.SampleRate
	for i := range stim.Data[0] {
		t := float64(i) / g.cfg.SampleRate
		stim.Data[0][i] = math.Exp(-decay*t) * math.Sin(step*float64(i))
	}
	duplicateChannels(stim.Data)
	return stim, nil
}

func (g *Generator) newStimulus(label string, samples int) *Stimulus {
	return &Stimulus{
		Data:       buffer.NewBlock(g.channels, samples).Data(),
		SampleRate: g.cfg.SampleRate,
		Label:      label,
		Seed:       g.seed,
	}
}

func (g *Generator) sampleCount(duration float64) (int, error) {
	if g.cfg.SampleRate <= 0 {
		return 0, fmt.Errorf("sample rate must be > 0: %f", g.cfg.SampleRate)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("duration must be > 0: %f", duration)
	}

	n := int(math.Round(duration * g.cfg.SampleRate))
	if n <= 0 {
		n = 1
	}
	return n, nil
}

func (g *Generator) validateFrequency(freqHz float64) error {
	if freqHz <= 0 || freqHz >= g.cfg.SampleRate/2 {
		return fmt.Errorf("%w: %f Hz at %.0f Hz sample rate", ErrFrequencyRange, freqHz, g.cfg.SampleRate)
	}
	return nil
}

func fillSine(dst []float64, freqHz, amplitude, sampleRate float64) {
	step := 2 * math.Pi * freqHz / sampleRate
	for i := range dst {
		dst[i] = amplitude * math.Sin(step*float64(i))
	}
}

func duplicateChannels(data [][]float64) {
	for ch := 1; ch < len(data); ch++ {
		copy(data[ch], data[0])
	}
}
