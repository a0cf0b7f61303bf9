package enginetest

import (
	"math"

	"github.com/cwbudde/algo-verify/dsp/core"
)

// Bypass passes its input through untouched. The identity reference for
// every analyzer: flat response, zero distortion, perfect correlation.
type Bypass struct {
	base
}

// NewBypass creates a bypass engine.
func NewBypass() *Bypass {
	return &Bypass{base: newBase(nil, nil)}
}

// Process is a no-op.
func (*Bypass) Process([][]float64) {}

// Gain applies a static gain controlled by one parameter mapping linearly
// onto [-24 dB, +24 dB]. The default 0.5 is unity.
type Gain struct {
	base
}

// NewGain creates a gain engine at unity.
func NewGain() *Gain {
	return &Gain{base: newBase([]string{"gain"}, []float64{0.5})}
}

func (g *Gain) gainLinear() float64 {
	db := (g.values[0] - 0.5) * 48
	return core.DBToLinear(db)
}

// Process scales every sample by the configured gain.
func (g *Gain) Process(block [][]float64) {
	gain := g.gainLinear()
	for _, ch := range block {
		for i := range ch {
			ch[i] *= gain
		}
	}
}

// HardClipper clips samples at a threshold controlled by one parameter
// (0 maps to 0.05, 1 maps to 1.0). Output is not renormalized, so low
// thresholds produce strong odd-harmonic distortion at reduced level.
type HardClipper struct {
	base
}

// NewHardClipper creates a clipper with the threshold wide open.
func NewHardClipper() *HardClipper {
	return &HardClipper{base: newBase([]string{"threshold"}, []float64{1.0})}
}

func (c *HardClipper) threshold() float64 {
	return 0.05 + 0.95*c.values[0]
}

// Process clips each sample to [-threshold, threshold].
func (c *HardClipper) Process(block [][]float64) {
	t := c.threshold()
	for _, ch := range block {
		for i := range ch {
			if ch[i] > t {
				ch[i] = t
			} else if ch[i] < -t {
				ch[i] = -t
			}
		}
	}
}

// Silent discards its input and outputs digital silence.
type Silent struct {
	base
}

// NewSilent creates a silent engine.
func NewSilent() *Silent {
	return &Silent{base: newBase(nil, nil)}
}

// Process zeroes the block.
func (*Silent) Process(block [][]float64) {
	for _, ch := range block {
		for i := range ch {
			ch[i] = 0
		}
	}
}

// DCBias adds a constant offset controlled by one parameter mapping onto
// [0, 0.5]. The default adds 0.1.
type DCBias struct {
	base
}

// NewDCBias creates a DC bias engine.
func NewDCBias() *DCBias {
	return &DCBias{base: newBase([]string{"offset"}, []float64{0.2})}
}

// Process shifts every sample by the configured offset.
func (d *DCBias) Process(block [][]float64) {
	offset := 0.5 * d.values[0]
	for _, ch := range block {
		for i := range ch {
			ch[i] += offset
		}
	}
}

// Tremolo applies sinusoidal amplitude modulation. Parameter 0 maps the
// LFO rate onto [0.5 Hz, 20 Hz], parameter 1 is the modulation depth.
type Tremolo struct {
	base
	phase float64
}

// NewTremolo creates a tremolo at 4 Hz with moderate depth.
func NewTremolo() *Tremolo {
	return &Tremolo{base: newBase([]string{"rate", "depth"}, []float64{0.18, 0.8})}
}

// RateHz returns the current LFO rate.
func (t *Tremolo) RateHz() float64 {
	return 0.5 + 19.5*t.values[0]
}

// Reset clears the LFO phase along with the parameters.
func (t *Tremolo) Reset() {
	t.base.Reset()
	t.phase = 0
}

// Process multiplies the signal by a raised-sine LFO. All channels share
// one LFO so stereo correlation is preserved.
func (t *Tremolo) Process(block [][]float64) {
	if len(block) == 0 {
		return
	}

	depth := t.values[1]
	step := 2 * math.Pi * t.RateHz() / t.sampleRate
	phase := t.phase

	for i := range block[0] {
		mod := 1 - depth*0.5*(1+math.Sin(phase))
		for _, ch := range block {
			ch[i] *= mod
		}

		phase += step
		if phase >= 2*math.Pi {
			phase -= 2 * math.Pi
		}
	}

	t.phase = phase
}
