package signal

import (
	"fmt"
	"math"
)

// Oscillator is a phase-continuous sine streamer. Successive Fill calls
// continue the waveform without phase resets, so a long-running consumer
// (the endurance monitor) never feeds a repeating block.
type Oscillator struct {
	phase     float64
	step      float64
	amplitude float64
}

// NewOscillator creates a sine oscillator at the given frequency.
func NewOscillator(freqHz, amplitude, sampleRate float64) (*Oscillator, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("oscillator sample rate must be > 0: %f", sampleRate)
	}
	if freqHz <= 0 || freqHz >= sampleRate/2 {
		return nil, fmt.Errorf("%w: %f Hz at %.0f Hz sample rate", ErrFrequencyRange, freqHz, sampleRate)
	}

	return &Oscillator{
		step:      2 * math.Pi * freqHz / sampleRate,
		amplitude: amplitude,
	}, nil
}

// Fill writes the next block of the waveform into every channel of block.
// All channels receive identical content.
func (o *Oscillator) Fill(block [][]float64) {
	if len(block) == 0 {
		return
	}

	first := block[0]
	phase := o.phase
	for i := range first {
		first[i] = o.amplitude * math.Sin(phase)
		phase += o.step
		if phase >= 2*math.Pi {
			phase -= 2 * math.Pi
		}
	}
	o.phase = phase

	for ch := 1; ch < len(block); ch++ {
		copy(block[ch], first)
	}
}

// Reset returns the oscillator to phase zero.
func (o *Oscillator) Reset() {
	o.phase = 0
}
