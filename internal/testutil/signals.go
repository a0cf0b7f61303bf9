// Package testutil provides deterministic reference signals and tolerance
// checks shared by the measurement tests.
package testutil

import (
	"math"
	"math/rand"
)

// Tone returns one channel of a phase-zero reference sine.
func Tone(freqHz, sampleRate, amplitude float64, frames int) []float64 {
	out := make([]float64, frames)
	step := 2 * math.Pi * freqHz / sampleRate
	for i := range out {
		out[i] = amplitude * math.Sin(step*float64(i))
	}
	return out
}

// StereoTone returns the reference sine as a two-channel block in the
// channels-by-frames layout the harness uses. The channels do not share
// backing storage.
func StereoTone(freqHz, sampleRate, amplitude float64, frames int) [][]float64 {
	left := Tone(freqHz, sampleRate, amplitude, frames)
	right := make([]float64, frames)
	copy(right, left)
	return [][]float64{left, right}
}

// SeededNoise returns one channel of uniform white noise. The same seed
// always produces the same sequence.
func SeededNoise(seed int64, amplitude float64, frames int) []float64 {
	out := make([]float64, frames)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}
	return out
}

// Impulse returns a unit impulse at frame pos. An out-of-range pos yields
// silence.
func Impulse(frames, pos int) []float64 {
	out := make([]float64, frames)
	if pos >= 0 && pos < frames {
		out[pos] = 1
	}
	return out
}
