// Package periodicity detects cyclic behavior in engine output: LFO-style
// amplitude modulation and dominant pitch.
package periodicity

import (
	"errors"
	"math"

	"github.com/cwbudde/algo-verify/dsp/conv"
)

const (
	envelopeWindow = 256
	envelopeHop    = 64
	// Lags below this many hops are rejected as spurious near-zero-lag
	// correlation mass.
	minEnvelopeLag = 2

	pitchMinHz = 50.0
	pitchMaxHz = 1000.0

	// A candidate needs at least this normalized correlation to count as
	// detected.
	confidenceGate = 0.5
)

// ErrSignalTooShort is returned when the input cannot fill the analysis
// windows.
var ErrSignalTooShort = errors.New("periodicity: signal too short")

// Result is the outcome of one periodicity probe. RateHz carries the
// modulation rate, FrequencyHz the pitch, depending on which probe
// produced the result.
type Result struct {
	Detected    bool
	RateHz      float64
	FrequencyHz float64
	Confidence  float64
}

// ModulationRate estimates the rate of amplitude modulation by
// autocorrelating the short-time RMS envelope. Rates between roughly
// 0.3 Hz and 50 Hz are detectable with the default window and hop.
func ModulationRate(signal []float64, sampleRate float64) (Result, error) {
	if sampleRate <= 0 {
		return Result{}, errors.New("periodicity: sample rate must be > 0")
	}

	if len(signal) < envelopeWindow*4 {
		return Result{}, ErrSignalTooShort
	}

	envelope := rmsEnvelope(signal)

	// Remove DC so the constant carrier level does not dominate the
	// autocorrelation.
	var mean float64
	for _, v := range envelope {
		mean += v
	}
	mean /= float64(len(envelope))

	var variance float64
	for i := range envelope {
		envelope[i] -= mean
		variance += envelope[i] * envelope[i]
	}
	variance /= float64(len(envelope))

	// A steady carrier shows sub-percent envelope ripple; treat it as
	// unmodulated rather than chasing that ripple's periodicity.
	if mean <= 0 || math.Sqrt(variance)/mean < 0.01 {
		return Result{}, nil
	}

	corr, err := conv.AutoCorrelate(envelope)
	if err != nil {
		return Result{}, err
	}

	zeroLagIdx := len(envelope) - 1
	zeroLag := corr[zeroLagIdx]
	if zeroLag <= 0 {
		// Flat envelope: no modulation at all.
		return Result{}, nil
	}

	// First local maximum past the minimum lag with correlation above
	// half the zero-lag value.
	positive := corr[zeroLagIdx:]
	for lag := minEnvelopeLag; lag < len(positive)-1; lag++ {
		v := positive[lag]
		if v < confidenceGate*zeroLag {
			continue
		}
		if v >= positive[lag-1] && v >= positive[lag+1] {
			return Result{
				Detected:   true,
				RateHz:     sampleRate / (envelopeHop * float64(lag)),
				Confidence: v / zeroLag,
			}, nil
		}
	}

	return Result{}, nil
}

// PitchEstimate finds the dominant pitch between 50 Hz and 1000 Hz by
// autocorrelation. The candidate lag must win more than half the zero-lag
// correlation to be reported.
func PitchEstimate(signal []float64, sampleRate float64) (Result, error) {
	if sampleRate <= 0 {
		return Result{}, errors.New("periodicity: sample rate must be > 0")
	}

	minLag := int(sampleRate / pitchMaxHz)
	maxLag := int(sampleRate / pitchMinHz)

	if len(signal) < 2*maxLag {
		return Result{}, ErrSignalTooShort
	}

	corr, err := conv.AutoCorrelateNormalized(signal)
	if err != nil {
		return Result{}, err
	}

	positive := corr[len(signal)-1:]
	if maxLag >= len(positive) {
		maxLag = len(positive) - 1
	}

	bestLag := 0
	bestVal := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		if positive[lag] > bestVal {
			bestVal = positive[lag]
			bestLag = lag
		}
	}

	if bestLag == 0 || bestVal <= confidenceGate {
		return Result{Confidence: bestVal}, nil
	}

	return Result{
		Detected:    true,
		FrequencyHz: sampleRate / float64(bestLag),
		Confidence:  bestVal,
	}, nil
}

// rmsEnvelope computes the short-time RMS of the signal with the package
// window and hop.
func rmsEnvelope(signal []float64) []float64 {
	frames := 1 + (len(signal)-envelopeWindow)/envelopeHop
	envelope := make([]float64, frames)

	for f := range envelope {
		start := f * envelopeHop

		var sum float64
		for _, x := range signal[start : start+envelopeWindow] {
			sum += x * x
		}

		envelope[f] = math.Sqrt(sum / envelopeWindow)
	}

	return envelope
}
