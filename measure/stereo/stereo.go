// Package stereo measures the spatial behavior of a two-channel signal:
// inter-channel correlation, stereo width, mid/side energy ratio, mono
// downmix compatibility, and channel balance.
package stereo

import (
	"fmt"
	"math"

	stattime "github.com/cwbudde/algo-verify/stats/time"
)

const (
	// Floor for the mid/side ratio when the side channel carries no
	// energy.
	midSideFloorDB = -120.0

	// Balance outside this window (about 3 dB either way) is flagged.
	balanceLow  = 0.7
	balanceHigh = 1.43
)

// Metrics describes the stereo field of one left/right pair.
type Metrics struct {
	// Correlation is the Pearson correlation between the channels:
	// +1 dual mono, 0 uncorrelated, -1 inverted polarity.
	Correlation float64

	// Width is 1 - |Correlation|: 0 for mono-like material, 1 for fully
	// decorrelated channels.
	Width float64

	// MidSideRatioDB is the side-to-mid energy ratio in dB, floored at
	// -120 dB for mono material.
	MidSideRatioDB float64

	// MonoCompatibility is the energy surviving an L+R downmix relative
	// to the incoherent sum, in [0, 1]. Values near 0 indicate phase
	// cancellation.
	MonoCompatibility float64

	// Balance is RMS(left)/RMS(right).
	Balance float64

	// BalanceFlagged marks a level offset beyond roughly 3 dB.
	BalanceFlagged bool
}

// Analyze computes stereo field metrics for a left/right pair. The
// channels must be the same non-zero length.
func Analyze(left, right []float64) (Metrics, error) {
	if len(left) == 0 || len(right) == 0 {
		return Metrics{}, fmt.Errorf("stereo: empty channel")
	}
	if len(left) != len(right) {
		return Metrics{}, fmt.Errorf("stereo: channel length mismatch: %d vs %d",
			len(left), len(right))
	}

	rmsL := stattime.RMS(left)
	rmsR := stattime.RMS(right)

	m := Metrics{
		Correlation:       correlation(left, right, rmsL, rmsR),
		MidSideRatioDB:    midSideRatioDB(left, right),
		MonoCompatibility: monoCompatibility(left, right),
	}
	m.Width = 1 - math.Abs(m.Correlation)
	m.Balance, m.BalanceFlagged = balance(rmsL, rmsR)

	return m, nil
}

// correlation computes the Pearson correlation of the two channels.
// Silence is treated specially so the caller never sees NaN: two silent
// channels agree perfectly, a single silent channel carries no
// relationship at all.
func correlation(left, right []float64, rmsL, rmsR float64) float64 {
	silentL := rmsL == 0
	silentR := rmsR == 0

	switch {
	case silentL && silentR:
		return 1.0
	case silentL || silentR:
		return 0.0
	}

	n := float64(len(left))

	var meanL, meanR float64
	for i := range left {
		meanL += left[i]
		meanR += right[i]
	}
	meanL /= n
	meanR /= n

	var cross, normL, normR float64
	for i := range left {
		dl := left[i] - meanL
		dr := right[i] - meanR
		cross += dl * dr
		normL += dl * dl
		normR += dr * dr
	}

	denom := math.Sqrt(normL * normR)
	if denom == 0 {
		// Both channels are pure DC. Equal offsets are still dual mono.
		if meanL == meanR {
			return 1.0
		}
		return 0.0
	}

	return cross / denom
}

// midSideRatioDB decomposes the pair into mid=(L+R)/2 and side=(L-R)/2
// and returns the side-to-mid energy ratio in dB.
func midSideRatioDB(left, right []float64) float64 {
	var midSq, sideSq float64
	for i := range left {
		mid := 0.5 * (left[i] + right[i])
		side := 0.5 * (left[i] - right[i])
		midSq += mid * mid
		sideSq += side * side
	}

	if sideSq == 0 {
		return midSideFloorDB
	}
	if midSq == 0 {
		// All side, no mid: out-of-phase dual mono.
		return -midSideFloorDB
	}

	db := 10 * math.Log10(sideSq/midSq)
	return math.Max(db, midSideFloorDB)
}

// monoCompatibility relates the coherent downmix level to the level an
// incoherent sum would reach. In-phase material scores 1, anti-phase
// material collapses toward 0.
func monoCompatibility(left, right []float64) float64 {
	var sumSq, refSq float64
	for i := range left {
		s := left[i] + right[i]
		r := math.Abs(left[i]) + math.Abs(right[i])
		sumSq += s * s
		refSq += r * r
	}

	if refSq == 0 {
		// Silence downmixes trivially.
		return 1.0
	}

	return math.Sqrt(sumSq / refSq)
}

// balance returns the left/right RMS ratio and whether it falls outside
// the accepted window.
func balance(rmsL, rmsR float64) (float64, bool) {
	switch {
	case rmsL == 0 && rmsR == 0:
		return 1.0, false
	case rmsR == 0:
		return math.Inf(1), true
	case rmsL == 0:
		return 0, true
	}

	ratio := rmsL / rmsR
	return ratio, ratio < balanceLow || ratio > balanceHigh
}
