// Package frequency provides spectral statistics computed from one-sided
// magnitude spectra, used by the noise-floor and tone-purity measurements.
package frequency

import "math"

// Stats holds frequency-domain statistics computed from a magnitude spectrum.
type Stats struct {
	Centroid  float64 // spectral centroid in Hz
	Flatness  float64 // geometric mean / arithmetic mean, in [0, 1]
	Bandwidth float64 // -3 dB bandwidth around the peak bin, in Hz
	PeakBin   int
	PeakFreq  float64
	PeakMag   float64
}

// binFreq converts a bin index to its center frequency.
func binFreq(bin int, sampleRate float64, fftSize int) float64 {
	return float64(bin) * sampleRate / float64(fftSize)
}

// Calculate computes spectral statistics from a one-sided magnitude spectrum
// of length fftSize/2+1. sampleRate and fftSize describe the analysis that
// produced the spectrum.
func Calculate(magnitude []float64, sampleRate float64, fftSize int) Stats {
	if len(magnitude) == 0 || sampleRate <= 0 || fftSize <= 0 {
		return Stats{}
	}

	peak := peakBin(magnitude)

	return Stats{
		Centroid:  Centroid(magnitude, sampleRate, fftSize),
		Flatness:  Flatness(magnitude),
		Bandwidth: Bandwidth(magnitude, sampleRate, fftSize),
		PeakBin:   peak,
		PeakFreq:  binFreq(peak, sampleRate, fftSize),
		PeakMag:   magnitude[peak],
	}
}

// Centroid returns the magnitude-weighted mean frequency of the spectrum.
// Returns 0 for an all-zero spectrum.
func Centroid(magnitude []float64, sampleRate float64, fftSize int) float64 {
	var weightedSum, magSum float64

	for bin, m := range magnitude {
		weightedSum += binFreq(bin, sampleRate, fftSize) * m
		magSum += m
	}

	if magSum == 0 {
		return 0
	}

	return weightedSum / magSum
}

// Flatness returns the spectral flatness measure: the ratio of the geometric
// mean to the arithmetic mean of the magnitude spectrum. White noise
// approaches 1, a pure tone approaches 0. The DC bin is excluded.
func Flatness(magnitude []float64) float64 {
	if len(magnitude) < 2 {
		return 0
	}

	bins := magnitude[1:]

	var logSum, sum float64
	for _, m := range bins {
		// Clamp to avoid log(0); the floor is far below any audio noise floor.
		if m < 1e-30 {
			m = 1e-30
		}
		logSum += math.Log(m)
		sum += m
	}

	arithMean := sum / float64(len(bins))
	if arithMean == 0 {
		return 0
	}

	geoMean := math.Exp(logSum / float64(len(bins)))

	return geoMean / arithMean
}

// Bandwidth returns the -3 dB bandwidth around the spectral peak: the
// frequency span over which the magnitude stays above peak/sqrt(2).
func Bandwidth(magnitude []float64, sampleRate float64, fftSize int) float64 {
	peak := peakBin(magnitude)
	if magnitude[peak] == 0 {
		return 0
	}

	threshold := magnitude[peak] / math.Sqrt2

	lo := peak
	for lo > 0 && magnitude[lo-1] >= threshold {
		lo--
	}

	hi := peak
	for hi < len(magnitude)-1 && magnitude[hi+1] >= threshold {
		hi++
	}

	return binFreq(hi-lo+1, sampleRate, fftSize)
}

func peakBin(magnitude []float64) int {
	best := 0
	for bin, m := range magnitude {
		if m > magnitude[best] {
			best = bin
		}
	}

	return best
}
