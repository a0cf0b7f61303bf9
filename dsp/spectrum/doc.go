// Package spectrum provides FFT-adjacent spectrum-domain utilities.
//
// The package intentionally does not implement FFT itself. It operates on
// complex spectrum bins produced by external FFT backends and provides helpers
// for magnitude/power/phase extraction, phase wrapping, nearest-bin lookup,
// fractional-octave smoothing, and Goertzel single-tone tracking.
package spectrum
