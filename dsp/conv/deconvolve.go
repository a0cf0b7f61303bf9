package conv

import (
	"fmt"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"
)

// defaultEpsilon regularizes spectral division against near-zero kernel bins.
const defaultEpsilon = 1e-6

// Deconvolve recovers an estimate of the original signal from a convolved
// result. Given y = conv(x, h), this attempts to recover x from y and h by
// regularized spectral division:
//
//	X = Y * conj(H) / (|H|^2 + epsilon)
//
// Deconvolution is ill-posed where the kernel spectrum has near-zeros;
// epsilon trades recovery accuracy against noise amplification. Pass
// epsilon <= 0 for the default.
func Deconvolve(signal, kernel []float64, epsilon float64) ([]float64, error) {
	if len(signal) == 0 {
		return nil, ErrEmptyInput
	}
	if len(kernel) == 0 {
		return nil, ErrEmptyKernel
	}
	if epsilon <= 0 {
		epsilon = defaultEpsilon
	}

	outputLen := len(signal) - len(kernel) + 1
	if outputLen <= 0 {
		outputLen = len(signal)
	}

	fftSize := nextPowerOf2(len(signal))

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("conv: failed to create FFT plan: %w", err)
	}

	signalFreq, err := forwardPadded(plan, signal, fftSize)
	if err != nil {
		return nil, err
	}

	kernelFreq, err := forwardPadded(plan, kernel, fftSize)
	if err != nil {
		return nil, err
	}

	for i := range signalFreq {
		hConj := cmplx.Conj(kernelFreq[i])
		hMagSq := real(kernelFreq[i])*real(kernelFreq[i]) + imag(kernelFreq[i])*imag(kernelFreq[i])
		signalFreq[i] = signalFreq[i] * hConj / complex(hMagSq+epsilon, 0)
	}

	resultTime := make([]complex128, fftSize)
	if err := plan.Inverse(resultTime, signalFreq); err != nil {
		return nil, fmt.Errorf("conv: inverse FFT failed: %w", err)
	}

	result := make([]float64, outputLen)
	for i := range result {
		result[i] = real(resultTime[i])
	}

	return result, nil
}

// InverseFilter creates an inverse filter from a kernel. The inverse filter
// h_inv satisfies conv(h, h_inv) ~ delta, useful for undoing the effect of a
// known filter.
func InverseFilter(kernel []float64, length int, epsilon float64) ([]float64, error) {
	if len(kernel) == 0 {
		return nil, ErrEmptyKernel
	}
	if length <= 0 {
		return nil, fmt.Errorf("conv: inverse filter length must be > 0: %d", length)
	}
	if epsilon <= 0 {
		epsilon = defaultEpsilon
	}

	fftSize := nextPowerOf2(length)
	if k := nextPowerOf2(len(kernel)); k > fftSize {
		fftSize = k
	}

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("conv: failed to create FFT plan: %w", err)
	}

	kernelFreq, err := forwardPadded(plan, kernel, fftSize)
	if err != nil {
		return nil, err
	}

	for i := range kernelFreq {
		hConj := cmplx.Conj(kernelFreq[i])
		hMagSq := real(kernelFreq[i])*real(kernelFreq[i]) + imag(kernelFreq[i])*imag(kernelFreq[i])
		kernelFreq[i] = hConj / complex(hMagSq+epsilon, 0)
	}

	invTime := make([]complex128, fftSize)
	if err := plan.Inverse(invTime, kernelFreq); err != nil {
		return nil, fmt.Errorf("conv: inverse FFT failed: %w", err)
	}

	result := make([]float64, length)
	for i := range result {
		result[i] = real(invTime[i])
	}

	return result, nil
}
