// Package engine defines the capability interface an audio processing
// engine must implement to be validated, plus a registry of engine
// factories keyed by name.
package engine

// Engine is the engine-under-test contract. Implementations process audio
// in place, block by block, and expose a flat numeric parameter surface.
//
// Process must not retain the block slices past the call. Parameter values
// are normalized to [0, 1]; the engine maps them onto its own ranges.
type Engine interface {
	// Prepare is called once before processing with the session sample rate
	// and the maximum block length that will ever be passed to Process.
	Prepare(sampleRate float64, maxBlock int) error

	// Reset returns the engine to its initial state (cleared delay lines,
	// envelopes, accumulators) without reallocating.
	Reset()

	// NumParameters returns the number of automatable parameters.
	NumParameters() int

	// ParameterName returns a human-readable name for parameter i.
	ParameterName(i int) string

	// UpdateParameters applies normalized values keyed by parameter index.
	// Indices outside [0, NumParameters) are rejected.
	UpdateParameters(params map[int]float64) error

	// Process filters one block in place. block is channels x frames.
	Process(block [][]float64)
}

// Factory builds one fresh Engine instance.
type Factory func() (Engine, error)
