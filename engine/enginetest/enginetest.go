// Package enginetest provides small, deliberately behaved engines used to
// validate the measurement pipeline against known-good and known-bad
// processing. Every double registers itself under a "testdouble." name.
package enginetest

import (
	"fmt"

	"github.com/cwbudde/algo-verify/engine"
)

// base carries the shared parameter plumbing for the test doubles.
type base struct {
	sampleRate float64
	maxBlock   int
	names      []string
	values     []float64
	defaults   []float64
}

func newBase(names []string, defaults []float64) base {
	values := append([]float64(nil), defaults...)
	return base{
		names:    names,
		values:   values,
		defaults: defaults,
	}
}

func (b *base) Prepare(sampleRate float64, maxBlock int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be > 0: %f", sampleRate)
	}
	if maxBlock <= 0 {
		return fmt.Errorf("max block must be > 0: %d", maxBlock)
	}

	b.sampleRate = sampleRate
	b.maxBlock = maxBlock

	return nil
}

func (b *base) Reset() {
	copy(b.values, b.defaults)
}

func (b *base) NumParameters() int {
	return len(b.names)
}

func (b *base) ParameterName(i int) string {
	if i < 0 || i >= len(b.names) {
		return ""
	}
	return b.names[i]
}

func (b *base) UpdateParameters(params map[int]float64) error {
	for idx, v := range params {
		if idx < 0 || idx >= len(b.values) {
			return fmt.Errorf("parameter index out of range: %d", idx)
		}
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		b.values[idx] = v
	}

	return nil
}

func init() {
	engine.MustRegister("testdouble.bypass", func() (engine.Engine, error) { return NewBypass(), nil })
	engine.MustRegister("testdouble.gain", func() (engine.Engine, error) { return NewGain(), nil })
	engine.MustRegister("testdouble.hardclipper", func() (engine.Engine, error) { return NewHardClipper(), nil })
	engine.MustRegister("testdouble.feedbackecho", func() (engine.Engine, error) { return NewFeedbackEcho() })
	engine.MustRegister("testdouble.runaway", func() (engine.Engine, error) { return NewRunaway(), nil })
	engine.MustRegister("testdouble.tremolo", func() (engine.Engine, error) { return NewTremolo(), nil })
	engine.MustRegister("testdouble.leaky", func() (engine.Engine, error) { return NewLeaky(4096), nil })
	engine.MustRegister("testdouble.silent", func() (engine.Engine, error) { return NewSilent(), nil })
	engine.MustRegister("testdouble.faulty", func() (engine.Engine, error) { return NewFaulty(16), nil })
	engine.MustRegister("testdouble.stalling", func() (engine.Engine, error) { return NewStalling(), nil })
	engine.MustRegister("testdouble.broken", func() (engine.Engine, error) { return NewBroken(1024), nil })
	engine.MustRegister("testdouble.dcbias", func() (engine.Engine, error) { return NewDCBias(), nil })
}
