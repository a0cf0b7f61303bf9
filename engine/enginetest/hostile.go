package enginetest

import (
	"math"
	"time"
)

// Runaway behaves as a mild gain until both of its parameters are pushed
// to the top of their range, at which point its gain grows a few percent
// per block without bound. Exercises the hard level ceiling.
type Runaway struct {
	base
	gain float64
}

// NewRunaway creates a runaway engine in its tame state.
func NewRunaway() *Runaway {
	return &Runaway{
		base: newBase([]string{"drive", "regen"}, []float64{0.5, 0.5}),
		gain: 1,
	}
}

// Reset restores unity gain along with the parameters.
func (r *Runaway) Reset() {
	r.base.Reset()
	r.gain = 1
}

func (r *Runaway) unstable() bool {
	return r.values[0] >= 0.999 && r.values[1] >= 0.999
}

// Process applies the accumulated gain, growing it per block when both
// parameters sit at the extreme.
func (r *Runaway) Process(block [][]float64) {
	if r.unstable() {
		r.gain *= 1.25
	}

	for _, ch := range block {
		for i := range ch {
			ch[i] *= r.gain
		}
	}
}

// Leaky passes audio through while retaining a fixed number of bytes per
// processed block, simulating an allocation leak the endurance monitor
// must catch.
type Leaky struct {
	base
	bytesPerBlock int
	retained      [][]byte
}

// NewLeaky creates a leaky engine retaining bytesPerBlock per Process call.
func NewLeaky(bytesPerBlock int) *Leaky {
	return &Leaky{
		base:          newBase(nil, nil),
		bytesPerBlock: bytesPerBlock,
	}
}

// Reset keeps the retained memory. That is the point.
func (l *Leaky) Reset() {
	l.base.Reset()
}

// Retained returns the number of leaked chunks so far.
func (l *Leaky) Retained() int {
	return len(l.retained)
}

// Process leaks one chunk and passes the audio through.
func (l *Leaky) Process([][]float64) {
	chunk := make([]byte, l.bytesPerBlock)
	// Touch the pages so the allocation is not optimized away.
	for i := 0; i < len(chunk); i += 512 {
		chunk[i] = byte(len(l.retained))
	}
	l.retained = append(l.retained, chunk)
}

// Faulty processes normally for a fixed number of blocks and then panics.
// Exercises the harness panic containment.
type Faulty struct {
	base
	panicAfter int
	blocks     int
}

// NewFaulty creates an engine that panics on block panicAfter+1.
func NewFaulty(panicAfter int) *Faulty {
	return &Faulty{
		base:       newBase(nil, nil),
		panicAfter: panicAfter,
	}
}

// Reset clears the block counter.
func (f *Faulty) Reset() {
	f.base.Reset()
	f.blocks = 0
}

// Process panics once the block budget is exceeded.
func (f *Faulty) Process([][]float64) {
	f.blocks++
	if f.blocks > f.panicAfter {
		panic("faulty engine: simulated fault")
	}
}

// Stalling sleeps on every block, exceeding any reasonable per-unit
// timeout. Exercises the harness timeout path.
type Stalling struct {
	base
	perBlock time.Duration
}

// NewStalling creates an engine sleeping 50 ms per block.
func NewStalling() *Stalling {
	return &Stalling{
		base:     newBase(nil, nil),
		perBlock: 50 * time.Millisecond,
	}
}

// Process sleeps and passes the audio through.
func (s *Stalling) Process([][]float64) {
	time.Sleep(s.perBlock)
}

// Broken passes audio through until a fixed sample count, then emits NaN.
// Exercises the non-finite output scan.
type Broken struct {
	base
	breakAfter int
	samples    int
}

// NewBroken creates an engine that poisons its output after breakAfter
// samples.
func NewBroken(breakAfter int) *Broken {
	return &Broken{
		base:       newBase(nil, nil),
		breakAfter: breakAfter,
	}
}

// Reset clears the sample counter.
func (b *Broken) Reset() {
	b.base.Reset()
	b.samples = 0
}

// Process injects NaN from the break point onward.
func (b *Broken) Process(block [][]float64) {
	if len(block) == 0 {
		return
	}

	for i := range block[0] {
		if b.samples+i >= b.breakAfter {
			for _, ch := range block {
				ch[i] = math.NaN()
			}
		}
	}

	b.samples += len(block[0])
}
