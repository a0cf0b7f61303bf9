package harness

import (
	"errors"
	"fmt"
	"time"

	"github.com/cwbudde/algo-verify/dsp/buffer"
	"github.com/cwbudde/algo-verify/dsp/core"
	"github.com/cwbudde/algo-verify/dsp/signal"
	"github.com/cwbudde/algo-verify/engine"
)

const maxBlockSize = 1 << 16

// ErrBlockSize is returned for block sizes outside the supported range.
var ErrBlockSize = errors.New("harness: block size out of range")

// Config carries the per-unit run parameters.
type Config struct {
	SampleRate float64
	BlockSize  int
	// Timeout bounds the wall-clock time of one unit. Zero disables it.
	Timeout time.Duration
	// Pool, when set, supplies the working buffer for the run. The caller
	// must then Release the returned signal once done with its data.
	Pool *buffer.Pool
}

// ProcessedSignal is the engine output together with its provenance.
type ProcessedSignal struct {
	Data       [][]float64
	SampleRate float64
	BlockSize  int
	Stimulus   string
	Params     map[int]float64

	pool  *buffer.Pool
	block *buffer.Block
}

// Release returns pooled backing storage to the pool it came from. Data
// must not be used afterwards. On an unpooled signal Release is a no-op.
func (p *ProcessedSignal) Release() {
	if p.pool == nil {
		return
	}
	p.pool.Put(p.block)
	p.pool, p.block, p.Data = nil, nil, nil
}

// Channels returns the channel count of the output.
func (p *ProcessedSignal) Channels() int {
	return len(p.Data)
}

// Samples returns the per-channel sample count of the output.
func (p *ProcessedSignal) Samples() int {
	if len(p.Data) == 0 {
		return 0
	}
	return len(p.Data[0])
}

// Channel returns the sample slice for channel ch.
func (p *ProcessedSignal) Channel(ch int) []float64 {
	return p.Data[ch]
}

// RunBlockwiseTimeout runs RunBlockwise under a wall-clock budget. On
// expiry the processing goroutine is abandoned and a timeout failure is
// returned; a zero timeout runs inline.
func RunBlockwiseTimeout(e engine.Engine, stim *signal.Stimulus, blockSize int, timeout time.Duration) (*ProcessedSignal, error) {
	return withTimeout(timeout, func() (*ProcessedSignal, error) {
		return runBlockwise(e, stim, blockSize, nil)
	})
}

// RunBlockwise feeds the stimulus through the engine in blockSize chunks,
// in strict order, on a copy of the stimulus data. The final chunk may be
// shorter than blockSize. After every chunk the output is scanned for
// NaN/Inf; on the first hit processing stops and a numeric-instability
// failure is returned. A panic inside Process is recovered and returned as
// an engine-fault failure. In both cases the partially processed output is
// returned alongside the failure so the caller can inspect it.
func RunBlockwise(e engine.Engine, stim *signal.Stimulus, blockSize int) (*ProcessedSignal, error) {
	return runBlockwise(e, stim, blockSize, nil)
}

func runBlockwise(e engine.Engine, stim *signal.Stimulus, blockSize int, pool *buffer.Pool) (*ProcessedSignal, error) {
	if blockSize < 1 || blockSize > maxBlockSize {
		return nil, fmt.Errorf("%w: %d", ErrBlockSize, blockSize)
	}

	out := &ProcessedSignal{
		SampleRate: stim.SampleRate,
		BlockSize:  blockSize,
		Stimulus:   stim.Label,
	}

	if pool != nil {
		b := pool.Get(stim.Channels(), stim.Samples())
		b.CopyFrom(stim.Data)
		out.Data = b.Data()
		out.pool, out.block = pool, b
	} else {
		out.Data = stim.Clone().Data
	}

	total := stim.Samples()
	channels := stim.Channels()
	chunk := make([][]float64, channels)

	for offset := 0; offset < total; offset += blockSize {
		end := offset + blockSize
		if end > total {
			end = total
		}

		for ch := 0; ch < channels; ch++ {
			chunk[ch] = out.Data[ch][offset:end]
		}

		if err := processGuarded(e, chunk); err != nil {
			return out, err
		}

		if ch, frame := core.ScanNonFiniteBlock(chunk); ch >= 0 {
			return out, NewFailure(FailureNumericInstability,
				"non-finite sample at channel %d, sample %d", ch, offset+frame)
		}
	}

	return out, nil
}

// processGuarded calls Process with panic containment.
func processGuarded(e engine.Engine, block [][]float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewFailure(FailureEngineFault, "engine panic: %v", r)
		}
	}()

	e.Process(block)

	return nil
}

// RunUnit runs one complete measurement unit: build a fresh engine from the
// factory, prepare, reset, apply the parameter snapshot, then process the
// stimulus blockwise. The whole unit runs under cfg.Timeout; on expiry the
// unit goroutine is abandoned and a timeout failure is returned. The
// returned error, when non-nil, is always a *Failure.
func RunUnit(factory engine.Factory, cfg Config, stim *signal.Stimulus, params map[int]float64) (*ProcessedSignal, error) {
	e, err := factory()
	if err != nil {
		return nil, NewFailure(FailureCreation, "engine construction failed: %v", err)
	}

	run := func() (*ProcessedSignal, error) {
		if err := e.Prepare(stim.SampleRate, cfg.BlockSize); err != nil {
			return nil, NewFailure(FailureCreation, "engine prepare failed: %v", err)
		}

		e.Reset()

		if len(params) > 0 {
			clamped := make(map[int]float64, len(params))
			for idx, v := range params {
				clamped[idx] = core.Clamp(v, 0, 1)
			}

			if err := e.UpdateParameters(clamped); err != nil {
				return nil, NewFailure(FailureEngineFault, "parameter update failed: %v", err)
			}
		}

		out, err := runBlockwise(e, stim, cfg.BlockSize, cfg.Pool)
		if err != nil {
			if KindOf(err) == FailureNone {
				err = NewFailure(FailurePrecondition, "%v", err)
			}

			return out, err
		}

		out.Params = params

		return out, nil
	}

	return withTimeout(cfg.Timeout, run)
}

// withTimeout bounds run by the given wall-clock budget. A non-positive
// timeout calls run inline.
func withTimeout(timeout time.Duration, run func() (*ProcessedSignal, error)) (*ProcessedSignal, error) {
	if timeout <= 0 {
		return run()
	}

	type result struct {
		out *ProcessedSignal
		err error
	}

	done := make(chan result, 1)
	go func() {
		out, err := run()
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-time.After(timeout):
		// The goroutine keeps running on its own private engine and
		// buffers; abandoning it is safe.
		return nil, NewFailure(FailureTimeout, "unit exceeded %s budget", timeout)
	}
}
