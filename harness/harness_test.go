package harness

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cwbudde/algo-verify/dsp/buffer"
	"github.com/cwbudde/algo-verify/dsp/core"
	"github.com/cwbudde/algo-verify/dsp/signal"
	"github.com/cwbudde/algo-verify/engine"
	"github.com/cwbudde/algo-verify/engine/enginetest"
)

func testStimulus(t *testing.T) *signal.Stimulus {
	t.Helper()

	stim, err := signal.NewGenerator(core.WithSampleRate(48000)).Sine(440, 0.5, 0.1)
	if err != nil {
		t.Fatalf("stimulus error: %v", err)
	}

	return stim
}

func TestRunBlockwiseIdentity(t *testing.T) {
	stim := testStimulus(t)

	e := enginetest.NewBypass()
	if err := e.Prepare(48000, 512); err != nil {
		t.Fatalf("prepare error: %v", err)
	}

	// 4800 samples with block 512 ends in a short 192-sample chunk.
	out, err := RunBlockwise(e, stim, 512)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}

	if out.Samples() != stim.Samples() {
		t.Fatalf("output length mismatch: got %d want %d", out.Samples(), stim.Samples())
	}

	for ch := 0; ch < stim.Channels(); ch++ {
		for i := range stim.Channel(ch) {
			if out.Channel(ch)[i] != stim.Channel(ch)[i] {
				t.Fatalf("bypass output differs at channel %d, sample %d", ch, i)
			}
		}
	}
}

func TestRunBlockwisePreservesStimulus(t *testing.T) {
	stim := testStimulus(t)
	original := stim.Channel(0)[100]

	e := enginetest.NewGain()
	if err := e.Prepare(48000, 512); err != nil {
		t.Fatalf("prepare error: %v", err)
	}
	if err := e.UpdateParameters(map[int]float64{0: 1.0}); err != nil {
		t.Fatalf("update error: %v", err)
	}

	if _, err := RunBlockwise(e, stim, 512); err != nil {
		t.Fatalf("run error: %v", err)
	}

	if stim.Channel(0)[100] != original {
		t.Fatalf("harness mutated the stimulus")
	}
}

func TestRunBlockwiseRejectsBadBlockSize(t *testing.T) {
	stim := testStimulus(t)
	e := enginetest.NewBypass()

	for _, size := range []int{0, -1, 1 << 20} {
		if _, err := RunBlockwise(e, stim, size); !errors.Is(err, ErrBlockSize) {
			t.Fatalf("block size %d: expected ErrBlockSize, got %v", size, err)
		}
	}
}

func TestRunBlockwiseDetectsNaN(t *testing.T) {
	stim := testStimulus(t)

	e := enginetest.NewBroken(1000)
	if err := e.Prepare(48000, 512); err != nil {
		t.Fatalf("prepare error: %v", err)
	}

	out, err := RunBlockwise(e, stim, 512)
	if KindOf(err) != FailureNumericInstability {
		t.Fatalf("expected numeric instability, got %v", err)
	}

	// Processing must have stopped after the poisoned block: the block
	// containing sample 1000 is the second one, so samples past 1024
	// remain untouched stimulus content.
	if math.IsNaN(out.Channel(0)[2000]) {
		t.Fatalf("harness kept feeding blocks after detecting NaN")
	}
}

func TestRunBlockwiseRecoversPanic(t *testing.T) {
	stim := testStimulus(t)

	e := enginetest.NewFaulty(2)
	if err := e.Prepare(48000, 512); err != nil {
		t.Fatalf("prepare error: %v", err)
	}

	_, err := RunBlockwise(e, stim, 512)
	if KindOf(err) != FailureEngineFault {
		t.Fatalf("expected engine fault, got %v", err)
	}

	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("error is not a *Failure: %v", err)
	}
	if f.Message == "" {
		t.Fatalf("panic message lost")
	}
}

func TestRunUnit(t *testing.T) {
	stim := testStimulus(t)

	factory := func() (engine.Engine, error) {
		return enginetest.NewGain(), nil
	}

	cfg := Config{SampleRate: 48000, BlockSize: 512}
	params := map[int]float64{0: 1.0}

	out, err := RunUnit(factory, cfg, stim, params)
	if err != nil {
		t.Fatalf("unit error: %v", err)
	}

	// +24 dB on a 0.5 amplitude sine.
	wantPeak := 0.5 * math.Pow(10, 24.0/20)
	peak := 0.0
	for _, x := range out.Channel(0) {
		if a := math.Abs(x); a > peak {
			peak = a
		}
	}
	if math.Abs(peak-wantPeak) > 1e-6 {
		t.Fatalf("peak mismatch: got %v want %v", peak, wantPeak)
	}
}

func TestRunUnitClampsParameters(t *testing.T) {
	stim := testStimulus(t)

	factory := func() (engine.Engine, error) {
		return enginetest.NewGain(), nil
	}

	cfg := Config{SampleRate: 48000, BlockSize: 512}

	// An out-of-range value must be clamped to 1.0, not rejected.
	out, err := RunUnit(factory, cfg, stim, map[int]float64{0: 3.5})
	if err != nil {
		t.Fatalf("unit error: %v", err)
	}

	wantPeak := 0.5 * math.Pow(10, 24.0/20)
	peak := 0.0
	for _, x := range out.Channel(0) {
		if a := math.Abs(x); a > peak {
			peak = a
		}
	}
	if math.Abs(peak-wantPeak) > 1e-6 {
		t.Fatalf("peak mismatch: got %v want %v", peak, wantPeak)
	}
}

func TestRunBlockwiseBlockSizeInvariance(t *testing.T) {
	stim := testStimulus(t)

	var ref *ProcessedSignal
	for _, size := range []int{1, 7, 512, 4096, 16384} {
		e := enginetest.NewGain()
		if err := e.Prepare(48000, size); err != nil {
			t.Fatalf("prepare error at size %d: %v", size, err)
		}
		if err := e.UpdateParameters(map[int]float64{0: 0.75}); err != nil {
			t.Fatalf("update error: %v", err)
		}

		out, err := RunBlockwise(e, stim, size)
		if err != nil {
			t.Fatalf("run error at size %d: %v", size, err)
		}

		if ref == nil {
			ref = out
			continue
		}

		for ch := 0; ch < ref.Channels(); ch++ {
			for i := range ref.Channel(ch) {
				if out.Channel(ch)[i] != ref.Channel(ch)[i] {
					t.Fatalf("block size %d diverges at channel %d, sample %d", size, ch, i)
				}
			}
		}
	}
}

func TestRunUnitDeterministic(t *testing.T) {
	stim := testStimulus(t)

	factory := func() (engine.Engine, error) {
		return enginetest.NewFeedbackEcho()
	}

	cfg := Config{SampleRate: 48000, BlockSize: 512}
	params := map[int]float64{0: 0.2, 1: 0.6}

	a, err := RunUnit(factory, cfg, stim, params)
	if err != nil {
		t.Fatalf("first unit error: %v", err)
	}
	b, err := RunUnit(factory, cfg, stim, params)
	if err != nil {
		t.Fatalf("second unit error: %v", err)
	}

	for ch := 0; ch < a.Channels(); ch++ {
		for i := range a.Channel(ch) {
			if a.Channel(ch)[i] != b.Channel(ch)[i] {
				t.Fatalf("repeated unit diverges at channel %d, sample %d", ch, i)
			}
		}
	}
}

func TestRunUnitPooled(t *testing.T) {
	stim := testStimulus(t)

	factory := func() (engine.Engine, error) {
		return enginetest.NewBypass(), nil
	}

	pool := buffer.NewPool()
	cfg := Config{SampleRate: 48000, BlockSize: 512, Pool: pool}

	out, err := RunUnit(factory, cfg, stim, nil)
	if err != nil {
		t.Fatalf("unit error: %v", err)
	}

	if out.Samples() != stim.Samples() {
		t.Fatalf("output length mismatch: got %d want %d", out.Samples(), stim.Samples())
	}
	if out.Channel(0)[100] != stim.Channel(0)[100] {
		t.Fatalf("pooled bypass output differs at sample 100")
	}

	out.Release()
	if out.Data != nil {
		t.Fatalf("Release kept the data reference alive")
	}

	// A second pooled run must reuse the buffer without stale content.
	out2, err := RunUnit(factory, cfg, stim, nil)
	if err != nil {
		t.Fatalf("second unit error: %v", err)
	}
	defer out2.Release()

	if out2.Channel(1)[200] != stim.Channel(1)[200] {
		t.Fatalf("recycled buffer carried stale content")
	}
}

func TestReleaseUnpooled(t *testing.T) {
	stim := testStimulus(t)

	e := enginetest.NewBypass()
	if err := e.Prepare(48000, 512); err != nil {
		t.Fatalf("prepare error: %v", err)
	}

	out, err := RunBlockwise(e, stim, 512)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}

	out.Release()
	if out.Data == nil {
		t.Fatalf("Release on an unpooled signal must keep Data")
	}
}

func TestRunBlockwiseTimeout(t *testing.T) {
	stim := testStimulus(t)

	e := enginetest.NewStalling()
	if err := e.Prepare(48000, 512); err != nil {
		t.Fatalf("prepare error: %v", err)
	}

	start := time.Now()
	_, err := RunBlockwiseTimeout(e, stim, 512, 100*time.Millisecond)

	if KindOf(err) != FailureTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout did not bound the run: %v", elapsed)
	}

	// A zero timeout runs inline.
	fast := enginetest.NewBypass()
	if err := fast.Prepare(48000, 512); err != nil {
		t.Fatalf("prepare error: %v", err)
	}
	if _, err := RunBlockwiseTimeout(fast, stim, 512, 0); err != nil {
		t.Fatalf("run error: %v", err)
	}
}

func TestRunUnitTimeout(t *testing.T) {
	stim := testStimulus(t)

	factory := func() (engine.Engine, error) {
		return enginetest.NewStalling(), nil
	}

	cfg := Config{SampleRate: 48000, BlockSize: 512, Timeout: 100 * time.Millisecond}

	start := time.Now()
	_, err := RunUnit(factory, cfg, stim, nil)

	if KindOf(err) != FailureTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout did not bound the unit: %v", elapsed)
	}
}

func TestRunUnitCreationFailure(t *testing.T) {
	stim := testStimulus(t)

	factory := func() (engine.Engine, error) {
		return nil, errors.New("no such device")
	}

	cfg := Config{SampleRate: 48000, BlockSize: 512}

	_, err := RunUnit(factory, cfg, stim, nil)
	if KindOf(err) != FailureCreation {
		t.Fatalf("expected creation failure, got %v", err)
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(nil); got != FailureNone {
		t.Fatalf("KindOf(nil) mismatch: got %v", got)
	}
	if got := KindOf(errors.New("plain")); got != FailureNone {
		t.Fatalf("KindOf(plain) mismatch: got %v", got)
	}

	err := NewFailure(FailureSilentOutput, "rms %f dBFS", -97.0)
	if got := KindOf(err); got != FailureSilentOutput {
		t.Fatalf("KindOf mismatch: got %v want %v", got, FailureSilentOutput)
	}
}
