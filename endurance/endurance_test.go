package endurance

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/algo-verify/engine"
	"github.com/cwbudde/algo-verify/engine/enginetest"
	"github.com/cwbudde/algo-verify/harness"
)

// pacedEngine sleeps a caller-defined time per block and leaves the audio
// untouched.
type pacedEngine struct {
	perBlock func(n int) time.Duration
	blocks   int
}

func (p *pacedEngine) Prepare(float64, int) error             { return nil }
func (p *pacedEngine) Reset()                                 { p.blocks = 0 }
func (p *pacedEngine) NumParameters() int                     { return 0 }
func (p *pacedEngine) ParameterName(int) string               { return "" }
func (p *pacedEngine) UpdateParameters(map[int]float64) error { return nil }

func (p *pacedEngine) Process([][]float64) {
	time.Sleep(p.perBlock(p.blocks))
	p.blocks++
}

func TestRunCleanEngine(t *testing.T) {
	factory := func() (engine.Engine, error) {
		return &pacedEngine{perBlock: func(int) time.Duration { return time.Millisecond }}, nil
	}

	mon := NewMonitor(Config{
		Blocks:      60,
		SampleEvery: 10,
		ForceGC:     true,
	})

	summary, samples, err := mon.Run(context.Background(), factory)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}

	if !summary.Passed {
		t.Fatalf("clean engine failed endurance: %v", summary.Reasons)
	}
	if summary.BlocksProcessed != 60 {
		t.Fatalf("blocks mismatch: got %d want 60", summary.BlocksProcessed)
	}
	if summary.SampleCount != 6 || len(samples) != 6 {
		t.Fatalf("sample count mismatch: got %d/%d want 6", summary.SampleCount, len(samples))
	}
	for _, s := range samples {
		if s.MemoryBytes == 0 {
			t.Fatalf("probe returned zero memory")
		}
	}
}

func TestRunDetectsLeak(t *testing.T) {
	const (
		bytesPerBlock = 1 << 18
		blocks        = 120
	)

	factory := func() (engine.Engine, error) {
		return enginetest.NewLeaky(bytesPerBlock), nil
	}

	mon := NewMonitor(Config{
		Blocks:  blocks,
		ForceGC: true,
	})

	summary, _, err := mon.Run(context.Background(), factory)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}

	if summary.Passed {
		t.Fatalf("leaking engine passed endurance: %+v", summary)
	}
	if !reasonContains(summary.Reasons, "memory growth") {
		t.Fatalf("leak reason missing: %v", summary.Reasons)
	}

	// The engine retains exactly bytesPerBlock per block, so the measured
	// rate must recover the analytic rate over the same wall-clock span.
	want := float64(blocks) * bytesPerBlock / (1 << 20) / summary.Elapsed.Minutes()
	if summary.GrowthRateMBPerMin < 0.9*want || summary.GrowthRateMBPerMin > 1.1*want {
		t.Fatalf("growth rate off the analytic rate: got %.2f MB/min want %.2f +-10%%",
			summary.GrowthRateMBPerMin, want)
	}
}

func TestRunDetectsDegradation(t *testing.T) {
	factory := func() (engine.Engine, error) {
		return &pacedEngine{perBlock: func(n int) time.Duration {
			return time.Duration(n) * 50 * time.Microsecond
		}}, nil
	}

	mon := NewMonitor(Config{Blocks: 100})

	summary, _, err := mon.Run(context.Background(), factory)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}

	if summary.Passed {
		t.Fatalf("degrading engine passed endurance: %+v", summary)
	}
	if summary.DegradationPercent <= 20 {
		t.Fatalf("degradation mismatch: got %v%%", summary.DegradationPercent)
	}
	if !reasonContains(summary.Reasons, "degraded") {
		t.Fatalf("degradation reason missing: %v", summary.Reasons)
	}
}

func TestRunCountsDCBlocks(t *testing.T) {
	factory := func() (engine.Engine, error) {
		return enginetest.NewDCBias(), nil
	}

	mon := NewMonitor(Config{Blocks: 40})

	summary, _, err := mon.Run(context.Background(), factory)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}

	if summary.Passed {
		t.Fatalf("DC-biased engine passed endurance: %+v", summary)
	}
	if summary.DCOffsetBlocks != 40 {
		t.Fatalf("DC block count mismatch: got %d want 40", summary.DCOffsetBlocks)
	}
	if !reasonContains(summary.Reasons, "DC offset") {
		t.Fatalf("DC reason missing: %v", summary.Reasons)
	}
}

func TestRunAbortsOnNonFinite(t *testing.T) {
	factory := func() (engine.Engine, error) {
		return enginetest.NewBroken(1024), nil
	}

	mon := NewMonitor(Config{Blocks: 100})

	summary, _, err := mon.Run(context.Background(), factory)
	if err == nil {
		t.Fatalf("expected failure for non-finite output")
	}
	if harness.KindOf(err) != harness.FailureNumericInstability {
		t.Fatalf("failure kind mismatch: got %v", harness.KindOf(err))
	}
	if summary.Passed {
		t.Fatalf("summary must not pass after instability")
	}
	if summary.BlocksProcessed > 4 {
		t.Fatalf("run continued past the poisoned block: %d", summary.BlocksProcessed)
	}
}

func TestRunAbortsOnPanic(t *testing.T) {
	factory := func() (engine.Engine, error) {
		return enginetest.NewFaulty(3), nil
	}

	mon := NewMonitor(Config{Blocks: 100})

	_, _, err := mon.Run(context.Background(), factory)
	if err == nil {
		t.Fatalf("expected failure for engine panic")
	}
	if harness.KindOf(err) != harness.FailureEngineFault {
		t.Fatalf("failure kind mismatch: got %v", harness.KindOf(err))
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	factory := func() (engine.Engine, error) {
		return &pacedEngine{perBlock: func(int) time.Duration { return 0 }}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mon := NewMonitor(Config{Blocks: 1000})

	summary, _, err := mon.Run(ctx, factory)
	if err != nil {
		t.Fatalf("cancelled run must stop gracefully: %v", err)
	}
	if summary.BlocksProcessed != 0 {
		t.Fatalf("cancelled run processed %d blocks", summary.BlocksProcessed)
	}
}

func reasonContains(reasons []string, substr string) bool {
	for _, r := range reasons {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}
