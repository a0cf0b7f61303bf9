package stability

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/algo-verify/engine"
	"github.com/cwbudde/algo-verify/engine/enginetest"
)

var errDeliberate = errors.New("deliberate construction failure")

func TestSweepEnumeration(t *testing.T) {
	sweep := NewSweep(3)

	want := 1 + 7*3
	if sweep.Total() != want {
		t.Fatalf("total mismatch: got %d want %d", sweep.Total(), want)
	}

	first, ok := sweep.Next()
	if !ok || !first.Baseline() {
		t.Fatalf("first combination must be the baseline: %v ok=%v", first, ok)
	}

	count := 1
	seen := map[string]bool{}
	for {
		combo, ok := sweep.Next()
		if !ok {
			break
		}
		count++

		if len(combo.Settings) != 2 {
			t.Fatalf("combination %v has %d settings, want 2", combo, len(combo.Settings))
		}
		if combo.Settings[0].Index >= combo.Settings[1].Index {
			t.Fatalf("pair indices out of order: %v", combo)
		}
		if seen[combo.String()] {
			t.Fatalf("duplicate combination: %v", combo)
		}
		seen[combo.String()] = true
	}

	if count != want {
		t.Fatalf("combination count mismatch: got %d want %d", count, want)
	}
}

func TestSweepSingleParameter(t *testing.T) {
	sweep := NewSweep(1)

	if sweep.Total() != 1 {
		t.Fatalf("total mismatch: got %d want 1", sweep.Total())
	}

	combo, ok := sweep.Next()
	if !ok || !combo.Baseline() {
		t.Fatalf("expected only the baseline: %v ok=%v", combo, ok)
	}
	if _, ok := sweep.Next(); ok {
		t.Fatalf("single-parameter sweep must stop after the baseline")
	}
}

func TestCombinationParams(t *testing.T) {
	combo := Combination{Settings: []Setting{{Index: 0, Value: 0.3}, {Index: 2, Value: 0.7}}}

	params := combo.Params()
	if len(params) != 2 || params[0] != 0.3 || params[2] != 0.7 {
		t.Fatalf("params mismatch: %v", params)
	}
	if combo.String() != "p0=0.30 p2=0.70" {
		t.Fatalf("string mismatch: %q", combo.String())
	}

	if (Combination{}).Params() != nil {
		t.Fatalf("baseline params must be nil")
	}
}

func toneBuffer(amp float64, n int) [][]float64 {
	ch := make([]float64, n)
	for i := range ch {
		ch[i] = amp * math.Sin(2*math.Pi*440*float64(i)/48000)
	}
	return [][]float64{ch, ch}
}

func TestClassify(t *testing.T) {
	cfg := Config{SampleRate: 48000}

	out := Classify(toneBuffer(0.5, 48000), cfg)
	if out.Status != StatusPassed || out.Label != LabelSweetSpot {
		t.Fatalf("clean tone misclassified: %+v", out)
	}
	if math.Abs(out.Peak-0.5) > 1e-6 {
		t.Fatalf("peak mismatch: got %v want 0.5", out.Peak)
	}

	out = Classify(toneBuffer(12, 48000), cfg)
	if out.Status != StatusUnstable || out.Reason != "runaway output level (excessive output level beyond hard ceiling)" {
		t.Fatalf("runaway level misclassified: %+v", out)
	}

	out = Classify(toneBuffer(6, 48000), cfg)
	if out.Status != StatusFailed || out.Label != LabelDangerZone {
		t.Fatalf("excessive level misclassified: %+v", out)
	}
	if out.Reason != "excessive output level" {
		t.Fatalf("reason mismatch: %q", out.Reason)
	}

	out = Classify(toneBuffer(0, 48000), cfg)
	if out.Status != StatusFailed || out.Reason != "silent output" {
		t.Fatalf("silence misclassified: %+v", out)
	}

	nan := toneBuffer(0.5, 48000)
	nan[1][100] = math.NaN()
	out = Classify(nan, cfg)
	if out.Status != StatusUnstable || out.Reason != "NaN/Inf in output" {
		t.Fatalf("non-finite output misclassified: %+v", out)
	}
}

func TestClassifyOrdering(t *testing.T) {
	// A buffer that is both runaway and mostly silent must report the
	// more severe finding.
	data := toneBuffer(0, 48000)
	data[0][40000] = 20

	out := Classify(data, Config{SampleRate: 48000})
	if out.Status != StatusUnstable || out.Reason != "runaway output level (excessive output level beyond hard ceiling)" {
		t.Fatalf("severity ordering violated: %+v", out)
	}
}

func TestRunSweepRunaway(t *testing.T) {
	factory := func() (engine.Engine, error) {
		return enginetest.NewRunaway(), nil
	}

	outcomes, summary, err := RunSweep(factory, Config{
		SampleRate: 48000,
		BlockSize:  512,
		Blocks:     50,
	})
	if err != nil {
		t.Fatalf("sweep error: %v", err)
	}

	if summary.Total != 8 {
		t.Fatalf("total mismatch: got %d want 8", summary.Total)
	}
	if summary.Unstable == 0 {
		t.Fatalf("extreme drive/regen should destabilize the engine: %+v", summary)
	}

	for _, o := range outcomes {
		if o.Combination.Baseline() && o.Status != StatusPassed {
			t.Fatalf("baseline misclassified: %+v", o)
		}

		params := o.Combination.Params()
		if params[0] == 1 && params[1] == 1 {
			if o.Status != StatusUnstable {
				t.Fatalf("(1,1) combination must be unstable: %+v", o)
			}
		}
	}
}

func TestRunSweepFeedbackEcho(t *testing.T) {
	factory := func() (engine.Engine, error) {
		return enginetest.NewFeedbackEcho()
	}

	_, summary, err := RunSweep(factory, Config{SampleRate: 48000, BlockSize: 512})
	if err != nil {
		t.Fatalf("sweep error: %v", err)
	}

	if summary.Total != 8 {
		t.Fatalf("total mismatch: got %d want 8", summary.Total)
	}
	// Feedback is clamped below unity, so no combination may destabilize.
	if summary.Unstable != 0 {
		t.Fatalf("bounded-feedback echo destabilized: %+v", summary)
	}
}

func TestRunSweepSilentEngine(t *testing.T) {
	factory := func() (engine.Engine, error) {
		return enginetest.NewSilent(), nil
	}

	outcomes, summary, err := RunSweep(factory, Config{SampleRate: 48000, BlockSize: 512})
	if err != nil {
		t.Fatalf("sweep error: %v", err)
	}

	if summary.Total != 1 || summary.Failed != 1 {
		t.Fatalf("summary mismatch: %+v", summary)
	}
	if outcomes[0].Reason != "silent output" {
		t.Fatalf("reason mismatch: %q", outcomes[0].Reason)
	}
}

func TestRunSweepContainsFaults(t *testing.T) {
	factory := func() (engine.Engine, error) {
		return enginetest.NewFaulty(2), nil
	}

	outcomes, summary, err := RunSweep(factory, Config{SampleRate: 48000, BlockSize: 512})
	if err != nil {
		t.Fatalf("sweep must survive engine faults: %v", err)
	}

	if summary.Total != 1 || summary.Failed != 1 {
		t.Fatalf("summary mismatch: %+v", summary)
	}
	if outcomes[0].Reason == "" {
		t.Fatalf("fault reason missing")
	}
}

func TestRunSweepTimesOutHungEngine(t *testing.T) {
	factory := func() (engine.Engine, error) {
		return enginetest.NewStalling(), nil
	}

	// 40 blocks at 50 ms per block run two seconds unbounded; the budget
	// must cut the combination off long before that.
	start := time.Now()
	outcomes, summary, err := RunSweep(factory, Config{
		SampleRate: 48000,
		BlockSize:  512,
		Blocks:     40,
		Timeout:    100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("sweep error: %v", err)
	}

	if summary.Total != 1 || summary.Failed != 1 {
		t.Fatalf("summary mismatch: %+v", summary)
	}
	if !strings.Contains(outcomes[0].Reason, "budget") {
		t.Fatalf("timeout reason missing: %q", outcomes[0].Reason)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("hung combination not bounded: %v", elapsed)
	}
}

func TestRunSweepCreationFailure(t *testing.T) {
	factory := func() (engine.Engine, error) {
		return nil, errDeliberate
	}

	if _, _, err := RunSweep(factory, Config{}); err == nil {
		t.Fatalf("expected creation failure")
	}
}
