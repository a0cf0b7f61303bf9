package ir

import (
	"math"
	"testing"
	"time"

	"github.com/cwbudde/algo-verify/dsp/core"
	"github.com/cwbudde/algo-verify/dsp/signal"
	"github.com/cwbudde/algo-verify/engine"
	"github.com/cwbudde/algo-verify/engine/enginetest"
	"github.com/cwbudde/algo-verify/harness"
)

func TestCaptureImpulseResponseBypass(t *testing.T) {
	factory := func() (engine.Engine, error) {
		return enginetest.NewBypass(), nil
	}

	ir, err := CaptureImpulseResponse(factory, CaptureConfig{
		SampleRate: 48000,
		BlockSize:  512,
		Duration:   0.25,
	}, nil)
	if err != nil {
		t.Fatalf("capture error: %v", err)
	}

	if len(ir) != 12000 {
		t.Fatalf("IR length mismatch: got %d want 12000", len(ir))
	}
	if ir[0] != 1.0 {
		t.Fatalf("direct impulse mismatch: got %v want 1", ir[0])
	}
	for i := 1; i < len(ir); i++ {
		if ir[i] != 0 {
			t.Fatalf("bypass IR has tail energy at %d: %v", i, ir[i])
		}
	}
}

func TestCaptureImpulseResponseEcho(t *testing.T) {
	factory := func() (engine.Engine, error) {
		return enginetest.NewFeedbackEcho()
	}

	ir, err := CaptureImpulseResponse(factory, CaptureConfig{
		SampleRate: 48000,
		BlockSize:  512,
		Duration:   1,
	}, nil)
	if err != nil {
		t.Fatalf("capture error: %v", err)
	}

	// The echo engine must put energy after the direct impulse.
	tailEnergy := 0.0
	for _, x := range ir[100:] {
		tailEnergy += x * x
	}
	if tailEnergy == 0 {
		t.Fatalf("echo IR has no tail")
	}
}

func TestCaptureTimesOutHungEngine(t *testing.T) {
	factory := func() (engine.Engine, error) {
		return enginetest.NewStalling(), nil
	}

	start := time.Now()
	_, err := CaptureImpulseResponse(factory, CaptureConfig{
		SampleRate: 48000,
		BlockSize:  512,
		Duration:   0.5,
		Timeout:    100 * time.Millisecond,
	}, nil)

	if harness.KindOf(err) != harness.FailureTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("hung capture not bounded: %v", elapsed)
	}
}

func TestFromSweepIdentity(t *testing.T) {
	gen := signal.NewGenerator(core.WithSampleRate(48000))

	sweep, err := gen.SweptSine(50, 18000, 1.0)
	if err != nil {
		t.Fatalf("sweep error: %v", err)
	}

	stim := sweep.Channel(0)

	ir, err := FromSweep(stim, stim, 50, 18000)
	if err != nil {
		t.Fatalf("recovery error: %v", err)
	}

	// An identity system recovers a unit impulse at t=0.
	if math.Abs(ir[0]-1.0) > 0.05 {
		t.Fatalf("direct peak mismatch: got %v want ~1", ir[0])
	}

	// The tail must be far below the direct peak.
	for i := 1000; i < len(ir) && i < 10000; i++ {
		if math.Abs(ir[i]) > 0.05 {
			t.Fatalf("identity IR has tail energy at %d: %v", i, ir[i])
		}
	}
}

func TestFromSweepRecoversDelay(t *testing.T) {
	gen := signal.NewGenerator(core.WithSampleRate(48000))

	sweep, err := gen.SweptSine(50, 18000, 1.0)
	if err != nil {
		t.Fatalf("sweep error: %v", err)
	}

	stim := sweep.Channel(0)

	const delay = 500
	response := make([]float64, len(stim)+delay)
	copy(response[delay:], stim)

	ir, err := FromSweep(stim, response, 50, 18000)
	if err != nil {
		t.Fatalf("recovery error: %v", err)
	}

	peakIdx := 0
	for i, x := range ir {
		if math.Abs(x) > math.Abs(ir[peakIdx]) {
			peakIdx = i
		}
	}

	if peakIdx < delay-2 || peakIdx > delay+2 {
		t.Fatalf("recovered delay mismatch: got %d want ~%d", peakIdx, delay)
	}
}

func TestFromSweepValidation(t *testing.T) {
	stim := make([]float64, 100)

	if _, err := FromSweep(stim, make([]float64, 50), 50, 18000); err == nil {
		t.Fatalf("expected error for short response")
	}
	if _, err := FromSweep(stim, stim, 18000, 50); err == nil {
		t.Fatalf("expected error for inverted range")
	}
	if _, err := FromSweep(nil, stim, 50, 18000); err == nil {
		t.Fatalf("expected error for empty stimulus")
	}
}
