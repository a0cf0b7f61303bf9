// Package stability sweeps an engine's parameter space with a fixed
// reference tone and classifies every combination as passed, failed, or
// unstable.
package stability

import (
	"math"
	"time"

	"github.com/cwbudde/algo-verify/dsp/buffer"
	"github.com/cwbudde/algo-verify/dsp/core"
	"github.com/cwbudde/algo-verify/dsp/signal"
	"github.com/cwbudde/algo-verify/engine"
	"github.com/cwbudde/algo-verify/harness"
	stattime "github.com/cwbudde/algo-verify/stats/time"
)

// Status is the lifecycle state of one combination.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusPassed
	StatusFailed
	StatusUnstable
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusRunning:
		return "RUNNING"
	case StatusPassed:
		return "PASSED"
	case StatusFailed:
		return "FAILED"
	case StatusUnstable:
		return "UNSTABLE"
	default:
		return "UNKNOWN"
	}
}

// Label tags a terminal outcome for reporting.
type Label int

const (
	// LabelNeutral marks failures without a level anomaly.
	LabelNeutral Label = iota
	// LabelSweetSpot marks a clean pass.
	LabelSweetSpot
	// LabelDangerZone marks output above the soft ceiling.
	LabelDangerZone
)

func (l Label) String() string {
	switch l {
	case LabelSweetSpot:
		return "SWEET_SPOT"
	case LabelDangerZone:
		return "DANGER_ZONE"
	default:
		return "NEUTRAL"
	}
}

// Outcome is the classification of one parameter combination.
type Outcome struct {
	Combination Combination
	Status      Status
	Label       Label
	Reason      string

	// Peak is the largest absolute output sample, RMSdB the output level
	// after the settle window.
	Peak  float64
	RMSdB float64
}

// Summary counts outcomes across one sweep.
type Summary struct {
	Total       int
	Passed      int
	Failed      int
	Unstable    int
	SweetSpots  int
	DangerZones int
}

// Config controls the sweep stimulus and the classification thresholds.
type Config struct {
	SampleRate float64
	BlockSize  int
	// Blocks of reference tone per combination.
	Blocks int
	// ToneFrequency and Amplitude shape the reference tone.
	ToneFrequency float64
	Amplitude     float64

	// HardCeiling is the peak above which output counts as runaway,
	// SoftCeiling the peak above which it is merely excessive. The
	// hard ceiling must stay above the soft one.
	HardCeiling float64
	SoftCeiling float64

	// SilenceFloorDB is the RMS level below which output counts as
	// silent, evaluated after SettleFraction of the output is skipped.
	SilenceFloorDB float64
	SettleFraction float64

	// Timeout bounds the wall clock of one combination; a hung engine
	// fails that combination, never the sweep. Zero disables it.
	Timeout time.Duration
}

func normalizeConfig(cfg Config) Config {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 512
	}
	if cfg.Blocks <= 0 {
		cfg.Blocks = 50
	}
	if cfg.ToneFrequency <= 0 {
		cfg.ToneFrequency = 440
	}
	if cfg.Amplitude <= 0 {
		cfg.Amplitude = 0.5
	}
	if cfg.HardCeiling <= 0 {
		cfg.HardCeiling = 10
	}
	if cfg.SoftCeiling <= 0 {
		cfg.SoftCeiling = 5
	}
	if cfg.SoftCeiling > cfg.HardCeiling {
		cfg.SoftCeiling = cfg.HardCeiling
	}
	if cfg.SilenceFloorDB == 0 {
		cfg.SilenceFloorDB = -60
	}
	if cfg.SettleFraction <= 0 || cfg.SettleFraction >= 1 {
		cfg.SettleFraction = 0.1
	}
	return cfg
}

// Classify evaluates one output buffer against the thresholds. The checks
// run in severity order: non-finite samples, runaway peak, excessive peak,
// silence. Combination, when known, is filled in by the caller.
func Classify(data [][]float64, cfg Config) Outcome {
	cfg = normalizeConfig(cfg)

	out := Outcome{Status: StatusPassed, Label: LabelSweetSpot}

	peak := 0.0
	for _, ch := range data {
		if i := core.ScanNonFinite(ch); i >= 0 {
			return Outcome{
				Status: StatusUnstable,
				Label:  LabelNeutral,
				Reason: "NaN/Inf in output",
			}
		}
		for _, x := range ch {
			if a := math.Abs(x); a > peak {
				peak = a
			}
		}
	}
	out.Peak = peak
	out.RMSdB = settledRMSdB(data, cfg.SettleFraction)

	switch {
	case peak > cfg.HardCeiling:
		out.Status = StatusUnstable
		out.Label = LabelNeutral
		out.Reason = "runaway output level (excessive output level beyond hard ceiling)"
	case peak > cfg.SoftCeiling:
		out.Status = StatusFailed
		out.Label = LabelDangerZone
		out.Reason = "excessive output level"
	case out.RMSdB < cfg.SilenceFloorDB:
		out.Status = StatusFailed
		out.Label = LabelNeutral
		out.Reason = "silent output"
	}

	return out
}

// RunSweep classifies every combination of the parameter sweep for the
// given engine factory. Engine faults and timeouts fail the affected
// combination; the sweep always continues. The returned error is non-nil
// only when no engine could be constructed at all.
func RunSweep(factory engine.Factory, cfg Config) ([]Outcome, Summary, error) {
	cfg = normalizeConfig(cfg)

	probe, err := factory()
	if err != nil {
		return nil, Summary{}, harness.NewFailure(harness.FailureCreation,
			"engine construction failed: %v", err)
	}
	numParams := probe.NumParameters()

	gen := signal.NewGenerator(core.WithSampleRate(cfg.SampleRate))
	duration := float64(cfg.Blocks*cfg.BlockSize) / cfg.SampleRate

	stim, err := gen.Sine(cfg.ToneFrequency, cfg.Amplitude, duration)
	if err != nil {
		return nil, Summary{}, harness.NewFailure(harness.FailurePrecondition,
			"reference tone: %v", err)
	}

	sweep := NewSweep(numParams)
	outcomes := make([]Outcome, 0, sweep.Total())

	// Every combination produces an output of identical shape that is
	// discarded after classification, so the working buffers are pooled.
	pool := buffer.NewPool()

	for {
		combo, ok := sweep.Next()
		if !ok {
			break
		}

		outcome := runCombination(factory, cfg, pool, stim, combo)
		outcome.Combination = combo
		outcomes = append(outcomes, outcome)
	}

	return outcomes, Summarize(outcomes), nil
}

func runCombination(factory engine.Factory, cfg Config, pool *buffer.Pool, stim *signal.Stimulus, combo Combination) Outcome {
	out, err := harness.RunUnit(factory, harness.Config{
		SampleRate: cfg.SampleRate,
		BlockSize:  cfg.BlockSize,
		Timeout:    cfg.Timeout,
		Pool:       pool,
	}, stim, combo.Params())

	if out != nil {
		defer out.Release()
	}

	if err != nil {
		if harness.KindOf(err) == harness.FailureNumericInstability {
			return Outcome{
				Status: StatusUnstable,
				Label:  LabelNeutral,
				Reason: "NaN/Inf in output",
			}
		}
		return Outcome{
			Status: StatusFailed,
			Label:  LabelNeutral,
			Reason: err.Error(),
		}
	}

	return Classify(out.Data, cfg)
}

// Summarize tallies the outcome counts of one sweep.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch o.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusUnstable:
			s.Unstable++
		}
		switch o.Label {
		case LabelSweetSpot:
			s.SweetSpots++
		case LabelDangerZone:
			s.DangerZones++
		}
	}
	return s
}

// settledRMSdB is the output RMS in dBFS across all channels after the
// settle window.
func settledRMSdB(data [][]float64, settle float64) float64 {
	var sum float64
	var n int

	for _, ch := range data {
		skip := int(float64(len(ch)) * settle)
		if skip >= len(ch) {
			continue
		}
		tail := ch[skip:]
		rms := stattime.RMS(tail)
		sum += rms * rms * float64(len(tail))
		n += len(tail)
	}

	if n == 0 {
		return math.Inf(-1)
	}

	return core.LinearToDB(math.Sqrt(sum / float64(n)))
}
