// Package endurance runs an engine against a phase-continuous tone for an
// extended block budget and watches for slow-onset defects: memory growth,
// processing-time degradation, creeping DC, clipping, and output level
// drift.
package endurance

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/algo-verify/dsp/buffer"
	"github.com/cwbudde/algo-verify/dsp/core"
	"github.com/cwbudde/algo-verify/dsp/signal"
	"github.com/cwbudde/algo-verify/dsp/spectrum"
	"github.com/cwbudde/algo-verify/engine"
	"github.com/cwbudde/algo-verify/harness"
)

// Config controls the endurance feed and the pass criteria.
type Config struct {
	SampleRate float64
	BlockSize  int
	Channels   int

	// ToneFrequency and Amplitude shape the feed tone.
	ToneFrequency float64
	Amplitude     float64

	// Blocks is the block budget. When zero it is derived from Duration
	// of audio at the configured sample rate.
	Blocks   int
	Duration time.Duration

	// SampleEvery is the probe cadence in blocks.
	SampleEvery int

	// Probe selects the memory source; ForceGC collects before each
	// probe so the heap reading tracks the live set.
	Probe   ProbeKind
	ForceGC bool

	// GrowthLimitMBPerMin flags a leak. Growth below MinGrowthBytes is
	// ignored regardless of rate, so short fast runs do not flag
	// allocator noise.
	GrowthLimitMBPerMin float64
	MinGrowthBytes      uint64

	// DegradationLimitPercent flags slowdown of the last tenth of block
	// times against the first tenth.
	DegradationLimitPercent float64

	// DCOffsetLimit and ClipLimit bound per-block mean and peak.
	DCOffsetLimit float64
	ClipLimit     float64

	// LevelDriftLimitDB bounds the tracked tone level drift.
	LevelDriftLimitDB float64
}

// Sample is one probe of the running engine.
type Sample struct {
	Timestamp   time.Time
	MemoryBytes uint64
	BlockTime   time.Duration
}

// Summary is the terminal result of one endurance run.
type Summary struct {
	Passed  bool
	Reasons []string

	GrowthRateMBPerMin float64
	DegradationPercent float64
	DCOffsetBlocks     int
	ClippingBlocks     int
	LevelDriftDB       float64

	BlocksProcessed int
	SampleCount     int
	Elapsed         time.Duration
}

// Monitor drives endurance runs with a fixed configuration.
type Monitor struct {
	cfg Config
}

// NewMonitor creates a monitor, filling unset config fields with defaults.
func NewMonitor(cfg Config) *Monitor {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 512
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 2
	}
	if cfg.ToneFrequency <= 0 {
		cfg.ToneFrequency = 440
	}
	if cfg.Amplitude <= 0 {
		cfg.Amplitude = 0.5
	}
	if cfg.Blocks <= 0 {
		if cfg.Duration <= 0 {
			cfg.Duration = 10 * time.Second
		}
		cfg.Blocks = int(cfg.Duration.Seconds() * cfg.SampleRate / float64(cfg.BlockSize))
	}
	if cfg.Blocks < 1 {
		cfg.Blocks = 1
	}
	if cfg.SampleEvery <= 0 {
		cfg.SampleEvery = 50
	}
	if cfg.GrowthLimitMBPerMin <= 0 {
		cfg.GrowthLimitMBPerMin = 1
	}
	if cfg.MinGrowthBytes == 0 {
		cfg.MinGrowthBytes = 1 << 20
	}
	if cfg.DegradationLimitPercent <= 0 {
		cfg.DegradationLimitPercent = 20
	}
	if cfg.DCOffsetLimit <= 0 {
		cfg.DCOffsetLimit = 0.05
	}
	if cfg.ClipLimit <= 0 {
		cfg.ClipLimit = 1.0
	}
	if cfg.LevelDriftLimitDB <= 0 {
		cfg.LevelDriftLimitDB = 3
	}

	return &Monitor{cfg: cfg}
}

// Run feeds the engine until the block budget is exhausted or the context
// is cancelled, then evaluates every criterion. Cancellation is a graceful
// stop: the blocks processed so far are summarized. Non-finite output or
// an engine fault aborts immediately; the returned error is a
// *harness.Failure in that case.
func (m *Monitor) Run(ctx context.Context, factory engine.Factory) (Summary, []Sample, error) {
	cfg := m.cfg

	e, err := factory()
	if err != nil {
		return Summary{}, nil, harness.NewFailure(harness.FailureCreation,
			"engine construction failed: %v", err)
	}
	if err := e.Prepare(cfg.SampleRate, cfg.BlockSize); err != nil {
		return Summary{}, nil, harness.NewFailure(harness.FailureCreation,
			"engine prepare failed: %v", err)
	}
	e.Reset()

	osc, err := signal.NewOscillator(cfg.ToneFrequency, cfg.Amplitude, cfg.SampleRate)
	if err != nil {
		return Summary{}, nil, harness.NewFailure(harness.FailurePrecondition,
			"feed oscillator: %v", err)
	}

	tracker, err := spectrum.NewGoertzel(cfg.ToneFrequency, cfg.SampleRate)
	if err != nil {
		return Summary{}, nil, harness.NewFailure(harness.FailurePrecondition,
			"level tracker: %v", err)
	}

	block := buffer.NewBlock(cfg.Channels, cfg.BlockSize).Data()

	start := time.Now()
	initialMem := readMemory(cfg.Probe, cfg.ForceGC)

	var (
		samples       []Sample
		blockTimes    []time.Duration
		dcBlocks      int
		clipBlocks    int
		firstLevelDB  float64
		lastLevelDB   float64
		levelTracked  bool
		blocksDone    int
		lastBlockTime time.Duration
	)

	for blocksDone < cfg.Blocks {
		if ctx.Err() != nil {
			break
		}

		osc.Fill(block)

		t0 := time.Now()
		if err := processGuarded(e, block); err != nil {
			return Summary{
				Passed:          false,
				Reasons:         []string{err.Error()},
				BlocksProcessed: blocksDone,
				SampleCount:     len(samples),
				Elapsed:         time.Since(start),
			}, samples, err
		}
		lastBlockTime = time.Since(t0)
		blockTimes = append(blockTimes, lastBlockTime)
		blocksDone++

		if ch, frame := core.ScanNonFiniteBlock(block); ch >= 0 {
			err := harness.NewFailure(harness.FailureNumericInstability,
				"non-finite sample at channel %d, block %d, frame %d", ch, blocksDone-1, frame)
			return Summary{
				Passed:          false,
				Reasons:         []string{err.Error()},
				BlocksProcessed: blocksDone,
				SampleCount:     len(samples),
				Elapsed:         time.Since(start),
			}, samples, err
		}

		mean, peak := blockStats(block)
		if math.Abs(mean) > cfg.DCOffsetLimit {
			dcBlocks++
		}
		if peak > cfg.ClipLimit {
			clipBlocks++
		}

		tracker.Reset()
		tracker.ProcessBlock(block[0])
		levelDB := tracker.PowerDB()
		if !levelTracked {
			firstLevelDB = levelDB
			levelTracked = true
		}
		lastLevelDB = levelDB

		if blocksDone%cfg.SampleEvery == 0 {
			samples = append(samples, Sample{
				Timestamp:   time.Now(),
				MemoryBytes: readMemory(cfg.Probe, cfg.ForceGC),
				BlockTime:   lastBlockTime,
			})
		}
	}

	elapsed := time.Since(start)
	finalMem := readMemory(cfg.Probe, cfg.ForceGC)

	summary := Summary{
		Passed:          true,
		DCOffsetBlocks:  dcBlocks,
		ClippingBlocks:  clipBlocks,
		BlocksProcessed: blocksDone,
		SampleCount:     len(samples),
		Elapsed:         elapsed,
	}

	growthBytes := int64(finalMem) - int64(initialMem)
	if minutes := elapsed.Minutes(); minutes > 0 {
		summary.GrowthRateMBPerMin = float64(growthBytes) / (1 << 20) / minutes
	}
	if growthBytes > int64(cfg.MinGrowthBytes) &&
		summary.GrowthRateMBPerMin > cfg.GrowthLimitMBPerMin {
		summary.Reasons = append(summary.Reasons, fmt.Sprintf(
			"memory growth %.2f MB/min exceeds %.2f MB/min",
			summary.GrowthRateMBPerMin, cfg.GrowthLimitMBPerMin))
	}

	var degradedBy time.Duration
	summary.DegradationPercent, degradedBy = degradation(blockTimes)
	if summary.DegradationPercent > cfg.DegradationLimitPercent &&
		degradedBy > minDegradationDelta {
		summary.Reasons = append(summary.Reasons, fmt.Sprintf(
			"processing degraded %.1f%% over the run (limit %.1f%%)",
			summary.DegradationPercent, cfg.DegradationLimitPercent))
	}

	if dcBlocks > 0 {
		summary.Reasons = append(summary.Reasons, fmt.Sprintf(
			"DC offset above %.3f in %d blocks", cfg.DCOffsetLimit, dcBlocks))
	}
	if clipBlocks > 0 {
		summary.Reasons = append(summary.Reasons, fmt.Sprintf(
			"clipping above %.2f in %d blocks", cfg.ClipLimit, clipBlocks))
	}

	if levelTracked {
		summary.LevelDriftDB = lastLevelDB - firstLevelDB
		if math.Abs(summary.LevelDriftDB) > cfg.LevelDriftLimitDB {
			summary.Reasons = append(summary.Reasons, fmt.Sprintf(
				"tone level drifted %.1f dB (limit %.1f dB)",
				summary.LevelDriftDB, cfg.LevelDriftLimitDB))
		}
	}

	summary.Passed = len(summary.Reasons) == 0

	return summary, samples, nil
}

// processGuarded calls Process with panic containment.
func processGuarded(e engine.Engine, block [][]float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = harness.NewFailure(harness.FailureEngineFault, "engine panic: %v", r)
		}
	}()

	e.Process(block)

	return nil
}

// blockStats returns the mean of channel 0 and the peak across all
// channels.
func blockStats(block [][]float64) (mean, peak float64) {
	if len(block) == 0 || len(block[0]) == 0 {
		return 0, 0
	}

	var sum float64
	for _, x := range block[0] {
		sum += x
	}
	mean = sum / float64(len(block[0]))

	for _, ch := range block {
		for _, x := range ch {
			if a := math.Abs(x); a > peak {
				peak = a
			}
		}
	}

	return mean, peak
}

// Relative slowdown below this absolute delta is timer jitter, not
// degradation. Engines processing a block in nanoseconds would otherwise
// flag on scheduler noise.
const minDegradationDelta = 50 * time.Microsecond

// degradation compares the average of the last tenth of block times
// against the first tenth, returning the relative change in percent and
// the absolute change. Runs too short for a meaningful window report
// zero.
func degradation(times []time.Duration) (float64, time.Duration) {
	window := len(times) / 10
	if window < 1 {
		return 0, 0
	}

	avg := func(ts []time.Duration) float64 {
		var sum float64
		for _, t := range ts {
			sum += float64(t)
		}
		return sum / float64(len(ts))
	}

	first := avg(times[:window])
	last := avg(times[len(times)-window:])
	if first <= 0 {
		return 0, 0
	}

	return (last - first) / first * 100, time.Duration(last - first)
}
