// Package suite orchestrates the full validation battery: it runs every
// analyzer against a set of registered engines, in parallel across engines
// and strictly sequential within one, and aggregates the results into
// per-engine reports.
package suite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/algo-verify/dsp/core"
	"github.com/cwbudde/algo-verify/dsp/signal"
	"github.com/cwbudde/algo-verify/endurance"
	"github.com/cwbudde/algo-verify/engine"
	"github.com/cwbudde/algo-verify/harness"
	"github.com/cwbudde/algo-verify/measure/imd"
	"github.com/cwbudde/algo-verify/measure/ir"
	"github.com/cwbudde/algo-verify/measure/noise"
	"github.com/cwbudde/algo-verify/measure/periodicity"
	"github.com/cwbudde/algo-verify/measure/response"
	"github.com/cwbudde/algo-verify/measure/stereo"
	"github.com/cwbudde/algo-verify/measure/thd"
	"github.com/cwbudde/algo-verify/report"
	"github.com/cwbudde/algo-verify/stability"
)

// Suite runs validation batches with a fixed configuration.
type Suite struct {
	cfg Config
	log *slog.Logger

	reports []*report.EngineReport
}

// New creates a suite after validating the configuration. A nil logger
// falls back to slog.Default.
func New(cfg Config, log *slog.Logger) (*Suite, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	return &Suite{cfg: cfg, log: log}, nil
}

// Run evaluates the named engines; an empty list means every registered
// engine. Engines run concurrently on a bounded worker pool while this
// goroutine acts as the single collector that owns the report slice and
// all file writes. One engine's failure never aborts the batch.
func (s *Suite) Run(ctx context.Context, names []string) ([]*report.EngineReport, error) {
	if len(names) == 0 {
		names = engine.Names()
	}
	if len(names) == 0 {
		return nil, errors.New("suite: no engines registered")
	}

	if s.cfg.OutputDir != "" {
		if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("suite: output dir: %w", err)
		}
	}

	runID := uuid.NewString()
	s.log.Info("batch start", "run", runID, "engines", len(names), "workers", s.cfg.Workers)

	jobs := make(chan string)
	results := make(chan *report.EngineReport)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range jobs {
				results <- s.evaluate(ctx, runID, name)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		defer close(jobs)
		for _, name := range names {
			select {
			case jobs <- name:
			case <-ctx.Done():
				return
			}
		}
	}()

	byName := make(map[string]*report.EngineReport, len(names))
	for rep := range results {
		byName[rep.EngineName] = rep
		s.writeArtifacts(rep)
	}

	reports := make([]*report.EngineReport, 0, len(names))
	for _, name := range names {
		if rep, ok := byName[name]; ok {
			reports = append(reports, rep)
		}
	}
	s.reports = reports

	s.log.Info("batch done", "run", runID, "reports", len(reports), "passed", s.Passed())

	return reports, nil
}

// Passed reports whether every engine of the last run reached the pass
// cutoff and constructed cleanly.
func (s *Suite) Passed() bool {
	if len(s.reports) == 0 {
		return false
	}

	for _, r := range s.reports {
		if r.Grade < s.cfg.Score.PassCutoff || r.CreationFailed() {
			return false
		}
	}

	return true
}

// evaluate runs the full battery against one engine, sequentially and on
// fresh engine instances per unit.
func (s *Suite) evaluate(ctx context.Context, runID, name string) *report.EngineReport {
	rep := &report.EngineReport{
		RunID:      runID,
		EngineID:   uuid.NewString(),
		EngineName: name,
		CreatedAt:  time.Now().UTC(),
	}

	log := s.log.With("engine", name)
	start := time.Now()

	factory := engine.Lookup(name)
	if factory == nil {
		rep.Units = append(rep.Units, report.UnitRecord{
			Unit:        "create",
			Status:      "FAILED",
			FailureKind: harness.FailureCreation.String(),
			Reason:      "engine not registered: " + name,
		})
		rep.Finalize(s.cfg.Score)
		log.Warn("engine not registered")
		return rep
	}

	units := []struct {
		name string
		run  func(engine.Factory, *report.EngineReport) error
	}{
		{"response", s.measureResponse},
		{"thd", s.measureTHD},
		{"imd", s.measureIMD},
		{"noise", s.measureNoise},
		{"impulse", s.measureImpulse},
		{"stereo", s.measureStereo},
		{"stability", s.runStability},
	}

	for _, unit := range units {
		if ctx.Err() != nil {
			log.Warn("batch cancelled", "after", unit.name)
			break
		}

		err := unit.run(factory, rep)
		rep.Units = append(rep.Units, report.RecordUnit(unit.name, err))
		if err != nil {
			log.Warn("unit failed", "unit", unit.name, "err", err)
		} else {
			log.Debug("unit done", "unit", unit.name)
		}
	}

	if s.cfg.Endurance && ctx.Err() == nil {
		summary, _, err := endurance.NewMonitor(endurance.Config{
			SampleRate: s.cfg.SampleRate,
			BlockSize:  s.cfg.BlockSize,
			Duration:   s.cfg.EnduranceDuration.Std(),
			ForceGC:    true,
		}).Run(ctx, factory)

		rep.Endurance = report.NewEnduranceSection(summary)
		rep.Units = append(rep.Units, report.RecordUnit("endurance", err))
		if err != nil {
			log.Warn("unit failed", "unit", "endurance", "err", err)
		}
	}

	rep.Finalize(s.cfg.Score)
	log.Info("engine done", "grade", rep.Grade, "ready", rep.ProductionReady,
		"elapsed", time.Since(start))

	return rep
}

func (s *Suite) measureResponse(factory engine.Factory, rep *report.EngineReport) error {
	res, err := response.Measure(factory, response.Config{
		SampleRate: s.cfg.SampleRate,
		BlockSize:  s.cfg.BlockSize,
		Timeout:    s.cfg.UnitTimeout.Std(),
	}, nil)
	if err != nil {
		return err
	}

	rep.FrequencyResponse = report.NewResponseSection(&res)
	return nil
}

func (s *Suite) measureTHD(factory engine.Factory, rep *report.EngineReport) error {
	stim, err := s.generator().Sine(s.cfg.THDFrequency, 0.5, 0.5)
	if err != nil {
		return harness.NewFailure(harness.FailurePrecondition, "distortion stimulus: %v", err)
	}

	out, err := harness.RunUnit(factory, s.harnessConfig(), stim, nil)
	if err != nil {
		return err
	}

	res, err := thd.AnalyzeSignal(out.Channel(0), thd.Config{
		SampleRate:      s.cfg.SampleRate,
		FundamentalFreq: s.cfg.THDFrequency,
	})
	if err != nil {
		return err
	}

	rep.Distortion = report.NewDistortionSection(&res)
	return nil
}

func (s *Suite) measureIMD(factory engine.Factory, rep *report.EngineReport) error {
	f1 := s.cfg.IMDLowFrequency
	f2 := s.cfg.IMDHighFrequency

	// Keep the high tone and its second-order products under Nyquist.
	if limit := 0.45 * s.cfg.SampleRate; f2 > limit {
		f2 = limit
	}

	stim, err := s.generator().DualTone(f1, f2, 0.25, 0.5)
	if err != nil {
		return harness.NewFailure(harness.FailurePrecondition, "intermodulation stimulus: %v", err)
	}

	out, err := harness.RunUnit(factory, s.harnessConfig(), stim, nil)
	if err != nil {
		return err
	}

	res, err := imd.AnalyzeSignal(out.Channel(0), imd.Config{
		SampleRate: s.cfg.SampleRate,
		F1:         f1,
		F2:         f2,
	})
	if err != nil {
		return err
	}

	rep.Intermodulation = report.NewIMDSection(&res)
	return nil
}

func (s *Suite) measureNoise(factory engine.Factory, rep *report.EngineReport) error {
	res, err := noise.Measure(factory, noise.Config{
		SampleRate: s.cfg.SampleRate,
		BlockSize:  s.cfg.BlockSize,
		Timeout:    s.cfg.UnitTimeout.Std(),
	}, nil)
	if err != nil {
		return err
	}

	rep.NoiseFloor = report.NewNoiseSection(&res)
	return nil
}

func (s *Suite) measureImpulse(factory engine.Factory, rep *report.EngineReport) error {
	irData, err := ir.CaptureImpulseResponse(factory, ir.CaptureConfig{
		SampleRate: s.cfg.SampleRate,
		BlockSize:  s.cfg.BlockSize,
		Timeout:    s.cfg.UnitTimeout.Std(),
	}, nil)
	if err != nil {
		return err
	}

	metrics, err := ir.NewAnalyzer(s.cfg.SampleRate).Analyze(irData)
	if err != nil {
		return err
	}

	rep.Impulse = report.NewImpulseSection(&metrics, irData, s.cfg.SampleRate)
	return nil
}

// measureStereo runs one stereo tone and derives both the stereo field
// metrics and the modulation probe from it.
func (s *Suite) measureStereo(factory engine.Factory, rep *report.EngineReport) error {
	stim, err := s.generator().Sine(440, 0.5, 2)
	if err != nil {
		return harness.NewFailure(harness.FailurePrecondition, "stereo stimulus: %v", err)
	}

	out, err := harness.RunUnit(factory, s.harnessConfig(), stim, nil)
	if err != nil {
		return err
	}

	metrics, err := stereo.Analyze(out.Channel(0), out.Channel(1))
	if err != nil {
		return harness.NewFailure(harness.FailurePrecondition, "stereo analysis: %v", err)
	}
	rep.Stereo = report.NewStereoSection(metrics)

	mod, err := periodicity.ModulationRate(out.Channel(0), s.cfg.SampleRate)
	if err != nil {
		return err
	}
	rep.Modulation = report.NewModulationSection(mod)

	return nil
}

func (s *Suite) runStability(factory engine.Factory, rep *report.EngineReport) error {
	outcomes, summary, err := stability.RunSweep(factory, stability.Config{
		SampleRate:     s.cfg.SampleRate,
		BlockSize:      s.cfg.BlockSize,
		HardCeiling:    s.cfg.HardCeiling,
		SoftCeiling:    s.cfg.SoftCeiling,
		SilenceFloorDB: s.cfg.SilenceFloorDB,
		Timeout:        s.cfg.UnitTimeout.Std(),
	})
	if err != nil {
		return err
	}

	rep.Stability = report.NewStabilitySection(outcomes, summary)
	return nil
}

// writeArtifacts persists one report to the output directory. Write
// errors are logged, never fatal to the batch.
func (s *Suite) writeArtifacts(rep *report.EngineReport) {
	if s.cfg.OutputDir == "" {
		return
	}

	path := filepath.Join(s.cfg.OutputDir, rep.FileName("report"))
	f, err := os.Create(path)
	if err != nil {
		s.log.Error("report write failed", "engine", rep.EngineName, "err", err)
		return
	}

	if err := rep.WriteJSON(f); err != nil {
		s.log.Error("report write failed", "engine", rep.EngineName, "err", err)
	}
	if err := f.Close(); err != nil {
		s.log.Error("report write failed", "engine", rep.EngineName, "err", err)
	}

	if err := rep.ExportCSV(s.cfg.OutputDir); err != nil {
		s.log.Error("csv export failed", "engine", rep.EngineName, "err", err)
	}
}

func (s *Suite) generator() *signal.Generator {
	return signal.NewGeneratorWithOptions(
		[]core.ProcessorOption{core.WithSampleRate(s.cfg.SampleRate)},
		signal.WithSeed(s.cfg.Seed),
	)
}

func (s *Suite) harnessConfig() harness.Config {
	return harness.Config{
		SampleRate: s.cfg.SampleRate,
		BlockSize:  s.cfg.BlockSize,
		Timeout:    s.cfg.UnitTimeout.Std(),
	}
}
