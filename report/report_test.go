package report

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-verify/harness"
	"github.com/cwbudde/algo-verify/measure/thd"
	"github.com/cwbudde/algo-verify/stability"
)

func cleanReport() *EngineReport {
	return &EngineReport{
		RunID:      "run-1",
		EngineID:   "engine-1",
		EngineName: "testdouble.bypass",
		CreatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Distortion: &DistortionSection{FundamentalFreq: 1000, THDPercent: 0.001, SINADdB: 96},
		NoiseFloor: &NoiseSection{NoiseFloorDB: -200, PeakDB: -200},
		Impulse: &ImpulseSection{
			RT60Seconds: 0.001,
			SampleRate:  48000,
		},
		Stereo: &StereoSection{
			Correlation:       1,
			MonoCompatibility: 1,
			Balance:           1,
		},
		Stability: &StabilitySection{
			Summary: stability.Summary{Total: 8, Passed: 8, SweetSpots: 8},
		},
		Units: []UnitRecord{{Unit: "thd", Status: "PASSED"}},
	}
}

func TestGradeCleanEngine(t *testing.T) {
	r := cleanReport()
	r.Finalize(DefaultScoreConfig())

	assert.InDelta(t, 10.0, r.Grade, 1e-9)
	assert.True(t, r.ProductionReady)
}

func TestGradeComponents(t *testing.T) {
	cfg := DefaultScoreConfig()

	// 1% THD sits two thirds of the way down the log scale from 0.01%.
	r := &EngineReport{Distortion: &DistortionSection{THDPercent: 1}}
	assert.InDelta(t, 1.0, r.ComputeGrade(cfg), 1e-9)

	// A -80 dBFS floor is halfway between the -40 and -120 anchors.
	r = &EngineReport{NoiseFloor: &NoiseSection{NoiseFloorDB: -80}}
	assert.InDelta(t, 1.25, r.ComputeGrade(cfg), 1e-9)

	// Undecayed tail with excessive pre-delay loses half the transient
	// credit.
	r = &EngineReport{Impulse: &ImpulseSection{
		RT60Seconds:     1,
		NotFullyDecayed: true,
		PreDelayMs:      400,
	}}
	assert.InDelta(t, 1.25, r.ComputeGrade(cfg), 1e-9)

	// Imbalanced channels lose half the stereo credit.
	r = &EngineReport{Stereo: &StereoSection{
		BalanceFlagged:    true,
		MonoCompatibility: 1,
	}}
	assert.InDelta(t, 1.0, r.ComputeGrade(cfg), 1e-9)

	// No sections, no credit.
	assert.Zero(t, (&EngineReport{}).ComputeGrade(cfg))
}

func TestFinalizeVetoes(t *testing.T) {
	cfg := DefaultScoreConfig()

	r := cleanReport()
	r.Stability.Summary.Unstable = 1
	r.Finalize(cfg)
	assert.False(t, r.ProductionReady, "unstable sweep must veto")

	r = cleanReport()
	r.Endurance = &EnduranceSection{Passed: false, Reasons: []string{"memory growth"}}
	r.Finalize(cfg)
	assert.False(t, r.ProductionReady, "failed endurance must veto")

	r = cleanReport()
	r.Units = append(r.Units, UnitRecord{
		Unit:        "response",
		Status:      "FAILED",
		FailureKind: harness.FailureCreation.String(),
	})
	r.Finalize(cfg)
	assert.False(t, r.ProductionReady, "creation failure must veto")

	r = cleanReport()
	r.NoiseFloor = nil
	r.Impulse = nil
	r.Finalize(cfg)
	assert.False(t, r.ProductionReady, "grade below cutoff must veto")
}

func TestRecordUnit(t *testing.T) {
	rec := RecordUnit("thd", nil)
	assert.Equal(t, UnitRecord{Unit: "thd", Status: "PASSED"}, rec)

	err := harness.NewFailure(harness.FailureEngineFault, "engine panic: boom")
	rec = RecordUnit("response", err)
	assert.Equal(t, "FAILED", rec.Status)
	assert.Equal(t, "ENGINE_FAULT", rec.FailureKind)
	assert.Contains(t, rec.Reason, "boom")

	err = harness.NewFailure(harness.FailurePrecondition, "tone above Nyquist")
	rec = RecordUnit("imd", err)
	assert.Equal(t, "SKIPPED", rec.Status)
	assert.Equal(t, "PRECONDITION", rec.FailureKind)
}

func TestNewDistortionSectionSanitizes(t *testing.T) {
	res := &thd.Result{FundamentalFreq: 1000, THDPercent: 0.01, OddEvenRatio: math.Inf(1)}

	sec := NewDistortionSection(res)
	assert.Equal(t, 1e9, sec.OddEvenRatio)

	var buf bytes.Buffer
	r := &EngineReport{Distortion: sec}
	require.NoError(t, r.WriteJSON(&buf))
	assert.NotContains(t, buf.String(), "Inf")
}

func TestWriteJSONRoundTrip(t *testing.T) {
	r := cleanReport()
	r.Finalize(DefaultScoreConfig())

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))

	var back EngineReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))

	assert.Equal(t, r.RunID, back.RunID)
	assert.Equal(t, r.EngineName, back.EngineName)
	assert.Equal(t, r.Grade, back.Grade)
	assert.Equal(t, r.Stability.Summary, back.Stability.Summary)
	assert.Equal(t, r.Units, back.Units)
}

func TestExportCSVGolden(t *testing.T) {
	r := &EngineReport{
		EngineName: "testdouble.bypass",
		FrequencyResponse: &ResponseSection{
			Points: []ResponsePoint{
				{Frequency: 20, MagnitudeDB: 0.5, PhaseRadians: -0.25},
				{Frequency: 100, MagnitudeDB: -3.01, PhaseRadians: 0.125},
				{Frequency: 1000, MagnitudeDB: -12.5, PhaseRadians: 3.5},
			},
		},
		Impulse: &ImpulseSection{
			SampleRate: 48000,
			Samples:    []float64{1, -0.5, 0.25},
		},
		Distortion: &DistortionSection{FundamentalFreq: 1000, THDPercent: 0.5},
	}

	dir := t.TempDir()
	require.NoError(t, r.ExportCSV(dir))

	g := goldie.New(t)
	for _, kind := range []string{"response", "impulse", "thd"} {
		data, err := os.ReadFile(filepath.Join(dir, r.FileName(kind)))
		require.NoError(t, err)
		g.Assert(t, "bypass_"+kind, data)
	}
}

func TestFileNameSanitized(t *testing.T) {
	r := &EngineReport{EngineName: "vendor/model x"}

	assert.Equal(t, "vendor_model_x_response.csv", r.FileName("response"))
	assert.Equal(t, "vendor_model_x_report.json", r.FileName("report"))
	assert.False(t, strings.ContainsAny(r.FileName("thd"), "/\\ "))
}
