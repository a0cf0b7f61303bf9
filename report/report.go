// Package report aggregates the measurement results of one engine into a
// serializable report with a weighted grade and per-unit diagnostics.
package report

import (
	"math"
	"time"

	"github.com/cwbudde/algo-verify/endurance"
	"github.com/cwbudde/algo-verify/harness"
	"github.com/cwbudde/algo-verify/measure/imd"
	"github.com/cwbudde/algo-verify/measure/ir"
	"github.com/cwbudde/algo-verify/measure/noise"
	"github.com/cwbudde/algo-verify/measure/periodicity"
	"github.com/cwbudde/algo-verify/measure/response"
	"github.com/cwbudde/algo-verify/measure/stereo"
	"github.com/cwbudde/algo-verify/measure/thd"
	"github.com/cwbudde/algo-verify/stability"
)

// EngineReport collects everything measured about one engine. It is a
// plain value with no rendering logic; WriteJSON and ExportCSV serialize
// it.
type EngineReport struct {
	RunID      string    `json:"runID"`
	EngineID   string    `json:"engineID"`
	EngineName string    `json:"engineName"`
	CreatedAt  time.Time `json:"createdAt"`

	FrequencyResponse *ResponseSection   `json:"frequencyResponse,omitempty"`
	Distortion        *DistortionSection `json:"distortion,omitempty"`
	Intermodulation   *IMDSection        `json:"intermodulation,omitempty"`
	NoiseFloor        *NoiseSection      `json:"noiseFloor,omitempty"`
	Impulse           *ImpulseSection    `json:"impulse,omitempty"`
	Stereo            *StereoSection     `json:"stereo,omitempty"`
	Modulation        *ModulationSection `json:"modulation,omitempty"`
	Stability         *StabilitySection  `json:"stability,omitempty"`
	Endurance         *EnduranceSection  `json:"endurance,omitempty"`

	Units []UnitRecord `json:"units"`

	Grade           float64 `json:"grade"`
	ProductionReady bool    `json:"productionReady"`
}

// UnitRecord is the machine-readable outcome of one measurement unit.
type UnitRecord struct {
	Unit        string `json:"unit"`
	Status      string `json:"status"`
	FailureKind string `json:"failureKind,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// RecordUnit builds the unit record for a measurement outcome. An unmet
// analysis precondition is recorded SKIPPED rather than FAILED; it says
// nothing about the engine.
func RecordUnit(unit string, err error) UnitRecord {
	if err == nil {
		return UnitRecord{Unit: unit, Status: "PASSED"}
	}

	status := "FAILED"
	if harness.KindOf(err) == harness.FailurePrecondition {
		status = "SKIPPED"
	}

	return UnitRecord{
		Unit:        unit,
		Status:      status,
		FailureKind: harness.KindOf(err).String(),
		Reason:      err.Error(),
	}
}

// CreationFailed reports whether any unit failed to construct its engine.
func (r *EngineReport) CreationFailed() bool {
	for _, u := range r.Units {
		if u.FailureKind == harness.FailureCreation.String() {
			return true
		}
	}
	return false
}

// ResponsePoint is one frequency response measurement.
type ResponsePoint struct {
	Frequency    float64 `json:"frequency"`
	MagnitudeDB  float64 `json:"magnitudeDB"`
	PhaseRadians float64 `json:"phaseRadians"`
}

// ResponseSection summarizes the frequency response measurement.
type ResponseSection struct {
	Points             []ResponsePoint `json:"points"`
	CutoffFrequency    float64         `json:"cutoffFrequency,omitempty"`
	SlopeDBPerOctave   float64         `json:"slopeDBPerOctave,omitempty"`
	PassbandFlatnessDB float64         `json:"passbandFlatnessDB"`
	ResonantPeakDB     float64         `json:"resonantPeakDB,omitempty"`
	ResonanceFrequency float64         `json:"resonanceFrequency,omitempty"`
}

// NewResponseSection converts a response measurement.
func NewResponseSection(r *response.Result) *ResponseSection {
	points := make([]ResponsePoint, len(r.Points))
	for i, p := range r.Points {
		points[i] = ResponsePoint{
			Frequency:    p.Frequency,
			MagnitudeDB:  finite(p.MagnitudeDB),
			PhaseRadians: finite(p.PhaseRadians),
		}
	}

	return &ResponseSection{
		Points:             points,
		CutoffFrequency:    r.CutoffFrequency,
		SlopeDBPerOctave:   finite(r.SlopeDBPerOctave),
		PassbandFlatnessDB: finite(r.PassbandFlatnessDB),
		ResonantPeakDB:     finite(r.ResonantPeakDB),
		ResonanceFrequency: r.ResonanceFrequency,
	}
}

// DistortionSection summarizes the THD measurement.
type DistortionSection struct {
	FundamentalFreq  float64   `json:"fundamentalFreq"`
	FundamentalLevel float64   `json:"fundamentalLevel"`
	THDPercent       float64   `json:"thdPercent"`
	THDdB            float64   `json:"thdDB"`
	THDNRatio        float64   `json:"thdnRatio"`
	SINADdB          float64   `json:"sinadDB"`
	OddEvenRatio     float64   `json:"oddEvenRatio"`
	HarmonicLevels   []float64 `json:"harmonicLevels,omitempty"`
}

// NewDistortionSection converts a THD measurement.
func NewDistortionSection(r *thd.Result) *DistortionSection {
	return &DistortionSection{
		FundamentalFreq:  r.FundamentalFreq,
		FundamentalLevel: finite(r.FundamentalLevel),
		THDPercent:       finite(r.THDPercent),
		THDdB:            finite(r.THDdB),
		THDNRatio:        finite(r.THDN),
		SINADdB:          finite(r.SINAD),
		OddEvenRatio:     finite(r.OddEvenRatio),
		HarmonicLevels:   r.HarmonicLevels,
	}
}

// IMDProduct is one intermodulation product level.
type IMDProduct struct {
	Label     string  `json:"label"`
	Frequency float64 `json:"frequency"`
	Level     float64 `json:"level"`
}

// IMDSection summarizes the intermodulation measurement.
type IMDSection struct {
	IMDPercent float64      `json:"imdPercent"`
	IMDdB      float64      `json:"imdDB"`
	Products   []IMDProduct `json:"products,omitempty"`
}

// NewIMDSection converts an IMD measurement.
func NewIMDSection(r *imd.Result) *IMDSection {
	products := make([]IMDProduct, len(r.ProductLevels))
	for i, p := range r.ProductLevels {
		products[i] = IMDProduct{Label: p.Label, Frequency: p.Frequency, Level: finite(p.Level)}
	}

	return &IMDSection{
		IMDPercent: finite(r.IMDPercent),
		IMDdB:      finite(r.IMDdB),
		Products:   products,
	}
}

// NoiseSection summarizes the noise floor measurement.
type NoiseSection struct {
	NoiseFloorDB float64 `json:"noiseFloorDB"`
	PeakDB       float64 `json:"peakDB"`
	Flatness     float64 `json:"flatness"`
	Centroid     float64 `json:"centroid"`
	Tonal        bool    `json:"tonal"`
}

// NewNoiseSection converts a noise measurement.
func NewNoiseSection(r *noise.Result) *NoiseSection {
	return &NoiseSection{
		NoiseFloorDB: finite(r.NoiseFloorDB),
		PeakDB:       finite(r.PeakDB),
		Flatness:     r.Flatness,
		Centroid:     r.Centroid,
		Tonal:        r.Tonal,
	}
}

// ImpulseSection summarizes the impulse response metrics. Samples holds
// the raw IR for CSV export and is excluded from JSON.
type ImpulseSection struct {
	RT60Seconds       float64 `json:"rt60Seconds"`
	NotFullyDecayed   bool    `json:"notFullyDecayed"`
	EchoDensityPerSec float64 `json:"echoDensityPerSec"`
	PreDelayMs        float64 `json:"preDelayMs"`
	EDTSeconds        float64 `json:"edtSeconds"`
	T20Seconds        float64 `json:"t20Seconds"`
	T30Seconds        float64 `json:"t30Seconds"`
	C50DB             float64 `json:"c50DB"`
	C80DB             float64 `json:"c80DB"`
	D50               float64 `json:"d50"`
	D80               float64 `json:"d80"`
	CenterTimeMs      float64 `json:"centerTimeMs"`
	SampleRate        float64 `json:"sampleRate"`

	Samples []float64 `json:"-"`
}

// NewImpulseSection converts impulse metrics and keeps the raw response
// for tabular export.
func NewImpulseSection(m *ir.Metrics, samples []float64, sampleRate float64) *ImpulseSection {
	return &ImpulseSection{
		RT60Seconds:       finite(m.RT60),
		NotFullyDecayed:   m.NotFullyDecayed,
		EchoDensityPerSec: m.EchoDensityPerSec,
		PreDelayMs:        m.PreDelayMs,
		EDTSeconds:        finite(m.EDT),
		T20Seconds:        finite(m.T20),
		T30Seconds:        finite(m.T30),
		C50DB:             finite(m.C50),
		C80DB:             finite(m.C80),
		D50:               m.D50,
		D80:               m.D80,
		CenterTimeMs:      finite(m.CenterTimeMs),
		SampleRate:        sampleRate,
		Samples:           samples,
	}
}

// StereoSection summarizes the stereo field measurement.
type StereoSection struct {
	Correlation       float64 `json:"correlation"`
	Width             float64 `json:"width"`
	MidSideRatioDB    float64 `json:"midSideRatioDB"`
	MonoCompatibility float64 `json:"monoCompatibility"`
	Balance           float64 `json:"balance"`
	BalanceFlagged    bool    `json:"balanceFlagged"`
}

// NewStereoSection converts a stereo measurement.
func NewStereoSection(m stereo.Metrics) *StereoSection {
	return &StereoSection{
		Correlation:       m.Correlation,
		Width:             m.Width,
		MidSideRatioDB:    finite(m.MidSideRatioDB),
		MonoCompatibility: m.MonoCompatibility,
		Balance:           finite(m.Balance),
		BalanceFlagged:    m.BalanceFlagged,
	}
}

// ModulationSection summarizes the modulation probe.
type ModulationSection struct {
	Detected   bool    `json:"detected"`
	RateHz     float64 `json:"rateHz,omitempty"`
	Confidence float64 `json:"confidence"`
}

// NewModulationSection converts a modulation probe result.
func NewModulationSection(r periodicity.Result) *ModulationSection {
	return &ModulationSection{Detected: r.Detected, RateHz: r.RateHz, Confidence: r.Confidence}
}

// StabilityOutcome is one classified parameter combination.
type StabilityOutcome struct {
	Combination string  `json:"combination"`
	Status      string  `json:"status"`
	Label       string  `json:"label"`
	Reason      string  `json:"reason,omitempty"`
	Peak        float64 `json:"peak"`
	RMSdB       float64 `json:"rmsDB"`
}

// StabilitySection summarizes the parameter sweep.
type StabilitySection struct {
	Summary  stability.Summary  `json:"summary"`
	Outcomes []StabilityOutcome `json:"outcomes,omitempty"`
}

// NewStabilitySection converts sweep outcomes.
func NewStabilitySection(outcomes []stability.Outcome, summary stability.Summary) *StabilitySection {
	converted := make([]StabilityOutcome, len(outcomes))
	for i, o := range outcomes {
		converted[i] = StabilityOutcome{
			Combination: o.Combination.String(),
			Status:      o.Status.String(),
			Label:       o.Label.String(),
			Reason:      o.Reason,
			Peak:        finite(o.Peak),
			RMSdB:       finite(o.RMSdB),
		}
	}

	return &StabilitySection{Summary: summary, Outcomes: converted}
}

// EnduranceSection summarizes the endurance run.
type EnduranceSection struct {
	Passed             bool     `json:"passed"`
	Reasons            []string `json:"reasons,omitempty"`
	GrowthRateMBPerMin float64  `json:"growthRateMBPerMin"`
	DegradationPercent float64  `json:"degradationPercent"`
	DCOffsetBlocks     int      `json:"dcOffsetBlocks"`
	ClippingBlocks     int      `json:"clippingBlocks"`
	LevelDriftDB       float64  `json:"levelDriftDB"`
	BlocksProcessed    int      `json:"blocksProcessed"`
}

// NewEnduranceSection converts an endurance summary.
func NewEnduranceSection(s endurance.Summary) *EnduranceSection {
	return &EnduranceSection{
		Passed:             s.Passed,
		Reasons:            s.Reasons,
		GrowthRateMBPerMin: s.GrowthRateMBPerMin,
		DegradationPercent: s.DegradationPercent,
		DCOffsetBlocks:     s.DCOffsetBlocks,
		ClippingBlocks:     s.ClippingBlocks,
		LevelDriftDB:       finite(s.LevelDriftDB),
		BlocksProcessed:    s.BlocksProcessed,
	}
}

// finite replaces non-finite values so the report always serializes.
// Infinities clamp to a large sentinel, NaN collapses to zero.
func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return 1e9
	case math.IsInf(v, -1):
		return -1e9
	}
	return v
}
