package report

import "math"

// ScoreConfig weights the grade components. The component scores are
// normalized to [0, 1] and scaled by their weight, so the default grade
// spans 0 to 10.
type ScoreConfig struct {
	DistortionWeight float64 `yaml:"distortionWeight"`
	NoiseWeight      float64 `yaml:"noiseWeight"`
	TransientWeight  float64 `yaml:"transientWeight"`
	StereoWeight     float64 `yaml:"stereoWeight"`

	// PassCutoff is the minimum grade for a passing engine.
	PassCutoff float64 `yaml:"passCutoff"`
}

// DefaultScoreConfig returns the standard weighting: distortion 3,
// noise 2.5, transient 2.5, stereo 2, pass cutoff 6.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		DistortionWeight: 3,
		NoiseWeight:      2.5,
		TransientWeight:  2.5,
		StereoWeight:     2,
		PassCutoff:       6,
	}
}

// ComputeGrade evaluates the weighted grade from the present sections.
// A missing section contributes zero.
func (r *EngineReport) ComputeGrade(cfg ScoreConfig) float64 {
	return cfg.DistortionWeight*r.distortionScore() +
		cfg.NoiseWeight*r.noiseScore() +
		cfg.TransientWeight*r.transientScore() +
		cfg.StereoWeight*r.stereoScore()
}

// Finalize computes the grade and the production-ready verdict. An engine
// is production ready when it grades at or above the cutoff, never went
// unstable in the sweep, survived endurance (when run), and constructed
// cleanly for every unit.
func (r *EngineReport) Finalize(cfg ScoreConfig) {
	r.Grade = r.ComputeGrade(cfg)
	r.ProductionReady = r.Grade >= cfg.PassCutoff &&
		(r.Stability == nil || r.Stability.Summary.Unstable == 0) &&
		(r.Endurance == nil || r.Endurance.Passed) &&
		!r.CreationFailed()
}

// distortionScore maps THD on a log scale: 0.01% or better is a full
// score, 10% or worse scores zero.
func (r *EngineReport) distortionScore() float64 {
	if r.Distortion == nil {
		return 0
	}

	thd := r.Distortion.THDPercent
	if thd <= 0.01 {
		return 1
	}

	return clamp01(1 - (math.Log10(thd)+2)/3)
}

// noiseScore maps the noise floor linearly: -120 dBFS or below is a full
// score, -40 dBFS or above scores zero.
func (r *EngineReport) noiseScore() float64 {
	if r.NoiseFloor == nil {
		return 0
	}

	return clamp01((-40 - r.NoiseFloor.NoiseFloorDB) / 80)
}

// transientScore starts full and loses credit for implausible decay
// behavior: a tail that never decays, a runaway RT60, or an excessive
// pre-delay.
func (r *EngineReport) transientScore() float64 {
	if r.Impulse == nil {
		return 0
	}

	score := 1.0
	if r.Impulse.RT60Seconds > 10 {
		score -= 0.5
	}
	if r.Impulse.NotFullyDecayed {
		score -= 0.25
	}
	if r.Impulse.PreDelayMs > 250 {
		score -= 0.25
	}

	return clamp01(score)
}

// stereoScore penalizes level imbalance and poor mono compatibility.
func (r *EngineReport) stereoScore() float64 {
	if r.Stereo == nil {
		return 0
	}

	score := 1.0
	if r.Stereo.BalanceFlagged {
		score -= 0.5
	}
	if r.Stereo.MonoCompatibility < 0.5 {
		score -= 0.5
	}

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
