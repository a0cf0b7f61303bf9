package suite

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/algo-verify/report"
)

// Duration wraps time.Duration so YAML configs can use "30s" style
// strings.
type Duration time.Duration

// Std returns the wrapped standard duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML accepts either a nanosecond count or a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("suite: invalid duration value")
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("suite: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)

	return nil
}

// MarshalYAML renders the duration in string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config holds every knob of a validation batch.
type Config struct {
	SampleRate  float64  `yaml:"sampleRate"`
	BlockSize   int      `yaml:"blockSize"`
	Seed        int64    `yaml:"seed"`
	Workers     int      `yaml:"workers"`
	UnitTimeout Duration `yaml:"unitTimeout"`
	OutputDir   string   `yaml:"outputDir"`

	// THDFrequency is the distortion test fundamental. The IMD pair is
	// SMPTE-style; the high tone is pulled down when it would not fit
	// under Nyquist.
	THDFrequency     float64 `yaml:"thdFrequency"`
	IMDLowFrequency  float64 `yaml:"imdLowFrequency"`
	IMDHighFrequency float64 `yaml:"imdHighFrequency"`

	// Stability sweep ceilings, see the stability package.
	HardCeiling    float64 `yaml:"hardCeiling"`
	SoftCeiling    float64 `yaml:"softCeiling"`
	SilenceFloorDB float64 `yaml:"silenceFloorDB"`

	// Endurance enables the long-run monitor per engine.
	Endurance         bool     `yaml:"endurance"`
	EnduranceDuration Duration `yaml:"enduranceDuration"`

	Score report.ScoreConfig `yaml:"score"`
}

// DefaultConfig returns the standard batch configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:        48000,
		BlockSize:         512,
		Workers:           2,
		UnitTimeout:       Duration(30 * time.Second),
		THDFrequency:      1000,
		IMDLowFrequency:   60,
		IMDHighFrequency:  7000,
		HardCeiling:       10,
		SoftCeiling:       5,
		SilenceFloorDB:    -60,
		EnduranceDuration: Duration(10 * time.Second),
		Score:             report.DefaultScoreConfig(),
	}
}

// Validate rejects configurations the suite cannot run with.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("suite: sample rate must be > 0: %f", c.SampleRate)
	}
	if c.BlockSize < 1 || c.BlockSize > 1<<16 {
		return fmt.Errorf("suite: block size out of range: %d", c.BlockSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("suite: workers must be >= 1: %d", c.Workers)
	}
	if c.THDFrequency <= 0 || c.THDFrequency >= c.SampleRate/2 {
		return fmt.Errorf("suite: THD frequency must sit below Nyquist: %f", c.THDFrequency)
	}
	if c.IMDLowFrequency <= 0 || c.IMDLowFrequency >= c.IMDHighFrequency {
		return fmt.Errorf("suite: IMD pair must be ordered positive frequencies: %f, %f",
			c.IMDLowFrequency, c.IMDHighFrequency)
	}
	if c.SoftCeiling <= 0 || c.HardCeiling < c.SoftCeiling {
		return fmt.Errorf("suite: ceilings must satisfy 0 < soft <= hard: %f, %f",
			c.SoftCeiling, c.HardCeiling)
	}
	if c.Score.PassCutoff < 0 {
		return fmt.Errorf("suite: pass cutoff must be >= 0: %f", c.Score.PassCutoff)
	}
	return nil
}

// LoadConfig reads a YAML config file on top of the defaults. An empty
// path returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("suite: read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("suite: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
