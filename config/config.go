// Package config - YAML configuration for camtrap runs.
package config

import (
	"log/slog"
	"os"
	"runtime"

	"github.com/nvr-ai/camtrap/onnx"
	"github.com/nvr-ai/camtrap/tracker"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration. Fields omitted from a file keep their
// Default values.
type Config struct {
	Video      string `yaml:"video"`
	Background string `yaml:"background"`

	AreaThreshold     float64 `yaml:"area_threshold"`
	BackgroundSamples int     `yaml:"background_samples"`
	Seed              uint64  `yaml:"seed"`
	BlurKernel        int     `yaml:"blur_kernel"`
	BinaryThreshold   float64 `yaml:"binary_threshold"`
	DilateIterations  int     `yaml:"dilate_iterations"`
	ExpandPercent     float64 `yaml:"expand_percent"`

	Classifier Classifier `yaml:"classifier"`
	Tracking   Tracking   `yaml:"tracking"`
	Labels     Labels     `yaml:"labels"`
	Output     Output     `yaml:"output"`

	Workers  int    `yaml:"workers"`
	LogLevel string `yaml:"log_level"`
}

// Classifier configures the optional crop classifier.
type Classifier struct {
	// Dir holds model.onnx and labels. Empty disables classification.
	Dir            string  `yaml:"dir"`
	Backend        string  `yaml:"backend"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	BatchSize      int     `yaml:"batch_size"`
	RuntimeLibrary string  `yaml:"runtime_library"`
	Layout         string  `yaml:"layout"`
	Softmax        bool    `yaml:"softmax"`
}

// Tracking configures the object tracker.
type Tracking struct {
	Enabled  bool    `yaml:"enabled"`
	Distance float64 `yaml:"distance"`
	Policy   string  `yaml:"policy"`
}

// Labels configures per-track label aggregation.
type Labels struct {
	MinCount      int     `yaml:"min_count"`
	MinOccurrence float64 `yaml:"min_occurrence"`
}

// Output configures where results go besides the printed table.
type Output struct {
	// Video is the annotated video path. Empty skips rendering.
	Video string `yaml:"video"`
	// DB is the sqlite database path. Empty skips persistence.
	DB string `yaml:"db"`
}

// Default returns the camera-trap defaults.
func Default() Config {
	return Config{
		AreaThreshold:     3000,
		BackgroundSamples: 50,
		BlurKernel:        11,
		BinaryThreshold:   20,
		DilateIterations:  2,
		Classifier: Classifier{
			Backend:        string(onnx.BackendNet),
			ScoreThreshold: 95,
			BatchSize:      32,
			Layout:         string(onnx.LayoutNHWC),
		},
		Tracking: Tracking{
			Enabled:  true,
			Distance: 30,
			Policy:   tracker.LinkLast.String(),
		},
		Labels: Labels{
			MinCount:      3,
			MinOccurrence: 25,
		},
		LogLevel: "info",
	}
}

// Load reads a YAML file on top of Default and validates the result.
//
// Arguments:
//   - path: The YAML file.
//
// Returns:
//   - Config: The validated configuration.
//   - error: Error if the file cannot be read, parsed or validated.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Validate rejects impossible values and fills Workers from runtime.NumCPU
// when it is zero.
func (c *Config) Validate() error {
	if c.AreaThreshold < 0 {
		return errors.Errorf("area_threshold must be non-negative, got %v", c.AreaThreshold)
	}
	if c.BackgroundSamples < 1 {
		return errors.Errorf("background_samples must be at least 1, got %d", c.BackgroundSamples)
	}
	if c.BlurKernel < 1 || c.BlurKernel%2 == 0 {
		return errors.Errorf("blur_kernel must be a positive odd number, got %d", c.BlurKernel)
	}
	if c.BinaryThreshold < 0 || c.BinaryThreshold > 255 {
		return errors.Errorf("binary_threshold must be in [0,255], got %v", c.BinaryThreshold)
	}
	if c.DilateIterations < 0 {
		return errors.Errorf("dilate_iterations must be non-negative, got %d", c.DilateIterations)
	}
	if c.Workers < 0 {
		return errors.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}

	for name, pct := range map[string]float64{
		"expand_percent":             c.ExpandPercent,
		"classifier.score_threshold": c.Classifier.ScoreThreshold,
		"labels.min_occurrence":      c.Labels.MinOccurrence,
	} {
		if pct < 0 || pct > 100 {
			return errors.Errorf("%s must be in [0,100], got %v", name, pct)
		}
	}

	if c.Classifier.BatchSize < 1 {
		return errors.Errorf("classifier.batch_size must be at least 1, got %d", c.Classifier.BatchSize)
	}
	if _, err := c.Backend(); err != nil {
		return err
	}
	if _, err := c.Layout(); err != nil {
		return err
	}
	if c.Tracking.Distance < 0 {
		return errors.Errorf("tracking.distance must be non-negative, got %v", c.Tracking.Distance)
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if c.Labels.MinCount < 0 {
		return errors.Errorf("labels.min_count must be non-negative, got %d", c.Labels.MinCount)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Backend returns the classifier backend.
func (c Config) Backend() (onnx.Backend, error) {
	switch b := onnx.Backend(c.Classifier.Backend); b {
	case onnx.BackendNet, onnx.BackendRuntime:
		return b, nil
	case "":
		return onnx.BackendNet, nil
	default:
		return "", errors.Errorf("unknown classifier.backend %q", c.Classifier.Backend)
	}
}

// Layout returns the runtime input tensor layout.
func (c Config) Layout() (onnx.Layout, error) {
	switch l := onnx.Layout(c.Classifier.Layout); l {
	case onnx.LayoutNCHW, onnx.LayoutNHWC:
		return l, nil
	case "":
		return onnx.LayoutNHWC, nil
	default:
		return "", errors.Errorf("unknown classifier.layout %q", c.Classifier.Layout)
	}
}

// Policy returns the tracker link policy.
func (c Config) Policy() (tracker.Policy, error) {
	return tracker.ParsePolicy(c.Tracking.Policy)
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, errors.Wrapf(err, "log_level")
	}
	return level, nil
}

// YAML renders the configuration, as stored alongside a run.
func (c Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", errors.Wrap(err, "marshal config")
	}
	return string(out), nil
}
