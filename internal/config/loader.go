package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProberNames lists the speech probability backends shipped with
// hushcut. [Validate] warns about names outside this list since they may
// still be registered by an embedding program.
var ValidProberNames = []string{"energy", "probfile"}

// Load reads the YAML file at path, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of [Default], rejecting unknown
// fields, then applies defaults and validates. An empty document yields
// [Default].
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg for coherence and returns every failure joined.
// It expects defaults to have been applied.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if err := cfg.VAD.SegmentParams().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("vad: %w", err))
	}
	if name := cfg.VAD.Prober.Name; !slices.Contains(ValidProberNames, name) {
		slog.Warn("unknown prober name, may be a typo or a third-party prober",
			"name", name,
			"known", ValidProberNames,
		)
	}

	p := cfg.Pipeline
	if p.SpeedFactor <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.speed_factor %.2f must be positive", p.SpeedFactor))
	} else if p.SpeedFactor < 1 {
		slog.Warn("pipeline.speed_factor below 1 slows non-speech down", "speed_factor", p.SpeedFactor)
	}
	if !p.FailurePolicy.IsValid() {
		errs = append(errs, fmt.Errorf("pipeline.failure_policy %q is invalid; valid values: hard_fail, skip_span", p.FailurePolicy))
	}
	if p.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("pipeline.concurrency %d must be at least 1", p.Concurrency))
	}
	if p.MaxConsecutiveFailures < 1 {
		errs = append(errs, fmt.Errorf("pipeline.max_consecutive_failures %d must be at least 1", p.MaxConsecutiveFailures))
	}
	if p.OperationTimeout < 0 {
		errs = append(errs, fmt.Errorf("pipeline.operation_timeout %s must not be negative", p.OperationTimeout))
	}

	return errors.Join(errs...)
}
