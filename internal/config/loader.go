package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidThresholdOrder is returned by [Validate] when the decision
// thresholds do not satisfy t_approve < t_escalate < t_block. A config that
// fails this check could silently invert the intended decision, so loading
// it is fatal.
var ErrInvalidThresholdOrder = errors.New("config: thresholds must satisfy t_approve < t_escalate < t_block")

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued runtime knobs with their documented
// defaults. Decision thresholds and sensor weights are deliberately not
// defaulted — they must be explicit.
func ApplyDefaults(cfg *Config) {
	if cfg.Sensors == nil {
		cfg.Sensors = map[string]SensorConfig{}
	}
	if cfg.Runtime.Concurrency == 0 {
		cfg.Runtime.Concurrency = 4
	}
	if cfg.Runtime.SensorTimeout == 0 {
		cfg.Runtime.SensorTimeout = Duration(2 * time.Second)
	}
	if cfg.Runtime.RunDeadline == 0 {
		cfg.Runtime.RunDeadline = Duration(10 * time.Second)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Decision thresholds. Monotonicity is a hard failure, not a warning.
	for _, t := range []struct {
		name  string
		value float64
	}{
		{"t_approve", cfg.TApprove},
		{"t_escalate", cfg.TEscalate},
		{"t_block", cfg.TBlock},
	} {
		if t.value < 0 || t.value > 1 {
			errs = append(errs, fmt.Errorf("%s %.3f is out of range [0, 1]", t.name, t.value))
		}
	}
	if !(cfg.TApprove < cfg.TEscalate && cfg.TEscalate < cfg.TBlock) {
		errs = append(errs, fmt.Errorf("%w: got t_approve=%.3f t_escalate=%.3f t_block=%.3f",
			ErrInvalidThresholdOrder, cfg.TApprove, cfg.TEscalate, cfg.TBlock))
	}

	if cfg.MinDeterminateSensors < 0 {
		errs = append(errs, fmt.Errorf("min_determinate_sensors %d must be non-negative", cfg.MinDeterminateSensors))
	}
	if cfg.Runtime.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("runtime.concurrency %d must be non-negative", cfg.Runtime.Concurrency))
	}

	// Sensors, in sorted order so the joined error is deterministic.
	ids := make([]string, 0, len(cfg.Sensors))
	for id := range cfg.Sensors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		sc := cfg.Sensors[id]
		prefix := fmt.Sprintf("sensors[%s]", id)

		if id == "" {
			errs = append(errs, errors.New("sensors: empty sensor id"))
			continue
		}
		if sc.Category == "" {
			errs = append(errs, fmt.Errorf("%s.category is required", prefix))
		} else if !sc.Category.IsValid() {
			errs = append(errs, fmt.Errorf("%s.category %q is invalid; valid values: prosecution, defense, diagnostic", prefix, sc.Category))
		}
		if sc.Direction != "" && !sc.Direction.IsValid() {
			errs = append(errs, fmt.Errorf("%s.direction %q is invalid; valid values: %s, %s",
				prefix, sc.Direction, DirectionRiskIncreases, DirectionRiskDecreases))
		}

		if sc.Category.Weighted() {
			// Weight is explicit and required for weighted sensors. There is
			// no fallback weight anywhere in the pipeline.
			if sc.Weight == nil {
				errs = append(errs, fmt.Errorf("%s.weight is required for %s sensors; there is no implicit default", prefix, sc.Category))
			} else if *sc.Weight < 0 {
				errs = append(errs, fmt.Errorf("%s.weight %.3f must be non-negative", prefix, *sc.Weight))
			}
			if sc.Direction == "" && sc.Threshold != nil {
				errs = append(errs, fmt.Errorf("%s.direction is required when a threshold is configured", prefix))
			}
		}

		if sc.Threshold != nil && (*sc.Threshold < 0) {
			errs = append(errs, fmt.Errorf("%s.threshold %.3f must be non-negative", prefix, *sc.Threshold))
		}
		if sc.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout must be non-negative", prefix))
		}
	}

	return errors.Join(errs...)
}

// WriteFile marshals cfg to YAML and writes it to path with 0644 permissions.
// Used by the calibration CLI to emit candidate artifacts; never called on
// the live config path by calibration itself.
func WriteFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %q: %w", path, err)
	}
	return nil
}
