package config

import (
	"fmt"
	"time"
)

// TimeoutsConfig holds the raw duration strings from YAML.
//
// In Go the SHORTEST timeout in a chain wins, so these are the canonical
// per-stage budgets: everything that wraps a stage derives its context from
// the matching value here rather than inventing its own.
type TimeoutsConfig struct {
	// Strategy bounds a single Decide call. When it expires the pipeline
	// resolves the stage to a FailureIntent.
	Strategy string `yaml:"strategy"`

	// Apply bounds the connector's persistence transaction.
	Apply string `yaml:"apply"`

	// Publish bounds one best-effort bus delivery inside the emitter worker.
	Publish string `yaml:"publish"`
}

// Timeouts is the parsed form used by the pipeline.
type Timeouts struct {
	Strategy time.Duration
	Apply    time.Duration
	Publish  time.Duration
}

// DefaultTimeoutsConfig returns the baseline stage budgets. The strategy
// budget is generous enough for a model round-trip; the rule engine never
// comes close to it.
func DefaultTimeoutsConfig() TimeoutsConfig {
	return TimeoutsConfig{
		Strategy: "20s",
		Apply:    "5s",
		Publish:  "3s",
	}
}

// Parse converts the string fields into durations, filling defaults for
// empty fields.
func (t TimeoutsConfig) Parse() (Timeouts, error) {
	def := DefaultTimeoutsConfig()
	parse := func(name, v, fallback string) (time.Duration, error) {
		if v == "" {
			v = fallback
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("timeouts.%s: %w", name, err)
		}
		if d <= 0 {
			return 0, fmt.Errorf("timeouts.%s must be positive, got %s", name, d)
		}
		return d, nil
	}

	var out Timeouts
	var err error
	if out.Strategy, err = parse("strategy", t.Strategy, def.Strategy); err != nil {
		return out, err
	}
	if out.Apply, err = parse("apply", t.Apply, def.Apply); err != nil {
		return out, err
	}
	if out.Publish, err = parse("publish", t.Publish, def.Publish); err != nil {
		return out, err
	}
	return out, nil
}
