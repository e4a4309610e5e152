// Package config loads aurad configuration from a YAML file with environment
// variable overrides. Missing file falls back to defaults so the binary runs
// out of the box against a local SQLite store and the rule-based strategy.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all aurad configuration.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Storage  StorageConfig  `yaml:"storage"`
	Strategy StrategyConfig `yaml:"strategy"`
	Membrane MembraneConfig `yaml:"membrane"`
	Bus      BusConfig      `yaml:"bus"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GatewayConfig configures the thin HTTP shim.
type GatewayConfig struct {
	Listen string `yaml:"listen"`
}

// StorageConfig configures the SQLite store.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// StrategyConfig selects and configures the decision strategy.
type StrategyConfig struct {
	// Engine is "rules" (deterministic baseline) or "gemini" (model-backed).
	Engine string `yaml:"engine"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`

	// UITriggerPrice routes bids above this value to human confirmation.
	UITriggerPrice float64 `yaml:"ui_trigger_price"`
}

// MembraneConfig configures the inbound guard.
type MembraneConfig struct {
	// BlocklistPath is an optional YAML file of injection patterns; when set
	// the detector hot-reloads it on change.
	BlocklistPath string `yaml:"blocklist_path"`
}

// BusConfig configures audit event publication.
type BusConfig struct {
	// Endpoint is the webhook URL events are POSTed to. Empty disables
	// publication (events are dropped with a debug log).
	Endpoint string `yaml:"endpoint"`

	// Buffer is the emitter channel capacity; a full buffer drops events
	// rather than blocking the decision path.
	Buffer int `yaml:"buffer"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Gateway: GatewayConfig{Listen: ":8600"},
		Storage: StorageConfig{Path: "aura.db"},
		Strategy: StrategyConfig{
			Engine:         "rules",
			Model:          "gemini-2.0-flash",
			UITriggerPrice: 1000,
		},
		Bus:      BusConfig{Buffer: 256},
		Timeouts: DefaultTimeoutsConfig(),
		Logging:  LoggingConfig{Level: "info"},
	}
}

// Load reads the config file at path (optional), applies environment
// overrides, validates, and returns the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverrides layers environment variables over the file values.
// GEMINI_API_KEY (or GOOGLE_API_KEY) both sets the key and, when no engine
// was chosen explicitly, switches the strategy to the model-backed engine.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AURA_LISTEN"); v != "" {
		c.Gateway.Listen = v
	}
	if v := os.Getenv("AURA_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("AURA_BUS_ENDPOINT"); v != "" {
		c.Bus.Endpoint = v
	}
	if v := os.Getenv("AURA_BLOCKLIST_PATH"); v != "" {
		c.Membrane.BlocklistPath = v
	}
	if v := os.Getenv("AURA_STRATEGY"); v != "" {
		c.Strategy.Engine = v
	}

	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		key = os.Getenv("GOOGLE_API_KEY")
	}
	if key != "" {
		c.Strategy.APIKey = key
		if c.Strategy.Engine == "" {
			c.Strategy.Engine = "gemini"
		}
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Strategy.Engine {
	case "rules":
	case "gemini":
		if c.Strategy.APIKey == "" {
			return fmt.Errorf("strategy engine %q requires an api key", c.Strategy.Engine)
		}
	default:
		return fmt.Errorf("unknown strategy engine %q", c.Strategy.Engine)
	}
	if c.Strategy.UITriggerPrice <= 0 {
		return fmt.Errorf("strategy.ui_trigger_price must be positive, got %v", c.Strategy.UITriggerPrice)
	}
	if c.Bus.Buffer <= 0 {
		return fmt.Errorf("bus.buffer must be positive, got %d", c.Bus.Buffer)
	}
	if _, err := c.Timeouts.Parse(); err != nil {
		return err
	}
	return nil
}
