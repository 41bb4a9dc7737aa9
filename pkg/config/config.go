// Package config loads and validates run configuration: the map batch, the
// step and time budgets, concurrency bounds, and dataset/broker settings.
// All of these are policy, not contract: nothing here is hard-coded into
// the session state machine.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/symgym/symgym/pkg/domain"
)

// Duration wraps time.Duration with YAML/string parsing ("5s", "200ms").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MapEntry names one map of the batch with optional per-map overrides.
type MapEntry struct {
	ID         string `yaml:"id" mapstructure:"id"`
	StepBudget int    `yaml:"step_budget,omitempty" mapstructure:"step_budget"`
}

// Broker configures how engine connections are established.
type Broker struct {
	URL      string `yaml:"url,omitempty" mapstructure:"url"`
	PortFrom int    `yaml:"port_from,omitempty" mapstructure:"port_from"`
	PortTo   int    `yaml:"port_to,omitempty" mapstructure:"port_to"`
}

// Dataset configures episode persistence.
type Dataset struct {
	Dir       string `yaml:"dir,omitempty" mapstructure:"dir"`
	RedisAddr string `yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`
}

// Config is the full run configuration.
type Config struct {
	Maps []MapEntry `yaml:"maps" mapstructure:"maps"`

	StepBudget  int      `yaml:"step_budget" mapstructure:"step_budget"`
	StepTimeout Duration `yaml:"step_timeout" mapstructure:"-"`
	Concurrency int      `yaml:"concurrency" mapstructure:"concurrency"`
	Retries     int      `yaml:"retries" mapstructure:"retries"`
	Seed        int64    `yaml:"seed" mapstructure:"seed"`

	Broker  Broker  `yaml:"broker,omitempty" mapstructure:"broker"`
	Dataset Dataset `yaml:"dataset,omitempty" mapstructure:"dataset"`
}

// Default returns the configuration used when a field is left unset.
func Default() Config {
	return Config{
		StepBudget:  5000,
		StepTimeout: Duration(30 * time.Second),
		Concurrency: 4,
		Seed:        42,
		Broker:      Broker{PortFrom: 35000, PortTo: 36000},
	}
}

// Load reads and validates a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes over the defaults and validates.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyOverrides merges an untyped override map (for example from a
// programmatic caller) into the config and re-validates.
func (c *Config) ApplyOverrides(overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(overrides); err != nil {
		return fmt.Errorf("apply overrides: %w", err)
	}
	if raw, ok := overrides["step_timeout"]; ok {
		s, ok := raw.(string)
		if !ok {
			return fmt.Errorf("step_timeout override must be a duration string, got %T", raw)
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("step_timeout override: %w", err)
		}
		c.StepTimeout = Duration(parsed)
	}
	return c.Validate()
}

// Validate checks the invariants the driver and broker rely on.
func (c Config) Validate() error {
	if len(c.Maps) == 0 {
		return fmt.Errorf("config: at least one map is required")
	}
	for i, m := range c.Maps {
		if m.ID == "" {
			return fmt.Errorf("config: map %d has no id", i)
		}
	}
	if c.StepBudget < 0 {
		return fmt.Errorf("config: step_budget must be >= 0")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be >= 1")
	}
	if c.Retries < 0 {
		return fmt.Errorf("config: retries must be >= 0")
	}
	if c.Broker.PortFrom > c.Broker.PortTo {
		return fmt.Errorf("config: broker port range [%d,%d] is empty", c.Broker.PortFrom, c.Broker.PortTo)
	}
	return nil
}

// Registrations expands the map batch into per-map registrations, applying
// the global step budget where no per-map override is set.
func (c Config) Registrations() []domain.Registration {
	out := make([]domain.Registration, 0, len(c.Maps))
	for _, m := range c.Maps {
		budget := c.StepBudget
		if m.StepBudget > 0 {
			budget = m.StepBudget
		}
		out = append(out, domain.Registration{MapID: m.ID, StepBudget: budget})
	}
	return out
}
