package enrich

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Config is the waterfall configuration loaded from YAML.
type Config struct {
	Defaults DefaultConfig `yaml:"defaults"`
	Steps    []StepConfig  `yaml:"steps"`
}

// DefaultConfig holds global waterfall defaults.
type DefaultConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs"`
	MaxCostUSD  float64 `yaml:"max_cost_usd"`
}

// StepConfig configures one provider step in priority order.
type StepConfig struct {
	Name         string  `yaml:"name"`
	Enabled      bool    `yaml:"enabled"`
	CostPerCall  float64 `yaml:"cost_per_call"`
	FallbackOnly bool    `yaml:"fallback_only"` // only when critical fields are still missing
}

// DefaultSteps is the built-in provider order when no config file is given.
func DefaultSteps() []StepConfig {
	return []StepConfig{
		{Name: "techdetect", Enabled: true},
		{Name: "clearview", Enabled: true, CostPerCall: 0.002},
		{Name: "kgraph", Enabled: true},
		{Name: "apollo", Enabled: true, CostPerCall: 0.01, FallbackOnly: true},
	}
}

// LoadConfig reads waterfall config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: read config %s", path)
	}

	// The YAML has a top-level "waterfall" key
	var wrapper struct {
		Waterfall Config `yaml:"waterfall"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "enrich: parse config")
	}

	cfg := &wrapper.Waterfall
	if cfg.Defaults.TimeoutSecs == 0 {
		cfg.Defaults.TimeoutSecs = 10
	}
	if len(cfg.Steps) == 0 {
		cfg.Steps = DefaultSteps()
	}
	return cfg, nil
}

// Timeout returns the per-provider timeout.
func (c *Config) Timeout() time.Duration {
	if c.Defaults.TimeoutSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Defaults.TimeoutSecs) * time.Second
}
