package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Enrichment   EnrichmentConfig   `yaml:"enrichment" mapstructure:"enrichment"`
	Verification VerificationConfig `yaml:"verification" mapstructure:"verification"`
	Providers    ProvidersConfig    `yaml:"providers" mapstructure:"providers"`
	SourceTrust  map[string]float64 `yaml:"source_trust" mapstructure:"source_trust"`
	Salesforce   SalesforceConfig   `yaml:"salesforce" mapstructure:"salesforce"`
	Notify       NotifyConfig       `yaml:"notify" mapstructure:"notify"`
	Batch        BatchConfig        `yaml:"batch" mapstructure:"batch"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the authoritative database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CacheConfig configures the deduplication cache tier.
type CacheConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"` // "memory" or "redis"
	RedisAddr  string `yaml:"redis_addr" mapstructure:"redis_addr"`
	TTLMinutes int    `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// EnrichmentConfig configures the provider waterfall.
type EnrichmentConfig struct {
	ConfigPath       string  `yaml:"config_path" mapstructure:"config_path"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	SkipTrustedAbove float64 `yaml:"skip_trusted_above" mapstructure:"skip_trusted_above"`
}

// VerificationConfig configures the email verification provider.
type VerificationConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CircuitFailures  int    `yaml:"circuit_failures" mapstructure:"circuit_failures"`
	CircuitResetSecs int    `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// ProvidersConfig holds per-provider credentials and pricing.
type ProvidersConfig struct {
	TechDetect TechDetectConfig `yaml:"techdetect" mapstructure:"techdetect"`
	ClearView  ClearViewConfig  `yaml:"clearview" mapstructure:"clearview"`
	KGraph     KGraphConfig     `yaml:"kgraph" mapstructure:"kgraph"`
	Apollo     ApolloConfig     `yaml:"apollo" mapstructure:"apollo"`
}

// TechDetectConfig configures the free technology lookup provider.
type TechDetectConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// ClearViewConfig configures the paid company search provider.
type ClearViewConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	CostPerCall float64 `yaml:"cost_per_call" mapstructure:"cost_per_call"`
}

// KGraphConfig configures the free knowledge graph provider.
type KGraphConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ApolloConfig configures the quota-limited fallback enrichment provider.
type ApolloConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	CostPerCall float64 `yaml:"cost_per_call" mapstructure:"cost_per_call"`
	CallsPerMin int     `yaml:"calls_per_min" mapstructure:"calls_per_min"`
}

// SalesforceConfig holds Salesforce JWT auth settings for lead export.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// NotifyConfig holds the fire-and-forget webhook target.
type NotifyConfig struct {
	WebhookURL  string `yaml:"webhook_url" mapstructure:"webhook_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentRecords int `yaml:"max_concurrent_records" mapstructure:"max_concurrent_records"`
}

// ServerConfig configures the HTTP trigger/review server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. An empty path falls
// back to config.yaml in the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("LEADPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_minutes", 60)
	v.SetDefault("enrichment.timeout_secs", 10)
	v.SetDefault("enrichment.skip_trusted_above", 0.85)
	v.SetDefault("verification.base_url", "https://api.zerobounce.net/v2")
	v.SetDefault("verification.timeout_secs", 10)
	v.SetDefault("verification.circuit_failures", 5)
	v.SetDefault("verification.circuit_reset_secs", 30)
	v.SetDefault("providers.techdetect.enabled", true)
	v.SetDefault("providers.clearview.enabled", true)
	v.SetDefault("providers.clearview.base_url", "https://serpapi.com/search")
	v.SetDefault("providers.clearview.cost_per_call", 0.002)
	v.SetDefault("providers.kgraph.enabled", true)
	v.SetDefault("providers.kgraph.base_url", "https://kgsearch.googleapis.com/v1/entities:search")
	v.SetDefault("providers.apollo.enabled", true)
	v.SetDefault("providers.apollo.base_url", "https://api.apollo.io/v1")
	v.SetDefault("providers.apollo.cost_per_call", 0.01)
	v.SetDefault("providers.apollo.calls_per_min", 50)
	v.SetDefault("source_trust", map[string]float64{
		"apollo":           0.9,
		"hunter":           0.9,
		"peopledatalabs":   0.9,
		"clearbit":         0.9,
		"linkedin_scraper": 0.7,
		"website_scraper":  0.5,
	})
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("notify.timeout_secs", 5)
	v.SetDefault("batch.max_concurrent_records", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration required for the given run mode is
// present. Mode is one of "process", "serve", or "export".
func (c *Config) Validate(mode string) error {
	var missing []string

	checkCommon := func() {
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
		if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
			missing = append(missing, "cache.redis_addr is required when cache.backend is redis")
		}
		if c.Cache.TTLMinutes < 1 {
			missing = append(missing, "cache.ttl_minutes must be >= 1")
		}
		if c.Batch.MaxConcurrentRecords < 1 || c.Batch.MaxConcurrentRecords > 50 {
			missing = append(missing, "batch.max_concurrent_records must be between 1 and 50")
		}
	}

	switch mode {
	case "process":
		checkCommon()
	case "serve":
		checkCommon()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	case "export":
		checkCommon()
		if c.Salesforce.ClientID == "" {
			missing = append(missing, "salesforce.client_id is required")
		}
		if c.Salesforce.Username == "" {
			missing = append(missing, "salesforce.username is required")
		}
		if c.Salesforce.KeyPath == "" {
			missing = append(missing, "salesforce.key_path is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: invalid configuration:\n  %s", strings.Join(missing, "\n  "))
	}
	return nil
}

// SourceQuality returns the trust score for a lead source in [0,1].
// Unknown sources get a neutral 0.5.
func (c *Config) SourceQuality(sourceName string) float64 {
	if q, ok := c.SourceTrust[strings.ToLower(sourceName)]; ok {
		return q
	}
	return 0.5
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
