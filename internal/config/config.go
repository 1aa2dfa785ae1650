// Package config provides configuration management.
package config

import (
	"encoding/json"
	"os"

	"wastescan/internal/errors"
	"wastescan/internal/logging"
)

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version"`

	// Database contains persistence configuration
	Database DatabaseConfig `json:"database"`

	// Scan contains orchestrator configuration
	Scan ScanConfig `json:"scan"`

	// Pricing contains price table configuration
	Pricing PricingConfig `json:"pricing"`

	// Thresholds contains classification thresholds
	Thresholds ThresholdConfig `json:"thresholds"`

	// AI contains recommendation enricher configuration
	AI AIConfig `json:"ai"`

	// Metrics contains metrics exposition configuration
	Metrics MetricsConfig `json:"metrics"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging"`
}

// DatabaseConfig contains persistence settings
type DatabaseConfig struct {
	// Path is the sqlite database file path
	Path string `json:"path"`
}

// ScanConfig contains orchestrator settings
type ScanConfig struct {
	// TTLSeconds is the staleness window for connection findings
	TTLSeconds int `json:"ttl_seconds"`

	// StatsRefreshInterval triggers the cross-user aggregate refresh
	// every Nth completed scan
	StatsRefreshInterval int `json:"stats_refresh_interval"`

	// ReferralScanThreshold is the completed-scan count after which a
	// referred user qualifies their referrer
	ReferralScanThreshold int `json:"referral_scan_threshold"`
}

// PricingConfig contains price table settings
type PricingConfig struct {
	// CurrencyFactor converts provider-native USD amounts into the
	// presentation currency
	CurrencyFactor string `json:"currency_factor"`
}

// ThresholdConfig contains classification thresholds
type ThresholdConfig struct {
	// InactivityDays is the per-provider inactivity cutoff
	InactivityDays map[string]int `json:"inactivity_days"`

	// UtilizationLowerBound marks over-provisioned resources
	UtilizationLowerBound float64 `json:"utilization_lower_bound"`
}

// AIConfig contains recommendation enricher settings
type AIConfig struct {
	// Models is the generative model fallback list, tried in order
	Models []string `json:"models"`

	// TimeoutSeconds bounds each generative call
	TimeoutSeconds int `json:"timeout_seconds"`

	// MaxTokens bounds the generated recommendation
	MaxTokens int `json:"max_tokens"`

	// CacheSize bounds the recommendation LRU cache
	CacheSize int `json:"cache_size"`
}

// MetricsConfig contains metrics exposition settings
type MetricsConfig struct {
	// Addr is the listen address for the metrics endpoint
	Addr string `json:"addr"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Version: "1",
		Database: DatabaseConfig{
			Path: "wastescan.db",
		},
		Scan: ScanConfig{
			TTLSeconds:            3600,
			StatsRefreshInterval:  10,
			ReferralScanThreshold: 3,
		},
		Pricing: PricingConfig{
			CurrencyFactor: "1",
		},
		Thresholds: ThresholdConfig{
			InactivityDays: map[string]int{
				"github": 60,
				"aws":    30,
				"sentry": 60,
			},
			UtilizationLowerBound: 0.20,
		},
		AI: AIConfig{
			Models:         []string{"claude-sonnet-4-5-20250929", "claude-3-5-haiku-20241022"},
			TimeoutSeconds: 20,
			MaxTokens:      256,
			CacheSize:      512,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads configuration from a JSON file, applying defaults for
// missing sections
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(errors.TypeConfig, "failed to read config file", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(errors.TypeConfig, "failed to parse config file", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Scan.TTLSeconds <= 0 {
		return errors.New(errors.TypeConfig, "scan.ttl_seconds must be positive")
	}
	if c.Scan.StatsRefreshInterval <= 0 {
		return errors.New(errors.TypeConfig, "scan.stats_refresh_interval must be positive")
	}
	if len(c.AI.Models) == 0 {
		return errors.New(errors.TypeConfig, "ai.models must list at least one model")
	}
	return nil
}
