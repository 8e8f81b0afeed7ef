package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Server   ServerConfig   `mapstructure:"server"`
	Detector DetectorConfig `mapstructure:"detector"`
}

// StorageConfig defines where the activity log lives
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"` // used by the TUI, which owns the terminal
}

// TrackingConfig defines merger and matcher timing
type TrackingConfig struct {
	FlushInterval   time.Duration `mapstructure:"flush_interval"`
	RuleCacheTTL    time.Duration `mapstructure:"rule_cache_ttl"`
	DefaultInterval time.Duration `mapstructure:"default_interval"`
}

// ServerConfig defines the boundary API listener
type ServerConfig struct {
	ListenAddress  string `mapstructure:"listen_address"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsAddress string `mapstructure:"metrics_address"` // empty serves /metrics on the API listener
}

// DetectorConfig defines pattern detection thresholds
type DetectorConfig struct {
	MinOccurrences int `mapstructure:"min_occurrences"`
}

// Load loads configuration from file and environment variables. An empty
// configPath looks for config.yaml in the user config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "autotrackr"))
		}
	}
	v.SetEnvPrefix("AUTOTRACKR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file, defaults and environment only
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Storage defaults
	v.SetDefault("storage.path", defaultStoragePath())

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")

	// Tracking defaults
	v.SetDefault("tracking.flush_interval", "30s")
	v.SetDefault("tracking.rule_cache_ttl", "60s")
	v.SetDefault("tracking.default_interval", "2s")

	// Server defaults
	v.SetDefault("server.listen_address", "127.0.0.1:7890")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.metrics_address", "")

	// Detector defaults
	v.SetDefault("detector.min_occurrences", 2)
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "autotrackr.db"
	}
	return filepath.Join(dir, "autotrackr", "autotrackr.db")
}

func validate(cfg *Config) error {
	if cfg.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %q", cfg.Logging.Format)
	}

	if cfg.Tracking.FlushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive: %s", cfg.Tracking.FlushInterval)
	}
	if cfg.Tracking.RuleCacheTTL <= 0 {
		return fmt.Errorf("rule cache TTL must be positive: %s", cfg.Tracking.RuleCacheTTL)
	}
	if cfg.Tracking.DefaultInterval <= 0 {
		return fmt.Errorf("default interval must be positive: %s", cfg.Tracking.DefaultInterval)
	}

	if _, _, err := net.SplitHostPort(cfg.Server.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", cfg.Server.ListenAddress, err)
	}
	if cfg.Server.MetricsAddress != "" {
		if _, _, err := net.SplitHostPort(cfg.Server.MetricsAddress); err != nil {
			return fmt.Errorf("invalid metrics address %q: %w", cfg.Server.MetricsAddress, err)
		}
	}

	if cfg.Detector.MinOccurrences < 1 {
		return fmt.Errorf("detector min occurrences must be at least 1: %d", cfg.Detector.MinOccurrences)
	}

	return nil
}
