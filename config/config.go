// Package config loads process configuration through viper (file plus
// WAREHOUSE_* environment overrides) and the warehouse layout through a
// plain YAML document.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process configuration of the engine.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Oracle OracleConfig `mapstructure:"oracle"`
	Sim    SimConfig    `mapstructure:"sim"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig configures the HTTP command boundary.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// OracleConfig configures the external decision oracle. An empty
// endpoint disables the oracle entirely; the engine then resolves every
// ambiguity with the deterministic fallback policy.
type OracleConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
}

// Timeout returns the oracle budget as a duration.
func (o OracleConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutMS) * time.Millisecond
}

// SimConfig configures the tick loop.
type SimConfig struct {
	Seed           int64            `mapstructure:"seed"`
	RetryBudget    int              `mapstructure:"retry_budget"`
	FaultRate      float64          `mapstructure:"fault_rate"`
	TickIntervalMS int              `mapstructure:"tick_interval_ms"`
	Durations      map[string]int64 `mapstructure:"durations"` // task kind -> ticks
	LayoutPath     string           `mapstructure:"layout_path"`
	SnapshotPath   string           `mapstructure:"snapshot_path"` // SQLite file; empty disables persistence
}

// LogConfig configures logrus output. File is optional; when set, logs
// rotate via lumberjack.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	JournalLog string `mapstructure:"journal_log"` // JSONL action log path, optional
}

// Load reads configuration from the given YAML file (optional) with
// environment overrides (prefix WAREHOUSE, dots become underscores).
// Missing file is not an error: defaults plus environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WAREHOUSE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("oracle.endpoint", "")
	v.SetDefault("oracle.timeout_ms", 3000)
	v.SetDefault("sim.seed", 42)
	v.SetDefault("sim.retry_budget", 2)
	v.SetDefault("sim.fault_rate", 0.0)
	v.SetDefault("sim.tick_interval_ms", 1000)
	v.SetDefault("sim.layout_path", "")
	v.SetDefault("sim.snapshot_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
}

func validate(cfg *Config) error {
	if cfg.Sim.RetryBudget < 0 {
		return fmt.Errorf("sim.retry_budget must be >= 0, got %d", cfg.Sim.RetryBudget)
	}
	if cfg.Sim.FaultRate < 0 || cfg.Sim.FaultRate > 1 {
		return fmt.Errorf("sim.fault_rate must be in [0,1], got %f", cfg.Sim.FaultRate)
	}
	if cfg.Oracle.TimeoutMS <= 0 {
		return fmt.Errorf("oracle.timeout_ms must be > 0, got %d", cfg.Oracle.TimeoutMS)
	}
	return nil
}
