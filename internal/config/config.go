// Package config loads the daemon configuration from YAML, falling back
// to defaults when the file is absent.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/rconherd/internal/model"
)

// EnvConfigPath overrides the config file path when set.
const EnvConfigPath = "RCONHERD_CONFIG"

// Config holds all daemon configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Database  DatabaseConfig  `yaml:"database"`
	Rcon      RconConfig      `yaml:"rcon"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// RconConfig tunes the RCON connection layer and the failure isolation.
type RconConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RconKey           string        `yaml:"rcon_key"` // blowfish key for stored passwords
	StatusInterval    time.Duration `yaml:"status_interval"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	CommandTimeout    time.Duration `yaml:"command_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	// MaxConnectionsPerServer is fixed at 1 in this build: every server
	// runs a single serialized command queue.
	MaxConnectionsPerServer int `yaml:"max_connections_per_server"`

	MaxConsecutiveFailures int     `yaml:"max_consecutive_failures"`
	BackoffMultiplier      float64 `yaml:"backoff_multiplier"`
	MaxBackoffMinutes      int     `yaml:"max_backoff_minutes"`
	DormantRetryMinutes    int     `yaml:"dormant_retry_minutes"`
}

// SchedulerConfig tunes the cron scheduler and carries the static
// schedule list.
type SchedulerConfig struct {
	Enabled                bool                     `yaml:"enabled"`
	DefaultTimeout         time.Duration            `yaml:"default_timeout"`
	DefaultRetryOnFailure  bool                     `yaml:"default_retry_on_failure"`
	DefaultMaxRetries      int                      `yaml:"default_max_retries"`
	HistoryRetentionHours  int                      `yaml:"history_retention_hours"`
	MaxConcurrentPerServer int                      `yaml:"max_concurrent_per_server"`
	Schedules              []model.ScheduledCommand `yaml:"schedules"`
}

// Default returns the daemon config with sensible defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "rconherd",
			Password: "rconherd",
			DBName:   "rconherd",
			SSLMode:  "disable",
		},
		Rcon: RconConfig{
			Enabled:           true,
			RconKey:           "rconherd",
			StatusInterval:    30 * time.Second,
			ConnectionTimeout: 5 * time.Second,
			CommandTimeout:    3 * time.Second,
			MaxRetries:        3,

			MaxConnectionsPerServer: 1,

			MaxConsecutiveFailures: 10,
			BackoffMultiplier:      2,
			MaxBackoffMinutes:      30,
			DormantRetryMinutes:    60,
		},
		Scheduler: SchedulerConfig{
			Enabled:                true,
			DefaultTimeout:         30 * time.Second,
			DefaultRetryOnFailure:  false,
			DefaultMaxRetries:      3,
			HistoryRetentionHours:  24,
			MaxConcurrentPerServer: 1,
		},
	}
}

// Load loads the daemon config from a YAML file. If the file doesn't
// exist, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// Path resolves the config file path: the RCONHERD_CONFIG env var when
// set, otherwise fallback.
func Path(fallback string) string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return fallback
}
