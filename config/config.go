package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Seed     []SeedLocation `yaml:"seed"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds *int          `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres, sqlite or memory
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogQueries             bool   `yaml:"log_queries"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// IngestConfig holds the configuration of the upstream sensor feed poller.
type IngestConfig struct {
	Enabled         bool              `yaml:"enabled"`
	IntervalSeconds int               `yaml:"interval_seconds"`
	Interval        time.Duration     `yaml:"-"` // Ignored by YAML parser
	URL             string            `yaml:"url"`
	Headers         map[string]string `yaml:"headers"`
	HTTPProxy       string            `yaml:"http_proxy"`
	Workers         int               `yaml:"workers"`
	Thresholds      Thresholds        `yaml:"thresholds"`
}

// Thresholds are the lowest percentages at which a reading is classified
// as moderate, high and critical. Anything below Moderate is low.
type Thresholds struct {
	Moderate int `yaml:"moderate"`
	High     int `yaml:"high"`
	Critical int `yaml:"critical"`
}

// SeedLocation is a location created at startup when the store is empty.
type SeedLocation struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Type        string  `yaml:"type"`
	Lat         float64 `yaml:"lat"`
	Lng         float64 `yaml:"lng"`
	Floor       string  `yaml:"floor"`
}

// DefaultThresholds match the colour bands of the map markers.
var DefaultThresholds = Thresholds{Moderate: 40, High: 70, Critical: 90}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values with their defaults.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}
	// An explicit zero disables the response cache.
	ttl := 1
	if cfg.Server.CacheTTLSeconds != nil && *cfg.Server.CacheTTLSeconds >= 0 {
		ttl = *cfg.Server.CacheTTLSeconds
	}
	cfg.Server.CacheTTL = time.Duration(ttl) * time.Second

	if cfg.Database.Driver == "" {
		log.Warn().Msg("database.driver is not set; defaulting to postgres")
		cfg.Database.Driver = "postgres"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Ingest.IntervalSeconds <= 0 {
		cfg.Ingest.IntervalSeconds = 30
	}
	cfg.Ingest.Interval = time.Duration(cfg.Ingest.IntervalSeconds) * time.Second
	if cfg.Ingest.Workers <= 0 {
		cfg.Ingest.Workers = 4
	}

	t := &cfg.Ingest.Thresholds
	if t.Moderate <= 0 {
		t.Moderate = DefaultThresholds.Moderate
	}
	if t.High <= 0 {
		t.High = DefaultThresholds.High
	}
	if t.Critical <= 0 {
		t.Critical = DefaultThresholds.Critical
	}
}

// Validate reports settings that cannot work together.
func (cfg *Config) Validate() error {
	t := cfg.Ingest.Thresholds
	if !(t.Moderate < t.High && t.High < t.Critical && t.Critical <= 100) {
		return fmt.Errorf("ingest.thresholds must satisfy moderate < high < critical <= 100, got %d/%d/%d",
			t.Moderate, t.High, t.Critical)
	}
	return nil
}
