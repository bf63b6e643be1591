package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config holds all the configuration settings for the planner service.
// Files may be YAML or JSON; durations are written as "30s", "24h".
type Config struct {
	Port      int            `yaml:"port" json:"port" validate:"min=1,max=65535"`
	Env       string         `yaml:"env" json:"env" validate:"oneof=development testing staging production"`
	SentryDSN string         `yaml:"sentry_dsn" json:"sentry_dsn" validate:"omitempty,url"`
	Routing   RoutingConfig  `yaml:"routing" json:"routing"`
	Database  DatabaseConfig `yaml:"database" json:"database"`
	GTFS      GTFSConfig     `yaml:"gtfs" json:"gtfs"`
	Sessions  SessionsConfig `yaml:"sessions" json:"sessions"`
	CORS      CORSConfig     `yaml:"cors" json:"cors"`
}

// RoutingConfig points at an OSRM-compatible routing service. Without a URL
// every distance is computed on the great circle.
type RoutingConfig struct {
	URL            string        `yaml:"url" json:"url" validate:"omitempty,url"`
	Profile        string        `yaml:"profile" json:"profile" validate:"required"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout" json:"probe_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	MaxMatrixSize  int           `yaml:"max_matrix_size" json:"max_matrix_size" validate:"min=1"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" json:"driver" validate:"oneof=memory sqlite pgx mysql"`
	URL    string `yaml:"url" json:"url" validate:"required_unless=Driver memory"`
}

// GTFSConfig describes the static bundle the network is built from.
type GTFSConfig struct {
	URL             string        `yaml:"url" json:"url" validate:"omitempty,url"`
	Feed            string        `yaml:"feed" json:"feed" validate:"required"`
	AuthHeader      string        `yaml:"auth_header" json:"auth_header"`
	AuthValue       string        `yaml:"auth_value" json:"auth_value"`
	RefreshInterval time.Duration `yaml:"refresh_interval" json:"refresh_interval"`
	CacheDir        string        `yaml:"cache_dir" json:"cache_dir" validate:"required"`
}

type SessionsConfig struct {
	TTL time.Duration `yaml:"ttl" json:"ttl"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// Default returns a Config with every default applied.
func Default() Config {
	return Config{
		Port: 4000,
		Env:  "development",
		Routing: RoutingConfig{
			Profile:        "foot",
			ProbeTimeout:   2 * time.Second,
			RequestTimeout: 10 * time.Second,
			MaxMatrixSize:  100,
		},
		Database: DatabaseConfig{Driver: "memory"},
		GTFS: GTFSConfig{
			Feed:            "default",
			RefreshInterval: 24 * time.Hour,
			CacheDir:        "cache",
		},
		Sessions: SessionsConfig{TTL: 30 * time.Minute},
		CORS:     CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

// ApplyEnv overrides settings from environment variables. getenv is
// usually os.Getenv.
func (cfg *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	overrides := map[string]*string{
		"PLANNER_ENV":     &cfg.Env,
		"ROUTING_URL":     &cfg.Routing.URL,
		"DATABASE_DRIVER": &cfg.Database.Driver,
		"DATABASE_URL":    &cfg.Database.URL,
		"GTFS_URL":        &cfg.GTFS.URL,
		"SENTRY_DSN":      &cfg.SentryDSN,
	}
	for name, field := range overrides {
		if v := getenv(name); v != "" {
			*field = v
		}
	}
	return nil
}

// checkDurations covers what the struct tags cannot express.
func (cfg *Config) checkDurations() error {
	switch {
	case cfg.Routing.ProbeTimeout <= 0:
		return fmt.Errorf("routing.probe_timeout must be positive")
	case cfg.Routing.RequestTimeout <= 0:
		return fmt.Errorf("routing.request_timeout must be positive")
	case cfg.GTFS.RefreshInterval < 0:
		return fmt.Errorf("gtfs.refresh_interval must not be negative")
	case cfg.Sessions.TTL <= 0:
		return fmt.Errorf("sessions.ttl must be positive")
	}
	return nil
}
