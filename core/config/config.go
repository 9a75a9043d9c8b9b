// Package config loads the site configuration from a TOML file, a .env file
// and ALSHIFA_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ALSHIFA_"

// Gate stores.
const (
	GateMemory  = "memory"
	GateLevelDB = "leveldb"
	GateRedis   = "redis"
)

// Backends.
const (
	BackendPocketBase = "pocketbase"
	BackendPostgres   = "postgres"
)

// Config is the full site configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Visitors VisitorsConfig `toml:"visitors"`
	Postgres PostgresConfig `toml:"postgres"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Domain        string `toml:"domain"`
	DevMode       bool   `toml:"dev_mode"`
	PublicDir     string `toml:"public_dir"`
	EnableMetrics bool   `toml:"enable_metrics"`
	LogLevel      string `toml:"log_level"`
}

// VisitorsConfig configures tracking and statistics.
//
// Visitor addresses and rate limit buckets come from the request's real IP.
// Behind a reverse proxy, list its forwarding header in PocketBase's trusted
// proxy settings, otherwise every visitor shares the proxy's bucket and is
// stored as unknown.
type VisitorsConfig struct {
	Timezone       string   `toml:"timezone"`
	Backend        string   `toml:"backend"`
	ReadyTimeout   string   `toml:"ready_timeout"`
	ReadyInterval  string   `toml:"ready_interval"`
	GateStore      string   `toml:"gate_store"`
	LevelDBPath    string   `toml:"leveldb_path"`
	RedisURL       string   `toml:"redis_url"`
	LookupTimeout  string   `toml:"lookup_timeout"`
	LookupServices []string `toml:"lookup_services"`
	SkipBots       bool     `toml:"skip_bots"`
	RateLimit      float64  `toml:"rate_limit"`
	RateBurst      int      `toml:"rate_burst"`
	RecentLimit    int      `toml:"recent_limit"`
}

// PostgresConfig configures the optional PostgreSQL backend.
type PostgresConfig struct {
	DSN             string `toml:"dsn"`
	MaxOpenConns    int    `toml:"max_open_conns"`
	MaxIdleConns    int    `toml:"max_idle_conns"`
	ConnMaxLifetime string `toml:"conn_max_lifetime"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Domain:        "",
			DevMode:       false,
			PublicDir:     "pb_public",
			EnableMetrics: true,
			LogLevel:      "info",
		},
		Visitors: VisitorsConfig{
			Timezone:       "Local",
			Backend:        BackendPocketBase,
			ReadyTimeout:   "5s",
			ReadyInterval:  "100ms",
			GateStore:      GateMemory,
			LevelDBPath:    "pb_data/visitors_gate",
			LookupTimeout:  "10s",
			LookupServices: nil,
			SkipBots:       true,
			RateLimit:      1,
			RateBurst:      5,
			RecentLimit:    20,
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: "30m",
		},
	}
}

// LoadOrInit reads path, writing the defaults there first when it does not
// exist. envFile is loaded into the process environment when present, then
// ALSHIFA_* variables override the file.
func LoadOrInit(path, envFile string) (*Config, bool, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to load env file", "path", envFile, "error", err)
		}
	}

	created := false
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeToml(path, Default()); err != nil {
			slog.Warn("Failed to write config file, using in-memory defaults", "path", path, "error", err)
			cfg := Default()
			applyEnvOverrides(cfg)
			return cfg, false, cfg.Validate()
		}
		created = true
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, created, err
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, created, fmt.Errorf("parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, created, cfg.Validate()
}

// Save writes c to path.
func (c *Config) Save(path string) error {
	return writeToml(path, c)
}

func writeToml[T any](path string, cfg T) error {
	b, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if dir := dirOf(path); dir != "" {
		_ = os.MkdirAll(dir, 0755)
	}
	return os.WriteFile(path, b, 0644)
}

func dirOf(path string) string {
	i := strings.LastIndexAny(path, "/\\")
	if i < 0 {
		return ""
	}
	return path[:i]
}

// Validate checks enumerations and durations.
func (c *Config) Validate() error {
	switch c.Visitors.GateStore {
	case GateMemory, GateLevelDB, GateRedis:
	default:
		return fmt.Errorf("unknown gate_store %q", c.Visitors.GateStore)
	}

	switch c.Visitors.Backend {
	case BackendPocketBase:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("postgres backend requires postgres.dsn")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Visitors.Backend)
	}

	if c.Visitors.GateStore == GateRedis && c.Visitors.RedisURL == "" {
		return errors.New("redis gate store requires visitors.redis_url")
	}

	for name, v := range map[string]string{
		"ready_timeout":     c.Visitors.ReadyTimeout,
		"ready_interval":    c.Visitors.ReadyInterval,
		"lookup_timeout":    c.Visitors.LookupTimeout,
		"conn_max_lifetime": c.Postgres.ConnMaxLifetime,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Visitors.Timezone == "" || c.Visitors.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Visitors.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Visitors.Timezone, err)
	}
	return loc, nil
}

// ReadyTimeout returns the backend readiness timeout.
func (c *Config) ReadyTimeout() time.Duration {
	return parseDuration(c.Visitors.ReadyTimeout, 5*time.Second)
}

// ReadyInterval returns the backend readiness poll interval.
func (c *Config) ReadyInterval() time.Duration {
	return parseDuration(c.Visitors.ReadyInterval, 100*time.Millisecond)
}

// LookupTimeout returns the per-request IP lookup timeout.
func (c *Config) LookupTimeout() time.Duration {
	return parseDuration(c.Visitors.LookupTimeout, 10*time.Second)
}

// ConnMaxLifetime returns the PostgreSQL connection lifetime.
func (c *Config) ConnMaxLifetime() time.Duration {
	return parseDuration(c.Postgres.ConnMaxLifetime, 30*time.Minute)
}

func parseDuration(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// applyEnvOverrides reads ALSHIFA_* variables without writing them back.
func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("DOMAIN", &cfg.Server.Domain)
	boolean("DEV_MODE", &cfg.Server.DevMode)
	str("PUBLIC_DIR", &cfg.Server.PublicDir)
	boolean("ENABLE_METRICS", &cfg.Server.EnableMetrics)
	str("LOG_LEVEL", &cfg.Server.LogLevel)

	str("TIMEZONE", &cfg.Visitors.Timezone)
	str("BACKEND", &cfg.Visitors.Backend)
	str("READY_TIMEOUT", &cfg.Visitors.ReadyTimeout)
	str("READY_INTERVAL", &cfg.Visitors.ReadyInterval)
	str("GATE_STORE", &cfg.Visitors.GateStore)
	str("LEVELDB_PATH", &cfg.Visitors.LevelDBPath)
	str("REDIS_URL", &cfg.Visitors.RedisURL)
	str("LOOKUP_TIMEOUT", &cfg.Visitors.LookupTimeout)
	boolean("SKIP_BOTS", &cfg.Visitors.SkipBots)
	integer("RATE_BURST", &cfg.Visitors.RateBurst)
	integer("RECENT_LIMIT", &cfg.Visitors.RecentLimit)
	if v, ok := os.LookupEnv(EnvPrefix + "RATE_LIMIT"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Visitors.RateLimit = f
		}
	}
	if v, ok := os.LookupEnv(EnvPrefix + "LOOKUP_SERVICES"); ok && v != "" {
		var services []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				services = append(services, s)
			}
		}
		cfg.Visitors.LookupServices = services
	}

	str("POSTGRES_DSN", &cfg.Postgres.DSN)
	integer("POSTGRES_MAX_OPEN_CONNS", &cfg.Postgres.MaxOpenConns)
	integer("POSTGRES_MAX_IDLE_CONNS", &cfg.Postgres.MaxIdleConns)
}
