package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the OEE engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3450"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// ShutdownTimeout bounds graceful shutdown of the HTTP server.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"15s"`

	// Database holds the engine's own PostgreSQL database (metric store).
	Database DatabaseConfig `yaml:"database"`

	// Redis is optional; it is only required for the redis lock backend.
	Redis RedisConfig `yaml:"redis"`

	// EventSource is the ERP database the production events are read from.
	EventSource EventSourceConfig `yaml:"event_source"`

	OEE OEEConfig `yaml:"oee"`

	Tracing TracingConfig `yaml:"tracing"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"oee"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"oee_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// EventSourceConfig holds the ERP database connection.
// Type selects the adapter: "postgres", "mssql" or "mysql".
// An empty host with type postgres reuses the engine database.
type EventSourceConfig struct {
	Type            string        `yaml:"type" env:"EVENTSOURCE_TYPE" env-default:"postgres"`
	Host            string        `yaml:"host" env:"EVENTSOURCE_HOST" env-default:""`
	Port            int           `yaml:"port" env:"EVENTSOURCE_PORT" env-default:"0"`
	User            string        `yaml:"user" env:"EVENTSOURCE_USER" env-default:""`
	Password        string        `yaml:"-" env:"EVENTSOURCE_PASSWORD"` // Secret - not in YAML
	Database        string        `yaml:"database" env:"EVENTSOURCE_DATABASE" env-default:""`
	SSLMode         string        `yaml:"ssl_mode" env:"EVENTSOURCE_SSLMODE" env-default:"disable"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"EVENTSOURCE_MAX_OPEN_CONNS" env-default:"10"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"EVENTSOURCE_CONN_MAX_LIFETIME" env-default:"30m"`
}

// SharesEngineDatabase reports whether the ERP tables live in the engine's database.
func (c *EventSourceConfig) SharesEngineDatabase() bool {
	return c.Type == "postgres" && c.Host == ""
}

// Lock backends.
const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// OEEConfig holds the metric engine settings.
type OEEConfig struct {
	// PlannedProductionMinutes is the length of one shift window.
	PlannedProductionMinutes float64 `yaml:"planned_production_minutes" env:"OEE_PLANNED_PRODUCTION_MINUTES" env-default:"480"`

	// LossRulesPath optionally points at a YAML file overriding the downtime keyword tables.
	LossRulesPath string `yaml:"loss_rules_path" env:"OEE_LOSS_RULES_PATH" env-default:""`

	// LockBackend is "memory" (single replica) or "redis" (multi replica).
	LockBackend string        `yaml:"lock_backend" env:"OEE_LOCK_BACKEND" env-default:"memory"`
	LockTimeout time.Duration `yaml:"lock_timeout" env:"OEE_LOCK_TIMEOUT" env-default:"10s"`
	// LockTTL is the expiry of a redis lock whose holder died.
	LockTTL time.Duration `yaml:"lock_ttl" env:"OEE_LOCK_TTL" env-default:"30s"`

	AnalysisWindowDays  int `yaml:"analysis_window_days" env:"OEE_ANALYSIS_WINDOW_DAYS" env-default:"30"`
	HistoryWindowDays   int `yaml:"history_window_days" env:"OEE_HISTORY_WINDOW_DAYS" env-default:"90"`
	RecentJobCardsLimit int `yaml:"recent_job_cards_limit" env:"OEE_RECENT_JOB_CARDS_LIMIT" env-default:"10"`
	RetryMaxAttempts    int `yaml:"retry_max_attempts" env:"OEE_RETRY_MAX_ATTEMPTS" env-default:"3"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" env:"TRACING_ENABLED" env-default:"false"`
	Exporter    string `yaml:"exporter" env:"TRACING_EXPORTER" env-default:"stdout"`
	ServiceName string `yaml:"service_name" env:"TRACING_SERVICE_NAME" env-default:"oee-engine"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile reads configuration from the given YAML file with environment variable overrides.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks cross-field constraints that env-default cannot express.
func (c *Config) Validate() error {
	c.OEE.LockBackend = strings.ToLower(strings.TrimSpace(c.OEE.LockBackend))
	switch c.OEE.LockBackend {
	case LockBackendMemory:
	case LockBackendRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("lock_backend %q requires redis.host", LockBackendRedis)
		}
	default:
		return fmt.Errorf("unknown lock_backend %q", c.OEE.LockBackend)
	}

	if c.OEE.PlannedProductionMinutes <= 0 {
		return fmt.Errorf("planned_production_minutes must be positive")
	}
	if c.OEE.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be positive")
	}

	c.EventSource.Type = strings.ToLower(strings.TrimSpace(c.EventSource.Type))
	if c.EventSource.Type != "postgres" && c.EventSource.Host == "" {
		return fmt.Errorf("event_source.host is required for type %q", c.EventSource.Type)
	}

	return nil
}

// IsProduction reports whether the server runs with production logging.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ResolveHostForDocker(c.Host), c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the PostgreSQL connection URL with every user field escaped.
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(c.User, c.Password),
		Host:     ResolveHostForDocker(c.Host) + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}
