package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes yaml into a temp dir and returns the file path.
func writeConfig(t *testing.T, yamlContent string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// clearEnv unsets variables that might leak in from the developer's shell.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			os.Unsetenv(k)
			t.Cleanup(func() { os.Setenv(k, v) })
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	yamlContent := `
port: "3450"
env: "test"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
redis:
  host: "redis.example.com"
  port: 6379
`
	tmpDir := filepath.Dir(writeConfig(t, yamlContent))

	// Change to temp directory so Load() finds config.yaml
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})

	clearEnv(t, "PGHOST", "REDIS_HOST", "OEE_LOCK_BACKEND")

	t.Setenv("PORT", "4450")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "4450" {
		t.Errorf("expected Port=4450 (from env), got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}
	if !cfg.IsProduction() {
		t.Error("expected IsProduction() to be true")
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("expected Database.Host=db.example.com (from yaml), got %s", cfg.Database.Host)
	}
	if cfg.Redis.Host != "redis.example.com" {
		t.Errorf("expected Redis.Host=redis.example.com (from yaml), got %s", cfg.Redis.Host)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), "v")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "missing.yaml") {
		t.Errorf("expected error to mention the file, got: %v", err)
	}
}

func TestLoad_OEEDefaults(t *testing.T) {
	clearEnv(t,
		"OEE_PLANNED_PRODUCTION_MINUTES", "OEE_LOCK_BACKEND", "OEE_LOCK_TIMEOUT",
		"OEE_ANALYSIS_WINDOW_DAYS", "OEE_HISTORY_WINDOW_DAYS", "OEE_RECENT_JOB_CARDS_LIMIT",
		"EVENTSOURCE_TYPE", "EVENTSOURCE_HOST", "TRACING_ENABLED",
	)

	cfg, err := LoadFile(writeConfig(t, "env: test\n"), "v")
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	if cfg.OEE.PlannedProductionMinutes != 480 {
		t.Errorf("expected PlannedProductionMinutes=480, got %v", cfg.OEE.PlannedProductionMinutes)
	}
	if cfg.OEE.LockBackend != LockBackendMemory {
		t.Errorf("expected LockBackend=memory, got %s", cfg.OEE.LockBackend)
	}
	if cfg.OEE.LockTimeout != 10*time.Second {
		t.Errorf("expected LockTimeout=10s, got %v", cfg.OEE.LockTimeout)
	}
	if cfg.OEE.AnalysisWindowDays != 30 {
		t.Errorf("expected AnalysisWindowDays=30, got %d", cfg.OEE.AnalysisWindowDays)
	}
	if cfg.OEE.HistoryWindowDays != 90 {
		t.Errorf("expected HistoryWindowDays=90, got %d", cfg.OEE.HistoryWindowDays)
	}
	if cfg.OEE.RecentJobCardsLimit != 10 {
		t.Errorf("expected RecentJobCardsLimit=10, got %d", cfg.OEE.RecentJobCardsLimit)
	}
	if !cfg.EventSource.SharesEngineDatabase() {
		t.Error("expected default event source to share the engine database")
	}
	if cfg.Tracing.Enabled {
		t.Error("expected tracing disabled by default")
	}
}

func TestLoad_OEEFromYAML(t *testing.T) {
	clearEnv(t, "OEE_PLANNED_PRODUCTION_MINUTES", "OEE_LOCK_BACKEND", "OEE_LOCK_TIMEOUT", "REDIS_HOST",
		"EVENTSOURCE_TYPE", "EVENTSOURCE_HOST")

	yamlContent := `
redis:
  host: "redis.internal"
event_source:
  type: "MySQL"
  host: "erp.internal"
  port: 3306
  database: "nobalcasting"
oee:
  planned_production_minutes: 420
  lock_backend: "Redis"
  lock_timeout: "3s"
`
	cfg, err := LoadFile(writeConfig(t, yamlContent), "v")
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	if cfg.OEE.PlannedProductionMinutes != 420 {
		t.Errorf("expected PlannedProductionMinutes=420, got %v", cfg.OEE.PlannedProductionMinutes)
	}
	if cfg.OEE.LockBackend != LockBackendRedis {
		t.Errorf("expected LockBackend normalised to redis, got %s", cfg.OEE.LockBackend)
	}
	if cfg.OEE.LockTimeout != 3*time.Second {
		t.Errorf("expected LockTimeout=3s, got %v", cfg.OEE.LockTimeout)
	}
	if cfg.EventSource.Type != "mysql" {
		t.Errorf("expected EventSource.Type=mysql, got %s", cfg.EventSource.Type)
	}
	if cfg.EventSource.SharesEngineDatabase() {
		t.Error("expected mysql event source not to share the engine database")
	}
}

func TestLoad_SecretsOnlyFromEnv(t *testing.T) {
	clearEnv(t, "PGPASSWORD", "EVENTSOURCE_PASSWORD")

	yamlContent := `
database:
  password: "from-yaml"
`
	t.Setenv("EVENTSOURCE_PASSWORD", "erp-secret")

	cfg, err := LoadFile(writeConfig(t, yamlContent), "v")
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Database.Password != "" {
		t.Errorf("expected Database.Password to ignore yaml, got %q", cfg.Database.Password)
	}
	if cfg.EventSource.Password != "erp-secret" {
		t.Errorf("expected EventSource.Password from env, got %q", cfg.EventSource.Password)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			EventSource: EventSourceConfig{Type: "postgres"},
			OEE: OEEConfig{
				PlannedProductionMinutes: 480,
				LockBackend:              LockBackendMemory,
				LockTimeout:              time.Second,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"redis backend without host", func(c *Config) { c.OEE.LockBackend = "redis" }, "requires redis.host"},
		{"unknown backend", func(c *Config) { c.OEE.LockBackend = "etcd" }, "unknown lock_backend"},
		{"zero planned minutes", func(c *Config) { c.OEE.PlannedProductionMinutes = 0 }, "planned_production_minutes"},
		{"zero lock timeout", func(c *Config) { c.OEE.LockTimeout = 0 }, "lock_timeout"},
		{"mssql without host", func(c *Config) { c.EventSource.Type = "mssql" }, "event_source.host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	c := &DatabaseConfig{Host: "db.example.com", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	expected := "host=db.example.com port=5433 user=u password=p dbname=d sslmode=disable"
	if got := c.ConnectionString(); got != expected {
		t.Errorf("ConnectionString() = %q, want %q", got, expected)
	}
}

func TestDatabaseConfig_URLEscapesPassword(t *testing.T) {
	c := &DatabaseConfig{Host: "db.example.com", Port: 5432, User: "oee", Password: "p@ss/word#1", Database: "oee_engine", SSLMode: "disable"}

	u, err := url.Parse(c.URL())
	if err != nil {
		t.Fatalf("URL() produced an unparsable URL: %v", err)
	}
	if pw, _ := u.User.Password(); pw != "p@ss/word#1" {
		t.Errorf("expected password to round-trip, got %q", pw)
	}
	if u.Path != "/oee_engine" {
		t.Errorf("expected path /oee_engine, got %q", u.Path)
	}
	if u.Query().Get("sslmode") != "disable" {
		t.Errorf("expected sslmode=disable, got %q", u.Query().Get("sslmode"))
	}
}
