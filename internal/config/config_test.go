package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Holds.OnlineTTL)
	assert.Equal(t, 30*time.Minute, cfg.Holds.CashTTL)
	assert.Equal(t, 60*time.Minute, cfg.Holds.AdminTTL)
	assert.Equal(t, 30*time.Second, cfg.Sweeper.Interval)
	assert.True(t, cfg.Sweeper.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, cfg.Server.Origins())
}

func TestLoad_YAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, `
server:
  addr: ":9090"
storage:
  driver: "Memory"
holds:
  online_ttl: "5m"
sweeper:
  interval: "10s"
log:
  level: "debug"
  format: "text"
`)
	t.Setenv("HOLD_TTL_CASH", "45m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Holds.OnlineTTL)
	assert.Equal(t, 45*time.Minute, cfg.Holds.CashTTL)
	assert.Equal(t, 10*time.Second, cfg.Sweeper.Interval)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{Addr: ":8080"},
			Storage:  StorageConfig{Driver: DriverMemory},
			Holds:    HoldsConfig{OnlineTTL: time.Minute, CashTTL: time.Minute, AdminTTL: time.Minute, SweepBatch: 10},
			Sweeper:  SweeperConfig{Enabled: true, Interval: time.Second},
			Database: DatabaseConfig{DSN: "postgres://x", MaxConns: 4},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid memory", mutate: func(c *Config) {}},
		{name: "valid postgres", mutate: func(c *Config) { c.Storage.Driver = DriverPostgres }},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "redis" }, wantErr: "storage.driver"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Driver = DriverPostgres; c.Database.DSN = "" }, wantErr: "database.dsn"},
		{name: "zero online ttl", mutate: func(c *Config) { c.Holds.OnlineTTL = 0 }, wantErr: "holds.online_ttl"},
		{name: "negative cash ttl", mutate: func(c *Config) { c.Holds.CashTTL = -time.Second }, wantErr: "holds.cash_ttl"},
		{name: "zero sweep interval", mutate: func(c *Config) { c.Sweeper.Interval = 0 }, wantErr: "sweeper.interval"},
		{name: "disabled sweeper ignores interval", mutate: func(c *Config) { c.Sweeper.Enabled = false; c.Sweeper.Interval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
