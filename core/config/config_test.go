package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrInitCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "alshifa.toml")

	cfg, created, err := LoadOrInit(path, "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, GateMemory, cfg.Visitors.GateStore)
	assert.Equal(t, BackendPocketBase, cfg.Visitors.Backend)
	assert.FileExists(t, path)

	again, created, err := LoadOrInit(path, "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, cfg, again)
}

func TestLoadOrInitReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alshifa.toml")
	content := `
[server]
public_dir = "site"

[visitors]
timezone = "Asia/Riyadh"
gate_store = "leveldb"
lookup_services = ["https://example.test/ip"]
ready_timeout = "2s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, _, err := LoadOrInit(path, "")
	require.NoError(t, err)
	assert.Equal(t, "site", cfg.Server.PublicDir)
	assert.Equal(t, GateLevelDB, cfg.Visitors.GateStore)
	assert.Equal(t, []string{"https://example.test/ip"}, cfg.Visitors.LookupServices)
	assert.Equal(t, 2*time.Second, cfg.ReadyTimeout())
	// unset keys keep their defaults
	assert.Equal(t, 100*time.Millisecond, cfg.ReadyInterval())
	assert.Equal(t, 20, cfg.Visitors.RecentLimit)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Riyadh", loc.String())
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alshifa.toml")
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("ALSHIFA_RECENT_LIMIT=50\n"), 0644))

	t.Setenv("ALSHIFA_GATE_STORE", "redis")
	t.Setenv("ALSHIFA_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("ALSHIFA_SKIP_BOTS", "false")
	t.Setenv("ALSHIFA_RATE_LIMIT", "2.5")
	t.Setenv("ALSHIFA_LOOKUP_SERVICES", "https://a.test, https://b.test")
	t.Cleanup(func() { os.Unsetenv("ALSHIFA_RECENT_LIMIT") })

	cfg, _, err := LoadOrInit(path, envFile)
	require.NoError(t, err)
	assert.Equal(t, GateRedis, cfg.Visitors.GateStore)
	assert.False(t, cfg.Visitors.SkipBots)
	assert.Equal(t, 2.5, cfg.Visitors.RateLimit)
	assert.Equal(t, 50, cfg.Visitors.RecentLimit)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Visitors.LookupServices)

	// overrides are not written back
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "redis://localhost")
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown gate", func(c *Config) { c.Visitors.GateStore = "memcached" }},
		{"unknown backend", func(c *Config) { c.Visitors.Backend = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Visitors.Backend = BackendPostgres }},
		{"redis without url", func(c *Config) { c.Visitors.GateStore = GateRedis }},
		{"bad duration", func(c *Config) { c.Visitors.ReadyTimeout = "soon" }},
		{"bad timezone", func(c *Config) { c.Visitors.Timezone = "Mars/Olympus" }},
	}

	require.NoError(t, Default().Validate())

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := Default()
	cfg.Visitors.LookupTimeout = ""
	cfg.Postgres.ConnMaxLifetime = "-1s"

	assert.Equal(t, 10*time.Second, cfg.LookupTimeout())
	assert.Equal(t, 30*time.Minute, cfg.ConnMaxLifetime())
}
