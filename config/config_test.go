package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Keksclan/rawrcache/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rawrcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, ":7070", cfg.Admin.Addr)
	assert.Equal(t, cache.DefaultFreshTTL, cfg.Cache.FreshTTL)
	assert.Equal(t, cache.DefaultWaitTimeout, cfg.Cache.WaitTimeout)
	assert.EqualValues(t, cache.DefaultScanBatch, cfg.Cache.ScanBatch)
	assert.Empty(t, cfg.Categories)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeFile(t, `
redis:
  addr: redis:6379
cache:
  fresh_ttl: 10m
  wait_interval: 50ms
categories:
  - name: users
    prefix: "user:"
    fresh_ttl: 1m
    stale_ttl: 10s
  - name: orders
    prefix: "order:"
    jitter: 0.1
`)
	t.Setenv("RAWRCACHE_REDIS_ADDR", "override:6379")
	t.Setenv("RAWRCACHE_CACHE_STALE_TTL", "2m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "override:6379", cfg.Redis.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Cache.FreshTTL)
	assert.Equal(t, 2*time.Minute, cfg.Cache.StaleTTL)
	assert.Equal(t, 50*time.Millisecond, cfg.Cache.WaitInterval)

	require.Len(t, cfg.Categories, 2)
	assert.Equal(t, "users", cfg.Categories[0].Name)
	assert.Equal(t, time.Minute, cfg.Categories[0].FreshTTL)
	assert.InDelta(t, 0.1, cfg.Categories[1].Jitter, 1e-9)

	table, err := cfg.Policies()
	require.NoError(t, err)
	e, ok := table.Resolve("user:42")
	require.True(t, ok)
	assert.Equal(t, "users", e.Name)
	assert.Equal(t, 10*time.Second, e.Policy.StaleTTL)

	opts, err := cfg.CacheOptions()
	require.NoError(t, err)
	assert.NotEmpty(t, opts)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPolicies_Invalid(t *testing.T) {
	cfg := &Config{Categories: []CategoryConfig{
		{Name: "a", Prefix: "x:"},
		{Name: "b", Prefix: "x:"},
	}}
	_, err := cfg.Policies()
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Log: LogConfig{Level: "warn", Format: "json"}}

	logger, err := cfg.Logger(&buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	cfg.Log.Format = "xml"
	_, err = cfg.Logger(&buf)
	assert.Error(t, err)

	cfg.Log = LogConfig{Level: "loud"}
	_, err = cfg.Logger(&buf)
	assert.Error(t, err)
}
