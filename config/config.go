// Package config loads the rawrcache binary's configuration from defaults,
// an optional YAML file, and RAWRCACHE_* environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Keksclan/rawrcache/cache"
	"github.com/Keksclan/rawrcache/policy"
	"github.com/Keksclan/rawrcache/store"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. RAWRCACHE_REDIS_ADDR.
const EnvPrefix = "RAWRCACHE"

// Config is the full configuration of the rawrcache binary.
type Config struct {
	Redis      RedisConfig      `mapstructure:"redis"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Categories []CategoryConfig `mapstructure:"categories"`
}

// RedisConfig locates the shared Redis store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AdminConfig configures the admin gRPC listener and its access control.
type AdminConfig struct {
	Addr      string  `mapstructure:"addr"`
	Token     string  `mapstructure:"token"` // empty disables authentication
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the endpoint
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// CacheConfig maps onto the cache.Option set used by serve.
type CacheConfig struct {
	FreshTTL          time.Duration `mapstructure:"fresh_ttl"`
	StaleTTL          time.Duration `mapstructure:"stale_ttl"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	WaitTimeout       time.Duration `mapstructure:"wait_timeout"`
	WaitInterval      time.Duration `mapstructure:"wait_interval"`
	ScanBatch         int64         `mapstructure:"scan_batch"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	RevalidateTimeout time.Duration `mapstructure:"revalidate_timeout"`
	Jitter            float64       `mapstructure:"jitter"`
	RevalidateRPS     float64       `mapstructure:"revalidate_rps"` // 0 = unlimited
	RevalidateBurst   int           `mapstructure:"revalidate_burst"`
	LocalMaxEntries   int64         `mapstructure:"local_max_entries"` // 0 disables the local layer
	LocalMaxTTL       time.Duration `mapstructure:"local_max_ttl"`
}

// CategoryConfig declares one invalidation category and its TTL policy.
type CategoryConfig struct {
	Name     string        `mapstructure:"name"`
	Prefix   string        `mapstructure:"prefix"`
	FreshTTL time.Duration `mapstructure:"fresh_ttl"`
	StaleTTL time.Duration `mapstructure:"stale_ttl"`
	Jitter   float64       `mapstructure:"jitter"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("admin.addr", ":7070")
	v.SetDefault("admin.token", "")
	v.SetDefault("admin.rate_limit", 0)
	v.SetDefault("admin.rate_burst", 10)

	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("cache.fresh_ttl", cache.DefaultFreshTTL)
	v.SetDefault("cache.stale_ttl", cache.DefaultStaleTTL)
	v.SetDefault("cache.lock_ttl", cache.DefaultLockTTL)
	v.SetDefault("cache.wait_timeout", cache.DefaultWaitTimeout)
	v.SetDefault("cache.wait_interval", cache.DefaultWaitInterval)
	v.SetDefault("cache.scan_batch", cache.DefaultScanBatch)
	v.SetDefault("cache.connect_timeout", store.DefaultConnectTimeout)
	v.SetDefault("cache.revalidate_timeout", cache.DefaultRevalidateTimeout)
	v.SetDefault("cache.jitter", 0)
	v.SetDefault("cache.revalidate_rps", 0)
	v.SetDefault("cache.revalidate_burst", 1)
	v.SetDefault("cache.local_max_entries", 0)
	v.SetDefault("cache.local_max_ttl", 5*time.Second)
}

// Load reads the configuration. When path is empty, rawrcache.yaml is
// looked up in the working directory and in /etc/rawrcache/; a missing file
// is not an error. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("rawrcache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/rawrcache/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Policies builds the category table.
func (c *Config) Policies() (*policy.Table, error) {
	builders := make([]*policy.CategoryBuilder, 0, len(c.Categories))
	for _, cat := range c.Categories {
		builders = append(builders, policy.Category(cat.Name).Prefix(cat.Prefix).Policy(policy.Policy{
			FreshTTL: cat.FreshTTL,
			StaleTTL: cat.StaleTTL,
			Jitter:   cat.Jitter,
		}))
	}
	t, err := policy.NewTable(builders...)
	if err != nil {
		return nil, fmt.Errorf("config: categories: %w", err)
	}
	return t, nil
}

// CacheOptions translates the cache section and the categories into
// cache options.
func (c *Config) CacheOptions() ([]cache.Option, error) {
	table, err := c.Policies()
	if err != nil {
		return nil, err
	}
	cc := c.Cache
	opts := []cache.Option{
		cache.WithFreshTTL(cc.FreshTTL),
		cache.WithStaleTTL(cc.StaleTTL),
		cache.WithLockTTL(cc.LockTTL),
		cache.WithLockWait(cc.WaitTimeout, cc.WaitInterval),
		cache.WithScanBatch(cc.ScanBatch),
		cache.WithConnectTimeout(cc.ConnectTimeout),
		cache.WithRevalidateTimeout(cc.RevalidateTimeout),
		cache.WithTTLJitter(cc.Jitter),
		cache.WithRevalidationLimit(cc.RevalidateRPS, cc.RevalidateBurst),
		cache.WithPolicies(table),
	}
	if cc.LocalMaxEntries > 0 {
		opts = append(opts, cache.WithLocalCache(cc.LocalMaxEntries, cc.LocalMaxTTL))
	}
	return opts, nil
}

// Logger builds the process logger writing to w.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return nil, fmt.Errorf("config: log level: %w", err)
	}
	hopts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.Log.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
}
