// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage adapters.
const (
	AdapterPostgres = "postgres"
	AdapterMemory   = "memory"
	AdapterRedis    = "redis"
)

// Config holds all environment-based configuration.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// DBAdapter selects the persistence backend: postgres or memory.
	DBAdapter   string `env:"DB_ADAPTER" envDefault:"postgres"`
	DatabaseDSN string `env:"DATABASE_DSN"`

	// EtagStore selects where resource etags live: postgres, redis or memory.
	// Empty follows DBAdapter.
	EtagStore     string `env:"ETAG_STORE"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"gophauth:etag:"`

	TokenLength    int           `env:"TOKEN_LENGTH" envDefault:"40"`
	TokenExpiresIn time.Duration `env:"TOKEN_EXPIRES_IN" envDefault:"3600s"`

	LoginMaxFails int           `env:"LOGIN_MAX_FAILS" envDefault:"5"`
	LoginWindow   time.Duration `env:"LOGIN_WINDOW" envDefault:"15m"`
	LoginBlockFor time.Duration `env:"LOGIN_BLOCK_FOR" envDefault:"15m"`

	// TrustedProxies lists proxy addresses or CIDRs whose X-Forwarded-For
	// and X-Real-IP headers are believed. Empty trusts no proxy.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// TokenRatePerMinute caps token endpoint calls per client_id; 0 disables.
	TokenRatePerMinute int `env:"TOKEN_RATE_PER_MINUTE" envDefault:"60"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED" envDefault:"true"`

	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads a .env file when present, then parses and validates env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse builds a Config from the current process environment.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.EtagStore == "" {
		cfg.EtagStore = cfg.DBAdapter
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// TrustedProxyPrefixes parses TrustedProxies; bare addresses become
// single-host prefixes.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if p, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES entry %q is not an address or CIDR", raw)
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out, nil
}

// TokenTTLSeconds returns the configured token lifetime in whole seconds.
func (c *Config) TokenTTLSeconds() int64 { return int64(c.TokenExpiresIn / time.Second) }

func (c *Config) validate() error {
	switch c.DBAdapter {
	case AdapterPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required when DB_ADAPTER=%s", AdapterPostgres)
		}
	case AdapterMemory:
	default:
		return fmt.Errorf("DB_ADAPTER must be %s or %s, got %q", AdapterPostgres, AdapterMemory, c.DBAdapter)
	}

	switch c.EtagStore {
	case AdapterPostgres:
		if c.DBAdapter != AdapterPostgres {
			return fmt.Errorf("ETAG_STORE=%s requires DB_ADAPTER=%s", AdapterPostgres, AdapterPostgres)
		}
	case AdapterRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when ETAG_STORE=%s", AdapterRedis)
		}
	case AdapterMemory:
	default:
		return fmt.Errorf("ETAG_STORE must be postgres, redis or memory, got %q", c.EtagStore)
	}

	if c.TokenLength < 16 || c.TokenLength > 128 {
		return fmt.Errorf("TOKEN_LENGTH must be within [16,128], got %d", c.TokenLength)
	}
	if c.TokenExpiresIn < time.Second {
		return fmt.Errorf("TOKEN_EXPIRES_IN must be at least 1s, got %s", c.TokenExpiresIn)
	}
	if c.LoginMaxFails < 1 {
		return fmt.Errorf("LOGIN_MAX_FAILS must be positive, got %d", c.LoginMaxFails)
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}
	if c.TokenRatePerMinute < 0 {
		return fmt.Errorf("TOKEN_RATE_PER_MINUTE must not be negative, got %d", c.TokenRatePerMinute)
	}
	return nil
}
