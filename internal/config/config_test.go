package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("DB_ADAPTER", "memory")

	cfg, err := Parse()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, AdapterMemory, cfg.EtagStore, "etag store follows the db adapter")
	require.Equal(t, 40, cfg.TokenLength)
	require.Equal(t, int64(3600), cfg.TokenTTLSeconds())
	require.Equal(t, 15*time.Minute, cfg.LoginWindow)
	require.Equal(t, 60, cfg.TokenRatePerMinute)
}

func TestParse_PostgresRequiresDSN(t *testing.T) {
	t.Setenv("DB_ADAPTER", "postgres")
	t.Setenv("DATABASE_DSN", "")

	_, err := Parse()
	require.ErrorContains(t, err, "DATABASE_DSN")
}

func TestParse_RedisRequiresAddr(t *testing.T) {
	t.Setenv("DB_ADAPTER", "memory")
	t.Setenv("ETAG_STORE", "redis")
	t.Setenv("REDIS_ADDR", "")

	_, err := Parse()
	require.ErrorContains(t, err, "REDIS_ADDR")

	t.Setenv("REDIS_ADDR", "localhost:6379")
	cfg, err := Parse()
	require.NoError(t, err)
	require.Equal(t, AdapterRedis, cfg.EtagStore)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown adapter":          {"DB_ADAPTER": "mysql"},
		"postgres etags on memory": {"DB_ADAPTER": "memory", "ETAG_STORE": "postgres"},
		"short tokens":             {"DB_ADAPTER": "memory", "TOKEN_LENGTH": "8"},
		"zero ttl":                 {"DB_ADAPTER": "memory", "TOKEN_EXPIRES_IN": "0s"},
		"no lockout threshold":     {"DB_ADAPTER": "memory", "LOGIN_MAX_FAILS": "0"},
		"bad trusted proxy":        {"DB_ADAPTER": "memory", "TRUSTED_PROXIES": "10.0.0.0/8,proxy.local"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := Parse()
			require.Error(t, err)
		})
	}
}

func TestParse_TrustedProxies(t *testing.T) {
	t.Setenv("DB_ADAPTER", "memory")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.7")

	cfg, err := Parse()
	require.NoError(t, err)
	prefixes, err := cfg.TrustedProxyPrefixes()
	require.NoError(t, err)
	require.Len(t, prefixes, 2)
	require.Equal(t, "10.0.0.0/8", prefixes[0].String())
	require.Equal(t, "192.168.1.7/32", prefixes[1].String())
}
