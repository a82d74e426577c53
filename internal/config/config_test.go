package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/resolve-gateway/internal/config"
)

func TestLoadRequiresCoreVariables(t *testing.T) {
	base := map[string]string{
		"DATABASE_URL":     "postgres://localhost:5432/resolve",
		"REDIS_URL":        "redis://localhost:6379/0",
		"ADMIN_JWT_SECRET": "secret",
		"PUBLIC_BASE_URL":  "https://shop.example.com/",
	}

	cfg, err := config.LoadForTests(base)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "https://shop.example.com", cfg.PublicBaseURL, "trailing slash is trimmed")
	require.Equal(t, int64(60), cfg.ReturnRateLimit)

	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "ADMIN_JWT_SECRET", "PUBLIC_BASE_URL"} {
		t.Run(key+" required", func(t *testing.T) {
			env := make(map[string]string, len(base))
			for k, v := range base {
				env[k] = v
			}
			env[key] = ""
			_, err := config.LoadForTests(env)
			require.Error(t, err)
			require.Contains(t, err.Error(), key)
		})
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"DATABASE_URL":      "postgres://localhost:5432/resolve",
		"REDIS_URL":         "redis://localhost:6379/0",
		"ADMIN_JWT_SECRET":  "secret",
		"PUBLIC_BASE_URL":   "https://shop.example.com",
		"PORT":              "9090",
		"PROVIDER_TIMEOUT":  "3s",
		"RETURN_RATE_LIMIT": "10",
	})
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, "3s", cfg.ProviderTimeout.String())
	require.Equal(t, int64(10), cfg.ReturnRateLimit)
}
