package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "STORE_DRIVER", "SQLITE_PATH", "DATABASE_URL", "PAYMENT_GATEWAY_URL",
		"PAYMENT_GATEWAY_KEY", "PAYMENT_RATE_PER_MINUTE", "LOG_LEVEL", "LOG_FORMAT",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "SERVICE_NAME",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, 60, cfg.RatePerMin)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "library.db", cfg.SQLitePath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "libradesk", cfg.ServiceName)
	assert.Empty(t, cfg.OTLPEndpoint)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", DriverPostgres)
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/lib")
	t.Setenv("PAYMENT_RATE_PER_MINUTE", "0")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "postgres://u:p@db:5432/lib", cfg.DatabaseURL)
	assert.Equal(t, 0, cfg.RatePerMin)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("driver", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "mysql")
		t.Setenv("PAYMENT_RATE_PER_MINUTE", "60")
		_, err := Load()
		assert.ErrorContains(t, err, `unknown store driver "mysql"`)
	})
	t.Run("rate", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", DriverSQLite)
		t.Setenv("PAYMENT_RATE_PER_MINUTE", "many")
		_, err := Load()
		assert.ErrorContains(t, err, "PAYMENT_RATE_PER_MINUTE")
	})
	t.Run("negative rate", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", DriverSQLite)
		t.Setenv("PAYMENT_RATE_PER_MINUTE", "-1")
		_, err := Load()
		assert.Error(t, err)
	})
}
