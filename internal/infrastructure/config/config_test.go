package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"ERP_APP_NAME",
	"ERP_APP_ENV",
	"ERP_APP_PORT",
	"ERP_DATABASE_HOST",
	"ERP_DATABASE_PORT",
	"ERP_DATABASE_PASSWORD",
	"ERP_DATABASE_SSLMODE",
	"ERP_DATABASE_MAX_OPEN_CONNS",
	"ERP_DATABASE_MAX_IDLE_CONNS",
	"ERP_JWT_ENABLED",
	"ERP_JWT_SECRET",
	"ERP_ACTOR_QUEUE_CAPACITY",
	"ERP_ACTOR_DEFAULT_OPERATION_TIMEOUT",
	"ERP_ACTOR_MAX_CONCURRENT_PROVIDERS",
	"ERP_ACTOR_IDLE_TIMEOUT",
	"ERP_RETRY_MAX_ATTEMPTS",
	"ERP_RETRY_INITIAL_INTERVAL",
	"ERP_RETRY_MAX_INTERVAL",
	"ERP_RETRY_RETRY_WRITES",
	"ERP_TENANTS_CONFIG_FILE",
	"ERP_SYNC_SNAPSHOT_ENABLED",
	"ERP_STORAGE_BUCKET",
	"ERP_IDEMPOTENCY_BACKEND",
	"ERP_TELEMETRY_SAMPLING_RATIO",
}

// setEnv clears every key the tests touch, applies values and restores the
// original environment when the test ends.
func setEnv(t *testing.T, values map[string]string) {
	t.Helper()
	original := make(map[string]string, len(configEnvKeys))
	for _, k := range configEnvKeys {
		original[k] = os.Getenv(k)
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for k, v := range original {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	})
	for k, v := range values {
		os.Setenv(k, v)
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		setEnv(t, nil)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "erp-connector", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "erp_connector", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)

		assert.Equal(t, 1000, cfg.Actor.QueueCapacity)
		assert.Equal(t, 30*time.Second, cfg.Actor.DefaultOperationTimeout)
		assert.Equal(t, 100, cfg.Actor.MaxConcurrentProviders)
		assert.Zero(t, cfg.Actor.IdleTimeout)
		assert.Equal(t, time.Minute, cfg.Actor.EvictionInterval)

		assert.Equal(t, 3, cfg.Retry.MaxAttempts)
		assert.Equal(t, 200*time.Millisecond, cfg.Retry.InitialInterval)
		assert.Equal(t, 5*time.Second, cfg.Retry.MaxInterval)
		assert.Equal(t, 2.0, cfg.Retry.Multiplier)
		assert.False(t, cfg.Retry.RetryWrites)

		assert.Equal(t, "tenants.yaml", cfg.Tenants.ConfigFile)
		assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
		assert.Equal(t, "redis", cfg.Idempotency.Backend)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	})

	t.Run("loads values from environment variables with ERP prefix", func(t *testing.T) {
		setEnv(t, map[string]string{
			"ERP_APP_NAME":                        "gateway",
			"ERP_APP_PORT":                        "9000",
			"ERP_DATABASE_HOST":                   "db.local",
			"ERP_DATABASE_PORT":                   "5433",
			"ERP_ACTOR_QUEUE_CAPACITY":            "2",
			"ERP_ACTOR_DEFAULT_OPERATION_TIMEOUT": "5s",
			"ERP_ACTOR_MAX_CONCURRENT_PROVIDERS":  "7",
			"ERP_ACTOR_IDLE_TIMEOUT":              "10m",
			"ERP_RETRY_MAX_ATTEMPTS":              "1",
			"ERP_RETRY_RETRY_WRITES":              "true",
			"ERP_TENANTS_CONFIG_FILE":             "/etc/erp/tenants.yaml",
			"ERP_IDEMPOTENCY_BACKEND":             "memory",
		})

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "gateway", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "db.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 2, cfg.Actor.QueueCapacity)
		assert.Equal(t, 5*time.Second, cfg.Actor.DefaultOperationTimeout)
		assert.Equal(t, 7, cfg.Actor.MaxConcurrentProviders)
		assert.Equal(t, 10*time.Minute, cfg.Actor.IdleTimeout)
		assert.Equal(t, 1, cfg.Retry.MaxAttempts)
		assert.True(t, cfg.Retry.RetryWrites)
		assert.Equal(t, "/etc/erp/tenants.yaml", cfg.Tenants.ConfigFile)
		assert.Equal(t, "memory", cfg.Idempotency.Backend)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		setEnv(t, map[string]string{
			"ERP_DATABASE_MAX_OPEN_CONNS": "10",
			"ERP_DATABASE_MAX_IDLE_CONNS": "20",
		})

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("zero queue capacity uses default", func(t *testing.T) {
		setEnv(t, map[string]string{"ERP_ACTOR_QUEUE_CAPACITY": "0"})

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 1000, cfg.Actor.QueueCapacity)
	})

	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "negative queue capacity",
			env:     map[string]string{"ERP_ACTOR_QUEUE_CAPACITY": "-1"},
			wantErr: "actor.queue_capacity must be positive",
		},
		{
			name:    "negative actor limit",
			env:     map[string]string{"ERP_ACTOR_MAX_CONCURRENT_PROVIDERS": "-3"},
			wantErr: "actor.max_concurrent_providers cannot be negative",
		},
		{
			name:    "negative idle timeout",
			env:     map[string]string{"ERP_ACTOR_IDLE_TIMEOUT": "-1m"},
			wantErr: "actor.idle_timeout cannot be negative",
		},
		{
			name: "retry intervals inverted",
			env: map[string]string{
				"ERP_RETRY_INITIAL_INTERVAL": "10s",
				"ERP_RETRY_MAX_INTERVAL":     "1s",
			},
			wantErr: "retry.max_interval",
		},
		{
			name:    "unknown idempotency backend",
			env:     map[string]string{"ERP_IDEMPOTENCY_BACKEND": "memcached"},
			wantErr: "idempotency.backend",
		},
		{
			name:    "snapshot without bucket",
			env:     map[string]string{"ERP_SYNC_SNAPSHOT_ENABLED": "true"},
			wantErr: "storage.bucket is required",
		},
		{
			name:    "jwt enabled without secret",
			env:     map[string]string{"ERP_JWT_ENABLED": "true"},
			wantErr: "jwt.secret is required",
		},
		{
			name:    "sampling ratio out of range",
			env:     map[string]string{"ERP_TELEMETRY_SAMPLING_RATIO": "1.5"},
			wantErr: "telemetry.sampling_ratio",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ProductionValidation(t *testing.T) {
	validProduction := func() map[string]string {
		return map[string]string{
			"ERP_APP_ENV":           "production",
			"ERP_JWT_ENABLED":       "true",
			"ERP_JWT_SECRET":        "this-is-a-very-secure-jwt-secret-key-32chars",
			"ERP_DATABASE_PASSWORD": "secure-password",
			"ERP_DATABASE_SSLMODE":  "require",
		}
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setEnv(t, validProduction())

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
		assert.True(t, cfg.JWT.Enabled)
	})

	t.Run("requires jwt in production", func(t *testing.T) {
		env := validProduction()
		delete(env, "ERP_JWT_ENABLED")
		setEnv(t, env)

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.enabled must be true in production")
	})

	t.Run("requires jwt.secret at least 32 characters in production", func(t *testing.T) {
		env := validProduction()
		env["ERP_JWT_SECRET"] = "short-secret"
		setEnv(t, env)

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret must be at least 32 characters")
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		env := validProduction()
		delete(env, "ERP_DATABASE_PASSWORD")
		setEnv(t, env)

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		env := validProduction()
		env["ERP_DATABASE_SSLMODE"] = "disable"
		setEnv(t, env)

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}
