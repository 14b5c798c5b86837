package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("memory driver needs no database", func(t *testing.T) {
		t.Setenv("STORECOUNT_STORAGE_DRIVER", "memory")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, DriverMemory, cfg.Storage.Driver)
		assert.Equal(t, "8080", cfg.Server.Port)
		assert.Equal(t, 2*time.Minute, cfg.Redis.LockTTL)
		assert.Equal(t, CapabilitiesFromToken, cfg.Auth.CapabilitySource)
		assert.NotEmpty(t, cfg.JWT.Secret)
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("STORECOUNT_DATABASE_URL", "postgres://localhost/storecount")
		t.Setenv("STORECOUNT_SERVER_PORT", "9000")
		t.Setenv("STORECOUNT_REDIS_ENABLED", "true")
		t.Setenv("STORECOUNT_REDIS_LOCK_TTL", "45s")
		t.Setenv("STORECOUNT_AUTH_CAPABILITY_SOURCE", "database")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
		assert.Equal(t, "postgres://localhost/storecount", cfg.Database.URL)
		assert.Equal(t, "9000", cfg.Server.Port)
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, 45*time.Second, cfg.Redis.LockTTL)
		assert.Equal(t, CapabilitiesFromDatabase, cfg.Auth.CapabilitySource)
	})

	t.Run("postgres driver requires database url", func(t *testing.T) {
		t.Setenv("STORECOUNT_STORAGE_DRIVER", "postgres")
		t.Setenv("STORECOUNT_DATABASE_URL", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.url")
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			App:      AppConfig{Env: "development"},
			Database: DatabaseConfig{URL: "postgres://x", MaxConns: 10, MinConns: 1},
			Auth:     AuthConfig{CapabilitySource: CapabilitiesFromToken},
			Storage:  StorageConfig{Driver: DriverPostgres},
			Worker:   WorkerConfig{BatchSize: 10, PollInterval: time.Second, CleanupInterval: time.Hour},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }, "storage.driver"},
		{"unknown capability source", func(c *Config) { c.Auth.CapabilitySource = "ldap" }, "capability_source"},
		{"production without secret", func(c *Config) { c.App.Env = "production" }, "jwt.secret"},
		{"database grants with memory driver", func(c *Config) {
			c.Storage.Driver = DriverMemory
			c.Auth.CapabilitySource = CapabilitiesFromDatabase
		}, "requires the postgres driver"},
		{"min conns above max", func(c *Config) { c.Database.MinConns = 20 }, "min_conns"},
		{"zero poll interval", func(c *Config) { c.Worker.PollInterval = 0 }, "worker intervals"},
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
