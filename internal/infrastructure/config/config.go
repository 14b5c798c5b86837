// Package config loads service configuration from an optional config file,
// a .env file and STORECOUNT_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "STORECOUNT"

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Capability sources.
const (
	CapabilitiesFromToken    = "token"
	CapabilitiesFromDatabase = "database"
)

// Config holds all service configuration.
type Config struct {
	App         AppConfig
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Log         LogConfig
	Auth        AuthConfig
	Idempotency IdempotencyConfig
	Storage     StorageConfig
	Worker      WorkerConfig
}

type AppConfig struct {
	Name string
	Env  string
}

// IsProduction reports whether the service runs with production settings.
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig configures the distributed close guard. When disabled the
// guard is process-local.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

type JWTConfig struct {
	Secret    string
	Issuer    string
	AccessTTL time.Duration
}

type LogConfig struct {
	Level       string
	Development bool
}

// AuthConfig selects where store capabilities come from: the bearer token
// claims or the store_user_capabilities table.
type AuthConfig struct {
	CapabilitySource string
}

type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration
}

type StorageConfig struct {
	Driver string
}

type WorkerConfig struct {
	PollInterval    time.Duration
	BatchSize       int
	CleanupInterval time.Duration
}

// Load reads configuration. Priority, highest first: environment variables
// (STORECOUNT_DATABASE_URL), config file, defaults. A missing .env or config
// file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("database.url"),
			MaxConns:        v.GetInt32("database.max_conns"),
			MinConns:        v.GetInt32("database.min_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetDuration("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			LockTTL:  v.GetDuration("redis.lock_ttl"),
		},
		JWT: JWTConfig{
			Secret:    v.GetString("jwt.secret"),
			Issuer:    v.GetString("jwt.issuer"),
			AccessTTL: v.GetDuration("jwt.access_ttl"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
		Auth: AuthConfig{
			CapabilitySource: v.GetString("auth.capability_source"),
		},
		Idempotency: IdempotencyConfig{
			Enabled: v.GetBool("idempotency.enabled"),
			TTL:     v.GetDuration("idempotency.ttl"),
		},
		Storage: StorageConfig{
			Driver: v.GetString("storage.driver"),
		},
		Worker: WorkerConfig{
			PollInterval:    v.GetDuration("worker.poll_interval"),
			BatchSize:       v.GetInt("worker.batch_size"),
			CleanupInterval: v.GetDuration("worker.cleanup_interval"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "storecount")
	v.SetDefault("app.env", "development")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 2*time.Minute)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "storecount")
	v.SetDefault("jwt.access_ttl", 15*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("auth.capability_source", CapabilitiesFromToken)

	v.SetDefault("idempotency.enabled", false)
	v.SetDefault("idempotency.ttl", 24*time.Hour)

	v.SetDefault("storage.driver", DriverPostgres)

	v.SetDefault("worker.poll_interval", 2*time.Second)
	v.SetDefault("worker.batch_size", 100)
	v.SetDefault("worker.cleanup_interval", time.Hour)
}

// Validate checks combinations that cannot work at runtime.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("config: database.url is required for the postgres driver")
		}
	case DriverMemory:
		if c.Auth.CapabilitySource == CapabilitiesFromDatabase {
			return errors.New("config: auth.capability_source=database requires the postgres driver")
		}
		if c.Idempotency.Enabled {
			return errors.New("config: idempotency requires the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}

	switch c.Auth.CapabilitySource {
	case CapabilitiesFromToken, CapabilitiesFromDatabase:
	default:
		return fmt.Errorf("config: unknown auth.capability_source %q", c.Auth.CapabilitySource)
	}

	if c.JWT.Secret == "" {
		if c.App.IsProduction() {
			return errors.New("config: jwt.secret must be set in production")
		}
		c.JWT.Secret = "dev-secret-change-me"
	}

	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("config: database.min_conns (%d) cannot exceed database.max_conns (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}
	if c.Worker.BatchSize <= 0 {
		return fmt.Errorf("config: worker.batch_size must be positive, got %d", c.Worker.BatchSize)
	}
	if c.Worker.PollInterval <= 0 || c.Worker.CleanupInterval <= 0 {
		return errors.New("config: worker intervals must be positive")
	}
	return nil
}
