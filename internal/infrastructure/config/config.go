package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Backend names accepted by STORE, TOKENS and LOCKER.
const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
	BackendRedis  = "redis"
)

type Config struct {
	Port       string        `env:"PORT,        default=8080"`
	Env        string        `env:"ENV,         default=development"`
	JWTSecret  string        `env:"JWT_SECRET"`
	LogLevel   string        `env:"LOG_LEVEL,   default=info"`
	SessionTTL time.Duration `env:"SESSION_TTL, default=12h"`
	BcryptCost int           `env:"BCRYPT_COST, default=10"`

	Store  string `env:"STORE,  default=memory"`
	Tokens string `env:"TOKENS, default=memory"`
	Locker string `env:"LOCKER, default=memory"`

	ActivityWorkers    int           `env:"ACTIVITY_WORKERS,     default=4"`
	TokenSweepInterval time.Duration `env:"TOKEN_SWEEP_INTERVAL, default=1m"`
	LockTTL            time.Duration `env:"LOCK_TTL,             default=10s"`

	Mongo MongoConfig
	Redis RedisConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=vault_agents"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads configuration from l; tests pass envconfig.MapLookuper.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	if c.Store != BackendMemory && c.Store != BackendMongo {
		return fmt.Errorf("config: STORE must be %q or %q, got %q", BackendMemory, BackendMongo, c.Store)
	}
	if c.Tokens != BackendMemory && c.Tokens != BackendRedis {
		return fmt.Errorf("config: TOKENS must be %q or %q, got %q", BackendMemory, BackendRedis, c.Tokens)
	}
	if c.Locker != BackendMemory && c.Locker != BackendRedis {
		return fmt.Errorf("config: LOCKER must be %q or %q, got %q", BackendMemory, BackendRedis, c.Locker)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("config: SESSION_TTL must be positive")
	}
	return nil
}

// Development reports whether the process runs in the development env.
func (c *Config) Development() bool {
	return c.Env == "development"
}

// UsesRedis reports whether any backend needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Tokens == BackendRedis || c.Locker == BackendRedis
}
