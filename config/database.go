package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"danavision"`
	Password string `env:"PASSWORD"                envDefault:"danavision"`
	Name     string `env:"NAME"                    envDefault:"danavision"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`

	// Pool sizing. Worker mode holds a connection per in-flight job plus the
	// LISTEN connection, so MaxOpenConns should exceed the worker count.
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"    envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
}

// Sanitize applies guardrails to pool sizing.
func (c *DBConfig) Sanitize() {
	if c.MaxOpenConns < 1 {
		c.MaxOpenConns = 1
	}
	if c.MaxIdleConns < 0 {
		c.MaxIdleConns = 0
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelPort       string   `env:"SENTINEL_PORT"        envDefault:"26379"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// CacheConfig contains result cache configuration (Redis-based).
type CacheConfig struct {
	// Redis connection settings for cache.
	RedisAddr     string `env:"CACHE_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"CACHE_REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"CACHE_REDIS_DB"       envDefault:"0"`

	// PriceTTL is the TTL for cached price discovery results. Prices move
	// quickly, so this stays short.
	PriceTTL time.Duration `env:"CACHE_PRICE_TTL" envDefault:"15m"`

	// LocalStoreTTL is the TTL for cached nearby-store discovery results.
	LocalStoreTTL time.Duration `env:"CACHE_LOCAL_STORE_TTL" envDefault:"24h"`

	// LocalStoreStaleAfter is the age past which local store data is
	// considered stale and eligible for scheduled refresh. This is a data
	// quality signal, independent of the Redis TTL above.
	LocalStoreStaleAfter time.Duration `env:"CACHE_LOCAL_STORE_STALE_AFTER" envDefault:"168h"` // 7 days
}

// Sanitize applies guardrails to cache configuration values.
func (c *CacheConfig) Sanitize() {
	if c.PriceTTL < time.Minute {
		c.PriceTTL = time.Minute
	}
	if c.LocalStoreTTL < time.Minute {
		c.LocalStoreTTL = time.Minute
	}
	if c.LocalStoreStaleAfter < c.LocalStoreTTL {
		c.LocalStoreStaleAfter = c.LocalStoreTTL
	}
}
