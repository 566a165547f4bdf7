package cache

import "time"

// Config is the cache section of the application config.
// With Redis disabled the layered cache runs on memory alone.
type Config struct {
	TTL           time.Duration `yaml:"ttl" default:"30s"`
	MemoryMaxSize int           `yaml:"memory_max_size" default:"64"`
	Redis         RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Host         string        `yaml:"host" default:"localhost"`
	Port         int           `yaml:"port" default:"6379"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size" default:"10"`
	PoolTimeout  time.Duration `yaml:"pool_timeout" default:"30s"`
	MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
	Prefix       string        `yaml:"prefix" default:"edux"`
}

// MemoryOption configures Memory cache.
type MemoryOption func(*MemoryConfig)

// MemoryConfig holds memory cache configuration.
type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
}

// WithMemoryMaxSize sets max cache size.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) {
		if size > 0 {
			c.MaxSize = size
		}
	}
}

// WithMemoryCleanup sets cleanup interval.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *MemoryConfig) {
		if interval > 0 {
			c.CleanupInterval = interval
		}
	}
}
