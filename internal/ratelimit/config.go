/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"time"

	"github.com/acronis/task-gateway/config"
)

const cfgDefaultKeyPrefix = "rateLimit"

// Limiter backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

const (
	cfgKeyQuota             = "quota"
	cfgKeyWindow            = "window"
	cfgKeyBackend           = "backend"
	cfgKeyCleanupInterval   = "cleanupInterval"
	cfgKeyTrustForwardedFor = "trustForwardedFor"
	cfgKeyRedisAddress      = "redis.address"
	cfgKeyRedisPassword     = "redis.password"
	cfgKeyRedisDB           = "redis.db"
	cfgKeyRedisKeyPrefix    = "redis.keyPrefix"
)

const (
	defaultQuota           = 100
	defaultWindow          = time.Minute
	defaultCleanupInterval = time.Minute
	defaultRedisAddress    = "localhost:6379"
)

// Config represents a set of configuration parameters for the rate limiting.
type Config struct {
	// Quota is the maximum number of requests admitted per client within Window.
	Quota  int                 `mapstructure:"quota" yaml:"quota" json:"quota"`
	Window config.TimeDuration `mapstructure:"window" yaml:"window" json:"window"`

	// Backend is "memory" (per-instance quota) or "redis" (quota shared by all instances).
	Backend string `mapstructure:"backend" yaml:"backend" json:"backend"`

	// CleanupInterval is how often idle in-memory windows are dropped.
	CleanupInterval config.TimeDuration `mapstructure:"cleanupInterval" yaml:"cleanupInterval" json:"cleanupInterval"`

	// TrustForwardedFor makes the first X-Forwarded-For address the client identity.
	// Enable it only behind a proxy that overwrites this header.
	TrustForwardedFor bool `mapstructure:"trustForwardedFor" yaml:"trustForwardedFor" json:"trustForwardedFor"`

	Redis RedisConfig `mapstructure:"redis" yaml:"redis" json:"redis"`
}

// RedisConfig represents connection parameters of the Redis backend.
type RedisConfig struct {
	Address   string `mapstructure:"address" yaml:"address" json:"address"`
	Password  string `mapstructure:"password" yaml:"password" json:"password"`
	DB        int    `mapstructure:"db" yaml:"db" json:"db"`
	KeyPrefix string `mapstructure:"keyPrefix" yaml:"keyPrefix" json:"keyPrefix"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Quota:           defaultQuota,
		Window:          config.TimeDuration(defaultWindow),
		Backend:         BackendMemory,
		CleanupInterval: config.TimeDuration(defaultCleanupInterval),
		Redis:           RedisConfig{Address: defaultRedisAddress, KeyPrefix: DefaultRedisKeyPrefix},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// Rate returns the configured quota as Rate.
func (c *Config) Rate() Rate {
	return Rate{Count: c.Quota, Duration: time.Duration(c.Window)}
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyQuota, defaultQuota)
	dp.SetDefault(cfgKeyWindow, defaultWindow)
	dp.SetDefault(cfgKeyBackend, BackendMemory)
	dp.SetDefault(cfgKeyCleanupInterval, defaultCleanupInterval)
	dp.SetDefault(cfgKeyTrustForwardedFor, false)
	dp.SetDefault(cfgKeyRedisAddress, defaultRedisAddress)
	dp.SetDefault(cfgKeyRedisDB, 0)
	dp.SetDefault(cfgKeyRedisKeyPrefix, DefaultRedisKeyPrefix)
}

// Set sets rate limiting configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Quota, err = dp.GetInt(cfgKeyQuota); err != nil {
		return err
	}
	if c.Quota < 1 {
		return dp.WrapKeyErr(cfgKeyQuota, fmt.Errorf("should be >= 1"))
	}

	window, err := dp.GetDuration(cfgKeyWindow)
	if err != nil {
		return err
	}
	if window < time.Millisecond {
		return dp.WrapKeyErr(cfgKeyWindow, fmt.Errorf("should be >= 1ms"))
	}
	c.Window = config.TimeDuration(window)

	if c.Backend, err = dp.GetStringFromSet(cfgKeyBackend, []string{BackendMemory, BackendRedis}, false); err != nil {
		return err
	}

	cleanupInterval, err := dp.GetDuration(cfgKeyCleanupInterval)
	if err != nil {
		return err
	}
	if cleanupInterval <= 0 {
		return dp.WrapKeyErr(cfgKeyCleanupInterval, fmt.Errorf("should be positive"))
	}
	c.CleanupInterval = config.TimeDuration(cleanupInterval)

	if c.TrustForwardedFor, err = dp.GetBool(cfgKeyTrustForwardedFor); err != nil {
		return err
	}

	if c.Redis.Address, err = dp.GetString(cfgKeyRedisAddress); err != nil {
		return err
	}
	if c.Backend == BackendRedis && c.Redis.Address == "" {
		return dp.WrapKeyErr(cfgKeyRedisAddress, fmt.Errorf("cannot be empty when %q backend is used", BackendRedis))
	}
	if c.Redis.Password, err = dp.GetString(cfgKeyRedisPassword); err != nil {
		return err
	}
	if c.Redis.DB, err = dp.GetInt(cfgKeyRedisDB); err != nil {
		return err
	}
	if c.Redis.KeyPrefix, err = dp.GetString(cfgKeyRedisKeyPrefix); err != nil {
		return err
	}
	return nil
}
