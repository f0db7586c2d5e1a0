/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/acronis/task-gateway/config"
)

const cfgDefaultKeyPrefix = "upstream"

const (
	// DefaultClientTimeout is a default time limit for a whole upstream exchange (including reading the body).
	DefaultClientTimeout = 30 * time.Second

	defaultDialTimeout             = 5 * time.Second
	defaultIdleConnTimeout         = 90 * time.Second
	defaultMaxIdleConnsPerHost     = 32
	defaultLogSlowRequestThreshold = time.Second
)

const (
	cfgKeyTimeout                      = "timeout"
	cfgKeyTransportDialTimeout         = "transport.dialTimeout"
	cfgKeyTransportIdleConnTimeout     = "transport.idleConnTimeout"
	cfgKeyTransportMaxIdleConnsPerHost = "transport.maxIdleConnsPerHost"
	cfgKeyTransportDNSServers          = "transport.dnsServers"
	cfgKeyLogEnabled                   = "log.enabled"
	cfgKeyLogMode                      = "log.mode"
	cfgKeyLogSlowRequestThreshold      = "log.slowRequestThreshold"
	cfgKeyMetricsEnabled               = "metrics.enabled"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// TransportConfig represents configuration options for the underlying http.Transport.
type TransportConfig struct {
	DialTimeout         config.TimeDuration `mapstructure:"dialTimeout" yaml:"dialTimeout" json:"dialTimeout"`
	IdleConnTimeout     config.TimeDuration `mapstructure:"idleConnTimeout" yaml:"idleConnTimeout" json:"idleConnTimeout"`
	MaxIdleConnsPerHost int                 `mapstructure:"maxIdleConnsPerHost" yaml:"maxIdleConnsPerHost" json:"maxIdleConnsPerHost"`
	// DNSServers ("host:port") resolve backend hosts in round-robin instead of the system resolver.
	DNSServers          []string            `mapstructure:"dnsServers" yaml:"dnsServers" json:"dnsServers"`
}

// Set is part of config interface implementation.
func (c *TransportConfig) Set(dp config.DataProvider) error {
	dialTimeout, err := dp.GetDuration(cfgKeyTransportDialTimeout)
	if err != nil {
		return err
	}
	if dialTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyTransportDialTimeout, fmt.Errorf("cannot be negative"))
	}
	c.DialTimeout = config.TimeDuration(dialTimeout)

	idleConnTimeout, err := dp.GetDuration(cfgKeyTransportIdleConnTimeout)
	if err != nil {
		return err
	}
	if idleConnTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyTransportIdleConnTimeout, fmt.Errorf("cannot be negative"))
	}
	c.IdleConnTimeout = config.TimeDuration(idleConnTimeout)

	if c.MaxIdleConnsPerHost, err = dp.GetInt(cfgKeyTransportMaxIdleConnsPerHost); err != nil {
		return err
	}
	if c.MaxIdleConnsPerHost < 0 {
		return dp.WrapKeyErr(cfgKeyTransportMaxIdleConnsPerHost, fmt.Errorf("cannot be negative"))
	}

	if c.DNSServers, err = dp.GetStringSlice(cfgKeyTransportDNSServers); err != nil {
		return err
	}
	for _, addr := range c.DNSServers {
		if _, _, splitErr := net.SplitHostPort(addr); splitErr != nil {
			return dp.WrapKeyErr(cfgKeyTransportDNSServers, fmt.Errorf("invalid address %q: %w", addr, splitErr))
		}
	}
	return nil
}

// LogConfig represents configuration options for upstream requests logging.
type LogConfig struct {
	// Enabled is a flag that enables logging.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Mode of logging: none, all, failed.
	Mode LoggingMode `mapstructure:"mode" yaml:"mode" json:"mode"`

	// SlowRequestThreshold makes successful requests faster than it not logged in the "failed" mode.
	SlowRequestThreshold config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// Set is part of config interface implementation.
func (c *LogConfig) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyLogEnabled); err != nil {
		return err
	}

	mode, err := dp.GetStringFromSet(cfgKeyLogMode,
		[]string{string(LoggingModeNone), string(LoggingModeAll), string(LoggingModeFailed)}, true)
	if err != nil {
		return err
	}
	c.Mode = LoggingMode(strings.ToLower(mode))

	threshold, err := dp.GetDuration(cfgKeyLogSlowRequestThreshold)
	if err != nil {
		return err
	}
	if threshold < 0 {
		return dp.WrapKeyErr(cfgKeyLogSlowRequestThreshold, fmt.Errorf("cannot be negative"))
	}
	c.SlowRequestThreshold = config.TimeDuration(threshold)
	return nil
}

// MetricsConfig represents configuration options for upstream requests metrics.
type MetricsConfig struct {
	// Enabled is a flag that enables metrics.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// Set is part of config interface implementation.
func (c *MetricsConfig) Set(dp config.DataProvider) error {
	var err error
	c.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled)
	return err
}

// Config represents options for the upstream HTTP client.
type Config struct {
	// Timeout is the maximum time to wait for an upstream exchange.
	Timeout config.TimeDuration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`

	Transport TransportConfig `mapstructure:"transport" yaml:"transport" json:"transport"`
	Log       LogConfig       `mapstructure:"log" yaml:"log" json:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	keyPrefix string
}

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix(cfgDefaultKeyPrefix)
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows specifying key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Timeout: config.TimeDuration(DefaultClientTimeout),
		Transport: TransportConfig{
			DialTimeout:         config.TimeDuration(defaultDialTimeout),
			IdleConnTimeout:     config.TimeDuration(defaultIdleConnTimeout),
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		},
		Log: LogConfig{
			Enabled:              true,
			Mode:                 LoggingModeFailed,
			SlowRequestThreshold: config.TimeDuration(defaultLogSlowRequestThreshold),
		},
		Metrics:   MetricsConfig{Enabled: true},
		keyPrefix: cfgDefaultKeyPrefix,
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults is part of config interface implementation.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTimeout, DefaultClientTimeout)
	dp.SetDefault(cfgKeyTransportDialTimeout, defaultDialTimeout)
	dp.SetDefault(cfgKeyTransportIdleConnTimeout, defaultIdleConnTimeout)
	dp.SetDefault(cfgKeyTransportMaxIdleConnsPerHost, defaultMaxIdleConnsPerHost)
	dp.SetDefault(cfgKeyLogEnabled, true)
	dp.SetDefault(cfgKeyLogMode, string(LoggingModeFailed))
	dp.SetDefault(cfgKeyLogSlowRequestThreshold, defaultLogSlowRequestThreshold)
	dp.SetDefault(cfgKeyMetricsEnabled, true)
}

// Set is part of config interface implementation.
func (c *Config) Set(dp config.DataProvider) error {
	timeout, err := dp.GetDuration(cfgKeyTimeout)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, fmt.Errorf("must be positive"))
	}
	c.Timeout = config.TimeDuration(timeout)

	if err = c.Transport.Set(dp); err != nil {
		return err
	}
	if err = c.Log.Set(dp); err != nil {
		return err
	}
	return c.Metrics.Set(dp)
}
