/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"time"

	"github.com/acronis/task-gateway/config"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyServerAddress              = "address"
	cfgKeyServerTLSCert              = "tls.cert"
	cfgKeyServerTLSKey               = "tls.key"
	cfgKeyServerTLSEnabled           = "tls.enabled"
	cfgKeyServerTimeoutsWrite        = "timeouts.write"
	cfgKeyServerTimeoutsRead         = "timeouts.read"
	cfgKeyServerTimeoutsReadHeader   = "timeouts.readHeader"
	cfgKeyServerTimeoutsIdle         = "timeouts.idle"
	cfgKeyServerTimeoutsShutdown     = "timeouts.shutdown"
	cfgKeyServerLimitsMaxBodySize    = "limits.maxBodySize"
	cfgKeyServerLogRequestStart      = "log.requestStart"
	cfgKeyServerLogExcludedEndpoints = "log.excludedEndpoints"
	cfgKeyServerCORSEnabled          = "cors.enabled"
	cfgKeyServerCORSAllowedOrigins   = "cors.allowedOrigins"
	cfgKeyServerCORSAllowedMethods   = "cors.allowedMethods"
	cfgKeyServerCORSAllowedHeaders   = "cors.allowedHeaders"
	cfgKeyServerCORSAllowCredentials = "cors.allowCredentials"
	cfgKeyServerCORSMaxAge           = "cors.maxAge"
)

const (
	defaultServerAddress            = ":8000"
	defaultServerTimeoutsWrite      = time.Minute
	defaultServerTimeoutsRead       = time.Second * 15
	defaultServerTimeoutsReadHeader = time.Second * 10
	defaultServerTimeoutsIdle       = time.Minute
	defaultServerTimeoutsShutdown   = time.Second * 5
	defaultServerLimitsMaxBodySize  = "10M"
	defaultServerCORSMaxAge         = time.Minute * 5
)

var (
	defaultCORSAllowedOrigins = []string{"*"}
	defaultCORSAllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	defaultCORSAllowedHeaders = []string{"*"}
)

// Config represents a set of configuration parameters for HTTPServer.
type Config struct {
	Address  string         `mapstructure:"address" yaml:"address" json:"address"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Limits   LimitsConfig   `mapstructure:"limits" yaml:"limits" json:"limits"`
	Log      LogConfig      `mapstructure:"log" yaml:"log" json:"log"`
	TLS      TLSConfig      `mapstructure:"tls" yaml:"tls" json:"tls"`
	CORS     CORSConfig     `mapstructure:"cors" yaml:"cors" json:"cors"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	var maxBodySize config.ByteSize
	_ = maxBodySize.UnmarshalText([]byte(defaultServerLimitsMaxBodySize))
	return &Config{
		Address: defaultServerAddress,
		Timeouts: TimeoutsConfig{
			Write:      config.TimeDuration(defaultServerTimeoutsWrite),
			Read:       config.TimeDuration(defaultServerTimeoutsRead),
			ReadHeader: config.TimeDuration(defaultServerTimeoutsReadHeader),
			Idle:       config.TimeDuration(defaultServerTimeoutsIdle),
			Shutdown:   config.TimeDuration(defaultServerTimeoutsShutdown),
		},
		Limits: LimitsConfig{MaxBodySize: maxBodySize},
		CORS: CORSConfig{
			Enabled:          true,
			AllowedOrigins:   defaultCORSAllowedOrigins,
			AllowedMethods:   defaultCORSAllowedMethods,
			AllowedHeaders:   defaultCORSAllowedHeaders,
			AllowCredentials: true,
			MaxAge:           config.TimeDuration(defaultServerCORSMaxAge),
		},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults sets default configuration values for HTTPServer in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyServerAddress, defaultServerAddress)

	dp.SetDefault(cfgKeyServerTimeoutsWrite, defaultServerTimeoutsWrite)
	dp.SetDefault(cfgKeyServerTimeoutsRead, defaultServerTimeoutsRead)
	dp.SetDefault(cfgKeyServerTimeoutsReadHeader, defaultServerTimeoutsReadHeader)
	dp.SetDefault(cfgKeyServerTimeoutsIdle, defaultServerTimeoutsIdle)
	dp.SetDefault(cfgKeyServerTimeoutsShutdown, defaultServerTimeoutsShutdown)

	dp.SetDefault(cfgKeyServerLimitsMaxBodySize, defaultServerLimitsMaxBodySize)

	dp.SetDefault(cfgKeyServerLogRequestStart, false)

	dp.SetDefault(cfgKeyServerCORSEnabled, true)
	dp.SetDefault(cfgKeyServerCORSAllowedOrigins, defaultCORSAllowedOrigins)
	dp.SetDefault(cfgKeyServerCORSAllowedMethods, defaultCORSAllowedMethods)
	dp.SetDefault(cfgKeyServerCORSAllowedHeaders, defaultCORSAllowedHeaders)
	dp.SetDefault(cfgKeyServerCORSAllowCredentials, true)
	dp.SetDefault(cfgKeyServerCORSMaxAge, defaultServerCORSMaxAge)
}

// TimeoutsConfig represents a set of configuration parameters for HTTPServer relating to timeouts.
// Write timeout should be greater than the upstream timeout, otherwise slow upstream responses are cut.
type TimeoutsConfig struct {
	Write      config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Read       config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	ReadHeader config.TimeDuration `mapstructure:"readHeader" yaml:"readHeader" json:"readHeader"`
	Idle       config.TimeDuration `mapstructure:"idle" yaml:"idle" json:"idle"`
	Shutdown   config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

// Set sets timeout server configuration values from config.DataProvider.
func (t *TimeoutsConfig) Set(dp config.DataProvider) error {
	for _, item := range []struct {
		key string
		dst *config.TimeDuration
	}{
		{cfgKeyServerTimeoutsWrite, &t.Write},
		{cfgKeyServerTimeoutsRead, &t.Read},
		{cfgKeyServerTimeoutsReadHeader, &t.ReadHeader},
		{cfgKeyServerTimeoutsIdle, &t.Idle},
		{cfgKeyServerTimeoutsShutdown, &t.Shutdown},
	} {
		dur, err := dp.GetDuration(item.key)
		if err != nil {
			return err
		}
		if dur < 0 {
			return dp.WrapKeyErr(item.key, fmt.Errorf("cannot be negative"))
		}
		*item.dst = config.TimeDuration(dur)
	}
	return nil
}

// LimitsConfig represents a set of configuration parameters for HTTPServer relating to limits.
type LimitsConfig struct {
	// MaxBodySize is the maximum size of the request body. Zero means no limit.
	MaxBodySize config.ByteSize `mapstructure:"maxBodySize" yaml:"maxBodySize" json:"maxBodySize"`
}

// Set sets limit server configuration values from config.DataProvider.
func (l *LimitsConfig) Set(dp config.DataProvider) error {
	var err error
	l.MaxBodySize, err = dp.GetByteSize(cfgKeyServerLimitsMaxBodySize)
	return err
}

// LogConfig represents a set of configuration parameters for HTTPServer relating to logging.
type LogConfig struct {
	RequestStart      bool     `mapstructure:"requestStart" yaml:"requestStart" json:"requestStart"`
	ExcludedEndpoints []string `mapstructure:"excludedEndpoints" yaml:"excludedEndpoints" json:"excludedEndpoints"`
}

// Set sets log server configuration values from config.DataProvider.
func (l *LogConfig) Set(dp config.DataProvider) error {
	var err error
	if l.RequestStart, err = dp.GetBool(cfgKeyServerLogRequestStart); err != nil {
		return err
	}
	if l.ExcludedEndpoints, err = dp.GetStringSlice(cfgKeyServerLogExcludedEndpoints); err != nil {
		return err
	}
	return nil
}

// TLSConfig contains configuration parameters needed to initialize(or not) secure server
type TLSConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Certificate string `mapstructure:"cert" yaml:"cert" json:"cert"`
	Key         string `mapstructure:"key" yaml:"key" json:"key"`
}

// Set sets security server configuration values from config.DataProvider.
func (s *TLSConfig) Set(dp config.DataProvider) error {
	var err error
	if s.Enabled, err = dp.GetBool(cfgKeyServerTLSEnabled); err != nil {
		return err
	}
	if s.Certificate, err = dp.GetString(cfgKeyServerTLSCert); err != nil {
		return err
	}
	if s.Key, err = dp.GetString(cfgKeyServerTLSKey); err != nil {
		return err
	}
	if s.Enabled && (s.Certificate == "" || s.Key == "") {
		return dp.WrapKeyErr(cfgKeyServerTLSKey, fmt.Errorf("both cert and key should be set"))
	}
	return nil
}

// CORSConfig represents cross-origin resource sharing settings applied to every response.
// Defaults allow any origin, method and header with credentials.
type CORSConfig struct {
	Enabled          bool                `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	AllowedOrigins   []string            `mapstructure:"allowedOrigins" yaml:"allowedOrigins" json:"allowedOrigins"`
	AllowedMethods   []string            `mapstructure:"allowedMethods" yaml:"allowedMethods" json:"allowedMethods"`
	AllowedHeaders   []string            `mapstructure:"allowedHeaders" yaml:"allowedHeaders" json:"allowedHeaders"`
	AllowCredentials bool                `mapstructure:"allowCredentials" yaml:"allowCredentials" json:"allowCredentials"`
	MaxAge           config.TimeDuration `mapstructure:"maxAge" yaml:"maxAge" json:"maxAge"`
}

// Set sets CORS configuration values from config.DataProvider.
func (c *CORSConfig) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyServerCORSEnabled); err != nil {
		return err
	}
	if c.AllowedOrigins, err = dp.GetStringSlice(cfgKeyServerCORSAllowedOrigins); err != nil {
		return err
	}
	if c.AllowedMethods, err = dp.GetStringSlice(cfgKeyServerCORSAllowedMethods); err != nil {
		return err
	}
	if c.AllowedHeaders, err = dp.GetStringSlice(cfgKeyServerCORSAllowedHeaders); err != nil {
		return err
	}
	if c.AllowCredentials, err = dp.GetBool(cfgKeyServerCORSAllowCredentials); err != nil {
		return err
	}
	var maxAge time.Duration
	if maxAge, err = dp.GetDuration(cfgKeyServerCORSMaxAge); err != nil {
		return err
	}
	c.MaxAge = config.TimeDuration(maxAge)
	return nil
}

// Set sets HTTPServer configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Address, err = dp.GetString(cfgKeyServerAddress); err != nil {
		return err
	}
	if c.Address == "" {
		return dp.WrapKeyErr(cfgKeyServerAddress, fmt.Errorf("cannot be empty"))
	}

	for _, sub := range []interface{ Set(config.DataProvider) error }{&c.TLS, &c.Timeouts, &c.Limits, &c.Log, &c.CORS} {
		if err = sub.Set(dp); err != nil {
			return err
		}
	}
	return nil
}
