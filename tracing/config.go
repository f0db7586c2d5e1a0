/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package tracing

import (
	"fmt"

	"github.com/acronis/task-gateway/config"
)

const cfgDefaultKeyPrefix = "tracing"

const (
	cfgKeyEnabled     = "enabled"
	cfgKeyPrettyPrint = "prettyPrint"
	cfgKeySampleRatio = "sampleRatio"
)

const defaultSampleRatio = 1.0

// Config represents a set of configuration parameters for request tracing.
type Config struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	PrettyPrint bool    `mapstructure:"prettyPrint" yaml:"prettyPrint" json:"prettyPrint"`
	SampleRatio float64 `mapstructure:"sampleRatio" yaml:"sampleRatio" json:"sampleRatio"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{SampleRatio: defaultSampleRatio}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults sets default configuration values for tracing in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyEnabled, false)
	dp.SetDefault(cfgKeyPrettyPrint, false)
	dp.SetDefault(cfgKeySampleRatio, defaultSampleRatio)
}

// Set sets tracing configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	if c.PrettyPrint, err = dp.GetBool(cfgKeyPrettyPrint); err != nil {
		return err
	}
	if c.SampleRatio, err = dp.GetFloat64(cfgKeySampleRatio); err != nil {
		return err
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return dp.WrapKeyErr(cfgKeySampleRatio, fmt.Errorf("should be in [0, 1], got %v", c.SampleRatio))
	}
	return nil
}
