/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"fmt"
	"strings"

	"code.cloudfoundry.org/bytefmt"

	"github.com/acronis/task-gateway/config"
)

const cfgDefaultKeyPrefix = "log"

const (
	cfgKeyLevel                  = "level"
	cfgKeyFormat                 = "format"
	cfgKeyOutput                 = "output"
	cfgKeyAddCaller              = "addCaller"
	cfgKeyFilePath               = "file.path"
	cfgKeyFileRotationMaxSize    = "file.rotation.maxSize"
	cfgKeyFileRotationMaxBackups = "file.rotation.maxBackups"
	cfgKeyFileRotationMaxAgeDays = "file.rotation.maxAgeDays"
	cfgKeyFileRotationCompress   = "file.rotation.compress"
)

// Rotation limits.
const (
	DefaultFileRotationMaxSizeBytes = 250 * 1024 * 1024
	MinFileRotationMaxSizeBytes     = 1024 * 1024
	DefaultFileRotationMaxBackups   = 10
)

// Level is a minimal level of logged entries.
type Level string

// Levels.
const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

// Format is an encoding of entries.
type Format string

// Formats.
const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Output is where entries are written.
type Output string

// Outputs.
const (
	OutputStdout Output = "stdout"
	OutputStderr Output = "stderr"
	OutputFile   Output = "file"
)

// Config is the "log" section of the gateway configuration.
type Config struct {
	Level  Level            `mapstructure:"level" yaml:"level" json:"level"`
	Format Format           `mapstructure:"format" yaml:"format" json:"format"`
	Output Output           `mapstructure:"output" yaml:"output" json:"output"`
	File   FileOutputConfig `mapstructure:"file" yaml:"file" json:"file"`

	// AddCaller adds package/file:line of the call site to every entry.
	AddCaller bool `mapstructure:"addCaller" yaml:"addCaller" json:"addCaller"`
}

// FileOutputConfig is used with OutputFile. Path may contain {{pid}} and {{starttime}}.
type FileOutputConfig struct {
	Path     string             `mapstructure:"path" yaml:"path" json:"path"`
	Rotation FileRotationConfig `mapstructure:"rotation" yaml:"rotation" json:"rotation"`
}

// FileRotationConfig controls rotation of the log file.
type FileRotationConfig struct {
	MaxSize    config.ByteSize `mapstructure:"maxSize" yaml:"maxSize" json:"maxSize"`
	MaxBackups int             `mapstructure:"maxBackups" yaml:"maxBackups" json:"maxBackups"`
	MaxAgeDays int             `mapstructure:"maxAgeDays" yaml:"maxAgeDays" json:"maxAgeDays"`
	Compress   bool            `mapstructure:"compress" yaml:"compress" json:"compress"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates an empty Config to be filled by config.Loader.
func NewConfig() *Config {
	return &Config{}
}

// NewDefaultConfig creates a Config equal to the one loaded from an empty document.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Output: OutputStdout,
		File: FileOutputConfig{Rotation: FileRotationConfig{
			MaxSize:    DefaultFileRotationMaxSizeBytes,
			MaxBackups: DefaultFileRotationMaxBackups,
		}},
	}
}

func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyLevel, string(LevelInfo))
	dp.SetDefault(cfgKeyFormat, string(FormatJSON))
	dp.SetDefault(cfgKeyOutput, string(OutputStdout))
	dp.SetDefault(cfgKeyFileRotationMaxSize, bytefmt.ByteSize(DefaultFileRotationMaxSizeBytes))
	dp.SetDefault(cfgKeyFileRotationMaxBackups, DefaultFileRotationMaxBackups)
}

// Set reads the section. Level, format and output are case-insensitive.
func (c *Config) Set(dp config.DataProvider) error {
	for _, e := range []struct {
		key string
		set []string
		dst *string
	}{
		{cfgKeyLevel, []string{string(LevelError), string(LevelWarn), string(LevelInfo), string(LevelDebug)}, (*string)(&c.Level)},
		{cfgKeyFormat, []string{string(FormatJSON), string(FormatText)}, (*string)(&c.Format)},
		{cfgKeyOutput, []string{string(OutputStdout), string(OutputStderr), string(OutputFile)}, (*string)(&c.Output)},
	} {
		val, err := dp.GetStringFromSet(e.key, e.set, true)
		if err != nil {
			return err
		}
		*e.dst = strings.ToLower(val)
	}

	var err error
	if c.AddCaller, err = dp.GetBool(cfgKeyAddCaller); err != nil {
		return err
	}
	return c.setFile(dp)
}

func (c *Config) setFile(dp config.DataProvider) error {
	var err error
	if c.File.Path, err = dp.GetString(cfgKeyFilePath); err != nil {
		return err
	}
	if c.File.Path == "" && c.Output == OutputFile {
		return dp.WrapKeyErr(cfgKeyFilePath, fmt.Errorf("cannot be empty when %q output is used", OutputFile))
	}

	rotation := &c.File.Rotation
	if rotation.MaxSize, err = dp.GetByteSize(cfgKeyFileRotationMaxSize); err != nil {
		return err
	}
	if rotation.MaxSize < MinFileRotationMaxSizeBytes {
		return dp.WrapKeyErr(cfgKeyFileRotationMaxSize,
			fmt.Errorf("should be >= %s", bytefmt.ByteSize(MinFileRotationMaxSizeBytes)))
	}
	if rotation.MaxBackups, err = dp.GetInt(cfgKeyFileRotationMaxBackups); err != nil {
		return err
	}
	if rotation.MaxBackups < 1 {
		return dp.WrapKeyErr(cfgKeyFileRotationMaxBackups, fmt.Errorf("should be >= 1"))
	}
	if rotation.MaxAgeDays, err = dp.GetInt(cfgKeyFileRotationMaxAgeDays); err != nil {
		return err
	}
	if rotation.MaxAgeDays < 0 {
		return dp.WrapKeyErr(cfgKeyFileRotationMaxAgeDays, fmt.Errorf("should be >= 0"))
	}
	rotation.Compress, err = dp.GetBool(cfgKeyFileRotationCompress)
	return err
}
