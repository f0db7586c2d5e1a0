/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/task-gateway/config"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfgDataType config.DataType
		cfgData     string
		expectedCfg func() *Config
	}{
		{
			name:        "default config",
			cfgDataType: config.DataTypeJSON,
			cfgData:     `{}`,
			expectedCfg: NewDefaultConfig,
		},
		{
			name:        "yaml config",
			cfgDataType: config.DataTypeYAML,
			cfgData: `
log:
  level: warn
  format: text
  output: file
  file:
    path: gateway.log
    rotation:
      compress: true
      maxSize: 100M
      maxBackups: 42
      maxAgeDays: 7
  addCaller: true
`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Level = LevelWarn
				cfg.Format = FormatText
				cfg.Output = OutputFile
				cfg.File.Path = "gateway.log"
				cfg.File.Rotation.MaxSize = 100 * 1024 * 1024
				cfg.File.Rotation.MaxBackups = 42
				cfg.File.Rotation.MaxAgeDays = 7
				cfg.File.Rotation.Compress = true
				cfg.AddCaller = true
				return cfg
			},
		},
		{
			name:        "json config, case-insensitive level",
			cfgDataType: config.DataTypeJSON,
			cfgData:     `{"log":{"level":"DEBUG","output":"stderr"}}`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Level = LevelDebug
				cfg.Output = OutputStderr
				return cfg
			},
		},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(tt.cfgData), tt.cfgDataType, cfg)
			require.NoError(t, err)
			require.Equal(t, tt.expectedCfg(), cfg)
		})
	}
}

func TestConfigWithInvalidValues(t *testing.T) {
	tests := []struct {
		name           string
		cfgData        string
		expectedErrMsg string
	}{
		{
			name:           "unknown level",
			cfgData:        `{"log":{"level":"verbose"}}`,
			expectedErrMsg: `log.level: unknown value "verbose", should be one of [error warn info debug]`,
		},
		{
			name:           "unknown format",
			cfgData:        `{"log":{"format":"xml"}}`,
			expectedErrMsg: `log.format: unknown value "xml", should be one of [json text]`,
		},
		{
			name:           "file output without path",
			cfgData:        `{"log":{"output":"file"}}`,
			expectedErrMsg: `log.file.path: cannot be empty when "file" output is used`,
		},
		{
			name:           "too small rotation size",
			cfgData:        `{"log":{"file":{"rotation":{"maxSize":"100K"}}}}`,
			expectedErrMsg: `log.file.rotation.maxSize: should be >= 1M`,
		},
		{
			name:           "too few backups",
			cfgData:        `{"log":{"file":{"rotation":{"maxBackups":0}}}}`,
			expectedErrMsg: `log.file.rotation.maxBackups: should be >= 1`,
		},
		{
			name:           "negative age",
			cfgData:        `{"log":{"file":{"rotation":{"maxAgeDays":-1}}}}`,
			expectedErrMsg: `log.file.rotation.maxAgeDays: should be >= 0`,
		},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(tt.cfgData), config.DataTypeJSON, cfg)
			require.EqualError(t, err, tt.expectedErrMsg)
		})
	}
}
