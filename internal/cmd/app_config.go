/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"github.com/acronis/task-gateway/config"
	"github.com/acronis/task-gateway/httpclient"
	"github.com/acronis/task-gateway/httpserver"
	"github.com/acronis/task-gateway/internal/gateway"
	"github.com/acronis/task-gateway/internal/ratelimit"
	"github.com/acronis/task-gateway/log"
	"github.com/acronis/task-gateway/profserver"
	"github.com/acronis/task-gateway/tracing"
)

// envVarsPrefix makes every key overridable from the environment, e.g. "rateLimit.quota" -> TASKGW_RATELIMIT_QUOTA.
const envVarsPrefix = "taskgw"

// AppConfig is the whole configuration of the gateway process.
type AppConfig struct {
	Log        *log.Config
	Server     *httpserver.Config
	Upstream   *httpclient.Config
	Gateway    *gateway.Config
	RateLimit  *ratelimit.Config
	Tracing    *tracing.Config
	ProfServer *profserver.Config
}

var _ config.Config = (*AppConfig)(nil)

// NewAppConfig creates a new AppConfig with all sections ready to be loaded.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Log:        log.NewConfig(),
		Server:     httpserver.NewConfig(),
		Upstream:   httpclient.NewConfig(),
		Gateway:    gateway.NewConfig(),
		RateLimit:  ratelimit.NewConfig(),
		Tracing:    tracing.NewConfig(),
		ProfServer: profserver.NewConfig(),
	}
}

// SetProviderDefaults sets defaults of every section.
func (c *AppConfig) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

// Set sets every section from config.DataProvider.
func (c *AppConfig) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}

// loadAppConfig reads the file (YAML, or JSON by extension) if path is not empty,
// then applies environment variables on top of it.
func loadAppConfig(path string) (*AppConfig, error) {
	cfg := NewAppConfig()
	return cfg, config.NewDefaultLoader(envVarsPrefix).LoadFromPath(path, cfg)
}
