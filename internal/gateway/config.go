/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/acronis/task-gateway/config"
)

const cfgDefaultKeyPrefix = "gateway"

// Deployment environments.
const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

// Policies of answering requests that match no route.
const (
	NotFoundPolicyNotFound           = "notFound"
	NotFoundPolicyServiceUnavailable = "serviceUnavailable"
)

const (
	cfgKeyServiceName                 = "serviceName"
	cfgKeyEnvironment                 = "environment"
	cfgKeyBackendsDevelopmentIdentity = "backends.development.identity"
	cfgKeyBackendsDevelopmentOrders   = "backends.development.orders"
	cfgKeyBackendsProductionIdentity  = "backends.production.identity"
	cfgKeyBackendsProductionOrders    = "backends.production.orders"
	cfgKeyAuthJWTSecret               = "auth.jwtSecret"
	cfgKeyAuthLeeway                  = "auth.leeway"
	cfgKeyRoutingNotFoundPolicy       = "routing.notFoundPolicy"
)

const (
	defaultServiceName            = "api-gateway"
	defaultDevelopmentIdentityURL = "http://localhost:8001"
	defaultDevelopmentOrdersURL   = "http://localhost:8002"
	defaultProductionIdentityURL  = "http://users-service:8001"
	defaultProductionOrdersURL    = "http://orders-service:8002"
)

// Backends contains base URLs of the upstream services selected for the current environment.
type Backends struct {
	Identity string `mapstructure:"identity" yaml:"identity" json:"identity"`
	Orders   string `mapstructure:"orders" yaml:"orders" json:"orders"`
}

// BackendsConfig contains backend base URLs for every environment.
type BackendsConfig struct {
	Development Backends `mapstructure:"development" yaml:"development" json:"development"`
	Production  Backends `mapstructure:"production" yaml:"production" json:"production"`
}

// AuthConfig represents bearer token validation parameters.
type AuthConfig struct {
	JWTSecret string              `mapstructure:"jwtSecret" yaml:"jwtSecret" json:"-"`
	Leeway    config.TimeDuration `mapstructure:"leeway" yaml:"leeway" json:"leeway"`
}

// RoutingConfig represents dispatching parameters.
type RoutingConfig struct {
	NotFoundPolicy string `mapstructure:"notFoundPolicy" yaml:"notFoundPolicy" json:"notFoundPolicy"`
}

// Config represents a set of configuration parameters of the gateway pipeline.
type Config struct {
	ServiceName string         `mapstructure:"serviceName" yaml:"serviceName" json:"serviceName"`
	Environment string         `mapstructure:"environment" yaml:"environment" json:"environment"`
	Backends    BackendsConfig `mapstructure:"backends" yaml:"backends" json:"backends"`
	Auth        AuthConfig     `mapstructure:"auth" yaml:"auth" json:"auth"`
	Routing     RoutingConfig  `mapstructure:"routing" yaml:"routing" json:"routing"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SelectedBackends returns backend URLs of the configured environment.
func (c *Config) SelectedBackends() Backends {
	if c.Environment == EnvironmentProduction {
		return c.Backends.Production
	}
	return c.Backends.Development
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyServiceName, defaultServiceName)
	dp.SetDefault(cfgKeyEnvironment, EnvironmentDevelopment)
	dp.SetDefault(cfgKeyBackendsDevelopmentIdentity, defaultDevelopmentIdentityURL)
	dp.SetDefault(cfgKeyBackendsDevelopmentOrders, defaultDevelopmentOrdersURL)
	dp.SetDefault(cfgKeyBackendsProductionIdentity, defaultProductionIdentityURL)
	dp.SetDefault(cfgKeyBackendsProductionOrders, defaultProductionOrdersURL)
	dp.SetDefault(cfgKeyAuthLeeway, time.Duration(0))
	dp.SetDefault(cfgKeyRoutingNotFoundPolicy, NotFoundPolicyNotFound)
}

// Set sets gateway configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.ServiceName, err = dp.GetString(cfgKeyServiceName); err != nil {
		return err
	}
	if c.Environment, err = dp.GetStringFromSet(
		cfgKeyEnvironment, []string{EnvironmentDevelopment, EnvironmentProduction}, true); err != nil {
		return err
	}
	c.Environment = strings.ToLower(c.Environment)

	for _, b := range []struct {
		key string
		dst *string
	}{
		{cfgKeyBackendsDevelopmentIdentity, &c.Backends.Development.Identity},
		{cfgKeyBackendsDevelopmentOrders, &c.Backends.Development.Orders},
		{cfgKeyBackendsProductionIdentity, &c.Backends.Production.Identity},
		{cfgKeyBackendsProductionOrders, &c.Backends.Production.Orders},
	} {
		if *b.dst, err = getBaseURL(dp, b.key); err != nil {
			return err
		}
	}

	if c.Auth.JWTSecret, err = dp.GetString(cfgKeyAuthJWTSecret); err != nil {
		return err
	}
	if c.Auth.JWTSecret == "" {
		return dp.WrapKeyErr(cfgKeyAuthJWTSecret, fmt.Errorf("cannot be empty"))
	}
	leeway, err := dp.GetDuration(cfgKeyAuthLeeway)
	if err != nil {
		return err
	}
	if leeway < 0 {
		return dp.WrapKeyErr(cfgKeyAuthLeeway, fmt.Errorf("cannot be negative"))
	}
	c.Auth.Leeway = config.TimeDuration(leeway)

	if c.Routing.NotFoundPolicy, err = dp.GetStringFromSet(cfgKeyRoutingNotFoundPolicy,
		[]string{NotFoundPolicyNotFound, NotFoundPolicyServiceUnavailable}, false); err != nil {
		return err
	}
	return nil
}

func getBaseURL(dp config.DataProvider, key string) (string, error) {
	val, err := dp.GetString(key)
	if err != nil {
		return "", err
	}
	if _, err = parseBaseURL(val); err != nil {
		return "", dp.WrapKeyErr(key, err)
	}
	return val, nil
}

// parseBaseURL accepts absolute http(s) URLs without query and fragment.
func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("scheme should be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("host cannot be empty")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("query and fragment are not allowed")
	}
	return u, nil
}
