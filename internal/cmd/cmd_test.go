/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/acronis/task-gateway/httpserver/middleware"
	"github.com/acronis/task-gateway/internal/auth"
	"github.com/acronis/task-gateway/internal/ratelimit"
	"github.com/acronis/task-gateway/internal/version"
	"github.com/acronis/task-gateway/log/logtest"
	"github.com/acronis/task-gateway/retry"
	"github.com/acronis/task-gateway/service"
	"github.com/acronis/task-gateway/testutil"
)

const testSecret = "cmd-test-secret"

func writeConfigFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoadAppConfig(t *testing.T) {
	t.Run("yaml file with env override", func(t *testing.T) {
		path := writeConfigFile(t, "config.yml", `
gateway:
  environment: production
  auth:
    jwtSecret: from-file
rateLimit:
  quota: 10
`)
		t.Setenv("TASKGW_RATELIMIT_QUOTA", "5")
		cfg, err := loadAppConfig(path)
		require.NoError(t, err)
		require.Equal(t, "production", cfg.Gateway.Environment)
		require.Equal(t, "from-file", cfg.Gateway.Auth.JWTSecret)
		require.Equal(t, 5, cfg.RateLimit.Quota)
		require.Equal(t, "http://orders-service:8002", cfg.Gateway.SelectedBackends().Orders)
		require.Equal(t, ":8000", cfg.Server.Address)
		require.Equal(t, 30*time.Second, time.Duration(cfg.Upstream.Timeout))
		require.False(t, cfg.Tracing.Enabled)
		require.False(t, cfg.ProfServer.Enabled)
	})

	t.Run("json file", func(t *testing.T) {
		path := writeConfigFile(t, "config.json", `{"gateway": {"auth": {"jwtSecret": "from-json"}}}`)
		cfg, err := loadAppConfig(path)
		require.NoError(t, err)
		require.Equal(t, "from-json", cfg.Gateway.Auth.JWTSecret)
		require.Equal(t, "development", cfg.Gateway.Environment)
	})

	t.Run("environment only", func(t *testing.T) {
		t.Setenv("TASKGW_GATEWAY_AUTH_JWTSECRET", "from-env")
		cfg, err := loadAppConfig("")
		require.NoError(t, err)
		require.Equal(t, "from-env", cfg.Gateway.Auth.JWTSecret)
		require.Equal(t, 100, cfg.RateLimit.Quota)
		require.Equal(t, time.Minute, time.Duration(cfg.RateLimit.Window))
	})

	t.Run("secret is required", func(t *testing.T) {
		_, err := loadAppConfig(writeConfigFile(t, "config.yml", "rateLimit:\n  quota: 10\n"))
		require.EqualError(t, err, "gateway.auth.jwtSecret: cannot be empty")
	})
}

func TestTokenCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd := NewRootCommand()
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"token", "--secret", testSecret, "--subject", "user-42", "--role", "admin", "--ttl", "1h"})
	require.NoError(t, rootCmd.Execute())

	validator, err := auth.NewValidator([]byte(testSecret))
	require.NoError(t, err)
	claims, err := validator.Validate(strings.TrimSpace(out.String()), time.Now())
	require.NoError(t, err)
	require.Equal(t, "user-42", claims.Subject)
	require.True(t, claims.HasRole("admin"))
	require.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, time.Minute)
}

func TestTokenCommand_Errors(t *testing.T) {
	t.Setenv(envJWTSecret, "")

	rootCmd := NewRootCommand()
	rootCmd.SetOut(io.Discard)
	rootCmd.SetArgs([]string{"token"})
	require.EqualError(t, rootCmd.Execute(), "secret is required: pass --secret or set TASKGW_GATEWAY_AUTH_JWTSECRET")

	rootCmd = NewRootCommand()
	rootCmd.SetOut(io.Discard)
	rootCmd.SetArgs([]string{"token", "--secret", testSecret, "--ttl", "-1m"})
	require.EqualError(t, rootCmd.Execute(), "ttl should be positive, got -1m0s")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd := NewRootCommand()
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version", "--json"})
	require.NoError(t, rootCmd.Execute())

	var info version.Info
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	require.Equal(t, version.Get(), info)
}

func newTestAppConfig(t *testing.T, ordersURL string) *AppConfig {
	t.Helper()
	cfg, err := loadAppConfig(writeConfigFile(t, "config.yml", `
log:
  level: error
gateway:
  auth:
    jwtSecret: `+testSecret+`
  backends:
    development:
      identity: http://127.0.0.1:1
      orders: `+ordersURL+`
rateLimit:
  quota: 3
`))
	require.NoError(t, err)
	return cfg
}

// startApp runs the assembled app the way the serve command does and returns its base URL.
func startApp(t *testing.T, cfg *AppConfig) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	logger := logtest.NewRecorder()
	a, err := buildApp(context.Background(), cfg, logger, appOpts{Listener: listener})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.NewWithOpts(logger, a.Unit, service.Opts{}).StartContext(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		require.NoError(t, a.Close(context.Background()))
	})

	baseURL := "http://" + listener.Addr().String()
	require.NoError(t, testutil.WaitListeningServer(listener.Addr().String(), 3*time.Second))
	return baseURL
}

func TestBuildApp_MemoryBackend(t *testing.T) {
	orders := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"success":true,"data":[],"error":null}`))
	}))
	defer orders.Close()

	baseURL := startApp(t, newTestAppConfig(t, orders.URL))

	resp, err := http.Get(baseURL + "/health")
	require.NoError(t, err)
	var health map[string]interface{}
	testutil.RequireDataEnvelopeInResponse(t, resp, http.StatusOK, &health)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, "api-gateway", health["service"])

	token, err := auth.Issue([]byte(testSecret), auth.Claims{Subject: "user-1", ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodGet, baseURL+"/v1/orders", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	testutil.RequireDataEnvelopeInResponse(t, resp, http.StatusOK, nil)
	require.NoError(t, resp.Body.Close())
	require.NotEmpty(t, resp.Header.Get(middleware.HeaderRequestID))

	// Quota of 3 is exhausted by the fourth request.
	resp, err = http.Get(baseURL + "/health")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	resp, err = http.Get(baseURL + "/health")
	require.NoError(t, err)
	testutil.RequireErrorEnvelopeInResponse(t, resp, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED")
	require.NoError(t, resp.Body.Close())

	resp, err = http.Get(baseURL + "/metrics")
	require.NoError(t, err)
	metricsBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Contains(t, string(metricsBody), "gateway_build_info")
	require.Contains(t, string(metricsBody), `restapi_response_errors_total{code="RATE_LIMIT_EXCEEDED"} 1`)
}

func TestBuildApp_RedisBackend(t *testing.T) {
	redisServer := miniredis.RunT(t)
	cfg := newTestAppConfig(t, "http://127.0.0.1:1")
	cfg.RateLimit.Backend = ratelimit.BackendRedis
	cfg.RateLimit.Redis.Address = redisServer.Addr()

	baseURL := startApp(t, cfg)

	resp, err := http.Get(baseURL + "/health")
	require.NoError(t, err)
	var health struct {
		Components map[string]bool `json:"components"`
	}
	testutil.RequireDataEnvelopeInResponse(t, resp, http.StatusOK, &health)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, map[string]bool{"redis": true}, health.Components)
	require.NotEmpty(t, redisServer.Keys())
}

func TestBuildApp_RedisUnreachable(t *testing.T) {
	prevPolicy := redisConnectPolicy
	redisConnectPolicy = retry.NewConstantBackoffPolicy(time.Millisecond, 2)
	defer func() { redisConnectPolicy = prevPolicy }()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	cfg := newTestAppConfig(t, "http://127.0.0.1:1")
	cfg.RateLimit.Backend = ratelimit.BackendRedis
	cfg.RateLimit.Redis.Address = addr

	logger := logtest.NewRecorder()
	_, err = buildApp(context.Background(), cfg, logger, appOpts{})
	require.ErrorContains(t, err, "connect to redis at "+addr)
	require.Len(t, logger.FindAllEntriesByFilter(func(entry logtest.RecordedEntry) bool {
		return entry.Text == "redis ping failed, retrying"
	}), 2)
}
