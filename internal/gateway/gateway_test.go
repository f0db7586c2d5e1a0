/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"

	"github.com/acronis/task-gateway/httpclient"
	"github.com/acronis/task-gateway/httpserver"
	"github.com/acronis/task-gateway/httpserver/middleware"
	"github.com/acronis/task-gateway/internal/auth"
	"github.com/acronis/task-gateway/internal/ratelimit"
	"github.com/acronis/task-gateway/log/logtest"
	"github.com/acronis/task-gateway/testutil"
)

var testJWTSecret = []byte("gateway-test-secret")

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// fakeIdentityService mimics registration and profile endpoints of the identity service.
type fakeIdentityService struct {
	mu            sync.Mutex
	emails        map[string]string
	lastRequestID atomic.String
	lastHost      atomic.String
}

func (s *fakeIdentityService) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	s.lastRequestID.Store(r.Header.Get(middleware.HeaderRequestID))
	s.lastHost.Store(r.Host)
	rw.Header().Set("Content-Type", "application/json")
	rw.Header().Set("X-Backend", "identity")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/auth/register":
		var req struct {
			Email string `json:"email"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exists := s.emails[req.Email]; exists {
			_, _ = io.WriteString(rw, `{"success":false,"data":null,"error":{"code":"USER_EXISTS","message":"User already exists"}}`)
			return
		}
		id := uuid.NewString()
		s.emails[req.Email] = id
		_, _ = io.WriteString(rw, `{"success":true,"data":{"id":"`+id+`"},"error":null}`)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/users/me":
		_, _ = io.WriteString(rw, `{"success":true,"data":{"email":"jane@example.com","query":"`+r.URL.RawQuery+`"},"error":null}`)
	default:
		rw.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(rw, `{"success":false,"data":null,"error":{"code":"NOT_FOUND","message":"no such endpoint"}}`)
	}
}

// fakeOrdersService computes order totals like the order service does.
func fakeOrdersService(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/v1/orders" {
		rw.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(rw, `{"success":false,"data":null,"error":{"code":"FORBIDDEN","message":"Admin role required"}}`)
		return
	}
	var req struct {
		Items []struct {
			Quantity int     `json:"quantity"`
			Price    float64 `json:"price"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}
	var total float64
	for _, item := range req.Items {
		total += float64(item.Quantity) * item.Price
	}
	resp, _ := json.Marshal(map[string]interface{}{
		"success": true,
		"data":    map[string]interface{}{"id": uuid.NewString(), "status": "created", "total_amount": total},
		"error":   nil,
	})
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusCreated)
	_, _ = rw.Write(resp)
}

type GatewayTestSuite struct {
	suite.Suite
	clock       *atomic.Time
	identity    *fakeIdentityService
	backends    Backends
	logRecorder *logtest.Recorder
}

func TestGateway(t *testing.T) {
	suite.Run(t, new(GatewayTestSuite))
}

func (s *GatewayTestSuite) SetupTest() {
	s.clock = atomic.NewTime(time.Now())
	s.identity = &fakeIdentityService{emails: make(map[string]string)}
	identitySrv := httptest.NewServer(s.identity)
	s.T().Cleanup(identitySrv.Close)
	ordersSrv := httptest.NewServer(http.HandlerFunc(fakeOrdersService))
	s.T().Cleanup(ordersSrv.Close)
	s.backends = Backends{Identity: identitySrv.URL, Orders: ordersSrv.URL}
	s.logRecorder = logtest.NewRecorder()
}

type gatewayTestOpts struct {
	rate           ratelimit.Rate
	limiter        ratelimit.Limiter
	notFoundPolicy string
	metrics        *ratelimit.PrometheusMetrics
}

// startGateway runs the gateway behind the HTTP server with all default middlewares.
func (s *GatewayTestSuite) startGateway(opts gatewayTestOpts) string {
	if opts.rate.Count == 0 {
		opts.rate = ratelimit.Rate{Count: 100, Duration: time.Minute}
	}
	limiter := opts.limiter
	if limiter == nil {
		var err error
		limiter, err = ratelimit.NewSlidingLogLimiter(opts.rate)
		s.Require().NoError(err)
	}
	validator, err := auth.NewValidator(testJWTSecret)
	s.Require().NoError(err)
	routes, err := NewRouteTable(DefaultRoutes())
	s.Require().NoError(err)
	client := httpclient.New(httpclient.NewDefaultConfig(), httpclient.Opts{
		LoggerProvider: middleware.GetLoggerFromContext,
	})
	forwarder, err := NewForwarder(client, s.backends)
	s.Require().NoError(err)

	gw, err := New(Opts{
		Routes:           routes,
		Limiter:          limiter,
		Validator:        validator,
		Forwarder:        forwarder,
		Health:           httpserver.NewHealthCheckHandler("api-gateway", nil),
		LimiterBackend:   ratelimit.BackendMemory,
		RateLimitMetrics: opts.metrics,
		NotFoundPolicy:   opts.notFoundPolicy,
		Logger:           s.logRecorder,
		Now:              s.clock.Load,
	})
	s.Require().NoError(err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	srvCfg := httpserver.NewDefaultConfig()
	srvCfg.Address = listener.Addr().String()
	srv := httpserver.New(srvCfg, s.logRecorder, httpserver.Opts{
		Handler:       gw,
		HandlerRoutes: routes.Prefixes(),
		Listener:      listener,
	})
	fatalErr := make(chan error, 1)
	go srv.Start(fatalErr)
	s.T().Cleanup(func() {
		s.Require().NoError(srv.Stop(true))
	})
	return "http://" + listener.Addr().String()
}

func (s *GatewayTestSuite) token(expiresAt time.Time) string {
	token, err := auth.Issue(testJWTSecret, userClaims(expiresAt))
	s.Require().NoError(err)
	return token
}

func userClaims(expiresAt time.Time) auth.Claims {
	return auth.Claims{Subject: "7d0c4d4e-0f1b-4c53-9d3e-2b8f6b1e2a10", Email: "jane@example.com",
		Roles: []string{"user"}, ExpiresAt: expiresAt}
}

func (s *GatewayTestSuite) do(method, url string, body string, header http.Header) (*http.Response, envelope, []byte) {
	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reqBody)
	s.Require().NoError(err)
	for name, values := range header {
		req.Header[name] = values
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer func() { s.Require().NoError(resp.Body.Close()) }()
	respBody, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	var env envelope
	if len(respBody) != 0 {
		s.Require().NoError(json.Unmarshal(respBody, &env), string(respBody))
	}
	return resp, env, respBody
}

func (s *GatewayTestSuite) bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func (s *GatewayTestSuite) TestHealth() {
	baseURL := s.startGateway(gatewayTestOpts{})

	resp, _, body := s.do(http.MethodGet, baseURL+"/health", "", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().JSONEq(`{"success":true,"data":{"status":"healthy","service":"api-gateway"},"error":null}`, string(body))
	s.Require().NotEmpty(resp.Header.Get(middleware.HeaderRequestID))
}

func (s *GatewayTestSuite) TestCorrelationID() {
	baseURL := s.startGateway(gatewayTestOpts{})
	validToken := s.token(s.clock.Load().Add(time.Hour))

	header := s.bearer(validToken)
	header.Set(middleware.HeaderRequestID, "client-supplied-id")
	resp, env, _ := s.do(http.MethodGet, baseURL+"/v1/users/me", "", header)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().True(env.Success)
	s.Require().Equal("client-supplied-id", resp.Header.Get(middleware.HeaderRequestID))
	s.Require().Equal("client-supplied-id", s.identity.lastRequestID.Load())

	resp, _, _ = s.do(http.MethodGet, baseURL+"/v1/users/me", "", s.bearer(validToken))
	generatedID := resp.Header.Get(middleware.HeaderRequestID)
	s.Require().NotEmpty(generatedID)
	s.Require().Equal(generatedID, s.identity.lastRequestID.Load())

	// Error exits carry the id too.
	for _, path := range []string{"/v1/orders", "/v1/unknown"} {
		resp, env, _ = s.do(http.MethodGet, baseURL+path, "", nil)
		s.Require().False(env.Success)
		s.Require().NotEmpty(resp.Header.Get(middleware.HeaderRequestID), path)
	}
}

func (s *GatewayTestSuite) TestRateLimiting() {
	metrics := ratelimit.NewPrometheusMetrics("")
	baseURL := s.startGateway(gatewayTestOpts{metrics: metrics})

	for i := 0; i < 100; i++ {
		resp, _, _ := s.do(http.MethodGet, baseURL+"/health", "", nil)
		s.Require().Equal(http.StatusOK, resp.StatusCode, "request %d", i+1)
	}

	resp, env, _ := s.do(http.MethodGet, baseURL+"/health", "", nil)
	s.Require().Equal(http.StatusTooManyRequests, resp.StatusCode)
	s.Require().False(env.Success)
	s.Require().Equal("RATE_LIMIT_EXCEEDED", env.Error.Code)
	s.Require().Equal("Too many requests", env.Error.Message)
	s.Require().Equal("60", resp.Header.Get("Retry-After"))
	s.Require().NotEmpty(resp.Header.Get(middleware.HeaderRequestID))

	// Rejected requests are not forwarded.
	s.identity.lastRequestID.Store("")
	resp, _, _ = s.do(http.MethodPost, baseURL+"/v1/auth/login", `{}`, nil)
	s.Require().Equal(http.StatusTooManyRequests, resp.StatusCode)
	s.Require().Empty(s.identity.lastRequestID.Load())

	// The window slides.
	s.clock.Store(s.clock.Load().Add(time.Minute + time.Millisecond))
	resp, _, _ = s.do(http.MethodGet, baseURL+"/health", "", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
}

func (s *GatewayTestSuite) TestAuthGating() {
	baseURL := s.startGateway(gatewayTestOpts{})

	resp, env, _ := s.do(http.MethodGet, baseURL+"/v1/users/me", "", nil)
	s.Require().Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Require().False(env.Success)
	s.Require().Equal("AUTHENTICATION_REQUIRED", env.Error.Code)
	s.Require().Equal("Bearer", resp.Header.Get("WWW-Authenticate"))

	resp, env, _ = s.do(http.MethodGet, baseURL+"/v1/users/me", "", http.Header{"Authorization": {"Basic Zm9vOmJhcg=="}})
	s.Require().Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Require().Equal("AUTHENTICATION_REQUIRED", env.Error.Code)

	resp, env, _ = s.do(http.MethodGet, baseURL+"/v1/users/me", "", s.bearer(s.token(s.clock.Load().Add(-time.Minute))))
	s.Require().Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Require().Equal("TOKEN_EXPIRED", env.Error.Code)
	s.Require().Equal("Token expired", env.Error.Message)

	resp, env, _ = s.do(http.MethodGet, baseURL+"/v1/users/me", "", s.bearer("not-a-token"))
	s.Require().Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Require().Equal("TOKEN_INVALID", env.Error.Code)

	resp, _, body := s.do(http.MethodGet, baseURL+"/v1/users/me?fields=email", "", s.bearer(s.token(s.clock.Load().Add(time.Hour))))
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().JSONEq(`{"success":true,"data":{"email":"jane@example.com","query":"fields=email"},"error":null}`, string(body))
	s.Require().Equal("identity", resp.Header.Get("X-Backend"))
}

func (s *GatewayTestSuite) TestTransparentRelay() {
	baseURL := s.startGateway(gatewayTestOpts{})

	resp, env, _ := s.do(http.MethodPost, baseURL+"/v1/auth/register", `{"email":"new@example.com","password":"secret"}`, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().True(env.Success)
	var data struct {
		ID string `json:"id"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &data))
	_, err := uuid.Parse(data.ID)
	s.Require().NoError(err)

	resp, env, _ = s.do(http.MethodPost, baseURL+"/v1/auth/register", `{"email":"new@example.com","password":"secret"}`, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().False(env.Success)
	s.Require().Equal("USER_EXISTS", env.Error.Code)

	// Backend errors are relayed as is, including 403 and 404.
	token := s.token(s.clock.Load().Add(time.Hour))
	resp, env, _ = s.do(http.MethodGet, baseURL+"/v1/admin/orders", "", s.bearer(token))
	s.Require().Equal(http.StatusForbidden, resp.StatusCode)
	s.Require().Equal("FORBIDDEN", env.Error.Code)

	resp, env, _ = s.do(http.MethodPost, baseURL+"/v1/auth/unknown", `{}`, nil)
	s.Require().Equal(http.StatusNotFound, resp.StatusCode)
	s.Require().Equal("no such endpoint", env.Error.Message)
}

func (s *GatewayTestSuite) TestOrderRoundTrip() {
	baseURL := s.startGateway(gatewayTestOpts{})

	resp, env, _ := s.do(http.MethodPost, baseURL+"/v1/orders",
		`{"items":[{"product_id":"p-1","quantity":2,"price":29.99}]}`, s.bearer(s.token(s.clock.Load().Add(time.Hour))))
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.Require().True(env.Success)
	var order struct {
		Status      string  `json:"status"`
		TotalAmount float64 `json:"total_amount"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &order))
	s.Require().Equal("created", order.Status)
	s.Require().Equal(59.98, order.TotalAmount)
}

func (s *GatewayTestSuite) TestUpstreamUnavailable() {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	s.backends.Orders = "http://" + listener.Addr().String()
	s.Require().NoError(listener.Close())
	baseURL := s.startGateway(gatewayTestOpts{})

	resp, env, _ := s.do(http.MethodGet, baseURL+"/v1/orders", "", s.bearer(s.token(s.clock.Load().Add(time.Hour))))
	s.Require().Equal(http.StatusServiceUnavailable, resp.StatusCode)
	s.Require().False(env.Success)
	s.Require().Equal("SERVICE_UNAVAILABLE", env.Error.Code)
	s.Require().Equal("Service temporarily unavailable", env.Error.Message)
	requestID := resp.Header.Get(middleware.HeaderRequestID)
	s.Require().NotEmpty(requestID)

	logEntry, found := s.logRecorder.FindEntry("proxy error")
	s.Require().True(found)
	s.Require().Equal(requestID, logEntry.StringField("request_id"))
	s.Require().Equal("orders", logEntry.StringField("target"))
}

func (s *GatewayTestSuite) TestRoutingErrors() {
	baseURL := s.startGateway(gatewayTestOpts{})

	resp, env, _ := s.do(http.MethodGet, baseURL+"/v1/ordersX", "", nil)
	s.Require().Equal(http.StatusNotFound, resp.StatusCode)
	s.Require().Equal("NOT_FOUND", env.Error.Code)

	resp, env, _ = s.do(http.MethodGet, baseURL+"/v1/auth/login", "", nil)
	s.Require().Equal(http.StatusMethodNotAllowed, resp.StatusCode)
	s.Require().Equal("METHOD_NOT_ALLOWED", env.Error.Code)
	s.Require().Equal("POST", resp.Header.Get("Allow"))

	resp, env, _ = s.do(http.MethodPatch, baseURL+"/v1/orders/42", "", nil)
	s.Require().Equal(http.StatusMethodNotAllowed, resp.StatusCode)
	s.Require().Equal("METHOD_NOT_ALLOWED", env.Error.Code)
}

func (s *GatewayTestSuite) TestRoutingErrors_ServiceUnavailablePolicy() {
	baseURL := s.startGateway(gatewayTestOpts{notFoundPolicy: NotFoundPolicyServiceUnavailable})

	resp, env, _ := s.do(http.MethodGet, baseURL+"/v2/orders", "", nil)
	s.Require().Equal(http.StatusServiceUnavailable, resp.StatusCode)
	s.Require().Equal("SERVICE_UNAVAILABLE", env.Error.Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, time.Time) (bool, time.Duration, error) {
	return false, 0, errors.New("redis: connection refused")
}

func (s *GatewayTestSuite) TestLimiterFailureAdmitsRequest() {
	baseURL := s.startGateway(gatewayTestOpts{limiter: failingLimiter{}})

	resp, _, _ := s.do(http.MethodGet, baseURL+"/health", "", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	_, found := s.logRecorder.FindEntry("rate limiter failed, request is admitted")
	s.Require().True(found)
}

func TestGateway_ServeHTTPWithoutMiddlewares(t *testing.T) {
	limiter, err := ratelimit.NewSlidingLogLimiter(ratelimit.Rate{Count: 1, Duration: time.Minute})
	require.NoError(t, err)
	validator, err := auth.NewValidator(testJWTSecret)
	require.NoError(t, err)
	routes, err := NewRouteTable(DefaultRoutes())
	require.NoError(t, err)
	forwarder, err := NewForwarder(http.DefaultClient, Backends{Identity: "http://127.0.0.1:1", Orders: "http://127.0.0.1:1"})
	require.NoError(t, err)
	gw, err := New(Opts{
		Routes:    routes,
		Limiter:   limiter,
		Validator: validator,
		Forwarder: forwarder,
		Health:    httpserver.NewHealthCheckHandler("api-gateway", nil),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", bytes.NewBufferString(`{}`))
	req.RemoteAddr = "192.0.2.10:53211"
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"success":false,"data":null,"error":{"code":"AUTHENTICATION_REQUIRED","message":"Authentication required"}}`,
		rec.Body.String())

	rec = httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health map[string]string
	testutil.RequireDataEnvelopeInRecorder(t, rec, http.StatusOK, &health)
	require.Equal(t, "healthy", health["status"], "other clients have their own quota")

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.0.2.10:40000"
	rec = httptest.NewRecorder()
	gw.ServeHTTP(rec, req)
	testutil.RequireErrorEnvelopeInRecorder(t, rec, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED")
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestNew_RequiredOpts(t *testing.T) {
	_, err := New(Opts{})
	require.EqualError(t, err, "routes, limiter, validator and forwarder are required")
}
