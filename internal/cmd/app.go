/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/acronis/task-gateway/httpclient"
	"github.com/acronis/task-gateway/httpserver"
	"github.com/acronis/task-gateway/httpserver/middleware"
	"github.com/acronis/task-gateway/internal/auth"
	"github.com/acronis/task-gateway/internal/gateway"
	"github.com/acronis/task-gateway/internal/ratelimit"
	"github.com/acronis/task-gateway/internal/version"
	"github.com/acronis/task-gateway/log"
	"github.com/acronis/task-gateway/profserver"
	"github.com/acronis/task-gateway/restapi"
	"github.com/acronis/task-gateway/retry"
	"github.com/acronis/task-gateway/service"
	"github.com/acronis/task-gateway/tracing"
)

const healthComponentRedis = "redis"

// redisConnectPolicy gives the store about half a minute to come up before the gateway gives up.
var redisConnectPolicy retry.Policy = retry.NewExponentialBackoffPolicy(200*time.Millisecond, 5*time.Second, 8)

// appOpts represents options for buildApp.
type appOpts struct {
	// Listener replaces the listener created from the server address.
	Listener net.Listener
	// TracingOpts is passed to tracing.Init.
	TracingOpts tracing.Opts
}

// app is the assembled gateway process.
type app struct {
	Unit   *service.CompositeUnit
	Server *httpserver.HTTPServer

	closers []func(ctx context.Context) error
}

// Close releases resources held outside of units (tracer exporter, Redis connections).
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildApp wires the request pipeline from the configuration.
// Environment and backends are resolved here once and never re-read per request.
func buildApp(ctx context.Context, cfg *AppConfig, logger log.FieldLogger, opts appOpts) (_ *app, err error) { //nolint // hugeParam: opts
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	serviceName := cfg.Gateway.ServiceName

	tp, shutdownTracing, err := tracing.Init(cfg.Tracing, serviceName, logger, opts.TracingOpts)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, shutdownTracing)

	rateLimitMetrics := ratelimit.NewPrometheusMetrics("")
	limiter, limiterUnits, healthCheck, err := makeLimiter(ctx, a, cfg.RateLimit, rateLimitMetrics, logger)
	if err != nil {
		return nil, err
	}

	validator, err := auth.NewValidatorWithOpts([]byte(cfg.Gateway.Auth.JWTSecret),
		auth.ValidatorOpts{Leeway: time.Duration(cfg.Gateway.Auth.Leeway)})
	if err != nil {
		return nil, fmt.Errorf("create token validator: %w", err)
	}

	routes, err := gateway.NewRouteTable(gateway.DefaultRoutes())
	if err != nil {
		return nil, fmt.Errorf("create route table: %w", err)
	}

	upstreamMetrics := httpclient.NewPrometheusMetricsCollector("")
	forwarder, err := makeForwarder(cfg, upstreamMetrics, tp)
	if err != nil {
		return nil, err
	}

	gw, err := gateway.New(gateway.Opts{
		Routes:            routes,
		Limiter:           limiter,
		Validator:         validator,
		Forwarder:         forwarder,
		Health:            httpserver.NewHealthCheckHandler(serviceName, healthCheck),
		LimiterBackend:    cfg.RateLimit.Backend,
		RateLimitMetrics:  rateLimitMetrics,
		TrustForwardedFor: cfg.RateLimit.TrustForwardedFor,
		NotFoundPolicy:    cfg.Gateway.Routing.NotFoundPolicy,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create gateway: %w", err)
	}

	var rootMiddlewares []func(http.Handler) http.Handler
	if cfg.Tracing.Enabled {
		rootMiddlewares = append(rootMiddlewares, tracing.Middleware(tp, serviceName))
	}
	a.Server = httpserver.New(cfg.Server, logger, httpserver.Opts{
		Handler:         gw,
		HandlerRoutes:   routes.Prefixes(),
		RootMiddlewares: rootMiddlewares,
		Listener:        opts.Listener,
	})

	units := []service.Unit{
		a.Server,
		&metricsUnit{
			registerers: []service.MetricsRegisterer{restapi.NewResponseErrorMetrics(""), rateLimitMetrics, upstreamMetrics},
			collectors:  []prometheus.Collector{version.NewBuildInfoCollector("")},
		},
	}
	units = append(units, limiterUnits...)
	if cfg.ProfServer.Enabled {
		units = append(units, profserver.New(cfg.ProfServer, logger))
	}
	a.Unit = service.NewCompositeUnit(units...)

	backends := cfg.Gateway.SelectedBackends()
	logger.Info("gateway is configured",
		log.String("environment", cfg.Gateway.Environment),
		log.String("identity_url", backends.Identity),
		log.String("orders_url", backends.Orders),
		log.String("rate_limit_backend", cfg.RateLimit.Backend),
		log.Int("rate_limit_quota", cfg.RateLimit.Quota),
		log.Duration("rate_limit_window", time.Duration(cfg.RateLimit.Window)),
	)
	return a, nil
}

// makeLimiter creates the limiter of the configured backend, its background units and a health check.
func makeLimiter(
	ctx context.Context, a *app, cfg *ratelimit.Config, metrics *ratelimit.PrometheusMetrics, logger log.FieldLogger,
) (ratelimit.Limiter, []service.Unit, httpserver.HealthCheck, error) {
	switch cfg.Backend {
	case ratelimit.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })

		limiter, err := ratelimit.NewRedisLimiter(client, cfg.Rate(), ratelimit.RedisLimiterOpts{KeyPrefix: cfg.Redis.KeyPrefix})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create redis rate limiter: %w", err)
		}
		redisLogger := logger.With(log.String("redis_address", cfg.Redis.Address))
		if err = retry.DoWithRetryAndLog(ctx, redisConnectPolicy, redisLogger, "redis ping", limiter.Ping); err != nil {
			return nil, nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Address, err)
		}
		healthCheck := func(ctx context.Context) (httpserver.HealthCheckResult, error) {
			status := httpserver.HealthCheckStatusOK
			if pingErr := limiter.Ping(ctx); pingErr != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				reqLogger := middleware.GetLoggerFromContext(ctx)
				if reqLogger == nil {
					reqLogger = redisLogger
				}
				reqLogger.Warn("redis health check failed", log.Error(pingErr))
				status = httpserver.HealthCheckStatusFail
			}
			return httpserver.HealthCheckResult{healthComponentRedis: status}, nil
		}
		return limiter, nil, healthCheck, nil

	default:
		limiter, err := ratelimit.NewSlidingLogLimiter(cfg.Rate())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create rate limiter: %w", err)
		}
		janitor := ratelimit.NewJanitor(limiter, metrics, logger)
		return limiter, []service.Unit{ratelimit.NewJanitorUnit(janitor, time.Duration(cfg.CleanupInterval))}, nil, nil
	}
}

func makeForwarder(
	cfg *AppConfig, collector *httpclient.PrometheusMetricsCollector, tp trace.TracerProvider,
) (*gateway.Forwarder, error) {
	clientOpts := httpclient.Opts{
		RequestType:       "upstream",
		LoggerProvider:    middleware.GetLoggerFromContext,
		RequestIDProvider: middleware.GetRequestIDFromContext,
		Collector:         collector,
	}
	if cfg.Tracing.Enabled {
		clientOpts.TracerProvider = tp
	}
	forwarder, err := gateway.NewForwarder(httpclient.New(cfg.Upstream, clientOpts), cfg.Gateway.SelectedBackends())
	if err != nil {
		return nil, fmt.Errorf("create forwarder: %w", err)
	}
	return forwarder, nil
}

// metricsUnit owns process-wide metrics. It has no lifecycle of its own.
type metricsUnit struct {
	registerers []service.MetricsRegisterer
	collectors  []prometheus.Collector
}

var _ service.Unit = (*metricsUnit)(nil)
var _ service.MetricsRegisterer = (*metricsUnit)(nil)

func (u *metricsUnit) Start(chan<- error) {}

func (u *metricsUnit) Stop(bool) error { return nil }

func (u *metricsUnit) MustRegisterMetrics() {
	for _, r := range u.registerers {
		r.MustRegisterMetrics()
	}
	prometheus.MustRegister(u.collectors...)
}

func (u *metricsUnit) UnregisterMetrics() {
	for _, r := range u.registerers {
		r.UnregisterMetrics()
	}
	for _, c := range u.collectors {
		prometheus.Unregister(c)
	}
}
