/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package gateway implements the request pipeline of the API gateway: client identification, rate limiting,
// route resolution, bearer authentication and relaying to backends, with a single error translator at the exit.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/task-gateway/httpserver/middleware"
	"github.com/acronis/task-gateway/internal/auth"
	"github.com/acronis/task-gateway/internal/ratelimit"
	"github.com/acronis/task-gateway/log"
)

// Opts represents options for creating Gateway.
type Opts struct {
	Routes    *RouteTable
	Limiter   ratelimit.Limiter
	Validator *auth.Validator
	Forwarder *Forwarder
	// Health serves routes with TargetGateway.
	Health http.Handler

	// LimiterBackend labels rejections in metrics ("memory" or "redis").
	LimiterBackend   string
	RateLimitMetrics *ratelimit.PrometheusMetrics

	TrustForwardedFor bool
	NotFoundPolicy    string

	Logger log.FieldLogger
	// Now returns the current time, time.Now by default.
	Now func() time.Time
}

// Gateway is the http.Handler running the request pipeline.
type Gateway struct {
	routes     *RouteTable
	limiter    ratelimit.Limiter
	validator  *auth.Validator
	forwarder  *Forwarder
	health     http.Handler
	translator Translator

	limiterBackend   string
	rateLimitMetrics *ratelimit.PrometheusMetrics
	reqCtxOpts       RequestContextOpts

	logger log.FieldLogger
	now    func() time.Time
}

var _ http.Handler = (*Gateway)(nil)

// New creates a new Gateway.
func New(opts Opts) (*Gateway, error) { //nolint // hugeParam: opts is heavy, it's ok in this case.
	if opts.Routes == nil || opts.Limiter == nil || opts.Validator == nil || opts.Forwarder == nil {
		return nil, fmt.Errorf("routes, limiter, validator and forwarder are required")
	}
	if opts.Health == nil {
		return nil, fmt.Errorf("health handler is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Gateway{
		routes:           opts.Routes,
		limiter:          opts.Limiter,
		validator:        opts.Validator,
		forwarder:        opts.Forwarder,
		health:           opts.Health,
		translator:       Translator{NotFoundPolicy: opts.NotFoundPolicy},
		limiterBackend:   opts.LimiterBackend,
		rateLimitMetrics: opts.RateLimitMetrics,
		reqCtxOpts:       RequestContextOpts{TrustForwardedFor: opts.TrustForwardedFor},
		logger:           logger,
		now:              now,
	}, nil
}

// Routes returns the route table of the gateway.
func (g *Gateway) Routes() *RouteTable {
	return g.routes
}

// ServeHTTP runs the pipeline: identify, check rate, resolve route, authenticate, dispatch.
// Each stage either passes the request on or returns an error, and all errors are translated in one place.
func (g *Gateway) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	reqCtx := NewRequestContext(r, g.now(), g.reqCtxOpts)
	logger := g.loggerFor(r)
	if err := g.serve(rw, r, reqCtx, logger); err != nil {
		g.translator.Translate(rw, err, logger)
	}
}

func (g *Gateway) serve(rw http.ResponseWriter, r *http.Request, reqCtx RequestContext, logger log.FieldLogger) error {
	if err := g.checkRate(r, reqCtx, logger); err != nil {
		return err
	}

	route, ok := g.routes.Resolve(r.URL.Path)
	if !ok {
		return newError(KindRouteNotFound, fmt.Errorf("no route for %s", r.URL.Path))
	}
	if !route.AllowsMethod(r.Method) {
		return &Error{Kind: KindMethodNotAllowed, Allowed: route.Methods,
			Err: fmt.Errorf("%s is not allowed for %s", r.Method, route.Prefix)}
	}

	if route.RequiresAuth {
		claims, err := g.authenticate(r, reqCtx)
		if err != nil {
			return err
		}
		r = r.WithContext(NewContextWithClaims(r.Context(), claims))
		if lp := middleware.GetLoggingParamsFromContext(r.Context()); lp != nil {
			lp.ExtendFields(log.String("user_id", claims.Subject))
		}
	}

	if route.Target == TargetGateway {
		g.health.ServeHTTP(rw, r)
		return nil
	}
	return g.dispatch(rw, r, route, reqCtx, logger)
}

func (g *Gateway) checkRate(r *http.Request, reqCtx RequestContext, logger log.FieldLogger) error {
	allow, retryAfter, err := g.limiter.Allow(r.Context(), reqCtx.ClientKey, reqCtx.ArrivedAt)
	if err != nil {
		// A limiter failure admits the request.
		logger.Error("rate limiter failed, request is admitted",
			log.String("client", reqCtx.ClientKey), log.Error(err))
		return nil
	}
	if allow {
		return nil
	}
	if g.rateLimitMetrics != nil {
		g.rateLimitMetrics.IncRejected(g.limiterBackend)
	}
	return &Error{Kind: KindRateLimitExceeded, RetryAfter: retryAfter,
		Err: fmt.Errorf("client %s exceeded the quota", reqCtx.ClientKey)}
}

func (g *Gateway) authenticate(r *http.Request, reqCtx RequestContext) (*auth.Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, newError(KindAuthenticationRequired, fmt.Errorf("no Authorization header"))
	}
	token, ok := auth.ParseBearer(header)
	if !ok {
		return nil, newError(KindAuthenticationRequired, fmt.Errorf("no bearer token in Authorization header"))
	}
	claims, err := g.validator.Validate(token, reqCtx.ArrivedAt)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, newError(KindTokenExpired, err)
		}
		return nil, newError(KindTokenInvalid, err)
	}
	return claims, nil
}

func (g *Gateway) dispatch(
	rw http.ResponseWriter, r *http.Request, route RouteEntry, reqCtx RequestContext, logger log.FieldLogger,
) error {
	baseURL, ok := g.forwarder.BaseURL(route.Target)
	if !ok {
		return newError(KindUpstreamFault, fmt.Errorf("no backend for target %q", route.Target))
	}
	exchange := NewUpstreamExchange(r, route.Target, baseURL, reqCtx.RequestID)
	resp, err := g.forwarder.Forward(r.Context(), exchange)
	if err != nil {
		logger.Error("proxy error",
			log.String("target", string(route.Target)),
			log.String("upstream_url", exchange.URL.String()),
			log.Error(err),
		)
		return err
	}
	Relay(rw, resp, logger)
	return nil
}

func (g *Gateway) loggerFor(r *http.Request) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return g.logger.With(log.String("request_id", middleware.GetRequestIDFromContext(r.Context())))
}
