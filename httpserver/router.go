/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/task-gateway/httpserver/middleware"
	"github.com/acronis/task-gateway/log"
	"github.com/acronis/task-gateway/restapi"
)

// RouterOpts represents options for creating chi.Router.
type RouterOpts struct {
	RootMiddlewares []func(http.Handler) http.Handler
	MetricsHandler  http.Handler

	// Handler serves every path except /metrics. Unmatched paths are passed to it too,
	// so it is responsible for its own not-found policy.
	Handler http.Handler
	// HandlerRoutes are path prefixes registered for Handler. They only make route patterns
	// (and therefore metric labels) meaningful, Handler still resolves the path itself.
	HandlerRoutes []string
}

// NewRouter creates a new chi.Router and performs its basic configuration.
func NewRouter(logger log.FieldLogger, opts RouterOpts) chi.Router {
	router := chi.NewRouter()
	configureRouter(router, logger, opts)
	return router
}

// nolint // hugeParam: opts is heavy, it's ok in this case.
func configureRouter(router chi.Router, logger log.FieldLogger, opts RouterOpts) {
	router.Use(opts.RootMiddlewares...)

	// Expose endpoint for Prometheus.
	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, metricsEndpoint, metricsHandler)

	router.MethodNotAllowed(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(restapi.ErrCodeMethodNotAllowed, restapi.ErrMessageMethodNotAllowed)
		restapi.RespondError(rw, http.StatusMethodNotAllowed, apiErr, loggerFor(r, logger))
	})

	if opts.Handler == nil {
		router.NotFound(func(rw http.ResponseWriter, r *http.Request) {
			apiErr := restapi.NewError(restapi.ErrCodeNotFound, restapi.ErrMessageNotFound)
			restapi.RespondError(rw, http.StatusNotFound, apiErr, loggerFor(r, logger))
		})
		return
	}

	for _, prefix := range opts.HandlerRoutes {
		prefix = "/" + strings.Trim(prefix, "/")
		router.Handle(prefix, opts.Handler)
		router.Handle(prefix+"/*", opts.Handler)
	}
	router.NotFound(opts.Handler.ServeHTTP)
}

// nolint // hugeParam: opts is heavy, it's ok in this case.
func applyDefaultMiddlewaresToRouter(
	router chi.Router, cfg *Config, logger log.FieldLogger, metricsCollector *middleware.HTTPRequestMetricsCollector,
) {
	router.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			handler.ServeHTTP(rw, r.WithContext(middleware.NewContextWithRequestStartTime(r.Context(), time.Now())))
		})
	})

	// Request ID goes first, so even CORS preflight and panic responses carry X-Request-ID.
	router.Use(middleware.RequestID())

	router.Use(middleware.LoggingWithOpts(logger, middleware.LoggingOpts{
		RequestStart:      cfg.Log.RequestStart,
		ExcludedEndpoints: cfg.Log.ExcludedEndpoints,
	}))

	router.Use(middleware.Recovery())

	router.Use(middleware.HTTPRequestMetricsWithOpts(metricsCollector, GetChiRoutePattern,
		middleware.HTTPRequestMetricsOpts{ExcludedEndpoints: []string{metricsEndpoint}}))

	if cfg.CORS.Enabled {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			ExposedHeaders:   []string{middleware.HeaderRequestID},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           int(time.Duration(cfg.CORS.MaxAge).Seconds()),
		}))
	}

	if cfg.Limits.MaxBodySize > 0 {
		router.Use(middleware.RequestBodyLimit(uint64(cfg.Limits.MaxBodySize)))
	}
}

// GetChiRoutePattern extracts chi route pattern from request.
// It works in root middlewares too, before chi has routed the request.
func GetChiRoutePattern(r *http.Request) string {
	// modified code from https://github.com/go-chi/chi/issues/270#issuecomment-479184559
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}

	routePath := r.URL.RawPath
	if routePath == "" {
		routePath = r.URL.Path
	}

	tctx := chi.NewRouteContext()
	if !rctx.Routes.Match(tctx, r.Method, routePath) {
		return ""
	}
	return tctx.RoutePattern()
}

func loggerFor(r *http.Request, fallback log.FieldLogger) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return fallback
}
