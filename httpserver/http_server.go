/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package httpserver provides the HTTP server unit of the gateway: chi router with request id, logging,
// recovery, metrics, CORS and body limit middlewares, plus /metrics and health-check handlers.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/task-gateway/httpserver/middleware"
	"github.com/acronis/task-gateway/log"
	"github.com/acronis/task-gateway/service"
)

const metricsEndpoint = "/metrics"

// HTTPRequestMetricsOpts represents options for HTTPRequestMetrics middleware that used in HTTPServer.
type HTTPRequestMetricsOpts struct {
	Namespace       string
	DurationBuckets []float64
}

// Opts represents options for creating HTTPServer.
type Opts struct {
	// Handler serves all non-system requests (see RouterOpts.Handler).
	Handler http.Handler
	// HandlerRoutes are path prefixes of Handler used for route patterns in metrics.
	HandlerRoutes []string
	// RootMiddlewares is a list of middlewares to be applied after the default ones.
	RootMiddlewares []func(http.Handler) http.Handler
	// MetricsHandler is a custom handler for the /metrics endpoint (Prometheus handler by default).
	MetricsHandler http.Handler
	// HTTPRequestMetrics contains options for configuring HTTP request metrics middleware.
	HTTPRequestMetrics HTTPRequestMetricsOpts
	// Listener is a pre-configured network listener to use instead of creating a new one.
	Listener net.Listener
}

// HTTPServer is the gateway's listening unit: an http.Server over a chi router.
type HTTPServer struct {
	URL        string
	HTTPRouter chi.Router

	server          *http.Server
	tls             TLSConfig
	logger          log.FieldLogger
	shutdownTimeout time.Duration
	metrics         *middleware.HTTPRequestMetricsCollector

	listener net.Listener
	port     atomic.Int32
	started  atomic.Bool
	served   chan struct{}
}

var _ service.Unit = (*HTTPServer)(nil)
var _ service.MetricsRegisterer = (*HTTPServer)(nil)

// New builds the server with request id, logging, recovery, metrics, CORS and body limit middlewares.
func New(cfg *Config, logger log.FieldLogger, opts Opts) *HTTPServer { //nolint // hugeParam: opts
	metrics := middleware.NewHTTPRequestMetricsCollectorWithOpts(middleware.HTTPRequestMetricsCollectorOpts{
		Namespace:       opts.HTTPRequestMetrics.Namespace,
		DurationBuckets: opts.HTTPRequestMetrics.DurationBuckets,
	})
	router := chi.NewRouter()
	applyDefaultMiddlewaresToRouter(router, cfg, logger, metrics)
	configureRouter(router, logger, RouterOpts{
		RootMiddlewares: opts.RootMiddlewares,
		MetricsHandler:  opts.MetricsHandler,
		Handler:         opts.Handler,
		HandlerRoutes:   opts.HandlerRoutes,
	})

	scheme := "http"
	if cfg.TLS.Enabled {
		scheme = "https"
	}
	return &HTTPServer{
		URL:        scheme + "://" + cfg.Address,
		HTTPRouter: router,
		server: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadTimeout:       time.Duration(cfg.Timeouts.Read),
			ReadHeaderTimeout: time.Duration(cfg.Timeouts.ReadHeader),
			WriteTimeout:      time.Duration(cfg.Timeouts.Write),
			IdleTimeout:       time.Duration(cfg.Timeouts.Idle),
		},
		tls:             cfg.TLS,
		logger:          logger.With(log.String("address", cfg.Address)),
		shutdownTimeout: time.Duration(cfg.Timeouts.Shutdown),
		metrics:         metrics,
		listener:        opts.Listener,
		served:          make(chan struct{}),
	}
}

// Start listens and serves until Stop. A listen or serve failure is sent to fatalError.
func (s *HTTPServer) Start(fatalError chan<- error) {
	s.started.Store(true)
	defer close(s.served)

	s.logger.Info("starting gateway HTTP server...",
		log.Duration("read_timeout", s.server.ReadTimeout),
		log.Duration("write_timeout", s.server.WriteTimeout),
		log.Duration("idle_timeout", s.server.IdleTimeout),
		log.Duration("shutdown_timeout", s.shutdownTimeout),
		log.Bool("tls", s.tls.Enabled),
	)

	if err := s.listen(); err != nil {
		s.logger.Error("gateway HTTP server error", log.Error(err))
		fatalError <- err
		return
	}

	var err error
	if s.tls.Enabled {
		err = s.server.ServeTLS(s.listener, s.tls.Certificate, s.tls.Key)
	} else {
		err = s.server.Serve(s.listener)
	}
	if errors.Is(err, http.ErrServerClosed) {
		s.logger.Info("gateway HTTP server closed")
		return
	}
	s.logger.Error("gateway HTTP server error", log.Error(err))
	fatalError <- fmt.Errorf("serve: %w", err)
}

func (s *HTTPServer) listen() error {
	if s.listener == nil {
		l, err := net.Listen("tcp", s.server.Addr)
		if err != nil {
			return err
		}
		s.listener = l
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		s.port.Store(int32(addr.Port)) //nolint:gosec // TCP port fits int32
	}
	return nil
}

// Stop drains in-flight requests within the shutdown timeout, or drops them if gracefully is false.
func (s *HTTPServer) Stop(gracefully bool) error {
	var err error
	if gracefully {
		s.logger.Info("shutting down gateway HTTP server...", log.Duration("timeout", s.shutdownTimeout))
		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		err = s.server.Shutdown(ctx)
	} else {
		s.logger.Info("closing gateway HTTP server...")
		err = s.server.Close()
	}
	if err != nil {
		s.logger.Error("gateway HTTP server stop error", log.Error(err), log.Bool("gracefully", gracefully))
		return err
	}
	if s.started.Load() {
		<-s.served
	}
	s.logger.Info("gateway HTTP server stopped")
	return nil
}

func (s *HTTPServer) MustRegisterMetrics() {
	s.metrics.MustRegisterMetrics()
}

func (s *HTTPServer) UnregisterMetrics() {
	s.metrics.UnregisterMetrics()
}

// GetPort returns the port actually listened on, 0 before Start.
func (s *HTTPServer) GetPort() int {
	return int(s.port.Load())
}
