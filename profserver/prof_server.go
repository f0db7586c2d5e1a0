/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver runs pprof endpoints next to the gateway on their own address.
package profserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/acronis/task-gateway/httpserver/middleware"
	"github.com/acronis/task-gateway/log"
	"github.com/acronis/task-gateway/service"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// ProfServer serves /debug/pprof/*. It is a service.Unit.
type ProfServer struct {
	URL string

	server *http.Server
	logger log.FieldLogger
	done   chan struct{}
}

var _ service.Unit = (*ProfServer)(nil)

func New(cfg *Config, logger log.FieldLogger) *ProfServer {
	logger = logger.With(log.String("address", cfg.Address), log.String("server", "pprof"))

	router := chi.NewRouter()
	router.Use(middleware.RequestID(), middleware.LoggingWithOpts(logger, middleware.LoggingOpts{RequestStart: true}))
	router.Mount("/debug", chimiddleware.Profiler())

	return &ProfServer{
		URL:    "http://" + cfg.Address,
		server: &http.Server{Addr: cfg.Address, Handler: router, ReadHeaderTimeout: readHeaderTimeout},
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start listens and serves until Stop is called.
func (s *ProfServer) Start(fatalError chan<- error) {
	defer close(s.done)

	if !isLoopback(s.server.Addr) {
		s.logger.Warn("profiling server is reachable from outside the host")
	}
	s.logger.Info("starting profiling server...")

	err := s.server.ListenAndServe()
	switch {
	case errors.Is(err, http.ErrServerClosed):
		s.logger.Info("profiling server closed")
	case err != nil:
		s.logger.Error("profiling server error", log.Error(err))
		fatalError <- err
	}
}

// Stop shuts the server down, closing it at once if gracefully is false.
func (s *ProfServer) Stop(gracefully bool) error {
	s.logger.Info("closing profiling server...", log.Bool("gracefully", gracefully))
	var err error
	if gracefully {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = s.server.Shutdown(ctx)
	} else {
		err = s.server.Close()
	}
	if err != nil {
		s.logger.Error("profiling server closing error", log.Error(err))
		return err
	}
	<-s.done
	return nil
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
