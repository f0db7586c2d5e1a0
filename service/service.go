/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/acronis/task-gateway/log"
)

// Opts represents options for Service.
type Opts struct {
	// ShutdownSignals stop the service gracefully. None means only ctx cancellation stops it.
	ShutdownSignals []os.Signal
}

// Service runs a unit (usually a CompositeUnit of the whole gateway process) in the foreground.
type Service struct {
	unit    Unit
	logger  log.FieldLogger
	opts    Opts
	signals chan os.Signal
}

// New creates a Service stopped by SIGINT or SIGTERM.
func New(logger log.FieldLogger, unit Unit) *Service {
	return NewWithOpts(logger, unit, Opts{ShutdownSignals: []os.Signal{syscall.SIGINT, syscall.SIGTERM}})
}

// NewWithOpts creates a Service with custom options.
func NewWithOpts(logger log.FieldLogger, unit Unit, opts Opts) *Service {
	return &Service{unit: unit, logger: logger, opts: opts, signals: make(chan os.Signal, 1)}
}

// Start is StartContext with the background context.
func (s *Service) Start() error {
	return s.StartContext(context.Background())
}

// StartContext registers metrics of the unit, starts it and blocks until the unit fails,
// a shutdown signal arrives or ctx is done. In the last two cases the unit is stopped gracefully.
// Metrics are unregistered on return, so the same collectors may be registered again by another run.
func (s *Service) StartContext(ctx context.Context) error {
	if mr, ok := s.unit.(MetricsRegisterer); ok {
		mr.MustRegisterMetrics()
		defer mr.UnregisterMetrics()
	}

	if len(s.opts.ShutdownSignals) != 0 {
		signal.Notify(s.signals, s.opts.ShutdownSignals...)
		defer signal.Stop(s.signals)
	}

	fatalErr := make(chan error, 1)
	go s.unit.Start(fatalErr)

	if err := s.wait(ctx, fatalErr); err != nil {
		s.logger.Error("service fatal error", log.Error(err))
		return fmt.Errorf("fatal error: %w", err)
	}
	if err := s.unit.Stop(true); err != nil {
		return fmt.Errorf("stop service gracefully: %w", err)
	}
	s.logger.Info("service stopped")
	return nil
}

// wait returns a non-nil error only if the unit failed.
func (s *Service) wait(ctx context.Context, fatalErr <-chan error) error {
	select {
	case err := <-fatalErr:
		return err
	case sig := <-s.signals:
		s.logger.Info("service got signal", log.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("context is canceled, service will be stopped")
	}
	return nil
}
