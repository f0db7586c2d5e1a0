/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWorkerUnitStopTimeoutExceeded is returned when the worker doesn't finish within the graceful stop timeout.
var ErrWorkerUnitStopTimeoutExceeded = errors.New("worker unit stop timeout exceeded")

// WorkerUnit presents Worker as Unit. The worker's context is canceled on Stop.
type WorkerUnit struct {
	worker Worker
	opts   WorkerUnitOpts

	ctx       context.Context
	ctxCancel context.CancelFunc
	startOnce sync.Once
	done      chan struct{}
}

var _ Unit = (*WorkerUnit)(nil)
var _ MetricsRegisterer = (*WorkerUnit)(nil)

// WorkerUnitOpts contains optional parameters for constructing WorkerUnit.
type WorkerUnitOpts struct {
	MetricsRegisterer   MetricsRegisterer
	GracefulStopTimeout time.Duration
}

// NewWorkerUnit creates a new instance of WorkerUnit.
func NewWorkerUnit(worker Worker) *WorkerUnit {
	return NewWorkerUnitWithOpts(worker, WorkerUnitOpts{})
}

// NewWorkerUnitWithOpts creates a new instance of WorkerUnit with options.
func NewWorkerUnitWithOpts(worker Worker, opts WorkerUnitOpts) *WorkerUnit {
	ctx, ctxCancel := context.WithCancel(context.Background())
	return &WorkerUnit{worker: worker, opts: opts, ctx: ctx, ctxCancel: ctxCancel, done: make(chan struct{})}
}

// Start runs the underlying Worker and blocks until it finishes.
func (u *WorkerUnit) Start(fatalError chan<- error) {
	started := false
	u.startOnce.Do(func() { started = true })
	if !started {
		return
	}
	defer close(u.done)
	if err := u.worker.Run(u.ctx); err != nil {
		fatalError <- err
	}
}

// Stop cancels the worker's context. In graceful mode, it waits for the worker to finish if it was started.
func (u *WorkerUnit) Stop(gracefully bool) error {
	u.ctxCancel()
	notStarted := false
	u.startOnce.Do(func() { notStarted = true })
	if notStarted {
		close(u.done)
		return nil
	}
	if !gracefully {
		return nil
	}
	if u.opts.GracefulStopTimeout == 0 {
		<-u.done
		return nil
	}
	select {
	case <-u.done:
		return nil
	case <-time.After(u.opts.GracefulStopTimeout):
		return ErrWorkerUnitStopTimeoutExceeded
	}
}

// MustRegisterMetrics registers underlying Worker's metrics.
func (u *WorkerUnit) MustRegisterMetrics() {
	if u.opts.MetricsRegisterer != nil {
		u.opts.MetricsRegisterer.MustRegisterMetrics()
	}
}

// UnregisterMetrics unregisters underlying Worker's metrics.
func (u *WorkerUnit) UnregisterMetrics() {
	if u.opts.MetricsRegisterer != nil {
		u.opts.MetricsRegisterer.UnregisterMetrics()
	}
}
