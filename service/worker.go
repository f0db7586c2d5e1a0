/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/acronis/task-gateway/log"
)

// ErrPeriodicWorkerStop ends the PeriodicWorker loop when returned by the wrapped worker.
var ErrPeriodicWorkerStop = errors.New("stop periodic worker")

// Worker does a piece of work until it is done or ctx is canceled.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc lets a plain function be used as Worker.
type WorkerFunc func(ctx context.Context) error

func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorker calls the wrapped worker again and again, pausing between the end of one run
// and the start of the next. The rate-limit janitor is driven by it.
type PeriodicWorker struct {
	worker   Worker
	logger   log.FieldLogger
	first    time.Duration
	interval time.Duration
}

// PeriodicWorkerOpts holds optional PeriodicWorker settings.
type PeriodicWorkerOpts struct {
	// InitialDelay is the pause before the first run. Zero means the regular interval.
	InitialDelay time.Duration
}

func NewPeriodicWorker(worker Worker, interval time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return NewPeriodicWorkerWithOpts(worker, interval, logger, PeriodicWorkerOpts{})
}

func NewPeriodicWorkerWithOpts(
	worker Worker, interval time.Duration, logger log.FieldLogger, opts PeriodicWorkerOpts,
) *PeriodicWorker {
	pw := &PeriodicWorker{worker: worker, logger: logger, first: opts.InitialDelay, interval: interval}
	if pw.first == 0 {
		pw.first = interval
	}
	return pw
}

// Run loops until ctx is canceled or the worker asks to stop.
// Errors of a single run are logged and do not break the loop.
func (pw *PeriodicWorker) Run(ctx context.Context) error {
	pw.logger.Info("periodic worker started",
		log.Duration("initial_delay", pw.first), log.Duration("interval", pw.interval))
	defer pw.logger.Info("periodic worker stopped")

	for delay := pw.first; ; delay = pw.interval {
		if !pause(ctx, delay) {
			return nil
		}
		err := pw.runOnce(ctx)
		if errors.Is(err, ErrPeriodicWorkerStop) {
			return nil
		}
		if err != nil {
			pw.logger.Error("periodically running worker finished with error", log.Error(err))
		}
	}
}

func (pw *PeriodicWorker) runOnce(ctx context.Context) error {
	defer func() {
		if p := recover(); p != nil {
			pw.logger.Error(fmt.Sprintf("periodic worker panicked: %v", p), log.String("stack", string(debug.Stack())))
			panic(p)
		}
	}()
	return pw.worker.Run(ctx)
}

// pause waits for d and reports false if ctx is done first.
func pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
