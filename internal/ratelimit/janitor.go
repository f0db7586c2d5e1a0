/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"time"

	"github.com/acronis/task-gateway/log"
	"github.com/acronis/task-gateway/service"
)

// Janitor periodically drops idle windows of SlidingLogLimiter, so memory is bounded by active clients.
type Janitor struct {
	limiter *SlidingLogLimiter
	metrics *PrometheusMetrics
	logger  log.FieldLogger
	now     func() time.Time
}

var _ service.Worker = (*Janitor)(nil)

// NewJanitor creates a new Janitor. metrics may be nil.
func NewJanitor(limiter *SlidingLogLimiter, metrics *PrometheusMetrics, logger log.FieldLogger) *Janitor {
	return &Janitor{limiter: limiter, metrics: metrics, logger: logger, now: time.Now}
}

// Run drops idle windows once.
func (j *Janitor) Run(_ context.Context) error {
	dropped := j.limiter.DropIdle(j.now())
	tracked := j.limiter.Len()
	if j.metrics != nil {
		j.metrics.SetTrackedClients(tracked)
	}
	if dropped > 0 {
		j.logger.Debug("idle rate windows dropped", log.Int("dropped", dropped), log.Int("tracked", tracked))
	}
	return nil
}

// NewJanitorUnit wraps Janitor into a periodic service unit.
func NewJanitorUnit(janitor *Janitor, interval time.Duration) *service.WorkerUnit {
	worker := service.NewPeriodicWorker(janitor, interval, janitor.logger.With(log.String("worker", "rate-limit-janitor")))
	return service.NewWorkerUnit(worker)
}
