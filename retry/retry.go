/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package retry runs start-up operations of the gateway (e.g. connecting to the rate limiter store)
// with a backoff. Proxied requests are never retried.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acronis/task-gateway/log"
)

// IsRetryable tells if an error is transient as opposed to persistent.
type IsRetryable func(error) bool

// RetryableFunc does some work and can be potentially retried.
type RetryableFunc func(ctx context.Context) error

// Policy defines backoff strategy.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// DoWithRetry executes fn with retry according to policy p and with respect to context ctx.
// isRetryable defines which errors lead to retry attempt (nil means any error).
// notify receives every failed attempt with the delay before the next one (may be nil).
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify backoff.Notify, fn RetryableFunc) error {
	bctx := backoff.WithContext(p.NewBackOff(), ctx)
	op := func() error {
		err := fn(bctx.Context())
		if err != nil && isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.RetryNotify(op, bctx, notify)
}

// DoWithRetryAndLog is DoWithRetry that logs every failed attempt of the named operation as a warning.
func DoWithRetryAndLog(ctx context.Context, p Policy, logger log.FieldLogger, opName string, fn RetryableFunc) error {
	attempt := 0
	notify := func(err error, delay time.Duration) {
		attempt++
		logger.Warn(opName+" failed, retrying",
			log.Int("attempt", attempt), log.Duration("delay", delay), log.Error(err))
	}
	return DoWithRetry(ctx, p, nil, notify, fn)
}

// ExponentialBackoffPolicy repeats up to maxAttempts times with exponentially growing delays (1.5 multiplier)
// capped by maxInterval.
type ExponentialBackoffPolicy struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	maxAttempts     int
}

// NewExponentialBackoffPolicy returns an exponential backoff policy.
// Zero maxInterval keeps the library default, zero maxRetryAttempts means no attempts limit.
func NewExponentialBackoffPolicy(initialInterval, maxInterval time.Duration, maxRetryAttempts int) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{initialInterval: initialInterval, maxInterval: maxInterval, maxAttempts: maxRetryAttempts}
}

// NewBackOff implements retry.Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initialInterval
	if p.maxInterval > 0 {
		eb.MaxInterval = p.maxInterval
	}
	return withMaxRetries(eb, p.maxAttempts)
}

// ConstantBackoffPolicy repeats up to maxAttempts times with a constant delay.
type ConstantBackoffPolicy struct {
	interval    time.Duration
	maxAttempts int
}

// NewConstantBackoffPolicy returns a constant backoff policy.
func NewConstantBackoffPolicy(interval time.Duration, maxRetryAttempts int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{interval: interval, maxAttempts: maxRetryAttempts}
}

// NewBackOff implements retry.Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	return withMaxRetries(backoff.NewConstantBackOff(p.interval), p.maxAttempts)
}

func withMaxRetries(b backoff.BackOff, maxAttempts int) backoff.BackOff {
	if maxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(maxAttempts))
	}
	b.Reset()
	return b
}
