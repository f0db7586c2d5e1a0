/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"time"

	"github.com/acronis/task-gateway/log"
)

// ctxKey identifies one request-scoped value of type T.
type ctxKey[T any] struct {
	name string
}

func (k ctxKey[T]) with(ctx context.Context, val T) context.Context {
	return context.WithValue(ctx, k, val)
}

// from returns the zero value of T when the context has no value under k.
func (k ctxKey[T]) from(ctx context.Context) T {
	val, _ := ctx.Value(k).(T)
	return val
}

var (
	ctxKeyRequestID        = ctxKey[string]{"request_id"}
	ctxKeyLogger           = ctxKey[log.FieldLogger]{"logger"}
	ctxKeyLoggingParams    = ctxKey[*LoggingParams]{"logging_params"}
	ctxKeyRequestStartTime = ctxKey[time.Time]{"request_start_time"}
)

// NewContextWithRequestID stores the correlation id (X-Request-ID) of the request.
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return ctxKeyRequestID.with(ctx, requestID)
}

// GetRequestIDFromContext returns the correlation id or "" if the RequestID middleware has not run.
func GetRequestIDFromContext(ctx context.Context) string {
	return ctxKeyRequestID.from(ctx)
}

// NewContextWithLogger stores the request-scoped logger.
func NewContextWithLogger(ctx context.Context, logger log.FieldLogger) context.Context {
	return ctxKeyLogger.with(ctx, logger)
}

// GetLoggerFromContext returns the request-scoped logger or nil.
func GetLoggerFromContext(ctx context.Context) log.FieldLogger {
	return ctxKeyLogger.from(ctx)
}

func NewContextWithLoggingParams(ctx context.Context, loggingParams *LoggingParams) context.Context {
	return ctxKeyLoggingParams.with(ctx, loggingParams)
}

func GetLoggingParamsFromContext(ctx context.Context) *LoggingParams {
	return ctxKeyLoggingParams.from(ctx)
}

// NewContextWithRequestStartTime stores the arrival time of the request.
func NewContextWithRequestStartTime(ctx context.Context, startTime time.Time) context.Context {
	return ctxKeyRequestStartTime.with(ctx, startTime)
}

// GetRequestStartTimeFromContext returns the arrival time or the zero time.
func GetRequestStartTimeFromContext(ctx context.Context) time.Time {
	return ctxKeyRequestStartTime.from(ctx)
}
