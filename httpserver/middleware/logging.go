/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/task-gateway/log"
)

// LoggingOpts represents options for Logging middleware.
type LoggingOpts struct {
	// RequestStart enables the "request started" entry.
	RequestStart bool
	// ExcludedEndpoints are logged only when the response status is 4xx or 5xx.
	ExcludedEndpoints []string
}

// Logging is a middleware that logs every request with its status, duration and size of the response.
// It puts a logger carrying the request_id field into the request context,
// and LoggingParams that handlers below may fill with fields of the final entry.
func Logging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return LoggingWithOpts(logger, LoggingOpts{})
}

// LoggingWithOpts is a more configurable version of Logging.
func LoggingWithOpts(logger log.FieldLogger, opts LoggingOpts) func(next http.Handler) http.Handler {
	excluded := make(map[string]struct{}, len(opts.ExcludedEndpoints))
	for _, e := range opts.ExcludedEndpoints {
		excluded[e] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			startTime := GetRequestStartTimeFromContext(ctx)
			if startTime.IsZero() {
				startTime = time.Now()
				ctx = NewContextWithRequestStartTime(ctx, startTime)
			}

			reqLogger := logger.With(log.String("request_id", GetRequestIDFromContext(ctx)))
			accessLogger := reqLogger.With(
				log.String("method", r.Method),
				log.String("path", r.URL.Path),
				log.String("remote_addr", r.RemoteAddr),
				log.Int64("content_length", r.ContentLength),
				log.String("user_agent", r.UserAgent()),
			)
			_, isExcluded := excluded[r.URL.Path]
			if opts.RequestStart && !isExcluded {
				accessLogger.Info("request started")
			}

			lp := &LoggingParams{}
			ctx = NewContextWithLoggingParams(NewContextWithLogger(ctx, reqLogger), lp)
			wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
			next.ServeHTTP(wrw, r.WithContext(ctx))

			status := statusOf(wrw)
			if isExcluded && status < http.StatusBadRequest {
				return
			}
			elapsed := time.Since(startTime)
			fields := append([]log.Field{
				log.Int("status", status),
				log.Int64("duration_ms", elapsed.Milliseconds()),
				log.Int("bytes_sent", wrw.BytesWritten()),
			}, lp.fieldsToLog()...)
			accessLogger.Info(fmt.Sprintf("response completed in %.3fs", elapsed.Seconds()), fields...)
		})
	}
}
