/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/acronis/task-gateway/log"
	"github.com/acronis/task-gateway/restapi"
)

// RecoveryDefaultStackSize is how many bytes of the goroutine stack are logged by default.
const RecoveryDefaultStackSize = 8192

// RecoveryOpts represents options for Recovery middleware.
type RecoveryOpts struct {
	// StackSize limits the logged stack. Zero disables stack logging.
	StackSize int
}

// Recovery is a middleware that turns a panic into the 500 INTERNAL_ERROR envelope.
// The panic value and the stack go to the request-scoped logger, never to the client.
func Recovery() func(next http.Handler) http.Handler {
	return RecoveryWithOpts(RecoveryOpts{StackSize: RecoveryDefaultStackSize})
}

// RecoveryWithOpts is a more configurable version of Recovery.
func RecoveryWithOpts(opts RecoveryOpts) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				logger := GetLoggerFromContext(r.Context())
				if p == http.ErrAbortHandler { //nolint:errorlint
					// net/http closes the connection silently for this sentinel.
					if logger != nil {
						logger.Warn("request has been aborted", log.Error(http.ErrAbortHandler))
					}
					panic(p)
				}
				if logger != nil {
					logger.Error(fmt.Sprintf("Panic: %+v", p), panicStack(opts.StackSize)...)
				}
				restapi.RespondInternalError(rw, logger)
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

func panicStack(size int) []log.Field {
	if size <= 0 {
		return nil
	}
	stack := make([]byte, size)
	return []log.Field{log.String("stack", string(stack[:runtime.Stack(stack, false)]))}
}
