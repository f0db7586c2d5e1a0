/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/acronis/task-gateway/restapi"
)

type requestBodyLimitHandler struct {
	next         http.Handler
	maxSizeBytes int64
}

// RequestBodyLimit is a middleware that sets the maximum allowed size for a request body.
// A request with a larger Content-Length is rejected with 413 at once.
// Otherwise, the body is wrapped with http.MaxBytesReader and reading past the limit fails with *http.MaxBytesError,
// which the consumer of the body is expected to translate into 413.
func RequestBodyLimit(maxSizeBytes uint64) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &requestBodyLimitHandler{next: next, maxSizeBytes: int64(maxSizeBytes)} //nolint:gosec // configured value
	}
}

func (h *requestBodyLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxSizeBytes {
		restapi.RespondError(rw, http.StatusRequestEntityTooLarge,
			restapi.NewError(restapi.ErrCodeRequestTooLarge, restapi.ErrMessageRequestTooLarge),
			GetLoggerFromContext(r.Context()))
		return
	}
	if r.Body != nil && r.Body != http.NoBody {
		r.Body = http.MaxBytesReader(rw, r.Body, h.maxSizeBytes)
	}
	h.next.ServeHTTP(rw, r)
}
