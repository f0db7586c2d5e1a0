/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/rs/xid"
)

// HeaderRequestID is the name of the header carrying the correlation id.
const HeaderRequestID = "X-Request-ID"

// RequestIDOpts represents options for RequestID middleware.
type RequestIDOpts struct {
	// GenerateID makes an id for requests that come without X-Request-ID. xid is used by default.
	GenerateID func() string
}

// RequestID is a middleware that gives every request a correlation id.
// An incoming X-Request-ID is kept as is, even if it is not an xid.
// The id is stored in the context and set as the response header before the next handler runs,
// so every exit path, including rejections and recovered panics, carries it.
func RequestID() func(next http.Handler) http.Handler {
	return RequestIDWithOpts(RequestIDOpts{})
}

// RequestIDWithOpts is a more configurable version of RequestID.
func RequestIDWithOpts(opts RequestIDOpts) func(next http.Handler) http.Handler {
	generateID := opts.GenerateID
	if generateID == nil {
		generateID = func() string { return xid.New().String() }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(HeaderRequestID)
			if requestID == "" {
				requestID = generateID()
				r.Header.Set(HeaderRequestID, requestID)
			}
			rw.Header().Set(HeaderRequestID, requestID)
			next.ServeHTTP(rw, r.WithContext(NewContextWithRequestID(r.Context(), requestID)))
		})
	}
}
