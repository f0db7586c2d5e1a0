/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// WrapResponseWriter is a proxy around an http.ResponseWriter that remembers the status code
// and the number of bytes written.
type WrapResponseWriter = chimw.WrapResponseWriter

// RoutePatternGetterFunc is a function for getting route pattern from the request. Used in multiple middlewares.
type RoutePatternGetterFunc func(r *http.Request) string

// WrapResponseWriterIfNeeded wraps an http.ResponseWriter (if it is not already wrapped), returning a proxy that allows you to
// hook into various parts of the response process.
func WrapResponseWriterIfNeeded(rw http.ResponseWriter, protoMajor int) WrapResponseWriter {
	if wrw, ok := rw.(WrapResponseWriter); ok {
		return wrw
	}
	return chimw.NewWrapResponseWriter(rw, protoMajor)
}

// statusOf returns the status code written through wrw, treating "nothing written yet" as 200.
func statusOf(wrw WrapResponseWriter) int {
	if status := wrw.Status(); status != 0 {
		return status
	}
	return http.StatusOK
}
