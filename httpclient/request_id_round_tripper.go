/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"

	"github.com/acronis/task-gateway/httpserver/middleware"
)

// RequestIDRoundTripperOpts holds optional settings of the request id round tripper.
type RequestIDRoundTripperOpts struct {
	// RequestIDProvider is middleware.GetRequestIDFromContext when nil.
	RequestIDProvider func(ctx context.Context) string
}

func NewRequestIDRoundTripper(delegate http.RoundTripper) http.RoundTripper {
	return NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{})
}

// NewRequestIDRoundTripperWithOpts sets X-Request-ID on outgoing requests that have none,
// taking the id of the inbound request from the context.
func NewRequestIDRoundTripperWithOpts(delegate http.RoundTripper, opts RequestIDRoundTripperOpts) http.RoundTripper {
	requestIDOf := opts.RequestIDProvider
	if requestIDOf == nil {
		requestIDOf = middleware.GetRequestIDFromContext
	}
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if r.Header.Get(middleware.HeaderRequestID) == "" {
			if id := requestIDOf(r.Context()); id != "" {
				r = CloneHTTPRequest(r)
				r.Header.Set(middleware.HeaderRequestID, id)
			}
		}
		return delegate.RoundTrip(r)
	})
}
