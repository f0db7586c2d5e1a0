/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/acronis/task-gateway/httpserver/middleware"
	"github.com/acronis/task-gateway/internal/auth"
)

const headerForwardedFor = "X-Forwarded-For"

// unknownClient is the identity of requests without a usable source address.
// All such requests share one rate window.
const unknownClient = "unknown"

// RequestContext is created when a request enters the pipeline and stays immutable until the response is sent.
type RequestContext struct {
	RequestID string
	// ClientKey identifies the client for rate limiting.
	ClientKey string
	ArrivedAt time.Time
}

// RequestContextOpts represents options for NewRequestContext.
type RequestContextOpts struct {
	// TrustForwardedFor makes the first X-Forwarded-For address the client identity.
	TrustForwardedFor bool
}

// NewRequestContext builds RequestContext for the inbound request.
// The correlation id is taken from the request context where the RequestID middleware has put it.
func NewRequestContext(r *http.Request, now time.Time, opts RequestContextOpts) RequestContext {
	return RequestContext{
		RequestID: middleware.GetRequestIDFromContext(r.Context()),
		ClientKey: ClientKey(r, opts.TrustForwardedFor),
		ArrivedAt: now,
	}
}

// ClientKey returns the source address of the request without port.
func ClientKey(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if xff := r.Header.Get(headerForwardedFor); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	remoteAddr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
		return host
	}
	if remoteAddr != "" {
		return remoteAddr
	}
	return unknownClient
}

type ctxKey int

const ctxKeyClaims ctxKey = iota

// NewContextWithClaims creates a new context with validated token claims.
func NewContextWithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, claims)
}

// GetClaimsFromContext extracts validated token claims from the context.
// It returns nil for requests to routes without authentication.
func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(ctxKeyClaims).(*auth.Claims)
	return claims
}
