/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/task-gateway/httpserver/middleware"
	"github.com/acronis/task-gateway/internal/auth"
)

func TestClientKey(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		trustXFF   bool
		want       string
	}{
		{name: "remote addr without port", remoteAddr: "203.0.113.7:51234", want: "203.0.113.7"},
		{name: "ipv6", remoteAddr: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "xff is ignored by default", remoteAddr: "10.0.0.1:1000", xff: "198.51.100.2", want: "10.0.0.1"},
		{name: "first xff entry", remoteAddr: "10.0.0.1:1000", xff: " 198.51.100.2 , 10.0.0.5", trustXFF: true, want: "198.51.100.2"},
		{name: "empty xff entry", remoteAddr: "10.0.0.1:1000", xff: " , 10.0.0.5", trustXFF: true, want: "10.0.0.1"},
		{name: "remote addr without port is kept", remoteAddr: "unix-socket", want: "unix-socket"},
		{name: "no address", remoteAddr: "", want: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			require.Equal(t, tt.want, ClientKey(req, tt.trustXFF))
		})
	}
}

func TestNewRequestContext(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	req = req.WithContext(middleware.NewContextWithRequestID(req.Context(), "req-42"))

	reqCtx := NewRequestContext(req, now, RequestContextOpts{})
	require.Equal(t, RequestContext{RequestID: "req-42", ClientKey: "203.0.113.7", ArrivedAt: now}, reqCtx)
}

func TestClaimsContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	require.Nil(t, GetClaimsFromContext(req.Context()))

	claims := &auth.Claims{Subject: "u1"}
	ctx := NewContextWithClaims(req.Context(), claims)
	require.Same(t, claims, GetClaimsFromContext(ctx))
}
