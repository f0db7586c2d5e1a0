/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package netutil contains network helpers of the upstream transport.
package netutil

import (
	"context"
	"net"
	"sync/atomic"
	"time"
)

// NewCustomDNSResolver creates a resolver querying the given DNS servers ("host:port") in round-robin.
// The upstream transport uses it when backend hosts are resolved by a dedicated (e.g. service discovery) DNS.
func NewCustomDNSResolver(addrs []string, timeout time.Duration) net.Resolver {
	servers := append([]string(nil), addrs...)
	var next atomic.Uint32
	dialer := net.Dialer{Timeout: timeout}
	return net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, _, _ string) (net.Conn, error) {
			n := next.Add(1)
			return dialer.DialContext(ctx, "udp", servers[n%uint32(len(servers))]) //nolint:gosec // a few servers only
		},
	}
}
