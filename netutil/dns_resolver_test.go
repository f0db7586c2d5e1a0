/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package netutil

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewCustomDNSResolver_RoundRobin(t *testing.T) {
	var dialed []string
	servers := make([]net.PacketConn, 2)
	addrs := make([]string, 2)
	for i := range servers {
		conn, err := net.ListenPacket("udp", "127.0.0.1:0")
		require.NoError(t, err)
		defer func() { require.NoError(t, conn.Close()) }()
		servers[i] = conn
		addrs[i] = conn.LocalAddr().String()
	}

	resolver := NewCustomDNSResolver(addrs, 100*time.Millisecond)
	for i := 0; i < 4; i++ {
		conn, err := resolver.Dial(context.Background(), "udp", "ignored:53")
		require.NoError(t, err)
		dialed = append(dialed, conn.RemoteAddr().String())
		require.NoError(t, conn.Close())
	}
	require.Equal(t, []string{addrs[1], addrs[0], addrs[1], addrs[0]}, dialed)
}
