/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"fmt"
	"net"
	"time"

	"github.com/stretchr/testify/require"
)

const dialPollInterval = 10 * time.Millisecond

// ReserveLocalAddr picks a TCP port on the loopback interface that nobody listens on
// and returns it as a host:port address.
// The port is released before return, so a concurrent process may take it.
func ReserveLocalAddr(t require.TestingT) string {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}

// WaitListeningServer polls addr until it accepts a TCP connection or the timeout elapses.
func WaitListeningServer(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err == nil {
			return conn.Close()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server at %s is not listening after %s: %w", addr, timeout, err)
		}
		time.Sleep(dialPollInterval)
	}
}

// RequireUnitNotFailed asserts that a unit has not reported a fatal error into its channel.
// The channel is expected to be buffered. The check does not block.
func RequireUnitNotFailed(t require.TestingT, fatalErr <-chan error, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	select {
	case err := <-fatalErr:
		require.NoError(t, err, msgAndArgs...)
	default:
	}
}
