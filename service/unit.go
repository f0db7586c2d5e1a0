/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs the gateway process: units (HTTP server, background workers) are started together
// and stopped gracefully on SIGINT/SIGTERM or when any of them fails.
package service

// Unit is a component of the gateway process with its own lifecycle.
type Unit interface {
	// Start runs the unit. It may block for the unit's lifetime or return right after initialization.
	// A fatal error is written to fatalErr, the channel must not be used after Start returns.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called even if Start has failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units owning Prometheus metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
