/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest provides a log.FieldLogger that records entries so tests can assert on
// what the gateway logged (request ids, statuses, upstream failures).
package logtest
