/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a request of the client identified by key is admitted at the moment now.
// When the request is rejected, retryAfter is the time until the oldest counted request leaves the window.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (allow bool, retryAfter time.Duration, err error)
}

// Rate describes the quota: at most Count requests within any trailing window of Duration length.
type Rate struct {
	Count    int
	Duration time.Duration
}
