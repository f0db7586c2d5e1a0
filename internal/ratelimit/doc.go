/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit implements per-client admission over a trailing time window (sliding-window log).
//
// SlidingLogLimiter keeps exact timestamps of admitted requests in memory, so the quota is enforced
// per gateway instance. RedisLimiter keeps the same log in a Redis sorted set and may be used
// when several instances must share one quota.
package ratelimit
