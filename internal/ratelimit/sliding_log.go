/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const defaultShardsNum = 32

// SlidingLogLimiter is an in-memory sliding-window log limiter.
// Windows are spread over shards, each guarded by its own mutex, so checks for different clients rarely contend.
type SlidingLogLimiter struct {
	rate   Rate
	shards []*windowShard
}

type windowShard struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
}

// rateWindow holds timestamps of admitted requests in ascending order.
type rateWindow struct {
	stamps []time.Time
}

var _ Limiter = (*SlidingLogLimiter)(nil)

// SlidingLogLimiterOpts represents options for SlidingLogLimiter.
type SlidingLogLimiterOpts struct {
	// ShardsNum is a number of independently locked shards. 32 is used by default.
	ShardsNum int
}

// NewSlidingLogLimiter creates a new in-memory sliding-window log limiter.
func NewSlidingLogLimiter(rate Rate) (*SlidingLogLimiter, error) {
	return NewSlidingLogLimiterWithOpts(rate, SlidingLogLimiterOpts{})
}

// NewSlidingLogLimiterWithOpts creates a new in-memory sliding-window log limiter with options.
func NewSlidingLogLimiterWithOpts(rate Rate, opts SlidingLogLimiterOpts) (*SlidingLogLimiter, error) {
	if rate.Count <= 0 {
		return nil, fmt.Errorf("rate count should be positive, got %d", rate.Count)
	}
	if rate.Duration <= 0 {
		return nil, fmt.Errorf("rate duration should be positive, got %s", rate.Duration)
	}
	shardsNum := opts.ShardsNum
	if shardsNum <= 0 {
		shardsNum = defaultShardsNum
	}
	shards := make([]*windowShard, shardsNum)
	for i := range shards {
		shards[i] = &windowShard{windows: make(map[string]*rateWindow)}
	}
	return &SlidingLogLimiter{rate: rate, shards: shards}, nil
}

func (l *SlidingLogLimiter) shardFor(key string) *windowShard {
	return l.shards[xxhash.Sum64String(key)%uint64(len(l.shards))]
}

// Allow drops timestamps strictly older than now-window, rejects the request if the quota is already used,
// otherwise records now and admits it. A rejected request is not recorded.
func (l *SlidingLogLimiter) Allow(_ context.Context, key string, now time.Time) (allow bool, retryAfter time.Duration, err error) {
	shard := l.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	w, ok := shard.windows[key]
	if !ok {
		w = &rateWindow{stamps: make([]time.Time, 0, 1)}
		shard.windows[key] = w
	}
	w.prune(now.Add(-l.rate.Duration))

	if len(w.stamps) >= l.rate.Count {
		return false, w.stamps[0].Add(l.rate.Duration).Sub(now), nil
	}
	w.insert(now)
	return true, 0, nil
}

// DropIdle removes windows that have no timestamps within the trailing window at the moment now.
// Such windows would be emptied by the next check anyway, so dropping them doesn't change admission decisions.
func (l *SlidingLogLimiter) DropIdle(now time.Time) (dropped int) {
	cutoff := now.Add(-l.rate.Duration)
	for _, shard := range l.shards {
		shard.mu.Lock()
		for key, w := range shard.windows {
			if len(w.stamps) == 0 || w.stamps[len(w.stamps)-1].Before(cutoff) {
				delete(shard.windows, key)
				dropped++
			}
		}
		shard.mu.Unlock()
	}
	return dropped
}

// Len returns the number of tracked clients.
func (l *SlidingLogLimiter) Len() int {
	n := 0
	for _, shard := range l.shards {
		shard.mu.Lock()
		n += len(shard.windows)
		shard.mu.Unlock()
	}
	return n
}

func (w *rateWindow) prune(cutoff time.Time) {
	i := sort.Search(len(w.stamps), func(i int) bool { return !w.stamps[i].Before(cutoff) })
	if i == 0 {
		return
	}
	n := copy(w.stamps, w.stamps[i:])
	w.stamps = w.stamps[:n]
}

// insert keeps stamps sorted: concurrent callers may pass slightly out-of-order now values.
func (w *rateWindow) insert(t time.Time) {
	i := sort.Search(len(w.stamps), func(i int) bool { return w.stamps[i].After(t) })
	w.stamps = append(w.stamps, time.Time{})
	copy(w.stamps[i+1:], w.stamps[i:])
	w.stamps[i] = t
}
