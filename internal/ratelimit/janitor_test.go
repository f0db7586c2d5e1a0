/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/task-gateway/log/logtest"
)

func TestJanitor_Run(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter, err := NewSlidingLogLimiter(Rate{Count: 5, Duration: time.Minute})
	require.NoError(t, err)
	for _, key := range []string{"a", "b", "c"} {
		_, _, _ = limiter.Allow(context.Background(), key, start)
	}
	_, _, _ = limiter.Allow(context.Background(), "d", start.Add(45*time.Second))

	metrics := NewPrometheusMetrics("")
	logRecorder := logtest.NewRecorder()
	janitor := NewJanitor(limiter, metrics, logRecorder)
	janitor.now = func() time.Time { return start.Add(90 * time.Second) }

	require.NoError(t, janitor.Run(context.Background()))
	require.Equal(t, 1, limiter.Len())
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.TrackedClients))
	_, found := logRecorder.FindEntry("idle rate windows dropped")
	require.True(t, found)

	logRecorder.Reset()
	require.NoError(t, janitor.Run(context.Background()))
	require.Empty(t, logRecorder.Entries())
}

func TestJanitorUnit(t *testing.T) {
	limiter, err := NewSlidingLogLimiter(Rate{Count: 1, Duration: time.Millisecond})
	require.NoError(t, err)
	_, _, _ = limiter.Allow(context.Background(), "client", time.Now().Add(-time.Second))

	unit := NewJanitorUnit(NewJanitor(limiter, nil, logtest.NewRecorder()), 10*time.Millisecond)
	fatalErr := make(chan error, 1)
	go unit.Start(fatalErr)

	require.Eventually(t, func() bool { return limiter.Len() == 0 }, time.Second, 10*time.Millisecond)
	require.NoError(t, unit.Stop(true))
	select {
	case err = <-fatalErr:
		require.NoError(t, err)
	default:
	}
}
