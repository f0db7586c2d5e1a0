/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/task-gateway/log"
	"github.com/acronis/task-gateway/log/logtest"
)

var errConnRefused = errors.New("connection refused")

func TestDoWithRetry(t *testing.T) {
	t.Run("succeeds after transient errors", func(t *testing.T) {
		calls := 0
		err := DoWithRetry(context.Background(), NewConstantBackoffPolicy(time.Millisecond, 5), nil, nil,
			func(ctx context.Context) error {
				calls++
				if calls < 3 {
					return errConnRefused
				}
				return nil
			})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := DoWithRetry(context.Background(), NewConstantBackoffPolicy(time.Millisecond, 2), nil, nil,
			func(ctx context.Context) error {
				calls++
				return errConnRefused
			})
		require.ErrorIs(t, err, errConnRefused)
		require.Equal(t, 3, calls)
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		calls := 0
		errAuth := errors.New("WRONGPASS invalid password")
		isRetryable := func(err error) bool { return !errors.Is(err, errAuth) }
		err := DoWithRetry(context.Background(), NewConstantBackoffPolicy(time.Millisecond, 5), isRetryable, nil,
			func(ctx context.Context) error {
				calls++
				return errAuth
			})
		require.ErrorIs(t, err, errAuth)
		require.Equal(t, 1, calls)
	})

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := DoWithRetry(ctx, NewConstantBackoffPolicy(time.Millisecond, 0), nil, nil,
			func(ctx context.Context) error {
				calls++
				if calls == 2 {
					cancel()
				}
				return errConnRefused
			})
		require.Error(t, err)
		require.Equal(t, 2, calls)
	})
}

func TestDoWithRetryAndLog(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	calls := 0
	err := DoWithRetryAndLog(context.Background(), NewExponentialBackoffPolicy(time.Millisecond, 5*time.Millisecond, 3),
		logRecorder, "redis ping", func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errConnRefused
			}
			return nil
		})
	require.NoError(t, err)

	entries := logRecorder.Entries()
	require.Len(t, entries, 2)
	for _, entry := range entries {
		require.Equal(t, log.LevelWarn, entry.Level)
		require.Equal(t, "redis ping failed, retrying", entry.Text)
	}
}

func TestExponentialBackoffPolicy(t *testing.T) {
	b := NewExponentialBackoffPolicy(10*time.Millisecond, 15*time.Millisecond, 0).NewBackOff()
	for i := 0; i < 10; i++ {
		delay := b.NextBackOff()
		require.Greater(t, delay, time.Duration(0))
		require.LessOrEqual(t, delay, 15*time.Millisecond+15*time.Millisecond/2)
	}
}
