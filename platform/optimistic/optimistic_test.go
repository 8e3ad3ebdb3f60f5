package optimistic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testPolicy = Policy{Attempts: 3, BaseDelay: time.Millisecond}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testPolicy, func(ctx context.Context) (bool, error) {
		calls++
		return false, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	conflict := errors.New("precondition failed")
	calls := 0
	err := Do(context.Background(), testPolicy, func(ctx context.Context) (bool, error) {
		calls++
		if calls < 3 {
			return true, conflict
		}
		return false, nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoAbortsOnNonRetryableError(t *testing.T) {
	boom := errors.New("backend down")
	calls := 0
	err := Do(context.Background(), testPolicy, func(ctx context.Context) (bool, error) {
		calls++
		return false, boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	conflict := errors.New("precondition failed")
	calls := 0
	err := Do(context.Background(), testPolicy, func(ctx context.Context) (bool, error) {
		calls++
		return true, conflict
	})
	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, conflict)
	require.Equal(t, testPolicy.Attempts, calls)
	require.Contains(t, err.Error(), "after 3 attempts")
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	conflict := errors.New("precondition failed")
	calls := 0
	err := Do(ctx, Policy{Attempts: 10, BaseDelay: 50 * time.Millisecond}, func(ctx context.Context) (bool, error) {
		calls++
		cancel()
		return true, conflict
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestDoZeroPolicyUsesDefaults(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{}, func(ctx context.Context) (bool, error) {
		calls++
		return false, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}
