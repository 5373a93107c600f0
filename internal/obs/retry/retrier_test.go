package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExpoJitterWithoutJitterDoubles(t *testing.T) {
	b := ExpoJitter{Base: time.Second}
	require.Equal(t, time.Second, b.Next(0))
	require.Equal(t, 2*time.Second, b.Next(1))
	require.Equal(t, 4*time.Second, b.Next(2))
	require.Equal(t, time.Second, b.Next(-3))
}

func TestExpoJitterCapsAtMax(t *testing.T) {
	b := ExpoJitter{Base: time.Second, Max: 5 * time.Second}
	require.Equal(t, 5*time.Second, b.Next(10))
}

func TestExpoJitterStaysInBand(t *testing.T) {
	b := ExpoJitter{Base: time.Second, Jitter: 0.2}
	for i := 0; i < 50; i++ {
		d := b.Next(1)
		require.GreaterOrEqual(t, d, 1600*time.Millisecond)
		require.LessOrEqual(t, d, 2400*time.Millisecond)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return permanent
	}, Policy{
		Name:      "test_non_retryable",
		Attempts:  5,
		Backoff:   ExpoJitter{Base: time.Millisecond},
		Retryable: func(err error) bool { return !errors.Is(err, permanent) },
	})
	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, calls)
}

func TestDoRecordsBackoffBetweenAttempts(t *testing.T) {
	var waits []time.Duration
	calls := 0
	exhausted := false
	err := Do(context.Background(), func() error {
		calls++
		return errors.New("boom")
	}, Policy{
		Name:      "test_backoff",
		Attempts:  4,
		Backoff:   ExpoJitter{Base: 10 * time.Millisecond},
		OnExhaust: func(error) { exhausted = true },
		Sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	})
	require.Error(t, err)
	require.Equal(t, 4, calls)
	require.True(t, exhausted)
	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}, waits)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, func() error { return errors.New("boom") }, Policy{
		Name:     "test_cancel",
		Attempts: 3,
		Backoff:  ExpoJitter{Base: time.Hour},
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDoPermanentStopsAndUnwraps(t *testing.T) {
	bad := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return Permanent(bad)
	}, Policy{
		Name:     "test_permanent",
		Attempts: 5,
		Backoff:  Constant(time.Millisecond),
	})
	require.Equal(t, 1, calls)
	require.Same(t, bad, err)
	require.Nil(t, Permanent(nil))
}

func TestDoNilBackoffRetriesImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	}, Policy{Name: "test_constant", Attempts: 3})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}
