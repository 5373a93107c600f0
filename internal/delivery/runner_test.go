package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/delivery"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs/retry"
)

type fakeRepo struct {
	mu        sync.Mutex
	batch     []*delivery.Task
	exhausted int64
	done      map[int64]delivery.Status
	retries   map[int64]time.Time
	failed    map[int64]string
}

func newFakeRepo(tasks ...*delivery.Task) *fakeRepo {
	return &fakeRepo{
		batch:   tasks,
		done:    map[int64]delivery.Status{},
		retries: map[int64]time.Time{},
		failed:  map[int64]string{},
	}
}

func (f *fakeRepo) Enqueue(context.Context, *delivery.Task) error { return nil }

func (f *fakeRepo) PickBatch(_ context.Context, _ notification.Channel, batch int, _ time.Duration) ([]*delivery.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := min(batch, len(f.batch))
	out := f.batch[:n]
	f.batch = f.batch[n:]
	return out, nil
}

func (f *fakeRepo) FailExhausted(context.Context, notification.Channel, time.Duration) (int64, error) {
	return f.exhausted, nil
}

func (f *fakeRepo) MarkDelivered(_ context.Context, id int64, st delivery.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done[id] = st
	return nil
}

func (f *fakeRepo) MarkRetry(_ context.Context, id int64, next time.Time, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries[id] = next
	return nil
}

func (f *fakeRepo) MarkFailed(_ context.Context, id int64, lastErr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = lastErr
	return nil
}

func task(id int64, attempts, maxAttempts int) *delivery.Task {
	return &delivery.Task{ID: id, UserID: 7, Channel: notification.ChannelEmail, Type: notification.TypeNewReply,
		Attempts: attempts, MaxAttempts: maxAttempts}
}

func newTestRunner(repo delivery.Repository, h delivery.Handler, now time.Time) *Runner {
	r := NewRunner(nil, repo, h, Config{
		Channel:   notification.ChannelEmail,
		BatchSize: 10,
		Backoff:   retry.ExpoJitter{Base: time.Minute},
	})
	r.now = func() time.Time { return now }
	return r
}

func TestTickRoutesOutcomes(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepo(
		task(1, 1, 5), // delivered
		task(2, 1, 5), // no recipient
		task(3, 1, 5), // terminal
		task(4, 3, 5), // transient, retried
		task(5, 5, 5), // transient, out of attempts
	)
	h := func(_ context.Context, tk *delivery.Task) (delivery.Status, error) {
		switch tk.ID {
		case 1:
			return delivery.StatusDelivered, nil
		case 2:
			return delivery.StatusNoRecipient, nil
		case 3:
			return "", delivery.Terminal(errors.New("550 no such user"))
		default:
			return "", errors.New("dial tcp: connection refused")
		}
	}

	n, err := newTestRunner(repo, h, now).Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, n)

	require.Equal(t, delivery.StatusDelivered, repo.done[1])
	require.Equal(t, delivery.StatusNoRecipient, repo.done[2])
	require.Contains(t, repo.failed[3], "550")
	// third attempt failed: base * 2^(3-1)
	require.Equal(t, now.Add(4*time.Minute), repo.retries[4])
	require.Contains(t, repo.failed[5], "connection refused")
	require.NotContains(t, repo.retries, int64(5))
}

func TestRetryDelaysGrowWithAttempts(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepo(task(1, 1, 9), task(2, 2, 9), task(3, 3, 9))
	h := func(context.Context, *delivery.Task) (delivery.Status, error) {
		return "", errors.New("421 try later")
	}
	_, err := newTestRunner(repo, h, now).Tick(context.Background())
	require.NoError(t, err)

	require.Equal(t, now.Add(time.Minute), repo.retries[1])
	require.Equal(t, now.Add(2*time.Minute), repo.retries[2])
	require.Equal(t, now.Add(4*time.Minute), repo.retries[3])
}

func TestRunStopsOnCancel(t *testing.T) {
	repo := newFakeRepo()
	r := NewRunner(nil, repo, func(context.Context, *delivery.Task) (delivery.Status, error) {
		return delivery.StatusDelivered, nil
	}, Config{Channel: notification.ChannelPush, Workers: 3, PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestTerminalWrapping(t *testing.T) {
	base := errors.New("boom")
	err := delivery.Terminal(base)
	require.True(t, delivery.IsTerminal(err))
	require.ErrorIs(t, err, base)
	require.False(t, delivery.IsTerminal(base))
	require.Nil(t, delivery.Terminal(nil))
}
