package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	done := make(chan struct{}, 3)

	q := NewQueue("test", func(_ context.Context, job Job) error {
		mu.Lock()
		seen[job.ID] = true
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(Job{ID: id}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, seen)
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int32
	done := make(chan struct{})
	var results int32

	q := NewQueue("retry", func(_ context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("boom")
		}
		close(done)
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: 5 * time.Millisecond, OnResult: func(Job, error) {
		atomic.AddInt32(&results, 1)
	}})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "r"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&results) == 3 }, time.Second, 5*time.Millisecond)
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job{}))
	require.Error(t, q.TryEnqueue(Job{}))
	require.Error(t, q.Every(time.Second, func() Job { return Job{} }))
}

func TestTryEnqueueReportsFullBuffer(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	q := NewQueue("full", func(ctx context.Context, _ Job) error {
		started <- struct{}{}
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer q.Stop()
	defer close(block)

	require.NoError(t, q.TryEnqueue(Job{ID: "1"}))
	<-started
	require.NoError(t, q.TryEnqueue(Job{ID: "2"}))
	err := q.TryEnqueue(Job{ID: "3"})
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestEverySchedulesJobs(t *testing.T) {
	var runs int32
	q := NewQueue("tick", func(context.Context, Job) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}, QueueConfig{})
	q.Start(context.Background())

	require.NoError(t, q.Every(5*time.Millisecond, func() Job { return Job{Type: "tick"} }))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 2 }, 2*time.Second, 5*time.Millisecond)
	q.Stop()

	require.Error(t, NewQueue("x", nil, QueueConfig{}).Every(0, nil))
}

func TestJobTimeoutBoundsHandler(t *testing.T) {
	errs := make(chan error, 1)
	q := NewQueue("timeout", func(ctx context.Context, _ Job) error {
		<-ctx.Done()
		return ctx.Err()
	}, QueueConfig{JobTimeout: 10 * time.Millisecond, OnResult: func(_ Job, err error) {
		select {
		case errs <- err:
		default:
		}
	}})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "slow"}))
	select {
	case err := <-errs:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not bounded")
	}
}
