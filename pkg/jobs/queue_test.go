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

func TestQueueRetriesUntilSuccess(t *testing.T) {
	var calls int32
	done := make(chan Job, 1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		done <- job
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Type: "event"}))

	select {
	case job := <-done:
		assert.Equal(t, 2, job.Attempt)
	case <-time.After(time.Second):
		t.Fatal("job was not retried to success")
	}
}

func TestQueueReportsDeadLetters(t *testing.T) {
	var mu sync.Mutex
	var dead []Job
	deadCh := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		return errors.New("permanent")
	}, QueueConfig{MaxRetries: 1, RetryDelay: time.Millisecond, OnDead: func(j Job, err error) {
		mu.Lock()
		dead = append(dead, j)
		mu.Unlock()
		close(deadCh)
	}})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "x"}))

	select {
	case <-deadCh:
	case <-time.After(time.Second):
		t.Fatal("dead letter hook not invoked")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, dead, 1)
	assert.Equal(t, 2, dead[0].Attempt)
}

func TestEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.ErrorIs(t, q.Enqueue(Job{ID: "1"}), ErrNotStarted)
}

func TestTryEnqueueFull(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("full", func(ctx context.Context, job Job) error {
		<-block
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer func() {
		close(block)
		q.Stop()
	}()

	require.NoError(t, q.Enqueue(Job{ID: "running"}))
	// Wait for the worker to pick the first job so the buffer slot frees up.
	require.Eventually(t, func() bool { return len(q.jobs) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.TryEnqueue(context.Background(), Job{ID: "buffered"}))
	assert.ErrorIs(t, q.TryEnqueue(context.Background(), Job{ID: "overflow"}), ErrFull)
}

func TestStopDrainsBufferedJobs(t *testing.T) {
	release := make(chan struct{})
	var handled int32
	q := NewQueue("drain", func(ctx context.Context, job Job) error {
		if job.ID == "first" {
			<-release
		}
		atomic.AddInt32(&handled, 1)
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 4, DrainTimeout: time.Second})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "first"}))
	require.Eventually(t, func() bool { return len(q.jobs) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Enqueue(Job{ID: "second"}))
	require.NoError(t, q.Enqueue(Job{ID: "third"}))

	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()
	require.Eventually(t, func() bool { return q.TryEnqueue(context.Background(), Job{ID: "late"}) != nil }, time.Second, time.Millisecond)
	close(release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&handled))
	assert.ErrorIs(t, q.Enqueue(Job{ID: "after"}), ErrStopped)
}

func TestStopDeadLettersWhatCannotDrain(t *testing.T) {
	var mu sync.Mutex
	var dead []string
	block := make(chan struct{})
	defer close(block)
	q := NewQueue("stuck", func(ctx context.Context, job Job) error {
		select {
		case <-block:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, QueueConfig{Workers: 1, BufferSize: 4, DrainTimeout: 10 * time.Millisecond, OnDead: func(j Job, err error) {
		mu.Lock()
		defer mu.Unlock()
		dead = append(dead, j.ID)
	}})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "running"}))
	require.Eventually(t, func() bool { return len(q.jobs) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Enqueue(Job{ID: "waiting-1"}))
	require.NoError(t, q.Enqueue(Job{ID: "waiting-2"}))

	q.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"running", "waiting-1", "waiting-2"}, dead)
}
