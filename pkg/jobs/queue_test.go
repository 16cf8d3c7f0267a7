package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var handled int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&handled, 1)
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(Job{Type: "notice"}))
	}
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&handled) == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(5), q.Stats().Succeeded)
}

func TestQueueRetriesThenGivesUp(t *testing.T) {
	var attempts int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("smtp down")
	}, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "notice"}))
	assert.Eventually(t, func() bool { return q.Stats().Failed == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestQueueRecoversPanics(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		panic("boom")
	}, QueueConfig{Workers: 1, MaxRetries: 0})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "notice"}))
	assert.Eventually(t, func() bool { return q.Stats().Failed == 1 }, time.Second, 5*time.Millisecond)
}

func TestQueueEnqueueDoesNotBlock(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) error { return nil }, QueueConfig{Workers: 1, BufferSize: 1})
	assert.Error(t, q.Enqueue(Job{}), "not started")

	release := make(chan struct{})
	blocking := NewQueue("blocking", func(ctx context.Context, job Job) error {
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	blocking.Start(context.Background())
	defer blocking.Stop()
	defer close(release)

	require.NoError(t, blocking.Enqueue(Job{}))
	var full error
	for i := 0; i < 3 && full == nil; i++ {
		full = blocking.Enqueue(Job{})
	}
	assert.ErrorIs(t, full, ErrQueueFull)
}
