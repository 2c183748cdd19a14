package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGoroutinePool_RunsTasks(t *testing.T) {
	p := NewGoroutinePool(Config{Workers: 2, QueueSize: 8}, zap.NewNop())

	var n atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit("count", func(ctx context.Context) error {
			n.Add(1)
			return nil
		}))
	}
	require.NoError(t, p.Close(context.Background()))

	assert.Equal(t, int32(5), n.Load())
	stats := p.Stats()
	assert.Equal(t, int64(5), stats.Submitted)
	assert.Equal(t, int64(5), stats.Completed)
	assert.Zero(t, stats.Failed)
}

func TestGoroutinePool_RejectsWhenFull(t *testing.T) {
	p := NewGoroutinePool(Config{Workers: 1, QueueSize: 1}, zap.NewNop())

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, p.Submit("block", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	require.NoError(t, p.Submit("queued", func(ctx context.Context) error { return nil }))
	assert.ErrorIs(t, p.Submit("overflow", func(ctx context.Context) error { return nil }), ErrPoolFull)
	assert.Equal(t, int64(1), p.Stats().Rejected)

	close(release)
	require.NoError(t, p.Close(context.Background()))
	assert.ErrorIs(t, p.Submit("late", func(ctx context.Context) error { return nil }), ErrPoolClosed)
}

func TestGoroutinePool_FailuresAndPanics(t *testing.T) {
	p := NewGoroutinePool(Config{Workers: 1, QueueSize: 4}, zap.NewNop())

	require.NoError(t, p.Submit("fail", func(ctx context.Context) error { return errors.New("boom") }))
	require.NoError(t, p.Submit("panic", func(ctx context.Context) error { panic("oops") }))
	require.NoError(t, p.Submit("ok", func(ctx context.Context) error { return nil }))
	require.NoError(t, p.Close(context.Background()))

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(1), stats.Completed)
}

func TestGoroutinePool_TaskTimeout(t *testing.T) {
	p := NewGoroutinePool(Config{Workers: 1, QueueSize: 1, TaskTimeout: 20 * time.Millisecond}, zap.NewNop())

	errCh := make(chan error, 1)
	require.NoError(t, p.Submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		errCh <- ctx.Err()
		return ctx.Err()
	}))
	require.NoError(t, p.Close(context.Background()))
	assert.ErrorIs(t, <-errCh, context.DeadlineExceeded)
}

func TestGoroutinePool_CloseDeadlineCancelsTasks(t *testing.T) {
	p := NewGoroutinePool(Config{Workers: 1, QueueSize: 1, TaskTimeout: time.Minute}, zap.NewNop())

	started := make(chan struct{})
	require.NoError(t, p.Submit("stuck", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoError(t, p.Close(context.Background()))
}
