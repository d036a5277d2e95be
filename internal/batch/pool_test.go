package batch_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fiberplan/internal/batch"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	t.Parallel()

	pool := batch.NewPool("test", 3, 10, discardLogger())

	var ran atomic.Int64

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)

		err := pool.Submit(func() {
			defer wg.Done()
			ran.Add(1)
		})
		require.NoError(t, err)
	}

	wg.Wait()
	pool.Shutdown()

	assert.Equal(t, int64(10), ran.Load())
}

func TestPoolSubmitSaturation(t *testing.T) {
	t.Parallel()

	pool := batch.NewPool("test", 1, 1, discardLogger())
	defer pool.Shutdown()

	block := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, pool.Submit(func() {
		close(started)
		<-block
	}))
	<-started

	// Queue slot.
	require.NoError(t, pool.Submit(func() {}))

	// Worker busy and queue full.
	err := pool.Submit(func() {})
	require.ErrorIs(t, err, batch.ErrPoolSaturated)

	close(block)
}

func TestPoolSubmitAfterShutdown(t *testing.T) {
	t.Parallel()

	pool := batch.NewPool("test", 1, 1, discardLogger())
	pool.Shutdown()

	err := pool.Submit(func() {})
	require.ErrorIs(t, err, batch.ErrPoolClosed)
}

func TestPoolExecuteCompletes(t *testing.T) {
	t.Parallel()

	pool := batch.NewPool("test", 2, 2, discardLogger())
	defer pool.Shutdown()

	var ran atomic.Bool

	err := pool.Execute(context.Background(), func(_ context.Context) {
		ran.Store(true)
	})
	require.NoError(t, err)
	assert.True(t, ran.Load())
}

func TestPoolExecuteTimeout(t *testing.T) {
	t.Parallel()

	pool := batch.NewPool("test", 1, 1, discardLogger())
	defer pool.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.Execute(ctx, func(taskCtx context.Context) {
		<-taskCtx.Done()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolExecuteTimeoutWhileQueued(t *testing.T) {
	t.Parallel()

	pool := batch.NewPool("test", 1, 0, discardLogger())
	defer pool.Shutdown()

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit(func() {
		close(started)
		<-block
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.Execute(ctx, func(_ context.Context) {
		t.Error("queued task must not run after its deadline")
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
}

func TestPoolShutdownWithBlockedExecute(t *testing.T) {
	t.Parallel()

	pool := batch.NewPool("test", 1, 0, discardLogger())

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit(func() {
		close(started)
		<-block
	}))
	<-started

	// Execute blocks on the enqueue while the only worker is busy.
	execErr := make(chan error, 1)

	go func() {
		execErr <- pool.Execute(context.Background(), func(_ context.Context) {})
	}()

	time.Sleep(20 * time.Millisecond)

	shutdownDone := make(chan struct{})

	go func() {
		pool.Shutdown()
		close(shutdownDone)
	}()

	// Shutdown must let the pending enqueue land instead of closing the
	// queue under it.
	close(block)

	require.NoError(t, <-execErr)
	<-shutdownDone
}

func TestPoolShutdownDrainsQueue(t *testing.T) {
	t.Parallel()

	pool := batch.NewPool("test", 1, 10, discardLogger())

	var ran atomic.Int64
	for range 5 {
		require.NoError(t, pool.Submit(func() {
			ran.Add(1)
		}))
	}

	pool.Shutdown()
	assert.Equal(t, int64(5), ran.Load())
}
