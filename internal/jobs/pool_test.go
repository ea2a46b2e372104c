package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Run_ProcessesEveryIndex(t *testing.T) {
	pool := NewPool(4)

	var mu sync.Mutex
	seen := make(map[int]bool)

	err := pool.Run(context.Background(), 20, func(_ context.Context, i int) {
		mu.Lock()
		seen[i] = true
		mu.Unlock()
	})

	require.NoError(t, err)
	assert.Len(t, seen, 20)
	for i := 0; i < 20; i++ {
		assert.True(t, seen[i], "index %d not processed", i)
	}
}

func TestPool_Run_RespectsWorkerLimit(t *testing.T) {
	pool := NewPool(3)

	var current, peak atomic.Int64

	err := pool.Run(context.Background(), 12, func(_ context.Context, _ int) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
	})

	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Greater(t, peak.Load(), int64(0))
}

func TestPool_Run_ZeroCount(t *testing.T) {
	pool := NewPool(2)

	called := false
	err := pool.Run(context.Background(), 0, func(_ context.Context, _ int) {
		called = true
	})

	require.NoError(t, err)
	assert.False(t, called)
}

func TestPool_Run_StopsDispatchOnCancel(t *testing.T) {
	pool := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())

	var processed atomic.Int64
	err := pool.Run(ctx, 100, func(_ context.Context, i int) {
		processed.Add(1)
		if i == 2 {
			cancel()
		}
		time.Sleep(5 * time.Millisecond)
	})

	assert.ErrorIs(t, err, context.Canceled)
	// The task that triggered the cancel and at most one already-dispatched
	// successor run to completion; the rest are never handed out.
	assert.GreaterOrEqual(t, processed.Load(), int64(3))
	assert.Less(t, processed.Load(), int64(100))
}

func TestPool_Run_InFlightTasksFinish(t *testing.T) {
	pool := NewPool(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var started sync.WaitGroup
	started.Add(2)
	go func() {
		// Cancel only once both tasks are already running
		started.Wait()
		cancel()
	}()

	var finished atomic.Int64
	err := pool.Run(ctx, 2, func(_ context.Context, _ int) {
		started.Done()
		time.Sleep(30 * time.Millisecond)
		finished.Add(1)
	})

	// Dispatch completed before the cancel, so the run is clean and both
	// in-flight tasks ran to completion.
	require.NoError(t, err)
	assert.Equal(t, int64(2), finished.Load())
}

func TestNewPool_ClampsWorkers(t *testing.T) {
	assert.Equal(t, 1, NewPool(0).Workers())
	assert.Equal(t, 1, NewPool(-5).Workers())
	assert.Equal(t, 8, NewPool(8).Workers())
}
