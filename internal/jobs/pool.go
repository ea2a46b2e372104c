package jobs

import (
	"context"
	"sync"
)

// Task processes one unit of work addressed by its slot index.
type Task func(ctx context.Context, index int)

// Pool fans tasks out over a fixed number of worker goroutines. Callers
// collect results by slot index, so the pool itself imposes no locking.
type Pool struct {
	workers int
}

// NewPool creates a new Pool instance
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Workers returns the concurrency limit
func (p *Pool) Workers() int {
	return p.workers
}

// Run dispatches indexes [0, count) across the workers and blocks until every
// dispatched task has finished. Dispatch stops at the first context
// cancellation; in-flight tasks run to completion. Returns ctx.Err() when the
// run was cut short.
func (p *Pool) Run(ctx context.Context, count int, task Task) error {
	if count <= 0 {
		return nil
	}

	workers := p.workers
	if workers > count {
		workers = count
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indexes {
				task(ctx, i)
			}
		}()
	}

	err := func() error {
		defer close(indexes)
		for i := 0; i < count; i++ {
			// Checked first so an already-cancelled context never
			// dispatches, even when a worker is ready to receive.
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case indexes <- i:
			}
		}
		return nil
	}()

	wg.Wait()
	return err
}
