// Package workpool runs a large, open-ended stream of tasks with bounded
// concurrency, in fixed-size batches, recreating its goroutine pool
// between batches.
//
// Other bounded-fan-out code in this codebase's ancestry (e.g. an
// adjacent-shard BAM reader, a traverse.Each-driven shard converter)
// bounds parallelism to a fixed worker count for the lifetime of one
// call. safecut.Finder's fixed-point search instead runs an unbounded
// number of rounds, each dispatching one task per input file. Every
// Run/RunN call starts its own workers, and within one call a fresh set
// of workers is started for each batch of BatchSize tasks and torn down
// when that batch finishes, so no worker goroutine outlives one batch.
package workpool

import (
	"context"
	"sync"
)

const (
	// MaxConcurrency bounds how many tasks run at once within a batch.
	MaxConcurrency = 32

	// BatchSize bounds how many tasks are enqueued before the pool is torn
	// down and rebuilt.
	BatchSize = 250
)

// Task is one unit of work submitted to a Pool.
type Task func(ctx context.Context) error

// Run executes tasks with at most MaxConcurrency running concurrently,
// processing them in batches of BatchSize with a fresh worker pool per
// batch. It returns the first error encountered, if any; once an error
// occurs, already-enqueued tasks in the same batch are still allowed to
// finish (it does not cancel siblings), but no further batches are
// started.
func Run(ctx context.Context, tasks []Task) error {
	return RunN(ctx, tasks, MaxConcurrency)
}

// RunN is Run with a caller-chosen concurrency ceiling (e.g. the
// configured -threads value), clamped to [1, MaxConcurrency]. A
// configured value of 0 or less selects MaxConcurrency.
func RunN(ctx context.Context, tasks []Task, concurrency int) error {
	if concurrency <= 0 || concurrency > MaxConcurrency {
		concurrency = MaxConcurrency
	}
	for start := 0; start < len(tasks); start += BatchSize {
		end := start + BatchSize
		if end > len(tasks) {
			end = len(tasks)
		}
		if err := runBatch(ctx, tasks[start:end], concurrency); err != nil {
			return err
		}
	}
	return nil
}

func runBatch(ctx context.Context, batch []Task, concurrency int) error {
	if len(batch) < concurrency {
		concurrency = len(batch)
	}
	if concurrency == 0 {
		return nil
	}

	jobs := make(chan int)
	errs := make([]error, len(batch))

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for w := 0; w < concurrency; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				errs[i] = batch[i](ctx)
			}
		}()
	}
	for i := range batch {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
