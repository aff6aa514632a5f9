// Package workerpool runs a fixed number of goroutines over a batch of
// independent work items, collecting results back in input order so the
// caller's downstream merge stays single-threaded and deterministic.
package workerpool

import (
	"context"
	"sync"

	"github.com/kanoniv/kanoniv/pkg/kerrors"
)

// Task is one unit of work, given its index in the original batch.
type Task[T, R any] func(ctx context.Context, idx int, item T) (R, error)

// Run executes fn over every item in items using up to workers concurrent
// goroutines, and returns results in the same order as items.
//
// Run checks ctx between dispatching items; once cancelled it stops
// dispatching new work, waits for in-flight work to finish, and returns
// *kerrors.Cancelled with stage. Run does not cancel in-flight goroutines —
// callers' Task functions should themselves watch ctx for long steps.
func Run[T, R any](ctx context.Context, stage string, workers int, items []T, fn Task[T, R]) ([]R, error) {
	if workers <= 0 {
		workers = 1
	}
	results := make([]R, len(items))
	errs := make([]error, len(items))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, item := range items {
		select {
		case <-ctx.Done():
			wg.Wait()
			return results, &kerrors.Cancelled{Stage: stage}
		default:
		}

		wg.Add(1)
		go func(idx int, it T) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			r, err := fn(ctx, idx, it)
			results[idx] = r
			errs[idx] = err
		}(i, item)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}

	select {
	case <-ctx.Done():
		return results, &kerrors.Cancelled{Stage: stage}
	default:
	}

	return results, nil
}
