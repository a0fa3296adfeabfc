package pipeline

import (
	"context"
	"sync"
)

// RunBatches processes items in fixed-size batches, running each batch's
// items concurrently and waiting for the whole batch before starting the
// next. Per-clip analyses within a batch run in parallel, batches across
// clips are bounded (4 interactive, 3 inside a background job), and
// cancellation is observed only at batch boundaries — an in-flight batch
// always finishes.
//
// onBatch is invoked once per batch boundary (after the batch completes)
// with the number of items processed so far and the total, so callers can
// update progress/current-step the way the Job Registry and Content
// Selector both need to.
func RunBatches[I any, R any](
	ctx context.Context,
	items []I,
	batchSize int,
	work func(ctx context.Context, item I) (R, error),
	onBatch func(processed, total int),
) ([]R, []error) {
	if batchSize <= 0 {
		batchSize = 1
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))

	for start := 0; start < len(items); start += batchSize {
		if ctx.Err() != nil {
			break
		}

		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r, err := work(ctx, items[i])
				results[i] = r
				errs[i] = err
			}(i)
		}
		wg.Wait()

		if onBatch != nil {
			onBatch(end, len(items))
		}
	}

	return results, errs
}

// Cancelled reports whether ctx was cancelled, the signal RunBatches'
// callers use to distinguish a cooperative stop from natural completion.
func Cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}
