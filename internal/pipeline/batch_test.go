package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBatchesProcessesAllItemsInOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	results, errs := RunBatches(context.Background(), items, 2,
		func(_ context.Context, i int) (int, error) { return i * 10, nil },
		nil,
	)

	require.Len(t, results, 5)
	for i, item := range items {
		assert.Equal(t, item*10, results[i])
		assert.NoError(t, errs[i])
	}
}

func TestRunBatchesBoundsConcurrencyToBatchSize(t *testing.T) {
	items := make([]int, 9)
	var inFlight, maxInFlight int32

	_, _ = RunBatches(context.Background(), items, 3,
		func(_ context.Context, _ int) (int, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&maxInFlight)
				if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
					break
				}
			}
			atomic.AddInt32(&inFlight, -1)
			return 0, nil
		},
		nil,
	)

	assert.LessOrEqual(t, int(maxInFlight), 3)
}

func TestRunBatchesInvokesOnBatchAtEachBoundary(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	var seen []int

	_, _ = RunBatches(context.Background(), items, 2,
		func(_ context.Context, i int) (int, error) { return i, nil },
		func(processed, total int) {
			seen = append(seen, processed)
			assert.Equal(t, 5, total)
		},
	)

	assert.Equal(t, []int{2, 4, 5}, seen)
}

func TestRunBatchesCapturesPerItemErrors(t *testing.T) {
	boom := errors.New("boom")
	items := []int{1, 2, 3}

	_, errs := RunBatches(context.Background(), items, 3,
		func(_ context.Context, i int) (int, error) {
			if i == 2 {
				return 0, boom
			}
			return i, nil
		},
		nil,
	)

	require.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], boom)
	assert.NoError(t, errs[2])
}

func TestRunBatchesStopsAtBoundaryOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	items := []int{1, 2, 3, 4, 5, 6}
	var processed int32

	_, _ = RunBatches(ctx, items, 2,
		func(_ context.Context, i int) (int, error) {
			atomic.AddInt32(&processed, 1)
			if i == 2 {
				cancel()
			}
			return i, nil
		},
		nil,
	)

	assert.LessOrEqual(t, int(processed), 4)
}

func TestRunBatchesDefaultsNonPositiveBatchSizeToOne(t *testing.T) {
	items := []int{1, 2, 3}
	var batches int

	_, _ = RunBatches(context.Background(), items, 0,
		func(_ context.Context, i int) (int, error) { return i, nil },
		func(processed, total int) { batches++ },
	)

	assert.Equal(t, 3, batches)
}

func TestCancelledReflectsContextState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	assert.False(t, Cancelled(ctx))
	cancel()
	assert.True(t, Cancelled(ctx))
}
