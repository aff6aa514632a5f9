package workerpool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_PreservesOrder(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7}
	results, err := Run(context.Background(), "double", 3, items, func(_ context.Context, idx int, item int) (int, error) {
		return item * 2, nil
	})
	require.NoError(t, err)
	for i, r := range results {
		require.Equal(t, items[i]*2, r)
	}
}

func TestRun_CancelledBeforeDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, "stage", 2, []int{1, 2, 3}, func(_ context.Context, idx int, item int) (int, error) {
		return item, nil
	})
	require.Error(t, err)
}
