package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolPreservesOrder(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	results := Pool(context.Background(), 3, items, func(ctx context.Context, n int) (int, error) {
		if n == 5 {
			return 0, errors.New("boom")
		}
		return n * n, nil
	})

	for i, r := range results {
		assert.Equal(t, i, r.Index)
		if i == 5 {
			assert.Error(t, r.Err)
			continue
		}
		assert.NoError(t, r.Err)
		assert.Equal(t, i*i, r.Value)
	}
}
