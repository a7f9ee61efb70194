package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardedPath(t *testing.T) {
	id := "0c3a1f2e-4b5d-4a6e-8c7f-1234567890ab"
	got := ShardedPath(id, ".pdf")
	assert.Equal(t, "0c/3a/1f/2e/0c3a1f2e-4b5d-4a6e-8c7f-1234567890ab/0c3a1f2e-4b5d-4a6e-8c7f-1234567890ab.pdf", got)
}

func TestShardedPathThumbnailSuffix(t *testing.T) {
	id := "0c3a1f2e-4b5d-4a6e-8c7f-1234567890ab"
	got := ShardedPath(id, "-thumb-small.png.gz")
	assert.Contains(t, got, "-thumb-small.png.gz")
}
