// Package storage provides the harvester's object-storage backends,
// modeled on operator-controller's internal/storage.LocalDirStore
// interface and generalized from a local filesystem Store to remote
// S3-compatible and OpenStack Swift backends. Each Put is a single
// upload call to the remote store; no temp-name-then-rename step is
// used.
package storage

import (
	"context"
	"fmt"
	"io"
)

// Backend is implemented by every upload target the orchestrator's
// upload phase can write to.
type Backend interface {
	// Put uploads content under key, which callers obtain from
	// ShardedPath.
	Put(ctx context.Context, key string, content io.Reader, size int64) error
	// Get retrieves the object at key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Exists reports whether an object is present at key without
	// transferring its content.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes the object at key. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error
}

// ShardedPath builds the storage key for an artifact, following the
// original harvester's u[0:2]/u[2:4]/u[4:6]/u[6:8]/u layout: four
// two-character shard directories derived from the UUID's hex digits,
// keeping any single storage container's listing shallow.
func ShardedPath(id, suffix string) string {
	// UUIDs are emitted as canonical 36-character strings; strip the
	// dashes before sharding so the path depends only on hex content.
	hex := stripDashes(id)
	if len(hex) < 8 {
		return fmt.Sprintf("%s/%s%s", id, id, suffix)
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s%s", hex[0:2], hex[2:4], hex[4:6], hex[6:8], id, id, suffix)
}

func stripDashes(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
