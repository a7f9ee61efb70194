package index

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kermitt2/oa-harvester/internal/record"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestIdentifierMappingRoundTrip(t *testing.T) {
	idx := openTestIndex(t)
	id := uuid.New()

	_, found, err := idx.LookupIdentifier("10.1234/abc")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, idx.PutIdentifierMapping("10.1234/abc", id))

	got, found, err := idx.LookupIdentifier("10.1234/abc")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, got)
}

func TestEntryRoundTrip(t *testing.T) {
	idx := openTestIndex(t)
	id := uuid.New()
	entry := record.NewCatalogueEntry(&record.Record{ID: id, DOI: "10.1234/abc"}, []record.Resource{record.ResourcePDF}, "https://example.org/a.pdf")

	require.NoError(t, idx.PutEntry(id, entry))

	got, found, err := idx.GetEntry(id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entry.Identifiers, got.Identifiers)
	assert.True(t, got.HasResource(record.ResourcePDF))
	assert.True(t, got.HasFulltext())
}

func TestFailLifecycle(t *testing.T) {
	idx := openTestIndex(t)
	id := uuid.New()

	require.NoError(t, idx.PutFail(id, "download_error"))
	code, found, err := idx.GetFail(id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "download_error", code)

	require.NoError(t, idx.DeleteFail(id))
	_, found, err = idx.GetFail(id)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestScanAndStats(t *testing.T) {
	idx := openTestIndex(t)
	for i := 0; i < 3; i++ {
		id := uuid.New()
		require.NoError(t, idx.PutEntry(id, record.NewCatalogueEntry(&record.Record{ID: id}, nil, "")))
	}
	require.NoError(t, idx.PutFail(uuid.New(), "x"))

	var n int
	err := idx.Scan(MapEntries, func(key, value []byte) error {
		n++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	entries, fails, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, entries)
	assert.Equal(t, 1, fails)
}
