package catalogue

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kermitt2/oa-harvester/internal/index"
	"github.com/kermitt2/oa-harvester/internal/record"
)

func TestDumpWritesOneLinePerEntryAndFailures(t *testing.T) {
	dir := t.TempDir()
	idx, err := index.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	defer idx.Close()

	okID := uuid.New()
	failID := uuid.New()
	require.NoError(t, idx.PutEntry(okID, record.NewCatalogueEntry(&record.Record{ID: okID}, []record.Resource{record.ResourcePDF}, "")))
	require.NoError(t, idx.PutEntry(failID, record.NewCatalogueEntry(&record.Record{ID: failID}, nil, "")))

	dumpPath := filepath.Join(dir, "dump.jsonl")
	failuresPath := filepath.Join(dir, "failures.jsonl")

	require.NoError(t, Dump(idx, DumpOptions{Path: dumpPath, FailuresPath: failuresPath}))

	dumpContent, err := os.ReadFile(dumpPath)
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(dumpContent))

	failuresContent, err := os.ReadFile(failuresPath)
	require.NoError(t, err)
	assert.Equal(t, 1, countLines(failuresContent))
}

func TestDumpBacksUpExistingFile(t *testing.T) {
	dir := t.TempDir()
	idx, err := index.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	defer idx.Close()

	dumpPath := filepath.Join(dir, "dump.jsonl")
	require.NoError(t, os.WriteFile(dumpPath, []byte("old content\n"), 0644))

	require.NoError(t, Dump(idx, DumpOptions{Path: dumpPath}))
	assert.FileExists(t, dumpPath+".old")
}

func TestDumpCompressed(t *testing.T) {
	dir := t.TempDir()
	idx, err := index.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	defer idx.Close()

	id := uuid.New()
	require.NoError(t, idx.PutEntry(id, record.NewCatalogueEntry(&record.Record{ID: id}, []record.Resource{record.ResourcePDF}, "")))

	dumpPath := filepath.Join(dir, "dump.jsonl")
	require.NoError(t, Dump(idx, DumpOptions{Path: dumpPath, Compress: true}))

	f, err := os.Open(dumpPath)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, 1, countLines(data))
}

func TestResetRemovesIndexAndArtifacts(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "index.db")
	idx, err := index.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	artifactDir := filepath.Join(dir, "ab", "cd")
	require.NoError(t, os.MkdirAll(artifactDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(artifactDir, "x.pdf"), []byte("x"), 0644))

	require.NoError(t, Reset(dbPath, dir, nil))

	assert.NoFileExists(t, dbPath)
	assert.NoDirExists(t, artifactDir)
}

func TestDiagnosticPrintsSummary(t *testing.T) {
	dir := t.TempDir()
	idx, err := index.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	defer idx.Close()

	id := uuid.New()
	require.NoError(t, idx.PutEntry(id, record.NewCatalogueEntry(&record.Record{ID: id}, nil, "")))
	require.NoError(t, idx.PutFail(id, "download_error"))

	var buf bytes.Buffer
	require.NoError(t, Diagnostic(idx, &buf))
	assert.Contains(t, buf.String(), "entries total: 1")
	assert.Contains(t, buf.String(), "failures total: 1")
}

func countLines(data []byte) int {
	var entry json.RawMessage
	n := 0
	for _, line := range bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		_ = json.Unmarshal(line, &entry)
		n++
	}
	return n
}
