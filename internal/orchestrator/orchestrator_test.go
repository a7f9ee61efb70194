package orchestrator

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kermitt2/oa-harvester/internal/downloader"
	"github.com/kermitt2/oa-harvester/internal/index"
	"github.com/kermitt2/oa-harvester/internal/record"
)

func writeGzippedJSONL(t *testing.T, lines []string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, l := range lines {
		_, err := gz.Write([]byte(l + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "input.jsonl.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestRunSucceedsForDownloadableRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(append([]byte("%PDF-1.4\n"), make([]byte, 1024)...))
	}))
	defer srv.Close()

	line := `{"doi":"10.1/abc","best_oa_location":{"url_for_pdf":"` + srv.URL + `/a.pdf","is_best":true}}`
	inputPath := writeGzippedJSONL(t, []string{line})

	idx, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer idx.Close()

	registry := map[downloader.TransportKind]downloader.Transport{
		downloader.TransportDirect: downloader.NewDirectTransport("oa-harvester-test"),
	}
	d := downloader.New(registry, []downloader.TransportKind{downloader.TransportDirect}, t.TempDir(), nil)

	counters, _ := NewCounters()
	orch := New(idx, d, nil, nil, nil, nil, counters)

	in := NewUnpaywallInput(inputPath)
	err = orch.Run(context.Background(), in, Options{BatchSize: 10, Workers: 2})
	require.NoError(t, err)

	uid, found, err := idx.LookupIdentifier("10.1/abc")
	require.NoError(t, err)
	require.True(t, found)

	entry, found, err := idx.GetEntry(uid)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, entry.HasResource(record.ResourcePDF))

	_, failed, err := idx.GetFail(uid)
	require.NoError(t, err)
	assert.False(t, failed)
}

func TestRunRecordsFailureWhenAllTransportsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	line := `{"doi":"10.1/xyz","best_oa_location":{"url_for_pdf":"` + srv.URL + `/missing.pdf","is_best":true}}`
	inputPath := writeGzippedJSONL(t, []string{line})

	idx, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer idx.Close()

	workDir := t.TempDir()
	registry := map[downloader.TransportKind]downloader.Transport{
		downloader.TransportDirect: downloader.NewDirectTransport("oa-harvester-test"),
	}
	d := downloader.New(registry, []downloader.TransportKind{downloader.TransportDirect}, workDir, nil)

	counters, _ := NewCounters()
	orch := New(idx, d, nil, nil, nil, nil, counters)

	in := NewUnpaywallInput(inputPath)
	err = orch.Run(context.Background(), in, Options{BatchSize: 10, Workers: 2, WorkDir: workDir})
	require.NoError(t, err)

	uid, found, err := idx.LookupIdentifier("10.1/xyz")
	require.NoError(t, err)
	require.True(t, found)

	entry, found, err := idx.GetEntry(uid)
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, entry.HasFulltext())

	_, failed, err := idx.GetFail(uid)
	require.NoError(t, err)
	assert.True(t, failed)

	_, statErr := os.Stat(filepath.Join(workDir, uid.String()))
	assert.True(t, os.IsNotExist(statErr), "failed record's work directory should be cleaned up, not left as an orphan")
}
