package orchestrator

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnpaywallInputCountAndLines(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(`{"doi":"10.1/a","best_oa_location":{"url_for_pdf":"https://x/a.pdf"}}` + "\n"))
	require.NoError(t, err)
	_, err = gz.Write([]byte(`not json` + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "input.jsonl.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	in := NewUnpaywallInput(path)
	count, err := in.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	lines, err := in.Lines(context.Background())
	require.NoError(t, err)

	var got []Line
	for l := range lines {
		got = append(got, l)
	}
	require.Len(t, got, 2)
	assert.NoError(t, got[0].Err)
	assert.Equal(t, "10.1/a", got[0].Record.DOI)
	assert.Error(t, got[1].Err)
}
