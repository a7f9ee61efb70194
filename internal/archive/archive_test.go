package archive

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestArchive(t *testing.T, members map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range members {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "bundle.tar.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestExtractPDFAndNXML(t *testing.T) {
	path := writeTestArchive(t, map[string]string{
		"PMC1234/article.pdf":  "%PDF-1.4 fake",
		"PMC1234/article.nxml": "<article/>",
		"PMC1234/media.png":    "ignored",
	})
	destDir := filepath.Join(filepath.Dir(path), "out")

	result, err := Extract(path, destDir)
	require.NoError(t, err)
	assert.FileExists(t, result.PDFPath)
	assert.FileExists(t, result.NXMLPath)
	assert.NoFileExists(t, path)
}

func TestExtractNoPDF(t *testing.T) {
	path := writeTestArchive(t, map[string]string{
		"PMC1234/article.nxml": "<article/>",
	})
	destDir := filepath.Join(filepath.Dir(path), "out")

	_, err := Extract(path, destDir)
	assert.ErrorIs(t, err, ErrNoPDF)
	assert.NoFileExists(t, path)
}
