package validate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample")
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func TestValidatePDF(t *testing.T) {
	path := writeFile(t, append([]byte("%PDF-1.4\n"), make([]byte, 16)...))
	ok, err := File(path, KindPDF)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = File(path, KindPNG)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateXML(t *testing.T) {
	path := writeFile(t, []byte("<?xml version=\"1.0\"?><article/>"))
	ok, err := File(path, KindXML)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValidatePNG(t *testing.T) {
	pngHeader := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	path := writeFile(t, append(pngHeader, make([]byte, 16)...))
	ok, err := File(path, KindPNG)
	require.NoError(t, err)
	assert.True(t, ok)
}
