package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPMCInputCountAndLines(t *testing.T) {
	content := "subpath\tlicense\tpmcid\tpmid\n" +
		"oa_package/00/00/PMC1.tar.gz\tCC0\tPMC1\tPMID:111\n" +
		"oa_package/00/01/PMC2.tar.gz\tCC0\tPMC2\tPMID:222\n"
	path := filepath.Join(t.TempDir(), "pmc.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	in := NewPMCInput(path, "https://ftp.ncbi.nlm.nih.gov/pub/pmc/")
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
	assert.Equal(t, "PMC1", got[0].Record.PMCID)
	assert.Equal(t, "111", got[0].Record.PMID)
	assert.Equal(t, "https://ftp.ncbi.nlm.nih.gov/pub/pmc/oa_package/00/00/PMC1.tar.gz", got[0].Record.BestOALocation.URLForPDF)
}
