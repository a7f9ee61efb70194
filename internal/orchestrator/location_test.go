package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kermitt2/oa-harvester/internal/record"
)

func TestSelectBestLocationPrefersArxivMirror(t *testing.T) {
	r := &record.Record{
		BestOALocation: record.Location{URLForPDF: "https://publisher.test/a.pdf", IsBest: true},
		OALocations: []record.Location{
			{URLForPDF: "https://arxiv.org/pdf/1234.pdf"},
			{URLForPDF: "https://publisher.test/a.pdf", IsBest: true},
		},
	}

	chosen, alternatives := selectBestLocation(r, PrecedenceOptions{ArxivMirrorEnabled: true})
	assert.Equal(t, "https://arxiv.org/pdf/1234.pdf", chosen.URLForPDF)
	assert.Len(t, alternatives, 1)
}

func TestSelectBestLocationFallsBackToInputBest(t *testing.T) {
	r := &record.Record{
		BestOALocation: record.Location{URLForPDF: "https://publisher.test/a.pdf"},
	}
	chosen, _ := selectBestLocation(r, PrecedenceOptions{})
	assert.Equal(t, "https://publisher.test/a.pdf", chosen.URLForPDF)
}

func TestSelectBestLocationFallsBackToFirstWithPDF(t *testing.T) {
	r := &record.Record{
		OALocations: []record.Location{
			{URL: "https://publisher.test/landing"},
			{URLForPDF: "https://publisher.test/b.pdf"},
		},
	}
	chosen, _ := selectBestLocation(r, PrecedenceOptions{})
	assert.Equal(t, "https://publisher.test/b.pdf", chosen.URLForPDF)
}

func TestSelectBestLocationNoneAvailable(t *testing.T) {
	r := &record.Record{}
	chosen, alternatives := selectBestLocation(r, PrecedenceOptions{})
	assert.False(t, chosen.HasPDF())
	assert.Empty(t, alternatives)
}

func TestDrawSampleWithinBounds(t *testing.T) {
	set := drawSample(10, 100)
	assert.LessOrEqual(t, len(set), 10)
	for pos := range set {
		assert.GreaterOrEqual(t, pos, 0)
		assert.Less(t, pos, 100)
	}
}
