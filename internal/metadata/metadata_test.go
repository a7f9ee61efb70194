package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kermitt2/oa-harvester/internal/record"
)

func TestResolveBackfillsFromGlutton(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"DOI":"10.1/abc","PMID":"123","PMCID":"PMC1","title":"A Title","year":2020,"journal":"J","abstract":"abs"}`))
	}))
	defer srv.Close()

	resolver := New(srv.URL, "", "")
	r := &record.Record{DOI: "10.1/abc"}

	require.NoError(t, resolver.Resolve(context.Background(), r))
	assert.Equal(t, "123", r.PMID)
	assert.Equal(t, "PMC1", r.PMCID)
	assert.Equal(t, "A Title", r.Title)
	assert.Equal(t, 2020, r.Year)
}

func TestResolveFallsBackToCrossref(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":{"title":["A Title"],"published":{"date-parts":[[2019]]},"container-title":["J"]}}`))
	}))
	defer srv.Close()

	resolver := New("", srv.URL, "test@example.org")
	r := &record.Record{DOI: "10.1/abc"}

	require.NoError(t, resolver.Resolve(context.Background(), r))
	assert.Equal(t, "A Title", r.Title)
	assert.Equal(t, 2019, r.Year)
}
