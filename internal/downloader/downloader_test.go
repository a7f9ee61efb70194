package downloader

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kermitt2/oa-harvester/internal/record"
)

func TestPickUserAgentAlwaysReturnsKnownValue(t *testing.T) {
	known := map[string]bool{}
	for _, ua := range userAgents {
		known[ua.value] = true
	}
	for i := 0; i < 50; i++ {
		assert.True(t, known[pickUserAgent()])
	}
}

func TestFetchSucceedsOnFirstTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(append([]byte("%PDF-1.4\n"), make([]byte, 16)...))
	}))
	defer srv.Close()

	registry := map[TransportKind]Transport{
		TransportDirect: NewDirectTransport("oa-harvester-test"),
	}
	d := New(registry, []TransportKind{TransportDirect}, t.TempDir(), nil)

	r := &record.Record{
		ID: uuid.New(),
		BestOALocation: record.Location{
			URLForPDF: srv.URL + "/article.pdf",
		},
	}

	outcome, err := d.Fetch(context.Background(), r)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.FileExists(t, outcome.PDFPath)
	assert.Equal(t, r.BestOALocation.URLForPDF, outcome.OALink)
}

func TestFetchFallsThroughToAlternative(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(append([]byte("%PDF-1.4\n"), make([]byte, 16)...))
	}))
	defer good.Close()

	registry := map[TransportKind]Transport{
		TransportDirect: NewDirectTransport("oa-harvester-test"),
	}
	d := New(registry, []TransportKind{TransportDirect}, t.TempDir(), nil)

	r := &record.Record{
		ID: uuid.New(),
		BestOALocation: record.Location{
			URLForPDF: "http://127.0.0.1:1/unreachable.pdf",
		},
		AlternativeOALocations: []record.Location{
			{URLForPDF: good.URL + "/article.pdf"},
		},
	}

	outcome, err := d.Fetch(context.Background(), r)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, filepath.Base(good.URL+"/article.pdf"), filepath.Base(outcome.PDFPath))
}

func TestFetchReturnsNilWhenExhausted(t *testing.T) {
	registry := map[TransportKind]Transport{
		TransportDirect: NewDirectTransport("oa-harvester-test"),
	}
	d := New(registry, []TransportKind{TransportDirect}, t.TempDir(), nil)

	r := &record.Record{
		ID: uuid.New(),
		BestOALocation: record.Location{
			URLForPDF: "http://127.0.0.1:1/unreachable.pdf",
		},
	}

	outcome, err := d.Fetch(context.Background(), r)
	require.NoError(t, err)
	assert.Nil(t, outcome)
}

func TestFetchDecompressesGzippedPDF(t *testing.T) {
	var gzBody bytes.Buffer
	gz := gzip.NewWriter(&gzBody)
	_, err := gz.Write(append([]byte("%PDF-1.4\n"), make([]byte, 16)...))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		w.Write(gzBody.Bytes())
	}))
	defer srv.Close()

	registry := map[TransportKind]Transport{
		TransportDirect: NewDirectTransport("oa-harvester-test"),
	}
	d := New(registry, []TransportKind{TransportDirect}, t.TempDir(), nil)

	r := &record.Record{
		ID: uuid.New(),
		BestOALocation: record.Location{
			URLForPDF: srv.URL + "/article.pdf",
		},
	}

	outcome, err := d.Fetch(context.Background(), r)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.FileExists(t, outcome.PDFPath)

	contents, err := os.ReadFile(outcome.PDFPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(contents, []byte("%PDF")))
}

func TestFetchUsesArxivMirrorBeforeTransports(t *testing.T) {
	registry := map[TransportKind]Transport{
		TransportDirect: NewDirectTransport("oa-harvester-test"),
	}
	d := New(registry, []TransportKind{TransportDirect}, t.TempDir(), nil)
	d.SetMirrors(NewMirror(newMemBackend(map[string][]byte{
		"2104.08223.pdf": []byte("%PDF-1.4\n"),
	})), nil)

	r := &record.Record{
		ID: uuid.New(),
		BestOALocation: record.Location{
			URL: "https://arxiv.org/abs/2104.08223",
		},
		AlternativeOALocations: []record.Location{
			{URLForPDF: "http://127.0.0.1:1/unreachable.pdf"},
		},
	}

	outcome, err := d.Fetch(context.Background(), r)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.FileExists(t, outcome.PDFPath)
}

func TestOrderForSplitsFTPFromHTTP(t *testing.T) {
	d := New(nil, []TransportKind{TransportFTP, TransportScraper, TransportDirect, TransportCLI}, "", nil)

	assert.Equal(t, []TransportKind{TransportFTP, TransportCLI}, d.orderFor("ftp://mirror.test/a.pdf"))
	assert.Equal(t, []TransportKind{TransportScraper, TransportDirect, TransportCLI}, d.orderFor("https://publisher.test/a.pdf"))
}
