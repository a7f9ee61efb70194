package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kermitt2/oa-harvester/internal/record"
	"github.com/kermitt2/oa-harvester/internal/storage"
)

// Mirror shortcuts a download straight to a pre-populated object-storage
// bucket/container instead of going through the transport chain, for
// arXiv and PLOS, which the original harvester can be configured to
// pull from its own S3/Swift mirror rather than the public site
// (spec.md §4.3 "Mirror shortcuts").
type Mirror struct {
	backend storage.Backend
}

// NewMirror builds a Mirror reading from backend.
func NewMirror(backend storage.Backend) *Mirror {
	return &Mirror{backend: backend}
}

// fetchObject retrieves the object at key into destDir under its base
// name, returning "", nil (no error) when the object is simply absent
// from the mirror — callers treat a missing sidecar as optional.
func (m *Mirror) fetchObject(ctx context.Context, key, destDir string) (string, error) {
	exists, err := m.backend.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("checking mirror for %q: %w", key, err)
	}
	if !exists {
		return "", nil
	}

	body, err := m.backend.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("fetching %q from mirror: %w", key, err)
	}
	defer body.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("creating mirror dest %q: %w", destDir, err)
	}
	destPath := filepath.Join(destDir, filepath.Base(key))
	out, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("creating %q: %w", destPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, body); err != nil {
		return "", fmt.Errorf("writing mirror content to %q: %w", destPath, err)
	}
	return destPath, nil
}

// arxivURLPattern pulls the arXiv identifier (e.g. "2104.08223") out of
// either an abstract-page or direct-pdf URL.
var arxivURLPattern = regexp.MustCompile(`arxiv\.org/(?:abs|pdf)/([\w.\-/]+?)(?:v\d+)?(?:\.pdf)?/?$`)

// ArxivID extracts the arXiv identifier from a location URL, if any.
func ArxivID(rawURL string) (string, bool) {
	m := arxivURLPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// PlosID derives the PLOS mirror's object key stem from a DOI, since
// PLOS DOIs (10.1371/journal.pone.0123456) are already the mirror's
// natural flat namespace once the slash is replaced with an underscore.
func PlosID(doi string) (string, bool) {
	if doi == "" || !strings.Contains(doi, "journal.p") {
		return "", false
	}
	return strings.ReplaceAll(doi, "/", "_"), true
}

// FetchArxiv retrieves the PDF, LaTeX source zip, and JSON metadata
// sidecar for an arXiv identifier, merging the sidecar into
// r.Arxiv — spec.md §4.3 "For arXiv this also fetches the LaTeX
// sources (.zip) and a metadata sidecar merged into record.arxiv".
func (m *Mirror) FetchArxiv(ctx context.Context, r *record.Record, id, destDir string) (*Outcome, error) {
	pdfPath, err := m.fetchObject(ctx, id+".pdf", destDir)
	if err != nil {
		return nil, err
	}
	if pdfPath == "" {
		return nil, fmt.Errorf("arxiv mirror: no pdf object for %q", id)
	}

	zipPath, err := m.fetchObject(ctx, id+".zip", destDir)
	if err != nil {
		return nil, err
	}

	metaPath, err := m.fetchObject(ctx, id+".json", destDir)
	if err != nil {
		return nil, err
	}
	if metaPath != "" {
		mergeJSONSidecar(metaPath, &r.Arxiv)
	}

	return &Outcome{PDFPath: pdfPath, ZipPath: zipPath}, nil
}

// FetchPlos retrieves the PDF, JATS XML, pre-converted TEI XML, and an
// existing software-mentions JSON for a PLOS identifier — spec.md §4.3
// "For PLOS this additionally fetches the JATS XML, a pre-converted
// TEI XML, and an existing software-mentions JSON".
func (m *Mirror) FetchPlos(ctx context.Context, id, destDir string) (*Outcome, error) {
	pdfPath, err := m.fetchObject(ctx, id+".pdf", destDir)
	if err != nil {
		return nil, err
	}
	if pdfPath == "" {
		return nil, fmt.Errorf("plos mirror: no pdf object for %q", id)
	}

	jatsPath, err := m.fetchObject(ctx, id+".jats.xml", destDir)
	if err != nil {
		return nil, err
	}
	teiPath, err := m.fetchObject(ctx, id+".pub2tei.tei.xml", destDir)
	if err != nil {
		return nil, err
	}
	softwarePath, err := m.fetchObject(ctx, id+".software.json", destDir)
	if err != nil {
		return nil, err
	}

	return &Outcome{
		PDFPath:          pdfPath,
		XMLPath:          jatsPath,
		TEIPath:          teiPath,
		SoftwareJSONPath: softwarePath,
	}, nil
}

// mergeJSONSidecar decodes the JSON object at path and merges its keys
// into *dst, initializing it if nil. Decode failures are ignored: a
// malformed metadata sidecar shouldn't fail an otherwise-successful
// mirror fetch.
func mergeJSONSidecar(path string, dst *map[string]any) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return
	}
	if *dst == nil {
		*dst = map[string]any{}
	}
	for k, v := range parsed {
		(*dst)[k] = v
	}
}
