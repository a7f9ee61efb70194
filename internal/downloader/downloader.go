// Package downloader implements the harvester's multi-transport fetch
// chain: for each OA location, try a sequence of transports until one
// succeeds, then hand a successful tar.gz off to the archive extractor
// and any plain PDF/XML through validation.
//
// The Transport registry is modeled directly on operator-controller's
// internal/rukpak/source.Unpacker registry
// (map[rukpakapi.SourceType]Unpacker selected by bundle.Spec.Source.Type):
// here the registry key is a TransportKind instead of a SourceType, and
// Fetch takes the place of Unpack.
package downloader

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/kermitt2/oa-harvester/internal/archive"
	"github.com/kermitt2/oa-harvester/internal/fsutil"
	"github.com/kermitt2/oa-harvester/internal/record"
	"github.com/kermitt2/oa-harvester/internal/validate"
)

// TransportKind names one of the fetch strategies a Location can be
// retrieved with.
type TransportKind string

const (
	TransportScraper TransportKind = "scraper"
	TransportDirect  TransportKind = "direct"
	TransportCLI     TransportKind = "cli"
	TransportFTP     TransportKind = "ftp"
)

// Transport fetches the content at url into destPath, returning the
// number of bytes written.
type Transport interface {
	Fetch(ctx context.Context, url, destPath string) (int64, error)
}

// userAgents lists the rotation pool and its selection weights, mirroring
// the original harvester's practice of varying the client User-Agent to
// reduce the chance of being blocked by a publisher's bot defenses.
var userAgents = []struct {
	value  string
	weight float64
}{
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36", 0.2},
	{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15", 0.3},
	{"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36", 0.5},
}

// pickUserAgent returns a weighted-random entry from userAgents.
func pickUserAgent() string {
	r := rand.Float64()
	var cumulative float64
	for _, ua := range userAgents {
		cumulative += ua.weight
		if r <= cumulative {
			return ua.value
		}
	}
	return userAgents[len(userAgents)-1].value
}

// Downloader orchestrates transport fallback, archive extraction, and
// validation for a single record's best-OA-location download.
type Downloader struct {
	transports []TransportKind
	registry   map[TransportKind]Transport
	workDir    string
	logger     *zap.Logger

	arxivMirror *Mirror
	plosMirror  *Mirror
}

// New builds a Downloader that tries transports in the given order,
// writing temporary artifacts under workDir.
func New(registry map[TransportKind]Transport, order []TransportKind, workDir string, logger *zap.Logger) *Downloader {
	return &Downloader{transports: order, registry: registry, workDir: workDir, logger: logger}
}

// SetMirrors configures the arXiv and PLOS mirror shortcuts (spec.md
// §4.3 "Mirror shortcuts"); either may be nil to leave that mirror
// disabled, in which case matching records fall through to the normal
// transport chain.
func (d *Downloader) SetMirrors(arxiv, plos *Mirror) {
	d.arxivMirror = arxiv
	d.plosMirror = plos
}

// Outcome reports what a Fetch call produced.
type Outcome struct {
	PDFPath string
	XMLPath string
	OALink  string

	// Mirror-only sidecars (spec.md §4.3 "Mirror shortcuts").
	ZipPath          string
	TEIPath          string
	SoftwareJSONPath string
}

// Fetch attempts to retrieve r's best OA location, then its
// alternatives in order, stopping at the first transport/URL pairing
// that produces a validated artifact. It returns nil, nil when every
// location and transport has been exhausted without success — callers
// record that as a failure, not an error.
func (d *Downloader) Fetch(ctx context.Context, r *record.Record) (*Outcome, error) {
	locations := append([]record.Location{r.BestOALocation}, r.AlternativeOALocations...)
	destDir := filepath.Join(d.workDir, r.ID.String())
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("creating download dir for %s: %w", r.ID, err)
	}

	if outcome, ok := d.tryMirrors(ctx, r, destDir); ok {
		return outcome, nil
	}

	var lastErr error
	for _, loc := range locations {
		url := loc.URLForPDF
		if url == "" {
			url = loc.URL
		}
		if url == "" {
			continue
		}
		for _, kind := range d.orderFor(url) {
			transport, ok := d.registry[kind]
			if !ok {
				continue
			}
			outcome, err := d.tryOne(ctx, transport, url, destDir)
			if err != nil {
				lastErr = err
				if d.logger != nil {
					d.logger.Debug("transport attempt failed",
						zap.String("record", r.ID.String()),
						zap.String("transport", string(kind)),
						zap.String("url", url),
						zap.Error(err))
				}
				continue
			}
			outcome.OALink = url
			r.ValidFulltextPDF = outcome.PDFPath != ""
			r.ValidFulltextXML = outcome.XMLPath != ""
			return outcome, nil
		}
	}
	if lastErr != nil && d.logger != nil {
		d.logger.Info("all transports exhausted", zap.String("record", r.ID.String()), zap.Error(lastErr))
	}
	return nil, nil
}

// tryMirrors checks r against the configured arXiv/PLOS mirrors before
// the transport chain runs, bypassing the web download entirely when a
// match is present in the mirror (spec.md §4.3 "Mirror shortcuts"). The
// bool return reports whether a mirror supplied the record — a mirror
// miss (identifier matched but object absent) returns false just like
// no mirror match at all, so the record falls through to the normal
// transport chain rather than failing outright, since the publisher's
// site may still serve it.
func (d *Downloader) tryMirrors(ctx context.Context, r *record.Record, destDir string) (*Outcome, bool) {
	if d.arxivMirror != nil {
		for _, loc := range append([]record.Location{r.BestOALocation}, r.AlternativeOALocations...) {
			url := loc.URLForPDF
			if url == "" {
				url = loc.URL
			}
			id, ok := ArxivID(url)
			if !ok {
				continue
			}
			outcome, err := d.arxivMirror.FetchArxiv(ctx, r, id, destDir)
			if err != nil {
				if d.logger != nil {
					d.logger.Debug("arxiv mirror miss", zap.String("record", r.ID.String()), zap.String("arxiv_id", id), zap.Error(err))
				}
				break
			}
			outcome.OALink = url
			return outcome, true
		}
	}

	if d.plosMirror != nil {
		if id, ok := PlosID(r.DOI); ok {
			outcome, err := d.plosMirror.FetchPlos(ctx, id, destDir)
			if err != nil {
				if d.logger != nil {
					d.logger.Debug("plos mirror miss", zap.String("record", r.ID.String()), zap.String("plos_id", id), zap.Error(err))
				}
				return nil, false
			}
			outcome.OALink = "plos-mirror:" + id
			return outcome, true
		}
	}

	return nil, false
}

// orderFor picks the transport sequence for url per spec.md §4.3's
// "Transport order": ftp:// URLs only ever try the ftp transport then
// the external CLI fetcher; every other scheme tries the registered
// chain minus ftp, which could never succeed against an http(s) URL.
func (d *Downloader) orderFor(rawURL string) []TransportKind {
	isFTP := strings.HasPrefix(strings.ToLower(rawURL), "ftp://")
	out := make([]TransportKind, 0, len(d.transports))
	for _, kind := range d.transports {
		switch {
		case isFTP && kind != TransportFTP && kind != TransportCLI:
			continue
		case !isFTP && kind == TransportFTP:
			continue
		default:
			out = append(out, kind)
		}
	}
	return out
}

func (d *Downloader) tryOne(ctx context.Context, transport Transport, url, destDir string) (*Outcome, error) {
	fileName := filepath.Base(url)
	if fileName == "" || fileName == "/" {
		fileName = "download.bin"
	}
	destPath := filepath.Join(destDir, fileName)

	size, err := transport.Fetch(ctx, url, destPath)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		_ = fsutil.RemoveIfEmpty(destPath)
		return nil, fmt.Errorf("empty response for %q", url)
	}

	isArchive := strings.HasSuffix(strings.ToLower(fileName), ".tar.gz") || strings.HasSuffix(strings.ToLower(fileName), ".tgz")
	if !isArchive {
		// A publisher may serve a gzip-compressed payload under a
		// plain .pdf/.xml name; decompress in place before validation,
		// per spec.md §4.3 post-download step 1. A declared-gzip file
		// that fails to decompress marks the whole attempt failed and
		// the artifact is discarded, per spec.md §7's "Payload invalid"
		// taxonomy entry.
		if err := decompressIfGzipped(destPath); err != nil {
			_ = os.Remove(destPath)
			return nil, fmt.Errorf("decompressing declared-gzip payload from %q: %w", url, err)
		}
	}

	if isArchive {
		extracted, err := archive.Extract(destPath, destDir)
		if err != nil {
			return nil, fmt.Errorf("extracting archive from %q: %w", url, err)
		}
		if ok, err := validate.File(extracted.PDFPath, validate.KindPDF); err != nil || !ok {
			return nil, fmt.Errorf("validating extracted pdf from %q: %w", url, err)
		}
		return &Outcome{PDFPath: extracted.PDFPath, XMLPath: extracted.NXMLPath}, nil
	}

	if strings.HasSuffix(strings.ToLower(fileName), ".xml") || strings.HasSuffix(strings.ToLower(fileName), ".nxml") {
		if ok, err := validate.File(destPath, validate.KindXML); err != nil || !ok {
			_ = os.Remove(destPath)
			return nil, fmt.Errorf("validating xml from %q: %w", url, err)
		}
		return &Outcome{XMLPath: destPath}, nil
	}

	ok, err := validate.File(destPath, validate.KindPDF)
	if err != nil || !ok {
		_ = os.Remove(destPath)
		return nil, fmt.Errorf("validating pdf from %q: %w", url, err)
	}
	return &Outcome{PDFPath: destPath}, nil
}

// copyWithLimit is a small helper shared by the HTTP-based transports to
// stream a response body to disk without holding it all in memory.
func copyWithLimit(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, src)
}

// gzipMagic is the two-byte gzip member header, sniffed instead of
// trusting a server's declared Content-Type, matching the sniffing
// discipline internal/validate applies to every other downloaded kind.
var gzipMagic = []byte{0x1f, 0x8b}

// decompressIfGzipped replaces path in place with its decompressed
// contents when it sniffs as a gzip member, per spec.md §4.3 post-
// download step 1 ("If the payload's MIME type is application/gzip,
// decompress in place via a temp sibling file, replacing the
// original"). Non-gzip payloads are left untouched.
func decompressIfGzipped(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %q to sniff gzip: %w", path, err)
	}
	head := make([]byte, 2)
	n, _ := io.ReadFull(f, head)
	f.Close()
	if n < 2 || head[0] != gzipMagic[0] || head[1] != gzipMagic[1] {
		return nil
	}

	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reopening %q for decompression: %w", path, err)
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("reading gzip header of %q: %w", path, err)
	}
	defer gz.Close()

	tmpPath := path + ".decompressing"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating decompression sibling for %q: %w", path, err)
	}
	if _, err := io.Copy(tmp, gz); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("decompressing %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalizing decompression of %q: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing %q with decompressed content: %w", path, err)
	}
	return nil
}
