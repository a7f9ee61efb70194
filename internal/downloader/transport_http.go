package downloader

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gregjones/httpcache"
)

// httpTransport is the shared implementation behind TransportScraper
// and TransportDirect: both fetch over plain HTTP(S), differing only in
// the User-Agent they send (the scraper variant rotates a weighted set
// of browser User-Agents; the direct variant sends a fixed identity and
// is used for publisher APIs that are fine with a plain, identified
// client). Neither paces its requests. Both skip certificate verification, per spec.md
// §4.3 Headers — publishers' OA mirrors not infrequently run with
// expired or self-signed certificates, and failing closed there would
// turn a transient cert problem into a permanent download failure.
type httpTransport struct {
	client      *http.Client
	rotateAgent bool
	identity    string
}

// newHTTPTransport builds an httpTransport backed by an httpcache-wrapped
// client, so repeated landing-page lookups within a run don't re-fetch
// unchanged responses.
func newHTTPTransport(rotateAgent bool, identity string) *httpTransport {
	base := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // spec.md §4.3: "skips certificate verification"
	}
	cached := &httpcache.Transport{Transport: base, Cache: httpcache.NewMemoryCache()}
	client := &http.Client{Transport: cached, Timeout: staticTimeout}
	return &httpTransport{
		client:      client,
		rotateAgent: rotateAgent,
		identity:    identity,
	}
}

// NewScraperTransport returns the Transport registered under
// TransportScraper: HTTP with rotating User-Agent headers, for
// publisher pages that rate-limit or block naive fetchers.
func NewScraperTransport() Transport {
	return newHTTPTransport(true, "")
}

// NewDirectTransport returns the Transport registered under
// TransportDirect: HTTP identifying as the harvester, for repositories
// (PMC, arXiv, institutional repositories) that welcome bulk clients.
func NewDirectTransport(identity string) Transport {
	return newHTTPTransport(false, identity)
}

func (t *httpTransport) Fetch(ctx context.Context, url, destPath string) (int64, error) {
	var size int64
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("building request for %q: %w", url, err))
		}
		if t.rotateAgent {
			req.Header.Set("User-Agent", pickUserAgent())
		} else if t.identity != "" {
			req.Header.Set("User-Agent", t.identity)
		}
		// Per spec.md §4.3 Headers: accept pdf, html, and any; accept
		// gzip/deflate explicitly so net/http doesn't auto-decompress
		// the body for us, leaving decompressIfGzipped to handle a
		// declared-gzip payload the way spec.md §4.3 post-download
		// step 1 describes.
		req.Header.Set("Accept", "application/pdf, text/html;q=0.9, */*;q=0.8")
		req.Header.Set("Accept-Encoding", "gzip, deflate")

		resp, err := t.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetching %q: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("transient status %d fetching %q", resp.StatusCode, url)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("permanent status %d fetching %q", resp.StatusCode, url))
		}

		out, err := os.Create(destPath)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating %q: %w", destPath, err))
		}
		defer out.Close()

		size, err = copyWithLimit(out, resp.Body)
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return 0, err
	}
	return size, nil
}

// staticTimeout is the per-request wall-clock bound spec.md §4.3
// "Timeouts" sets for HTTPS transport attempts.
const staticTimeout = 30 * time.Second
