// Package metadata resolves the strong identifiers and bibliographic
// fields a bare DOI or PMCID doesn't carry, following a lookup chain
// modeled on the original harvester's biblio-glutton-first, crossref-
// fallback resolution (see original_source/biblio_glutton_harvester).
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gregjones/httpcache"

	"github.com/kermitt2/oa-harvester/internal/record"
)

// requestTimeout bounds every glutton/crossref lookup so a slow
// metadata endpoint can never hang its Pool worker indefinitely, per
// spec.md §5's per-worker timeout discipline.
const requestTimeout = 30 * time.Second

// Resolver looks up and backfills identifiers/bibliographic fields onto
// a Record via a bibliographic lookup service chain.
type Resolver struct {
	client        *http.Client
	gluttonBase   string
	crossrefBase  string
	crossrefEmail string
}

// New builds a Resolver. gluttonBase and crossrefBase are the
// configured service roots (config.Metadata); either may be empty to
// skip that stage of the chain.
func New(gluttonBase, crossrefBase, crossrefEmail string) *Resolver {
	client := httpcache.NewMemoryCacheTransport().Client()
	client.Timeout = requestTimeout
	return &Resolver{
		client:        client,
		gluttonBase:   gluttonBase,
		crossrefBase:  crossrefBase,
		crossrefEmail: crossrefEmail,
	}
}

// gluttonResponse is the subset of biblio-glutton's lookup payload the
// harvester consumes; fields outside it are discarded when decoding.
type gluttonResponse struct {
	DOI         string `json:"DOI"`
	PMID        string `json:"PMID"`
	PMCID       string `json:"PMCID"`
	IstexID     string `json:"istexId"`
	Title       string `json:"title"`
	Year        int    `json:"year"`
	JournalName string `json:"journal"`
	Abstract    string `json:"abstract"`
}

// Resolve backfills r in place: strong identifiers it was missing, and
// the supplemented bibliographic projection fields (Title/Year/
// JournalName/Abstract), by walking biblio-glutton first and falling
// back to Crossref. A lookup miss (HTTP 404) at either stage is not an
// error; Resolve returns an error when a lookup fails outright: a
// transport failure after retries are exhausted, any other non-200
// status, or an undecodable response body.
func (m *Resolver) Resolve(ctx context.Context, r *record.Record) error {
	if m.gluttonBase != "" {
		resp, err := m.lookupGlutton(ctx, r)
		if err != nil {
			return fmt.Errorf("biblio-glutton lookup for %s: %w", r.PrimaryIdentifier(), err)
		}
		if resp != nil {
			applyGlutton(r, resp)
			return nil
		}
	}
	if m.crossrefBase != "" && r.DOI != "" {
		if err := m.lookupCrossref(ctx, r); err != nil {
			return fmt.Errorf("crossref lookup for %s: %w", r.DOI, err)
		}
	}
	return nil
}

func (m *Resolver) lookupGlutton(ctx context.Context, r *record.Record) (*gluttonResponse, error) {
	// Only one identifier is queried: the first present one in the
	// order DOI, then PMID, then PMCID, then ISTEX ID. A miss on it is
	// not retried with the next identifier.
	q := url.Values{}
	switch {
	case r.DOI != "":
		q.Set("doi", r.DOI)
	case r.PMID != "":
		q.Set("pmid", r.PMID)
	case r.PMCID != "":
		q.Set("pmc", r.PMCID)
	case r.IstexID != "":
		q.Set("istexid", r.IstexID)
	default:
		return nil, nil
	}
	reqURL := fmt.Sprintf("%s/lookup?%s", m.gluttonBase, q.Encode())

	var out *gluttonResponse
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := m.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			if resp.StatusCode >= 500 {
				return fmt.Errorf("transient status %d", resp.StatusCode)
			}
			return backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}

		var g gluttonResponse
		if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding glutton response: %w", err))
		}
		out = &g
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

func applyGlutton(r *record.Record, resp *gluttonResponse) {
	if r.DOI == "" {
		r.DOI = resp.DOI
	}
	if r.PMID == "" {
		r.PMID = resp.PMID
	}
	if r.PMCID == "" {
		r.PMCID = resp.PMCID
	}
	if r.IstexID == "" {
		r.IstexID = resp.IstexID
	}
	if r.Title == "" {
		r.Title = resp.Title
	}
	if r.Year == 0 {
		r.Year = resp.Year
	}
	if r.JournalName == "" {
		r.JournalName = resp.JournalName
	}
	if r.Abstract == "" {
		r.Abstract = resp.Abstract
	}

	r.Glutton = map[string]any{
		"doi":     resp.DOI,
		"pmid":    resp.PMID,
		"pmcid":   resp.PMCID,
		"istexId": resp.IstexID,
	}
}

type crossrefEnvelope struct {
	Message struct {
		Title     []string `json:"title"`
		Published struct {
			DateParts [][]int `json:"date-parts"`
		} `json:"published"`
		ContainerTitle []string `json:"container-title"`
		Abstract       string   `json:"abstract"`
	} `json:"message"`
}

func (m *Resolver) lookupCrossref(ctx context.Context, r *record.Record) error {
	reqURL := fmt.Sprintf("%s/works/%s", m.crossrefBase, url.PathEscape(r.DOI))
	if m.crossrefEmail != "" {
		reqURL += "?mailto=" + url.QueryEscape(m.crossrefEmail)
	}

	var env crossrefEnvelope
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := m.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			if resp.StatusCode >= 500 {
				return fmt.Errorf("transient status %d", resp.StatusCode)
			}
			return backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}
		return json.NewDecoder(resp.Body).Decode(&env)
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return err
	}

	if r.Title == "" && len(env.Message.Title) > 0 {
		r.Title = env.Message.Title[0]
	}
	if r.Year == 0 && len(env.Message.Published.DateParts) > 0 && len(env.Message.Published.DateParts[0]) > 0 {
		r.Year = env.Message.Published.DateParts[0][0]
	}
	if r.JournalName == "" && len(env.Message.ContainerTitle) > 0 {
		r.JournalName = env.Message.ContainerTitle[0]
	}
	if r.Abstract == "" {
		r.Abstract = env.Message.Abstract
	}
	return nil
}
