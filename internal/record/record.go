// Package record defines the in-memory working object for a single
// harvested article and its compact, persisted projection.
package record

import "github.com/google/uuid"

// Location is a single Open-Access location for an article, as carried
// by the Unpaywall catalogue.
type Location struct {
	URL              string `json:"url,omitempty"`
	URLForPDF        string `json:"url_for_pdf,omitempty"`
	URLForLandingPage string `json:"url_for_landing_page,omitempty"`
	License          string `json:"license,omitempty"`
	IsBest           bool   `json:"is_best,omitempty"`
}

// HasPDF reports whether the location carries a usable PDF URL.
func (l Location) HasPDF() bool {
	return l.URLForPDF != ""
}

// Record is the mutable, in-memory unit of work for one article. It is
// assembled from a catalogue line, enriched by the Downloader, and
// projected into a CatalogueEntry once the batch completes.
type Record struct {
	ID uuid.UUID `json:"id"`

	DOI     string `json:"doi,omitempty"`
	PMID    string `json:"pmid,omitempty"`
	PMCID   string `json:"pmcid,omitempty"`
	IstexID string `json:"istexId,omitempty"`
	Ark     string `json:"ark,omitempty"`
	Pii     string `json:"pii,omitempty"`

	BestOALocation         Location   `json:"best_oa_location,omitempty"`
	AlternativeOALocations []Location `json:"alternative_oa_locations,omitempty"`
	OALocations            []Location `json:"oa_locations,omitempty"`

	// Glutton carries the metadata enrichment block set from a
	// successful bibliographic lookup: the response's doi, pmid, pmcid
	// and istexId values. The other fields of the response are not kept
	// here.
	Glutton map[string]any `json:"glutton,omitempty"`

	// Arxiv carries the keys of the arXiv mirror's JSON metadata sidecar
	// when the arXiv mirror shortcut was used.
	Arxiv map[string]any `json:"arxiv,omitempty"`

	// Supplemented bibliographic projection fields (see SPEC_FULL.md).
	// Populated opportunistically from the biblio-glutton or Crossref
	// lookup; never used for identification or dedup.
	Title       string `json:"title,omitempty"`
	Year        int    `json:"year,omitempty"`
	JournalName string `json:"journal_name,omitempty"`
	Abstract    string `json:"abstract,omitempty"`

	// Provenance flags: the fulltext flags are set by the Downloader once
	// a transport download has passed validation; ValidThumbnails is set
	// by the orchestrator once thumbnails were generated.
	ValidFulltextPDF bool `json:"valid_fulltext_pdf,omitempty"`
	ValidFulltextXML bool `json:"valid_fulltext_xml,omitempty"`
	ValidThumbnails  bool `json:"valid_thumbnails,omitempty"`
}

// PrimaryIdentifier returns the strong identifier used as the key into
// the ident map: DOI by default, falling back to PMCID for PMC-sourced
// input that carries no DOI.
func (r *Record) PrimaryIdentifier() string {
	if r.DOI != "" {
		return r.DOI
	}
	return r.PMCID
}

// StrongIdentifiers returns every non-empty strong identifier present on
// the record, used to populate a CatalogueEntry.
func (r *Record) StrongIdentifiers() map[string]string {
	out := map[string]string{}
	if r.DOI != "" {
		out["doi"] = r.DOI
	}
	if r.PMID != "" {
		out["pmid"] = r.PMID
	}
	if r.PMCID != "" {
		out["pmcid"] = r.PMCID
	}
	if r.IstexID != "" {
		out["istexId"] = r.IstexID
	}
	if r.Ark != "" {
		out["ark"] = r.Ark
	}
	if r.Pii != "" {
		out["pii"] = r.Pii
	}
	return out
}

// Resource names a kind of artifact that may be present for a record.
type Resource string

const (
	ResourceJSON       Resource = "json"
	ResourcePDF        Resource = "pdf"
	ResourceXML        Resource = "xml"
	ResourceThumbnails Resource = "thumbnails"
)

// CatalogueEntry is the compact projection of Record persisted in the
// index's entries bucket. The schema version lets future code detect
// the encoding generation a given entry was written with (see
// SPEC_FULL.md's note on replacing the original tool's pickle encoding).
type CatalogueEntry struct {
	SchemaVersion int               `json:"schema_version"`
	ID            uuid.UUID         `json:"id"`
	Identifiers   map[string]string `json:"identifiers,omitempty"`
	Resources     []Resource        `json:"resources"`
	License       string            `json:"license,omitempty"`
	OALink        string            `json:"oa_link,omitempty"`
}

const CurrentSchemaVersion = 1

// HasResource reports whether the entry lists the given resource.
func (e *CatalogueEntry) HasResource(r Resource) bool {
	for _, have := range e.Resources {
		if have == r {
			return true
		}
	}
	return false
}

// HasFulltext reports whether the entry has either a pdf or xml resource;
// entries without one are the rows Dump writes to its failures output.
func (e *CatalogueEntry) HasFulltext() bool {
	return e.HasResource(ResourcePDF) || e.HasResource(ResourceXML)
}

// NewCatalogueEntry projects a Record into its compact persisted form.
// resources is the set of artifacts the caller has already confirmed are
// present (validated) for this record.
func NewCatalogueEntry(r *Record, resources []Resource, oaLink string) *CatalogueEntry {
	return &CatalogueEntry{
		SchemaVersion: CurrentSchemaVersion,
		ID:            r.ID,
		Identifiers:   r.StrongIdentifiers(),
		Resources:     resources,
		License:       r.BestOALocation.License,
		OALink:        oaLink,
	}
}
