package orchestrator

import (
	"strings"

	"github.com/kermitt2/oa-harvester/internal/record"
)

// These host substrings recognize arXiv/PMC/PLOS locations for the
// precedence rules in spec.md §4.2.
const (
	pmcHostPattern   = "ncbi.nlm.nih.gov/pmc"
	arxivHostPattern = "arxiv.org"
	plosHostPattern  = "plos.org"
)

// PrecedenceOptions carries the mirror configuration the selection rules
// consult, decoupled from the config package.
type PrecedenceOptions struct {
	PMCMirrorEnabled   bool
	PrioritizePMC      bool
	ArxivMirrorEnabled bool
	PlosMirrorEnabled  bool
}

// selectBestLocation implements spec.md §4.2's six-step precedence,
// returning the chosen location and the remaining PDF-bearing locations
// (in original order, excluding the chosen one) as alternatives.
func selectBestLocation(r *record.Record, opts PrecedenceOptions) (record.Location, []record.Location) {
	all := append([]record.Location{}, r.OALocations...)
	if r.BestOALocation.HasPDF() {
		found := false
		for _, l := range all {
			if l == r.BestOALocation {
				found = true
				break
			}
		}
		if !found {
			all = append([]record.Location{r.BestOALocation}, all...)
		}
	}

	var chosen *record.Location

	if opts.PMCMirrorEnabled && opts.PrioritizePMC {
		chosen = firstMatching(all, pmcHostPattern, false)
	}
	if chosen == nil && opts.ArxivMirrorEnabled {
		chosen = firstMatching(all, arxivHostPattern, true)
	}
	if chosen == nil && opts.PlosMirrorEnabled {
		chosen = firstMatching(all, plosHostPattern, false)
	}
	if chosen == nil && r.BestOALocation.HasPDF() {
		best := r.BestOALocation
		chosen = &best
	}
	if chosen == nil {
		for i := range all {
			if all[i].IsBest && all[i].HasPDF() {
				chosen = &all[i]
				break
			}
		}
	}
	if chosen == nil {
		for i := range all {
			if all[i].HasPDF() {
				chosen = &all[i]
				break
			}
		}
	}
	if chosen == nil {
		return record.Location{}, nil
	}

	var alternatives []record.Location
	for _, l := range all {
		if l == *chosen {
			continue
		}
		if l.HasPDF() {
			alternatives = append(alternatives, l)
		}
	}
	return *chosen, alternatives
}

// firstMatching returns the first location whose relevant URL field
// contains pattern. anyURL selects whether the match is checked against
// the landing-page URL in addition to the PDF URL (arXiv's own host
// pattern appears as commonly in url as in url_for_pdf).
func firstMatching(locations []record.Location, pattern string, anyURL bool) *record.Location {
	for i := range locations {
		l := locations[i]
		if strings.Contains(l.URLForPDF, pattern) {
			return &l
		}
		if anyURL && strings.Contains(l.URL, pattern) {
			return &l
		}
	}
	return nil
}
