package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kermitt2/oa-harvester/internal/record"
)

// PMCInput reads the plain TSV list file PMC publishes for its
// full-text bundles, per spec.md §6 "Input catalogue (PMC)": a header
// line to skip, then columns subpath, (ignored), pmcid, pmid with an
// optional "PMID:" colon prefix.
type PMCInput struct {
	path    string
	pmcBase string
}

// NewPMCInput builds an Input over the TSV file at path; pmcBase is
// prefixed onto each row's subpath column to build the full download
// URL.
func NewPMCInput(path, pmcBase string) *PMCInput {
	return &PMCInput{path: path, pmcBase: pmcBase}
}

func (in *PMCInput) Count(ctx context.Context) (int, error) {
	f, err := os.Open(in.path)
	if err != nil {
		return 0, fmt.Errorf("opening pmc input %q: %w", in.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return countLines(scanner, true)
}

func (in *PMCInput) Lines(ctx context.Context) (<-chan Line, error) {
	f, err := os.Open(in.path)
	if err != nil {
		return nil, fmt.Errorf("opening pmc input %q: %w", in.path, err)
	}

	out := make(chan Line)
	go func() {
		defer f.Close()
		defer close(out)

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		pos := 0
		header := true
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if header {
				header = false
				continue
			}

			line := Line{Position: pos}
			cols := strings.Split(scanner.Text(), "\t")
			if len(cols) < 4 {
				line.Err = fmt.Errorf("parsing pmc line %d: expected at least 4 columns, got %d", pos, len(cols))
			} else {
				subpath := cols[0]
				pmcid := cols[2]
				pmid := strings.TrimPrefix(cols[3], "PMID:")
				line.Record = &record.Record{
					PMCID: pmcid,
					PMID:  pmid,
					BestOALocation: record.Location{
						URLForPDF: in.pmcBase + subpath,
						IsBest:    true,
					},
				}
			}

			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
			pos++
		}
	}()
	return out, nil
}
