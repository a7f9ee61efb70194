package orchestrator

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kermitt2/oa-harvester/internal/record"
)

// UnpaywallInput reads a gzipped JSONL Unpaywall-format catalogue, per
// spec.md §6 "Input catalogue (Unpaywall)".
type UnpaywallInput struct {
	path string
}

// NewUnpaywallInput builds an Input over the gzipped JSONL file at path.
func NewUnpaywallInput(path string) *UnpaywallInput {
	return &UnpaywallInput{path: path}
}

func (in *UnpaywallInput) open() (*os.File, *gzip.Reader, error) {
	f, err := os.Open(in.path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening unpaywall input %q: %w", in.path, err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("reading gzip header of %q: %w", in.path, err)
	}
	return f, gz, nil
}

func (in *UnpaywallInput) Count(ctx context.Context) (int, error) {
	f, gz, err := in.open()
	if err != nil {
		return 0, err
	}
	defer f.Close()
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return countLines(scanner, false)
}

// unpaywallLine mirrors the JSON shape spec.md §6 documents for an
// Unpaywall catalogue line.
type unpaywallLine struct {
	DOI            string            `json:"doi"`
	BestOALocation *record.Location  `json:"best_oa_location"`
	OALocations    []record.Location `json:"oa_locations"`
}

func (in *UnpaywallInput) Lines(ctx context.Context) (<-chan Line, error) {
	f, gz, err := in.open()
	if err != nil {
		return nil, err
	}

	out := make(chan Line)
	go func() {
		defer f.Close()
		defer gz.Close()
		defer close(out)

		scanner := bufio.NewScanner(gz)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

		pos := 0
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			var parsed unpaywallLine
			line := Line{Position: pos}
			if err := json.Unmarshal(scanner.Bytes(), &parsed); err != nil {
				line.Err = fmt.Errorf("parsing unpaywall line %d: %w", pos, err)
			} else {
				r := &record.Record{DOI: parsed.DOI, OALocations: parsed.OALocations}
				if parsed.BestOALocation != nil {
					r.BestOALocation = *parsed.BestOALocation
				}
				line.Record = r
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
