package orchestrator

import (
	"bufio"
	"context"

	"github.com/kermitt2/oa-harvester/internal/record"
)

// Line is one parsed input row, paired with its 0-based position among
// the source file's data lines so the orchestrator can test it against
// the sample set. Every row is parsed before it is sent, selected or
// not.
type Line struct {
	Position int
	Record   *record.Record
	Err      error
}

// Input streams an ingestion source (Unpaywall JSONL or PMC TSV) line
// by line. Count must be cheap enough to call before Lines, since the
// orchestrator uses it to size the progress bar and to draw the sample
// set.
type Input interface {
	// Count scans the source once, returning the number of data lines
	// it carries (excluding any header).
	Count(ctx context.Context) (int, error)
	// Lines streams parsed records in order, sending one Line per
	// input row (Line.Err set on a parse failure; the row is still
	// counted and skipped, never fatal to the run).
	Lines(ctx context.Context) (<-chan Line, error)
}

// countLines scans r line by line using bufio.Scanner, the same
// mechanism both input readers use for their Count implementation, so a
// compressed multi-hundred-million-line file is never loaded into
// memory at once.
func countLines(scanner *bufio.Scanner, skipHeader bool) (int, error) {
	n := 0
	first := true
	for scanner.Scan() {
		if first && skipHeader {
			first = false
			continue
		}
		first = false
		n++
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return n, nil
}
