// Package catalogue implements the auxiliary whole-index operations:
// Dump, Reset, and Diagnostic, per spec.md §4.6. These read (or, for
// Reset, destroy) the index in full rather than touching a single
// record.
package catalogue

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/kermitt2/oa-harvester/internal/fsutil"
	"github.com/kermitt2/oa-harvester/internal/index"
	"github.com/kermitt2/oa-harvester/internal/record"
	"github.com/kermitt2/oa-harvester/internal/storage"
)

// DumpOptions configures Dump.
type DumpOptions struct {
	// Path is the primary dump output file.
	Path string
	// FailuresPath, if non-empty, receives only rows lacking both pdf
	// and xml resources.
	FailuresPath string
	// Compress gzips both outputs, per the `compression` config key.
	Compress bool
}

// Dump iterates entries and writes one JSON line per row to
// opts.Path (and, if configured, a filtered failures-only sibling),
// per spec.md §4.6.
func Dump(idx *index.Index, opts DumpOptions) error {
	primary, closePrimary, err := openDumpWriter(opts.Path, opts.Compress)
	if err != nil {
		return err
	}
	defer closePrimary()

	var failures io.Writer
	var closeFailures func() error
	if opts.FailuresPath != "" {
		failures, closeFailures, err = openDumpWriter(opts.FailuresPath, opts.Compress)
		if err != nil {
			return err
		}
		defer closeFailures()
	}

	return idx.Scan(index.MapEntries, func(key, value []byte) error {
		var entry record.CatalogueEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			return fmt.Errorf("decoding entry %q during dump: %w", key, err)
		}
		if _, err := primary.Write(append(value, '\n')); err != nil {
			return fmt.Errorf("writing dump line for %q: %w", key, err)
		}
		if failures != nil && !entry.HasFulltext() {
			if _, err := failures.Write(append(value, '\n')); err != nil {
				return fmt.Errorf("writing failures line for %q: %w", key, err)
			}
		}
		return nil
	})
}

func openDumpWriter(path string, compress bool) (io.Writer, func() error, error) {
	// Back up any existing dump to a .old sibling before overwriting,
	// per spec.md §4.6 "Back up any existing remote dump to a .old
	// sibling before uploading the new one".
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".old"); err != nil {
			return nil, nil, fmt.Errorf("backing up existing dump %q: %w", path, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating dump file %q: %w", path, err)
	}
	if !compress {
		return f, f.Close, nil
	}

	gz := gzip.NewWriter(f)
	return gz, func() error {
		if err := gz.Close(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}, nil
}

// Reset truncates all three index maps and removes local artifacts,
// per spec.md §4.6. It does not touch the S3 backend — deliberately,
// per §9's discussion of the reset/S3 interaction — but purges a
// configured Swift container if swiftPurger is non-nil.
func Reset(dbPath, dataDir string, swiftPurger func() error) error {
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing index file %q: %w", dbPath, err)
	}

	// Truncate every known artifact suffix and residual subdirectory
	// under the data directory, then recreate it empty so the caller's
	// next index.Open starts from a clean slate — spec.md §4.6 "delete
	// every file ... delete all residual subdirectories, reopen empty
	// maps".
	if err := fsutil.EnsureEmptyDirectory(dataDir, 0755); err != nil {
		return fmt.Errorf("clearing data directory %q: %w", dataDir, err)
	}

	if swiftPurger != nil {
		if err := swiftPurger(); err != nil {
			return fmt.Errorf("purging swift container: %w", err)
		}
	}
	return nil
}

// NewSwiftPurger adapts a storage.SwiftBackend into the purge callback
// Reset expects, keeping catalogue decoupled from the concrete storage
// backend type.
func NewSwiftPurger(backend *storage.SwiftBackend) func() error {
	if backend == nil {
		return nil
	}
	return backend.PurgeContainer
}

// Diagnostic prints the entries/failures summary spec.md §4.6 requires,
// colored via fatih/color for at-a-glance health: green when there are
// no failures, red otherwise.
func Diagnostic(idx *index.Index, w io.Writer) error {
	entries, fails, err := idx.Stats()
	if err != nil {
		return fmt.Errorf("reading index stats: %w", err)
	}

	fmt.Fprintf(w, "entries total: %d\n", entries)
	if fails == 0 {
		color.New(color.FgGreen).Fprintf(w, "failures total: %d\n", fails)
	} else {
		color.New(color.FgRed).Fprintf(w, "failures total: %d\n", fails)
	}
	return nil
}
