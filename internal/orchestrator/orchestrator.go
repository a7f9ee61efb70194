// Package orchestrator drives the end-to-end harvest described in
// spec.md §4.2: streaming ingestion, dedup against the index, batch
// assembly, a parallel download phase, a serial index-write phase, and
// a parallel upload phase — adapted from operator-controller's
// reconcile-loop discipline of "gather, then commit on one thread,
// then act" but generalized from a single-object reconcile to a
// many-record batch pipeline.
package orchestrator

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"go.uber.org/zap"

	"github.com/kermitt2/oa-harvester/internal/downloader"
	"github.com/kermitt2/oa-harvester/internal/index"
	"github.com/kermitt2/oa-harvester/internal/metadata"
	"github.com/kermitt2/oa-harvester/internal/record"
	"github.com/kermitt2/oa-harvester/internal/storage"
	"github.com/kermitt2/oa-harvester/internal/thumbnail"
)

// workerTimeout bounds every individual download-phase and upload-phase
// Pool job, per spec.md §5: "Per-worker timeout is 30 s wall clock for
// the download phase and 30 s for the upload phase." Pool's own ctx is
// only canceled by process shutdown, so each job wraps it with its own
// deadline here rather than relying on Pool to enforce one.
const workerTimeout = 30 * time.Second

// errTimeout marks a batchItem failure as a worker-timeout rather than
// an ordinary transport/upload error, so classifyError can record the
// distinct "timeout" error code spec.md §5 calls for.
var errTimeout = errors.New("worker timed out")

// Options configures a single Run, mirroring the CLI flags in spec.md §6.
type Options struct {
	Reprocess        bool
	Sample           int
	ThumbnailEnabled bool
	Compression      bool
	BatchSize        int
	Workers          int
	WorkDir          string
	Precedence       PrecedenceOptions
}

// Orchestrator wires together the index, downloader, metadata resolver,
// storage backend, and optional thumbnail generator into the batch
// pipeline.
type Orchestrator struct {
	idx        *index.Index
	downloader *downloader.Downloader
	resolver   *metadata.Resolver
	backend    storage.Backend
	thumbGen   *thumbnail.Generator
	logger     *zap.Logger
	counters   *Counters
}

// New builds an Orchestrator. resolver, backend, and thumbGen may be
// nil when the corresponding feature is unconfigured; the orchestrator
// skips the associated step rather than failing.
func New(idx *index.Index, d *downloader.Downloader, resolver *metadata.Resolver, backend storage.Backend, thumbGen *thumbnail.Generator, logger *zap.Logger, counters *Counters) *Orchestrator {
	return &Orchestrator{idx: idx, downloader: d, resolver: resolver, backend: backend, thumbGen: thumbGen, logger: logger, counters: counters}
}

// Run streams in, assembling and processing batches until exhausted.
func (o *Orchestrator) Run(ctx context.Context, in Input, opts Options) error {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 12
	}

	total, err := in.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting input lines: %w", err)
	}

	var sampleSet map[int]bool
	if opts.Sample > 0 && opts.Sample < total {
		sampleSet = drawSample(opts.Sample, total)
	}

	progress := mpb.New(mpb.WithWidth(40))
	bar := progress.AddBar(int64(total),
		mpb.PrependDecorators(decor.Name("harvest", decor.WC{W: 10})),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
	)
	defer progress.Wait()

	lines, err := in.Lines(ctx)
	if err != nil {
		return fmt.Errorf("opening input stream: %w", err)
	}

	var batch []*record.Record
	for line := range lines {
		bar.Increment()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if sampleSet != nil && !sampleSet[line.Position] {
			continue
		}
		if line.Err != nil {
			if o.logger != nil {
				o.logger.Warn("skipping unparsable input line", zap.Int("position", line.Position), zap.Error(line.Err))
			}
			continue
		}

		r := line.Record
		o.counters.Processed.Inc()

		identifier := r.PrimaryIdentifier()
		if identifier == "" {
			continue
		}

		existingID, found, err := o.idx.LookupIdentifier(identifier)
		if err != nil {
			return fmt.Errorf("looking up identifier %q: %w", identifier, err)
		}
		if found {
			if !opts.Reprocess {
				o.counters.SkippedExisting.Inc()
				continue
			}
			entry, entryFound, err := o.idx.GetEntry(existingID)
			if err != nil {
				return fmt.Errorf("reading existing entry %s: %w", existingID, err)
			}
			if entryFound && entry.HasResource(record.ResourcePDF) {
				o.counters.SkippedExisting.Inc()
				continue
			}
			r.ID = existingID
		} else {
			r.ID = uuid.New()
			if err := o.idx.PutIdentifierMapping(identifier, r.ID); err != nil {
				return fmt.Errorf("committing identifier mapping for %q: %w", identifier, err)
			}
		}

		best, alternatives := selectBestLocation(r, opts.Precedence)
		if !best.HasPDF() {
			continue
		}
		o.counters.UsablePDFURL.Inc()
		r.BestOALocation = best
		r.AlternativeOALocations = alternatives

		batch = append(batch, r)
		if len(batch) >= opts.BatchSize {
			if err := o.processBatch(ctx, batch, opts); err != nil {
				return err
			}
			batch = nil
		}
	}
	if len(batch) > 0 {
		if err := o.processBatch(ctx, batch, opts); err != nil {
			return err
		}
	}
	return nil
}

// drawSample draws n sorted line positions uniformly with replacement
// from [0, total), per spec.md §4.2 step 2, deduplicating into a set
// implementers can test membership against in O(1).
func drawSample(n, total int) map[int]bool {
	picks := make([]int, n)
	for i := range picks {
		picks[i] = rand.IntN(total)
	}
	sort.Ints(picks)

	set := make(map[int]bool, n)
	for _, p := range picks {
		set[p] = true
	}
	return set
}

// batchItem tracks one record's progress through the download, index-
// write, and upload phases.
type batchItem struct {
	record         *record.Record
	outcome        *downloader.Outcome
	failErr        error
	thumbnailsMade bool
}

func (o *Orchestrator) processBatch(ctx context.Context, batch []*record.Record, opts Options) error {
	downloadResults := Pool(ctx, opts.Workers, batch, func(ctx context.Context, r *record.Record) (*batchItem, error) {
		item := &batchItem{record: r}
		jobCtx, cancel := context.WithTimeout(ctx, workerTimeout)
		defer cancel()

		outcome, err := o.downloader.Fetch(jobCtx, r)
		if err != nil {
			item.failErr = timeoutAware(jobCtx, err)
			return item, nil
		}
		if outcome == nil {
			if jobCtx.Err() != nil {
				item.failErr = fmt.Errorf("%w: download of %s", errTimeout, r.ID)
			} else {
				item.failErr = fmt.Errorf("no transport succeeded for %s", r.ID)
			}
			return item, nil
		}
		item.outcome = outcome

		if o.resolver != nil {
			if err := o.resolver.Resolve(jobCtx, r); err != nil && o.logger != nil {
				o.logger.Warn("metadata lookup failed", zap.String("record", r.ID.String()), zap.Error(err))
			}
		}
		return item, nil
	})

	items := make([]*batchItem, len(downloadResults))
	for i, res := range downloadResults {
		items[i] = res.Value
	}

	if err := o.writeIndex(items); err != nil {
		return err
	}

	// A failed record's per-UUID work directory is never visited by the
	// upload phase (uploadOne, whose last step removes it, only runs
	// over items with failErr == nil), so it has to be cleaned up here
	// instead — per spec.md §4.2's failure-path "delete any zero-byte
	// artifact files" and the §8 "no orphan temp files" invariant.
	for _, item := range items {
		if item.failErr == nil {
			continue
		}
		workItemDir := filepath.Join(opts.WorkDir, item.record.ID.String())
		if err := os.RemoveAll(workItemDir); err != nil && o.logger != nil {
			o.logger.Warn("cleaning up failed record's work directory",
				zap.String("record", item.record.ID.String()), zap.Error(err))
		}
	}

	thumbnailsWanted := opts.ThumbnailEnabled && o.thumbGen != nil
	if o.backend != nil || thumbnailsWanted {
		uploadable := make([]*batchItem, 0, len(items))
		for _, item := range items {
			if item.failErr == nil {
				uploadable = append(uploadable, item)
			}
		}
		results := Pool(ctx, opts.Workers, uploadable, func(ctx context.Context, item *batchItem) (*batchItem, error) {
			jobCtx, cancel := context.WithTimeout(ctx, workerTimeout)
			defer cancel()
			if err := o.uploadOne(jobCtx, item, opts); err != nil && o.logger != nil {
				o.logger.Error("upload failed, record retains local resources entry despite missing remote object",
					zap.String("record", item.record.ID.String()), zap.Error(timeoutAware(jobCtx, err)))
			}
			return item, nil
		})

		// A second, serial index update marks the thumbnails resource
		// for records whose thumbnail generation succeeded during the
		// parallel upload phase — this pass, like writeIndex, runs
		// only on the orchestrator thread, per spec.md §5's
		// single-writer discipline.
		for _, res := range results {
			item := res.Value
			if item == nil || !item.thumbnailsMade {
				continue
			}
			item.record.ValidThumbnails = true
			entry, found, err := o.idx.GetEntry(item.record.ID)
			if err != nil {
				return fmt.Errorf("reading entry %s to record thumbnails: %w", item.record.ID, err)
			}
			if !found {
				continue
			}
			if !entry.HasResource(record.ResourceThumbnails) {
				entry.Resources = append(entry.Resources, record.ResourceThumbnails)
			}
			if err := o.idx.PutEntry(item.record.ID, entry); err != nil {
				return fmt.Errorf("writing thumbnails resource for %s: %w", item.record.ID, err)
			}
		}
	}

	return nil
}

// writeIndex performs the serial index-write phase between the download
// and upload phases, per spec.md §4.2 and §5's single-writer discipline.
func (o *Orchestrator) writeIndex(items []*batchItem) error {
	for _, item := range items {
		r := item.record
		var resources []record.Resource
		resources = append(resources, record.ResourceJSON)

		if item.failErr == nil && item.outcome != nil {
			if item.outcome.PDFPath != "" {
				resources = append(resources, record.ResourcePDF)
			}
			if item.outcome.XMLPath != "" {
				resources = append(resources, record.ResourceXML)
			}
		}

		oaLink := ""
		if item.outcome != nil {
			oaLink = item.outcome.OALink
		}
		entry := record.NewCatalogueEntry(r, resources, oaLink)

		if err := o.idx.PutEntry(r.ID, entry); err != nil {
			return fmt.Errorf("writing entry %s: %w", r.ID, err)
		}

		if item.failErr != nil {
			if err := o.idx.PutFail(r.ID, classifyError(item.failErr)); err != nil {
				return fmt.Errorf("writing failure %s: %w", r.ID, err)
			}
			o.counters.Failed.Inc()
		} else if entry.HasFulltext() {
			if err := o.idx.DeleteFail(r.ID); err != nil {
				return fmt.Errorf("clearing failure %s: %w", r.ID, err)
			}
		}
	}
	return nil
}

// timeoutAware rewrites err as errTimeout-wrapped when jobCtx's deadline
// is what actually ended the call, so a transport error that merely
// raced the deadline isn't misreported as an ordinary failure.
func timeoutAware(jobCtx context.Context, err error) error {
	if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", errTimeout, err)
	}
	return err
}

// classifyError reduces a Go error into the short error-code string the
// original harvester stores in fail[uuid], per spec.md §7's taxonomy,
// distinguishing the worker-timeout case spec.md §5 calls for from an
// ordinary transport/upload failure.
func classifyError(err error) string {
	if errors.Is(err, errTimeout) {
		return "timeout_error: " + err.Error()
	}
	return "download_error: " + err.Error()
}

func (o *Orchestrator) uploadOne(ctx context.Context, item *batchItem, opts Options) error {
	r := item.record
	destDir := filepath.Dir(item.outcome.PDFPath)
	if destDir == "." && item.outcome.XMLPath != "" {
		destDir = filepath.Dir(item.outcome.XMLPath)
	}

	var thumbPaths map[thumbnail.Size]string
	if opts.ThumbnailEnabled && o.thumbGen != nil && item.outcome.PDFPath != "" {
		paths, err := o.thumbGen.Generate(ctx, item.outcome.PDFPath, destDir, r.ID.String())
		if err != nil {
			if o.logger != nil {
				o.logger.Warn("thumbnail generation failed", zap.String("record", r.ID.String()), zap.Error(err))
			}
		} else {
			thumbPaths = paths
			item.thumbnailsMade = true
		}
	}

	if o.backend != nil {
		for _, path := range []string{item.outcome.PDFPath, item.outcome.XMLPath} {
			if path == "" {
				continue
			}
			if err := o.uploadArtifact(ctx, r.ID.String(), filepath.Ext(path), path, opts.Compression); err != nil {
				return err
			}
		}
		// Mirror-only sidecars (spec.md §4.3 "Mirror shortcuts"): the
		// LaTeX source zip and PLOS's pre-converted TEI/software-mentions
		// files. Uploaded uncompressed; a .zip is already compressed and
		// the TEI/JSON sidecars are small enough not to bother.
		for suffix, path := range map[string]string{
			".zip":             item.outcome.ZipPath,
			".pub2tei.tei.xml": item.outcome.TEIPath,
			".software.json":   item.outcome.SoftwareJSONPath,
		} {
			if path == "" {
				continue
			}
			if err := o.uploadArtifact(ctx, r.ID.String(), suffix, path, false); err != nil {
				return err
			}
		}
		// Each thumbnail size needs its own storage suffix
		// (-thumb-<size>.png, per spec.md §6's path layout) — using
		// filepath.Ext here would collapse all three sizes onto the
		// same ".png" key and each upload would overwrite the last.
		for size, path := range thumbPaths {
			suffix := fmt.Sprintf("-thumb-%s.png", size)
			if err := o.uploadArtifact(ctx, r.ID.String(), suffix, path, opts.Compression); err != nil {
				return err
			}
		}
	}

	// Local temp files for this UUID are no longer needed once upload
	// completes (or is skipped because no backend is configured): the
	// whole per-record work directory is removed, per spec.md §4.2
	// "upload-or-copy ... and deletion of all local temp files for
	// that UUID" and the "no orphan temp files" invariant in §8.
	return os.RemoveAll(destDir)
}

// compressedName appends ".gz" to the full artifact name, never
// inserting it mid-name — the single helper SPEC_FULL.md's Open
// Question decision requires every sidecar-compression call site to go
// through.
func compressedName(path string) string {
	return path + ".gz"
}

func (o *Orchestrator) uploadArtifact(ctx context.Context, id, suffix, localPath string, compress bool) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening artifact %q: %w", localPath, err)
	}
	defer f.Close()

	storageKey := storage.ShardedPath(id, suffix)

	var body io.Reader = f
	size, err := fileSize(f)
	if err != nil {
		return err
	}

	if compress {
		tmp, err := os.CreateTemp("", "oa-harvester-gz-*")
		if err != nil {
			return fmt.Errorf("creating compression temp file: %w", err)
		}
		defer os.Remove(tmp.Name())
		defer tmp.Close()

		gz := gzip.NewWriter(tmp)
		if _, err := io.Copy(gz, f); err != nil {
			return fmt.Errorf("compressing %q: %w", localPath, err)
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("finalizing compression of %q: %w", localPath, err)
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewinding compressed artifact: %w", err)
		}
		info, err := tmp.Stat()
		if err != nil {
			return fmt.Errorf("stat compressed artifact: %w", err)
		}
		body, size = tmp, info.Size()
		storageKey = compressedName(storageKey)
	}

	if err := o.backend.Put(ctx, storageKey, body, size); err != nil {
		return fmt.Errorf("uploading %q to %q: %w", localPath, storageKey, err)
	}
	return nil
}

func fileSize(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %q: %w", f.Name(), err)
	}
	return info.Size(), nil
}
