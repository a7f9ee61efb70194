// Command harvester drives the Open-Access harvest described in
// spec.md: given an Unpaywall or PMC catalogue, it resolves, fetches,
// validates, and uploads full-text articles, persisting progress in an
// embedded index so a run is safely resumable.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/kermitt2/oa-harvester/internal/catalogue"
	"github.com/kermitt2/oa-harvester/internal/config"
	"github.com/kermitt2/oa-harvester/internal/downloader"
	"github.com/kermitt2/oa-harvester/internal/fsutil"
	"github.com/kermitt2/oa-harvester/internal/index"
	"github.com/kermitt2/oa-harvester/internal/logging"
	"github.com/kermitt2/oa-harvester/internal/metadata"
	"github.com/kermitt2/oa-harvester/internal/orchestrator"
	"github.com/kermitt2/oa-harvester/internal/storage"
	"github.com/kermitt2/oa-harvester/internal/thumbnail"
	"go.uber.org/zap"
)

// zapErr wraps an error as the single log field passed alongside a fatal
// startup message, matching the rest of this file's one-error-field
// logging calls.
func zapErr(err error) zap.Field {
	return zap.Error(err)
}

// precedenceFromConfig translates the mirror-related configuration keys
// into the orchestrator's best-location precedence options (spec.md
// §4.2).
func precedenceFromConfig(cfg *config.Config) orchestrator.PrecedenceOptions {
	return orchestrator.PrecedenceOptions{
		PMCMirrorEnabled:   cfg.PMCMirrorEnabled(),
		PrioritizePMC:      cfg.Resources.PMC.PrioritizePMC,
		ArxivMirrorEnabled: cfg.ArxivMirrorEnabled(),
		PlosMirrorEnabled:  cfg.PlosMirrorEnabled(),
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		unpaywallPath string
		pmcPath       string
		configPath    string
		dumpPath      string
		reprocess     bool
		reset         bool
		thumbnailFlag bool
		sample        int
	)

	pflag.StringVar(&unpaywallPath, "unpaywall", "", "path to a gzipped Unpaywall JSONL catalogue")
	pflag.StringVar(&pmcPath, "pmc", "", "path to a PMC TSV list file")
	pflag.StringVar(&configPath, "config", "config.yaml", "path to the harvester configuration file")
	pflag.StringVar(&dumpPath, "dump", "", "dump the catalogue to the given path instead of harvesting")
	pflag.BoolVar(&reprocess, "reprocess", false, "retry records currently recorded as failed")
	pflag.BoolVar(&reset, "reset", false, "truncate all index state and local artifacts, then exit")
	pflag.BoolVar(&thumbnailFlag, "thumbnail", false, "generate PDF page-0 thumbnails")
	pflag.IntVar(&sample, "sample", 0, "limit the run to a random sample of N input lines")
	pflag.Parse()

	if !fsutil.Exists(configPath) {
		fmt.Fprintf(os.Stderr, "config file %q not found\n", configPath)
		return 1
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger, closeLog, err := logging.New(filepath.Join(cfg.DataPath, "harvester.log"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer closeLog()
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbPath := filepath.Join(cfg.DataPath, "index.db")

	if reset {
		var purger func() error
		if cfg.SwiftEnabled() {
			backend, err := storage.NewSwiftBackend(ctx, storage.SwiftConfig{
				Container: cfg.Swift.SwiftContainer,
				AuthURL:   cfg.Swift.AuthURL,
				Username:  cfg.Swift.Username,
				Password:  cfg.Swift.Password,
				Tenant:    cfg.Swift.Tenant,
				Region:    cfg.Swift.Region,
			})
			if err != nil {
				logger.Error("connecting to swift for reset", zapErr(err))
				return 1
			}
			purger = catalogue.NewSwiftPurger(backend)
		}
		if err := catalogue.Reset(dbPath, cfg.DataPath, purger); err != nil {
			logger.Error("reset failed", zapErr(err))
			return 1
		}
		return 0
	}

	idx, err := index.Open(dbPath)
	if err != nil {
		logger.Error("opening index", zapErr(err))
		return 1
	}
	defer idx.Close()

	if dumpPath != "" {
		opts := catalogue.DumpOptions{Path: dumpPath, Compress: cfg.Compression}
		if err := catalogue.Dump(idx, opts); err != nil {
			logger.Error("dump failed", zapErr(err))
			return 1
		}
		return 0
	}

	if unpaywallPath == "" && pmcPath == "" {
		if err := catalogue.Diagnostic(idx, os.Stdout); err != nil {
			logger.Error("diagnostic failed", zapErr(err))
			return 1
		}
		return 0
	}

	var in orchestrator.Input
	if unpaywallPath != "" {
		in = orchestrator.NewUnpaywallInput(unpaywallPath)
	} else {
		in = orchestrator.NewPMCInput(pmcPath, cfg.Resources.PMC.PMCBase)
	}

	workDir := filepath.Join(cfg.DataPath, "work")
	registry := map[downloader.TransportKind]downloader.Transport{
		downloader.TransportScraper: downloader.NewScraperTransport(),
		downloader.TransportDirect:  downloader.NewDirectTransport("oa-harvester/1.0"),
		downloader.TransportCLI:     downloader.NewCLITransport("curl"),
		downloader.TransportFTP:     downloader.NewFTPTransport(),
	}
	// A single order covers both URL families: Downloader.orderFor
	// splits it per-scheme at fetch time (ftp:// tries only ftp+cli;
	// everything else tries scraper/direct/cli), per spec.md §4.3.
	order := []downloader.TransportKind{
		downloader.TransportFTP,
		downloader.TransportScraper,
		downloader.TransportDirect,
		downloader.TransportCLI,
	}
	d := downloader.New(registry, order, workDir, logger)

	arxivMirror, err := buildArxivMirror(ctx, cfg)
	if err != nil {
		logger.Error("configuring arxiv mirror", zapErr(err))
		return 1
	}
	plosMirror, err := buildPlosMirror(ctx, cfg)
	if err != nil {
		logger.Error("configuring plos mirror", zapErr(err))
		return 1
	}
	d.SetMirrors(arxivMirror, plosMirror)

	var resolver *metadata.Resolver
	if cfg.Metadata.BiblioGluttonBase != "" || cfg.Metadata.CrossrefBase != "" {
		resolver = metadata.New(cfg.Metadata.BiblioGluttonBase, cfg.Metadata.CrossrefBase, cfg.Metadata.CrossrefEmail)
	}

	backend, err := buildBackend(ctx, cfg)
	if err != nil {
		logger.Error("configuring storage backend", zapErr(err))
		return 1
	}

	var thumbGen *thumbnail.Generator
	if thumbnailFlag {
		thumbGen = thumbnail.New("pdftoppm")
	}

	counters, _ := orchestrator.NewCounters()
	orch := orchestrator.New(idx, d, resolver, backend, thumbGen, logger, counters)

	opts := orchestrator.Options{
		Reprocess:        reprocess,
		Sample:           sample,
		ThumbnailEnabled: thumbnailFlag,
		Compression:      cfg.Compression,
		BatchSize:        cfg.BatchSize,
		Workers:          cfg.Workers,
		WorkDir:          workDir,
		Precedence: precedenceFromConfig(cfg),
	}

	if err := orch.Run(ctx, in, opts); err != nil {
		logger.Error("harvest run failed", zapErr(err))
		return 1
	}

	snapshot := counters.Snapshot()
	fmt.Printf("processed: %d, usable_pdf_url: %d, failed: %d\n", snapshot.Processed, snapshot.UsablePDFURL, snapshot.Failed)
	return 0
}

func buildBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	if cfg.AWSEnabled() {
		return storage.NewS3Backend(ctx, storage.S3Config{
			Bucket:          cfg.AWS.BucketName,
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Endpoint:        cfg.AWS.Endpoint,
		})
	}
	if cfg.SwiftEnabled() {
		return storage.NewSwiftBackend(ctx, storage.SwiftConfig{
			Container: cfg.Swift.SwiftContainer,
			AuthURL:   cfg.Swift.AuthURL,
			Username:  cfg.Swift.Username,
			Password:  cfg.Swift.Password,
			Tenant:    cfg.Swift.Tenant,
			Region:    cfg.Swift.Region,
		})
	}
	return nil, nil
}

// buildArxivMirror builds the arXiv mirror shortcut's read-only backend,
// reusing the run's AWS/Swift credentials with the bucket/container
// swapped for the one configured under resources.arxiv (spec.md §4.3
// "Mirror shortcuts").
func buildArxivMirror(ctx context.Context, cfg *config.Config) (*downloader.Mirror, error) {
	if !cfg.ArxivMirrorEnabled() {
		return nil, nil
	}
	if cfg.Resources.Arxiv.S3 != nil && cfg.AWS != nil {
		backend, err := storage.NewS3Backend(ctx, storage.S3Config{
			Bucket:          cfg.Resources.Arxiv.S3.ArxivBucketName,
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Endpoint:        cfg.AWS.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring arxiv s3 mirror: %w", err)
		}
		return downloader.NewMirror(backend), nil
	}
	if cfg.Resources.Arxiv.Swift != nil && cfg.Swift != nil {
		backend, err := storage.NewSwiftBackend(ctx, storage.SwiftConfig{
			Container: cfg.Resources.Arxiv.Swift.ArxivSwiftContainer,
			AuthURL:   cfg.Swift.AuthURL,
			Username:  cfg.Swift.Username,
			Password:  cfg.Swift.Password,
			Tenant:    cfg.Swift.Tenant,
			Region:    cfg.Swift.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring arxiv swift mirror: %w", err)
		}
		return downloader.NewMirror(backend), nil
	}
	return nil, nil
}

// buildPlosMirror is buildArxivMirror's PLOS counterpart.
func buildPlosMirror(ctx context.Context, cfg *config.Config) (*downloader.Mirror, error) {
	if !cfg.PlosMirrorEnabled() {
		return nil, nil
	}
	if cfg.Resources.Plos.S3 != nil && cfg.AWS != nil {
		backend, err := storage.NewS3Backend(ctx, storage.S3Config{
			Bucket:          cfg.Resources.Plos.S3.PlosBucketName,
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Endpoint:        cfg.AWS.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring plos s3 mirror: %w", err)
		}
		return downloader.NewMirror(backend), nil
	}
	if cfg.Resources.Plos.Swift != nil && cfg.Swift != nil {
		backend, err := storage.NewSwiftBackend(ctx, storage.SwiftConfig{
			Container: cfg.Resources.Plos.Swift.PlosSwiftContainer,
			AuthURL:   cfg.Swift.AuthURL,
			Username:  cfg.Swift.Username,
			Password:  cfg.Swift.Password,
			Tenant:    cfg.Swift.Tenant,
			Region:    cfg.Swift.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring plos swift mirror: %w", err)
		}
		return downloader.NewMirror(backend), nil
	}
	return nil, nil
}
