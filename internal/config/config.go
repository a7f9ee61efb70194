// Package config loads the harvester's flat YAML configuration file,
// matching the key layout of the original Python harvester's
// config.yaml (see spec.md §6 "Configuration keys").
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration object.
type Config struct {
	DataPath    string `yaml:"data_path"`
	BatchSize   int    `yaml:"batch_size"`
	Compression bool   `yaml:"compression"`
	Workers     int    `yaml:"workers"`

	Resources Resources `yaml:"resources"`
	AWS       *AWS      `yaml:"aws"`
	Swift     *Swift    `yaml:"swift"`
	Metadata  Metadata  `yaml:"metadata"`
}

// Resources groups the per-source-mirror configuration blocks.
type Resources struct {
	PMC   PMC   `yaml:"pmc"`
	Arxiv Arxiv `yaml:"arxiv"`
	Plos  Plos  `yaml:"plos"`
}

// PMC configures the PMC TSV input and optional PMC-mirror preference.
type PMC struct {
	PMCBase      string `yaml:"pmc_base"`
	PrioritizePMC bool  `yaml:"prioritize_pmc"`
}

// Arxiv configures the arXiv mirror shortcut. Exactly one of S3/Swift
// should be set; presence of a non-empty bucket/container enables the
// mirror.
type Arxiv struct {
	S3    *ArxivS3    `yaml:"s3"`
	Swift *ArxivSwift `yaml:"swift"`
}

type ArxivS3 struct {
	ArxivBucketName string `yaml:"arxiv_bucket_name"`
}

type ArxivSwift struct {
	ArxivSwiftContainer string `yaml:"arxiv_swift_container"`
}

// Plos configures the PLOS mirror shortcut, analogous to Arxiv.
type Plos struct {
	S3    *PlosS3    `yaml:"s3"`
	Swift *PlosSwift `yaml:"swift"`
}

type PlosS3 struct {
	PlosBucketName string `yaml:"plos_bucket_name"`
}

type PlosSwift struct {
	PlosSwiftContainer string `yaml:"plos_swift_container"`
}

// AWS configures the S3-compatible upload backend.
type AWS struct {
	BucketName      string `yaml:"bucket_name"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"aws_access_key_id"`
	SecretAccessKey string `yaml:"aws_secret_access_key"`
	Endpoint        string `yaml:"endpoint"`
}

// Swift configures the OpenStack Swift upload backend.
type Swift struct {
	SwiftContainer string `yaml:"swift_container"`
	AuthURL        string `yaml:"auth_url"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	Tenant         string `yaml:"tenant"`
	Region         string `yaml:"region"`
}

// Metadata configures the bibliographic lookup service chain.
type Metadata struct {
	BiblioGluttonBase string `yaml:"biblio_glutton_base"`
	CrossrefBase      string `yaml:"crossref_base"`
	CrossrefEmail     string `yaml:"crossref_email"`
}

const defaultBatchSize = 100
const defaultWorkers = 12

// Load reads and parses the configuration file at path, applying the
// documented defaults for batch_size and workers.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}
	if cfg.DataPath == "" {
		return nil, fmt.Errorf("config file %q: data_path is required", path)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	return &cfg, nil
}

// PMCMirrorEnabled reports whether a PMC base URL is configured, making
// the PMC host-precedence rule in spec.md §4.2 eligible to apply.
func (c *Config) PMCMirrorEnabled() bool {
	return c.Resources.PMC.PMCBase != ""
}

// ArxivMirrorEnabled reports whether an arXiv mirror shortcut is configured.
func (c *Config) ArxivMirrorEnabled() bool {
	if c.Resources.Arxiv.S3 != nil && c.Resources.Arxiv.S3.ArxivBucketName != "" {
		return true
	}
	if c.Resources.Arxiv.Swift != nil && c.Resources.Arxiv.Swift.ArxivSwiftContainer != "" {
		return true
	}
	return false
}

// PlosMirrorEnabled reports whether a PLOS mirror shortcut is configured.
func (c *Config) PlosMirrorEnabled() bool {
	if c.Resources.Plos.S3 != nil && c.Resources.Plos.S3.PlosBucketName != "" {
		return true
	}
	if c.Resources.Plos.Swift != nil && c.Resources.Plos.Swift.PlosSwiftContainer != "" {
		return true
	}
	return false
}

// AWSEnabled reports whether the S3-compatible upload backend is configured.
func (c *Config) AWSEnabled() bool {
	return c.AWS != nil && c.AWS.BucketName != ""
}

// SwiftEnabled reports whether the Swift upload backend is configured.
func (c *Config) SwiftEnabled() bool {
	return c.Swift != nil && c.Swift.SwiftContainer != ""
}
