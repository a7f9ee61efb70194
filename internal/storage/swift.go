package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ncw/swift"
)

// SwiftBackend stores artifacts in an OpenStack Swift container, an
// alternative upload target the original harvester supports alongside
// S3 (see SPEC_FULL.md DOMAIN STACK; grounded via
// other_examples/manifests/chodges15-loki's use of ncw/swift).
type SwiftBackend struct {
	conn      *swift.Connection
	container string
}

// SwiftConfig names the subset of config.Swift the backend needs.
type SwiftConfig struct {
	Container string
	AuthURL   string
	Username  string
	Password  string
	Tenant    string
	Region    string
}

// NewSwiftBackend authenticates against AuthURL and returns a backend
// bound to Container, creating it if absent.
func NewSwiftBackend(ctx context.Context, cfg SwiftConfig) (*SwiftBackend, error) {
	conn := &swift.Connection{
		AuthUrl:  cfg.AuthURL,
		UserName: cfg.Username,
		ApiKey:   cfg.Password,
		Tenant:   cfg.Tenant,
		Region:   cfg.Region,
	}
	if err := conn.Authenticate(); err != nil {
		return nil, fmt.Errorf("authenticating to swift at %q: %w", cfg.AuthURL, err)
	}
	if err := conn.ContainerCreate(cfg.Container, nil); err != nil {
		return nil, fmt.Errorf("ensuring swift container %q: %w", cfg.Container, err)
	}
	return &SwiftBackend{conn: conn, container: cfg.Container}, nil
}

func (b *SwiftBackend) Put(ctx context.Context, key string, content io.Reader, size int64) error {
	_, err := b.conn.ObjectPut(b.container, key, content, false, "", "", nil)
	if err != nil {
		return fmt.Errorf("swift put %q/%q: %w", b.container, key, err)
	}
	return nil
}

func (b *SwiftBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	var buf bytes.Buffer
	_, err := b.conn.ObjectGet(b.container, key, &buf, false, nil)
	if err != nil {
		return nil, fmt.Errorf("swift get %q/%q: %w", b.container, key, err)
	}
	return io.NopCloser(&buf), nil
}

func (b *SwiftBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, _, err := b.conn.Object(b.container, key)
	if err == swift.ObjectNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("swift stat %q/%q: %w", b.container, key, err)
	}
	return true, nil
}

func (b *SwiftBackend) Delete(ctx context.Context, key string) error {
	err := b.conn.ObjectDelete(b.container, key)
	if err != nil && err != swift.ObjectNotFound {
		return fmt.Errorf("swift delete %q/%q: %w", b.container, key, err)
	}
	return nil
}

// PurgeContainer deletes every object in the backend's container,
// used by Reset to clear Swift-backed artifacts (S3 is deliberately
// left untouched by Reset; see SPEC_FULL.md §4.6).
func (b *SwiftBackend) PurgeContainer() error {
	names, err := b.conn.ObjectNamesAll(b.container, nil)
	if err != nil {
		return fmt.Errorf("listing swift container %q: %w", b.container, err)
	}
	for _, name := range names {
		if err := b.conn.ObjectDelete(b.container, name); err != nil && err != swift.ObjectNotFound {
			return fmt.Errorf("purging %q/%q: %w", b.container, name, err)
		}
	}
	return nil
}
