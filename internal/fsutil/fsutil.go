// Package fsutil collects small filesystem helpers shared by the
// downloader's empty-response cleanup, Reset, and the CLI's config-file
// presence check.
//
// Adapted from operator-controller's internal/rukpak/source helpers,
// generalized beyond bundle-unpack directories to any harvester temp
// path.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
)

// EnsureEmptyDirectory ensures the directory given by path is empty,
// creating it (with perm) if it does not exist.
func EnsureEmptyDirectory(path string, perm fs.FileMode) error {
	entries, err := os.ReadDir(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(path, entry.Name())); err != nil {
			return err
		}
	}
	return os.MkdirAll(path, perm)
}

// RemoveIfEmpty deletes path if it exists and is a zero-byte regular
// file, used to clean up artifacts left behind by a failed download.
func RemoveIfEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() == 0 {
		return os.Remove(path)
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
