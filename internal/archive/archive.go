// Package archive extracts the PDF and NXML payload out of a PMC
// tar.gz bundle by walking the tar stream member by member, the way
// operator-controller walks OCI layers (internal/rukpak/source
// applyLayer), generalized from an OCI layer reader to a tar.gz file on
// disk. Selected members are written straight into the destination
// directory under their own base names; no temporary subdirectory or
// rename step is used.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ErrNoPDF is returned when a PMC archive contains no .pdf member.
var ErrNoPDF = errors.New("archive: no pdf member found")

// Extracted holds the paths written by Extract, each joined onto the
// destination directory given to it.
type Extracted struct {
	PDFPath  string
	NXMLPath string
}

// Extract unpacks archivePath (a gzip-compressed tar, as NCBI serves PMC
// full-text bundles) into destDir, pulling at most one .pdf member
// (the first encountered) and any .nxml member. Other members are
// discarded. On success archivePath is removed, matching the original
// harvester's behavior of not retaining the downloaded tarball once its
// payload has been extracted.
func Extract(archivePath, destDir string) (*Extracted, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive %q: %w", archivePath, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("reading gzip header of %q: %w", archivePath, err)
	}
	defer gz.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("creating destination %q: %w", destDir, err)
	}

	var result Extracted
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar entry in %q: %w", archivePath, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.Base(hdr.Name)
		switch {
		case strings.EqualFold(filepath.Ext(name), ".pdf") && result.PDFPath == "":
			result.PDFPath, err = extractOne(tr, destDir, name)
		case strings.EqualFold(filepath.Ext(name), ".nxml") && result.NXMLPath == "":
			result.NXMLPath, err = extractOne(tr, destDir, name)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
	}

	if result.PDFPath == "" {
		if err := os.Remove(archivePath); err != nil {
			return nil, fmt.Errorf("removing archive %q with no pdf member: %w", archivePath, err)
		}
		return &result, ErrNoPDF
	}

	if err := os.Remove(archivePath); err != nil {
		return nil, fmt.Errorf("removing consumed archive %q: %w", archivePath, err)
	}
	return &result, nil
}

func extractOne(tr *tar.Reader, destDir, name string) (string, error) {
	dest := filepath.Join(destDir, name)
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("creating %q: %w", dest, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, tr); err != nil {
		return "", fmt.Errorf("writing %q: %w", dest, err)
	}
	return dest, nil
}
