// Package validate confirms a downloaded file is actually what its
// extension claims, sniffing magic bytes rather than trusting a
// Content-Type header or file extension a mirror may have gotten wrong.
package validate

import (
	"fmt"
	"os"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
)

// Kind names the artifact kinds the harvester validates.
type Kind int

const (
	KindPDF Kind = iota
	KindXML
	KindPNG
)

// File reports whether the file at path sniffs as the given kind. A
// read error is returned wrapped with the path; a sniff mismatch
// returns false, nil.
func File(path string, kind Kind) (bool, error) {
	head := make([]byte, 8192)
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("opening %q for validation: %w", path, err)
	}
	defer f.Close()

	n, err := f.Read(head)
	if err != nil && n == 0 {
		return false, fmt.Errorf("reading %q for validation: %w", path, err)
	}
	head = head[:n]

	kindType, err := filetype.Match(head)
	if err != nil {
		return false, fmt.Errorf("sniffing %q: %w", path, err)
	}

	switch kind {
	case KindPDF:
		return kindType == matchers.TypePdf, nil
	case KindPNG:
		return kindType == matchers.TypePng, nil
	case KindXML:
		// filetype has no dedicated XML matcher; NXML/JATS files are
		// plain UTF-8 text beginning with "<?xml" or "<" after an
		// optional BOM, which filetype.Match reports as unknown. The
		// characteristic leading '<' alone decides the pass; the
		// sniffed kind is not consulted.
		return looksLikeXML(head), nil
	default:
		return false, fmt.Errorf("unknown validation kind %d", kind)
	}
}

func looksLikeXML(head []byte) bool {
	trimmed := head
	for len(trimmed) > 0 && (trimmed[0] == ' ' || trimmed[0] == '\n' || trimmed[0] == '\r' || trimmed[0] == '\t') {
		trimmed = trimmed[1:]
	}
	// Skip a UTF-8 BOM if present.
	if len(trimmed) >= 3 && trimmed[0] == 0xEF && trimmed[1] == 0xBB && trimmed[2] == 0xBF {
		trimmed = trimmed[3:]
	}
	return len(trimmed) > 0 && trimmed[0] == '<'
}
