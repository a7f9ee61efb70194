package downloader

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/jlaffaye/ftp"
)

// ftpTransport retrieves articles hosted on plain FTP mirrors (legacy
// PMC and some publisher archives still serve this way). Not grounded
// in the teacher, which has no FTP client dependency anywhere in its
// stack; jlaffaye/ftp is the standard Go FTP client and is named here
// as an explicitly out-of-pack dependency (see SPEC_FULL.md and
// DESIGN.md).
type ftpTransport struct {
	timeout time.Duration
}

// NewFTPTransport returns the Transport registered under TransportFTP.
func NewFTPTransport() Transport {
	return &ftpTransport{timeout: 30 * time.Second}
}

func (t *ftpTransport) Fetch(ctx context.Context, rawURL, destPath string) (int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("parsing ftp url %q: %w", rawURL, err)
	}
	if u.Scheme != "ftp" {
		return 0, fmt.Errorf("not an ftp url: %q", rawURL)
	}

	host := u.Host
	if u.Port() == "" {
		host = host + ":21"
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(t.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("connecting to ftp host %q: %w", host, err)
	}
	defer conn.Quit()

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		return 0, fmt.Errorf("ftp login to %q: %w", host, err)
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return 0, fmt.Errorf("ftp RETR %q: %w", u.Path, err)
	}
	defer resp.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("creating %q: %w", destPath, err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp)
	if err != nil {
		return 0, fmt.Errorf("downloading ftp body from %q: %w", u.Path, err)
	}
	return n, nil
}
