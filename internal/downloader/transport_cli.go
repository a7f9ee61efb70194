package downloader

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// cliTransport shells out to an external fetcher binary, for mirrors
// whose access pattern (interactive login, rsync-like sync, a vendor's
// own CLI) doesn't reduce to a single HTTP GET. The external tool
// contract matches SPEC_FULL.md's "retained as an interface" guidance
// for tools the original harvester also delegated to an external
// process.
type cliTransport struct {
	binary string
}

// NewCLITransport returns the Transport registered under TransportCLI,
// invoking binary as: binary <url> <destPath>.
func NewCLITransport(binary string) Transport {
	return &cliTransport{binary: binary}
}

// cliConnectTimeout and cliMaxRetries implement spec.md §4.3's Timeouts
// entry for the command-line fetcher: "15 s connect ... with up to 5
// retries and exponential-free immediate retry on connection refused."
const (
	cliConnectTimeout = 15 * time.Second
	cliMaxRetries     = 5
)

func (t *cliTransport) Fetch(ctx context.Context, url, destPath string) (int64, error) {
	var size int64
	op := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, cliConnectTimeout)
		defer cancel()

		cmd := exec.CommandContext(attemptCtx, t.binary, url, destPath)
		out, err := cmd.CombinedOutput()
		if err != nil {
			wrapped := fmt.Errorf("running %q for %q: %w (output: %s)", t.binary, url, err, out)
			if isConnectionRefused(err, out) {
				// Immediate retry, no backoff, per spec.md §4.3.
				return wrapped
			}
			return backoff.Permanent(wrapped)
		}

		info, statErr := os.Stat(destPath)
		if statErr != nil {
			return backoff.Permanent(fmt.Errorf("stat %q after %q: %w", destPath, t.binary, statErr))
		}
		size = info.Size()
		return nil
	}

	policy := backoff.WithMaxRetries(&backoff.ZeroBackOff{}, cliMaxRetries)
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return 0, err
	}
	return size, nil
}

// isConnectionRefused sniffs the exec error and combined output for the
// one condition spec.md §4.3 singles out for immediate, no-backoff
// retry; every other failure (bad args, 4xx-equivalent exit, missing
// binary) is permanent.
func isConnectionRefused(err error, output []byte) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(strings.ToLower(string(output)), "connection refused")
}
