package releases

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/digitalpulse/tsom-api/pkg/checksum"
)

// maxChecksumBody caps how much of a checksum file is read.
const maxChecksumBody = 4096

// HTTPChecksumSource fetches "{download_url}.sha256" files over HTTP.
type HTTPChecksumSource struct {
	client *http.Client
}

// NewHTTPChecksumSource returns a checksum source using client, or a client
// with a 30 second timeout when client is nil.
func NewHTTPChecksumSource(client *http.Client) *HTTPChecksumSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPChecksumSource{client: client}
}

// ResolveAsset downloads and parses the checksum file of asset.
func (s *HTTPChecksumSource) ResolveAsset(ctx context.Context, asset Asset) (string, error) {
	url := asset.DownloadURL + ChecksumSuffix

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &TransportError{URL: url, Err: err}
	}

	resp, err := s.client.Do(req) // #nosec G107 -- URL comes from the release host listing
	if err != nil {
		return "", &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	// A missing or failing checksum file is treated like an unreachable one:
	// the asset is still served, without a digest. The body of an error page
	// is never parsed as a checksum.
	if resp.StatusCode != http.StatusOK {
		return "", &TransportError{URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxChecksumBody))
	if err != nil {
		return "", &TransportError{URL: url, Err: err}
	}

	return ParseChecksumResponse(asset.Name, string(body))
}

// ParseChecksumResponse extracts the digest from a checksum file of the form
// "{hash} *{filename}". The filename must be assetName.
func ParseChecksumResponse(assetName, body string) (string, error) {
	fields := strings.Fields(body)
	if len(fields) != 2 {
		return "", &InvalidSha256Error{Count: len(fields)}
	}

	hash, filename := fields[0], fields[1]
	name, ok := strings.CutPrefix(filename, "*")
	if !ok || name != assetName {
		return "", ErrWrongChecksum
	}

	if !checksum.IsSHA256Hex(hash) {
		slog.Warn("checksum file digest is not a SHA-256 hex string", "asset", assetName, "digest", hash)
	}
	return hash, nil
}
