package asset

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Fetcher retrieves the raw bytes behind an asset source. One attempt per
// source; retry policy is the user re-running the insertion.
type Fetcher interface {
	FetchBytes(ctx context.Context, source string) ([]byte, error)
}

// maxAssetBytes caps a single fetched asset. Pasted screenshots and images
// fit comfortably; anything larger does not belong inline in a note.
const maxAssetBytes = 32 << 20

// HTTPFetcher fetches http(s) sources with a bounded timeout and decodes
// data: URLs locally.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher with the given per-request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) FetchBytes(ctx context.Context, source string) ([]byte, error) {
	switch {
	case strings.HasPrefix(source, "data:"):
		return decodeDataURL(source)
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return f.fetchHTTP(ctx, source)
	default:
		return nil, fmt.Errorf("unsupported asset source %q", source)
	}
}

func (f *HTTPFetcher) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build asset request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch asset: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read asset body: %w", err)
	}
	if len(data) > maxAssetBytes {
		return nil, fmt.Errorf("asset exceeds %d byte limit", maxAssetBytes)
	}
	return data, nil
}

// decodeDataURL handles embedded blobs: data:[<mediatype>][;base64],<data>
func decodeDataURL(source string) ([]byte, error) {
	comma := strings.IndexByte(source, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data url")
	}
	meta, payload := source[len("data:"):comma], source[comma+1:]

	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decode data url: %w", err)
		}
		return data, nil
	}
	return []byte(payload), nil
}
