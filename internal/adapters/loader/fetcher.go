package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Fetcher performs one fetch attempt for a media locator and reports how many
// bytes arrived.
type Fetcher interface {
	Fetch(ctx context.Context, source string) (int64, error)
}

// HTTPFetcher fetches media over HTTP. The body is drained and discarded;
// the engine only cares that the bytes made it into the host's cache.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher with the given client. A nil client uses
// http.DefaultClient; per-attempt deadlines come from the loader's context.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client}
}

// Fetch performs one GET of source.
func (f *HTTPFetcher) Fetch(ctx context.Context, source string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", source, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return 0, fmt.Errorf("%w: %s returned %d", ErrBadStatus, source, resp.StatusCode)
	}

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return n, fmt.Errorf("read body of %s: %w", source, err)
	}
	return n, nil
}
