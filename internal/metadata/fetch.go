package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// Fetcher retrieves the raw metadata document.
type Fetcher interface {
	Fetch(ctx context.Context) (io.ReadCloser, error)
}

// HTTPFetcher fetches the document from a URL.
type HTTPFetcher struct {
	URL    string
	Client *http.Client
}

// Fetch issues one GET request. Non-2xx responses are failures.
func (f HTTPFetcher) Fetch(ctx context.Context) (io.ReadCloser, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", f.URL, resp.Status)
	}
	return resp.Body, nil
}

// FileFetcher reads the document from disk.
type FileFetcher struct {
	Path string
}

// Fetch opens the file.
func (f FileFetcher) Fetch(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(f.Path)
}
