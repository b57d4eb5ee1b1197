package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultOptimizerBase = "https://i0.wp.com/"
	optimizerUserAgent   = "imgvault/1.0"
)

// Fetcher retrieves a stored URL's bytes, possibly transformed.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (io.ReadCloser, string, error)
}

// Optimizer fetches image bytes through an optimizing HTTP intermediary
// that re-serves (and may recompress) a given URL.
type Optimizer struct {
	base   string
	client *http.Client
}

func NewOptimizer() *Optimizer {
	return &Optimizer{
		base:   defaultOptimizerBase,
		client: &http.Client{},
	}
}

// Rewrite maps a backing URL to its optimized counterpart.
func (o *Optimizer) Rewrite(rawURL string) string {
	return o.base + strings.TrimPrefix(rawURL, "https://")
}

// Fetch streams the optimized bytes and reports the content type.
func (o *Optimizer) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.Rewrite(rawURL), nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", optimizerUserAgent)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("optimizer returned status %d", resp.StatusCode)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}
