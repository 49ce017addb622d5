// Package fetcher retrieves the HTML of monitored login pages.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"loginwatch/internal/model"
)

// MaxBodySize is the largest page accepted from any fetcher.
const MaxBodySize = 10 << 20

// userAgent mimics a desktop browser; several monitored sites serve a
// stripped page to unknown clients.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ErrTooLarge is returned when a page exceeds MaxBodySize.
var ErrTooLarge = errors.New("page exceeds size limit")

// Fetcher downloads the HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTP fetches raw server HTML without running scripts.
type HTTP struct {
	client HTTPClient
}

// NewHTTP creates an HTTP fetcher with the given client.
func NewHTTP(client HTTPClient) *HTTP {
	return &HTTP{client: client}
}

// Fetch downloads the page at url.
func (f *HTTP) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if len(body) > MaxBodySize {
		return "", ErrTooLarge
	}
	return string(body), nil
}

// ByMode dispatches to a fetcher per target fetch mode.
type ByMode map[model.FetchMode]Fetcher

// For returns the fetcher for a target, falling back to plain HTTP.
func (m ByMode) For(t model.Target) (Fetcher, error) {
	if f, ok := m[t.Fetch]; ok {
		return f, nil
	}
	if t.Fetch == "" {
		if f, ok := m[model.FetchHTTP]; ok {
			return f, nil
		}
	}
	return nil, fmt.Errorf("no fetcher for mode %q", t.Fetch)
}
