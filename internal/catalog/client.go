package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoProxy is returned when no catalog proxy is configured
var ErrNoProxy = errors.New("catalog: no proxy configured")

// Fetcher downloads raw book files from the remote catalog.
// This interface is implemented by *Client and can be used for testing.
type Fetcher interface {
	FetchBook(ctx context.Context, bookID string) ([]byte, error)
}

// Ensure Client implements Fetcher at compile time.
var _ Fetcher = (*Client)(nil)

// Client talks to the catalog through the reverse proxy
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	maxBytes  int64
}

const (
	defaultUserAgent = "bookshelf/1.0"
	requestTimeout   = 60 * time.Second
	maxBookBytes     = 64 << 20
)

// NewClient builds a Client for the proxy at proxyURL
func NewClient(proxyURL string) (*Client, error) {
	trimmed := strings.TrimSpace(proxyURL)
	if trimmed == "" {
		return nil, ErrNoProxy
	}
	base, err := url.Parse(strings.TrimRight(trimmed, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("proxy url %q must be absolute", proxyURL)
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		userAgent: defaultUserAgent,
		maxBytes:  maxBookBytes,
	}, nil
}

// FetchBook downloads the FB2 file of a catalog book
func (c *Client) FetchBook(ctx context.Context, bookID string) ([]byte, error) {
	if c == nil {
		return nil, ErrNoProxy
	}
	if strings.TrimSpace(bookID) == "" {
		return nil, fmt.Errorf("book id required")
	}
	rel := &url.URL{Path: "b/" + url.PathEscape(bookID) + "/fb2"}
	reqURL := c.baseURL.ResolveReference(rel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("catalog %s returned status %d", rel.Path, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("book %s exceeds %d bytes", bookID, c.maxBytes)
	}
	return data, nil
}
