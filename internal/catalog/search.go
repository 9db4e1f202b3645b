package catalog

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"bookshelf/internal/models"
)

const (
	searchPath     = "opds/search"
	maxSearchBytes = 4 << 20

	unknownTitle  = "Unknown Title"
	unknownAuthor = "Unknown Author"

	relImage     = "http://opds-spec.org/image"
	relThumbnail = "http://opds-spec.org/thumbnail"
)

var (
	tagIDPattern  = regexp.MustCompile(`:(\d+)$`)
	bookIDPattern = regexp.MustCompile(`/b/(\d+)`)
)

// Searcher finds books in the remote catalog
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

var _ Searcher = (*Client)(nil)

// SearchResult is one catalog hit
type SearchResult struct {
	models.BookInfo
	Description string
}

// Entry returns the library entry for the hit. Catalog books are FB2.
func (r SearchResult) Entry() models.Entry {
	return models.FB2Entry{BookInfo: r.BookInfo}
}

type opdsFeed struct {
	Entries []opdsEntry `xml:"entry"`
}

type opdsEntry struct {
	ID      string     `xml:"id"`
	Title   string     `xml:"title"`
	Authors []string   `xml:"author>name"`
	Content string     `xml:"content"`
	Links   []opdsLink `xml:"link"`
}

type opdsLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

// Search runs a book search against the catalog's OPDS feed. An empty query
// returns no results without a request. Hits without a catalog id are
// skipped, duplicates keep their first position.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if c == nil {
		return nil, ErrNoProxy
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	rel := &url.URL{Path: searchPath}
	params := url.Values{}
	params.Set("searchType", "books")
	params.Set("searchTerm", query)
	rel.RawQuery = params.Encode()
	reqURL := c.baseURL.ResolveReference(rel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/atom+xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("catalog %s returned status %d", searchPath, resp.StatusCode)
	}

	var feed opdsFeed
	dec := xml.NewDecoder(io.LimitReader(resp.Body, maxSearchBytes))
	dec.Strict = false
	if err := dec.Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode search feed: %w", err)
	}
	return c.results(feed), nil
}

func (c *Client) results(feed opdsFeed) []SearchResult {
	seen := make(map[string]bool)
	var out []SearchResult
	for _, e := range feed.Entries {
		id := entryID(e)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		title := strings.TrimSpace(e.Title)
		if title == "" {
			title = unknownTitle
		}
		author := unknownAuthor
		if len(e.Authors) > 0 && strings.TrimSpace(e.Authors[0]) != "" {
			author = strings.TrimSpace(e.Authors[0])
		}
		out = append(out, SearchResult{
			BookInfo: models.BookInfo{
				ID:     id,
				Title:  title,
				Author: author,
				Cover:  c.coverURL(e.Links),
			},
			Description: strings.TrimSpace(e.Content),
		})
	}
	return out
}

// entryID reads the numeric id from a tag:book:<id> style id, falling back to
// the FB2 download link
func entryID(e opdsEntry) string {
	if m := tagIDPattern.FindStringSubmatch(strings.TrimSpace(e.ID)); m != nil {
		return m[1]
	}
	for _, l := range e.Links {
		if !strings.Contains(l.Type, "fb2") {
			continue
		}
		if m := bookIDPattern.FindStringSubmatch(l.Href); m != nil {
			return m[1]
		}
	}
	return ""
}

// coverURL routes relative cover links through the proxy
func (c *Client) coverURL(links []opdsLink) string {
	for _, l := range links {
		if l.Rel != relImage && l.Rel != relThumbnail || l.Href == "" {
			continue
		}
		href, err := url.Parse(l.Href)
		if err != nil {
			return ""
		}
		if href.IsAbs() {
			return href.String()
		}
		href.Path = strings.TrimPrefix(href.Path, "/")
		return c.baseURL.ResolveReference(href).String()
	}
	return ""
}
