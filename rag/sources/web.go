// Package sources downloads remote documents so they can be indexed like uploads.
package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mudler/xlog"
	sitemap "github.com/oxffaa/gopher-parse-sitemap"
)

var errEnoughPages = errors.New("page limit reached")

// Document is the raw content of one remote resource.
type Document struct {
	URL         string
	ContentType string
	Data        []byte
}

// Fetcher downloads web pages and the pages listed in sitemaps.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	maxPages int
}

// NewFetcher returns a Fetcher that reads at most maxBytes per resource and
// follows at most maxPages sitemap entries. Zero disables a limit.
func NewFetcher(client *http.Client, maxBytes int64, maxPages int) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, maxBytes: maxBytes, maxPages: maxPages}
}

// IsSitemap reports whether the URL points at a sitemap.
func IsSitemap(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(u.Path, "sitemap.xml")
}

// Fetch downloads the resource, expanding sitemaps into their pages.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]Document, error) {
	xlog.Info("Downloading content from", "url", rawURL)

	if IsSitemap(rawURL) {
		docs, err := f.GetWebSitemapContent(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		xlog.Info("Downloaded all content from sitemap", "url", rawURL, "pages", len(docs))
		return docs, nil
	}

	doc, err := f.GetWebPage(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return []Document{doc}, nil
}

func (f *Fetcher) GetWebPage(ctx context.Context, rawURL string) (Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Document{}, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Document{}, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Document{}, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Document{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("failed to download %s: %s", rawURL, resp.Status)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return Document{}, err
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return Document{}, fmt.Errorf("%s is larger than %d bytes", rawURL, f.maxBytes)
	}

	return Document{URL: rawURL, ContentType: resp.Header.Get("Content-Type"), Data: data}, nil
}

// GetWebSitemapContent downloads every page listed in the sitemap, in sitemap
// order. Pages that cannot be downloaded are skipped.
func (f *Fetcher) GetWebSitemapContent(ctx context.Context, rawURL string) ([]Document, error) {
	index, err := f.GetWebPage(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	var locations []string
	err = sitemap.Parse(bytes.NewReader(index.Data), func(e sitemap.Entry) error {
		if f.maxPages > 0 && len(locations) >= f.maxPages {
			return errEnoughPages
		}
		locations = append(locations, e.GetLocation())
		return nil
	})
	if err != nil && !errors.Is(err, errEnoughPages) {
		return nil, fmt.Errorf("failed to parse sitemap %s: %w", rawURL, err)
	}

	var docs []Document
	for _, loc := range locations {
		xlog.Info("Sitemap page: " + loc)
		doc, err := f.GetWebPage(ctx, loc)
		if err != nil {
			xlog.Warn("Skipping sitemap page", "url", loc, "error", err)
			continue
		}
		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("no pages could be downloaded from %s", rawURL)
	}
	return docs, nil
}
