// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieve

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/tools/duckduckgo"

	"github.com/pdiddy/research-editor/pkg/types"
)

// Hit is one web search result.
type Hit struct {
	Title       string
	Description string
	URL         string
}

// Searcher returns web search hits for a query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Hit, error)
}

// Fetcher downloads a page and extracts its readable content.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (types.Document, error)
}

// DuckDuckGo searches the web through the langchaingo DuckDuckGo tool.
type DuckDuckGo struct {
	tool *duckduckgo.Tool
}

// NewDuckDuckGo returns a searcher yielding at most maxResults hits.
func NewDuckDuckGo(maxResults int, userAgent string) (*DuckDuckGo, error) {
	if userAgent == "" {
		userAgent = duckduckgo.DefaultUserAgent
	}
	tool, err := duckduckgo.New(maxResults, userAgent)
	if err != nil {
		return nil, fmt.Errorf("creating duckduckgo client: %w", err)
	}
	return &DuckDuckGo{tool: tool}, nil
}

// Search runs the query and parses the tool's text output.
func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]Hit, error) {
	out, err := d.tool.Call(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search: %w", err)
	}
	return ParseHits(out), nil
}

// ParseHits reads the "Title:/Description:/URL:" blocks produced by the
// DuckDuckGo tool. Blocks without a URL are skipped.
func ParseHits(out string) []Hit {
	var hits []Hit
	var cur Hit
	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "Title:"):
			cur.Title = strings.TrimSpace(strings.TrimPrefix(line, "Title:"))
		case strings.HasPrefix(line, "Description:"):
			cur.Description = strings.TrimSpace(strings.TrimPrefix(line, "Description:"))
		case strings.HasPrefix(line, "URL:"):
			cur.URL = strings.TrimSpace(strings.TrimPrefix(line, "URL:"))
			if cur.URL != "" {
				hits = append(hits, cur)
			}
			cur = Hit{}
		}
	}
	return hits
}

// Web retrieves documents by searching the topic and fetching each hit.
type Web struct {
	Searcher Searcher
	Fetcher  Fetcher

	// MaxResults caps the number of hits fetched (default 5).
	MaxResults int

	// MaxChars truncates each document's text; zero keeps it whole.
	MaxChars int

	// W receives warnings. Nil discards them.
	W io.Writer
}

// Name returns "web".
func (w *Web) Name() string { return "web" }

// Retrieve searches and fetches concurrently. A page that cannot be fetched
// falls back to its search snippet.
func (w *Web) Retrieve(ctx context.Context, topic string) ([]types.Document, error) {
	hits, err := w.Searcher.Search(ctx, topic)
	if err != nil {
		return nil, err
	}
	limit := w.MaxResults
	if limit <= 0 {
		limit = 5
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	if len(hits) == 0 {
		return nil, ErrNoDocuments
	}

	docs := make([]types.Document, len(hits))
	var wg sync.WaitGroup
	for i, h := range hits {
		wg.Add(1)
		go func(i int, h Hit) {
			defer wg.Done()
			doc, err := w.Fetcher.Fetch(ctx, h.URL)
			if err != nil {
				if w.W != nil {
					fmt.Fprintf(w.W, "warning: fetching %s: %v\n", h.URL, err)
				}
				doc = types.Document{URL: h.URL, Title: h.Title, Text: h.Description}
			}
			if doc.Title == "" {
				doc.Title = h.Title
			}
			doc.Text = Truncate(doc.Text, w.MaxChars)
			doc.Source = "web"
			docs[i] = doc
		}(i, h)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Deduplicate(docs), nil
}
