// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retrieve gathers source documents for a topic from the web, the
// local corpus, or both, and returns a deduplicated document set.
package retrieve

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pdiddy/research-editor/pkg/types"
)

// Retriever returns an unordered set of documents relevant to a topic. Each
// backend (web search, local corpus) implements this interface.
type Retriever interface {
	Name() string
	Retrieve(ctx context.Context, topic string) ([]types.Document, error)
}

// ErrNoDocuments is returned when every backend answered without documents.
var ErrNoDocuments = errors.New("no documents retrieved")

// Multi fans the topic out to all backends concurrently and merges their
// documents. A backend failure is reported on W and skipped; Multi fails only
// when every backend fails.
type Multi struct {
	Backends []Retriever

	// W receives warnings. Nil discards them.
	W io.Writer
}

// Name joins the backend names.
func (m *Multi) Name() string {
	names := make([]string, len(m.Backends))
	for i, b := range m.Backends {
		names[i] = b.Name()
	}
	return strings.Join(names, "+")
}

// Retrieve queries all backends and deduplicates the merged set by URL.
func (m *Multi) Retrieve(ctx context.Context, topic string) ([]types.Document, error) {
	if len(m.Backends) == 0 {
		return nil, fmt.Errorf("no retrieval backends configured")
	}

	type backendResult struct {
		docs []types.Document
		err  error
		name string
	}

	// Results are written by index so the merge order follows Backends.
	results := make([]backendResult, len(m.Backends))
	var wg sync.WaitGroup
	for i, b := range m.Backends {
		wg.Add(1)
		go func(i int, b Retriever) {
			defer wg.Done()
			docs, err := b.Retrieve(ctx, topic)
			results[i] = backendResult{docs: docs, err: err, name: b.Name()}
		}(i, b)
	}
	wg.Wait()

	var all []types.Document
	var errs []error
	for _, br := range results {
		if br.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", br.name, br.err))
			if m.W != nil {
				fmt.Fprintf(m.W, "warning: retriever %s failed: %v\n", br.name, br.err)
			}
			continue
		}
		all = append(all, br.docs...)
	}
	if len(errs) == len(m.Backends) {
		return nil, errors.Join(errs...)
	}
	return Deduplicate(all), nil
}

// Deduplicate drops documents whose normalized URL was already seen and
// documents without text. The first occurrence wins; a missing image or
// title on it is filled from later duplicates.
func Deduplicate(docs []types.Document) []types.Document {
	seen := make(map[string]int)
	var out []types.Document
	for _, d := range docs {
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		key := normalizeURL(d.URL)
		if idx, ok := seen[key]; ok && key != "" {
			if out[idx].ImageURL == "" {
				out[idx].ImageURL = d.ImageURL
			}
			if out[idx].Title == "" {
				out[idx].Title = d.Title
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, d)
	}
	return out
}

// normalizeURL lowercases scheme and host and strips the fragment, "www."
// and a trailing slash.
func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	return strings.ToLower(u.Scheme) + "://" + host + strings.TrimSuffix(u.Path, "/") + queryPart(u)
}

func queryPart(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	return "?" + u.RawQuery
}

// MaxImages is the number of lead images kept per topic.
const MaxImages = 2

// SelectImages returns up to limit distinct image URLs from docs in order.
// Images are compared by the MD5 of their URL with any query string removed,
// so resized variants of the same file count once.
func SelectImages(docs []types.Document, limit int) []string {
	seen := make(map[[md5.Size]byte]bool)
	var out []string
	for _, d := range docs {
		if len(out) >= limit {
			break
		}
		if d.ImageURL == "" {
			continue
		}
		base, _, _ := strings.Cut(d.ImageURL, "?")
		sum := md5.Sum([]byte(base))
		if seen[sum] {
			continue
		}
		seen[sum] = true
		out = append(out, d.ImageURL)
	}
	return out
}

// URLs returns the document URLs in order.
func URLs(docs []types.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.URL != "" {
			out = append(out, d.URL)
		}
	}
	return out
}

// Truncate cuts s to at most n bytes on a rune boundary. Non-positive n
// leaves s unchanged.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
