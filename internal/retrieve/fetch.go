// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieve

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"github.com/pdiddy/research-editor/internal/httputil"
	"github.com/pdiddy/research-editor/pkg/types"
)

// maxPageBytes caps how much of a page body is read.
const maxPageBytes = 5 << 20

// imageSelectors are tried in order to find a page's lead image.
var imageSelectors = []string{
	`meta[property="og:image"]`,
	`meta[name="twitter:image"]`,
	`meta[property="og:image:url"]`,
}

// HTTPFetcher downloads pages with net/http. Throttled responses are retried
// through httputil.DoWithRetry.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string

	// MaxRetries bounds retries of throttled fetches; zero uses the
	// httputil default.
	MaxRetries int
}

// Fetch downloads rawURL and extracts the article.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (types.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return types.Document{}, fmt.Errorf("parsing URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return types.Document{}, fmt.Errorf("creating request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := httputil.DoWithRetry(ctx, client, req, f.MaxRetries)
	if err != nil {
		return types.Document{}, fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Document{}, fmt.Errorf("fetching page: status code %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return types.Document{}, fmt.Errorf("reading page: %w", err)
	}
	return ExtractPage(body, u)
}

// BrowserFetcher renders pages in headless Chrome before extraction, for
// sites that build their content with JavaScript. The browser is started on
// first use and shared by all fetches until Close.
type BrowserFetcher struct {
	// Timeout bounds one page load (default 60s).
	Timeout time.Duration

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func (b *BrowserFetcher) init() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.cleanup()
		default:
			return b.browserCtx, nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	b.allocCancel = allocCancel
	b.browserCtx, b.browserCancel = chromedp.NewContext(allocCtx)
	if err := chromedp.Run(b.browserCtx); err != nil {
		b.cleanup()
		return nil, err
	}
	return b.browserCtx, nil
}

func (b *BrowserFetcher) cleanup() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.browserCancel = nil
	b.allocCancel = nil
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanup()
}

// Fetch loads rawURL in a new tab and extracts the rendered article.
func (b *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (types.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return types.Document{}, fmt.Errorf("parsing URL: %w", err)
	}
	browserCtx, err := b.init()
	if err != nil {
		return types.Document{}, fmt.Errorf("starting browser: %w", err)
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	defer cancelTimeout()

	// Tie the tab to the caller's context as well.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(rawURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return types.Document{}, fmt.Errorf("rendering page: %w", err)
	}
	return ExtractPage([]byte(html), u)
}

// ExtractPage runs readability over an HTML page and returns its title,
// sanitized text, and lead image.
func ExtractPage(html []byte, u *url.URL) (types.Document, error) {
	article, err := readability.FromReader(bytes.NewReader(html), u)
	if err != nil {
		return types.Document{}, fmt.Errorf("parsing article: %w", err)
	}

	p := bluemonday.StrictPolicy()
	text := strings.TrimSpace(p.Sanitize(article.TextContent))
	if text == "" {
		text = strings.TrimSpace(p.Sanitize(article.Excerpt))
	}

	return types.Document{
		URL:      u.String(),
		Title:    strings.TrimSpace(article.Title),
		Text:     text,
		ImageURL: leadImage(html, u),
	}, nil
}

// leadImage returns the first social-card image declared in the page head,
// resolved against the page URL.
func leadImage(html []byte, base *url.URL) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}
	for _, sel := range imageSelectors {
		src, ok := doc.Find(sel).First().Attr("content")
		if !ok || strings.TrimSpace(src) == "" {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(src))
		if err != nil {
			continue
		}
		return base.ResolveReference(ref).String()
	}
	return ""
}
