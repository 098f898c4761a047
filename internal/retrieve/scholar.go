// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieve

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/pdiddy/research-editor/internal/httputil"
	"github.com/pdiddy/research-editor/pkg/types"
)

// API endpoints. Declared as vars so tests can substitute an httptest server.
var (
	arxivAPIBase    = "https://export.arxiv.org/api/query"
	semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"
)

const semanticFields = "title,abstract,authors,externalIds,year,publicationDate,url"

// paper is one result from an academic index.
type paper struct {
	arxivID  string
	doi      string
	url      string
	title    string
	abstract string
	authors  []string
	date     string
}

// Scholar retrieves paper abstracts from arXiv and Semantic Scholar. Each
// abstract becomes one document linked to the paper's landing page.
type Scholar struct {
	Client    *http.Client
	UserAgent string

	// SemanticKey is the optional Semantic Scholar API key.
	SemanticKey string

	// MaxResults caps the papers requested from each index (default 5).
	MaxResults int

	// W receives warnings. Nil discards them.
	W io.Writer
}

// Name returns "scholar".
func (s *Scholar) Name() string { return "scholar" }

// Retrieve queries both indexes concurrently. A failing index is reported on
// W; the call fails only when both do.
func (s *Scholar) Retrieve(ctx context.Context, topic string) ([]types.Document, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, ErrNoDocuments
	}

	type indexResult struct {
		name   string
		papers []paper
		err    error
	}
	searches := []struct {
		name string
		fn   func(context.Context, string) ([]paper, error)
	}{
		{"arxiv", s.searchArxiv},
		{"semantic_scholar", s.searchSemantic},
	}

	ch := make(chan indexResult, len(searches))
	var wg sync.WaitGroup
	for _, sr := range searches {
		wg.Add(1)
		go func(name string, fn func(context.Context, string) ([]paper, error)) {
			defer wg.Done()
			papers, err := fn(ctx, topic)
			ch <- indexResult{name: name, papers: papers, err: err}
		}(sr.name, sr.fn)
	}
	go func() {
		wg.Wait()
		close(ch)
	}()

	// Keep arXiv results first so merged entries prefer its identifiers.
	byName := make(map[string][]paper)
	var errs []error
	for r := range ch {
		if r.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.name, r.err))
			if s.W != nil {
				fmt.Fprintf(s.W, "warning: index %s failed: %v\n", r.name, r.err)
			}
			continue
		}
		byName[r.name] = r.papers
	}
	if len(errs) == len(searches) {
		return nil, errors.Join(errs...)
	}

	var docs []types.Document
	for _, p := range mergePapers(append(byName["arxiv"], byName["semantic_scholar"]...)) {
		docs = append(docs, p.document())
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	return docs, nil
}

func (s *Scholar) limit() int {
	if s.MaxResults <= 0 {
		return 5
	}
	return s.MaxResults
}

func (s *Scholar) get(ctx context.Context, reqURL string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	resp, err := httputil.DoWithRetry(ctx, s.Client, req, 0)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp, nil
}

func (s *Scholar) searchArxiv(ctx context.Context, topic string) ([]paper, error) {
	params := url.Values{
		"search_query": {"all:" + strings.Join(strings.Fields(topic), " AND all:")},
		"start":        {"0"},
		"max_results":  {strconv.Itoa(s.limit())},
		"sortBy":       {"relevance"},
		"sortOrder":    {"descending"},
	}
	resp, err := s.get(ctx, arxivAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}

	var papers []paper
	for _, e := range feed.Entries {
		id := extractArxivID(e.ID)
		if id == "" {
			continue
		}
		p := paper{
			arxivID:  id,
			url:      "https://arxiv.org/abs/" + id,
			title:    collapse(e.Title),
			abstract: collapse(e.Summary),
		}
		if len(e.Published) >= 10 {
			p.date = e.Published[:10]
		}
		for _, a := range e.Authors {
			p.authors = append(p.authors, strings.TrimSpace(a.Name))
		}
		papers = append(papers, p)
	}
	return papers, nil
}

func (s *Scholar) searchSemantic(ctx context.Context, topic string) ([]paper, error) {
	params := url.Values{
		"query":  {topic},
		"limit":  {strconv.Itoa(s.limit())},
		"fields": {semanticFields},
	}
	header := http.Header{}
	if s.SemanticKey != "" {
		header.Set("x-api-key", s.SemanticKey)
	}
	resp, err := s.get(ctx, semanticAPIBase+"?"+params.Encode(), header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var sr semanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parsing Semantic Scholar response: %w", err)
	}

	var papers []paper
	for _, d := range sr.Data {
		p := paper{
			arxivID:  d.ExternalIDs.ArXiv,
			doi:      d.ExternalIDs.DOI,
			url:      d.URL,
			title:    collapse(d.Title),
			abstract: collapse(d.Abstract),
			date:     d.PublicationDate,
		}
		if p.date == "" && d.Year > 0 {
			p.date = strconv.Itoa(d.Year)
		}
		switch {
		case p.arxivID != "":
			p.url = "https://arxiv.org/abs/" + p.arxivID
		case p.doi != "":
			p.url = "https://doi.org/" + p.doi
		case p.url == "" && d.PaperID != "":
			p.url = "https://www.semanticscholar.org/paper/" + d.PaperID
		}
		for _, a := range d.Authors {
			p.authors = append(p.authors, a.Name)
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// mergePapers drops papers without an abstract and merges duplicates, keyed
// by arXiv ID or DOI when present and by normalized title otherwise. The
// first occurrence keeps its place; later ones fill in missing fields.
func mergePapers(papers []paper) []paper {
	index := make(map[string]int)
	var out []paper
	for _, p := range papers {
		if p.abstract == "" || p.url == "" {
			continue
		}
		keys := p.keys()
		pos, dup := -1, false
		for _, k := range keys {
			if i, ok := index[k]; ok {
				pos, dup = i, true
				break
			}
		}
		if !dup {
			out = append(out, p)
			pos = len(out) - 1
		} else {
			dst := &out[pos]
			if dst.doi == "" {
				dst.doi = p.doi
			}
			if len(dst.authors) == 0 {
				dst.authors = p.authors
			}
			if dst.date == "" {
				dst.date = p.date
			}
		}
		for _, k := range keys {
			index[k] = pos
		}
	}
	return out
}

func (p paper) keys() []string {
	var keys []string
	if p.arxivID != "" {
		keys = append(keys, "arxiv:"+p.arxivID)
	}
	if p.doi != "" {
		keys = append(keys, "doi:"+strings.ToLower(p.doi))
	}
	if t := normalizeTitle(p.title); t != "" {
		keys = append(keys, "title:"+t)
	}
	return keys
}

func (p paper) document() types.Document {
	var b strings.Builder
	if len(p.authors) > 0 {
		authors := p.authors
		if len(authors) > 3 {
			authors = append(authors[:3:3], "et al.")
		}
		fmt.Fprintf(&b, "Authors: %s\n", strings.Join(authors, ", "))
	}
	if p.date != "" {
		fmt.Fprintf(&b, "Published: %s\n", p.date)
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(p.abstract)
	return types.Document{URL: p.url, Title: p.title, Text: b.String(), Source: "scholar"}
}

// normalizeTitle lowercases and keeps only letters and digits.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// extractArxivID pulls the arXiv ID from an entry's <id> URL, dropping the
// version suffix ("http://arxiv.org/abs/2301.07041v1" becomes "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := idURL[idx+len(prefix):]
	if v := strings.LastIndex(id, "v"); v > 0 {
		if _, err := strconv.Atoi(id[v+1:]); err == nil {
			id = id[:v]
		}
	}
	return id
}

type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
}

type semanticResponse struct {
	Data []struct {
		PaperID         string `json:"paperId"`
		URL             string `json:"url"`
		Title           string `json:"title"`
		Abstract        string `json:"abstract"`
		Year            int    `json:"year"`
		PublicationDate string `json:"publicationDate"`
		Authors         []struct {
			Name string `json:"name"`
		} `json:"authors"`
		ExternalIDs struct {
			DOI   string `json:"DOI"`
			ArXiv string `json:"ArXiv"`
		} `json:"externalIds"`
	} `json:"data"`
}
