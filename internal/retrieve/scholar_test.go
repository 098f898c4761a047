// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieve

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const arxivFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2301.07041v2</id>
    <title>Grid-Scale Battery
      Storage Economics</title>
    <summary>  We model lithium-ion
      storage costs.  </summary>
    <published>2023-01-17T18:00:00Z</published>
    <author><name>Ada Lovelace</name></author>
    <author><name>Alan Turing</name></author>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2302.00001v1</id>
    <title>No Abstract Paper</title>
    <summary></summary>
  </entry>
</feed>`

const semanticJSON = `{"data": [
  {"paperId": "p1", "title": "Grid-scale battery storage economics", "abstract": "Duplicate of the arXiv entry.",
   "year": 2023, "authors": [{"name": "Ada Lovelace"}], "externalIds": {"ArXiv": "2301.07041", "DOI": "10.1/grid"}},
  {"paperId": "p2", "title": "Pumped Hydro Revisited", "abstract": "Water goes uphill.",
   "publicationDate": "2021-05-01", "authors": [{"name": "A"}, {"name": "B"}, {"name": "C"}, {"name": "D"}],
   "externalIds": {"DOI": "10.2/hydro"}},
  {"paperId": "p3", "title": "Untitled Without Ids", "abstract": "Only a paper id.", "externalIds": {}}
]}`

// scholarServers points both indexes at test servers and returns a func
// reporting the last Semantic Scholar API key received.
func scholarServers(t *testing.T, arxivStatus, semanticStatus int) func() string {
	t.Helper()
	var mu sync.Mutex
	key := ""
	arxiv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "research-editor-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "all:grid AND all:storage", r.URL.Query().Get("search_query"))
		assert.Equal(t, "3", r.URL.Query().Get("max_results"))
		w.WriteHeader(arxivStatus)
		w.Write([]byte(arxivFeedXML))
	}))
	semantic := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		key = r.Header.Get("x-api-key")
		mu.Unlock()
		assert.Equal(t, "grid storage", r.URL.Query().Get("query"))
		w.WriteHeader(semanticStatus)
		w.Write([]byte(semanticJSON))
	}))
	t.Cleanup(arxiv.Close)
	t.Cleanup(semantic.Close)

	oldArxiv, oldSemantic := arxivAPIBase, semanticAPIBase
	arxivAPIBase, semanticAPIBase = arxiv.URL, semantic.URL
	t.Cleanup(func() { arxivAPIBase, semanticAPIBase = oldArxiv, oldSemantic })
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		return key
	}
}

func TestScholar_MergesIndexes(t *testing.T) {
	key := scholarServers(t, http.StatusOK, http.StatusOK)
	s := &Scholar{UserAgent: "research-editor-test", SemanticKey: "s2-key", MaxResults: 3}

	docs, err := s.Retrieve(context.Background(), "grid storage")
	require.NoError(t, err)
	assert.Equal(t, "s2-key", key())

	require.Len(t, docs, 3)
	assert.Equal(t, "https://arxiv.org/abs/2301.07041", docs[0].URL)
	assert.Equal(t, "Grid-Scale Battery Storage Economics", docs[0].Title)
	assert.Equal(t, "Authors: Ada Lovelace, Alan Turing\nPublished: 2023-01-17\n\nWe model lithium-ion storage costs.", docs[0].Text)
	assert.Equal(t, "scholar", docs[0].Source)

	assert.Equal(t, "https://doi.org/10.2/hydro", docs[1].URL)
	assert.Contains(t, docs[1].Text, "Authors: A, B, C, et al.\n")
	assert.Equal(t, "https://www.semanticscholar.org/paper/p3", docs[2].URL)
}

func TestScholar_OneIndexFails(t *testing.T) {
	scholarServers(t, http.StatusOK, http.StatusInternalServerError)
	var warn bytes.Buffer
	s := &Scholar{UserAgent: "research-editor-test", MaxResults: 3, W: &warn}

	docs, err := s.Retrieve(context.Background(), "grid storage")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, warn.String(), "warning: index semantic_scholar failed: HTTP 500")
}

func TestScholar_BothIndexesFail(t *testing.T) {
	scholarServers(t, http.StatusBadRequest, http.StatusNotFound)
	s := &Scholar{UserAgent: "research-editor-test", MaxResults: 3}

	_, err := s.Retrieve(context.Background(), "grid storage")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arxiv")
	assert.Contains(t, err.Error(), "semantic_scholar")
}

func TestScholar_EmptyTopic(t *testing.T) {
	_, err := (&Scholar{}).Retrieve(context.Background(), "  ")
	assert.True(t, errors.Is(err, ErrNoDocuments))
}

func TestExtractArxivID(t *testing.T) {
	tests := map[string]string{
		"http://arxiv.org/abs/2301.07041v1":     "2301.07041",
		"http://arxiv.org/abs/2301.07041":       "2301.07041",
		"http://arxiv.org/abs/hep-th/9901001v3": "hep-th/9901001",
		"http://example.com/paper":              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, extractArxivID(in), in)
	}
}
