// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pdiddy/research-editor/pkg/types"
)

// Chunk is one indexed section of a corpus document.
type Chunk struct {
	DocID   string `json:"doc_id" yaml:"doc_id"`
	Title   string `json:"title" yaml:"title"`
	Path    string `json:"path" yaml:"path"`
	Seq     int    `json:"seq" yaml:"seq"`
	Heading string `json:"heading,omitempty" yaml:"heading,omitempty"`
	Content string `json:"content" yaml:"content"`
}

// URL identifies the chunk as a file URL with the chunk number as fragment.
func (c Chunk) URL() string {
	return fmt.Sprintf("file://%s#%d", filepath.ToSlash(c.Path), c.Seq)
}

// Search runs an FTS5 match over headings and content, best rank first.
// A free-text query is turned into an OR of its quoted terms so
// punctuation in topic names cannot break the MATCH syntax.
func (s *Store) Search(ctx context.Context, query string, maxResults int) ([]Chunk, error) {
	match := MatchQuery(query)
	if match == "" {
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.doc_id, d.title, d.path, c.seq, c.heading, c.content
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		JOIN documents d ON d.id = c.doc_id
		WHERE chunks_fts MATCH ?
		ORDER BY chunks_fts.rank
		LIMIT ?`, match, maxResults)
	if err != nil {
		return nil, fmt.Errorf("querying corpus: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		var title, heading sql.NullString
		if err := rows.Scan(&c.DocID, &title, &c.Path, &c.Seq, &heading, &c.Content); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		c.Title = title.String
		c.Heading = heading.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the number of indexed documents and chunks.
func (s *Store) Count(ctx context.Context) (docs, chunks int, err error) {
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM documents`).Scan(&docs); err != nil {
		return 0, 0, fmt.Errorf("counting documents: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM chunks`).Scan(&chunks); err != nil {
		return 0, 0, fmt.Errorf("counting chunks: %w", err)
	}
	return docs, chunks, nil
}

// Name returns "corpus".
func (s *Store) Name() string { return "corpus" }

// Retrieve returns the best-matching chunks for topic as documents.
func (s *Store) Retrieve(ctx context.Context, topic string) ([]types.Document, error) {
	chunks, err := s.Search(ctx, topic, 0)
	if err != nil {
		return nil, err
	}
	docs := make([]types.Document, 0, len(chunks))
	for _, c := range chunks {
		title := c.Title
		if c.Heading != "" {
			title += ": " + c.Heading
		}
		docs = append(docs, types.Document{
			URL:    c.URL(),
			Title:  title,
			Text:   c.Content,
			Source: "corpus",
		})
	}
	return docs, nil
}

// MatchQuery converts free text into an FTS5 expression: each word of two or
// more letters or digits is double-quoted and the terms are joined with OR.
func MatchQuery(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := make(map[string]bool)
	var terms []string
	for _, w := range words {
		if len([]rune(w)) < 2 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

var stopWords = map[string]bool{
	"the": true, "and": true, "of": true, "in": true, "on": true, "to": true,
	"for": true, "a": true, "an": true, "is": true, "are": true, "with": true,
	"by": true, "at": true, "or": true, "from": true, "as": true, "its": true,
}
