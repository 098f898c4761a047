// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package corpus indexes a directory of local documents into a SQLite FTS5
// store and serves them as research sources.
package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/research-editor/pkg/types"
)

const (
	docsDir  = "docs"
	indexDir = "index"
	dbFile   = "corpus.db"
)

// supportedExt lists the file types Ingest reads.
var supportedExt = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".html":     true,
	".htm":      true,
}

// Store manages the corpus SQLite database.
type Store struct {
	db         *sql.DB
	dir        string
	maxResults int

	// pdf converts .pdf files during Ingest. Nil leaves them unindexed.
	pdf Converter
}

// Open opens or creates the corpus database at dir/index/corpus.db and
// creates the schema if it does not exist.
func Open(cfg types.CorpusConfig) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("corpus directory is not configured")
	}
	dbDir := filepath.Join(cfg.Dir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dbDir, dbFile)+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 8
	}
	s := &Store{db: db, dir: cfg.Dir, maxResults: maxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetPDFConverter enables PDF ingestion through c.
func (s *Store) SetPDFConverter(c Converter) {
	s.pdf = c
}

// DocsDir returns the directory Ingest reads from.
func (s *Store) DocsDir() string {
	return filepath.Join(s.dir, docsDir)
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT,
			path TEXT NOT NULL,
			file_mod_time TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			heading TEXT,
			content TEXT NOT NULL,
			UNIQUE(doc_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='chunks_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists > 0 {
		return nil
	}

	ftsStatements := []string{
		`CREATE VIRTUAL TABLE chunks_fts USING fts5(heading, content, content=chunks, content_rowid=rowid)`,
		`CREATE TRIGGER chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, heading, content) VALUES (new.rowid, new.heading, new.content);
		END`,
		`CREATE TRIGGER chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, heading, content) VALUES('delete', old.rowid, old.heading, old.content);
		END`,
		`CREATE TRIGGER chunks_au AFTER UPDATE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, heading, content) VALUES('delete', old.rowid, old.heading, old.content);
			INSERT INTO chunks_fts(rowid, heading, content) VALUES (new.rowid, new.heading, new.content);
		END`,
	}
	for _, stmt := range ftsStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating FTS infrastructure: %w", err)
		}
	}
	return nil
}

// IngestSummary holds counts from one indexing run.
type IngestSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int
}

// Total returns the number of files processed.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// Ingest walks dir/docs and indexes every supported file. Files whose
// modification time matches the stored one are skipped; changed files have
// their chunks replaced.
func (s *Store) Ingest(ctx context.Context, w io.Writer) (IngestSummary, error) {
	root := s.DocsDir()
	if _, err := os.Stat(root); err != nil {
		return IngestSummary{}, fmt.Errorf("reading corpus directory %s: %w", root, err)
	}

	var summary IngestSummary
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		isPDF := ext == ".pdf" && s.pdf != nil
		if d.IsDir() || (!supportedExt[ext] && !isPDF) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, _ := filepath.Rel(root, path)
		docID := filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", docID, err)
			summary.Failed++
			return nil
		}
		modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

		var storedModTime string
		err = s.db.QueryRowContext(ctx,
			`SELECT file_mod_time FROM documents WHERE id = ?`, docID,
		).Scan(&storedModTime)
		if err == nil && storedModTime == modTime {
			fmt.Fprintf(w, "skipped %s\n", docID)
			summary.Skipped++
			return nil
		}
		isUpdate := err == nil

		content, err := s.readContent(ctx, path, isPDF)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", docID, err)
			summary.Failed++
			return nil
		}
		if isPDF {
			ext = ".md"
		}
		title, sections := parseDocument(content, ext)
		if title == "" {
			title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}

		if err := s.ingestDocument(ctx, docID, title, path, modTime, sections); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", docID, err)
			summary.Failed++
			return nil
		}
		if isUpdate {
			fmt.Fprintf(w, "updated %s (%d chunks)\n", docID, len(sections))
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexing %s (%d chunks)\n", docID, len(sections))
			summary.Indexed++
		}
		return nil
	})
	if err != nil {
		return summary, fmt.Errorf("walking corpus: %w", err)
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed)
	return summary, nil
}

func (s *Store) readContent(ctx context.Context, path string, isPDF bool) (string, error) {
	if isPDF {
		return s.pdf.Convert(ctx, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Store) ingestDocument(ctx context.Context, docID, title, path, modTime string, sections []section) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("deleting old chunks: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, title, path, file_mod_time) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title=excluded.title, path=excluded.path, file_mod_time=excluded.file_mod_time`,
		docID, title, abs, modTime,
	)
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (doc_id, seq, heading, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, sec := range sections {
		if _, err := stmt.ExecContext(ctx, docID, i, sec.heading, sec.body); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", i, err)
		}
	}
	return tx.Commit()
}
