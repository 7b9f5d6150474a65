// Package store keeps the raw documents of a run in a local sqlite file so
// extraction can be repeated without refetching.
package store

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/aluiziolira/go-scrape-baldor/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS products_src(
	url TEXT,
	html BLOB,
	run_id TEXT,
	fetched_at TIMESTAMP,
	item_kind TEXT,
	item_value TEXT
)`

// Document is one stored payload.
type Document struct {
	URL       string
	Body      []byte
	RunID     string
	FetchedAt time.Time
	Item      models.WorkItem
}

// Store is an append-only table of fetched documents.
type Store struct {
	db   *sql.DB
	path string
}

// Open recreates the database at path, dropping whatever a previous run left.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(err, "remove previous store %s", path)
	}
	return open(ctx, path)
}

// OpenExisting opens the database at path without clearing it.
func OpenExisting(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "open store %s", path)
	}
	return open(ctx, path)
}

func open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "open sqlite %s", path)
	}
	// One writer; sqlite serializes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "create products_src")
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Append stores documents in one transaction.
func (s *Store) Append(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin append")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO products_src (url, html, run_id, fetched_at, item_kind, item_value) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "prepare append")
	}
	defer stmt.Close()

	for _, d := range docs {
		fetchedAt := d.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, d.URL, d.Body, d.RunID, fetchedAt.UTC(), d.Item.Kind.String(), d.Item.Value); err != nil {
			return eris.Wrapf(err, "insert %s", d.URL)
		}
	}
	return eris.Wrap(tx.Commit(), "commit append")
}

// AppendResults stores the payload of every successful result and returns
// how many were written.
func (s *Store) AppendResults(ctx context.Context, runID string, results []models.FetchResult) (int, error) {
	now := time.Now()
	docs := make([]Document, 0, len(results))
	for _, r := range results {
		if !r.OK() {
			continue
		}
		docs = append(docs, Document{URL: r.URL, Body: r.Body, RunID: runID, FetchedAt: now, Item: r.Item})
	}
	if err := s.Append(ctx, docs...); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Documents returns every stored document in insertion order.
func (s *Store) Documents(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, html, run_id, fetched_at, item_kind, item_value FROM products_src ORDER BY rowid`)
	if err != nil {
		return nil, eris.Wrap(err, "query products_src")
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			d         Document
			runID     sql.NullString
			fetchedAt sql.NullTime
			kind      sql.NullString
			value     sql.NullString
		)
		if err := rows.Scan(&d.URL, &d.Body, &runID, &fetchedAt, &kind, &value); err != nil {
			return nil, eris.Wrap(err, "scan products_src")
		}
		d.RunID = runID.String
		d.FetchedAt = fetchedAt.Time
		d.Item = itemFor(kind.String, value.String, d.URL)
		docs = append(docs, d)
	}
	return docs, eris.Wrap(rows.Err(), "iterate products_src")
}

// Results converts the stored documents back into fetch results.
func (s *Store) Results(ctx context.Context) ([]models.FetchResult, error) {
	docs, err := s.Documents(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]models.FetchResult, 0, len(docs))
	for _, d := range docs {
		results = append(results, models.FetchResult{Item: d.Item, URL: d.URL, Body: d.Body})
	}
	return results, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Rows written by older runs have no item columns and are treated as pages.
func itemFor(kind, value, url string) models.WorkItem {
	if kind == models.KindCategory.String() {
		return models.CategoryItem(value)
	}
	if value == "" {
		value = url
	}
	return models.URLItem(value)
}
