// Package store persists built vector indexes so a restarted process, or a
// /refresh_index call, can reload the last published index without
// re-embedding the corpus. Two backends are provided: a single-file SQLite
// database in a local directory, and a Qdrant collection.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/docchat-go/internal/index"
	"github.com/54b3r/docchat-go/internal/rag"
)

// indexFileName is the database file written inside the index directory.
const indexFileName = "index.db"

// Meta keys.
const (
	metaIndexID   = "index_id"
	metaBuiltAt   = "built_at"
	metaDimension = "dimension"
	metaCount     = "count"
)

// SQLitePersister stores an index as a SQLite database inside Dir.
// Persist writes a temporary file and renames it over the previous one, so
// a reader either sees the old file or the new one.
type SQLitePersister struct {
	// dir is the directory holding index.db.
	dir string
}

// NewSQLitePersister returns a persister rooted at dir, creating it if needed.
func NewSQLitePersister(dir string) (*SQLitePersister, error) {
	if dir == "" {
		return nil, rag.NewError(rag.KindConfig, "store", "index directory must not be empty", nil)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return &SQLitePersister{dir: dir}, nil
}

// Path returns the database file path.
func (p *SQLitePersister) Path() string { return filepath.Join(p.dir, indexFileName) }

// Persist writes idx to Dir/index.db, replacing any previous index.
func (p *SQLitePersister) Persist(ctx context.Context, idx *index.Index) error {
	final := p.Path()
	tmp := final + ".tmp"
	_ = os.Remove(tmp)

	db, err := openDB(tmp)
	if err != nil {
		return err
	}
	if err := writeIndex(ctx, db, idx); err != nil {
		_ = db.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := db.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: close: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: publish %s: %w", final, err)
	}
	return nil
}

// Load reads Dir/index.db. Returns index.ErrNotPersisted if it does not exist.
func (p *SQLitePersister) Load(ctx context.Context) (*index.Index, error) {
	path := p.Path()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, index.ErrNotPersisted
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return readIndex(ctx, db)
}

// openDB opens (or creates) the database at path and runs the schema migration.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// migrate creates the schema if it does not already exist.
func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS meta (
    key    TEXT PRIMARY KEY,
    value  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
    position   INTEGER PRIMARY KEY,
    source_id  TEXT    NOT NULL,
    ordinal    INTEGER NOT NULL,
    text       TEXT    NOT NULL,
    vector     BLOB    NOT NULL  -- little-endian float32
);
`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// writeIndex replaces the database contents with idx in one transaction.
func writeIndex(ctx context.Context, db *sql.DB, idx *index.Index) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{`DELETE FROM meta`, `DELETE FROM entries`} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("store: clear: %w", err)
		}
	}

	meta := map[string]string{
		metaIndexID:   idx.ID(),
		metaBuiltAt:   idx.BuiltAt().UTC().Format(time.RFC3339Nano),
		metaDimension: fmt.Sprintf("%d", idx.Dimension()),
		metaCount:     fmt.Sprintf("%d", idx.Len()),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("store: write meta: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (position, source_id, ordinal, text, vector) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	for i, e := range idx.Entries() {
		if _, err := stmt.ExecContext(ctx, i, e.Chunk.SourceID, e.Chunk.Ordinal, e.Chunk.Text, encodeVector(e.Vector)); err != nil {
			return fmt.Errorf("store: write entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// readIndex loads the index stored in db, entries in insertion order.
func readIndex(ctx context.Context, db *sql.DB) (*index.Index, error) {
	meta := make(map[string]string)
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("store: read meta: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan meta: %w", err)
		}
		meta[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: meta rows: %w", err)
	}
	if meta[metaIndexID] == "" {
		return nil, index.ErrNotPersisted
	}
	builtAt, err := time.Parse(time.RFC3339Nano, meta[metaBuiltAt])
	if err != nil {
		return nil, fmt.Errorf("store: parse built_at: %w", err)
	}

	rows, err = db.QueryContext(ctx, `SELECT source_id, ordinal, text, vector FROM entries ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: read entries: %w", err)
	}
	defer rows.Close()

	var entries []index.Entry
	for rows.Next() {
		var e index.Entry
		var blob []byte
		if err := rows.Scan(&e.Chunk.SourceID, &e.Chunk.Ordinal, &e.Chunk.Text, &blob); err != nil {
			return nil, fmt.Errorf("store: scan entry: %w", err)
		}
		if e.Vector, err = decodeVector(blob); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: entry rows: %w", err)
	}
	if want := meta[metaCount]; want != fmt.Sprintf("%d", len(entries)) {
		return nil, fmt.Errorf("store: index %s is incomplete: want %s entries, found %d", meta[metaIndexID], want, len(entries))
	}

	idx, err := index.Restore(meta[metaIndexID], builtAt, entries)
	if err != nil {
		return nil, fmt.Errorf("store: restore: %w", err)
	}
	return idx, nil
}
