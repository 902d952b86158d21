// Package sqlite persists index snapshots as a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// FileName is the database file kept inside an index location.
const FileName = "index.db"

const schema = `
CREATE TABLE meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE entries (
	seq         INTEGER PRIMARY KEY,
	document_id TEXT NOT NULL,
	chunk_id    TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	start       INTEGER NOT NULL,
	text        TEXT NOT NULL,
	vector      BLOB NOT NULL
);
`

// Path returns the database path for an index location.
func Path(location string) string {
	return filepath.Join(location, FileName)
}

// StoredDigest returns the digest recorded in the index at location, or ""
// if there is no readable index there.
func StoredDigest(ctx context.Context, location string) string {
	path := Path(location)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return ""
	}
	defer db.Close()
	var digest string
	if err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'digest'`).Scan(&digest); err != nil {
		return ""
	}
	return digest
}

// Write stores the snapshot at location. A fresh database is built next to
// the target and renamed over it, so readers never see a half-written file.
// If the stored digest already matches, nothing is written.
func Write(ctx context.Context, location string, snap vectorstore.Snapshot) error {
	digest := snap.Digest()
	if StoredDigest(ctx, location) == digest {
		return nil
	}
	if err := os.MkdirAll(location, 0o755); err != nil {
		return fmt.Errorf("%w: create index dir: %w", domain.ErrStorageFailure, err)
	}
	tmp, err := os.CreateTemp(location, ".index-*.db")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", domain.ErrStorageFailure, err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	if err := writeDB(ctx, tmpPath, snap, digest); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorageFailure, err)
	}
	if err := os.Rename(tmpPath, Path(location)); err != nil {
		return fmt.Errorf("%w: replace index file: %w", domain.ErrStorageFailure, err)
	}
	return nil
}

func writeDB(ctx context.Context, path string, snap vectorstore.Snapshot, digest string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	meta := map[string]string{
		"format":     strconv.Itoa(vectorstore.FormatVersion),
		"id":         snap.Meta.ID,
		"embedder":   snap.Meta.Embedder,
		"dimension":  strconv.Itoa(snap.Meta.Dimension),
		"created_at": strconv.FormatInt(snap.Meta.CreatedAt.UnixNano(), 10),
		"count":      strconv.Itoa(len(snap.Entries)),
		"digest":     digest,
	}
	for _, k := range []string{"format", "id", "embedder", "dimension", "created_at", "count", "digest"} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, meta[k]); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (seq, document_id, chunk_id, chunk_index, start, text, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range snap.Entries {
		_, err := stmt.ExecContext(ctx, e.Seq, e.Chunk.DocumentID, e.Chunk.ChunkID, e.Chunk.Index, e.Chunk.Start, e.Chunk.Text, vectorstore.EncodeVector(e.Vector))
		if err != nil {
			return fmt.Errorf("insert entry %d: %w", e.Seq, err)
		}
	}
	return tx.Commit()
}

// Read loads and verifies the snapshot at location.
func Read(ctx context.Context, location string) (vectorstore.Snapshot, error) {
	path := Path(location)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return vectorstore.Snapshot{}, fmt.Errorf("%w: no index at %s", domain.ErrNotFound, location)
		}
		return vectorstore.Snapshot{}, fmt.Errorf("%w: %w", domain.ErrStorageFailure, err)
	}
	if info.IsDir() || info.Size() == 0 {
		return vectorstore.Snapshot{}, fmt.Errorf("%w: no index at %s", domain.ErrNotFound, location)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return vectorstore.Snapshot{}, fmt.Errorf("%w: open: %w", domain.ErrCorruptIndex, err)
	}
	defer db.Close()

	snap, storedDigest, err := readDB(ctx, db)
	if err != nil {
		return vectorstore.Snapshot{}, fmt.Errorf("%w: %s: %w", domain.ErrCorruptIndex, location, err)
	}
	if snap.Digest() != storedDigest {
		return vectorstore.Snapshot{}, fmt.Errorf("%w: %s: digest mismatch", domain.ErrCorruptIndex, location)
	}
	return snap, nil
}

func readDB(ctx context.Context, db *sql.DB) (vectorstore.Snapshot, string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return vectorstore.Snapshot{}, "", fmt.Errorf("read meta: %w", err)
	}
	meta := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return vectorstore.Snapshot{}, "", err
		}
		meta[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return vectorstore.Snapshot{}, "", err
	}

	if meta["format"] != strconv.Itoa(vectorstore.FormatVersion) {
		return vectorstore.Snapshot{}, "", fmt.Errorf("unsupported format %q", meta["format"])
	}
	dim, err := strconv.Atoi(meta["dimension"])
	if err != nil {
		return vectorstore.Snapshot{}, "", fmt.Errorf("bad dimension: %w", err)
	}
	created, err := strconv.ParseInt(meta["created_at"], 10, 64)
	if err != nil {
		return vectorstore.Snapshot{}, "", fmt.Errorf("bad created_at: %w", err)
	}
	count, err := strconv.Atoi(meta["count"])
	if err != nil {
		return vectorstore.Snapshot{}, "", fmt.Errorf("bad count: %w", err)
	}
	snap := vectorstore.Snapshot{Meta: vectorstore.Meta{
		ID:        meta["id"],
		Embedder:  meta["embedder"],
		Dimension: dim,
		CreatedAt: time.Unix(0, created).UTC(),
	}}

	erows, err := db.QueryContext(ctx, `
		SELECT seq, document_id, chunk_id, chunk_index, start, text, vector
		FROM entries ORDER BY seq
	`)
	if err != nil {
		return vectorstore.Snapshot{}, "", fmt.Errorf("read entries: %w", err)
	}
	defer erows.Close()
	for erows.Next() {
		var e vectorstore.Entry
		var blob []byte
		if err := erows.Scan(&e.Seq, &e.Chunk.DocumentID, &e.Chunk.ChunkID, &e.Chunk.Index, &e.Chunk.Start, &e.Chunk.Text, &blob); err != nil {
			return vectorstore.Snapshot{}, "", err
		}
		v, ok := vectorstore.DecodeVector(blob)
		if !ok || len(v) != dim {
			return vectorstore.Snapshot{}, "", fmt.Errorf("entry %d: bad vector", e.Seq)
		}
		e.Vector = v
		snap.Entries = append(snap.Entries, e)
	}
	if err := erows.Err(); err != nil {
		return vectorstore.Snapshot{}, "", err
	}
	if len(snap.Entries) != count {
		return vectorstore.Snapshot{}, "", fmt.Errorf("expected %d entries, found %d", count, len(snap.Entries))
	}
	return snap, meta["digest"], nil
}
