package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

func testSnapshot() vectorstore.Snapshot {
	return vectorstore.Snapshot{
		Meta: vectorstore.Meta{ID: "01HZX", Embedder: "hashing", Dimension: 2, CreatedAt: time.Unix(1700000000, 123).UTC()},
		Entries: []vectorstore.Entry{
			{Seq: 0, Chunk: domain.Chunk{DocumentID: "d", ChunkID: "d:0", Text: "The sky is blue.", Index: 0}, Vector: domain.Embedding{1, 0}},
			{Seq: 1, Chunk: domain.Chunk{DocumentID: "d", ChunkID: "d:1", Text: "Grass is green.", Index: 1, Start: 14}, Vector: domain.Embedding{0, 1}},
		},
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")
	snap := testSnapshot()

	require.NoError(t, Write(ctx, dir, snap))
	got, err := Read(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
	assert.Equal(t, snap.Digest(), StoredDigest(ctx, dir))
}

func TestWrite_IdempotentBytes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	snap := testSnapshot()

	require.NoError(t, Write(ctx, dir, snap))
	first, err := os.ReadFile(Path(dir))
	require.NoError(t, err)
	info1, err := os.Stat(Path(dir))
	require.NoError(t, err)

	require.NoError(t, Write(ctx, dir, snap))
	second, err := os.ReadFile(Path(dir))
	require.NoError(t, err)
	info2, err := os.Stat(Path(dir))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, info1.ModTime(), info2.ModTime())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWrite_ReplacesChangedSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	snap := testSnapshot()
	require.NoError(t, Write(ctx, dir, snap))

	snap.Entries = append(snap.Entries, vectorstore.Entry{Seq: 2, Chunk: domain.Chunk{DocumentID: "e", ChunkID: "e:0", Text: "new"}, Vector: domain.Embedding{1, 1}})
	require.NoError(t, Write(ctx, dir, snap))
	got, err := Read(ctx, dir)
	require.NoError(t, err)
	assert.Len(t, got.Entries, 3)
}

func TestRead_NotFound(t *testing.T) {
	ctx := context.Background()
	_, err := Read(ctx, filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	empty := t.TempDir()
	require.NoError(t, os.WriteFile(Path(empty), nil, 0o644))
	_, err = Read(ctx, empty)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRead_GarbageFileIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir), []byte("definitely not a database, just some bytes"), 0o644))
	_, err := Read(context.Background(), dir)
	assert.ErrorIs(t, err, domain.ErrCorruptIndex)
}

func TestRead_TamperedEntryFailsDigest(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, Write(ctx, dir, testSnapshot()))

	db, err := sql.Open("sqlite", Path(dir))
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE entries SET text = 'The sky is green.' WHERE seq = 0`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Read(ctx, dir)
	assert.ErrorIs(t, err, domain.ErrCorruptIndex)
}

func TestRead_MissingRowsIsCorrupt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, Write(ctx, dir, testSnapshot()))

	db, err := sql.Open("sqlite", Path(dir))
	require.NoError(t, err)
	_, err = db.Exec(`DELETE FROM entries WHERE seq = 1`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Read(ctx, dir)
	assert.ErrorIs(t, err, domain.ErrCorruptIndex)
}
