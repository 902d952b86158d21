// Package vectorstore defines the search backends and the persisted form of
// a vector index.
package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"ragchat/internal/domain"
)

// FormatVersion is bumped whenever the persisted layout changes.
const FormatVersion = 1

// Entry is one indexed chunk with its vector. Seq is the insertion position
// and breaks score ties.
type Entry struct {
	Seq    int
	Chunk  domain.Chunk
	Vector domain.Embedding
}

// Backend answers nearest-neighbour queries over the entries pushed to it.
type Backend interface {
	Name() string
	Reset(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, vector domain.Embedding, topK int) ([]domain.SearchResult, error)
}

// Dropper is implemented by backends that keep state outside the process.
type Dropper interface {
	Drop(ctx context.Context) error
}

// Meta describes an index independently of its entries.
type Meta struct {
	ID        string
	Embedder  string
	Dimension int
	CreatedAt time.Time
}

// Snapshot is the complete durable state of an index.
type Snapshot struct {
	Meta    Meta
	Entries []Entry
}

// Digest is a SHA-256 over the canonical encoding of the snapshot. It is
// stored next to the data and re-checked on load.
func (s Snapshot) Digest() string {
	h := sha256.New()
	var buf [8]byte
	putInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	putString := func(v string) {
		putInt(int64(len(v)))
		h.Write([]byte(v))
	}
	putInt(FormatVersion)
	putString(s.Meta.ID)
	putString(s.Meta.Embedder)
	putInt(int64(s.Meta.Dimension))
	putInt(s.Meta.CreatedAt.UnixNano())
	putInt(int64(len(s.Entries)))
	for _, e := range s.Entries {
		putInt(int64(e.Seq))
		putString(e.Chunk.DocumentID)
		putString(e.Chunk.ChunkID)
		putInt(int64(e.Chunk.Index))
		putInt(int64(e.Chunk.Start))
		putString(e.Chunk.Text)
		h.Write(EncodeVector(e.Vector))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// EncodeVector packs a vector as little-endian float32 values.
func EncodeVector(v domain.Embedding) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

// DecodeVector is the inverse of EncodeVector. It reports false when the
// length is not a multiple of four.
func DecodeVector(b []byte) (domain.Embedding, bool) {
	if len(b)%4 != 0 {
		return nil, false
	}
	out := make(domain.Embedding, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, true
}

// Cosine computes cosine similarity between two vectors.
func Cosine(a, b domain.Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
