package vectorstore

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ragchat/internal/domain"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name     string
		a, b     domain.Embedding
		expected float64
	}{
		{"identical", domain.Embedding{1, 0, 0}, domain.Embedding{1, 0, 0}, 1.0},
		{"orthogonal", domain.Embedding{1, 0, 0}, domain.Embedding{0, 1, 0}, 0.0},
		{"opposite", domain.Embedding{1, 0, 0}, domain.Embedding{-1, 0, 0}, -1.0},
		{"similar", domain.Embedding{1, 1, 0}, domain.Embedding{1, 0, 0}, 0.7071},
		{"empty", domain.Embedding{}, domain.Embedding{}, 0.0},
		{"different lengths", domain.Embedding{1, 0}, domain.Embedding{1, 0, 0}, 0.0},
		{"zero vector", domain.Embedding{0, 0, 0}, domain.Embedding{1, 0, 0}, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Cosine(tt.a, tt.b), 0.001)
		})
	}
}

func TestVectorEncoding(t *testing.T) {
	v := domain.Embedding{0, -1.5, float32(math.Pi), 1e-20}
	got, ok := DecodeVector(EncodeVector(v))
	assert.True(t, ok)
	assert.Equal(t, v, got)

	_, ok = DecodeVector([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestDigest_ChangesWithContent(t *testing.T) {
	snap := Snapshot{
		Meta: Meta{ID: "01H", Embedder: "hashing", Dimension: 2, CreatedAt: time.Unix(100, 0)},
		Entries: []Entry{
			{Seq: 0, Chunk: domain.Chunk{DocumentID: "d", ChunkID: "d:0", Text: "sky"}, Vector: domain.Embedding{1, 0}},
		},
	}
	base := snap.Digest()
	assert.Equal(t, base, snap.Digest())

	changed := snap
	changed.Entries = []Entry{{Seq: 0, Chunk: domain.Chunk{DocumentID: "d", ChunkID: "d:0", Text: "sea"}, Vector: domain.Embedding{1, 0}}}
	assert.NotEqual(t, base, changed.Digest())

	moved := snap
	moved.Entries = []Entry{{Seq: 0, Chunk: snap.Entries[0].Chunk, Vector: domain.Embedding{0, 1}}}
	assert.NotEqual(t, base, moved.Digest())
}
