package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func TestSplit_InvalidParameters(t *testing.T) {
	doc := domain.Document{ID: "d", Content: "hello"}
	for _, p := range [][2]int{{10, 10}, {5, 7}, {10, -1}, {0, 0}} {
		_, err := Split(doc, p[0], p[1])
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration, "size=%d overlap=%d", p[0], p[1])
	}
	_, err := NewWindow(100, 100)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestSplit_EmptyDocument(t *testing.T) {
	chunks, err := Split(domain.Document{ID: "d"}, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplit_ShortDocumentIsOneChunk(t *testing.T) {
	chunks, err := Split(domain.Document{ID: "d", Content: "short"}, 10, 2)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short", chunks[0].Text)
	assert.Equal(t, "d:0", chunks[0].ChunkID)
}

func TestSplit_KnownWindows(t *testing.T) {
	chunks, err := Split(domain.Document{ID: "d", Content: "abcdefghij"}, 4, 1)
	require.NoError(t, err)
	var texts []string
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	assert.Equal(t, []string{"abcd", "defg", "ghij", "j"}, texts)
	assert.Equal(t, []int{0, 3, 6, 9}, []int{chunks[0].Start, chunks[1].Start, chunks[2].Start, chunks[3].Start})
}

func TestSplit_CoverageAndOverlap(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 37)
	for _, p := range [][2]int{{50, 0}, {50, 10}, {1500, 100}, {7, 6}, {33, 1}} {
		size, overlap := p[0], p[1]
		chunks, err := Split(domain.Document{ID: "doc", Content: text}, size, overlap)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)

		runes := []rune(text)
		for i, c := range chunks {
			assert.Equal(t, i, c.Index)
			assert.Equal(t, "doc", c.DocumentID)
			n := utf8.RuneCountInString(c.Text)
			if i < len(chunks)-1 {
				assert.Equal(t, size, n, "non-final chunk %d", i)
				next := []rune(chunks[i+1].Text)
				cur := []rune(c.Text)
				ov := min(overlap, len(next))
				assert.Equal(t, string(cur[len(cur)-overlap:len(cur)-overlap+ov]), string(next[:ov]), "overlap %d", i)
			} else {
				assert.LessOrEqual(t, n, size)
			}
			assert.Equal(t, string(runes[c.Start:c.Start+n]), c.Text)
		}
		last := chunks[len(chunks)-1]
		assert.Equal(t, len(runes), last.Start+utf8.RuneCountInString(last.Text), "covers the end")
	}
}

func TestSplit_MultibyteRunesAreNotCut(t *testing.T) {
	text := strings.Repeat("héllo wörld ✓ ", 20)
	chunks, err := Split(domain.Document{ID: "d", Content: text}, 9, 3)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Text))
	}
}

func TestSplit_Deterministic(t *testing.T) {
	doc := domain.Document{ID: "d", Content: strings.Repeat("xyz ", 500)}
	a, err := Split(doc, 64, 8)
	require.NoError(t, err)
	b, err := Split(doc, 64, 8)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWindows_StopsEarly(t *testing.T) {
	count := 0
	for range Windows(strings.Repeat("a", 100), 10, 0) {
		count++
		if count == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
}

func TestWindow_Chunk(t *testing.T) {
	w, err := NewWindow(DefaultSize, DefaultOverlap)
	require.NoError(t, err)
	chunks, err := w.Chunk(domain.Document{ID: "d", Content: strings.Repeat("a", 3000)})
	require.NoError(t, err)
	// starts at 0, 1400, 2800
	assert.Len(t, chunks, 3)
}
