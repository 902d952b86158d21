// Package chunker splits documents into overlapping fixed-size windows.
package chunker

import (
	"fmt"
	"iter"
	"strconv"
	"unicode/utf8"

	"ragchat/internal/domain"
)

const (
	DefaultSize    = 1500
	DefaultOverlap = 100
)

// Window cuts documents into windows of Size runes, each sharing Overlap
// runes with its predecessor.
type Window struct {
	size    int
	overlap int
}

// NewWindow validates the parameters and returns a chunker.
func NewWindow(size, overlap int) (*Window, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	return &Window{size: size, overlap: overlap}, nil
}

// Chunk splits the document with the configured parameters.
func (w *Window) Chunk(document domain.Document) ([]domain.Chunk, error) {
	return Split(document, w.size, w.overlap)
}

// Split walks the document with a window of maxSize runes, advancing by
// maxSize-overlap until the window start reaches the end of the text.
func Split(document domain.Document, maxSize, overlap int) ([]domain.Chunk, error) {
	if err := validate(maxSize, overlap); err != nil {
		return nil, err
	}
	var chunks []domain.Chunk
	for start, text := range Windows(document.Content, maxSize, overlap) {
		idx := len(chunks)
		chunks = append(chunks, domain.Chunk{
			DocumentID: document.ID,
			ChunkID:    document.ID + ":" + strconv.Itoa(idx),
			Text:       text,
			Index:      idx,
			Start:      start,
		})
	}
	return chunks, nil
}

// Windows lazily yields (rune offset, text) pairs. Only one window is
// materialised at a time; the yielded strings share the input's memory.
// Parameters are assumed valid.
func Windows(text string, maxSize, overlap int) iter.Seq2[int, string] {
	step := maxSize - overlap
	return func(yield func(int, string) bool) {
		startByte, startRune := 0, 0
		for startByte < len(text) {
			end := advance(text, startByte, maxSize)
			if !yield(startRune, text[startByte:end]) {
				return
			}
			startByte = advance(text, startByte, step)
			startRune += step
		}
	}
}

// advance returns the byte offset n runes after from, clamped to len(s).
func advance(s string, from, n int) int {
	i := from
	for ; n > 0 && i < len(s); n-- {
		_, w := utf8.DecodeRuneInString(s[i:])
		i += w
	}
	return i
}

func validate(size, overlap int) error {
	if overlap < 0 || size <= overlap {
		return fmt.Errorf("%w: chunk size %d must exceed overlap %d >= 0", domain.ErrInvalidConfiguration, size, overlap)
	}
	return nil
}
