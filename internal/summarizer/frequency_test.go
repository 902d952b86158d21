package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize_ShortTextReturnedWhole(t *testing.T) {
	s := NewFrequency()
	got, err := s.Summarize("The sky is blue.  Grass is\ngreen", 3)
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue. Grass is green", got)

	got, err = s.Summarize("   ", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSummarize_PicksFrequentTopicsInOrder(t *testing.T) {
	text := "Rust is a language. Vector indexes rank chunks by similarity. " +
		"Bananas are yellow. Vector similarity ranks chunks for retrieval. " +
		"The weather was fine."
	got, err := NewFrequency().Summarize(text, 2)
	require.NoError(t, err)
	assert.Equal(t, "Vector indexes rank chunks by similarity. Vector similarity ranks chunks for retrieval.", got)
}

func TestSummarize_Deterministic(t *testing.T) {
	text := strings.Repeat("Alpha beta. Gamma delta. Epsilon zeta. ", 3)
	s := NewFrequency()
	first, err := s.Summarize(text, 2)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := s.Summarize(text, 2)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	// ties keep the earliest sentences
	assert.Equal(t, "Alpha beta. Gamma delta.", first)
}

func TestSummarize_DefaultLimit(t *testing.T) {
	text := "One fish. Two fish. Red fish. Blue fish. Old fish."
	got, err := NewFrequency().Summarize(text, 0)
	require.NoError(t, err)
	assert.Len(t, sentencePattern.FindAllString(got, -1), DefaultSentences)
}
