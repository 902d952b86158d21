// Package summarizer builds short extractive summaries of ingested documents.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// DefaultSentences is used when a caller passes a non-positive limit.
const DefaultSentences = 3

var (
	tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	// a trailing fragment without terminal punctuation still counts
	sentencePattern = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)
)

// Frequency ranks sentences by the normalized frequency of their content
// words and keeps the best ones in document order.
type Frequency struct {
	stopwords map[string]struct{}
}

// NewFrequency creates a frequency-based summarizer.
func NewFrequency() *Frequency {
	return &Frequency{stopwords: defaultStopwords()}
}

// Summarize returns at most maxSentences sentences of text. Equal scores
// prefer the earlier sentence so the output is deterministic.
func (s *Frequency) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = DefaultSentences
	}
	var sentences []string
	for _, m := range sentencePattern.FindAllString(text, -1) {
		if sent := strings.Join(strings.Fields(m), " "); sent != "" {
			sentences = append(sentences, sent)
		}
	}
	if len(sentences) == 0 {
		return "", nil
	}
	if len(sentences) <= maxSentences {
		return strings.Join(sentences, " "), nil
	}

	tokenized := make([][]string, len(sentences))
	freq := map[string]float64{}
	for i, sent := range sentences {
		tokenized[i] = s.tokens(sent)
		for _, tok := range tokenized[i] {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, toks := range tokenized {
		total := 0.0
		for _, tok := range toks {
			total += freq[tok] / maxF
		}
		if len(toks) > 0 {
			// dampen the advantage of long sentences
			total /= math.Sqrt(float64(len(toks)))
		}
		scores[i] = scored{i, total}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	selected := make([]int, maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

// tokens returns the lowercased content words of text.
func (s *Frequency) tokens(text string) []string {
	all := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := all[:0]
	for _, t := range all {
		if _, stop := s.stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now", "we", "you", "they", "he", "she", "i",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
