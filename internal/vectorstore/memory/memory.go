package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	entries   []vectorstore.Entry
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Name() string { return "memory" }

func (s *Storage) Reset(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.entries = nil
	return nil
}

func (s *Storage) Upsert(_ context.Context, entries []vectorstore.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if len(e.Vector) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	s.entries = append(s.entries, entries...)
	return nil
}

// Search ranks every entry by cosine similarity. Equal scores keep their
// insertion order.
func (s *Storage) Search(_ context.Context, vector domain.Embedding, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		return nil, errors.New("topK must be positive")
	}
	if len(s.entries) > 0 && len(vector) != s.dimension {
		return nil, errors.New("query dimension mismatch")
	}
	scores := make([]float64, len(s.entries))
	for i := range s.entries {
		scores[i] = vectorstore.Cosine(s.entries[i].Vector, vector)
	}
	idxs := argsortDesc(scores, s.entries)
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.SearchResult, 0, topK)
	for i := 0; i < topK; i++ {
		j := idxs[i]
		results = append(results, domain.SearchResult{Chunk: s.entries[j].Chunk, Score: scores[j]})
	}
	return results, nil
}

func argsortDesc(vals []float64, entries []vectorstore.Entry) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool {
		ia, ib := idxs[a], idxs[b]
		if vals[ia] != vals[ib] {
			return vals[ia] > vals[ib]
		}
		return entries[ia].Seq < entries[ib].Seq
	})
	return idxs
}
