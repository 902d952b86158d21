// Package vectorindex keeps chunk embeddings for similarity retrieval and
// persists them to a location on disk.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/memory"
	"ragchat/internal/vectorstore/sqlite"
)

const (
	DefaultBatchSize   = 32
	DefaultConcurrency = 4
)

// Options tunes embedding fan-out and picks the search backend.
type Options struct {
	BatchSize   int
	Concurrency int
	// NewBackend gives every index its own search backend; nil means an
	// in-memory brute-force store.
	NewBackend func() vectorstore.Backend
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.NewBackend == nil {
		o.NewBackend = func() vectorstore.Backend { return memory.NewStorage() }
	}
	return o
}

// Index is an ordered collection of (chunk, embedding) pairs.
type Index struct {
	mu       sync.RWMutex
	meta     vectorstore.Meta
	entries  []vectorstore.Entry
	embedder domain.Embedder
	backend  vectorstore.Backend
	opts     Options
}

// CreateFrom embeds every chunk and builds a fresh index. Nothing is
// returned unless every embedding succeeds.
func CreateFrom(ctx context.Context, embedder domain.Embedder, chunks []domain.Chunk, opts Options) (*Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: cannot create an index from zero chunks", domain.ErrInvalidConfiguration)
	}
	opts = opts.withDefaults()
	vectors, err := embedAll(ctx, embedder, chunks, opts)
	if err != nil {
		return nil, err
	}
	dim := len(vectors[0])
	if err := checkDimension(vectors, dim); err != nil {
		return nil, err
	}
	idx := &Index{
		meta: vectorstore.Meta{
			ID:        ulid.Make().String(),
			Embedder:  embedder.Name(),
			Dimension: dim,
			CreatedAt: time.Now().UTC(),
		},
		entries:  makeEntries(0, chunks, vectors),
		embedder: embedder,
		backend:  opts.NewBackend(),
		opts:     opts,
	}
	if err := idx.rebuildBackend(ctx); err != nil {
		_ = idx.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return idx, nil
}

// Open loads the index persisted at location. The embedder must be the one
// the index was built with.
func Open(ctx context.Context, location string, embedder domain.Embedder, opts Options) (*Index, error) {
	snap, err := sqlite.Read(ctx, location)
	if err != nil {
		return nil, err
	}
	if snap.Meta.Embedder != embedder.Name() {
		return nil, fmt.Errorf("%w: index at %s was built with embedder %q, configured embedder is %q",
			domain.ErrInvalidConfiguration, location, snap.Meta.Embedder, embedder.Name())
	}
	opts = opts.withDefaults()
	idx := &Index{
		meta:     snap.Meta,
		entries:  snap.Entries,
		embedder: embedder,
		backend:  opts.NewBackend(),
		opts:     opts,
	}
	if err := idx.rebuildBackend(ctx); err != nil {
		_ = idx.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return idx, nil
}

// Add embeds chunks and appends them without touching existing entries.
// On error the index is unchanged.
func (x *Index) Add(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	vectors, err := embedAll(ctx, x.embedder, chunks, x.opts)
	if err != nil {
		return err
	}
	if err := checkDimension(vectors, x.meta.Dimension); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	added := makeEntries(len(x.entries), chunks, vectors)
	if err := x.backend.Upsert(ctx, added); err != nil {
		// the backend may hold part of the batch now
		_ = x.resetBackendLocked(ctx)
		return fmt.Errorf("%w: %s upsert: %w", domain.ErrStorageFailure, x.backend.Name(), err)
	}
	x.entries = append(x.entries, added...)
	return nil
}

// RemoveDocument drops every entry of documentID and renumbers the rest. It
// returns how many entries were removed.
func (x *Index) RemoveDocument(ctx context.Context, documentID string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	kept := make([]vectorstore.Entry, 0, len(x.entries))
	for _, e := range x.entries {
		if e.Chunk.DocumentID != documentID {
			e.Seq = len(kept)
			kept = append(kept, e)
		}
	}
	removed := len(x.entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	x.entries = kept
	return removed, x.resetBackendLocked(ctx)
}

// Restore puts the entries of snap back. It undoes changes made by Add or
// RemoveDocument when a later step of an ingestion fails.
func (x *Index) Restore(ctx context.Context, snap vectorstore.Snapshot) error {
	if snap.Meta.ID != x.Meta().ID {
		return fmt.Errorf("%w: snapshot of index %s cannot restore index %s", domain.ErrInvalidConfiguration, snap.Meta.ID, x.Meta().ID)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = make([]vectorstore.Entry, len(snap.Entries))
	copy(x.entries, snap.Entries)
	return x.resetBackendLocked(ctx)
}

// Close releases the search backend. Backends holding external state, such
// as a Qdrant collection, drop it.
func (x *Index) Close(ctx context.Context) error {
	d, ok := x.backend.(vectorstore.Dropper)
	if !ok {
		return nil
	}
	if err := d.Drop(ctx); err != nil {
		return fmt.Errorf("%w: %s drop: %w", domain.ErrStorageFailure, x.backend.Name(), err)
	}
	return nil
}

// Persist writes the index to location. Persisting an unchanged index again
// leaves the stored bytes untouched.
func (x *Index) Persist(ctx context.Context, location string) error {
	return sqlite.Write(ctx, location, x.Snapshot())
}

// Snapshot copies the current durable state.
func (x *Index) Snapshot() vectorstore.Snapshot {
	x.mu.RLock()
	defer x.mu.RUnlock()
	entries := make([]vectorstore.Entry, len(x.entries))
	copy(entries, x.entries)
	return vectorstore.Snapshot{Meta: x.meta, Entries: entries}
}

// Search returns up to k entries ordered by descending cosine similarity to
// text, ties in insertion order. k is clamped to the index size.
func (x *Index) Search(ctx context.Context, text string, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidConfiguration, k)
	}
	n := x.Len()
	if n == 0 {
		return nil, nil
	}
	vec, err := x.embedder.Embed(ctx, text)
	if err != nil {
		return nil, wrapEmbedding(err)
	}
	if len(vec) != x.meta.Dimension {
		return nil, fmt.Errorf("%w: query embedding has dimension %d, index has %d", domain.ErrEmbeddingFailure, len(vec), x.meta.Dimension)
	}
	k = min(k, n)

	x.mu.RLock()
	defer x.mu.RUnlock()
	res, err := x.backend.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %s search: %w", domain.ErrStorageFailure, x.backend.Name(), err)
	}
	return res, nil
}

// Query is Search without scores.
func (x *Index) Query(ctx context.Context, text string, k int) ([]domain.Chunk, error) {
	res, err := x.Search(ctx, text, k)
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, len(res))
	for i, r := range res {
		chunks[i] = r.Chunk
	}
	return chunks, nil
}

// Len returns the number of indexed chunks.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Meta returns the index metadata.
func (x *Index) Meta() vectorstore.Meta {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.meta
}

func (x *Index) rebuildBackend(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.resetBackendLocked(ctx)
}

func (x *Index) resetBackendLocked(ctx context.Context) error {
	if err := x.backend.Reset(ctx, x.meta.Dimension); err != nil {
		return fmt.Errorf("%w: %s reset: %w", domain.ErrStorageFailure, x.backend.Name(), err)
	}
	if err := x.backend.Upsert(ctx, x.entries); err != nil {
		return fmt.Errorf("%w: %s upsert: %w", domain.ErrStorageFailure, x.backend.Name(), err)
	}
	return nil
}

// embedAll embeds chunks in batches, running up to opts.Concurrency batches
// at once. The result is ordered like chunks.
func embedAll(ctx context.Context, embedder domain.Embedder, chunks []domain.Chunk, opts Options) ([]domain.Embedding, error) {
	vectors := make([]domain.Embedding, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for start := 0; start < len(chunks); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Text)
			}
			out, err := embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return wrapEmbedding(err)
			}
			if len(out) != len(texts) {
				return fmt.Errorf("%w: got %d embeddings for %d texts", domain.ErrEmbeddingFailure, len(out), len(texts))
			}
			copy(vectors[start:end], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func makeEntries(firstSeq int, chunks []domain.Chunk, vectors []domain.Embedding) []vectorstore.Entry {
	entries := make([]vectorstore.Entry, len(chunks))
	for i := range chunks {
		entries[i] = vectorstore.Entry{Seq: firstSeq + i, Chunk: chunks[i], Vector: vectors[i]}
	}
	return entries
}

func checkDimension(vectors []domain.Embedding, dim int) error {
	if dim == 0 {
		return fmt.Errorf("%w: empty embedding", domain.ErrEmbeddingFailure)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: embedding %d has dimension %d, want %d", domain.ErrEmbeddingFailure, i, len(v), dim)
		}
	}
	return nil
}

func wrapEmbedding(err error) error {
	if errors.Is(err, domain.ErrEmbeddingFailure) {
		return err
	}
	if domain.IsTimeout(err) {
		return fmt.Errorf("%w: %w: %w", domain.ErrEmbeddingFailure, domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrEmbeddingFailure, err)
}
