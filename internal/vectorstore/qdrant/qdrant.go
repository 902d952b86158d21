package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// pointNamespace seeds the UUIDv5 point IDs; Qdrant only accepts integers or UUIDs.
var pointNamespace = uuid.MustParse("6f1c1f0e-4a43-4b4e-9a57-2f2f8f0c9d10")

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and recreates the collection on Reset.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// NewFactory returns a constructor for per-index storages. Each one gets its
// own collection, named cfg.Collection plus a fresh ULID, so rebuilding one
// index never touches the collection another index is searching.
func NewFactory(cfg Config) func() vectorstore.Backend {
	return func() vectorstore.Backend {
		c := cfg
		c.Collection = cfg.Collection + "_" + strings.ToLower(ulid.Make().String())
		return NewStorage(c)
	}
}

func (s *Storage) Name() string { return "qdrant" }

// Collection is the name of the collection this storage writes to.
func (s *Storage) Collection() string { return s.collection }

// Drop deletes the collection. A missing collection is not an error.
func (s *Storage) Drop(ctx context.Context) error {
	return s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil, http.StatusNotFound)
}

// PointID maps a chunk id onto a stable UUID.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

func (s *Storage) Reset(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	// A missing collection returns 404 here, which is fine.
	if err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil, http.StatusNotFound); err != nil {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return s.do(ctx, http.MethodPut, s.collectionURL(), body, nil)
}

func (s *Storage) Upsert(ctx context.Context, entries []vectorstore.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		points[i] = map[string]any{
			"id":     PointID(e.Chunk.ChunkID),
			"vector": e.Vector,
			"payload": map[string]any{
				"seq":         e.Seq,
				"document_id": e.Chunk.DocumentID,
				"chunk_id":    e.Chunk.ChunkID,
				"index":       e.Chunk.Index,
				"start":       e.Chunk.Start,
				"text":        e.Chunk.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", body, nil)
}

// Search asks Qdrant for the nearest points and re-sorts them by score and
// insertion sequence, since Qdrant gives no ordering guarantee for ties.
func (s *Storage) Search(ctx context.Context, vector domain.Embedding, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return nil, errors.New("topK must be positive")
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	type ranked struct {
		seq int
		res domain.SearchResult
	}
	out := make([]ranked, 0, len(resp.Result))
	for _, r := range resp.Result {
		chunk := domain.Chunk{}
		if v, ok := r.Payload["document_id"].(string); ok {
			chunk.DocumentID = v
		}
		if v, ok := r.Payload["chunk_id"].(string); ok {
			chunk.ChunkID = v
		}
		if v, ok := r.Payload["index"].(float64); ok {
			chunk.Index = int(v)
		}
		if v, ok := r.Payload["start"].(float64); ok {
			chunk.Start = int(v)
		}
		if v, ok := r.Payload["text"].(string); ok {
			chunk.Text = v
		}
		seq := 0
		if v, ok := r.Payload["seq"].(float64); ok {
			seq = int(v)
		}
		out = append(out, ranked{seq: seq, res: domain.SearchResult{Chunk: chunk, Score: r.Score}})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].res.Score != out[j].res.Score {
			return out[i].res.Score > out[j].res.Score
		}
		return out[i].seq < out[j].seq
	})
	results := make([]domain.SearchResult, len(out))
	for i, r := range out {
		results[i] = r.res
	}
	return results, nil
}

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

// do sends a JSON request. Status codes listed in allow are not errors.
func (s *Storage) do(ctx context.Context, method, url string, body, out any, allow ...int) error {
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	for _, code := range allow {
		if resp.StatusCode == code {
			return nil
		}
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
