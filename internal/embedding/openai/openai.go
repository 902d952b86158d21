package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"ragchat/internal/domain"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing embeddings API key", domain.ErrInvalidConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: t},
	}, nil
}

// Name returns the identifier of this embedder, including the model so an
// index built with one model is never queried with another.
func (c *Client) Name() string { return "openai/" + c.model }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) (domain.Embedding, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds all texts in one request. The result is ordered like the input.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	type reqBody struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	data, err := json.Marshal(reqBody{Input: texts, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", domain.ErrEmbeddingFailure, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", domain.ErrEmbeddingFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if domain.IsTimeout(err) {
			return nil, fmt.Errorf("%w: %w: %w", domain.ErrEmbeddingFailure, domain.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingFailure, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if domain.IsTimeout(err) {
			return nil, fmt.Errorf("%w: %w: read body: %w", domain.ErrEmbeddingFailure, domain.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrEmbeddingFailure, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: openai embeddings failed: %s", domain.ErrEmbeddingFailure, statusReason(resp))
	}
	vectors, err := decode(payload, len(texts))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingFailure, err)
	}
	return vectors, nil
}

// decode accepts the OpenAI shape {"data":[{"index":i,"embedding":[...]}]} and,
// for single inputs, the Ollama-native shape {"embedding":[...]}.
func decode(payload []byte, want int) ([]domain.Embedding, error) {
	var openaiOut struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil && len(openaiOut.Data) > 0 {
		if len(openaiOut.Data) != want {
			return nil, fmt.Errorf("got %d embeddings for %d inputs", len(openaiOut.Data), want)
		}
		sort.SliceStable(openaiOut.Data, func(i, j int) bool { return openaiOut.Data[i].Index < openaiOut.Data[j].Index })
		out := make([]domain.Embedding, want)
		for i, d := range openaiOut.Data {
			if len(d.Embedding) == 0 {
				return nil, errors.New("empty embedding")
			}
			out[i] = d.Embedding
		}
		return out, nil
	}
	var ollamaOut struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil && len(ollamaOut.Embedding) > 0 && want == 1 {
		return []domain.Embedding{ollamaOut.Embedding}, nil
	}
	return nil, errors.New("no embedding returned")
}

func statusReason(resp *http.Response) string {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "authentication rejected (" + resp.Status + ")"
	case resp.StatusCode == http.StatusTooManyRequests:
		return "rate limited (" + resp.Status + ")"
	default:
		return resp.Status
	}
}
