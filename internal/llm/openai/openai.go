// Package openai is a chat-completions client for OpenAI-compatible APIs.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ragchat/internal/domain"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultTimeout = 60 * time.Second
)

// Config configures the chat-completions client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements domain.Completer over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a chat-completions client. The API key is required.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing model API key", domain.ErrInvalidConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type response struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends one chat-completions request and returns the first choice.
func (c *Client) Complete(ctx context.Context, turns []domain.Turn, model string, temperature float64) (string, error) {
	msgs := make([]message, len(turns))
	for i, t := range turns {
		msgs[i] = message{Role: string(t.Role), Content: t.Content}
	}
	data, err := json.Marshal(request{Model: model, Messages: msgs, Temperature: temperature})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %w", domain.ErrModelCallFailure, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %w", domain.ErrModelCallFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", transportError(err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %s: %s", domain.ErrModelCallFailure, model, statusReason(resp, payload))
	}

	var out response
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("%w: malformed response: %w", domain.ErrModelCallFailure, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: malformed response: no choices", domain.ErrModelCallFailure)
	}
	content := out.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: malformed response: empty content", domain.ErrModelCallFailure)
	}
	return content, nil
}

func transportError(err error) error {
	if domain.IsTimeout(err) {
		return fmt.Errorf("%w: %w: %w", domain.ErrModelCallFailure, domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrModelCallFailure, err)
}

func statusReason(resp *http.Response, payload []byte) string {
	var reason string
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		reason = "authentication rejected"
	case resp.StatusCode == http.StatusTooManyRequests:
		reason = "rate limited"
	case resp.StatusCode >= 500:
		reason = "server error"
	default:
		reason = "request rejected"
	}
	var ae apiError
	if json.Unmarshal(payload, &ae) == nil && ae.Error.Message != "" {
		return fmt.Sprintf("%s (%s): %s", reason, resp.Status, ae.Error.Message)
	}
	return fmt.Sprintf("%s (%s)", reason, resp.Status)
}
