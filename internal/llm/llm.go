// Package llm binds a model selection and a mode to the model-call
// capability.
package llm

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"ragchat/internal/domain"
	"ragchat/internal/prompt"
)

// Supported model identifiers.
const (
	GPT35Turbo    = "gpt-3.5-turbo"
	GPT35Turbo16K = "gpt-3.5-turbo-16k"
	GPT4          = "gpt-4"
)

// DefaultModel is selected when nothing else is configured.
const DefaultModel = GPT35Turbo

var models = []string{GPT35Turbo, GPT35Turbo16K, GPT4}

// Models lists the supported model identifiers in display order.
func Models() []string { return slices.Clone(models) }

// ValidateModel fails with ErrInvalidConfiguration for unsupported ids.
func ValidateModel(model string) error {
	if !slices.Contains(models, model) {
		return fmt.Errorf("%w: unsupported model %q", domain.ErrInvalidConfiguration, model)
	}
	return nil
}

// Tier is the retrieval policy for one model: which model answers prompts
// that carry retrieved context and how many chunks they carry.
type Tier struct {
	RetrievalModel string
	K              int
}

// The small-context model is upgraded to its 16k variant for retrieval
// prompts. Larger-context models retrieve fewer chunks.
var tiers = map[string]Tier{
	GPT35Turbo:    {RetrievalModel: GPT35Turbo16K, K: 6},
	GPT35Turbo16K: {RetrievalModel: GPT35Turbo16K, K: 6},
	GPT4:          {RetrievalModel: GPT4, K: 4},
}

// TierOf returns the retrieval tier for model. overrides replaces K per
// model; non-positive overrides are ignored.
func TierOf(model string, overrides map[string]int) (Tier, error) {
	t, ok := tiers[model]
	if !ok {
		return Tier{}, fmt.Errorf("%w: unsupported model %q", domain.ErrInvalidConfiguration, model)
	}
	if k := overrides[model]; k > 0 {
		t.K = k
	}
	return t, nil
}

// Client calls one model at one mode's temperature.
type Client struct {
	completer   domain.Completer
	model       string
	mode        prompt.Mode
	temperature float64
}

// NewClient validates model before anything touches the network.
func NewClient(completer domain.Completer, model string, mode prompt.Mode) (*Client, error) {
	if completer == nil {
		return nil, fmt.Errorf("%w: no model-call capability configured", domain.ErrInvalidConfiguration)
	}
	if err := ValidateModel(model); err != nil {
		return nil, err
	}
	return &Client{
		completer:   completer,
		model:       model,
		mode:        mode,
		temperature: mode.Profile().Temperature,
	}, nil
}

func (c *Client) Model() string { return c.model }
func (c *Client) Mode() prompt.Mode { return c.mode }
func (c *Client) Temperature() float64 { return c.temperature }

// Complete sends turns and returns the assistant reply. Failures always wrap
// ErrModelCallFailure; an empty reply counts as malformed.
func (c *Client) Complete(ctx context.Context, turns []domain.Turn) (string, error) {
	reply, err := c.completer.Complete(ctx, turns, c.model, c.temperature)
	if err != nil {
		if errors.Is(err, domain.ErrModelCallFailure) {
			return "", err
		}
		if domain.IsTimeout(err) {
			return "", fmt.Errorf("%w: %w: %w", domain.ErrModelCallFailure, domain.ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %w", domain.ErrModelCallFailure, err)
	}
	if reply == "" {
		return "", fmt.Errorf("%w: empty reply from %s", domain.ErrModelCallFailure, c.model)
	}
	return reply, nil
}
