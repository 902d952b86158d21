package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	s := 0.0
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestEmbed_FixedDimensionAndNormalised(t *testing.T) {
	e := NewEmbedder(64)
	v, err := e.Embed(context.Background(), "The sky is blue today")
	require.NoError(t, err)
	assert.Len(t, v, 64)
	assert.InDelta(t, 1.0, norm(v), 1e-6)
	assert.Equal(t, 64, e.Dimension())
}

func TestEmbed_OnlyStopwordsGivesZeroVector(t *testing.T) {
	v, err := NewEmbedder(0).Embed(context.Background(), "the and of")
	require.NoError(t, err)
	assert.Len(t, v, DefaultDimension)
	assert.Zero(t, norm(v))
}

func TestEmbed_Deterministic(t *testing.T) {
	e := NewEmbedder(128)
	a, _ := e.Embed(context.Background(), "grass is green")
	b, _ := e.Embed(context.Background(), "Grass is GREEN")
	assert.Equal(t, a, b)
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	e := NewEmbedder(32)
	texts := []string{"alpha", "beta", "gamma"}
	batch, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	for i, text := range texts {
		single, _ := e.Embed(context.Background(), text)
		assert.Equal(t, single, batch[i])
	}
}

func TestEmbed_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbedder(8).Embed(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestName_IncludesDimension(t *testing.T) {
	assert.Equal(t, "hashing/64", NewEmbedder(64).Name())
	assert.Equal(t, "hashing/512", NewEmbedder(0).Name())
}
