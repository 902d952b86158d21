package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
	"ragchat/internal/llm"
	"ragchat/internal/prompt"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, llm.DefaultModel, cfg.LLM.Model)
	assert.Equal(t, "general", cfg.LLM.Mode)
	assert.Equal(t, 1500, cfg.Chunker.Size)
	assert.Equal(t, 100, cfg.Chunker.Overlap)
	assert.Equal(t, "openai", cfg.Embedder.Type)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "memory", cfg.Index.Backend)
	assert.Equal(t, DefaultAPIKeyEnv, cfg.LLM.APIKeyEnv)
}

func TestLoad_ParsesSectionsAndFillsGaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  model: gpt-4
  mode: factual
  api_key: sk-literal
embedder:
  type: hashing
chunker:
  size: 400
  overlap: 40
index:
  dir: /tmp/ragchat-index
  backend: qdrant
  qdrant:
    collection: docs
retrieval:
  k:
    gpt-4: 2
log:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, llm.GPT4, cfg.LLM.Model)
	assert.Equal(t, prompt.Factual, cfg.ModeValue())
	assert.Equal(t, 512, cfg.Embedder.Dimension)
	assert.Nil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, 400, cfg.Chunker.Size)
	assert.Equal(t, 40, cfg.Chunker.Overlap)
	assert.Equal(t, "/tmp/ragchat-index", cfg.Index.Dir)
	assert.Equal(t, "http://localhost:6333", cfg.Index.Qdrant.URL)
	assert.Equal(t, "docs", cfg.Index.Qdrant.Collection)
	assert.Equal(t, map[string]int{llm.GPT4: 2}, cfg.Retrieval.K)
	assert.Equal(t, "sk-literal", cfg.LLMKey())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unclosed"), 0o644))
	_, err := Load(path)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.LLM.Model = llm.GPT35Turbo16K
	require.NoError(t, Save(path, cfg))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestKeys_FromEnvironment(t *testing.T) {
	t.Setenv("RAGCHAT_TEST_KEY", "sk-env")
	t.Setenv("RAGCHAT_EMBED_KEY", "")
	cfg := defaultConfig()
	cfg.LLM.APIKeyEnv = "RAGCHAT_TEST_KEY"
	cfg.Embedder.OpenAI.APIKeyEnv = "RAGCHAT_EMBED_KEY"
	assert.Equal(t, "sk-env", cfg.LLMKey())
	assert.Equal(t, "sk-env", cfg.EmbedderKey(), "falls back to the model key")

	t.Setenv("RAGCHAT_EMBED_KEY", "sk-embed")
	assert.Equal(t, "sk-embed", cfg.EmbedderKey())
}

func TestValidate(t *testing.T) {
	t.Setenv("RAGCHAT_TEST_KEY", "sk-env")
	valid := func() *AppConfig {
		cfg := defaultConfig()
		cfg.LLM.APIKeyEnv = "RAGCHAT_TEST_KEY"
		cfg.Embedder.OpenAI.APIKeyEnv = "RAGCHAT_TEST_KEY"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"missing key", func(c *AppConfig) {
			c.LLM.APIKeyEnv = "RAGCHAT_UNSET_KEY"
			c.Embedder.OpenAI.APIKeyEnv = "RAGCHAT_UNSET_KEY"
		}},
		{"unknown model", func(c *AppConfig) { c.LLM.Model = "gpt-2" }},
		{"unknown mode", func(c *AppConfig) { c.LLM.Mode = "poetic" }},
		{"overlap too big", func(c *AppConfig) { c.Chunker.Overlap = c.Chunker.Size }},
		{"negative overlap", func(c *AppConfig) { c.Chunker.Overlap = -1 }},
		{"unknown embedder", func(c *AppConfig) { c.Embedder.Type = "word2vec" }},
		{"unknown backend", func(c *AppConfig) { c.Index.Backend = "faiss" }},
		{"bad k", func(c *AppConfig) { c.Retrieval.K = map[string]int{llm.GPT4: 0} }},
		{"k for unknown model", func(c *AppConfig) { c.Retrieval.K = map[string]int{"gpt-2": 3} }},
		{"bad log level", func(c *AppConfig) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), domain.ErrInvalidConfiguration)
		})
	}
}

func TestValidate_HashingEmbedderNeedsOnlyModelKey(t *testing.T) {
	cfg := defaultConfig()
	cfg.LLM.APIKey = "sk-literal"
	cfg.Embedder.Type = "hashing"
	cfg.Embedder.OpenAI = nil
	assert.NoError(t, cfg.Validate())
}
