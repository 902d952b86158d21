package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"ragchat/internal/chunker"
	"ragchat/internal/domain"
	"ragchat/internal/llm"
	"ragchat/internal/prompt"
)

// DefaultAPIKeyEnv is the environment variable read for the API key.
const DefaultAPIKeyEnv = "OPENAI_API_KEY"

// LLMConfig configures the chat model.
type LLMConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	APIKey      string `yaml:"api_key,omitempty"`
	Model       string `yaml:"model"`
	Mode        string `yaml:"mode"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	APIKey      string `yaml:"api_key,omitempty"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string                `yaml:"type"`
	Dimension   int                   `yaml:"dimension"`
	BatchSize   int                   `yaml:"batch_size"`
	Concurrency int                   `yaml:"concurrency"`
	OpenAI      *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key,omitempty"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// IndexConfig says where indexes live and which backend answers queries.
type IndexConfig struct {
	Dir     string        `yaml:"dir"`
	Backend string        `yaml:"backend"`
	Qdrant  *QdrantConfig `yaml:"qdrant,omitempty"`
}

// RetrievalConfig overrides how many chunks each model retrieves.
type RetrievalConfig struct {
	K                map[string]int `yaml:"k,omitempty"`
	SummarySentences int            `yaml:"summary_sentences"`
}

// TaskConfig bounds background operations.
type TaskConfig struct {
	TimeoutSecs int `yaml:"timeout_secs"`
}

// LogConfig configures the log file.
type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Task      TaskConfig      `yaml:"task"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrInvalidConfiguration, path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrInvalidConfiguration, path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragchat/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragchat/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// DataDir is where ragchat keeps its index and log by default.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ragchat"
	}
	return filepath.Join(home, ".local", "share", "ragchat")
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragchat", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		LLM:       LLMConfig{Model: llm.DefaultModel, Mode: prompt.General.String()},
		Embedder:  EmbedderConfig{Type: "openai", OpenAI: &OpenAIEmbedderConfig{}},
		Chunker:   ChunkerConfig{Size: chunker.DefaultSize, Overlap: chunker.DefaultOverlap},
		Index:     IndexConfig{Backend: "memory"},
		Retrieval: RetrievalConfig{SummarySentences: 3},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = DefaultAPIKeyEnv
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = llm.DefaultModel
	}
	if cfg.LLM.Mode == "" {
		cfg.LLM.Mode = prompt.General.String()
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 60
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 32
	}
	if cfg.Embedder.Concurrency == 0 {
		cfg.Embedder.Concurrency = 4
	}
	if cfg.Embedder.Type == "hashing" && cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 512
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = cfg.LLM.BaseURL
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = cfg.LLM.APIKeyEnv
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = chunker.DefaultSize
		if cfg.Chunker.Overlap == 0 {
			cfg.Chunker.Overlap = chunker.DefaultOverlap
		}
	}
	if cfg.Index.Dir == "" {
		cfg.Index.Dir = filepath.Join(DataDir(), "index")
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "memory"
	}
	if cfg.Index.Backend == "qdrant" {
		if cfg.Index.Qdrant == nil {
			cfg.Index.Qdrant = &QdrantConfig{}
		}
		if cfg.Index.Qdrant.URL == "" {
			cfg.Index.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.Index.Qdrant.Collection == "" {
			cfg.Index.Qdrant.Collection = "ragchat"
		}
		if cfg.Index.Qdrant.TimeoutSecs == 0 {
			cfg.Index.Qdrant.TimeoutSecs = 10
		}
	}
	if cfg.Retrieval.SummarySentences == 0 {
		cfg.Retrieval.SummarySentences = 3
	}
	if cfg.Task.TimeoutSecs == 0 {
		cfg.Task.TimeoutSecs = 300
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(DataDir(), "ragchat.log")
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LLMKey returns the model API key: the literal value if set, otherwise the
// variable named by api_key_env.
func (c *AppConfig) LLMKey() string {
	return resolveKey(c.LLM.APIKey, c.LLM.APIKeyEnv)
}

// EmbedderKey returns the embeddings API key, falling back to the model key.
func (c *AppConfig) EmbedderKey() string {
	if c.Embedder.OpenAI != nil {
		if k := resolveKey(c.Embedder.OpenAI.APIKey, c.Embedder.OpenAI.APIKeyEnv); k != "" {
			return k
		}
	}
	return c.LLMKey()
}

func resolveKey(literal, env string) string {
	if literal != "" {
		return literal
	}
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}

// Validate fails fast with ErrInvalidConfiguration before anything is shown
// to the user. It reports every problem at once.
func (c *AppConfig) Validate() error {
	var errs []error
	if err := llm.ValidateModel(c.LLM.Model); err != nil {
		errs = append(errs, err)
	}
	if _, err := prompt.ParseMode(c.LLM.Mode); err != nil {
		errs = append(errs, err)
	}
	if c.LLMKey() == "" {
		errs = append(errs, fmt.Errorf("%w: no API key: set llm.api_key or %s", domain.ErrInvalidConfiguration, c.LLM.APIKeyEnv))
	}
	switch c.Embedder.Type {
	case "hashing":
	case "openai":
		if c.EmbedderKey() == "" {
			errs = append(errs, fmt.Errorf("%w: no embeddings API key", domain.ErrInvalidConfiguration))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown embedder %q", domain.ErrInvalidConfiguration, c.Embedder.Type))
	}
	if _, err := chunker.NewWindow(c.Chunker.Size, c.Chunker.Overlap); err != nil {
		errs = append(errs, err)
	}
	switch c.Index.Backend {
	case "memory", "qdrant":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown index backend %q", domain.ErrInvalidConfiguration, c.Index.Backend))
	}
	for model, k := range c.Retrieval.K {
		if err := llm.ValidateModel(model); err != nil {
			errs = append(errs, fmt.Errorf("retrieval.k: %w", err))
		} else if k <= 0 {
			errs = append(errs, fmt.Errorf("%w: retrieval.k for %s must be positive", domain.ErrInvalidConfiguration, model))
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown log level %q", domain.ErrInvalidConfiguration, c.Log.Level))
	}
	return errors.Join(errs...)
}

// ModeValue returns the configured mode. Call Validate first.
func (c *AppConfig) ModeValue() prompt.Mode {
	m, _ := prompt.ParseMode(c.LLM.Mode)
	return m
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *AppConfig) LLMTimeout() time.Duration { return seconds(c.LLM.TimeoutSecs) }

func (c *AppConfig) TaskTimeout() time.Duration { return seconds(c.Task.TimeoutSecs) }

func (c *AppConfig) EmbedderTimeout() time.Duration {
	if c.Embedder.OpenAI == nil {
		return 0
	}
	return seconds(c.Embedder.OpenAI.TimeoutSecs)
}

func (c *AppConfig) QdrantTimeout() time.Duration {
	if c.Index.Qdrant == nil {
		return 0
	}
	return seconds(c.Index.Qdrant.TimeoutSecs)
}
