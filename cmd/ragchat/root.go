package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ragchat/internal/chunker"
	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/embedding/hashing"
	embopenai "ragchat/internal/embedding/openai"
	llmopenai "ragchat/internal/llm/openai"
	"ragchat/internal/loader"
	"ragchat/internal/service"
	"ragchat/internal/summarizer"
	"ragchat/internal/vectorindex"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/qdrant"
)

var (
	cfgPath   string
	indexDir  string
	modeFlag  string
	modelFlag string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "ragchat",
	Short: "Chat with a language model grounded in your documents",
	Long: "ragchat ingests documents into a persistent vector index and answers questions " +
		"with retrieved context. Without a subcommand it starts the chat interface.",
	Args: cobra.ArbitraryArgs,
	Run:  runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config file (default ./config.yaml or ~/.config/ragchat/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&indexDir, "index", "", "Index directory (overrides index.dir)")
	rootCmd.PersistentFlags().StringVar(&modeFlag, "mode", "", "Mode: general, factual or creative")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Model id")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

// app is the assembled program.
type app struct {
	cfg    *config.AppConfig
	engine *service.Engine
	loader *loader.FileLoader
	log    *slog.Logger
	closer func()
}

// mustApp loads configuration and wires every component. Startup failures
// are fatal before any UI is shown.
func mustApp() *app {
	_ = godotenv.Load()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if indexDir != "" {
		cfg.Index.Dir = indexDir
	}
	if modeFlag != "" {
		cfg.LLM.Mode = modeFlag
	}
	if modelFlag != "" {
		cfg.LLM.Model = modelFlag
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, closer, err := openLog(cfg.Log)
	if err != nil {
		log.Fatalf("failed to open log: %v", err)
	}

	emb, err := newEmbedder(cfg)
	if err != nil {
		log.Fatalf("embedder init failed: %v", err)
	}
	completer, err := llmopenai.NewClient(llmopenai.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLMKey(),
		Timeout: cfg.LLMTimeout(),
	})
	if err != nil {
		log.Fatalf("model client init failed: %v", err)
	}
	win, err := chunker.NewWindow(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		log.Fatalf("chunker init failed: %v", err)
	}

	ld := loader.New()
	engine, err := service.New(service.Config{
		Model:            cfg.LLM.Model,
		Mode:             cfg.ModeValue(),
		IndexDir:         cfg.Index.Dir,
		KOverrides:       cfg.Retrieval.K,
		SummarySentences: cfg.Retrieval.SummarySentences,
		OpTimeout:        cfg.TaskTimeout(),
		IndexOptions: vectorindex.Options{
			BatchSize:   cfg.Embedder.BatchSize,
			Concurrency: cfg.Embedder.Concurrency,
			NewBackend:  newBackend(cfg),
		},
	}, service.Deps{
		Loader:     ld,
		Chunker:    win,
		Embedder:   emb,
		Completer:  completer,
		Summarizer: summarizer.NewFrequency(),
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}
	logger.Info("ragchat started",
		slog.String("model", cfg.LLM.Model),
		slog.String("mode", cfg.LLM.Mode),
		slog.String("embedder", emb.Name()),
		slog.String("index_dir", cfg.Index.Dir),
		slog.String("backend", cfg.Index.Backend))
	return &app{cfg: cfg, engine: engine, loader: ld, log: logger, closer: closer}
}

func newEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "hashing":
		return hashing.NewEmbedder(cfg.Embedder.Dimension), nil
	case "openai":
		oc := cfg.Embedder.OpenAI
		return embopenai.NewClient(embopenai.Config{
			BaseURL: oc.BaseURL,
			APIKey:  cfg.EmbedderKey(),
			Model:   oc.Model,
			Timeout: cfg.EmbedderTimeout(),
		})
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", domain.ErrInvalidConfiguration, cfg.Embedder.Type)
	}
}

// newBackend returns nil for the in-memory backend, which every index then
// creates for itself. Qdrant indexes each get their own collection.
func newBackend(cfg *config.AppConfig) func() vectorstore.Backend {
	if cfg.Index.Backend != "qdrant" {
		return nil
	}
	q := cfg.Index.Qdrant
	return qdrant.NewFactory(qdrant.Config{
		URL:        q.URL,
		APIKey:     q.APIKey,
		Collection: q.Collection,
		Timeout:    cfg.QdrantTimeout(),
	})
}

func openLog(lc config.LogConfig) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(lc.File), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, func() { _ = f.Close() }, nil
}

// openExisting reopens the index persisted in the configured directory so
// new documents extend it. The configured mode is kept.
func (a *app) openExisting(ctx context.Context) {
	err := a.engine.OpenIndex(ctx, a.cfg.Index.Dir)
	switch {
	case err == nil:
		a.engine.SetMode(a.cfg.ModeValue())
	case errors.Is(err, domain.ErrNotFound):
	default:
		fmt.Fprintf(os.Stderr, "warning: %s\n", service.Notice(err))
	}
}

// headless prepares the engine for commands that wait on results instead of
// showing them as they arrive.
func (a *app) headless(ctx context.Context) {
	a.engine.MuteEvents()
	a.openExisting(ctx)
}

func (a *app) close() {
	a.engine.Close()
	if a.closer != nil {
		a.closer()
	}
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %s\n", msg, service.Notice(err))
	os.Exit(1)
}
