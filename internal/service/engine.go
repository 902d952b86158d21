// Package service holds the conversation engine: the state machine that ties
// ingestion, retrieval, prompt assembly and model calls together.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"ragchat/internal/domain"
	"ragchat/internal/llm"
	"ragchat/internal/prompt"
	"ragchat/internal/task"
	"ragchat/internal/vectorindex"
)

// State is whether retrieval is available.
type State int

const (
	NoIndex State = iota
	IndexActive
)

func (s State) String() string {
	if s == IndexActive {
		return "index active"
	}
	return "no index"
}

// Config holds the engine settings read once at startup.
type Config struct {
	Model string
	Mode  prompt.Mode
	// IndexDir is where a new index is persisted. An index opened from
	// another location is persisted back there. Empty keeps new indexes in
	// memory only.
	IndexDir         string
	KOverrides       map[string]int
	SummarySentences int
	IndexOptions     vectorindex.Options
	OpTimeout        time.Duration
}

// Deps are the capabilities the engine drives.
type Deps struct {
	Loader     domain.Loader
	Chunker    domain.Chunker
	Embedder   domain.Embedder
	Completer  domain.Completer
	Summarizer domain.Summarizer
	Logger     *slog.Logger
}

// IngestResult is the outcome of a successful ingestion.
type IngestResult struct {
	Document string
	Chunks   int
	Total    int
	Summary  string
}

// QueryResult is the outcome of a successful query.
type QueryResult struct {
	Query     string
	Reply     string
	Model     string
	Retrieved int
}

// Engine owns the conversation, the mode and model selection and the active
// index. Background work goes through a task.Runner so at most one ingestion
// or query runs at a time.
type Engine struct {
	cfg    Config
	deps   Deps
	log    *slog.Logger
	runner *task.Runner

	mu           sync.RWMutex
	state        State
	mode         prompt.Mode
	model        string
	pending      string
	conversation []domain.Turn
	// generation changes whenever the conversation is reset, so a reply to a
	// query started before the reset is not recorded.
	generation uint64
	index      *vectorindex.Index
	location   string
}

// New validates the configuration and returns an idle engine in NoIndex.
func New(cfg Config, deps Deps) (*Engine, error) {
	if cfg.Model == "" {
		cfg.Model = llm.DefaultModel
	}
	if err := llm.ValidateModel(cfg.Model); err != nil {
		return nil, err
	}
	if deps.Loader == nil || deps.Chunker == nil || deps.Embedder == nil || deps.Completer == nil {
		return nil, fmt.Errorf("%w: engine needs a loader, chunker, embedder and completer", domain.ErrInvalidConfiguration)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		deps:   deps,
		log:    deps.Logger,
		runner: task.NewRunner(cfg.OpTimeout, deps.Logger),
		state:  NoIndex,
		mode:   cfg.Mode,
		model:  cfg.Model,
	}, nil
}

// Events streams busy and completion notifications for background work.
func (e *Engine) Events() <-chan task.Event { return e.runner.Events() }

// MuteEvents stops busy and completion notifications. Headless callers that
// only wait on handles use it.
func (e *Engine) MuteEvents() { e.runner.Mute() }

// IsBusy reports whether an ingestion or query is outstanding.
func (e *Engine) IsBusy() bool { return e.runner.IsBusy() }

// UploadDocument records path as the document for the next ingestion.
func (e *Engine) UploadDocument(path string) error {
	path = strings.TrimSpace(path)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrLoadFailure, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", domain.ErrLoadFailure, path)
	}
	if !e.deps.Loader.Supports(path) {
		return fmt.Errorf("%w: unsupported file type %s", domain.ErrLoadFailure, path)
	}
	e.mu.Lock()
	e.pending = path
	e.mu.Unlock()
	e.log.Info("document selected", slog.String("path", path))
	return nil
}

// StartIngestion ingests the uploaded document in the background. Without an
// active index the document joins the index persisted in IndexDir, or starts
// a new one. Ingesting a document again replaces its earlier chunks.
func (e *Engine) StartIngestion() (*task.Handle, error) {
	e.mu.RLock()
	path := e.pending
	e.mu.RUnlock()
	if path == "" {
		return nil, fmt.Errorf("%w: no document uploaded", domain.ErrNotFound)
	}
	return e.runner.Run(task.OpIngest, func(ctx context.Context) (any, error) {
		return e.ingest(ctx, path)
	})
}

// IngestFile uploads path and waits for its ingestion. It is the headless
// counterpart of UploadDocument followed by StartIngestion.
func (e *Engine) IngestFile(path string) (IngestResult, error) {
	if err := e.UploadDocument(path); err != nil {
		return IngestResult{}, err
	}
	h, err := e.StartIngestion()
	if err != nil {
		return IngestResult{}, err
	}
	v, err := h.Wait()
	if err != nil {
		return IngestResult{}, err
	}
	return v.(IngestResult), nil
}

// Ask sends text and waits for the reply.
func (e *Engine) Ask(text string) (QueryResult, error) {
	h, err := e.SendQuery(text)
	if err != nil {
		return QueryResult{}, err
	}
	v, err := h.Wait()
	if err != nil {
		return QueryResult{}, err
	}
	return v.(QueryResult), nil
}

func (e *Engine) ingest(ctx context.Context, path string) (IngestResult, error) {
	doc, err := e.deps.Loader.Load(ctx, path)
	if err != nil {
		return IngestResult{}, err
	}
	chunks, err := e.deps.Chunker.Chunk(doc)
	if err != nil {
		return IngestResult{}, err
	}
	if len(chunks) == 0 {
		return IngestResult{}, fmt.Errorf("%w: %s produced no chunks", domain.ErrLoadFailure, doc.Name)
	}

	e.mu.RLock()
	idx, location := e.index, e.location
	e.mu.RUnlock()

	installed := idx != nil
	if !installed {
		location = e.cfg.IndexDir
		if idx, err = e.openHome(ctx); err != nil {
			return IngestResult{}, err
		}
	}
	if idx == nil {
		idx, err = vectorindex.CreateFrom(ctx, e.deps.Embedder, chunks, e.cfg.IndexOptions)
		if err != nil {
			return IngestResult{}, err
		}
		if err := persist(ctx, idx, location); err != nil {
			e.closeIndex(idx)
			return IngestResult{}, err
		}
	} else if err := e.replaceDocument(ctx, idx, location, doc.ID, chunks); err != nil {
		if !installed {
			e.closeIndex(idx)
		}
		return IngestResult{}, err
	}

	summary := ""
	if e.deps.Summarizer != nil {
		if summary, err = e.deps.Summarizer.Summarize(doc.Content, e.cfg.SummarySentences); err != nil {
			e.log.Warn("summary failed", slog.String("document", doc.Name), slog.String("error", err.Error()))
			summary = ""
		}
	}

	e.mu.Lock()
	e.index = idx
	e.location = location
	e.state = IndexActive
	if e.pending == path {
		e.pending = ""
	}
	e.mu.Unlock()

	e.log.Info("document ingested",
		slog.String("document", doc.Name),
		slog.Int("chunks", len(chunks)),
		slog.Int("index_size", idx.Len()))
	return IngestResult{Document: doc.Name, Chunks: len(chunks), Total: idx.Len(), Summary: summary}, nil
}

// openHome loads the index already persisted in IndexDir so a new document
// joins it instead of replacing it on disk. It returns nil when there is none.
func (e *Engine) openHome(ctx context.Context) (*vectorindex.Index, error) {
	if e.cfg.IndexDir == "" {
		return nil, nil
	}
	idx, err := vectorindex.Open(ctx, e.cfg.IndexDir, e.deps.Embedder, e.cfg.IndexOptions)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("refusing to overwrite the index in %s: %w", e.cfg.IndexDir, err)
	}
	return idx, nil
}

// replaceDocument swaps the chunks of documentID for chunks and persists the
// result. On failure the index is restored to its previous entries.
func (e *Engine) replaceDocument(ctx context.Context, idx *vectorindex.Index, location, documentID string, chunks []domain.Chunk) error {
	before := idx.Snapshot()
	err := func() error {
		removed, err := idx.RemoveDocument(ctx, documentID)
		if err != nil {
			return err
		}
		if removed > 0 {
			e.log.Info("replacing previously ingested document",
				slog.String("document_id", documentID), slog.Int("removed", removed))
		}
		if err := idx.Add(ctx, chunks); err != nil {
			return err
		}
		return persist(ctx, idx, location)
	}()
	if err != nil {
		if rerr := idx.Restore(context.WithoutCancel(ctx), before); rerr != nil {
			e.log.Error("rollback after failed ingestion", slog.String("error", rerr.Error()))
		}
	}
	return err
}

func persist(ctx context.Context, idx *vectorindex.Index, location string) error {
	if location == "" {
		return nil
	}
	return idx.Persist(ctx, location)
}

func (e *Engine) closeIndex(idx *vectorindex.Index) {
	if idx == nil {
		return
	}
	if err := idx.Close(context.Background()); err != nil {
		e.log.Warn("release index backend", slog.String("error", err.Error()))
	}
}

// SendQuery answers text in the background. Mode, model, index and history
// are read when the query starts; the conversation only changes if the model
// call succeeds.
func (e *Engine) SendQuery(text string) (*task.Handle, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidConfiguration)
	}
	e.mu.RLock()
	mode, model, idx, gen := e.mode, e.model, e.index, e.generation
	history := make([]domain.Turn, len(e.conversation))
	copy(history, e.conversation)
	e.mu.RUnlock()

	return e.runner.Run(task.OpConverse, func(ctx context.Context) (any, error) {
		return e.converse(ctx, text, mode, model, idx, history, gen)
	})
}

func (e *Engine) converse(ctx context.Context, text string, mode prompt.Mode, model string, idx *vectorindex.Index, history []domain.Turn, gen uint64) (QueryResult, error) {
	callModel := model
	var chunks []domain.Chunk
	k := 0
	if idx != nil {
		tier, err := llm.TierOf(model, e.cfg.KOverrides)
		if err != nil {
			return QueryResult{}, err
		}
		callModel, k = tier.RetrievalModel, tier.K
	}
	client, err := llm.NewClient(e.deps.Completer, callModel, mode)
	if err != nil {
		return QueryResult{}, err
	}
	if idx != nil {
		chunks, err = idx.Query(ctx, text, k)
		if err != nil {
			return QueryResult{}, err
		}
		if chunks == nil {
			chunks = []domain.Chunk{}
		}
	}

	turns := prompt.Build(history, mode, text, chunks)
	reply, err := client.Complete(ctx, turns)
	if err != nil {
		return QueryResult{}, err
	}

	e.mu.Lock()
	current := e.generation == gen
	if current {
		e.conversation = append(e.conversation,
			turns[len(turns)-1],
			domain.Turn{Role: domain.RoleAssistant, Content: reply})
	}
	e.mu.Unlock()
	if !current {
		e.log.Info("conversation was reset during the query, reply not recorded")
	}

	e.log.Info("query answered",
		slog.String("model", callModel),
		slog.String("mode", mode.String()),
		slog.Int("retrieved", len(chunks)))
	return QueryResult{Query: text, Reply: reply, Model: callModel, Retrieved: len(chunks)}, nil
}

// SetMode takes effect on the next query.
func (e *Engine) SetMode(mode prompt.Mode) {
	e.mu.Lock()
	e.mode = mode
	e.mu.Unlock()
}

// SelectModel takes effect on the next query.
func (e *Engine) SelectModel(model string) error {
	if err := llm.ValidateModel(model); err != nil {
		return err
	}
	e.mu.Lock()
	e.model = model
	e.mu.Unlock()
	return nil
}

// OpenIndex loads the index persisted at location, clears the conversation
// and switches to factual mode.
func (e *Engine) OpenIndex(ctx context.Context, location string) error {
	if err := e.rejectDuringIngestion("open an index"); err != nil {
		return err
	}
	idx, err := vectorindex.Open(ctx, location, e.deps.Embedder, e.cfg.IndexOptions)
	if err != nil {
		e.log.Error("open index failed", slog.String("location", location), slog.String("error", err.Error()))
		return err
	}
	e.mu.Lock()
	old := e.index
	e.index = idx
	e.location = location
	e.state = IndexActive
	e.resetConversationLocked()
	e.mode = prompt.Factual
	e.mu.Unlock()
	e.closeIndex(old)
	e.log.Info("index opened", slog.String("location", location), slog.Int("index_size", idx.Len()))
	return nil
}

// ClearIndex drops the active index and the conversation. Nothing on disk
// is touched.
func (e *Engine) ClearIndex() error {
	if err := e.rejectDuringIngestion("clear the index"); err != nil {
		return err
	}
	e.mu.Lock()
	old := e.index
	e.index = nil
	e.location = ""
	e.state = NoIndex
	e.resetConversationLocked()
	e.mu.Unlock()
	e.closeIndex(old)
	e.log.Info("index cleared")
	return nil
}

// ClearConversation empties the history and leaves the index alone.
func (e *Engine) ClearConversation() {
	e.mu.Lock()
	e.resetConversationLocked()
	e.mu.Unlock()
}

func (e *Engine) resetConversationLocked() {
	e.conversation = nil
	e.generation++
}

func (e *Engine) rejectDuringIngestion(action string) error {
	if e.runner.Current() == task.OpIngest {
		return fmt.Errorf("%w: cannot %s while a document is being ingested", domain.ErrBusy, action)
	}
	return nil
}

// Conversation returns a copy of the history.
func (e *Engine) Conversation() []domain.Turn {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Turn, len(e.conversation))
	copy(out, e.conversation)
	return out
}

func (e *Engine) Mode() prompt.Mode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

func (e *Engine) Model() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// IndexSize is the number of chunks in the active index.
func (e *Engine) IndexSize() int {
	e.mu.RLock()
	idx := e.index
	e.mu.RUnlock()
	if idx == nil {
		return 0
	}
	return idx.Len()
}

// Close releases the active index's search backend. The persisted index is
// left in place.
func (e *Engine) Close() {
	e.mu.Lock()
	idx := e.index
	e.mu.Unlock()
	e.closeIndex(idx)
}

// IndexLocation is where the active index is persisted, or "" when it lives
// in memory only.
func (e *Engine) IndexLocation() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.location
}

// PendingUpload is the document waiting for ingestion, if any.
func (e *Engine) PendingUpload() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pending
}

// Notice turns an operation failure into the line shown to the user.
func Notice(err error) string {
	if err == nil {
		return ""
	}
	var prefix string
	switch {
	case errors.Is(err, domain.ErrBusy):
		return "Please wait for the current operation to finish."
	case errors.Is(err, domain.ErrTimeout):
		prefix = "The request timed out, try again"
	case errors.Is(err, domain.ErrInvalidConfiguration):
		prefix = "Configuration problem"
	case errors.Is(err, domain.ErrLoadFailure):
		prefix = "Could not load the document"
	case errors.Is(err, domain.ErrEmbeddingFailure):
		prefix = "Embedding request failed"
	case errors.Is(err, domain.ErrModelCallFailure):
		prefix = "The model call failed"
	case errors.Is(err, domain.ErrNotFound):
		prefix = "Nothing found"
	case errors.Is(err, domain.ErrCorruptIndex):
		prefix = "The stored index is damaged"
	case errors.Is(err, domain.ErrStorageFailure):
		prefix = "Could not save the index"
	default:
		prefix = "Something went wrong"
	}
	return prefix + ": " + err.Error()
}
