package domain

import "context"

// Document represents a single file loaded into the system.
type Document struct {
	ID      string
	Path    string
	Name    string
	Content string
}

// Chunk is a bounded window of a document used for retrieval.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Text       string
	Index      int
	// Start is the rune offset of Text within the document.
	Start int
}

// Embedding is a fixed-dimension vector for a chunk or a query.
type Embedding = []float32

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Role tags the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Role    Role
	Content string
}

// Embedder converts free text into vectors through an external provider.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) (Embedding, error)
	EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error)
}

// Completer is the model-call capability: complete this conversation.
type Completer interface {
	Complete(ctx context.Context, messages []Turn, model string, temperature float64) (string, error)
}

// Loader reads a file into a Document.
type Loader interface {
	Load(ctx context.Context, path string) (Document, error)
	Supports(path string) bool
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
