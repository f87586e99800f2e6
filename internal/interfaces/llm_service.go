package interfaces

import "context"

// Message represents a single chat message exchanged with an LLM provider.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// LLMService abstracts a chat-completion provider.
type LLMService interface {
	// Chat generates a completion for the conversation history.
	Chat(ctx context.Context, messages []Message) (string, error)

	// ChatJSON generates a completion that is expected to be a single JSON
	// object; providers that support schema enforcement apply it.
	ChatJSON(ctx context.Context, messages []Message, schema map[string]interface{}) (string, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// EmbeddingService maps text to fixed-length vectors suitable for cosine
// similarity. Implementations are process-wide singletons: the first call
// triggers model/client initialization (may block up to the configured
// load timeout), after which calls are thread-safe and deterministic.
type EmbeddingService interface {
	// Warm forces initialization without embedding anything.
	Warm(ctx context.Context) error

	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch is the hot path for chunk embedding.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	Dimension() int
	ModelVersion() string
}
