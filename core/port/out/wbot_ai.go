package out

import "context"

// Embedder defines the outbound port for embedding generation.
// Implementations must preserve input order in batch calls and must never
// substitute a zero vector on failure.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatModel defines the outbound port for generative chat completion.
type ChatModel interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}
