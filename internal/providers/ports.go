// Package providers defines the three narrow external-provider interfaces
// the pipeline depends on. Concrete implementations live in internal/llm.
package providers

import "context"

// TokenUsage reports prompt/completion token counts from a generation call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
}

// EmbeddingPort embeds a batch of texts into the shared vector space.
// Single-text-per-call is a design violation — callers must batch so one
// provider round trip covers an entire set of query variants or candidates.
type EmbeddingPort interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerationPort produces a structured value matching a JSON schema. On a
// schema violation, implementations retry internally up to a configured
// number of attempts before failing.
type GenerationPort interface {
	GenerateStructured(ctx context.Context, messages []Message, schema Schema, temperature float32) (rawJSON []byte, usage TokenUsage, err error)
}

// Message is one turn in a chat-style prompt.
type Message struct {
	Role    string
	Content string
}

// Schema names the structured-output contract of a GenerateStructured call.
// Name identifies the contract in errors; JSONSchema is the schema body, of
// which the OpenAI adapter checks only the "required" field list.
type Schema struct {
	Name       string
	JSONSchema map[string]interface{}
}

// RerankCandidate is one item offered to the Rerank Port.
type RerankCandidate struct {
	ID   string
	Text string
}

// RerankResult pairs a candidate ID with the provider's monotonic score.
type RerankResult struct {
	ID    string
	Score float64
}

// RerankPort reorders candidates by provider-specific relevance. If
// unavailable, the pipeline falls back to similarity order.
type RerankPort interface {
	Rerank(ctx context.Context, query string, candidates []RerankCandidate, topK int) ([]RerankResult, error)
	Healthy() bool
}
