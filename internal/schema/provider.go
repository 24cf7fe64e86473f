package schema

import "context"

// ProviderConfig carries the per-invocation connection settings for one
// backend. BaseURL and APIKey are optional depending on the provider type.
type ProviderConfig struct {
	Type    string
	BaseURL string
	APIKey  string
}

// ProviderResponse is the normalised result of a chat call. ActualModel
// labels the provider and model that really produced Text, which may differ
// from the requested one after a downgrade.
type ProviderResponse struct {
	Text        string
	ActualModel string
}

// StreamEvent is one element of a streaming chat. Exactly one of Text or
// Err is meaningful.
type StreamEvent struct {
	Text string
	Err  error
}

// LLMProvider is the interface every LLM backend must satisfy.
type LLMProvider interface {
	Name() string
	Chat(ctx context.Context, model string, messages Messages) (ProviderResponse, error)
}

// StreamingProvider is implemented by backends that can emit a response
// incrementally. The returned channel is closed when the backend signals
// completion, the body ends, or ctx is cancelled.
type StreamingProvider interface {
	LLMProvider
	ChatStream(ctx context.Context, model string, messages Messages) (<-chan StreamEvent, error)
}
