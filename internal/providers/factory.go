package providers

import (
	"net/http"
	"strings"
	"time"

	"github.com/inkforge/inkforge/internal/schema"
)

// Factory builds a fresh adapter per call. It holds no per-adapter state
// and is safe for concurrent use.
type Factory struct {
	httpClient *http.Client
}

// NewFactory returns a Factory. A nil client gets a 120s-timeout default.
func NewFactory(httpClient *http.Client) *Factory {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Factory{httpClient: httpClient}
}

// New maps a provider type to its adapter. Matching is case-insensitive.
// Credentials are not validated here; a missing key surfaces as an auth
// failure from the backend.
//
// Rules:
//   - ollama          → OllamaProvider (local NDJSON chat)
//   - gemini          → GeminiProvider (generateContent + model downgrade)
//   - openai/deepseek → OpenAIProvider (chat completions)
func (f *Factory) New(providerType string, cfg schema.ProviderConfig) (schema.LLMProvider, error) {
	spec := FindByName(providerType)
	if spec == nil {
		return nil, &UnsupportedProviderError{Type: strings.ToLower(providerType)}
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = spec.DefaultAPIBase
	}

	switch spec.Kind {
	case KindLocal:
		return NewOllamaProvider(base, f.httpClient)
	case KindCloudMultimodel:
		return NewGeminiProvider(cfg.APIKey, base, spec.ModelPriority, f.httpClient), nil
	default:
		return NewOpenAIProvider(spec.Name, cfg.APIKey, base, f.httpClient), nil
	}
}
