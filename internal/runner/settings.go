package runner

import (
	"strings"

	"github.com/inkforge/inkforge/internal/providers"
)

const (
	// FallbackProvider is the whole-system fallback target.
	FallbackProvider = providers.Ollama
	// FallbackModel is the model used on the fallback provider.
	FallbackModel = "gemma3:12b"
	// DefaultLocalURL is used when no local base URL is configured.
	DefaultLocalURL = "http://127.0.0.1:11434"

	// lastResortModel covers provider types the registry does not know.
	lastResortModel = "deepseek-chat"
)

// ProviderSettings are the configured overrides for one provider type.
type ProviderSettings struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
}

// Settings is the explicit configuration handed to the runner. The runner
// never reads the process environment.
type Settings struct {
	DefaultProvider string
	Providers       map[string]ProviderSettings
}

// For returns the settings for providerType, or the zero value.
func (s Settings) For(providerType string) ProviderSettings {
	if s.Providers == nil {
		return ProviderSettings{}
	}
	return s.Providers[strings.ToLower(providerType)]
}

// LocalURL returns the configured local endpoint or DefaultLocalURL.
func (s Settings) LocalURL() string {
	if u := strings.TrimSpace(s.For(FallbackProvider).BaseURL); u != "" {
		return u
	}
	return DefaultLocalURL
}
