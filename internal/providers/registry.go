package providers

import "strings"

// Kind is the wire protocol family of a provider.
type Kind int

const (
	KindLocal Kind = iota
	KindCloudMultimodel
	KindOpenAICompatible
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindCloudMultimodel:
		return "cloud-multimodel"
	case KindOpenAICompatible:
		return "openai-compatible"
	default:
		return "unknown"
	}
}

// ProviderSpec is the metadata record for one provider type.
type ProviderSpec struct {
	Name        string // lower-case type identifier, e.g. "deepseek"
	DisplayName string // shown in `inkforge status`
	Kind        Kind
	EnvPrefix   string // {PREFIX}_BASE_URL, {PREFIX}_API_KEY, {PREFIX}_MODEL

	DefaultAPIBase string
	DefaultModel   string // hardcoded fallback when neither tool nor config names one

	// ModelPriority is the downgrade chain, used by multi-model providers.
	ModelPriority []string

	NeedsAPIKey bool
}

// Label returns the display name, defaulting to Title-cased Name.
func (s ProviderSpec) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return strings.ToTitle(s.Name[:1]) + s.Name[1:]
}

const (
	// Ollama is the local provider and the whole-system fallback target.
	Ollama   = "ollama"
	Gemini   = "gemini"
	OpenAI   = "openai"
	DeepSeek = "deepseek"
)

// GeminiModelPriority is the default downgrade chain for the cloud adapter.
var GeminiModelPriority = []string{
	"gemini-3-flash-preview",
	"gemini-2.5-flash",
	"gemini-2.0-flash",
	"gemini-1.5-flash",
}

// PROVIDERS is the closed set of supported provider types.
var PROVIDERS = []ProviderSpec{
	{
		Name:           Ollama,
		DisplayName:    "Ollama",
		Kind:           KindLocal,
		EnvPrefix:      "OLLAMA",
		DefaultAPIBase: "http://127.0.0.1:11434",
		DefaultModel:   "gemma3:12b",
	},
	{
		Name:           Gemini,
		DisplayName:    "Gemini",
		Kind:           KindCloudMultimodel,
		EnvPrefix:      "GEMINI",
		DefaultAPIBase: "https://generativelanguage.googleapis.com/v1beta",
		DefaultModel:   "gemini-1.5-flash",
		ModelPriority:  GeminiModelPriority,
		NeedsAPIKey:    true,
	},
	{
		Name:           OpenAI,
		DisplayName:    "OpenAI",
		Kind:           KindOpenAICompatible,
		EnvPrefix:      "OPENAI",
		DefaultAPIBase: "https://api.openai.com/v1",
		DefaultModel:   "gpt-4o-mini",
		NeedsAPIKey:    true,
	},
	{
		Name:           DeepSeek,
		DisplayName:    "DeepSeek",
		Kind:           KindOpenAICompatible,
		EnvPrefix:      "DEEPSEEK",
		DefaultAPIBase: "https://api.deepseek.com/v1",
		DefaultModel:   "deepseek-chat",
		NeedsAPIKey:    true,
	},
}

// FindByName returns the spec for a provider type, matched
// case-insensitively, or nil.
func FindByName(name string) *ProviderSpec {
	name = strings.ToLower(strings.TrimSpace(name))
	for i := range PROVIDERS {
		if PROVIDERS[i].Name == name {
			return &PROVIDERS[i]
		}
	}
	return nil
}

// Names returns the known provider types in registry order.
func Names() []string {
	out := make([]string, len(PROVIDERS))
	for i, s := range PROVIDERS {
		out[i] = s.Name
	}
	return out
}
