package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/inkforge/inkforge/internal/schema"
)

const (
	geminiTemperature     = 0.7
	geminiMaxOutputTokens = 2048
)

type geminiPart struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiThinkingConfig struct {
	IncludeThoughts bool   `json:"includeThoughts"`
	ThinkingLevel   string `json:"thinkingLevel,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     float64               `json:"temperature"`
	MaxOutputTokens int                   `json:"maxOutputTokens"`
	ThinkingConfig  *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"system_instruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// GeminiProvider calls the generateContent endpoint and walks a model
// downgrade chain on retryable failures.
type GeminiProvider struct {
	apiKey     string
	apiBase    string
	chain      ModelChain
	httpClient *http.Client
}

// NewGeminiProvider returns an adapter. priority is the downgrade chain.
func NewGeminiProvider(apiKey, apiBase string, priority []string, httpClient *http.Client) *GeminiProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GeminiProvider{
		apiKey:     apiKey,
		apiBase:    strings.TrimRight(apiBase, "/"),
		chain:      ModelChain{Provider: Gemini, Priority: priority},
		httpClient: httpClient,
	}
}

func (p *GeminiProvider) Name() string { return Gemini }

// Chat tries model first and then the priority list.
func (p *GeminiProvider) Chat(ctx context.Context, model string, messages schema.Messages) (schema.ProviderResponse, error) {
	req := buildGeminiRequest(messages)
	return p.chain.Run(ctx, model, func(ctx context.Context, candidate string) (schema.ProviderResponse, error) {
		return p.generate(ctx, candidate, req)
	})
}

func buildGeminiRequest(messages schema.Messages) geminiRequest {
	system, turns := messages.Split()
	req := geminiRequest{
		Contents: make([]geminiContent, 0, len(turns)),
		GenerationConfig: geminiGenerationConfig{
			Temperature:     geminiTemperature,
			MaxOutputTokens: geminiMaxOutputTokens,
		},
	}
	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	for _, m := range turns {
		role := "user"
		if m.Role == schema.RoleAssistant {
			role = "model"
		}
		req.Contents = append(req.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return req
}

func (p *GeminiProvider) generate(ctx context.Context, model string, base geminiRequest) (schema.ProviderResponse, error) {
	body := base
	if strings.Contains(model, "gemini-3") {
		body.GenerationConfig.ThinkingConfig = &geminiThinkingConfig{IncludeThoughts: false, ThinkingLevel: "low"}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return schema.ProviderResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.apiBase, url.PathEscape(model), url.QueryEscape(p.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return schema.ProviderResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Info("gemini generate", "model", model)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return schema.ProviderResponse{}, &ConnectionError{Provider: Gemini, Err: redactKey(err, p.apiKey)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return schema.ProviderResponse{}, &ConnectionError{Provider: Gemini, Err: err}
	}

	var parsed geminiResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := friendlyHTTPError(resp.StatusCode, raw)
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" && resp.StatusCode != http.StatusTooManyRequests {
			msg = parsed.Error.Message
		}
		return schema.ProviderResponse{}, &HTTPError{Provider: Gemini, Model: model, StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return schema.ProviderResponse{}, fmt.Errorf("gemini %s: decode response: %w", model, decodeErr)
	}

	text := geminiText(parsed)
	if text == "" {
		return schema.ProviderResponse{}, fmt.Errorf("gemini %s: %w", model, ErrEmptyResponse)
	}
	return schema.ProviderResponse{Text: text, ActualModel: "Gemini: " + model}, nil
}

// geminiText joins the non-thought text parts of the first candidate.
func geminiText(resp geminiResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Thought || part.Text == "" {
			continue
		}
		sb.WriteString(part.Text)
	}
	return strings.TrimSpace(sb.String())
}

// redactKey strips the API key from transport errors, which embed the URL.
func redactKey(err error, key string) error {
	if key == "" {
		return err
	}
	msg := err.Error()
	redacted := strings.ReplaceAll(strings.ReplaceAll(msg, url.QueryEscape(key), "REDACTED"), key, "REDACTED")
	if redacted == msg {
		return err
	}
	return fmt.Errorf("%s", redacted)
}
