package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/inkforge/inkforge/internal/schema"
)

const openAITemperature = 0.7

// OpenAIProvider calls any chat-completions endpoint with bearer auth.
// It serves both "openai" and its protocol alias "deepseek".
type OpenAIProvider struct {
	name    string
	apiBase string
	client  openai.Client
}

// NewOpenAIProvider returns an adapter registered under name.
func NewOpenAIProvider(name, apiKey, apiBase string, httpClient *http.Client) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithBaseURL(apiBase),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &OpenAIProvider{
		name:    name,
		apiBase: apiBase,
		client:  openai.NewClient(opts...),
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

// Chat returns the first choice's content. ActualModel is the literal model.
func (p *OpenAIProvider) Chat(ctx context.Context, model string, messages schema.Messages) (schema.ProviderResponse, error) {
	slog.Info("chat completion", "provider", p.name, "model", model, "base", p.apiBase)

	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(openAITemperature),
	})
	if err != nil {
		slog.Error("chat completion failed", "provider", p.name, "model", model, "err", err)
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			msg := apiErr.Message
			if msg == "" {
				msg = http.StatusText(apiErr.StatusCode)
			}
			return schema.ProviderResponse{}, &HTTPError{Provider: p.name, Model: model, StatusCode: apiErr.StatusCode, Message: msg}
		}
		if ctx.Err() != nil {
			return schema.ProviderResponse{}, ctx.Err()
		}
		return schema.ProviderResponse{}, &ConnectionError{Provider: p.name, Err: err}
	}
	if len(completion.Choices) == 0 {
		return schema.ProviderResponse{}, fmt.Errorf("%s %s: %w", p.name, model, ErrEmptyResponse)
	}
	return schema.ProviderResponse{
		Text:        completion.Choices[0].Message.Content,
		ActualModel: model,
	}, nil
}

func toOpenAIMessages(messages schema.Messages) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages.Messages))
	for _, m := range messages.Messages {
		switch m.Role {
		case schema.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case schema.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
