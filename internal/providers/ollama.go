package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/inkforge/inkforge/internal/schema"
)

const localTemperature = 0.7

// OllamaProvider talks to a local Ollama server.
type OllamaProvider struct {
	baseURL      string
	client       *api.Client
	streamClient *http.Client
}

// NewOllamaProvider returns an adapter for the server at baseURL.
func NewOllamaProvider(baseURL string, httpClient *http.Client) (*OllamaProvider, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaProvider{
		baseURL:      baseURL,
		client:       api.NewClient(parsed, httpClient),
		streamClient: withoutTimeout(httpClient),
	}, nil
}

// withoutTimeout copies c with its overall deadline removed. Client.Timeout
// covers reading the whole body, so a long stream would be cut off; the
// request context bounds streams instead.
func withoutTimeout(c *http.Client) *http.Client {
	if c.Timeout == 0 {
		return c
	}
	cp := *c
	cp.Timeout = 0
	return &cp
}

func (p *OllamaProvider) Name() string { return Ollama }

// Chat sends a non-streaming chat request and waits for the single reply.
func (p *OllamaProvider) Chat(ctx context.Context, model string, messages schema.Messages) (schema.ProviderResponse, error) {
	slog.Info("ollama chat", "model", model, "base", p.baseURL)

	stream := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: toOllamaMessages(messages),
		Stream:   &stream,
		Options:  map[string]any{"temperature": localTemperature},
	}

	var content bytes.Buffer
	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		slog.Error("ollama chat failed", "model", model, "err", err)
		return schema.ProviderResponse{}, &ConnectionError{Provider: Ollama, Err: err}
	}
	return schema.ProviderResponse{
		Text:        content.String(),
		ActualModel: "Ollama: " + model,
	}, nil
}

// ChatStream posts a streaming chat request and emits content fragments as
// they arrive.
func (p *OllamaProvider) ChatStream(ctx context.Context, model string, messages schema.Messages) (<-chan schema.StreamEvent, error) {
	stream := true
	body, err := json.Marshal(api.ChatRequest{
		Model:    model,
		Messages: toOllamaMessages(messages),
		Stream:   &stream,
		Options:  map[string]any{"temperature": localTemperature},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	slog.Info("ollama stream", "model", model, "base", p.baseURL)
	resp, err := p.streamClient.Do(req)
	if err != nil {
		return nil, &ConnectionError{Provider: Ollama, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &ConnectionError{
			Provider: Ollama,
			Err:      fmt.Errorf("HTTP %d: %s", resp.StatusCode, friendlyHTTPError(resp.StatusCode, raw)),
		}
	}

	out := make(chan schema.StreamEvent)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		send := func(ev schema.StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var dec StreamDecoder
		buf := make([]byte, 4096)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				frags, done := dec.Feed(buf[:n])
				for _, f := range frags {
					if !send(schema.StreamEvent{Text: f}) {
						return
					}
				}
				if done {
					return
				}
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					for _, f := range dec.Flush() {
						if !send(schema.StreamEvent{Text: f}) {
							return
						}
					}
					return
				}
				if ctx.Err() == nil {
					send(schema.StreamEvent{Err: &ConnectionError{Provider: Ollama, Err: readErr}})
				}
				return
			}
		}
	}()
	return out, nil
}

func toOllamaMessages(messages schema.Messages) []api.Message {
	out := make([]api.Message, len(messages.Messages))
	for i, m := range messages.Messages {
		out[i] = api.Message{Role: string(m.Role), Content: m.Content}
	}
	return out
}
