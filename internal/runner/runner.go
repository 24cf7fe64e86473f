// Package runner is the orchestration core: it resolves a tool, picks a
// provider and model, invokes it with a whole-system local fallback,
// post-processes the output and derives secondary artifacts.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/inkforge/inkforge/internal/providers"
	"github.com/inkforge/inkforge/internal/schema"
	"github.com/inkforge/inkforge/internal/shared/stringutils"
	"github.com/inkforge/inkforge/internal/tools"
)

const (
	// BriefTool triggers keyword derivation.
	BriefTool = "brief"
	// KeywordsTool derives keywords from a brief.
	KeywordsTool = "brief.keywords"

	// InputProvider lets a caller pick the provider through the inputs map.
	InputProvider = "provider"
)

// Resolver loads a validated tool definition and its prompt.
type Resolver interface {
	Load(ctx context.Context, toolID string, inputs map[string]string) (tools.Resolved, error)
}

// ProviderFactory constructs a fresh adapter per call.
type ProviderFactory interface {
	New(providerType string, cfg schema.ProviderConfig) (schema.LLMProvider, error)
}

// FallbackError is returned when both the selected provider and the local
// fallback failed. Both causes are reachable through errors.Is/As.
type FallbackError struct {
	Provider string
	Primary  error
	Fallback error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("%s failed: %v; local fallback failed: %v", e.Provider, e.Primary, e.Fallback)
}

func (e *FallbackError) Unwrap() []error { return []error{e.Primary, e.Fallback} }

// Runner executes tool invocations. It holds no per-call state and is safe
// for concurrent use.
type Runner struct {
	resolver Resolver
	factory  ProviderFactory
	settings Settings
	inst     instruments
}

// New returns a Runner. Metrics and spans go to the global otel providers
// unless an Option says otherwise.
func New(resolver Resolver, factory ProviderFactory, settings Settings, opts ...Option) *Runner {
	return &Runner{
		resolver: resolver,
		factory:  factory,
		settings: settings,
		inst:     newInstruments(opts...),
	}
}

type invocationKey struct{}

// Run executes one invocation: resolve, compose, select, invoke,
// post-process, derive.
func (r *Runner) Run(ctx context.Context, req schema.InvocationRequest) (schema.InvocationResult, error) {
	id := uuid.NewString()
	parent, _ := ctx.Value(invocationKey{}).(string)
	ctx = context.WithValue(ctx, invocationKey{}, id)

	log := slog.With("invocation", id, "tool", req.ToolID)
	if parent != "" {
		log = log.With("parent", parent)
	}

	ctx, span := r.inst.tracer.Start(ctx, "runner.Run", trace.WithAttributes(
		attribute.String("inkforge.tool", req.ToolID),
		attribute.Bool("inkforge.recursive", req.Recursive),
	))
	defer span.End()
	start := time.Now()

	result, providerType, err := r.run(ctx, log, req)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	r.inst.countInvocation(ctx, req.ToolID, providerType, outcome)
	r.inst.latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("tool", req.ToolID)))
	return result, err
}

func (r *Runner) run(ctx context.Context, log *slog.Logger, req schema.InvocationRequest) (schema.InvocationResult, string, error) {
	// Resolve
	resolved, err := r.resolver.Load(ctx, req.ToolID, req.Inputs)
	if err != nil {
		log.Error("tool resolution failed", "err", err)
		return schema.InvocationResult{}, "", err
	}
	def := resolved.Definition

	// Compose
	messages := Compose(resolved.Prompt, req.Inputs)

	// Select
	providerType := r.SelectProvider(req, def)
	model := r.SelectModel(providerType, def)
	log = log.With("provider", providerType, "model", model)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("inkforge.provider", providerType),
		attribute.String("inkforge.model", model),
	)
	log.Info("invoking provider")

	// Invoke
	resp, err := r.invoke(ctx, log, providerType, model, messages)
	if err != nil {
		return schema.InvocationResult{}, providerType, err
	}

	// Post-process
	out, degraded := PostProcess(def.OutputType, resp.Text)
	if degraded {
		log.Warn("structured output unrecoverable, using placeholder", "preview", stringutils.Truncate(resp.Text, 80))
		r.inst.degraded.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", def.ID)))
	}

	result := schema.InvocationResult{
		ToolID:      req.ToolID,
		OutputType:  def.OutputType,
		Result:      out,
		Keywords:    []string{},
		ActualModel: resp.ActualModel,
	}
	if result.OutputType == "" {
		result.OutputType = schema.OutputText
	}

	// Derive
	if req.ToolID == BriefTool && !req.Recursive {
		result.Keywords = r.deriveKeywords(ctx, log, req, providerType, result)
	}

	log.Info("invocation complete", "actual_model", resp.ActualModel, "keywords", len(result.Keywords))
	return result, providerType, nil
}

// SelectProvider applies: explicit override, then the provider input, then
// the tool default, then the configured default, then the local provider.
func (r *Runner) SelectProvider(req schema.InvocationRequest, def schema.ToolDefinition) string {
	p := stringutils.FirstNonEmpty(
		req.Provider,
		req.Input(InputProvider),
		def.DefaultProvider,
		r.settings.DefaultProvider,
		FallbackProvider,
	)
	return strings.ToLower(strings.TrimSpace(p))
}

// SelectModel applies: tool mapping, then configured default, then the
// hardcoded per-provider fallback.
func (r *Runner) SelectModel(providerType string, def schema.ToolDefinition) string {
	if m := def.ModelFor(providerType); m != "" {
		return m
	}
	if m := r.settings.For(providerType).DefaultModel; m != "" {
		return m
	}
	if spec := providers.FindByName(providerType); spec != nil && spec.DefaultModel != "" {
		return spec.DefaultModel
	}
	return lastResortModel
}

func (r *Runner) providerConfig(providerType string) schema.ProviderConfig {
	s := r.settings.For(providerType)
	cfg := schema.ProviderConfig{Type: providerType, BaseURL: s.BaseURL, APIKey: s.APIKey}
	if providerType == FallbackProvider && cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLocalURL
	}
	return cfg
}

func (r *Runner) invoke(ctx context.Context, log *slog.Logger, providerType, model string, messages schema.Messages) (schema.ProviderResponse, error) {
	provider, err := r.factory.New(providerType, r.providerConfig(providerType))
	if err != nil {
		log.Error("provider construction failed", "err", err)
		return schema.ProviderResponse{}, err
	}

	resp, err := provider.Chat(ctx, model, messages)
	if err == nil {
		return resp, nil
	}
	if providerType == FallbackProvider {
		log.Error("local provider failed", "err", err)
		return schema.ProviderResponse{}, err
	}
	if ctx.Err() != nil {
		return schema.ProviderResponse{}, err
	}

	reason := "error"
	if providers.IsAuth(err) {
		reason = "auth"
		log.Error("provider rejected credentials, check the API key", "provider", providerType, "err", err)
	}
	log.Warn("provider failed, falling back to local", "err", err, "fallback_model", FallbackModel)
	r.inst.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", providerType),
		attribute.String("reason", reason),
	))

	local, ferr := r.factory.New(FallbackProvider, schema.ProviderConfig{
		Type:    FallbackProvider,
		BaseURL: r.settings.LocalURL(),
	})
	if ferr != nil {
		return schema.ProviderResponse{}, &FallbackError{Provider: providerType, Primary: err, Fallback: ferr}
	}
	resp, ferr = local.Chat(ctx, FallbackModel, messages)
	if ferr != nil {
		log.Error("local fallback failed", "err", ferr)
		return schema.ProviderResponse{}, &FallbackError{Provider: providerType, Primary: err, Fallback: ferr}
	}
	return resp, nil
}

func (r *Runner) deriveKeywords(ctx context.Context, log *slog.Logger, parent schema.InvocationRequest, providerType string, result schema.InvocationResult) []string {
	text := result.ResultText()
	if text == "" {
		if data, err := json.Marshal(result.Result); err == nil {
			text = string(data)
		}
	}

	nested, err := r.Run(ctx, schema.InvocationRequest{
		ToolID: KeywordsTool,
		Inputs: map[string]string{
			schema.InputQuestion: parent.Input(schema.InputQuestion),
			schema.InputFile:     text,
		},
		Provider:  providerType,
		Recursive: true,
	})
	if err != nil {
		log.Warn("keyword derivation failed", "err", err)
		return []string{}
	}
	return KeywordsFrom(nested.Result)
}

// KeywordsFrom flattens a keywords result: either a bare list or an object
// with a "keywords" list. Anything else yields an empty list.
func KeywordsFrom(v any) []string {
	if m, ok := v.(map[string]any); ok {
		v = m["keywords"]
	}
	list, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// StreamChat streams a free-form chat from the local provider. An empty
// model uses the configured local default or FallbackModel.
func (r *Runner) StreamChat(ctx context.Context, model string, messages schema.Messages) (<-chan schema.StreamEvent, error) {
	if model == "" {
		model = r.SelectModel(FallbackProvider, schema.ToolDefinition{})
	}
	provider, err := r.factory.New(FallbackProvider, schema.ProviderConfig{
		Type:    FallbackProvider,
		BaseURL: r.settings.LocalURL(),
	})
	if err != nil {
		return nil, err
	}
	streamer, ok := provider.(schema.StreamingProvider)
	if !ok {
		return nil, errors.New("local provider does not support streaming")
	}
	slog.Info("streaming chat", "model", model, "messages", messages.Len())
	return streamer.ChatStream(ctx, model, messages)
}
