package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/inkforge/inkforge/internal/providers"
	"github.com/inkforge/inkforge/internal/schema"
	"github.com/inkforge/inkforge/internal/tools"
)

type chatCall struct {
	Provider string
	Model    string
	Messages schema.Messages
}

type chatFunc func(model string, msgs schema.Messages) (schema.ProviderResponse, error)

type fakeProvider struct {
	name    string
	factory *fakeFactory
	fn      chatFunc
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Chat(_ context.Context, model string, msgs schema.Messages) (schema.ProviderResponse, error) {
	p.factory.mu.Lock()
	p.factory.chats = append(p.factory.chats, chatCall{Provider: p.name, Model: model, Messages: msgs})
	p.factory.mu.Unlock()
	return p.fn(model, msgs)
}

type fakeFactory struct {
	mu      sync.Mutex
	created []schema.ProviderConfig
	chats   []chatCall
	by      map[string]chatFunc
}

func newFakeFactory() *fakeFactory { return &fakeFactory{by: map[string]chatFunc{}} }

func (f *fakeFactory) New(providerType string, cfg schema.ProviderConfig) (schema.LLMProvider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, cfg)
	fn, ok := f.by[providerType]
	if !ok {
		return nil, &providers.UnsupportedProviderError{Type: providerType}
	}
	return &fakeProvider{name: providerType, factory: f, fn: fn}, nil
}

func reply(text, label string) chatFunc {
	return func(string, schema.Messages) (schema.ProviderResponse, error) {
		return schema.ProviderResponse{Text: text, ActualModel: label}, nil
	}
}

func fail(err error) chatFunc {
	return func(string, schema.Messages) (schema.ProviderResponse, error) {
		return schema.ProviderResponse{}, err
	}
}

func newRegistry(t *testing.T, toolsJSON map[string]string, prompts map[string]string) *tools.Registry {
	t.Helper()
	root := t.TempDir()
	toolsDir, promptsDir := filepath.Join(root, "tools"), filepath.Join(root, "prompts")
	require.NoError(t, os.MkdirAll(toolsDir, 0o755))
	require.NoError(t, os.MkdirAll(promptsDir, 0o755))
	for id, body := range toolsJSON {
		require.NoError(t, os.WriteFile(filepath.Join(toolsDir, id+".json"), []byte(body), 0o644))
	}
	for name, body := range prompts {
		require.NoError(t, os.WriteFile(filepath.Join(promptsDir, name), []byte(body), 0o644))
	}
	return tools.NewRegistry(afs.New(), toolsDir, promptsDir)
}

var standardTools = map[string]string{
	"brief": `{"inputs":{"question":{"required":true},"platform":{"required":true}},
		"prompt":"brief.{platform}.txt","outputType":"json"}`,
	"brief.keywords": `{"inputs":{"file":{"required":true}},"prompt":"keywords.txt","outputType":"json"}`,
	"summary":        `{"inputs":{"question":{"required":true}},"prompt":"summary.txt","defaultProvider":"gemini","models":{"gemini":"gemini-2.5-flash"}}`,
	"outline":        `{"inputs":{"question":{"required":true}},"prompt":"outline.txt","outputType":"json"}`,
}

var standardPrompts = map[string]string{
	"brief.zhihu.txt": "write a zhihu brief",
	"keywords.txt":    "extract keywords",
	"summary.txt":     "summarise",
	"outline.txt":     "outline",
}

func newTestRunner(t *testing.T, f *fakeFactory, settings Settings, opts ...Option) *Runner {
	return New(newRegistry(t, standardTools, standardPrompts), f, settings, opts...)
}

// collectSum returns the summed points of the named int64 counter and the
// attribute sets it was recorded with.
func collectSum(t *testing.T, reader *sdkmetric.ManualReader, name string) (int64, []attribute.Set) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	var sets []attribute.Set
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
				sets = append(sets, dp.Attributes)
			}
		}
	}
	return total, sets
}

func TestRun_MissingInputBeforeAnyProvider(t *testing.T) {
	f := newFakeFactory()
	f.by["ollama"] = reply("x", "Ollama: x")
	r := newTestRunner(t, f, Settings{})

	_, err := r.Run(context.Background(), schema.InvocationRequest{ToolID: "brief", Inputs: map[string]string{"platform": "zhihu"}})
	var missing *tools.MissingInputError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "question", missing.Name)
	assert.Empty(t, f.created)
	assert.Empty(t, f.chats)
}

func TestRun_ToolNotFound(t *testing.T) {
	f := newFakeFactory()
	r := newTestRunner(t, f, Settings{})
	_, err := r.Run(context.Background(), schema.InvocationRequest{ToolID: "nope"})
	assert.True(t, errors.Is(err, tools.ErrToolNotFound))
	assert.Empty(t, f.created)
}

func TestRun_ComposesMessages(t *testing.T) {
	f := newFakeFactory()
	f.by["gemini"] = reply("done", "Gemini: gemini-2.5-flash")
	r := newTestRunner(t, f, Settings{})

	res, err := r.Run(context.Background(), schema.InvocationRequest{
		ToolID: "summary",
		Inputs: map[string]string{"question": "什么是RAG", "file": "素材正文"},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Result)
	assert.Equal(t, schema.OutputText, res.OutputType)
	assert.Equal(t, "Gemini: gemini-2.5-flash", res.ActualModel)
	assert.Equal(t, []string{}, res.Keywords)

	require.Len(t, f.chats, 1)
	msgs := f.chats[0].Messages.Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.NewSystemMessage("summarise"), msgs[0])
	assert.Equal(t, schema.NewUserMessage("问题：\n什么是RAG\n\n素材：\n素材正文"), msgs[1])
}

func TestCompose_DefaultInstruction(t *testing.T) {
	msgs := Compose("p", map[string]string{"platform": "x"})
	assert.Equal(t, "请根据要求处理", msgs.Messages[1].Content)
}

func TestSelectProvider(t *testing.T) {
	r := New(nil, nil, Settings{DefaultProvider: "DeepSeek"})
	withDefault := schema.ToolDefinition{DefaultProvider: "Gemini"}

	assert.Equal(t, "openai", r.SelectProvider(schema.InvocationRequest{Provider: "OpenAI"}, withDefault))
	assert.Equal(t, "openai", r.SelectProvider(schema.InvocationRequest{Inputs: map[string]string{"provider": "openai"}}, withDefault))
	assert.Equal(t, "gemini", r.SelectProvider(schema.InvocationRequest{}, withDefault))
	assert.Equal(t, "deepseek", r.SelectProvider(schema.InvocationRequest{}, schema.ToolDefinition{}))
	assert.Equal(t, "ollama", New(nil, nil, Settings{}).SelectProvider(schema.InvocationRequest{}, schema.ToolDefinition{}))
}

func TestSelectModel(t *testing.T) {
	r := New(nil, nil, Settings{Providers: map[string]ProviderSettings{"gemini": {DefaultModel: "gemini-2.0-flash"}}})
	def := schema.ToolDefinition{Models: map[string]string{"ollama": "qwen3:8b"}}

	assert.Equal(t, "qwen3:8b", r.SelectModel("ollama", def))
	assert.Equal(t, "gemini-2.0-flash", r.SelectModel("gemini", def))
	assert.Equal(t, "deepseek-chat", r.SelectModel("deepseek", def))
	assert.Equal(t, "gemma3:12b", New(nil, nil, Settings{}).SelectModel("ollama", schema.ToolDefinition{}))
	assert.Equal(t, "gemini-1.5-flash", New(nil, nil, Settings{}).SelectModel("gemini", schema.ToolDefinition{}))
}

func TestRun_ProviderConfigFromSettings(t *testing.T) {
	f := newFakeFactory()
	f.by["gemini"] = reply("ok", "Gemini: m")
	r := newTestRunner(t, f, Settings{Providers: map[string]ProviderSettings{
		"gemini": {APIKey: "g-key", BaseURL: "https://proxy.example/v1beta"},
	}})
	_, err := r.Run(context.Background(), schema.InvocationRequest{ToolID: "summary", Inputs: map[string]string{"question": "q"}})
	require.NoError(t, err)
	require.Len(t, f.created, 1)
	assert.Equal(t, schema.ProviderConfig{Type: "gemini", BaseURL: "https://proxy.example/v1beta", APIKey: "g-key"}, f.created[0])
}

func TestRun_ExtractsJSONFromProse(t *testing.T) {
	f := newFakeFactory()
	f.by["ollama"] = reply(`Sure! {"title":"X","sections":[]} trailing`, "Ollama: gemma3:12b")
	r := newTestRunner(t, f, Settings{})

	res, err := r.Run(context.Background(), schema.InvocationRequest{ToolID: "outline", Inputs: map[string]string{"question": "q"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "X", "sections": []any{}}, res.Result)
}

func TestRun_RepairsTruncatedJSON(t *testing.T) {
	f := newFakeFactory()
	f.by["ollama"] = reply(`{"title":"X","sections":[{"heading":"A"`, "Ollama: gemma3:12b")
	r := newTestRunner(t, f, Settings{})

	res, err := r.Run(context.Background(), schema.InvocationRequest{ToolID: "outline", Inputs: map[string]string{"question": "q"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"title":    "X",
		"sections": []any{map[string]any{"heading": "A"}},
	}, res.Result)
}

func TestPostProcess_Degrades(t *testing.T) {
	out, degraded := PostProcess(schema.OutputJSON, "I cannot produce JSON today")
	assert.True(t, degraded)
	obj := out.(map[string]any)
	sections := obj["sections"].([]any)
	first := sections[0].(map[string]any)
	assert.Equal(t, "生成内容不完整", obj["title"])
	assert.Equal(t, "解析失败", first["heading"])
	assert.Equal(t, []any{"I cannot produce JSON today"}, first["key_points"])

	out, degraded = PostProcess(schema.OutputJSON, `{"a": tru`)
	assert.True(t, degraded)
	assert.Equal(t, "解析失败", out.(map[string]any)["sections"].([]any)[0].(map[string]any)["heading"])

	out, degraded = PostProcess(schema.OutputJSON, `[tru`)
	assert.True(t, degraded)
	assert.Equal(t, []any{}, out)

	out, degraded = PostProcess(schema.OutputText, "  raw text  ")
	assert.False(t, degraded)
	assert.Equal(t, "  raw text  ", out)
}

func TestPlaceholder_KeepsFiftyRunes(t *testing.T) {
	raw := ""
	for i := 0; i < 60; i++ {
		raw += "字"
	}
	points := Placeholder(raw)["sections"].([]any)[0].(map[string]any)["key_points"].([]any)
	assert.Equal(t, 50, len([]rune(points[0].(string))))
}

func TestPostProcess_StripsThinkBlocks(t *testing.T) {
	out, degraded := PostProcess(schema.OutputJSON, "<think>maybe {\"x\":1}?</think>\n{\"keywords\":[\"a\"]}")
	assert.False(t, degraded)
	assert.Equal(t, map[string]any{"keywords": []any{"a"}}, out)
}

func briefRequest(recursive bool) schema.InvocationRequest {
	return schema.InvocationRequest{
		ToolID:    "brief",
		Inputs:    map[string]string{"question": "为什么要学Go", "platform": "zhihu"},
		Provider:  "gemini",
		Recursive: recursive,
	}
}

func TestRun_BriefDerivesKeywordsWithSameProvider(t *testing.T) {
	f := newFakeFactory()
	f.by["gemini"] = func(_ string, msgs schema.Messages) (schema.ProviderResponse, error) {
		if msgs.Messages[0].Content == "extract keywords" {
			return schema.ProviderResponse{Text: `{"keywords":["Go","并发"," "]}`, ActualModel: "Gemini: k"}, nil
		}
		return schema.ProviderResponse{Text: `{"brief":"正文","summary":"摘要"}`, ActualModel: "Gemini: b"}, nil
	}
	r := newTestRunner(t, f, Settings{})

	res, err := r.Run(context.Background(), briefRequest(false))
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "并发"}, res.Keywords)
	assert.Equal(t, "Gemini: b", res.ActualModel)
	assert.Equal(t, schema.OutputJSON, res.OutputType)

	require.Len(t, f.chats, 2)
	nested := f.chats[1]
	assert.Equal(t, "gemini", nested.Provider)
	assert.Equal(t, "问题：\n为什么要学Go\n\n素材：\n正文", nested.Messages.Messages[1].Content)
}

func TestRun_RecursiveBriefSkipsDerivation(t *testing.T) {
	f := newFakeFactory()
	f.by["gemini"] = reply(`{"brief":"正文"}`, "Gemini: b")
	r := newTestRunner(t, f, Settings{})

	res, err := r.Run(context.Background(), briefRequest(true))
	require.NoError(t, err)
	assert.Equal(t, []string{}, res.Keywords)
	assert.Len(t, f.chats, 1)
}

func TestRun_KeywordFailureIsSwallowed(t *testing.T) {
	f := newFakeFactory()
	f.by["ollama"] = func(_ string, msgs schema.Messages) (schema.ProviderResponse, error) {
		if msgs.Messages[0].Content == "extract keywords" {
			return schema.ProviderResponse{}, errors.New("boom")
		}
		return schema.ProviderResponse{Text: `plain text brief`, ActualModel: "Ollama: gemma3:12b"}, nil
	}
	r := newTestRunner(t, f, Settings{})

	req := briefRequest(false)
	req.Provider = ""
	res, err := r.Run(context.Background(), req)
	require.NoError(t, err)
	assert.NotNil(t, res.Keywords)
	assert.Empty(t, res.Keywords)
}

func TestKeywordsFrom(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, KeywordsFrom([]any{"a", 1, "b"}))
	assert.Equal(t, []string{"c"}, KeywordsFrom(map[string]any{"keywords": []any{"c"}}))
	assert.Equal(t, []string{}, KeywordsFrom(map[string]any{"title": "x"}))
	assert.Equal(t, []string{}, KeywordsFrom("a,b"))
}

func TestRun_FallsBackToLocalOnce(t *testing.T) {
	f := newFakeFactory()
	f.by["gemini"] = fail(&providers.AllModelsExhaustedError{Provider: "gemini", Attempts: 4, Last: providers.ErrEmptyResponse})
	f.by["ollama"] = reply("local answer", "Ollama: gemma3:12b")
	r := newTestRunner(t, f, Settings{Providers: map[string]ProviderSettings{"ollama": {BaseURL: "http://gpu-box:11434"}}})

	res, err := r.Run(context.Background(), schema.InvocationRequest{ToolID: "summary", Inputs: map[string]string{"question": "q"}})
	require.NoError(t, err)
	assert.Equal(t, "Ollama: gemma3:12b", res.ActualModel)

	require.Len(t, f.chats, 2)
	assert.Equal(t, "ollama", f.chats[1].Provider)
	assert.Equal(t, FallbackModel, f.chats[1].Model)
	assert.Equal(t, "http://gpu-box:11434", f.created[1].BaseURL)
}

func TestRun_FallbackCountedOnce(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	f := newFakeFactory()
	f.by["gemini"] = fail(&providers.AllModelsExhaustedError{Provider: "gemini", Attempts: 4, Last: providers.ErrEmptyResponse})
	f.by["ollama"] = reply("local answer", "Ollama: gemma3:12b")
	r := newTestRunner(t, f, Settings{Providers: map[string]ProviderSettings{"ollama": {BaseURL: "http://gpu-box:11434"}}},
		WithMeterProvider(mp))

	_, err := r.Run(context.Background(), schema.InvocationRequest{ToolID: "summary", Inputs: map[string]string{"question": "q"}})
	require.NoError(t, err)

	total, sets := collectSum(t, reader, "inkforge.local_fallbacks")
	assert.Equal(t, int64(1), total)
	require.Len(t, sets, 1)
	provider, _ := sets[0].Value("provider")
	assert.Equal(t, "gemini", provider.AsString())
	reason, _ := sets[0].Value("reason")
	assert.Equal(t, "error", reason.AsString())
}

func TestRun_FallbackTagsAuthFailures(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	f := newFakeFactory()
	f.by["gemini"] = fail(&providers.HTTPError{Provider: "gemini", StatusCode: 401, Message: "bad key"})
	f.by["ollama"] = reply("local answer", "Ollama: gemma3:12b")
	r := newTestRunner(t, f, Settings{}, WithMeterProvider(mp))

	_, err := r.Run(context.Background(), schema.InvocationRequest{ToolID: "summary", Inputs: map[string]string{"question": "q"}})
	require.NoError(t, err)

	total, sets := collectSum(t, reader, "inkforge.local_fallbacks")
	assert.Equal(t, int64(1), total)
	require.Len(t, sets, 1)
	reason, _ := sets[0].Value("reason")
	assert.Equal(t, "auth", reason.AsString())
}

func TestRun_NoFallbackNoCount(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	f := newFakeFactory()
	f.by["gemini"] = reply("remote answer", "Gemini: gemini-2.5-flash")
	r := newTestRunner(t, f, Settings{}, WithMeterProvider(mp))

	_, err := r.Run(context.Background(), schema.InvocationRequest{ToolID: "summary", Inputs: map[string]string{"question": "q"}})
	require.NoError(t, err)

	total, _ := collectSum(t, reader, "inkforge.local_fallbacks")
	assert.Zero(t, total)
	invocations, _ := collectSum(t, reader, "inkforge.invocations")
	assert.Equal(t, int64(1), invocations)
}

func TestRun_FallbackAlsoFails(t *testing.T) {
	primary := &providers.HTTPError{Provider: "gemini", StatusCode: 401, Message: "bad key"}
	secondary := &providers.ConnectionError{Provider: "ollama", Err: errors.New("refused")}
	f := newFakeFactory()
	f.by["gemini"] = fail(primary)
	f.by["ollama"] = fail(secondary)
	r := newTestRunner(t, f, Settings{})

	_, err := r.Run(context.Background(), schema.InvocationRequest{ToolID: "summary", Inputs: map[string]string{"question": "q"}})
	var fb *FallbackError
	require.ErrorAs(t, err, &fb)
	assert.True(t, errors.Is(err, primary))
	assert.True(t, errors.Is(err, secondary))
	assert.Len(t, f.chats, 2)
	assert.Equal(t, DefaultLocalURL, f.created[1].BaseURL)
}

func TestRun_LocalFailureHasNoFallback(t *testing.T) {
	f := newFakeFactory()
	f.by["ollama"] = fail(&providers.ConnectionError{Provider: "ollama", Err: errors.New("refused")})
	r := newTestRunner(t, f, Settings{})

	_, err := r.Run(context.Background(), schema.InvocationRequest{ToolID: "outline", Inputs: map[string]string{"question": "q"}})
	var connErr *providers.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Len(t, f.chats, 1)
}

func TestRun_UnsupportedProviderIsFatal(t *testing.T) {
	f := newFakeFactory()
	f.by["ollama"] = reply("x", "Ollama: x")
	r := newTestRunner(t, f, Settings{})

	_, err := r.Run(context.Background(), schema.InvocationRequest{ToolID: "outline", Provider: "claude", Inputs: map[string]string{"question": "q"}})
	assert.True(t, errors.Is(err, providers.ErrUnsupportedProvider))
	assert.Empty(t, f.chats)
}

type streamingFake struct {
	fakeProvider
	events []schema.StreamEvent
}

func (s *streamingFake) ChatStream(context.Context, string, schema.Messages) (<-chan schema.StreamEvent, error) {
	ch := make(chan schema.StreamEvent, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

type streamFactory struct{ p schema.LLMProvider }

func (f streamFactory) New(string, schema.ProviderConfig) (schema.LLMProvider, error) { return f.p, nil }

func TestStreamChat(t *testing.T) {
	p := &streamingFake{events: []schema.StreamEvent{{Text: "a"}, {Text: "b"}}}
	r := New(nil, streamFactory{p: p}, Settings{})

	ch, err := r.StreamChat(context.Background(), "", schema.NewMessages(schema.NewUserMessage("hi")))
	require.NoError(t, err)
	var got []string
	for ev := range ch {
		got = append(got, ev.Text)
	}
	assert.Equal(t, []string{"a", "b"}, got)

	_, err = New(nil, streamFactory{p: &fakeProvider{name: "ollama"}}, Settings{}).StreamChat(context.Background(), "m", schema.NewMessages())
	assert.Error(t, err)
}
