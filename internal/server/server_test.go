package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkforge/inkforge/internal/material"
	"github.com/inkforge/inkforge/internal/publisher"
	"github.com/inkforge/inkforge/internal/schema"
	"github.com/inkforge/inkforge/internal/tools"
)

type fakeInvoker struct {
	reqs   []schema.InvocationRequest
	err    error
	tokens []string
	chats  []schema.Messages
}

func (f *fakeInvoker) Run(_ context.Context, req schema.InvocationRequest) (schema.InvocationResult, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return schema.InvocationResult{}, f.err
	}
	return schema.InvocationResult{
		ToolID:     req.ToolID,
		OutputType: schema.OutputJSON,
		Result:     map[string]any{"brief": "b"},
		Keywords:   []string{"k1"},
	}, nil
}

func (f *fakeInvoker) StreamChat(_ context.Context, _ string, msgs schema.Messages) (<-chan schema.StreamEvent, error) {
	f.chats = append(f.chats, msgs)
	ch := make(chan schema.StreamEvent, len(f.tokens))
	for _, tok := range f.tokens {
		ch <- schema.StreamEvent{Text: tok}
	}
	close(ch)
	return ch, nil
}

type fakeLister struct{ defs []schema.ToolDefinition }

func (f fakeLister) List(context.Context) ([]schema.ToolDefinition, error) { return f.defs, nil }

type fakePublisher struct {
	briefs []publisher.BriefInput
	err    error
}

func (f *fakePublisher) PublishBrief(_ context.Context, in publisher.BriefInput) (publisher.Published, error) {
	f.briefs = append(f.briefs, in)
	if f.err != nil {
		return publisher.Published{}, f.err
	}
	return publisher.Published{PostID: 9, Link: "l", Status: "draft"}, nil
}

func (f *fakePublisher) GenerateOutline(_ context.Context, topic, _ string) (any, error) {
	return map[string]any{"title": topic}, nil
}

func (f *fakePublisher) GenerateSection(_ context.Context, sec publisher.Section, _, _ string) (string, error) {
	return "body of " + sec.Heading, nil
}

func (f *fakePublisher) PublishArticle(_ context.Context, _ publisher.ArticleInput) (publisher.Published, error) {
	return publisher.Published{PostID: 10}, f.err
}

type fakeFetcher struct{ text string }

func (f fakeFetcher) Fetch(_ context.Context, rawURL string) (material.Material, error) {
	if !strings.HasPrefix(rawURL, "http") {
		return material.Material{}, material.ErrUnsupportedURL
	}
	return material.Material{URL: rawURL, Text: f.text}, nil
}

func newTestServer(inv *fakeInvoker, pub *fakePublisher) http.Handler {
	lister := fakeLister{defs: []schema.ToolDefinition{{ID: "brief", OutputType: schema.OutputJSON}}}
	return New(inv, lister, pub, fakeFetcher{text: "page text"}, Options{}).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRun_RequiresToolAndInputs(t *testing.T) {
	inv := &fakeInvoker{}
	h := newTestServer(inv, &fakePublisher{})

	for _, body := range []string{`{}`, `{"tool":"brief"}`, `{"inputs":{}}`} {
		rec := do(t, h, http.MethodPost, "/api/run", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), "tool and inputs required")
	}
	assert.Empty(t, inv.reqs)
}

func TestRun_OK(t *testing.T) {
	inv := &fakeInvoker{}
	h := newTestServer(inv, &fakePublisher{})

	rec := do(t, h, http.MethodPost, "/api/run",
		`{"tool":"brief","inputs":{"question":"q","provider":"gemini","n":3}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Output schema.InvocationResult `json:"output"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "brief", got.Output.ToolID)
	assert.Equal(t, []string{"k1"}, got.Output.Keywords)

	require.Len(t, inv.reqs, 1)
	assert.Equal(t, "gemini", inv.reqs[0].Inputs["provider"])
	assert.Equal(t, "3", inv.reqs[0].Inputs["n"])
}

func TestRun_MaterialURL(t *testing.T) {
	inv := &fakeInvoker{}
	h := newTestServer(inv, &fakePublisher{})

	rec := do(t, h, http.MethodPost, "/api/run",
		`{"tool":"brief","inputs":{"question":"q"},"materialUrl":"https://example.com/a"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "page text", inv.reqs[0].Inputs[schema.InputFile])

	rec = do(t, h, http.MethodPost, "/api/run",
		`{"tool":"brief","inputs":{"question":"q"},"materialUrl":"file:///etc/passwd"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRun_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&tools.ToolNotFoundError{ID: "x"}, http.StatusNotFound},
		{&tools.PromptNotFoundError{Tool: "x", File: "x.txt"}, http.StatusNotFound},
		{&tools.MissingInputError{Name: "question"}, http.StatusBadRequest},
		{errors.New("provider down"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		h := newTestServer(&fakeInvoker{err: c.err}, &fakePublisher{})
		rec := do(t, h, http.MethodPost, "/api/run", `{"tool":"x","inputs":{}}`)
		assert.Equal(t, c.code, rec.Code, c.err.Error())
		assert.Contains(t, rec.Body.String(), c.err.Error())
	}
}

func TestTools(t *testing.T) {
	h := newTestServer(&fakeInvoker{}, &fakePublisher{})
	rec := do(t, h, http.MethodGet, "/api/tools", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"brief"`)
}

func TestChat_Streams(t *testing.T) {
	inv := &fakeInvoker{tokens: []string{"你", "好", "!"}}
	h := newTestServer(inv, &fakePublisher{})

	rec := do(t, h, http.MethodPost, "/api/chat",
		`{"model":"gemma3:12b","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "你好!", rec.Body.String())
	assert.True(t, rec.Flushed)
	require.Len(t, inv.chats, 1)
	assert.Equal(t, 1, inv.chats[0].Len())
}

func TestChat_RequiresMessages(t *testing.T) {
	h := newTestServer(&fakeInvoker{}, &fakePublisher{})
	rec := do(t, h, http.MethodPost, "/api/chat", `{"model":"m"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatWS(t *testing.T) {
	inv := &fakeInvoker{tokens: []string{"a", "b"}}
	srv := httptest.NewServer(newTestServer(inv, &fakePublisher{}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	}))

	var frames []wsFrame
	for {
		var f wsFrame
		require.NoError(t, conn.ReadJSON(&f))
		frames = append(frames, f)
		if f.Type == "done" || f.Type == "error" {
			break
		}
	}
	assert.Equal(t, []wsFrame{{Type: "token", Text: "a"}, {Type: "token", Text: "b"}, {Type: "done"}}, frames)
}

func TestPublishBrief(t *testing.T) {
	pub := &fakePublisher{}
	h := newTestServer(&fakeInvoker{}, pub)

	rec := do(t, h, http.MethodPost, "/api/publish-brief",
		`{"question":"q","brief":"b","keywords":[],"platform":"xhs"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"result":{"postId":9,"link":"l","status":"draft"}}`, rec.Body.String())
	assert.Equal(t, "xhs", pub.briefs[0].Platform)
}

func TestPublishBrief_Failure(t *testing.T) {
	h := newTestServer(&fakeInvoker{}, &fakePublisher{err: publisher.ErrNotConfigured})
	rec := do(t, h, http.MethodPost, "/api/publish-brief", `{"question":"q"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"`+publisher.ErrNotConfigured.Error()+`"}`, rec.Body.String())
}

func TestArticleRoutes(t *testing.T) {
	h := newTestServer(&fakeInvoker{}, &fakePublisher{})

	rec := do(t, h, http.MethodPost, "/api/article/outline", `{"topic":"AI"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"outline":{"title":"AI"}}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/article/section",
		`{"section":{"heading":"背景","key_points":["a"]},"context":"AI"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"content":"body of 背景"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/article/outline", `{"topic":" "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/publish-article", `{"title":"T","content":"C"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInvalidJSON(t *testing.T) {
	h := newTestServer(&fakeInvoker{}, &fakePublisher{})
	rec := do(t, h, http.MethodPost, "/api/run", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	h := newTestServer(&fakeInvoker{}, &fakePublisher{})
	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
