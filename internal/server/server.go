// Package server exposes tool invocation, streaming chat and publishing
// over HTTP and websocket.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/inkforge/inkforge/internal/material"
	"github.com/inkforge/inkforge/internal/publisher"
	"github.com/inkforge/inkforge/internal/schema"
	"github.com/inkforge/inkforge/internal/tools"
)

// Invoker runs tools and streams chats. *runner.Runner satisfies it.
type Invoker interface {
	Run(ctx context.Context, req schema.InvocationRequest) (schema.InvocationResult, error)
	StreamChat(ctx context.Context, model string, messages schema.Messages) (<-chan schema.StreamEvent, error)
}

// ToolLister enumerates tool definitions. *tools.Registry satisfies it.
type ToolLister interface {
	List(ctx context.Context) ([]schema.ToolDefinition, error)
}

// Publisher is the subset of *publisher.Service the routes use.
type Publisher interface {
	PublishBrief(ctx context.Context, in publisher.BriefInput) (publisher.Published, error)
	GenerateOutline(ctx context.Context, topic, provider string) (any, error)
	GenerateSection(ctx context.Context, sec publisher.Section, articleContext, provider string) (string, error)
	PublishArticle(ctx context.Context, in publisher.ArticleInput) (publisher.Published, error)
}

// MaterialFetcher fills the file input from a URL. *material.Fetcher satisfies it.
type MaterialFetcher interface {
	Fetch(ctx context.Context, rawURL string) (material.Material, error)
}

// Options tune request handling.
type Options struct {
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

// Server holds the HTTP handlers.
type Server struct {
	invoker   Invoker
	tools     ToolLister
	publisher Publisher
	fetcher   MaterialFetcher
	opts      Options
	upgrader  websocket.Upgrader
}

// New creates a Server. fetcher may be nil, in which case materialUrl is
// rejected.
func New(invoker Invoker, lister ToolLister, pub Publisher, fetcher MaterialFetcher, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 << 20
	}
	return &Server{
		invoker:   invoker,
		tools:     lister,
		publisher: pub,
		fetcher:   fetcher,
		opts:      opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Register adds every route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/tools", s.handleTools)
	mux.HandleFunc("POST /api/run", s.handleRun)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chat/ws", s.handleChatWS)
	mux.HandleFunc("POST /api/publish-brief", s.handlePublishBrief)
	mux.HandleFunc("POST /api/article/outline", s.handleOutline)
	mux.HandleFunc("POST /api/article/section", s.handleSection)
	mux.HandleFunc("POST /api/publish-article", s.handlePublishArticle)
}

// Handler returns the routes wrapped with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return logRequests(mux)
}

// ---------------- helpers -----------------

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor maps definition errors to 4xx and everything else to 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tools.ErrToolNotFound), errors.Is(err, tools.ErrPromptNotFound):
		return http.StatusNotFound
	case errors.Is(err, tools.ErrMissingInput), errors.Is(err, material.ErrUnsupportedURL):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.RequestTimeout)
}

// stringInputs flattens JSON input values to strings. Non-string values
// are re-encoded as JSON.
func stringInputs(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		default:
			b, _ := json.Marshal(val)
			out[k] = string(b)
		}
	}
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// ---------------- endpoints ----------------

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type toolSummary struct {
	ID              string             `json:"id"`
	Description     string             `json:"description,omitempty"`
	Inputs          []schema.InputSpec `json:"inputs"`
	OutputType      schema.OutputType  `json:"outputType"`
	DefaultProvider string             `json:"defaultProvider,omitempty"`
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	defs, err := s.tools.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]toolSummary, 0, len(defs))
	for _, d := range defs {
		out = append(out, toolSummary{
			ID:              d.ID,
			Description:     d.Description,
			Inputs:          d.Inputs,
			OutputType:      d.OutputType,
			DefaultProvider: d.DefaultProvider,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

type runRequest struct {
	Tool        string         `json:"tool"`
	Inputs      map[string]any `json:"inputs"`
	Provider    string         `json:"provider,omitempty"`
	MaterialURL string         `json:"materialUrl,omitempty"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if !s.decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Tool) == "" || body.Inputs == nil {
		writeError(w, http.StatusBadRequest, "tool and inputs required")
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	inputs := stringInputs(body.Inputs)
	if body.MaterialURL != "" {
		if s.fetcher == nil {
			writeError(w, http.StatusBadRequest, "material fetching is disabled")
			return
		}
		m, err := s.fetcher.Fetch(ctx, body.MaterialURL)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		inputs[schema.InputFile] = m.String()
	}

	res, err := s.invoker.Run(ctx, schema.InvocationRequest{
		ToolID:   body.Tool,
		Inputs:   inputs,
		Provider: body.Provider,
	})
	if err != nil {
		slog.Error("tool run failed", "tool", body.Tool, "err", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"output": res})
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []schema.Message `json:"messages"`
}

func (c chatRequest) valid() bool { return len(c.Messages) > 0 }

// handleChat streams tokens as a chunked text/plain body.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if !s.decode(w, r, &body) {
		return
	}
	if !body.valid() {
		writeError(w, http.StatusBadRequest, "messages required")
		return
	}

	events, err := s.invoker.StreamChat(r.Context(), body.Model, schema.NewMessages(body.Messages...))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for ev := range events {
		if ev.Err != nil {
			slog.Warn("chat stream interrupted", "err", ev.Err)
			return
		}
		if _, err := w.Write([]byte(ev.Text)); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

type wsFrame struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

// handleChatWS serves one chat per inbound frame until the client closes.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.opts.MaxBodyBytes)

	for {
		var body chatRequest
		if err := conn.ReadJSON(&body); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read ended", "err", err)
			}
			return
		}
		if !body.valid() {
			if conn.WriteJSON(wsFrame{Type: "error", Message: "messages required"}) != nil {
				return
			}
			continue
		}
		if err := s.streamToSocket(r.Context(), conn, body); err != nil {
			return
		}
	}
}

func (s *Server) streamToSocket(ctx context.Context, conn *websocket.Conn, body chatRequest) error {
	events, err := s.invoker.StreamChat(ctx, body.Model, schema.NewMessages(body.Messages...))
	if err != nil {
		return conn.WriteJSON(wsFrame{Type: "error", Message: err.Error()})
	}
	for ev := range events {
		if ev.Err != nil {
			return conn.WriteJSON(wsFrame{Type: "error", Message: ev.Err.Error()})
		}
		if err := conn.WriteJSON(wsFrame{Type: "token", Text: ev.Text}); err != nil {
			return err
		}
	}
	return conn.WriteJSON(wsFrame{Type: "done"})
}

func (s *Server) handlePublishBrief(w http.ResponseWriter, r *http.Request) {
	var in publisher.BriefInput
	if !s.decode(w, r, &in) {
		return
	}
	res, err := s.publisher.PublishBrief(r.Context(), in)
	if err != nil {
		slog.Error("publish brief failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": res})
}

type outlineRequest struct {
	Topic    string `json:"topic"`
	Provider string `json:"provider,omitempty"`
}

func (s *Server) handleOutline(w http.ResponseWriter, r *http.Request) {
	var body outlineRequest
	if !s.decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Topic) == "" {
		writeError(w, http.StatusBadRequest, "topic required")
		return
	}
	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	outline, err := s.publisher.GenerateOutline(ctx, body.Topic, body.Provider)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outline": outline})
}

type sectionRequest struct {
	Section  publisher.Section `json:"section"`
	Context  string            `json:"context"`
	Provider string            `json:"provider,omitempty"`
}

func (s *Server) handleSection(w http.ResponseWriter, r *http.Request) {
	var body sectionRequest
	if !s.decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Section.Heading) == "" {
		writeError(w, http.StatusBadRequest, "section heading required")
		return
	}
	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	text, err := s.publisher.GenerateSection(ctx, body.Section, body.Context, body.Provider)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": text})
}

func (s *Server) handlePublishArticle(w http.ResponseWriter, r *http.Request) {
	var in publisher.ArticleInput
	if !s.decode(w, r, &in) {
		return
	}
	res, err := s.publisher.PublishArticle(r.Context(), in)
	if err != nil {
		slog.Error("publish article failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": res})
}
