// Package mcp serves tool invocation to MCP clients over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/inkforge/inkforge/internal/schema"
)

// Invoker runs a tool. *runner.Runner satisfies it.
type Invoker interface {
	Run(ctx context.Context, req schema.InvocationRequest) (schema.InvocationResult, error)
}

// ToolLister enumerates tool definitions. *tools.Registry satisfies it.
type ToolLister interface {
	List(ctx context.Context) ([]schema.ToolDefinition, error)
}

// Server adapts the runner to an MCP server exposing list_tools and run_tool.
type Server struct {
	invoker Invoker
	lister  ToolLister
	mcp     *server.MCPServer
}

// NewServer creates a Server with both tools registered.
func NewServer(name, version string, invoker Invoker, lister ToolLister) *Server {
	s := &Server{
		invoker: invoker,
		lister:  lister,
		mcp:     server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool("list_tools",
		mcp.WithDescription("List the content-generation tools and their inputs."),
	), s.handleListTools)

	s.mcp.AddTool(mcp.NewTool("run_tool",
		mcp.WithDescription("Run a content-generation tool and return its result with derived keywords."),
		mcp.WithString("tool", mcp.Required(), mcp.Description("Tool id, e.g. brief")),
		mcp.WithObject("inputs", mcp.Required(), mcp.Description("Input values keyed by input name")),
		mcp.WithString("provider", mcp.Description("Provider type override: ollama, gemini, openai or deepseek")),
	), s.handleRunTool)

	return s
}

// MCPServer exposes the underlying server, mainly for tests.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio blocks serving JSON-RPC on in/out until ctx is done.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

type toolInfo struct {
	ID          string             `json:"id"`
	Description string             `json:"description,omitempty"`
	Inputs      []schema.InputSpec `json:"inputs"`
	OutputType  schema.OutputType  `json:"outputType"`
}

func (s *Server) handleListTools(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defs, err := s.lister.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := make([]toolInfo, 0, len(defs))
	for _, d := range defs {
		out = append(out, toolInfo{ID: d.ID, Description: d.Description, Inputs: d.Inputs, OutputType: d.OutputType})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleRunTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	toolID, _ := args["tool"].(string)
	if toolID == "" {
		return mcp.NewToolResultError("tool is required"), nil
	}
	rawInputs, ok := args["inputs"].(map[string]any)
	if !ok {
		return mcp.NewToolResultError("inputs must be an object"), nil
	}
	provider, _ := args["provider"].(string)

	res, err := s.invoker.Run(ctx, schema.InvocationRequest{
		ToolID:   toolID,
		Inputs:   flatten(rawInputs),
		Provider: provider,
	})
	if err != nil {
		slog.Warn("mcp run_tool failed", "tool", toolID, "err", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func flatten(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, val := range in {
		switch v := val.(type) {
		case nil:
		case string:
			out[k] = v
		default:
			b, _ := json.Marshal(v)
			out[k] = string(b)
		}
	}
	return out
}
