package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/url"

	"github.com/inkforge/inkforge/internal/schema"
)

const definitionExt = ".json"

// Resolved is a validated definition together with its prompt template.
type Resolved struct {
	Definition schema.ToolDefinition
	Prompt     string
}

// Registry resolves tool definitions and prompt templates from storage.
// Nothing is cached: every call re-reads storage, so edits take effect on
// the next invocation. Locations are afs URLs, so a plain directory path,
// file://, mem:// or any registered scheme works.
type Registry struct {
	fs         afs.Service
	toolsURL   string
	promptsURL string
}

// NewRegistry returns a Registry reading definitions under toolsURL and
// templates under promptsURL. A nil fs gets afs.New().
func NewRegistry(fs afs.Service, toolsURL, promptsURL string) *Registry {
	if fs == nil {
		fs = afs.New()
	}
	return &Registry{fs: fs, toolsURL: toolsURL, promptsURL: promptsURL}
}

// ToolsURL returns the definition root.
func (r *Registry) ToolsURL() string { return r.toolsURL }

// PromptsURL returns the template root.
func (r *Registry) PromptsURL() string { return r.promptsURL }

// Load runs the whole resolution stage for one request: definition, then
// input validation, then template lookup. It fails on the first problem.
func (r *Registry) Load(ctx context.Context, toolID string, inputs map[string]string) (Resolved, error) {
	def, err := r.Resolve(ctx, toolID)
	if err != nil {
		return Resolved{}, err
	}
	if err := Validate(def, inputs); err != nil {
		return Resolved{}, err
	}
	prompt, err := r.Prompt(ctx, def, inputs)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{Definition: def, Prompt: prompt}, nil
}

// Resolve reads the definition for toolID.
func (r *Registry) Resolve(ctx context.Context, toolID string) (schema.ToolDefinition, error) {
	if !safeName(toolID) {
		return schema.ToolDefinition{}, &ToolNotFoundError{ID: toolID}
	}
	loc := url.Join(r.toolsURL, toolID+definitionExt)
	ok, err := r.fs.Exists(ctx, loc)
	if err != nil {
		return schema.ToolDefinition{}, fmt.Errorf("stat tool %s: %w", toolID, err)
	}
	if !ok {
		return schema.ToolDefinition{}, &ToolNotFoundError{ID: toolID}
	}
	data, err := r.fs.DownloadWithURL(ctx, loc)
	if err != nil {
		return schema.ToolDefinition{}, fmt.Errorf("read tool %s: %w", toolID, err)
	}
	var def schema.ToolDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return schema.ToolDefinition{}, fmt.Errorf("parse tool %s: %w", toolID, err)
	}
	def.ID = toolID
	return def, nil
}

// Validate checks required inputs in declaration order and reports only
// the first one that is absent or empty.
func Validate(def schema.ToolDefinition, inputs map[string]string) error {
	for _, in := range def.Inputs {
		if in.Required && strings.TrimSpace(inputs[in.Name]) == "" {
			return &MissingInputError{Name: in.Name}
		}
	}
	return nil
}

// PromptFile substitutes {input} tokens in the template filename. Each
// input replaces its first token occurrence.
func PromptFile(def schema.ToolDefinition, inputs map[string]string) string {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	file := def.Prompt
	for _, k := range keys {
		file = strings.Replace(file, "{"+k+"}", inputs[k], 1)
	}
	return file
}

// Prompt loads the template named by the definition after substitution.
func (r *Registry) Prompt(ctx context.Context, def schema.ToolDefinition, inputs map[string]string) (string, error) {
	file := PromptFile(def, inputs)
	if !safeName(file) {
		return "", &PromptNotFoundError{Tool: def.ID, File: file}
	}
	loc := url.Join(r.promptsURL, file)
	ok, err := r.fs.Exists(ctx, loc)
	if err != nil {
		return "", fmt.Errorf("stat prompt %s: %w", file, err)
	}
	if !ok {
		return "", &PromptNotFoundError{Tool: def.ID, File: file}
	}
	data, err := r.fs.DownloadWithURL(ctx, loc)
	if err != nil {
		return "", fmt.Errorf("read prompt %s: %w", file, err)
	}
	return string(data), nil
}

// List returns the definitions found under the tools root, sorted by id.
// Unparseable documents are logged and skipped.
func (r *Registry) List(ctx context.Context) ([]schema.ToolDefinition, error) {
	objects, err := r.fs.List(ctx, r.toolsURL)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	var out []schema.ToolDefinition
	for _, obj := range objects {
		if obj.IsDir() || !strings.HasSuffix(obj.Name(), definitionExt) {
			continue
		}
		id := strings.TrimSuffix(path.Base(obj.Name()), definitionExt)
		def, err := r.Resolve(ctx, id)
		if err != nil {
			slog.Warn("skipping tool definition", "tool", id, "err", err)
			continue
		}
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// safeName rejects identifiers that could escape their storage root.
func safeName(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}
