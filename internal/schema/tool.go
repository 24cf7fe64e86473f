package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OutputType tags the expected shape of a tool's raw model output.
type OutputType string

const (
	OutputText OutputType = "text"
	OutputJSON OutputType = "json"
)

// InputSpec declares one named tool input.
type InputSpec struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// ToolDefinition is the declarative descriptor of a task, read from tool
// storage on every invocation.
type ToolDefinition struct {
	ID              string
	Inputs          []InputSpec // declaration order
	Prompt          string      // template filename, may contain {input} tokens
	OutputType      OutputType
	DefaultProvider string
	Models          map[string]string // provider type -> model id
	Description     string
}

// IsJSON reports whether the tool expects structured output.
func (d ToolDefinition) IsJSON() bool { return d.OutputType == OutputJSON }

// ModelFor returns the tool's preferred model for providerType, if any.
func (d ToolDefinition) ModelFor(providerType string) string {
	if d.Models == nil {
		return ""
	}
	return d.Models[providerType]
}

type toolDefinitionWire struct {
	Inputs          json.RawMessage   `json:"inputs"`
	Prompt          string            `json:"prompt"`
	OutputType      OutputType        `json:"outputType"`
	DefaultProvider string            `json:"defaultProvider"`
	Models          map[string]string `json:"models"`
	Description     string            `json:"description"`
}

// UnmarshalJSON decodes the storage document. The inputs object is walked
// token by token so that declaration order survives.
func (d *ToolDefinition) UnmarshalJSON(data []byte) error {
	var w toolDefinitionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	inputs, err := decodeInputs(w.Inputs)
	if err != nil {
		return err
	}
	d.Inputs = inputs
	d.Prompt = w.Prompt
	d.OutputType = w.OutputType
	if d.OutputType == "" {
		d.OutputType = OutputText
	}
	d.DefaultProvider = w.DefaultProvider
	d.Models = w.Models
	d.Description = w.Description
	return nil
}

func decodeInputs(raw json.RawMessage) ([]InputSpec, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("inputs: expected object, got %v", tok)
	}
	var out []InputSpec
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, _ := tok.(string)
		var spec struct {
			Required bool `json:"required"`
		}
		if err := dec.Decode(&spec); err != nil {
			return nil, fmt.Errorf("inputs.%s: %w", name, err)
		}
		out = append(out, InputSpec{Name: name, Required: spec.Required})
	}
	return out, nil
}
