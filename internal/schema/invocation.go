package schema

// Well-known input names used when composing the user message.
const (
	InputQuestion = "question"
	InputFile     = "file"
)

// InvocationRequest asks the runner to execute one tool.
type InvocationRequest struct {
	ToolID   string
	Inputs   map[string]string
	Provider string // explicit override, may be empty
	// Recursive marks a nested invocation issued by the runner itself.
	// Derivation chains are suppressed while it is set.
	Recursive bool
}

// Input returns the named input or "".
func (r InvocationRequest) Input(name string) string {
	if r.Inputs == nil {
		return ""
	}
	return r.Inputs[name]
}

// InvocationResult is returned once per invocation and never mutated.
type InvocationResult struct {
	ToolID      string     `json:"toolId"`
	OutputType  OutputType `json:"outputType"`
	Result      any        `json:"result"`
	Keywords    []string   `json:"keywords"`
	ActualModel string     `json:"actualModel"`
}

// ResultText returns the primary textual field of the result: the string
// itself, a "brief" field of an object result, or "".
func (r InvocationResult) ResultText() string {
	switch v := r.Result.(type) {
	case string:
		return v
	case map[string]any:
		if s, ok := v["brief"].(string); ok {
			return s
		}
	}
	return ""
}
