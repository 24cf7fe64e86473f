package runner

import (
	"strings"

	"github.com/inkforge/inkforge/internal/schema"
)

const defaultInstruction = "请根据要求处理"

// Compose builds the two-message chat sequence for a tool: the template as
// system message, then the question and material sections as user message.
func Compose(prompt string, inputs map[string]string) schema.Messages {
	var sb strings.Builder
	if q := inputs[schema.InputQuestion]; q != "" {
		sb.WriteString("问题：\n")
		sb.WriteString(q)
		sb.WriteString("\n\n")
	}
	if f := inputs[schema.InputFile]; f != "" {
		sb.WriteString("素材：\n")
		sb.WriteString(f)
		sb.WriteString("\n\n")
	}
	user := strings.TrimSpace(sb.String())
	if user == "" {
		user = defaultInstruction
	}

	msgs := schema.NewMessages()
	msgs.AddSystem(prompt)
	msgs.AddUser(user)
	return msgs
}
