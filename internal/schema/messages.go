package schema

// Messages is the ordered list of messages exchanged with the LLM.
// It owns typed append methods so callers never construct raw slices.
type Messages struct {
	Messages []Message `json:"messages"`
}

// NewMessages returns a Messages initialised with the given messages.
// Called with no arguments it returns an empty Messages ready for use.
func NewMessages(msgs ...Message) Messages {
	if len(msgs) == 0 {
		return Messages{Messages: make([]Message, 0)}
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return Messages{Messages: out}
}

// AddSystem appends a system message.
func (mh *Messages) AddSystem(content string) {
	mh.Messages = append(mh.Messages, NewSystemMessage(content))
}

// AddUser appends a user message.
func (mh *Messages) AddUser(content string) {
	mh.Messages = append(mh.Messages, NewUserMessage(content))
}

// AddAssistant appends an assistant message.
func (mh *Messages) AddAssistant(content string) {
	mh.Messages = append(mh.Messages, NewAssistantMessage(content))
}

// Truncate drops every message after the first n. It is a no-op when mh
// holds n or fewer messages.
func (mh *Messages) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(mh.Messages) {
		mh.Messages = mh.Messages[:n]
	}
}

// Len returns the number of messages.
func (mh Messages) Len() int { return len(mh.Messages) }

// Split separates the leading system instructions from the conversation
// turns. Multiple system messages are joined with a blank line.
func (mh Messages) Split() (system string, turns []Message) {
	for _, m := range mh.Messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}

// Clone returns a copy of mh with an independent backing slice.
func (mh *Messages) Clone() Messages {
	cloned := make([]Message, len(mh.Messages))
	copy(cloned, mh.Messages)
	return Messages{Messages: cloned}
}
