package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkforge/inkforge/internal/schema"
)

type scriptedChat struct {
	replies [][]schema.StreamEvent
	seen    []schema.Messages
}

func (s *scriptedChat) StreamChat(_ context.Context, _ string, history schema.Messages) (<-chan schema.StreamEvent, error) {
	s.seen = append(s.seen, history.Clone())
	events := s.replies[0]
	s.replies = s.replies[1:]
	ch := make(chan schema.StreamEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func TestChatTurn_FailedTurnLeavesHistoryUnchanged(t *testing.T) {
	chat := &scriptedChat{replies: [][]schema.StreamEvent{
		{{Text: "par"}, {Err: errors.New("connection reset")}},
		{{Text: "hello"}},
	}}
	history := schema.NewMessages()
	history.AddSystem("be brief")

	err := chatTurn(context.Background(), chat, &history, "first")
	require.Error(t, err)
	assert.Equal(t, 1, history.Len())

	require.NoError(t, chatTurn(context.Background(), chat, &history, "second"))

	// The retry is sent without the unanswered first turn.
	require.Len(t, chat.seen, 2)
	assert.Equal(t, []schema.Message{
		schema.NewSystemMessage("be brief"),
		schema.NewUserMessage("second"),
	}, chat.seen[1].Messages)
	assert.Equal(t, []schema.Message{
		schema.NewSystemMessage("be brief"),
		schema.NewUserMessage("second"),
		schema.NewAssistantMessage("hello"),
	}, history.Messages)
}
