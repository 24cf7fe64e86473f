package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inkforge/inkforge/internal/schema"
)

var (
	chatMessage string
	chatModel   string
	chatSystem  string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Stream a free-form chat from the local model",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send a single message and exit")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "Local model (default from config)")
	chatCmd.Flags().StringVar(&chatSystem, "system", "", "System prompt")
}

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

func runChat(_ *cobra.Command, _ []string) error {
	container, err := buildContainer()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	history := schema.NewMessages()
	if chatSystem != "" {
		history.AddSystem(chatSystem)
	}

	if chatMessage != "" {
		history.AddUser(chatMessage)
		_, err := streamReply(ctx, container.Runner(), history)
		return err
	}

	fmt.Printf("%s Interactive mode (type 'exit' or Ctrl+C to quit)\n\n", logo)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			fmt.Println("\nGoodbye!")
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if exitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return nil
		}

		if err := chatTurn(ctx, container.Runner(), &history, line); err != nil {
			if ctx.Err() != nil {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

type chatStreamer interface {
	StreamChat(ctx context.Context, model string, history schema.Messages) (<-chan schema.StreamEvent, error)
}

// chatTurn sends line and records the exchange in history. A failed turn
// leaves history as it was, so the next prompt does not follow an
// unanswered user message.
func chatTurn(ctx context.Context, r chatStreamer, history *schema.Messages, line string) error {
	turn := history.Len()
	history.AddUser(line)
	reply, err := streamReply(ctx, r, *history)
	if err != nil {
		history.Truncate(turn)
		return err
	}
	history.AddAssistant(reply)
	return nil
}

// streamReply prints tokens as they arrive and returns the full reply.
func streamReply(ctx context.Context, r chatStreamer, history schema.Messages) (string, error) {
	events, err := r.StreamChat(ctx, chatModel, history)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Printf("\n%s ", logo)
	for ev := range events {
		if ev.Err != nil {
			fmt.Println()
			return sb.String(), ev.Err
		}
		fmt.Print(ev.Text)
		sb.WriteString(ev.Text)
	}
	fmt.Print("\n\n")
	return sb.String(), nil
}
