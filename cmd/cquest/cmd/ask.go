package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/brianly1003/cquest/internal/adapters/claude"
	"github.com/brianly1003/cquest/internal/app"
	"github.com/brianly1003/cquest/internal/domain/events"
	"github.com/brianly1003/cquest/internal/hub"
)

// completeWait bounds how long ask waits for the hub to deliver the final
// event after the turn has returned.
const completeWait = 2 * time.Second

var (
	askConversation string
	askCwd          string
	askSystem       string
	askSession      string
	askContinue     bool
	askJSON         bool
)

// askCmd runs one assistant turn from the terminal.
var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Run one assistant turn and stream the reply",
	Long: `Send a message to the Claude CLI and stream the reply to stdout.
Thinking and tool-use narration are written to stderr.

Example:
  cquest ask "summarize the README"
  cquest ask --cwd ~/src/app --continue "and now the tests"
  cquest ask --session 0f6c... "pick up where we left off"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askConversation, "conversation", "", "conversation id (default: random)")
	askCmd.Flags().StringVar(&askCwd, "cwd", "", "working directory for the assistant")
	askCmd.Flags().StringVar(&askSystem, "system", "", "system prompt to append")
	askCmd.Flags().StringVar(&askSession, "session", "", "resume this assistant session id")
	askCmd.Flags().BoolVar(&askContinue, "continue", false, "continue the most recent conversation in the working directory")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the final result as JSON instead of streaming")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	application, err := app.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer application.Close()

	if err := application.Start(); err != nil {
		return err
	}

	conversationID := askConversation
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	req := claude.TurnRequest{
		ConversationID:   conversationID,
		Message:          strings.Join(args, " "),
		SystemPrompt:     askSystem,
		WorkingDirectory: askCwd,
		SessionID:        askSession,
	}
	if askContinue {
		req.Mode = claude.SessionModeContinue
	}

	complete := make(chan struct{})
	if !askJSON {
		application.Hub().Subscribe(newTurnPrinter(conversationID, cmd.OutOrStdout(), cmd.ErrOrStderr(), complete))
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := application.Assistant().RunTurn(ctx, req)
	if err != nil {
		return err
	}

	if askJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	select {
	case <-complete:
	case <-time.After(completeWait):
	}
	if result.SessionID != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", result.SessionID)
	}
	return nil
}

// newTurnPrinter writes one conversation's events as they arrive and closes
// complete on the terminal event.
func newTurnPrinter(conversationID string, stdout, stderr io.Writer, complete chan struct{}) *hub.FuncSubscriber {
	topic := events.AssistantTopic(conversationID)
	return hub.NewFuncSubscriber("ask-"+conversationID, func(event events.Event) {
		if event.Topic() != topic {
			return
		}
		base, ok := event.(*events.BaseEvent)
		if !ok {
			return
		}
		p, ok := base.Payload.(events.AssistantResponsePayload)
		if !ok {
			return
		}
		switch {
		case p.IsComplete:
			fmt.Fprintln(stdout)
			close(complete)
		case p.Thinking != nil:
			fmt.Fprintln(stderr, *p.Thinking)
		default:
			fmt.Fprint(stdout, p.Content)
		}
	})
}
