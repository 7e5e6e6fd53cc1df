// Package methods provides JSON-RPC method implementations.
package methods

import (
	"context"
	"encoding/json"

	"github.com/brianly1003/cquest/internal/adapters/claude"
	"github.com/brianly1003/cquest/internal/rpc/handler"
	"github.com/brianly1003/cquest/internal/rpc/message"
)

// AssistantRunner runs assistant turns.
type AssistantRunner interface {
	RunTurn(ctx context.Context, req claude.TurnRequest) (*claude.TurnResult, error)
	Installed() bool
}

// AssistantService exposes the assistant over JSON-RPC.
type AssistantService struct {
	runner AssistantRunner
}

// NewAssistantService creates a new assistant service.
func NewAssistantService(runner AssistantRunner) *AssistantService {
	return &AssistantService{runner: runner}
}

// RegisterMethods registers all assistant methods.
func (s *AssistantService) RegisterMethods(r *handler.Registry) {
	r.RegisterWithMeta("assistant/send", s.Send, handler.MethodMeta{
		Summary: "Send a message to the assistant",
		Description: "Runs one assistant turn and returns once the CLI exits. Progress arrives as " +
			"event/assistant_response notifications for the conversation.",
		Params: []handler.OpenRPCParam{
			{Name: "conversation_id", Required: true, Schema: handler.StringSchema},
			{Name: "message", Required: true, Schema: handler.StringSchema},
			{Name: "system_prompt", Schema: handler.StringSchema},
			{Name: "working_directory", Schema: handler.StringSchema},
			{Name: "integrations", Schema: map[string]interface{}{"type": "array", "items": handler.RefSchema("Integration")}},
			{Name: "session_id", Description: "Resume this CLI session", Schema: handler.StringSchema},
			{Name: "continue", Description: "Continue the most recent session; excludes session_id", Schema: handler.BoolSchema},
		},
		Result: &handler.OpenRPCResult{Name: "TurnResult", Schema: handler.RefSchema("TurnResult")},
		Errors: []string{"UpstreamFailure", "SpawnFailure"},
	})

	r.RegisterWithMeta("assistant/installed", s.IsInstalled, handler.MethodMeta{
		Summary: "Check whether the assistant CLI is installed",
		Result: &handler.OpenRPCResult{Name: "result", Schema: map[string]interface{}{
			"type": "object", "properties": map[string]interface{}{"installed": handler.BoolSchema},
		}},
	})
}

type sendParams struct {
	ConversationID   string               `json:"conversation_id"`
	Message          string               `json:"message"`
	SystemPrompt     string               `json:"system_prompt"`
	WorkingDirectory string               `json:"working_directory"`
	Integrations     []claude.Integration `json:"integrations"`
	SessionID        string               `json:"session_id"`
	Continue         bool                 `json:"continue"`
}

// Send runs one turn.
func (s *AssistantService) Send(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p sendParams
	if rpcErr := handler.DecodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}

	req := claude.TurnRequest{
		ConversationID:   p.ConversationID,
		Message:          p.Message,
		SystemPrompt:     p.SystemPrompt,
		WorkingDirectory: p.WorkingDirectory,
		Integrations:     p.Integrations,
		SessionID:        p.SessionID,
		Mode:             claude.SessionModeNew,
	}
	if p.Continue {
		req.Mode = claude.SessionModeContinue
	}

	result, err := s.runner.RunTurn(ctx, req)
	if err != nil {
		return nil, message.FromError(err)
	}
	return result, nil
}

// IsInstalled reports whether the CLI is on PATH.
func (s *AssistantService) IsInstalled(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	return map[string]bool{"installed": s.runner.Installed()}, nil
}
