package methods

import (
	"context"
	"encoding/json"

	"github.com/brianly1003/cquest/internal/rpc/handler"
	"github.com/brianly1003/cquest/internal/rpc/message"
	"github.com/brianly1003/cquest/internal/shell"
)

// ShellRunner runs cancellable one-shot commands.
type ShellRunner interface {
	Run(ctx context.Context, processID, command, workDir string) (*shell.Result, error)
	Kill(processID string) bool
}

// ShellService exposes shell jobs over JSON-RPC.
type ShellService struct {
	runner ShellRunner
}

// NewShellService creates a new shell service.
func NewShellService(runner ShellRunner) *ShellService {
	return &ShellService{runner: runner}
}

// RegisterMethods registers all shell methods.
func (s *ShellService) RegisterMethods(r *handler.Registry) {
	r.RegisterWithMeta("shell/run", s.Run, handler.MethodMeta{
		Summary:     "Run a shell command",
		Description: "Runs the command through the shell and answers with its captured output once it exits or is killed.",
		Params: []handler.OpenRPCParam{
			{Name: "process_id", Required: true, Description: "Caller-chosen id used by shell/kill", Schema: handler.StringSchema},
			{Name: "command", Required: true, Schema: handler.StringSchema},
			{Name: "working_directory", Schema: handler.StringSchema},
		},
		Result: &handler.OpenRPCResult{Name: "ShellResult", Schema: handler.RefSchema("ShellResult")},
		Errors: []string{"SpawnFailure"},
	})

	r.RegisterWithMeta("shell/kill", s.Kill, handler.MethodMeta{
		Summary:     "Kill a running shell command",
		Description: "Asks the job to stop. Always succeeds, also for unknown ids.",
		Params: []handler.OpenRPCParam{
			{Name: "process_id", Required: true, Schema: handler.StringSchema},
		},
		Result: &handler.OpenRPCResult{Name: "result", Schema: handler.ObjectSchema},
	})
}

type runParams struct {
	ProcessID        string `json:"process_id"`
	Command          string `json:"command"`
	WorkingDirectory string `json:"working_directory"`
}

// Run runs a command and waits for its result.
func (s *ShellService) Run(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p runParams
	if rpcErr := handler.DecodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := handler.Require("process_id", p.ProcessID); rpcErr != nil {
		return nil, rpcErr
	}

	result, err := s.runner.Run(ctx, p.ProcessID, p.Command, p.WorkingDirectory)
	if err != nil {
		return nil, message.FromError(err)
	}
	return result, nil
}

// Kill requests a job to stop.
func (s *ShellService) Kill(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p struct {
		ProcessID string `json:"process_id"`
	}
	if rpcErr := handler.DecodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := handler.Require("process_id", p.ProcessID); rpcErr != nil {
		return nil, rpcErr
	}

	return map[string]bool{"success": s.runner.Kill(p.ProcessID)}, nil
}
