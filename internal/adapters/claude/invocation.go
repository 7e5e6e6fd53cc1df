package claude

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brianly1003/cquest/internal/domain"
	"github.com/brianly1003/cquest/internal/pathutil"
)

// SessionMode selects which conversation the CLI attaches to.
type SessionMode string

const (
	// SessionModeNew starts a new conversation, or resumes SessionID when set.
	SessionModeNew SessionMode = "new"
	// SessionModeContinue continues the most recent conversation in the
	// working directory. It cannot be combined with a SessionID.
	SessionModeContinue SessionMode = "continue"
)

// IntegrationType is the kind of tool integration attached to a turn.
type IntegrationType string

const (
	IntegrationMCP    IntegrationType = "mcp"
	IntegrationAPIKey IntegrationType = "api-key"
)

// Integration is one tool integration configured by the user.
type Integration struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Type          IntegrationType `json:"type"`
	ServerCommand *string         `json:"server_command,omitempty"`
	ServerArgs    []string        `json:"server_args,omitempty"`
	EnvVariable   *string         `json:"env_variable,omitempty"`
	APIKey        *string         `json:"api_key,omitempty"`
}

// TurnRequest describes one assistant turn.
type TurnRequest struct {
	ConversationID   string
	Message          string
	SystemPrompt     string
	WorkingDirectory string
	Integrations     []Integration
	SessionID        string
	Mode             SessionMode
}

// Validate checks the request before anything is spawned.
func (r *TurnRequest) Validate() error {
	if strings.TrimSpace(r.ConversationID) == "" {
		return domain.NewValidationError("conversation_id", "required")
	}
	if !pathutil.IsSafeComponent(r.ConversationID) {
		return domain.NewValidationError("conversation_id", "must not contain path separators")
	}
	if r.Message == "" {
		return domain.ErrInvalidPrompt
	}
	switch r.Mode {
	case "", SessionModeNew:
	case SessionModeContinue:
		if r.SessionID != "" {
			return domain.ErrConflictingSessionMode
		}
	default:
		return domain.NewValidationError("mode", fmt.Sprintf("unknown session mode %q", r.Mode))
	}
	return nil
}

// mcpServer is one entry of the generated server map.
type mcpServer struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// mcpDocument is the config document passed with --mcp-config.
type mcpDocument struct {
	MCPServers map[string]mcpServer `json:"mcpServers"`
}

// invocation is everything derived from a TurnRequest before spawning.
type invocation struct {
	args []string
	env  []string

	// mcp is non-nil when a config document must be written. The args then
	// hold mcpConfigPath after --mcp-config.
	mcp           *mcpDocument
	mcpConfigPath string
}

// settingsJSON pre-grants tool permissions so the CLI never prompts.
func settingsJSON(allowedTools []string) string {
	doc := struct {
		Permissions struct {
			Allow []string `json:"allow"`
			Deny  []string `json:"deny"`
		} `json:"permissions"`
	}{}
	doc.Permissions.Allow = allowedTools
	if doc.Permissions.Allow == nil {
		doc.Permissions.Allow = []string{}
	}
	doc.Permissions.Deny = []string{}

	data, _ := json.Marshal(doc)
	return string(data)
}

// buildInvocation derives the argument vector, extra environment and MCP
// document for a turn. It has no side effects.
func (s *Session) buildInvocation(req *TurnRequest) *invocation {
	inv := &invocation{}

	servers := make(map[string]mcpServer)
	apiKeyUsed := false
	for _, in := range req.Integrations {
		switch in.Type {
		case IntegrationMCP:
			if in.ServerCommand == nil || in.ServerArgs == nil {
				continue
			}
			servers[in.ID] = mcpServer{Command: *in.ServerCommand, Args: in.ServerArgs}
		case IntegrationAPIKey:
			if in.EnvVariable == nil || in.APIKey == nil || *in.APIKey == "" {
				continue
			}
			inv.env = append(inv.env, *in.EnvVariable+"="+*in.APIKey)
			apiKeyUsed = true
		}
	}

	// An empty document still keeps machine-wide MCP servers out of the run.
	if len(servers) > 0 || apiKeyUsed {
		inv.mcp = &mcpDocument{MCPServers: servers}
		dir := req.WorkingDirectory
		if dir == "" {
			dir = os.TempDir()
		}
		inv.mcpConfigPath = filepath.Join(dir, fmt.Sprintf(".%s-mcp-%s.json", s.cfg.AppName, req.ConversationID))
	}

	if req.SessionID != "" {
		inv.args = append(inv.args, "--resume", req.SessionID)
	} else if req.Mode == SessionModeContinue {
		inv.args = append(inv.args, "--continue")
	}
	if req.SystemPrompt != "" {
		inv.args = append(inv.args, "--system-prompt", req.SystemPrompt)
	}
	if inv.mcp != nil {
		inv.args = append(inv.args, "--mcp-config", inv.mcpConfigPath)
	}

	inv.args = append(inv.args,
		"--print",
		"--output-format", "stream-json",
		"--verbose",
		"--permission-mode", s.cfg.PermissionMode,
		"--settings", settingsJSON(s.cfg.AllowedTools),
	)
	inv.args = append(inv.args, s.cfg.ExtraArgs...)

	// "--" keeps a message like "--help" from being read as a flag.
	inv.args = append(inv.args, "--", req.Message)
	return inv
}

// writeMCPConfig writes the generated document, pretty-printed.
func writeMCPConfig(path string, doc *mcpDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize MCP config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write MCP config: %w", err)
	}
	return nil
}
