package claude

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianly1003/cquest/internal/domain"
)

func strPtr(s string) *string { return &s }

func fixedFlags() []string {
	return []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
		"--permission-mode", "bypassPermissions",
		"--settings", `{"permissions":{"allow":["Bash(*)","Read(*)","Write(*)","Edit(*)","WebFetch(*)"],"deny":[]}}`,
	}
}

func TestBuildInvocation_FreshSession(t *testing.T) {
	s := NewSession(Config{}, nil)
	inv := s.buildInvocation(&TurnRequest{ConversationID: "c1", Message: "hello"})

	want := append(fixedFlags(), "--", "hello")
	assert.Equal(t, want, inv.args)
	assert.Nil(t, inv.mcp)
	assert.Empty(t, inv.env)
}

func TestBuildInvocation_SessionModes(t *testing.T) {
	s := NewSession(Config{}, nil)

	resume := s.buildInvocation(&TurnRequest{ConversationID: "c", Message: "m", SessionID: "sid-1", SystemPrompt: "be brief"})
	assert.Equal(t, []string{"--resume", "sid-1", "--system-prompt", "be brief"}, resume.args[:4])

	cont := s.buildInvocation(&TurnRequest{ConversationID: "c", Message: "m", Mode: SessionModeContinue})
	assert.Equal(t, "--continue", cont.args[0])
	assert.NotContains(t, cont.args, "--resume")
}

func TestBuildInvocation_MessageIsNeverAFlag(t *testing.T) {
	s := NewSession(Config{}, nil)
	inv := s.buildInvocation(&TurnRequest{ConversationID: "c", Message: "--help"})

	n := len(inv.args)
	assert.Equal(t, []string{"--", "--help"}, inv.args[n-2:])
}

func TestBuildInvocation_MCPDocument(t *testing.T) {
	s := NewSession(Config{}, nil)
	dir := t.TempDir()
	inv := s.buildInvocation(&TurnRequest{
		ConversationID:   "conv-9",
		Message:          "m",
		WorkingDirectory: dir,
		Integrations: []Integration{
			{ID: "x", Type: IntegrationMCP, ServerCommand: strPtr("foo"), ServerArgs: []string{"a"}},
		},
	})

	require.NotNil(t, inv.mcp)
	data, err := json.Marshal(inv.mcp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mcpServers":{"x":{"command":"foo","args":["a"]}}}`, string(data))

	wantPath := filepath.Join(dir, ".claude-quest-mcp-conv-9.json")
	assert.Equal(t, wantPath, inv.mcpConfigPath)
	assert.Equal(t, []string{"--mcp-config", wantPath}, inv.args[:2])
}

func TestBuildInvocation_IntegrationPartitioning(t *testing.T) {
	s := NewSession(Config{AppName: "quest"}, nil)
	inv := s.buildInvocation(&TurnRequest{
		ConversationID: "c",
		Message:        "m",
		Integrations: []Integration{
			{ID: "no-args", Type: IntegrationMCP, ServerCommand: strPtr("foo")},
			{ID: "no-cmd", Type: IntegrationMCP, ServerArgs: []string{"a"}},
			{ID: "empty-key", Type: IntegrationAPIKey, EnvVariable: strPtr("EMPTY"), APIKey: strPtr("")},
			{ID: "no-var", Type: IntegrationAPIKey, APIKey: strPtr("secret")},
		},
	})
	assert.Nil(t, inv.mcp, "no integration qualified")
	assert.Empty(t, inv.env)

	inv = s.buildInvocation(&TurnRequest{
		ConversationID: "c",
		Message:        "m",
		Integrations: []Integration{
			{ID: "gh", Type: IntegrationAPIKey, EnvVariable: strPtr("GITHUB_TOKEN"), APIKey: strPtr("t0k")},
		},
	})
	assert.Equal(t, []string{"GITHUB_TOKEN=t0k"}, inv.env)
	require.NotNil(t, inv.mcp, "an api key still forces an (empty) config document")
	assert.Empty(t, inv.mcp.MCPServers)
	assert.Equal(t, filepath.Join(os.TempDir(), ".quest-mcp-c.json"), inv.mcpConfigPath)

	data, err := json.Marshal(inv.mcp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mcpServers":{}}`, string(data))
	assert.NotContains(t, string(data), "t0k")
}

func TestBuildInvocation_CustomConfig(t *testing.T) {
	s := NewSession(Config{
		PermissionMode: "acceptEdits",
		AllowedTools:   []string{"Read(*)"},
		ExtraArgs:      []string{"--model", "sonnet"},
	}, nil)
	inv := s.buildInvocation(&TurnRequest{ConversationID: "c", Message: "m"})

	assert.Contains(t, inv.args, "acceptEdits")
	assert.Contains(t, inv.args, `{"permissions":{"allow":["Read(*)"],"deny":[]}}`)
	n := len(inv.args)
	assert.Equal(t, []string{"--model", "sonnet", "--", "m"}, inv.args[n-4:])
}

func TestTurnRequest_Validate(t *testing.T) {
	tests := []struct {
		name  string
		req   TurnRequest
		check func(t *testing.T, err error)
	}{
		{
			name: "valid",
			req:  TurnRequest{ConversationID: "c", Message: "m"},
			check: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name: "empty message",
			req:  TurnRequest{ConversationID: "c"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrInvalidPrompt)
			},
		},
		{
			name: "resume and continue together",
			req:  TurnRequest{ConversationID: "c", Message: "m", SessionID: "s", Mode: SessionModeContinue},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrConflictingSessionMode)
			},
		},
		{
			name: "path in conversation id",
			req:  TurnRequest{ConversationID: "../x", Message: "m"},
			check: func(t *testing.T, err error) {
				var verr *domain.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "conversation_id", verr.Field)
			},
		},
		{
			name: "unknown mode",
			req:  TurnRequest{ConversationID: "c", Message: "m", Mode: "later"},
			check: func(t *testing.T, err error) {
				var verr *domain.ValidationError
				assert.ErrorAs(t, err, &verr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, tt.req.Validate())
		})
	}
}
