// Package claude runs single turns of the Claude CLI and republishes its
// streaming output as assistant_response events.
package claude

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/cquest/internal/domain"
	"github.com/brianly1003/cquest/internal/domain/events"
	"github.com/brianly1003/cquest/internal/domain/ports"
	"github.com/brianly1003/cquest/internal/process"
)

// DefaultAllowedTools are pre-granted so the CLI never asks for confirmation.
var DefaultAllowedTools = []string{"Bash(*)", "Read(*)", "Write(*)", "Edit(*)", "WebFetch(*)"}

// Config configures how the CLI is invoked.
type Config struct {
	Command        string
	AppName        string
	PermissionMode string
	AllowedTools   []string
	ExtraArgs      []string
	MaxStderrBytes int
}

// DefaultConfig returns the stock invocation settings.
func DefaultConfig() Config {
	return Config{
		Command:        "claude",
		AppName:        "claude-quest",
		PermissionMode: "bypassPermissions",
		AllowedTools:   DefaultAllowedTools,
		MaxStderrBytes: 64 * 1024,
	}
}

// TurnResult is the outcome of a successful turn.
type TurnResult struct {
	Response   string `json:"response"`
	SessionID  string `json:"session_id,omitempty"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

// Session runs assistant turns. Turns are independent and may run
// concurrently; each one blocks until its child exits.
type Session struct {
	cfg       Config
	publisher ports.EventPublisher
}

// NewSession creates a Session publishing events to publisher.
func NewSession(cfg Config, publisher ports.EventPublisher) *Session {
	def := DefaultConfig()
	if cfg.Command == "" {
		cfg.Command = def.Command
	}
	if cfg.AppName == "" {
		cfg.AppName = def.AppName
	}
	if cfg.PermissionMode == "" {
		cfg.PermissionMode = def.PermissionMode
	}
	if cfg.AllowedTools == nil {
		cfg.AllowedTools = def.AllowedTools
	}
	if cfg.MaxStderrBytes <= 0 {
		cfg.MaxStderrBytes = def.MaxStderrBytes
	}
	return &Session{cfg: cfg, publisher: publisher}
}

func (s *Session) publish(event events.Event) {
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
}

// Installed reports whether the CLI can be found on PATH.
func (s *Session) Installed() bool {
	_, err := exec.LookPath(s.cfg.Command)
	return err == nil
}

// Version runs the CLI with --version.
func (s *Session) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, s.cfg.Command, "--version").Output()
	if err != nil {
		return "", domain.NewSpawnError("claude", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// RunTurn sends one message and blocks until the CLI exits. Response
// events are published in the order the CLI produced them. Cancelling ctx
// kills the child and returns ctx.Err().
func (s *Session) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv := s.buildInvocation(&req)
	if inv.mcp != nil {
		if err := writeMCPConfig(inv.mcpConfigPath, inv.mcp); err != nil {
			return nil, err
		}
		defer func() {
			if err := os.Remove(inv.mcpConfigPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Warn().Err(err).Str("path", inv.mcpConfigPath).Msg("failed to remove MCP config")
			}
		}()
	}

	cmd := exec.Command(s.cfg.Command, inv.args...)
	cmd.Dir = req.WorkingDirectory
	cmd.Env = append(os.Environ(), inv.env...)

	log.Debug().
		Str("command", s.cfg.Command).
		Str("conversation_id", req.ConversationID).
		Str("work_dir", req.WorkingDirectory).
		Bool("resume", req.SessionID != "").
		Bool("mcp_config", inv.mcp != nil).
		Msg("spawning claude process")

	h, stdout, stderr, err := process.StartStreaming(cmd, process.Options{NewGroup: true})
	if err != nil {
		return nil, domain.NewSpawnError("claude", err)
	}

	log.Info().
		Int("pid", h.PID()).
		Str("conversation_id", req.ConversationID).
		Msg("claude turn started")

	stopOnCancel := context.AfterFunc(ctx, func() {
		log.Info().Str("conversation_id", req.ConversationID).Msg("claude turn cancelled")
		_ = h.Stop()
	})
	defer stopOnCancel()

	stderrDone := make(chan string, 1)
	go func() {
		stderrDone <- drainLimited(stderr, s.cfg.MaxStderrBytes)
	}()

	dec := newFrameDecoder(req.ConversationID, s.publish)
	readLines(stdout, func(line string) {
		if !dec.decodeLine(line) {
			log.Debug().Str("line", truncate(line, 100)).Msg("skipping non-frame claude output")
		}
	})

	_ = h.Wait()
	stderrText := <-stderrDone

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return s.resolve(req.ConversationID, h, dec, stderrText)
}

func (s *Session) resolve(conversationID string, h *process.Handle, dec *frameDecoder, stderrText string) (*TurnResult, error) {
	st := &dec.state

	if !h.Success() {
		code, _ := h.ExitCode()
		var msg string
		switch {
		case st.hasError:
			msg = st.pendingError
		case strings.TrimSpace(stderrText) != "":
			msg = "claude error: " + strings.TrimRight(stderrText, "\n")
		default:
			msg = "claude exited with status: " + h.Status()
		}
		log.Warn().
			Str("conversation_id", conversationID).
			Int("exit_code", code).
			Str("error", truncate(msg, 200)).
			Msg("claude turn failed")
		return nil, domain.NewUpstreamError(msg, code)
	}

	if st.hasError {
		log.Warn().
			Str("conversation_id", conversationID).
			Str("error", truncate(st.pendingError, 200)).
			Msg("claude reported an error despite exiting cleanly")
		return nil, domain.NewUpstreamError(st.pendingError, -1)
	}

	s.publish(events.NewAssistantCompleteEvent(conversationID, st.tokensUsed))

	log.Info().
		Str("conversation_id", conversationID).
		Str("session_id", st.sessionID).
		Int("tokens_used", st.tokensUsed).
		Msg("claude turn completed")

	return &TurnResult{
		Response:   strings.TrimSpace(st.response.String()),
		SessionID:  st.sessionID,
		TokensUsed: st.tokensUsed,
	}, nil
}

// readLines calls fn for every line of r without a length limit, then
// drains whatever is left so the writer never blocks.
func readLines(r io.Reader, fn func(line string)) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			fn(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn().Err(err).Msg("error reading claude output")
				_, _ = io.Copy(io.Discard, r)
			}
			return
		}
	}
}

// drainLimited reads r to EOF, keeping at most limit bytes of complete lines.
func drainLimited(r io.Reader, limit int) string {
	var b strings.Builder
	truncated := false
	readLines(r, func(line string) {
		if b.Len()+len(line)+1 > limit {
			truncated = true
			return
		}
		b.WriteString(line)
		b.WriteByte('\n')
	})
	if truncated {
		b.WriteString("[stderr truncated]\n")
	}
	return b.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
