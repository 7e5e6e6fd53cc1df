package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianly1003/cquest/internal/config"
	"github.com/brianly1003/cquest/internal/rpc/message"
	"github.com/brianly1003/cquest/internal/rpc/transport"
	"github.com/brianly1003/cquest/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.App.DataDir = dir
	cfg.History.Path = filepath.Join(dir, "history.db")
	cfg.Assistant.Command = filepath.Join(dir, "no-such-claude")
	return &cfg
}

// serve runs the given request lines through a stdio transport and returns
// the responses keyed by id.
func serve(t *testing.T, a *App, lines ...string) map[string]message.Response {
	t.Helper()
	var out bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.ServeTransport(ctx, transport.NewStdioTransportWithIO(in, &out)))

	responses := make(map[string]message.Response)
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var resp message.Response
		require.NoError(t, json.Unmarshal([]byte(line), &resp), line)
		if resp.ID != nil {
			responses[resp.ID.String()] = resp
		}
	}
	return responses
}

func TestNew_RegistersMethods(t *testing.T) {
	a, err := New(testConfig(t), "1.0.0")
	require.NoError(t, err)
	defer a.Close()

	methods := a.Registry().Methods()
	for _, name := range []string{
		"assistant/send", "assistant/installed",
		"shell/run", "shell/kill",
		"service/start", "service/stop", "service/list",
		"fs/list", "fs/home",
		"data/load", "data/save",
		"history/list",
		"events/subscribe", "events/unsubscribe", "events/subscriptions", "events/subscribeAll",
		"status/get", "rpc.discover",
	} {
		assert.Contains(t, methods, name)
	}

	spec := a.OpenRPC()
	assert.Equal(t, "1.0.0", spec.Info.Version)
	assert.Len(t, spec.Methods, len(methods))
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(nil, "dev")
	assert.Error(t, err)
}

func TestServeTransport_EndToEnd(t *testing.T) {
	a, err := New(testConfig(t), "1.0.0")
	require.NoError(t, err)

	responses := serve(t, a,
		`{"jsonrpc":"2.0","id":1,"method":"status/get"}`,
		`{"jsonrpc":"2.0","id":2,"method":"assistant/installed"}`,
		`{"jsonrpc":"2.0","id":3,"method":"data/save","params":{"data":"{\"level\":3}"}}`,
		`{"jsonrpc":"2.0","id":4,"method":"service/list"}`,
		`{"jsonrpc":"2.0","id":5,"method":"assistant/send","params":{"conversation_id":"c1","message":""}}`,
	)
	require.Len(t, responses, 5)

	var status struct {
		Version          string `json:"version"`
		ConnectedClients int    `json:"connected_clients"`
	}
	require.Nil(t, responses["1"].Error)
	require.NoError(t, json.Unmarshal(responses["1"].Result, &status))
	assert.Equal(t, "1.0.0", status.Version)
	assert.Equal(t, 1, status.ConnectedClients)

	assert.JSONEq(t, `{"installed":false}`, string(responses["2"].Result))
	assert.JSONEq(t, `{"success":true}`, string(responses["3"].Result))
	assert.JSONEq(t, `{"services":[]}`, string(responses["4"].Result))

	require.NotNil(t, responses["5"].Error)
	assert.Equal(t, message.InvalidParams, responses["5"].Error.Code)
	assert.Equal(t, "invalid prompt: message cannot be empty", responses["5"].Error.Message)

	data, err := os.ReadFile(filepath.Join(a.cfg.App.DataDir, "data.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"level":3}`, string(data))
}

func TestServeTransport_ShellJobIsRecorded(t *testing.T) {
	testutil.RequireUnix(t)
	cfg := testConfig(t)

	a, err := New(cfg, "1.0.0")
	require.NoError(t, err)
	responses := serve(t, a, `{"jsonrpc":"2.0","id":1,"method":"shell/run","params":{"process_id":"p1","command":"echo hi"}}`)
	assert.JSONEq(t, `{"stdout":"hi\n","stderr":"","exit_code":0}`, string(responses["1"].Result))

	// A second app over the same database sees the finished run.
	b, err := New(cfg, "1.0.0")
	require.NoError(t, err)
	responses = serve(t, b, `{"jsonrpc":"2.0","id":1,"method":"history/list","params":{"kind":"shell"}}`)

	var res struct {
		Records []struct {
			EntityID string `json:"entity_id"`
			Command  string `json:"command"`
			Outcome  string `json:"outcome"`
			ExitCode *int   `json:"exit_code"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(responses["1"].Result, &res))
	require.Len(t, res.Records, 1)
	assert.Equal(t, "p1", res.Records[0].EntityID)
	assert.Equal(t, "echo hi", res.Records[0].Command)
	assert.Equal(t, "completed", res.Records[0].Outcome)
	require.NotNil(t, res.Records[0].ExitCode)
	assert.Equal(t, 0, *res.Records[0].ExitCode)
}

func TestNew_UnusableHistoryIsDisabled(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(cfg.App.DataDir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	cfg.History.Path = filepath.Join(blocker, "history.db")

	a, err := New(cfg, "1.0.0")
	require.NoError(t, err)
	assert.Nil(t, a.history)

	responses := serve(t, a, `{"jsonrpc":"2.0","id":1,"method":"history/list"}`)
	assert.JSONEq(t, `{"records":[]}`, string(responses["1"].Result))
}

func TestAssistantConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Assistant.AllowedTools = nil
	cfg.Limits.MaxStderrKB = 8

	c := assistantConfig(&cfg)
	assert.Nil(t, c.AllowedTools, "empty list keeps the session defaults")
	assert.Equal(t, 8*1024, c.MaxStderrBytes)
	assert.Equal(t, config.DefaultAppName, c.AppName)

	cfg.Assistant.AllowedTools = []string{"Read(*)"}
	assert.Equal(t, []string{"Read(*)"}, assistantConfig(&cfg).AllowedTools)
}

func TestSetLogLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	assert.True(t, SetLogLevel("debug"))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	assert.False(t, SetLogLevel("DEBUG"), "unchanged level")
	assert.True(t, SetLogLevel("nonsense"))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestApplyConfig(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	a, err := New(testConfig(t), "1.0.0")
	require.NoError(t, err)
	defer a.Close()

	next := testConfig(t)
	next.Logging.Level = "warn"
	a.ApplyConfig(next)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestConfigureLogging_WritesRotatedFile(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	path := filepath.Join(t.TempDir(), "logs", "cquest.log")
	var console bytes.Buffer
	ConfigureLogging(config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
	}, false, &console)

	log.Info().Str("k", "v").Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, console.String(), `"k":"v"`)
}
