package config

import (
	"github.com/brianly1003/cquest/internal/pathutil"
)

// DefaultAppName is used in generated file names and the data directory.
const DefaultAppName = "claude-quest"

// DefaultPort is the JSON-RPC WebSocket port.
const DefaultPort = 8790

// Defaults returns the built-in configuration. Derived paths are left empty
// and filled in by Load.
func Defaults() Config {
	sh := pathutil.DefaultShell()
	return Config{
		App: AppConfig{
			Name: DefaultAppName,
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           DefaultPort,
			ConnectLimit:   60,
			AllowedOrigins: []string{},
		},
		Assistant: AssistantConfig{
			Command:        "claude",
			PermissionMode: "bypassPermissions",
			AllowedTools:   []string{"Bash(*)", "Read(*)", "Write(*)", "Edit(*)", "WebFetch(*)"},
			ExtraArgs:      []string{},
		},
		Shell: ShellConfig{
			Program:        sh.Program,
			Flag:           sh.Flag,
			PollIntervalMS: 50,
		},
		Service: ServiceConfig{
			Program:        sh.Program,
			Flag:           sh.Flag,
			PollIntervalMS: 100,
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Limits: LimitsConfig{
			MaxStderrKB:    64,
			EventBufferLen: 1000,
		},
	}
}
