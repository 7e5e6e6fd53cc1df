package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/brianly1003/cquest/internal/pathutil"
)

var (
	validLogLevels       = []string{"trace", "debug", "info", "warn", "error"}
	validLogFormats      = []string{"console", "json"}
	validPermissionModes = []string{"default", "acceptEdits", "bypassPermissions", "plan"}
)

// Validate validates the configuration.
func Validate(cfg *Config) error {
	if err := validateApp(&cfg.App); err != nil {
		return err
	}
	if err := validateServer(&cfg.Server); err != nil {
		return err
	}
	if err := validateAssistant(&cfg.Assistant); err != nil {
		return err
	}
	if err := validateShell("shell", cfg.Shell.Program, cfg.Shell.PollIntervalMS); err != nil {
		return err
	}
	if err := validateShell("service", cfg.Service.Program, cfg.Service.PollIntervalMS); err != nil {
		return err
	}
	if err := validateLogging(&cfg.Logging); err != nil {
		return err
	}
	if err := validateLimits(&cfg.Limits); err != nil {
		return err
	}
	return nil
}

func validateApp(cfg *AppConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("app.name cannot be empty")
	}
	if !pathutil.IsSafeComponent(cfg.Name) {
		return fmt.Errorf("app.name must be a plain file name: %s", cfg.Name)
	}
	if cfg.DataDir != "" {
		if info, err := os.Stat(cfg.DataDir); err == nil && !info.IsDir() {
			return fmt.Errorf("app.data_dir is not a directory: %s", cfg.DataDir)
		}
	}
	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if cfg.Host == "" {
		return fmt.Errorf("server.host cannot be empty")
	}
	if cfg.ConnectLimit < 0 {
		return fmt.Errorf("server.connect_limit cannot be negative")
	}
	for _, origin := range cfg.AllowedOrigins {
		if strings.HasPrefix(origin, "*.") {
			continue
		}
		if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("server.allowed_origins: %q is not an origin or *.domain pattern", origin)
		}
	}
	return nil
}

func validateAssistant(cfg *AssistantConfig) error {
	if cfg.Command == "" {
		return fmt.Errorf("assistant.command cannot be empty")
	}
	if !oneOf(cfg.PermissionMode, validPermissionModes) {
		return fmt.Errorf("assistant.permission_mode must be one of: %s", strings.Join(validPermissionModes, ", "))
	}
	for _, arg := range cfg.ExtraArgs {
		if arg == "--" {
			return fmt.Errorf("assistant.extra_args cannot contain \"--\"")
		}
	}
	return nil
}

func validateShell(section, program string, pollMS int) error {
	if program == "" {
		return fmt.Errorf("%s.program cannot be empty", section)
	}
	if pollMS < 1 {
		return fmt.Errorf("%s.poll_interval_ms must be at least 1", section)
	}
	if pollMS > 10000 {
		return fmt.Errorf("%s.poll_interval_ms cannot exceed 10000ms", section)
	}
	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	if !oneOf(strings.ToLower(cfg.Level), validLogLevels) {
		return fmt.Errorf("logging.level must be one of: %s", strings.Join(validLogLevels, ", "))
	}
	if !oneOf(strings.ToLower(cfg.Format), validLogFormats) {
		return fmt.Errorf("logging.format must be one of: %s", strings.Join(validLogFormats, ", "))
	}
	if cfg.File != "" && (cfg.MaxSizeMB < 1 || cfg.MaxBackups < 0) {
		return fmt.Errorf("logging.max_size_mb must be at least 1 and logging.max_backups cannot be negative")
	}
	return nil
}

func validateLimits(cfg *LimitsConfig) error {
	if cfg.MaxStderrKB < 1 {
		return fmt.Errorf("limits.max_stderr_kb must be at least 1")
	}
	if cfg.MaxStderrKB > 10240 { // 10MB max
		return fmt.Errorf("limits.max_stderr_kb cannot exceed 10240 (10MB)")
	}
	if cfg.EventBufferLen < 1 {
		return fmt.Errorf("limits.event_buffer must be at least 1")
	}
	return nil
}

func oneOf(value string, options []string) bool {
	for _, o := range options {
		if value == o {
			return true
		}
	}
	return false
}
