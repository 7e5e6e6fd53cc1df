// Package config handles configuration management for cquest.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	App       AppConfig       `mapstructure:"app" yaml:"app"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Assistant AssistantConfig `mapstructure:"assistant" yaml:"assistant"`
	Shell     ShellConfig     `mapstructure:"shell" yaml:"shell"`
	Service   ServiceConfig   `mapstructure:"service" yaml:"service"`
	History   HistoryConfig   `mapstructure:"history" yaml:"history"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Limits    LimitsConfig    `mapstructure:"limits" yaml:"limits"`
}

// AppConfig names the application and where its data lives.
type AppConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"` // defaults to <user config dir>/<name>
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	ConnectLimit   int      `mapstructure:"connect_limit" yaml:"connect_limit"`     // new WebSocket connections per IP and minute, 0 = unlimited
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"` // browser origins accepted besides loopback
}

// AssistantConfig holds assistant CLI configuration.
type AssistantConfig struct {
	Command        string   `mapstructure:"command" yaml:"command"`
	PermissionMode string   `mapstructure:"permission_mode" yaml:"permission_mode"`
	AllowedTools   []string `mapstructure:"allowed_tools" yaml:"allowed_tools"`
	ExtraArgs      []string `mapstructure:"extra_args" yaml:"extra_args"`
}

// ShellConfig configures one-shot shell jobs.
type ShellConfig struct {
	Program        string `mapstructure:"program" yaml:"program"`
	Flag           string `mapstructure:"flag" yaml:"flag"`
	PollIntervalMS int    `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
}

// PollInterval returns the poll interval as a duration.
func (c ShellConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// ServiceConfig configures long-running services.
type ServiceConfig struct {
	Program        string `mapstructure:"program" yaml:"program"`
	Flag           string `mapstructure:"flag" yaml:"flag"`
	PollIntervalMS int    `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
}

// PollInterval returns the poll interval as a duration.
func (c ServiceConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// HistoryConfig configures the process history database.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"` // defaults to <data_dir>/history.db
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"` // optional, rotated copy of the log
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// LimitsConfig holds various limits.
type LimitsConfig struct {
	MaxStderrKB    int `mapstructure:"max_stderr_kb" yaml:"max_stderr_kb"`
	EventBufferLen int `mapstructure:"event_buffer" yaml:"event_buffer"`
}

// Load loads configuration from files and environment.
func Load(configPath string) (*Config, error) {
	return load(viper.New(), configPath)
}

// LoadWithViper is like Load but also returns the viper instance so the
// caller can watch the config file for changes.
func LoadWithViper(configPath string) (*Config, *viper.Viper, error) {
	v := viper.New()
	cfg, err := load(v, configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func load(v *viper.Viper, configPath string) (*Config, error) {
	// Set config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.cquest")
		v.AddConfigPath("/etc/cquest")
	}

	v.SetEnvPrefix("CQUEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional - not an error if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := postProcess(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	d := Defaults()

	v.SetDefault("app.name", d.App.Name)
	v.SetDefault("app.data_dir", d.App.DataDir)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.connect_limit", d.Server.ConnectLimit)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)

	v.SetDefault("assistant.command", d.Assistant.Command)
	v.SetDefault("assistant.permission_mode", d.Assistant.PermissionMode)
	v.SetDefault("assistant.allowed_tools", d.Assistant.AllowedTools)
	v.SetDefault("assistant.extra_args", d.Assistant.ExtraArgs)

	v.SetDefault("shell.program", d.Shell.Program)
	v.SetDefault("shell.flag", d.Shell.Flag)
	v.SetDefault("shell.poll_interval_ms", d.Shell.PollIntervalMS)

	v.SetDefault("service.program", d.Service.Program)
	v.SetDefault("service.flag", d.Service.Flag)
	v.SetDefault("service.poll_interval_ms", d.Service.PollIntervalMS)

	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)

	v.SetDefault("limits.max_stderr_kb", d.Limits.MaxStderrKB)
	v.SetDefault("limits.event_buffer", d.Limits.EventBufferLen)
}

// postProcess fills in paths derived from other settings.
func postProcess(cfg *Config) error {
	if cfg.App.DataDir == "" && cfg.App.Name != "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("failed to resolve user config directory: %w", err)
		}
		cfg.App.DataDir = filepath.Join(base, cfg.App.Name)
	}
	if cfg.History.Path == "" && cfg.App.DataDir != "" {
		cfg.History.Path = filepath.Join(cfg.App.DataDir, "history.db")
	}
	return nil
}

// GetConfigDir returns the user config directory for cquest.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".cquest"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
