package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/brianly1003/cquest/internal/adapters/history"
	"github.com/brianly1003/cquest/internal/appdata"
	"github.com/brianly1003/cquest/internal/config"
	"github.com/brianly1003/cquest/internal/domain/ports"
)

var (
	doctorJSON        bool
	doctorStrict      bool
	doctorHTTPTimeout int
)

type doctorStatus string

const (
	doctorStatusOK   doctorStatus = "ok"
	doctorStatusWarn doctorStatus = "warn"
	doctorStatusFail doctorStatus = "fail"
)

type doctorCheck struct {
	ID          string                 `json:"id"`
	Status      doctorStatus           `json:"status"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Remediation string                 `json:"remediation,omitempty"`
}

type doctorSummary struct {
	Total int `json:"total"`
	OK    int `json:"ok"`
	Warn  int `json:"warn"`
	Fail  int `json:"fail"`
}

type doctorReport struct {
	Version      string        `json:"version"`
	GeneratedAt  string        `json:"generated_at"`
	Overall      doctorStatus  `json:"overall_status"`
	Summary      doctorSummary `json:"summary"`
	Checks       []doctorCheck `json:"checks"`
	SearchConfig []string      `json:"config_search_paths,omitempty"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run local diagnostics with remediation hints",
	Long: `Run read-only diagnostics against the local cquest setup and print
actionable hints.

By default the output is human-readable text.
Use --json for machine-readable output.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output machine-readable JSON")
	doctorCmd.Flags().BoolVar(&doctorStrict, "strict", false, "return non-zero on warnings")
	doctorCmd.Flags().IntVar(&doctorHTTPTimeout, "http-timeout", 2, "health endpoint timeout in seconds")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	report := collectDoctorReport()

	if doctorJSON {
		if err := printDoctorJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		printDoctorText(cmd.OutOrStdout(), report)
	}

	if report.Summary.Fail > 0 {
		return fmt.Errorf("doctor found %d failing check(s)", report.Summary.Fail)
	}
	if doctorStrict && report.Summary.Warn > 0 {
		return fmt.Errorf("doctor strict mode failed with %d warning(s)", report.Summary.Warn)
	}
	return nil
}

func collectDoctorReport() doctorReport {
	checks := make([]doctorCheck, 0, 10)

	cfg := configDefaults()
	loadedCfg, cfgCheck := checkConfigLoad(cfgFile)
	checks = append(checks, cfgCheck)
	if loadedCfg != nil {
		cfg = loadedCfg
	}

	checks = append(checks, checkConfigDirectory())
	if cfg.App.DataDir != "" {
		checks = append(checks, checkDirectoryExists(
			"app.data_dir",
			cfg.App.DataDir,
			"Data directory exists",
			"Save app data once (data/save) or create the directory manually.",
		))
		checks = append(checks, checkOptionalJSONFile(
			"app.data_file",
			appdata.NewStore(cfg.App.DataDir, nil).Path(),
			"Saved app data is valid JSON",
			"Nothing saved yet. The file appears after the first data/save.",
		))
	}
	if cfg.History.Enabled && cfg.History.Path != "" {
		checks = append(checks, checkHistoryDatabase(cfg.History.Path))
	}

	checks = append(checks, checkCommandBinary("runtime.assistant_cli", cfg.Assistant.Command, true))
	checks = append(checks, checkCommandBinary("runtime.shell", cfg.Shell.Program, true))
	if cfg.Service.Program != cfg.Shell.Program {
		checks = append(checks, checkCommandBinary("runtime.service_shell", cfg.Service.Program, true))
	}

	checks = append(checks, checkHealthEndpoint(cfg.Server.Host, cfg.Server.Port, doctorHTTPTimeout))

	summary := summarizeDoctorChecks(checks)
	return doctorReport{
		Version:      "1.0",
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
		Overall:      overallStatus(summary),
		Summary:      summary,
		Checks:       checks,
		SearchConfig: configSearchPaths(cfgFile),
	}
}

func checkConfigLoad(path string) (*config.Config, doctorCheck) {
	cfg, err := config.Load(path)
	searchPaths := configSearchPaths(path)
	if err != nil {
		return nil, doctorCheck{
			ID:      "config.load",
			Status:  doctorStatusFail,
			Message: fmt.Sprintf("Failed to load config: %v", err),
			Details: map[string]interface{}{
				"config_path":  strings.TrimSpace(path),
				"search_paths": searchPaths,
			},
			Remediation: "Fix the config file syntax, or run `cquest config init --force` to regenerate defaults.",
		}
	}

	source := findFirstExistingPath(searchPaths)
	msg := "Configuration loaded using built-in defaults and environment overrides"
	if source != "" {
		msg = "Configuration loaded successfully"
	}

	return cfg, doctorCheck{
		ID:      "config.load",
		Status:  doctorStatusOK,
		Message: msg,
		Details: map[string]interface{}{
			"loaded_from":  source,
			"search_paths": searchPaths,
		},
	}
}

func checkConfigDirectory() doctorCheck {
	dir, err := config.GetConfigDir()
	if err != nil {
		return doctorCheck{
			ID:          "config.directory",
			Status:      doctorStatusFail,
			Message:     fmt.Sprintf("Failed to resolve config directory: %v", err),
			Remediation: "Verify your HOME environment and filesystem permissions.",
		}
	}

	check := checkDirectoryExists(
		"config.directory",
		dir,
		"Config directory is available",
		"Run `cquest config init` to create initial local configuration.",
	)
	if check.Status == doctorStatusWarn {
		check.Message = "Config directory does not exist yet"
	}
	return check
}

func checkOptionalJSONFile(id, path, okMessage, missingRemediation string) doctorCheck {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return doctorCheck{
				ID:      id,
				Status:  doctorStatusWarn,
				Message: "File not found",
				Details: map[string]interface{}{
					"path": path,
				},
				Remediation: missingRemediation,
			}
		}
		return doctorCheck{
			ID:      id,
			Status:  doctorStatusFail,
			Message: fmt.Sprintf("Failed to read file: %v", err),
			Details: map[string]interface{}{
				"path": path,
			},
			Remediation: "Check file permissions and ownership.",
		}
	}

	if !json.Valid(content) {
		return doctorCheck{
			ID:      id,
			Status:  doctorStatusFail,
			Message: "Invalid JSON format",
			Details: map[string]interface{}{
				"path": path,
			},
			Remediation: "Back up the file and save app data again from the client.",
		}
	}

	return doctorCheck{
		ID:      id,
		Status:  doctorStatusOK,
		Message: okMessage,
		Details: map[string]interface{}{
			"path":  path,
			"bytes": len(content),
		},
	}
}

func checkHistoryDatabase(path string) doctorCheck {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return doctorCheck{
				ID:      "history.database",
				Status:  doctorStatusWarn,
				Message: "History database not created yet",
				Details: map[string]interface{}{
					"path": path,
				},
				Remediation: "Run `cquest serve` once to create it.",
			}
		}
		return doctorCheck{
			ID:      "history.database",
			Status:  doctorStatusFail,
			Message: fmt.Sprintf("Failed to inspect history database: %v", err),
			Details: map[string]interface{}{
				"path": path,
			},
			Remediation: "Check filesystem permissions.",
		}
	}

	store, err := history.Open(path)
	if err != nil {
		return doctorCheck{
			ID:      "history.database",
			Status:  doctorStatusFail,
			Message: fmt.Sprintf("Failed to open history database: %v", err),
			Details: map[string]interface{}{
				"path": path,
			},
			Remediation: "Move the file aside; a fresh database is created on next start.",
		}
	}
	defer func() { _ = store.Close() }()

	records, err := store.List(context.Background(), ports.HistoryFilter{Limit: 1})
	if err != nil {
		return doctorCheck{
			ID:      "history.database",
			Status:  doctorStatusFail,
			Message: fmt.Sprintf("Failed to query history database: %v", err),
			Details: map[string]interface{}{
				"path": path,
			},
			Remediation: "Move the file aside; a fresh database is created on next start.",
		}
	}

	details := map[string]interface{}{"path": path}
	if len(records) > 0 {
		details["last_run"] = records[0].StartedAt.Format(time.RFC3339)
	}
	return doctorCheck{
		ID:      "history.database",
		Status:  doctorStatusOK,
		Message: "History database is readable",
		Details: details,
	}
}

func checkCommandBinary(id, command string, recommended bool) doctorCheck {
	execName := extractCommandName(command)
	if execName == "" {
		return doctorCheck{
			ID:          id,
			Status:      doctorStatusFail,
			Message:     "Command is empty",
			Remediation: "Set the command in config to a valid executable name or absolute path.",
		}
	}

	resolved, err := exec.LookPath(execName)
	if err != nil {
		status := doctorStatusWarn
		remediation := fmt.Sprintf("Install `%s` and ensure it is available in PATH.", execName)
		if recommended {
			status = doctorStatusFail
			remediation = fmt.Sprintf("Install `%s` or update config to a valid command path.", execName)
		}
		return doctorCheck{
			ID:      id,
			Status:  status,
			Message: fmt.Sprintf("Command not found in PATH: %s", execName),
			Details: map[string]interface{}{
				"configured": command,
			},
			Remediation: remediation,
		}
	}

	return doctorCheck{
		ID:      id,
		Status:  doctorStatusOK,
		Message: "Command is available",
		Details: map[string]interface{}{
			"configured": command,
			"resolved":   resolved,
		},
	}
}

func checkDirectoryExists(id, path, okMessage, missingRemediation string) doctorCheck {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return doctorCheck{
				ID:      id,
				Status:  doctorStatusWarn,
				Message: "Directory not found",
				Details: map[string]interface{}{
					"path": path,
				},
				Remediation: missingRemediation,
			}
		}
		return doctorCheck{
			ID:      id,
			Status:  doctorStatusFail,
			Message: fmt.Sprintf("Failed to read directory: %v", err),
			Details: map[string]interface{}{
				"path": path,
			},
			Remediation: "Check filesystem permissions.",
		}
	}

	if !info.IsDir() {
		return doctorCheck{
			ID:      id,
			Status:  doctorStatusFail,
			Message: "Path exists but is not a directory",
			Details: map[string]interface{}{
				"path": path,
			},
			Remediation: "Remove the file and create the directory path.",
		}
	}

	return doctorCheck{
		ID:      id,
		Status:  doctorStatusOK,
		Message: okMessage,
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

func checkHealthEndpoint(host string, port, timeoutSeconds int) doctorCheck {
	if strings.TrimSpace(host) == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	if port <= 0 {
		port = config.DefaultPort
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 2
	}

	url := fmt.Sprintf("http://%s:%d/health", host, port)
	client := &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return doctorCheck{
			ID:      "server.health_endpoint",
			Status:  doctorStatusWarn,
			Message: fmt.Sprintf("Health endpoint is not reachable: %v", err),
			Details: map[string]interface{}{
				"url": url,
			},
			Remediation: "Start the backend with `cquest serve` and verify host/port configuration.",
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return doctorCheck{
			ID:      "server.health_endpoint",
			Status:  doctorStatusFail,
			Message: fmt.Sprintf("Health endpoint returned non-200 status: %d", resp.StatusCode),
			Details: map[string]interface{}{
				"url":         url,
				"status_code": resp.StatusCode,
				"body":        strings.TrimSpace(string(body)),
			},
			Remediation: "Check server logs (`cquest serve -v`) to diagnose HTTP startup issues.",
		}
	}

	return doctorCheck{
		ID:      "server.health_endpoint",
		Status:  doctorStatusOK,
		Message: "Health endpoint is reachable",
		Details: map[string]interface{}{
			"url":         url,
			"status_code": resp.StatusCode,
		},
	}
}

func summarizeDoctorChecks(checks []doctorCheck) doctorSummary {
	summary := doctorSummary{Total: len(checks)}
	for _, check := range checks {
		switch check.Status {
		case doctorStatusOK:
			summary.OK++
		case doctorStatusWarn:
			summary.Warn++
		case doctorStatusFail:
			summary.Fail++
		}
	}
	return summary
}

func overallStatus(summary doctorSummary) doctorStatus {
	if summary.Fail > 0 {
		return doctorStatusFail
	}
	if summary.Warn > 0 {
		return doctorStatusWarn
	}
	return doctorStatusOK
}

func printDoctorJSON(w io.Writer, report doctorReport) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func printDoctorText(w io.Writer, report doctorReport) {
	fmt.Fprintf(w, "cquest doctor v%s\n", report.Version)
	fmt.Fprintf(w, "generated_at: %s\n", report.GeneratedAt)
	fmt.Fprintf(w, "overall: %s  (ok=%d warn=%d fail=%d total=%d)\n\n",
		strings.ToUpper(string(report.Overall)),
		report.Summary.OK,
		report.Summary.Warn,
		report.Summary.Fail,
		report.Summary.Total,
	)

	for _, check := range report.Checks {
		label := "[OK]"
		if check.Status == doctorStatusWarn {
			label = "[WARN]"
		}
		if check.Status == doctorStatusFail {
			label = "[FAIL]"
		}

		fmt.Fprintf(w, "%s %s: %s\n", label, check.ID, check.Message)
		if check.Remediation != "" && check.Status != doctorStatusOK {
			fmt.Fprintf(w, "  fix: %s\n", check.Remediation)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Tip: run `cquest doctor --json` for machine-readable output.")
}

func configSearchPaths(explicit string) []string {
	if strings.TrimSpace(explicit) != "" {
		return []string{explicit}
	}

	home := userHomeDir()
	return []string{
		filepath.Join(".", "config.yaml"),
		filepath.Join(home, ".cquest", "config.yaml"),
		"/etc/cquest/config.yaml",
	}
}

func findFirstExistingPath(paths []string) string {
	for _, candidate := range paths {
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func extractCommandName(command string) string {
	parts := strings.Fields(strings.TrimSpace(command))
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

func userHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
