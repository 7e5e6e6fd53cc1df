package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/brianly1003/cquest/internal/app"
)

var execCwd string

// execCmd runs a shell job the same way shell/execute does.
var execCmd = &cobra.Command{
	Use:   "exec <command>",
	Short: "Run a shell command as a tracked job",
	Long: `Run a command through the configured shell, print what it wrote and exit
with its exit code. Ctrl-C kills the whole process group.

Example:
  cquest exec "go test ./..."
  cquest exec --cwd /tmp "ls -la"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringVar(&execCwd, "cwd", "", "working directory for the command")
}

// exitCodeError carries a non-zero job exit code out of RunE.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	application, err := app.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	processID := uuid.New().String()
	ctx, cancel := signalContext()
	defer cancel()

	// Ctrl-C goes through Kill so the job reports the interrupted result
	// instead of a cancelled context.
	go func() {
		<-ctx.Done()
		application.Shell().Kill(processID)
	}()

	result, err := application.Shell().Run(context.Background(), processID, strings.Join(args, " "), execCwd)
	if closeErr := application.Close(); err == nil && closeErr != nil {
		return closeErr
	}
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), result.Stdout)
	fmt.Fprint(cmd.ErrOrStderr(), result.Stderr)
	if result.ExitCode != 0 {
		return &exitCodeError{code: result.ExitCode}
	}
	return nil
}

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return 1
}

// PrintError reports err unless it only carries an exit code.
func PrintError(err error) {
	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		return
	}
	fmt.Fprintln(os.Stderr, err)
}
