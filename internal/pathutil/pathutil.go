// Package pathutil provides cross-platform path and shell utilities for cquest.
package pathutil

import (
	"os/exec"
	"runtime"
	"strings"
)

// Shell names the interpreter used to run command strings.
type Shell struct {
	Program string
	Flag    string
}

// DefaultShell returns the platform's default shell.
//
//	Unix/macOS: sh -c "<command>"
//	Windows:    cmd.exe /C "<command>"
func DefaultShell() Shell {
	if runtime.GOOS == "windows" {
		return Shell{Program: "cmd.exe", Flag: "/C"}
	}
	return Shell{Program: "sh", Flag: "-c"}
}

// Command returns an *exec.Cmd that runs command through the shell. The
// command string is passed verbatim; no quoting is applied.
func (s Shell) Command(command, workDir string) *exec.Cmd {
	if s.Program == "" {
		s = DefaultShell()
	}
	cmd := exec.Command(s.Program, s.Flag, command)
	cmd.Dir = workDir
	return cmd
}

// ShellCommand runs command through the platform's default shell.
func ShellCommand(command string) *exec.Cmd {
	return DefaultShell().Command(command, "")
}

// IsSafeComponent reports whether s can be embedded in a file name without
// escaping its directory.
func IsSafeComponent(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`+"\x00")
}
