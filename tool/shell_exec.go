package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/hupe1980/captain/core"
)

// ShellExecToolName is the name of the shell tool.
const ShellExecToolName = "shell_exec"

const (
	defaultShellTimeout = 30 * time.Second
	maxShellOutput      = 20000
)

// NewShellExecTool creates a tool executing shell commands inside the workspace.
func NewShellExecTool() Tool {
	return NewFunctionTool(
		ShellExecToolName,
		"Execute a shell command in the workspace and return its output.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command":         map[string]any{"type": "string", "description": "The shell command to execute"},
				"timeout_seconds": map[string]any{"type": "integer", "description": "Timeout in seconds (default 30)", "minimum": 1},
			},
			"required": []string{"command"},
		},
		shellExec,
	)
}

func shellExec(tc *core.ToolContext, args map[string]any) (any, error) {
	timeout := defaultShellTimeout
	if secs := intArg(args, "timeout_seconds", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	return RunShell(tc.Context(), tc.Workspace(), stringArg(args, "command"), timeout)
}

// RunShell executes command with the platform shell in dir and renders the
// outcome as text. Timeouts and non-zero exits are reported in the text, only
// failures to start the shell return an error. A zero timeout means 30s.
func RunShell(ctx context.Context, dir, command string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = defaultShellTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	cmd.WaitDelay = time.Second
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("Error: command timed out after %s", timeout), nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", fmt.Errorf("run command: %w", err)
		}
		if stderr.Len() > 0 {
			return truncate("Error: "+stderr.String(), maxShellOutput), nil
		}
		return fmt.Sprintf("Error: command failed with code %d", exitErr.ExitCode()), nil
	}
	if stdout.Len() == 0 {
		return "(no output)", nil
	}
	return truncate(stdout.String(), maxShellOutput), nil
}
