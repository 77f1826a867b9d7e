package coretools

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/harun/surveyor/pkg/toolexecutor"
	"github.com/rs/zerolog/log"
)

// RunCommandParams are the inputs of run_command
type RunCommandParams struct {
	Command string `json:"command"`
	Cwd     string `json:"cwd"`
}

// CommandResult is the structured outcome of run_command
type CommandResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Success  bool   `json:"success"`
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
}

func runCommandTool(opts Options) toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:          string(RunCommand),
		Description:   "Run a shell command with sh -c. The working directory defaults to the target directory.",
		ResourceParam: "cwd",
		Mutates:       true,
		Parameters: []toolexecutor.ToolParameter{
			{Name: "command", Type: "string", Description: "Shell command line", Required: true},
			{Name: "cwd", Type: "string", Description: "Working directory (relative to the target)", Required: false},
		},
		Handler: typed(func(ctx context.Context, p RunCommandParams) (interface{}, error) {
			command := strings.TrimSpace(p.Command)
			if command == "" {
				return nil, errors.New("command is required")
			}

			cwd, err := resolvePath(ctx, opts, p.Cwd)
			if err != nil {
				return nil, err
			}
			info, err := os.Stat(cwd)
			if err != nil {
				return nil, toolexecutor.ClassifyFSError(p.Cwd, err)
			}
			if !info.IsDir() {
				return nil, toolexecutor.NotADirectory(p.Cwd)
			}

			return runShell(ctx, command, cwd), nil
		}),
	}
}

// runShell executes command under sh -c. Process failures are reported in
// the result rather than as errors.
func runShell(ctx context.Context, command string, cwd string) CommandResult {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	switch {
	case ctx.Err() != nil:
		result.ExitCode = -1
		result.Error = "command cancelled: " + ctx.Err().Error()
	case err == nil:
		result.Success = true
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		result.Error = err.Error()
	}

	log.Debug().
		Str("command", command).
		Str("cwd", cwd).
		Int("exit_code", result.ExitCode).
		Dur("duration", duration).
		Msg("Command executed")

	return result
}
