package coretools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/harun/surveyor/pkg/toolexecutor"
	"github.com/harun/surveyor/pkg/workspace"
)

// ToolName is the wire name of a core tool
type ToolName string

const (
	ReadFile      ToolName = "read_file"
	WriteFile     ToolName = "write_file"
	ListDirectory ToolName = "list_directory"
	RunCommand    ToolName = "run_command"
	SearchFiles   ToolName = "search_files"
	Compact       ToolName = "compact"
)

// Names lists every core tool in registration order
var Names = []ToolName{ReadFile, WriteFile, ListDirectory, RunCommand, SearchFiles, Compact}

const defaultMaxReadBytes = 200000

// Compactor summarizes a transcript. It must return its input unchanged on failure.
type Compactor interface {
	Compact(ctx context.Context, transcript string) string
}

// Options configures core tool construction.
type Options struct {
	// WorkspaceRoot is used when the execution context carries no working dir.
	WorkspaceRoot string
	// Compaction backs the compact tool. Without it compact echoes its input.
	Compaction Compactor
	// MaxReadBytes caps read_file; zero means 200000.
	MaxReadBytes int64
	// RipgrepPath overrides the rg binary lookup.
	RipgrepPath string
}

// New returns the closed set of core tool definitions
func New(opts Options) []toolexecutor.ToolDefinition {
	if opts.MaxReadBytes <= 0 {
		opts.MaxReadBytes = defaultMaxReadBytes
	}
	if strings.TrimSpace(opts.RipgrepPath) == "" {
		opts.RipgrepPath = "rg"
	}

	return []toolexecutor.ToolDefinition{
		readFileTool(opts),
		writeFileTool(opts),
		listDirectoryTool(opts),
		runCommandTool(opts),
		searchFilesTool(opts),
		compactTool(opts),
	}
}

// bind decodes validated raw parameters into a typed struct
func bind[P any](params map[string]interface{}) (P, error) {
	var out P
	data, err := json.Marshal(params)
	if err != nil {
		return out, fmt.Errorf("failed to encode parameters: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("invalid parameters: %w", err)
	}
	return out, nil
}

// typed adapts a handler over P into a raw ToolHandler
func typed[P any](fn func(ctx context.Context, p P) (interface{}, error)) toolexecutor.ToolHandler {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		p, err := bind[P](params)
		if err != nil {
			return nil, err
		}
		return fn(ctx, p)
	}
}

func resolveWorkspaceRoot(ctx context.Context, opts Options) (string, error) {
	if execCtx := toolexecutor.ExecContextFromContext(ctx); execCtx != nil && strings.TrimSpace(execCtx.WorkingDir) != "" {
		return filepath.Clean(execCtx.WorkingDir), nil
	}
	if strings.TrimSpace(opts.WorkspaceRoot) != "" {
		return filepath.Clean(opts.WorkspaceRoot), nil
	}
	return "", errors.New("workspace root is not configured")
}

// resolvePath confines pathValue to the workspace root. Escapes are GenericIO tool errors.
func resolvePath(ctx context.Context, opts Options, pathValue string) (string, error) {
	root, err := resolveWorkspaceRoot(ctx, opts)
	if err != nil {
		return "", err
	}
	target, err := workspace.ResolveInRoot(root, pathValue)
	if err != nil {
		return "", toolexecutor.GenericIO(pathValue, err.Error())
	}
	return target, nil
}
