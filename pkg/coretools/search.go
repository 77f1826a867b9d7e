package coretools

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/harun/surveyor/pkg/toolexecutor"
)

// SearchOptions tunes the ripgrep invocation
type SearchOptions struct {
	CaseInsensitive  bool `json:"case_insensitive"`
	FilesWithMatches bool `json:"files_with_matches"`
	LineNumbers      bool `json:"line_numbers"`
	Context          int  `json:"context"`
}

// SearchFilesParams are the inputs of search_files
type SearchFilesParams struct {
	Pattern string        `json:"pattern"`
	Path    string        `json:"path"`
	Options SearchOptions `json:"options"`
}

func searchFilesTool(opts Options) toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:          string(SearchFiles),
		Description:   "Search file contents with ripgrep. Returns matching lines, or matching files when files_with_matches is set.",
		ResourceParam: "path",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "pattern", Type: "string", Description: "Regular expression to search for", Required: true},
			{Name: "path", Type: "string", Description: "File or directory to search (defaults to the target)", Required: false},
			{
				Name:        "options",
				Type:        "object",
				Description: "Search options",
				Required:    false,
				Properties: []toolexecutor.ToolParameter{
					{Name: "case_insensitive", Type: "boolean", Description: "Ignore case"},
					{Name: "files_with_matches", Type: "boolean", Description: "Only list matching file paths"},
					{Name: "line_numbers", Type: "boolean", Description: "Prefix matches with line numbers"},
					{Name: "context", Type: "integer", Description: "Lines of context around each match"},
				},
			},
		},
		Handler: typed(func(ctx context.Context, p SearchFilesParams) (interface{}, error) {
			if strings.TrimSpace(p.Pattern) == "" {
				return nil, errors.New("pattern is required")
			}
			target, err := resolvePath(ctx, opts, p.Path)
			if err != nil {
				return nil, err
			}
			return ripgrep(ctx, opts.RipgrepPath, p.Pattern, target, p.Options), nil
		}),
	}
}

// ripgrepArgs builds the rg command line for a search
func ripgrepArgs(pattern string, target string, options SearchOptions) []string {
	args := []string{"--no-heading", "--with-filename", "--color=never"}
	if options.CaseInsensitive {
		args = append(args, "-i")
	}
	if options.FilesWithMatches {
		args = append(args, "-l")
	} else {
		if options.LineNumbers {
			args = append(args, "--line-number")
		}
		if options.Context > 0 {
			args = append(args, "-C", strconv.Itoa(options.Context))
		}
	}
	return append(args, "-e", pattern, target)
}

// ripgrep runs rg. Exit status 1 means no matches and is not a failure.
func ripgrep(ctx context.Context, binary string, pattern string, target string, options SearchOptions) map[string]interface{} {
	if _, err := exec.LookPath(binary); err != nil {
		return map[string]interface{}{
			"success": false,
			"error":   fmt.Sprintf("ripgrep is not available: %v", err),
		}
	}

	cmd := exec.CommandContext(ctx, binary, ripgrepArgs(pattern, target, options)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return map[string]interface{}{"success": true, "results": []string{}}
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return map[string]interface{}{"success": false, "error": msg}
	}

	results := make([]string, 0)
	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			results = append(results, line)
		}
	}

	return map[string]interface{}{"success": true, "results": results}
}
