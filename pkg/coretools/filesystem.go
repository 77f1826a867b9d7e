package coretools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/harun/surveyor/pkg/toolexecutor"
)

// ReadFileParams are the inputs of read_file
type ReadFileParams struct {
	Path string `json:"path"`
}

// WriteFileParams are the inputs of write_file
type WriteFileParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ListDirectoryParams are the inputs of list_directory
type ListDirectoryParams struct {
	Path string `json:"path"`
}

// DirEntry is one list_directory entry
type DirEntry struct {
	Name        string `json:"name"`
	IsDirectory bool   `json:"isDirectory"`
	IsFile      bool   `json:"isFile"`
}

func readFileTool(opts Options) toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:          string(ReadFile),
		Description:   "Read the contents of a file. Relative paths resolve against the target directory.",
		ResourceParam: "path",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "path", Type: "string", Description: "File path", Required: true},
		},
		Handler: typed(func(ctx context.Context, p ReadFileParams) (interface{}, error) {
			target, err := resolvePath(ctx, opts, p.Path)
			if err != nil {
				return nil, err
			}

			info, err := os.Stat(target)
			if err != nil {
				return nil, toolexecutor.ClassifyFSError(p.Path, err)
			}
			if info.IsDir() {
				return nil, toolexecutor.GenericIO(p.Path, "Is a directory")
			}

			content, truncated, err := readFileWithLimit(target, opts.MaxReadBytes)
			if err != nil {
				return nil, toolexecutor.ClassifyFSError(p.Path, err)
			}
			if truncated {
				content += fmt.Sprintf("\n... [file truncated at %d bytes]", opts.MaxReadBytes)
			}
			return content, nil
		}),
	}
}

func writeFileTool(opts Options) toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:          string(WriteFile),
		Description:   "Write content to a file, creating parent directories as needed. Overwrites existing files.",
		ResourceParam: "path",
		Mutates:       true,
		Parameters: []toolexecutor.ToolParameter{
			{Name: "path", Type: "string", Description: "File path", Required: true},
			{Name: "content", Type: "string", Description: "File content", Required: true},
		},
		Handler: typed(func(ctx context.Context, p WriteFileParams) (interface{}, error) {
			target, err := resolvePath(ctx, opts, p.Path)
			if err != nil {
				return nil, err
			}

			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return nil, toolexecutor.ClassifyFSError(filepath.Dir(p.Path), err)
			}
			if err := os.WriteFile(target, []byte(p.Content), 0644); err != nil {
				return nil, toolexecutor.ClassifyFSError(p.Path, err)
			}

			return map[string]interface{}{
				"success": true,
				"path":    target,
				"bytes":   len(p.Content),
			}, nil
		}),
	}
}

func listDirectoryTool(opts Options) toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:          string(ListDirectory),
		Description:   "List the entries of a directory.",
		ResourceParam: "path",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "path", Type: "string", Description: "Directory path", Required: true},
		},
		Handler: typed(func(ctx context.Context, p ListDirectoryParams) (interface{}, error) {
			target, err := resolvePath(ctx, opts, p.Path)
			if err != nil {
				return nil, err
			}

			info, err := os.Stat(target)
			if err != nil {
				return nil, toolexecutor.ClassifyFSError(p.Path, err)
			}
			if !info.IsDir() {
				return nil, toolexecutor.NotADirectory(p.Path)
			}

			dirEntries, err := os.ReadDir(target)
			if err != nil {
				return nil, toolexecutor.ClassifyFSError(p.Path, err)
			}
			sort.Slice(dirEntries, func(i, j int) bool { return dirEntries[i].Name() < dirEntries[j].Name() })

			entries := make([]DirEntry, 0, len(dirEntries))
			for _, entry := range dirEntries {
				entries = append(entries, DirEntry{
					Name:        entry.Name(),
					IsDirectory: entry.IsDir(),
					IsFile:      entry.Type().IsRegular(),
				})
			}

			return map[string]interface{}{
				"path":    target,
				"entries": entries,
			}, nil
		}),
	}
}

// readFileWithLimit reads at most limit bytes, backing off so the content
// never ends inside a multi-byte UTF-8 sequence
func readFileWithLimit(path string, limit int64) (string, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer file.Close()

	if limit <= 0 {
		limit = defaultMaxReadBytes
	}

	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, file, limit+1); err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}

	if int64(buf.Len()) <= limit {
		return buf.String(), false, nil
	}
	return toolexecutor.CutAtRuneBoundary(buf.String(), int(limit)), true, nil
}
