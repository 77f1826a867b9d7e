package toolexecutor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// UnknownToolError is returned when a tool name is not in the dispatch table.
// It signals a mismatch between advertised descriptors and registered handlers
// and must abort the run.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// IsUnknownTool reports whether err is (or wraps) an UnknownToolError
func IsUnknownTool(err error) bool {
	var target *UnknownToolError
	return errors.As(err, &target)
}

// ErrorKind classifies operational tool failures
type ErrorKind string

const (
	KindNotFound         ErrorKind = "NotFound"
	KindPermissionDenied ErrorKind = "PermissionDenied"
	KindNotADirectory    ErrorKind = "NotADirectory"
	KindGenericIO        ErrorKind = "GenericIO"
)

// ToolError is a structured, model-visible failure. Handlers return it as an
// error; the executor folds it into the ToolResult payload.
type ToolError struct {
	Kind    ErrorKind
	Message string
	Path    string
	Exists  *bool
}

func (e *ToolError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Path)
	}
	return e.Message
}

// MarshalJSON renders the shape the model sees: {error, path?, exists?}
func (e *ToolError) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{"error": e.Message}
	if e.Path != "" {
		out["path"] = e.Path
	}
	if e.Exists != nil {
		out["exists"] = *e.Exists
	}
	return json.Marshal(out)
}

func boolPtr(b bool) *bool { return &b }

// NotFound reports a missing path
func NotFound(path string) *ToolError {
	return &ToolError{Kind: KindNotFound, Message: "File not found", Path: path, Exists: boolPtr(false)}
}

// PermissionDenied reports a path that exists but cannot be accessed
func PermissionDenied(path string) *ToolError {
	return &ToolError{Kind: KindPermissionDenied, Message: "Permission denied", Path: path, Exists: boolPtr(true)}
}

// NotADirectory reports a directory operation on a non-directory
func NotADirectory(path string) *ToolError {
	return &ToolError{Kind: KindNotADirectory, Message: "Not a directory", Path: path, Exists: boolPtr(true)}
}

// GenericIO wraps any other I/O failure
func GenericIO(path string, message string) *ToolError {
	return &ToolError{Kind: KindGenericIO, Message: message, Path: path}
}

// ClassifyFSError maps a filesystem error onto the tool error taxonomy
func ClassifyFSError(path string, err error) *ToolError {
	var toolErr *ToolError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &toolErr):
		return toolErr
	case errors.Is(err, fs.ErrNotExist):
		return NotFound(path)
	case errors.Is(err, fs.ErrPermission):
		return PermissionDenied(path)
	case errors.Is(err, syscall.ENOTDIR):
		return NotADirectory(path)
	default:
		return GenericIO(path, err.Error())
	}
}
