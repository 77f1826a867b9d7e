package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultNotesFile is the working-notes artifact created under the target during a run
const DefaultNotesFile = ".surveyor-notes.md"

// ErrInvalidTarget is returned when the target directory cannot be used
var ErrInvalidTarget = errors.New("invalid target directory")

// Target is a validated, absolute directory the run operates on
type Target struct {
	root      string
	notesFile string
}

// ResolveTarget validates that path is an absolute, existing directory
func ResolveTarget(path string, notesFile string) (*Target, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidTarget)
	}
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: %s is not an absolute path", ErrInvalidTarget, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrInvalidTarget, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidTarget, path)
	}

	if strings.TrimSpace(notesFile) == "" {
		notesFile = DefaultNotesFile
	}
	if filepath.IsAbs(notesFile) || strings.Contains(filepath.ToSlash(notesFile), "..") {
		return nil, fmt.Errorf("%w: notes file %q must be relative to the target", ErrInvalidTarget, notesFile)
	}

	return &Target{root: filepath.Clean(path), notesFile: notesFile}, nil
}

// Root returns the absolute target directory
func (t *Target) Root() string {
	return t.root
}

// NotesPath returns the absolute path of the working-notes artifact
func (t *Target) NotesPath() string {
	return filepath.Join(t.root, t.notesFile)
}

// RemoveNotes deletes the notes artifact. Missing files and deletion
// failures are logged and otherwise ignored.
func (t *Target) RemoveNotes() {
	path := t.NotesPath()
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("path", path).Msg("No notes artifact to remove")
			return
		}
		log.Warn().Err(err).Str("path", path).Msg("Failed to remove notes artifact")
		return
	}
	log.Info().Str("path", path).Msg("Notes artifact removed")
}

// ResolveInRoot maps a tool-supplied path onto root. Relative paths are
// joined to root; the result must stay inside it.
func ResolveInRoot(root string, pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" {
		return root, nil
	}
	if strings.Contains(pathValue, "://") {
		return "", fmt.Errorf("path must be a local file")
	}
	candidate := pathValue
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(root, candidate)
	}
	candidate = filepath.Clean(candidate)

	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return "", err
	}
	if rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..") {
		return candidate, nil
	}
	return "", fmt.Errorf("path %q is outside the target directory", pathValue)
}
