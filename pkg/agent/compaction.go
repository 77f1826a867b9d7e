package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/harun/surveyor/internal/observability"
	"github.com/harun/surveyor/internal/tracing"
	"github.com/harun/surveyor/pkg/conversation"
	"github.com/rs/zerolog"
)

const (
	compactionTriggerTool      = "tool"
	compactionTriggerThreshold = "threshold"

	filesAnalyzedHeading = "## Files Analyzed"
)

const compactionSystemPrompt = `You compress the working transcript of a long-running codebase analysis so that the work can continue without the full history.`

const compactionPrompt = `Summarize the transcript below into a progress report with exactly these sections:

## Files Analyzed
Every file and directory that was read, listed, written or searched, one absolute path per bullet, with a short note on what it contains.

## Codebase Understanding
Directory structure, architecture, languages, frameworks and the main components and how they relate.

## Feature Sets Identified
Each feature grouping with the exact set of files that belongs to it, and any ordering decisions made between groupings.

## Progress & Actions Taken
What has been done so far, including every command that was run and its outcome, and every file written.

## Next Steps
What remains to be done, in order.

Preserve every file path verbatim. Do not invent findings that are not in the transcript.

<transcript>
%s
</transcript>`

// Compaction shrinks a transcript. Implementations return the input
// unchanged when they cannot produce a shorter one.
type Compaction interface {
	Compact(ctx context.Context, transcript string) string
}

// CompactorConfig holds compactor configuration
type CompactorConfig struct {
	Provider  LLMProvider
	Model     string
	MaxTokens int
	Timeout   time.Duration
	Logger    zerolog.Logger
}

// Compactor summarizes transcripts with one auxiliary provider request
type Compactor struct {
	provider  LLMProvider
	model     string
	maxTokens int
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewCompactor creates a compactor over the given provider
func NewCompactor(cfg CompactorConfig) (*Compactor, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &Compactor{
		provider:  cfg.Provider,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
	}, nil
}

type compactionTriggerKey struct{}

func withCompactionTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, compactionTriggerKey{}, trigger)
}

func compactionTrigger(ctx context.Context) string {
	if trigger, ok := ctx.Value(compactionTriggerKey{}).(string); ok {
		return trigger
	}
	return compactionTriggerTool
}

// Compact returns a structured summary of transcript. On request failure
// or empty output the transcript is returned unchanged. Absolute paths
// that the summary dropped are appended under Files Analyzed.
func (c *Compactor) Compact(ctx context.Context, transcript string) string {
	logger := tracing.LoggerFromContext(ctx, c.logger)
	trigger := compactionTrigger(ctx)

	if strings.TrimSpace(transcript) == "" {
		observability.RecordCompaction(trigger, "skipped")
		return transcript
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	turn, err := c.provider.Call(callCtx, LLMRequest{
		Model:        c.model,
		MaxTokens:    c.maxTokens,
		SystemPrompt: compactionSystemPrompt,
		Messages:     []conversation.Message{conversation.UserText(fmt.Sprintf(compactionPrompt, transcript))},
	})
	if err != nil {
		logger.Warn().Err(err).Str("trigger", trigger).Msg("Compaction request failed, keeping transcript")
		observability.RecordCompaction(trigger, "failed")
		return transcript
	}

	summary := strings.TrimSpace(turn.Text())
	if summary == "" {
		logger.Warn().Str("trigger", trigger).Msg("Compaction returned no text, keeping transcript")
		observability.RecordCompaction(trigger, "empty")
		return transcript
	}

	summary = ensureFilesAnalyzed(summary, missingPaths(transcript, summary))

	logger.Debug().
		Str("trigger", trigger).
		Int("before_chars", len(transcript)).
		Int("after_chars", len(summary)).
		Msg("Transcript compacted")
	observability.RecordCompaction(trigger, "ok")

	return summary
}

var absPathPattern = regexp.MustCompile(`(?:^|[\s"'(\[=:,<>])(/[A-Za-z0-9._@+\-]+(?:/[A-Za-z0-9._@+\-]+)*/?)`)

// extractAbsolutePaths finds absolute paths in text in first-seen order
func extractAbsolutePaths(text string) []string {
	var paths []string
	seen := make(map[string]bool)
	for _, match := range absPathPattern.FindAllStringSubmatch(text, -1) {
		path := strings.TrimRight(match[1], ".,:;")
		if len(path) > 1 {
			path = strings.TrimSuffix(path, "/")
		}
		if path == "" || path == "/" || seen[path] {
			continue
		}
		seen[path] = true
		paths = append(paths, path)
	}
	return paths
}

// missingPaths lists absolute paths of source that do not appear in summary
func missingPaths(source string, summary string) []string {
	var missing []string
	for _, path := range extractAbsolutePaths(source) {
		if !strings.Contains(summary, path) {
			missing = append(missing, path)
		}
	}
	return missing
}

var filesAnalyzedPattern = regexp.MustCompile(`(?i)^#{1,6}\s*(\*\*)?files analyzed(\*\*)?\s*:?\s*$`)

// ensureFilesAnalyzed appends paths as bullets at the end of the Files
// Analyzed section, creating the section when the summary has none.
func ensureFilesAnalyzed(summary string, paths []string) string {
	if len(paths) == 0 {
		return summary
	}

	bullets := make([]string, 0, len(paths))
	for _, path := range paths {
		bullets = append(bullets, "- "+path)
	}

	lines := strings.Split(summary, "\n")
	heading := -1
	for i, line := range lines {
		if filesAnalyzedPattern.MatchString(strings.TrimSpace(line)) {
			heading = i
			break
		}
	}

	if heading < 0 {
		return strings.TrimRight(summary, "\n") + "\n\n" + filesAnalyzedHeading + "\n" + strings.Join(bullets, "\n") + "\n"
	}

	end := len(lines)
	for i := heading + 1; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "#") {
			end = i
			break
		}
	}
	insertAt := end
	for insertAt > heading+1 && strings.TrimSpace(lines[insertAt-1]) == "" {
		insertAt--
	}

	out := make([]string, 0, len(lines)+len(bullets))
	out = append(out, lines[:insertAt]...)
	out = append(out, bullets...)
	out = append(out, lines[insertAt:]...)
	return strings.Join(out, "\n")
}
