package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/surveyor/internal/observability"
	"github.com/harun/surveyor/internal/tracing"
	"github.com/harun/surveyor/pkg/conversation"
	"github.com/harun/surveyor/pkg/toolexecutor"
	"github.com/harun/surveyor/pkg/workspace"
	"github.com/rs/zerolog"
)

// run states, logged on every transition
const (
	stateInit           = "init"
	stateAwaitingModel  = "awaiting_model"
	stateExecutingTools = "executing_tools"
	stateTerminated     = "terminated"
)

// Runner orchestrates one provider-driven run over a target directory
type Runner struct {
	provider     LLMProvider
	toolExecutor *toolexecutor.ToolExecutor
	compaction   Compaction
	logger       zerolog.Logger

	model        string
	systemPrompt string
	task         string
	maxTokens    int
	temperature  float64
	maxRetries   int
	retryDelay   time.Duration
	listing      workspace.ListingOptions
}

// Config holds runner configuration
type Config struct {
	Provider     LLMProvider
	ToolExecutor *toolexecutor.ToolExecutor
	// Compaction backs the token-budget policy. Nil disables it.
	Compaction Compaction
	Logger     zerolog.Logger

	Model        string
	SystemPrompt string
	// Task is the opening instruction placed at the top of the seed message.
	Task        string
	MaxTokens   int
	Temperature float64
	// MaxRetries is the number of extra attempts for retryable provider errors.
	// Negative disables retries.
	MaxRetries int
	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration
	Listing        workspace.ListingOptions
}

// NewRunner creates a new runner
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.ToolExecutor == nil {
		return nil, fmt.Errorf("tool executor is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 1 {
		return nil, fmt.Errorf("temperature must be between 0 and 1")
	}
	if cfg.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	}

	maxRetries := cfg.MaxRetries
	switch {
	case maxRetries == 0:
		maxRetries = defaultMaxRetries
	case maxRetries < 0:
		maxRetries = 0
	}
	retryDelay := cfg.RetryBaseDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	return &Runner{
		provider:     cfg.Provider,
		toolExecutor: cfg.ToolExecutor,
		compaction:   cfg.Compaction,
		logger:       cfg.Logger,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		task:         cfg.Task,
		maxTokens:    maxTokens,
		temperature:  cfg.Temperature,
		maxRetries:   maxRetries,
		retryDelay:   retryDelay,
		listing:      cfg.Listing,
	}, nil
}

// Run drives the conversation until the provider answers without tool
// invocations. The returned Result carries the transcript even when the
// run fails.
func (r *Runner) Run(ctx context.Context, rc RunContext) (Result, error) {
	start := time.Now()

	target, err := workspace.ResolveTarget(rc.TargetPath, rc.NotesFile)
	if err != nil {
		return Result{}, err
	}
	if rc.MaxTurns <= 0 {
		rc.MaxTurns = defaultMaxTurns
	}

	ctx = tracing.NewRunContext(ctx, target.Root())
	runID := tracing.GetRunID(ctx)
	logger := tracing.LoggerFromContext(ctx, r.logger)

	result, err := r.run(ctx, logger, target, rc)
	result.RunID = runID

	observability.RecordRun(time.Since(start), err == nil)
	if err != nil {
		observability.RecordRunAudit(ctx, "run", "failure", map[string]interface{}{"error": err.Error(), "turns": result.Turns})
		return result, err
	}
	observability.RecordRunAudit(ctx, "run", "success", map[string]interface{}{"turns": result.Turns, "tool_calls": result.ToolCalls})

	target.RemoveNotes()
	return result, nil
}

func (r *Runner) run(ctx context.Context, logger zerolog.Logger, target *workspace.Target, rc RunContext) (Result, error) {
	logger.Debug().Str("state", stateInit).Msg("State transition")

	listing, err := workspace.BuildListing(target.Root(), r.listing)
	if err != nil {
		return Result{}, err
	}

	conv := conversation.New(conversation.UserText(buildSeed(r.task, target, listing)))
	result := Result{Usage: &TokenUsage{}, Conversation: conv}
	descriptors := r.toolExecutor.Descriptors()

	logger.Info().
		Int("listing_entries", listing.Entries).
		Bool("listing_truncated", listing.Truncated).
		Int("tools", len(descriptors)).
		Msg("Run started")

	execCtx := &toolexecutor.ExecutionContext{
		RunID:      tracing.GetRunID(ctx),
		WorkingDir: target.Root(),
		Timeout:    rc.ToolTimeout,
	}

	for turn := 1; turn <= rc.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if compacted, ok := r.compactIfNeeded(ctx, logger, conv, rc.TokenBudget); ok {
			conv = compacted
			result.Compactions++
			result.Conversation = conv
		}

		logger.Debug().Str("state", stateAwaitingModel).Int("turn", turn).Msg("State transition")

		reply, err := r.callWithRetry(ctx, logger, LLMRequest{
			Model:        r.model,
			Messages:     conv.Messages(),
			Tools:        descriptors,
			Temperature:  r.temperature,
			MaxTokens:    r.maxTokens,
			SystemPrompt: r.systemPrompt,
		}, rc.CallTimeout)
		if err != nil {
			return result, err
		}

		result.Turns = turn
		result.Usage.Add(reply.Usage)
		observability.RecordTurn(r.provider.Provider())

		invocations := reply.ToolInvocations()
		if len(invocations) == 0 {
			result.Response = reply.Text()
			result.Conversation = conv.Append(reply.Message())
			logger.Debug().Str("state", stateTerminated).Int("turn", turn).Msg("State transition")
			logger.Info().
				Int("turns", turn).
				Int("tool_calls", result.ToolCalls).
				Int("input_tokens", result.Usage.InputTokens).
				Int("output_tokens", result.Usage.OutputTokens).
				Msg("Run completed")
			return result, nil
		}

		if err := reply.Message().CheckInvocationIDs(); err != nil {
			logger.Error().Err(err).Int("turn", turn).Msg("Rejected provider reply")
			return result, &InvalidReplyError{Turn: turn, Err: err}
		}

		logger.Debug().
			Str("state", stateExecutingTools).
			Int("turn", turn).
			Int("invocations", len(invocations)).
			Msg("State transition")

		resultsMsg, err := r.executeTools(ctx, logger, invocations, execCtx)
		if err != nil {
			return result, fmt.Errorf("turn %d: %w", turn, err)
		}

		next := conv.Append(reply.Message(), resultsMsg)
		if err := next.Validate(); err != nil {
			return result, &InvalidReplyError{Turn: turn, Err: err}
		}
		conv = next
		result.ToolCalls += len(invocations)
		result.Conversation = conv
	}

	logger.Error().Int("max_turns", rc.MaxTurns).Msg("Turn budget exceeded")
	return result, &BudgetExceededError{MaxTurns: rc.MaxTurns}
}

// executeTools runs one turn's invocations and returns the user message
// carrying every result, in invocation order
func (r *Runner) executeTools(ctx context.Context, logger zerolog.Logger, invocations []conversation.ToolInvocation, execCtx *toolexecutor.ExecutionContext) (conversation.Message, error) {
	calls := make([]toolexecutor.Call, len(invocations))
	for i, inv := range invocations {
		calls[i] = toolexecutor.Call{ID: inv.ID, Name: inv.Name, Params: inv.Input}
		logger.Info().Str("tool", inv.Name).Str("call_id", inv.ID).Msg("Tool requested")
	}

	results, err := r.toolExecutor.ExecuteBatch(ctx, calls, execCtx)
	if err != nil {
		return conversation.Message{}, err
	}

	parts := make([]conversation.Part, len(results))
	for i, res := range results {
		parts[i] = conversation.ToolResult{
			InvocationID: invocations[i].ID,
			Payload:      res.Payload(),
			IsError:      !res.Success,
		}

		status := "success"
		if !res.Success {
			status = "failure"
			logger.Warn().Str("tool", invocations[i].Name).Str("call_id", invocations[i].ID).Str("error", res.Error).Msg("Tool returned an error")
		}
		observability.RecordToolAudit(ctx, invocations[i].Name, status, map[string]interface{}{
			"call_id":   invocations[i].ID,
			"truncated": res.Truncated,
		})
	}

	return conversation.NewMessage(conversation.RoleUser, parts...), nil
}

// compactIfNeeded replaces everything after the seed with a compacted
// summary once the estimate exceeds budget. ok is false when nothing changed.
func (r *Runner) compactIfNeeded(ctx context.Context, logger zerolog.Logger, conv conversation.Conversation, budget int) (conversation.Conversation, bool) {
	if r.compaction == nil || budget <= 0 || conv.Len() < 2 {
		return conv, false
	}

	before := conv.EstimateTokens()
	if before <= budget {
		return conv, false
	}

	transcript := conv.SuffixAfterSeed().Render()
	compacted := r.compaction.Compact(withCompactionTrigger(ctx, compactionTriggerThreshold), transcript)
	if compacted == transcript {
		logger.Warn().Int("tokens", before).Int("budget", budget).Msg("Compaction left transcript unchanged")
		return conv, false
	}

	next, err := conv.ReplaceAfterSeed(compacted)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to replace transcript after compaction")
		return conv, false
	}

	logger.Info().
		Int("tokens_before", before).
		Int("tokens_after", next.EstimateTokens()).
		Int("messages_before", conv.Len()).
		Msg("Conversation compacted")
	observability.RecordCompaction(compactionTriggerThreshold, "applied")

	return next, true
}

// callWithRetry calls the provider with exponential backoff on retryable errors
func (r *Runner) callWithRetry(ctx context.Context, logger zerolog.Logger, request LLMRequest, callTimeout time.Duration) (*Turn, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		reply, err := r.callOnce(ctx, request, callTimeout)
		if err == nil {
			return reply, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		lastErr = err
		statusCode := 0
		var svcErr *ServiceError
		if errors.As(err, &svcErr) {
			statusCode = svcErr.StatusCode
		}
		observability.RecordServiceError(r.provider.Provider(), statusCode)

		if !IsRetryableError(err) {
			logger.Error().Err(err).Int("status", statusCode).Msg("Provider call failed")
			return nil, err
		}
		if attempt == r.maxRetries {
			break
		}

		delay := r.retryDelay * time.Duration(1<<attempt)
		logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Retrying after error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", r.maxRetries, lastErr)
}

func (r *Runner) callOnce(ctx context.Context, request LLMRequest, callTimeout time.Duration) (*Turn, error) {
	if callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, callTimeout)
		defer cancel()
	}
	reply, err := r.provider.Call(ctx, request)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, fmt.Errorf("provider %s returned no reply", r.provider.Provider())
	}
	return reply, nil
}

// buildSeed renders the opening user message: task, listing, notes location
func buildSeed(task string, target *workspace.Target, listing workspace.Listing) string {
	var sb strings.Builder
	if task = strings.TrimSpace(task); task != "" {
		sb.WriteString(task)
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "Target directory: %s\n\n", target.Root())
	sb.WriteString("## Directory listing\n\n```\n")
	sb.WriteString(listing.String())
	sb.WriteString("\n```\n\n")
	fmt.Fprintf(&sb, "## Working notes\n\nKeep your working notes in %s with write_file. The file is deleted when you give your final answer.\n", target.NotesPath())
	return sb.String()
}
