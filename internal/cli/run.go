package cli

import (
	"errors"
	"fmt"

	"github.com/harun/surveyor/internal/config"
	"github.com/harun/surveyor/internal/logger"
	"github.com/harun/surveyor/internal/observability"
	"github.com/harun/surveyor/pkg/agent"
	"github.com/harun/surveyor/pkg/coretools"
	"github.com/harun/surveyor/pkg/toolexecutor"
	"github.com/harun/surveyor/pkg/workspace"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// reportedError marks a failure that was already written to the log
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func (a *App) printError(err error) {
	var reported *reportedError
	if errors.As(err, &reported) {
		return
	}
	fmt.Fprintf(a.Stderr, "Error: %v\n", err)
}

// loadConfig merges the config file, environment and explicitly set flags
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	loader := config.NewLoader(opts.configFile)
	v := loader.Viper()

	bindings := map[string]string{
		"logging.level": "log-level",
		"provider":      "provider",
		"model":         "model",
		"max_turns":     "max-turns",
		"metrics_file":  "metrics-file",
	}
	for key, name := range bindings {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	return loader.Load()
}

// runSurvey validates the target and credential, then wires and runs one
// survey. Nothing touches the network before both checks pass.
func (a *App) runSurvey(cmd *cobra.Command, opts *options, targetPath string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logCfg := cfg.LoggerConfig()
	logCfg.Output = a.Stdout
	l, err := logger.New(logCfg)
	if err != nil {
		return err
	}
	defer l.Close()
	log := l.GetZerolog()

	fail := func(err error, msg string) error {
		log.Error().Err(err).Msg(msg)
		return &reportedError{err: err}
	}

	target, err := workspace.ResolveTarget(targetPath, cfg.NotesFile)
	if err != nil {
		return fail(err, "Invalid target directory")
	}
	if err := config.Validate(cfg); err != nil {
		return fail(err, "Invalid configuration")
	}

	if cfg.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.AuditFile); err != nil {
			return fail(err, "Failed to open audit log")
		}
		defer observability.GetAuditLogger().Close()
	}
	if cfg.MetricsFile != "" {
		defer func() {
			if err := observability.WriteTextfile(cfg.MetricsFile); err != nil {
				log.Warn().Err(err).Str("path", cfg.MetricsFile).Msg("Failed to write metrics file")
			}
		}()
	}

	runner, err := a.buildRunner(cfg, target, log)
	if err != nil {
		return fail(err, "Failed to initialize")
	}

	rc := agent.RunContext{
		TargetPath:  target.Root(),
		MaxTurns:    cfg.MaxTurns,
		TokenBudget: cfg.TokenBudget,
		CallTimeout: cfg.CallTimeout(),
		ToolTimeout: cfg.ToolTimeout(),
		NotesFile:   cfg.NotesFile,
	}

	log.Info().
		Str("target", target.Root()).
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Int("max_turns", cfg.MaxTurns).
		Msg("Starting survey")

	result, err := runner.Run(ctx, rc)
	if err != nil {
		return fail(err, "Survey failed")
	}

	log.Info().
		Str("run_id", result.RunID).
		Int("turns", result.Turns).
		Int("tool_calls", result.ToolCalls).
		Int("compactions", result.Compactions).
		Msg("Survey finished")

	fmt.Fprintln(a.Stdout, result.Response)
	return nil
}

// buildRunner constructs the provider, compactor, tool set and runner
func (a *App) buildRunner(cfg *config.Config, target *workspace.Target, log zerolog.Logger) (*agent.Runner, error) {
	provider, err := a.Providers.NewProvider(agent.AuthProfile{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	compactor, err := agent.NewCompactor(agent.CompactorConfig{
		Provider: provider,
		Model:    cfg.Model,
		Timeout:  cfg.CallTimeout(),
		Logger:   log.With().Str("component", "compactor").Logger(),
	})
	if err != nil {
		return nil, err
	}

	executor, err := toolexecutor.New(toolexecutor.Options{
		DefaultTimeout: cfg.ToolTimeout(),
		MaxOutputBytes: cfg.MaxOutputBytes,
		MaxParallel:    cfg.MaxParallelTools,
	}, coretools.New(coretools.Options{
		WorkspaceRoot: target.Root(),
		Compaction:    compactor,
		MaxReadBytes:  int64(cfg.MaxReadBytes),
		RipgrepPath:   cfg.RipgrepPath,
	})...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool executor: %w", err)
	}

	return agent.NewRunner(agent.Config{
		Provider:     provider,
		ToolExecutor: executor,
		Compaction:   compactor,
		Logger:       log.With().Str("component", "runner").Logger(),
		Model:        cfg.Model,
		SystemPrompt: cfg.Instructions.System,
		Task:         cfg.Instructions.Task,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
		MaxRetries:   retriesOrDisabled(cfg.MaxRetries),
		Listing: workspace.ListingOptions{
			MaxEntries: cfg.ListingMaxEntries,
			MaxDepth:   cfg.ListingMaxDepth,
		},
	})
}

// retriesOrDisabled maps a configured zero onto the runner's "disabled" value,
// since the runner reads zero as "use the default"
func retriesOrDisabled(n int) int {
	if n == 0 {
		return -1
	}
	return n
}
