package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/harun/surveyor/pkg/agent"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

// App holds the collaborators the command is wired with. Tests swap the
// provider creator and output writers.
type App struct {
	Providers agent.ProviderCreator
	Stdout    io.Writer
	Stderr    io.Writer
}

// NewApp returns an App wired to the real providers and process output
func NewApp() *App {
	return &App{
		Providers: &agent.ProviderFactory{},
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}
}

type options struct {
	configFile  string
	logLevel    string
	provider    string
	model       string
	maxTurns    int
	metricsFile string
}

// NewRootCmd builds the surveyor command
func (a *App) NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "surveyor [flags] <absolute-dir>",
		Short: "Surveyor - let a language model explore a directory with host-side tools",
		Long: `Surveyor points a remote language model at one directory and runs a
multi-turn exchange in which the model may read, write, list, search and run
commands inside that directory until it returns a final answer.

The provider credential is read from ANTHROPIC_API_KEY (or OPENAI_API_KEY for
the openai provider). Any config key can be overridden with SURVEYOR_<KEY>.`,
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSurvey(cmd, opts, args[0])
		},
	}

	cmd.SetOut(a.Stdout)
	cmd.SetErr(a.Stderr)

	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", "", "JSON config file")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.provider, "provider", "anthropic", "remote service (anthropic, openai)")
	flags.StringVar(&opts.model, "model", "", "model name (default depends on the provider)")
	flags.IntVar(&opts.maxTurns, "max-turns", 50, "maximum provider turns before the run fails")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file at exit")

	cmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)

	return cmd
}

// Execute runs the command with args and returns the process exit code
func (a *App) Execute(ctx context.Context, args []string) int {
	cmd := a.NewRootCmd()
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		a.printError(err)
		return 1
	}
	return 0
}

// Execute runs surveyor against os.Args. SIGINT and SIGTERM cancel the run.
// This is called by main.main().
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewApp().Execute(ctx, os.Args[1:])
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}
