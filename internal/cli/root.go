package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dshills/codescope/internal/commands"
	"github.com/dshills/codescope/internal/config"
	"github.com/dshills/codescope/internal/storage"
	"github.com/dshills/codescope/pkg/types"
)

// Set by the linker
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// env holds the persistent flags and the streams of one invocation
type env struct {
	stdout, stderr io.Writer

	root     string
	config   string
	output   string
	daemon   string
	logLevel string
}

// Execute runs the command line and returns the process exit code. Errors
// are written to stderr in the selected output format.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	e := &env{stdout: stdout, stderr: stderr}
	cmd := newRootCommand(e)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		format := e.output
		if !commands.ValidFormat(format) {
			format = commands.FormatJSON
		}
		_ = commands.RenderError(stderr, format, err)
		return 1
	}
	return 0
}

func newRootCommand(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "codescope",
		Short: "Index a source tree and search it by text, symbols, meaning and history",
		Version: fmt.Sprintf("%s (built %s, storage %s/%s, vector extension %v)",
			Version, BuildTime, storage.BuildMode, storage.DriverName, storage.VectorExtensionAvailable),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !commands.ValidFormat(e.output) {
				return fmt.Errorf("%w: --output must be json or text, got %q", types.ErrInvalidArgument, e.output)
			}
			return nil
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", types.ErrInvalidArgument, err)
	})

	flags := root.PersistentFlags()
	flags.StringVar(&e.root, "root", "", "root directory to index (default $CODESCOPE_ROOT, default_root from config, or the working directory)")
	flags.StringVar(&e.config, "config", "", "configuration file (default <root>/"+config.FileName+")")
	flags.StringVarP(&e.output, "output", "o", commands.FormatJSON, "output format: json or text")
	flags.StringVar(&e.daemon, "daemon", "", "forward commands to the daemon listening on host:port")
	flags.StringVar(&e.logLevel, "log-level", "", "log level: debug, info, warn or error")

	for _, c := range commands.Commands() {
		root.AddCommand(commandFor(e, c))
	}
	root.AddCommand(daemonCommand(e), statusCommand(e), mcpCommand(e))
	return root
}

// load reads the configuration and resolves the root. A --config file wins;
// otherwise the root's own config file is read once the root is known.
func (e *env) load() (*config.Config, string, error) {
	cfg, err := config.Load(e.config)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", types.ErrInvalidArgument, err)
	}
	root, err := cfg.ResolveRoot(e.root)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", types.ErrIO, err)
	}
	if e.config == "" {
		if cfg, err = config.LoadForRoot(root); err != nil {
			return nil, "", fmt.Errorf("%w: %v", types.ErrInvalidArgument, err)
		}
	}
	cfg.DefaultRoot = root
	if e.logLevel != "" {
		cfg.LogLevel = e.logLevel
	}
	return cfg, root, nil
}

func (e *env) logger(cfg *config.Config) *slog.Logger {
	return config.NewLogger(e.stderr, cfg.LogLevel)
}

// app loads the configuration and builds the command layer
func (e *env) app(ctx context.Context, cacheQueries bool) (*commands.App, *config.Config, error) {
	cfg, _, err := e.load()
	if err != nil {
		return nil, nil, err
	}
	a, err := commands.New(ctx, commands.Options{
		Config:       cfg,
		Logger:       e.logger(cfg),
		CacheQueries: cacheQueries,
	})
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}
