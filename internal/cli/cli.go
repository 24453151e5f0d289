package cli

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/specialistvlad/valuegrid/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Command selects what the application does once configured.
type Command int

const (
	CommandRun Command = iota + 1
	CommandCacheServer
)

// Invocation is a parsed command line.
type Invocation struct {
	Command Command
	Config  *app.Config
}

type globalFlags struct {
	logFormat       string
	logLevel        string
	healthcheckPort int
	profileServer   string
}

// Parse processes command-line arguments. It returns the parsed invocation,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Invocation, bool, error) {
	slog.Debug("CLI parser started.")

	var (
		g   globalFlags
		inv *Invocation
	)
	root := &cobra.Command{
		Use:   "valuegrid",
		Short: "valuegrid - a dependency-graph calculation engine for portfolio analytics.",
		Long: `valuegrid compiles declarative value requirements into a dependency graph of
functions, executes it on a pool of calculation nodes and reports the results.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(output)
	root.SetErr(output)

	pf := root.PersistentFlags()
	pf.StringVar(&g.logFormat, "log-format", "json", "Log output format. Options: 'text' or 'json'.")
	pf.StringVar(&g.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.IntVar(&g.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	pf.StringVar(&g.profileServer, "profile-server", "", "Address of a pyroscope server for continuous profiling. Empty is disabled.")

	root.AddCommand(newRunCommand(&g, &inv), newCacheServerCommand(&g, &inv))

	if err := root.Execute(); err != nil {
		if exitErr, ok := err.(*ExitError); ok {
			return nil, false, exitErr
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if inv == nil {
		// Help was printed.
		return nil, true, nil
	}
	slog.Debug("CLI parser finished successfully.", "command", inv.Command)
	return inv, false, nil
}

func newRunCommand(g *globalFlags, inv **Invocation) *cobra.Command {
	var (
		paths    []string
		view     string
		cycles   int
		interval time.Duration
		nodes    int
		workers  int
	)
	cmd := &cobra.Command{
		Use:   "run [CONFIG_PATH...]",
		Short: "Compute a view for one or more cycles and print the results.",
		Long: `Compute a view for one or more cycles and print the results.

CONFIG_PATH is a single .hcl file or a directory searched recursively for .hcl
files. Engine settings, reference data, market data and views may be split
across any number of files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := newConfig(g, app.Config{
				ConfigPaths:      append(paths, args...),
				View:             view,
				Cycles:           cycles,
				CycleInterval:    interval,
				CalculationNodes: nodes,
				NodeConcurrency:  workers,
			})
			if err != nil {
				return err
			}
			*inv = &Invocation{Command: CommandRun, Config: cfg}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringSliceVarP(&paths, "config", "c", nil, "Path to a configuration file or directory. May be repeated.")
	f.StringVar(&view, "view", "", "Name of the view to compute. Optional when exactly one view is configured.")
	f.IntVar(&cycles, "cycles", 1, "Number of cycles to run.")
	f.DurationVar(&interval, "cycle-interval", 0, "Pause between cycles.")
	f.IntVar(&nodes, "nodes", 0, "Number of calculation nodes. 0 keeps the configured value.")
	f.IntVar(&workers, "workers", 0, "Concurrent jobs per calculation node. 0 keeps the configured value.")
	return cmd
}

func newCacheServerCommand(g *globalFlags, inv **Invocation) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "cache-server",
		Short: "Serve the shared remote tier of the view computation cache.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := newConfig(g, app.Config{CacheAddr: listen})
			if err != nil {
				return err
			}
			*inv = &Invocation{Command: CommandCacheServer, Config: cfg}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":7777", "Address the cache server listens on.")
	return cmd
}

func newConfig(g *globalFlags, cfg app.Config) (*app.Config, error) {
	cfg.LogFormat = strings.ToLower(g.logFormat)
	cfg.LogLevel = strings.ToLower(g.logLevel)
	cfg.HealthcheckPort = g.healthcheckPort
	cfg.ProfileServer = g.profileServer

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return config, nil
}
