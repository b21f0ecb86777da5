package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/audiomark-mcp/internal/config"
	"github.com/dshills/audiomark-mcp/internal/logging"
	"github.com/dshills/audiomark-mcp/internal/project"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// app carries state shared by every command once configuration is loaded
type app struct {
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
	logCloser  io.Closer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := rootCommand(a).ExecuteContext(ctx)
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// rootCommand builds the command tree
func rootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "audiomark",
		Short:         "Label audio datasets and serve them to assistants over MCP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: ./audiomark.yaml or the user config directory)")
	flags.Int("workers", 0, "number of hashing workers (0 = number of CPUs)")
	flags.StringSlice("suffixes", nil, "audio file suffixes to scan")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return a.setup(cmd)
	}

	root.AddCommand(
		initCommand(a),
		scanCommand(a),
		statusCommand(a),
		exportCommand(a),
		serveCommand(a),
		versionCommand(),
	)
	return root
}

// setup loads configuration and builds the logger
func (a *app) setup(cmd *cobra.Command) error {
	v := config.New()
	bindings := map[string]string{
		"log.level":     "log-level",
		"log.format":    "log-format",
		"watch.enabled": "watch-dataset",
	}
	for key, name := range bindings {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("error binding flag %s: %w", name, err)
			}
		}
	}

	cfg, err := config.Load(v, a.configFile, cmd.Flags())
	if err != nil {
		return err
	}

	// stdout is reserved for command output and the MCP protocol
	logger, closer, err := logging.New(cfg.Logging(), os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	a.cfg = cfg
	a.logger = logger
	a.logCloser = closer
	return nil
}

func (a *app) projectOptions() *project.Options {
	return &project.Options{
		Suffixes: a.cfg.Suffixes,
		Workers:  a.cfg.Workers,
		Logger:   a.logger,
	}
}

// loadProject opens a saved project; path falls back to the configured project.
// The project keeps its saved suffixes unless --suffixes is given.
func (a *app) loadProject(cmd *cobra.Command, path string) (*project.Project, error) {
	if path == "" {
		path = a.cfg.Project
	}
	if path == "" {
		return nil, errors.New("no project file given (pass a path or set project in the config)")
	}
	opts := a.projectOptions()
	if !cmd.Flags().Changed("suffixes") {
		opts.Suffixes = nil
	}
	return project.Load(cmd.Context(), path, opts)
}
