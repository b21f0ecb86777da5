package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/audiomark-mcp/internal/expander"
	"github.com/dshills/audiomark-mcp/internal/mcp"
	"github.com/dshills/audiomark-mcp/internal/project"
	"github.com/dshills/audiomark-mcp/internal/storage"
	"github.com/dshills/audiomark-mcp/internal/watcher"
)

func initCommand(a *app) *cobra.Command {
	var description, output string

	cmd := &cobra.Command{
		Use:   "init NAME DATASET_DIR",
		Short: "Create a project over a dataset directory and save it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := project.New(cmd.Context(), args[0], description, args[1], a.projectOptions())
			if err != nil {
				return err
			}
			if output == "" {
				output = "."
			}
			path, err := p.Save(cmd.Context(), output)
			if err != nil {
				return err
			}

			info := p.Info()
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s with %d entries\n", path, info.Entries)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "project description")
	cmd.Flags().StringVarP(&output, "output", "o", "", "project file or directory (default: current directory)")
	return cmd
}

func scanCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [PROJECT]",
		Short: "Rescan the dataset of a project and save the reconciled entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadProject(cmd, optionalArg(args))
			if err != nil {
				return err
			}
			// Load already reconciled against the current dataset
			report, err := p.Rescan(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := p.Save(cmd.Context(), ""); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scanned %d files (%d skipped, %d duplicates) in %s\n",
				report.Scan.FilesScanned, report.Scan.FilesSkipped, len(report.Duplicates), report.Scan.Duration)
			for _, d := range report.Duplicates {
				fmt.Fprintf(out, "  duplicate: %s (same content as %s)\n", d.RelativePath, d.KeptPath)
			}
			printInfo(out, p.Info())
			return nil
		},
	}
}

func statusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status [PROJECT]",
		Short: "Show the contents of a project file without touching the dataset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := optionalArg(args)
			if path == "" {
				path = a.cfg.Project
			}
			if path == "" {
				return errors.New("no project file given")
			}

			db, err := storage.OpenExisting(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			status, err := db.GetStatus(cmd.Context())
			if err != nil {
				return err
			}
			settings, err := db.GetSettings(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Project:\t%s\n", status.Project.Name)
			if status.Project.Description != "" {
				fmt.Fprintf(w, "Description:\t%s\n", status.Project.Description)
			}
			fmt.Fprintf(w, "Dataset:\t%s\n", status.Project.DatasetRoot)
			fmt.Fprintf(w, "Format:\t%s (schema %s)\n", status.Project.FormatVersion, status.SchemaVersion)
			fmt.Fprintf(w, "Entries:\t%d (%d labeled, %d corrupted)\n",
				status.EntriesCount, status.LabeledCount, status.CorruptedCount)
			fmt.Fprintf(w, "Labels:\t%d\n", status.LabelsCount)
			fmt.Fprintf(w, "Iteration:\t%s / %s / %s, last index %d\n",
				settings.Filter, settings.Order, settings.Index, settings.LastIdx)
			fmt.Fprintf(w, "Min duration:\t%gms\n", settings.MinDurationMs)
			fmt.Fprintf(w, "File size:\t%.1f KB\n", status.FileSizeKB)
			return w.Flush()
		},
	}
}

func exportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export PROJECT OUTPUT",
		Short: "Export labels as CSV, or JSON when OUTPUT ends in .json",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadProject(cmd, args[0])
			if err != nil {
				return err
			}
			path, err := p.ExportMarkup(args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d labels to %s\n", p.Info().Labels, path)
			return nil
		},
	}
}

func serveCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [PROJECT]",
		Short: "Serve a project to an MCP client over stdio",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := a.loadProject(cmd, optionalArg(args))
			if err != nil {
				return err
			}

			exp, err := expander.NewFromConfig(a.cfg.Expander, a.logger)
			if errors.Is(err, expander.ErrNoProviderEnabled) {
				a.logger.Info("text expansion disabled", "reason", err)
				exp = nil
			} else if err != nil {
				return err
			}

			server, err := mcp.NewServer(p, &mcp.Options{Expander: exp, Logger: a.logger})
			if err != nil {
				return err
			}

			if a.cfg.Watch.Enabled {
				w, err := watcher.New(p.Root(), server.HandleChanges, &watcher.Options{
					Debounce: a.cfg.Watch.Debounce,
					Suffixes: p.Suffixes(),
					Logger:   a.logger,
				})
				if err == nil {
					err = w.Start(ctx)
				}
				if err != nil {
					a.logger.Warn("dataset watcher not started", "root", p.Root(), "error", err)
				} else {
					defer func() { _ = w.Stop() }()
				}
			}

			a.logger.Info("MCP server ready, listening on stdio",
				"version", version, "project", p.Name(), "entries", p.Store().Len())
			err = server.Serve(ctx)
			if errors.Is(err, context.Canceled) {
				a.logger.Info("server stopped")
				return nil
			}
			return err
		},
	}
	cmd.Flags().String("project", "", "project file to serve")
	cmd.Flags().Bool("watch-dataset", false, "rescan when files under the dataset directory change")
	return cmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "audiomark MCP server\n")
			fmt.Fprintf(out, "Version: %s\n", version)
			fmt.Fprintf(out, "Build Time: %s\n", buildTime)
			fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
			fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
			fmt.Fprintf(out, "Project Format: %s\n", storage.CurrentSchemaVersion)
		},
	}
}

func printInfo(out io.Writer, info project.Info) {
	fmt.Fprintf(out, "%s: %d entries, %d labeled, %d corrupted, %d labels\n",
		info.Name, info.Entries, info.Labeled, info.Corrupted, info.Labels)
}

func optionalArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
