package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/OCAP2/drone-tracker/internal/config"
	"github.com/OCAP2/drone-tracker/internal/database"
	"github.com/spf13/cobra"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	ProgramName string = "drone_tracker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts runOptions

	root := &cobra.Command{
		Use:           "drone-tracker",
		Short:         "Fly a simulated drone and record its flights",
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracker(cmd, opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configDir, "config", ".", "directory containing "+config.FileName)
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "also write log records to stderr")

	run := &cobra.Command{
		Use:   "run",
		Short: "Start the interactive flight console (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracker(cmd, opts)
		},
	}

	root.AddCommand(run, newSessionsCmd())
	return root
}

func newSessionsCmd() *cobra.Command {
	var dbPath, dir string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List flight sessions stored in SQLite dumps",
		RunE: func(cmd *cobra.Command, args []string) error {
			var paths []string
			switch {
			case dbPath != "":
				paths = []string{dbPath}
			case dir != "":
				found, err := database.GetBackupDBPaths(dir)
				if err != nil {
					return fmt.Errorf("failed to list %s: %w", dir, err)
				}
				paths = found
			default:
				return fmt.Errorf("--db or --dir is required")
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FILE\tID\tDRONE\tSTART\tEND\tTICKS\tDISTANCE\tSAMPLES")
			for _, p := range paths {
				if err := printSessions(w, p); err != nil {
					return err
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite file written by the sqlite or postgres backend")
	cmd.Flags().StringVar(&dir, "dir", "", "directory whose .db files are listed")
	return cmd
}

func printSessions(w io.Writer, dbPath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("cannot open %s: %w", dbPath, err)
	}

	db, err := database.OpenSQLiteReadOnly(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", dbPath, err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	sessions, err := database.ListSessions(db)
	if err != nil {
		return fmt.Errorf("%s: %w", dbPath, err)
	}

	name := filepath.Base(dbPath)
	for _, s := range sessions {
		end := "-"
		if s.EndTime != nil {
			end = s.EndTime.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%.1fm\t%d\n",
			name, s.ID, s.DroneID, s.StartTime.Format(time.RFC3339), end, s.Ticks, s.Distance, s.Samples)
	}
	return nil
}
