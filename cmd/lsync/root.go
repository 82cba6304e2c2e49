package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aatrooox/localsync/internal/localsync/configstore"
	"github.com/aatrooox/localsync/internal/localsync/db"
	"github.com/aatrooox/localsync/internal/localsync/manager"
	"github.com/aatrooox/localsync/internal/logging"
	"github.com/aatrooox/localsync/internal/settings"
)

// consoleLogs marks commands that log to stderr even without --verbose.
const consoleLogs = "console-logs"

var (
	cfgFile string
	verbose bool

	appSettings *settings.Settings
	logs        *logging.Logging
)

var rootCmd = &cobra.Command{
	Use:   "lsync",
	Short: "Local-first data store with remote sync",
	Long: `lsync keeps users and todos in a local SQLite database and syncs them
with a remote REST service.

All reads and writes go to the local store first. Records changed since
their last sync are pushed to the remote; remote changes are pulled back,
and records edited on both sides are reported as conflicts.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := settings.New(cfgFile)
		for key, flag := range map[string]string{
			"db_path":  "db",
			"driver":   "driver",
			"log_file": "log-file",
		} {
			if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flag)); err != nil {
				return err
			}
		}

		s, err := settings.FromViper(v)
		if err != nil {
			return err
		}
		appSettings = s

		_, console := cmd.Annotations[consoleLogs]
		logs, err = logging.Setup(logging.Options{
			File:      s.LogFile,
			MaxSizeMB: s.LogMaxSizeMB,
			Quiet:     !verbose && !console,
		})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logs != nil {
			_ = logs.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Data Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: $HOME/.config/lsync/lsync.yaml)")
	rootCmd.PersistentFlags().String("db", "", "Local database path")
	rootCmd.PersistentFlags().String("driver", "", "SQLite driver: sqlite3 (ncruces) or sqlite (modernc)")
	rootCmd.PersistentFlags().String("log-file", "", "Log file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")
}

// app is an opened local store with its repository manager.
type app struct {
	db      *db.DB
	manager *manager.Manager
}

// openApp opens the local store and initializes the repositories on it.
func openApp(ctx context.Context, listeners ...configstore.Listener) (*app, error) {
	database, err := db.OpenDriver(appSettings.Driver, appSettings.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.InitSchema(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	m := manager.New(&manager.Options{
		Logger:         logs.Logger("lsync"),
		StampOnFailure: appSettings.StampOnFailure,
		Listeners:      listeners,
	})
	if err := m.Initialize(ctx, database); err != nil {
		database.Close()
		return nil, err
	}
	return &app{db: database, manager: m}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
}

// mustOpen is openApp for commands that cannot continue without the store.
func mustOpen(cmd *cobra.Command, listeners ...configstore.Listener) *app {
	a, err := openApp(cmd.Context(), listeners...)
	if err != nil {
		fatal("%v", err)
	}
	return a
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
