package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aatrooox/localsync/internal/localsync/daemon"
	"github.com/aatrooox/localsync/internal/localsync/dashboard"
	"github.com/aatrooox/localsync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:         "daemon",
	GroupID:     "sync",
	Short:       "Run the sync daemon (foreground)",
	Annotations: map[string]string{consoleLogs: "true"},
	Long: `Run sync passes in the foreground until interrupted.

The daemon will:
  1. Run a pass on startup
  2. Run a pass every sync interval from the remote config
  3. Run a pass shortly after another lsync process writes to the database
  4. Broadcast results, conflicts and config changes on the dashboard

Dashboard messages (ws://localhost:PORT/ws):
- status: latest result per table, sent on connect
- sync_result: outcome of one table's pass
- conflict: a record edited on both sides
- config_update: the remote config changed`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("dashboard-port")
		if !cmd.Flags().Changed("dashboard-port") {
			port = appSettings.DashboardPort
		}
		noDashboard, _ := cmd.Flags().GetBool("no-dashboard")

		var handler *dashboard.Handler
		var server *dashboard.Server
		if !noDashboard {
			server = dashboard.NewServer(&dashboard.Config{
				Port:   port,
				Logger: logs.Logger("dashboard"),
			})
			handler = dashboard.NewHandler(server, logs.Logger("dashboard"))
		}

		var a *app
		if handler != nil {
			a = mustOpen(cmd, handler)
		} else {
			a = mustOpen(cmd)
		}
		defer a.Close()

		if server != nil {
			if err := server.Start(); err != nil {
				fatal("failed to start dashboard: %v", err)
			}
			defer server.Stop()
		}

		d, err := daemon.NewWithConfig(a.manager, &daemon.Config{
			DefaultInterval: appSettings.SyncInterval,
			WatchPath:       a.db.Path(),
			Logger:          logs.Logger("daemon"),
		})
		if err != nil {
			fatal("failed to create daemon: %v", err)
		}
		config, _ := a.manager.Config()
		d.SetIntervalSource(config)
		if handler != nil {
			d.SetPublisher(handler)
		}

		fmt.Printf("%s Starting sync daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Database: %s\n", a.db.Path())
		fmt.Printf("   Interval: %v\n", d.Interval())
		if server != nil {
			fmt.Printf("   Dashboard: http://%s (ws://%s/ws)\n", server.GetAddr(), server.GetAddr())
		}
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := d.Start(cmd.Context()); err != nil {
			fatal("daemon stopped with error: %v", err)
		}
	},
}

func init() {
	daemonCmd.Flags().IntP("dashboard-port", "p", 8080, "Dashboard port (default from settings)")
	daemonCmd.Flags().Bool("no-dashboard", false, "Do not start the dashboard")
	rootCmd.AddCommand(daemonCmd)
}
