package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aatrooox/localsync/internal/localsync/repo"
	"github.com/aatrooox/localsync/internal/localsync/schema"
	"github.com/aatrooox/localsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Sync local changes with the remote",
	Long: `Run a sync pass: push records changed since their last sync, then pull
remote changes.

Sync only runs when remote sync is enabled and content sync is on (see
'lsync config set'). Conflicts are reported, not resolved; use
'lsync resolve' for that.

Examples:
  lsync sync                   # Push and pull every table
  lsync sync --table todos     # Only todos
  lsync sync --push            # Push only
  lsync sync --json            # Machine-readable results`,
	Run: func(cmd *cobra.Command, args []string) {
		table, _ := cmd.Flags().GetString("table")
		pushOnly, _ := cmd.Flags().GetBool("push")
		pullOnly, _ := cmd.Flags().GetBool("pull")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		if pushOnly && pullOnly {
			fatal("--push and --pull are mutually exclusive")
		}

		a := mustOpen(cmd)
		defer a.Close()

		results, err := runSync(cmd.Context(), a, table, pushOnly, pullOnly)
		if err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			printJSON(results)
		} else {
			fmt.Println(ui.RenderResults(results))
		}

		for _, res := range results {
			if !res.Success {
				os.Exit(1)
			}
		}
	},
}

// runSync runs the requested phase over one table or all of them.
func runSync(ctx context.Context, a *app, table string, pushOnly, pullOnly bool) (map[string]*schema.SyncResult, error) {
	if table == "" && !pushOnly && !pullOnly {
		return a.manager.SyncAll(ctx)
	}

	names := a.manager.Names()
	if table != "" {
		names = []string{table}
	}

	results := make(map[string]*schema.SyncResult, len(names))
	for _, name := range names {
		r, err := a.manager.Runner(name)
		if err != nil {
			return nil, err
		}
		switch {
		case pushOnly:
			results[name] = r.Push(ctx)
		case pullOnly:
			results[name] = r.Pull(ctx)
		default:
			results[name] = r.Sync(ctx)
		}
	}
	return results, nil
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show local record counts and pending changes",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustOpen(cmd)
		defer a.Close()

		users, _ := a.manager.Users()
		todos, _ := a.manager.Todos()
		config, _ := a.manager.Config()

		type counter interface {
			Name() string
			CountLocal(ctx context.Context, filter repo.Filter) (int, error)
			CountDirty(ctx context.Context) (int, error)
		}

		rows := [][]string{}
		for _, r := range []counter{users, todos} {
			total, err := r.CountLocal(ctx, nil)
			if err != nil {
				fatal("failed to count %s: %v", r.Name(), err)
			}
			dirty, err := r.CountDirty(ctx)
			if err != nil {
				fatal("failed to count pending %s: %v", r.Name(), err)
			}
			rows = append(rows, []string{r.Name(), strconv.Itoa(total), strconv.Itoa(dirty)})
		}

		cfg := config.RemoteConfig()
		state := ui.RenderWarn("disabled")
		if cfg.SyncEnabled() {
			state = ui.RenderPass("enabled")
		} else if cfg.Enabled {
			state = ui.RenderWarn("content sync off")
		}

		fmt.Printf("\n%s lsync status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Database: %s (%s)\n", a.db.Path(), a.db.Driver())
		fmt.Printf("Remote:   %s %s\n", state, ui.RenderMuted(cfg.BaseURL))
		fmt.Printf("Interval: %v\n\n", cfg.SyncInterval())
		fmt.Println(ui.Table([]string{"TABLE", "RECORDS", "PENDING"}, rows))
	},
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("failed to encode JSON: %v", err)
	}
}

func init() {
	syncCmd.Flags().StringP("table", "t", "", "Sync only this table (users, todos)")
	syncCmd.Flags().Bool("push", false, "Only push local changes")
	syncCmd.Flags().Bool("pull", false, "Only pull remote changes")
	syncCmd.Flags().Bool("json", false, "Output results as JSON")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}
