package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aatrooox/localsync/internal/localsync/schema"
	lsync "github.com/aatrooox/localsync/internal/localsync/sync"
	"github.com/aatrooox/localsync/internal/ui"
)

var resolveCmd = &cobra.Command{
	Use:     "resolve",
	GroupID: "sync",
	Short:   "Pull remote changes and resolve conflicts",
	Long: `Pull remote changes, then resolve every conflict found.

Strategies:
  lww     keep whichever side was updated last (default)
  local   keep the local record; it is pushed on the next sync
  remote  overwrite the local record with the remote one

Use --dry-run to list conflicts without resolving them.`,
	Run: func(cmd *cobra.Command, args []string) {
		strategy, _ := cmd.Flags().GetString("strategy")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		ctx := cmd.Context()

		a := mustOpen(cmd)
		defer a.Close()

		var conflicts []schema.Conflict
		for _, name := range a.manager.Names() {
			r, _ := a.manager.Runner(name)
			res := r.Pull(ctx)
			if !res.Success {
				fmt.Println(ui.RenderResult(name, res))
			}
			conflicts = append(conflicts, res.Conflicts...)
		}

		if len(conflicts) == 0 {
			fmt.Printf("%s No conflicts\n", ui.RenderPass("✓"))
			return
		}
		fmt.Println(ui.ConflictTable(conflicts, ui.TerminalWidth(120)/5))
		if dryRun {
			return
		}

		out, err := a.manager.ResolveConflictsWith(ctx, conflicts, lsync.Strategy(strategy))
		for i, c := range conflicts {
			fmt.Printf("%s %s: %s\n", c.Table, c.ID, out[i])
		}
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println(ui.RenderMuted("Run 'lsync sync' to push records kept locally"))
	},
}

func init() {
	resolveCmd.Flags().StringP("strategy", "s", string(lsync.StrategyLastWriteWins), "Resolution strategy: lww, local or remote")
	resolveCmd.Flags().Bool("dry-run", false, "List conflicts without resolving them")
	rootCmd.AddCommand(resolveCmd)
}
