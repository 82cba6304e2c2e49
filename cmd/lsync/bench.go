package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/aatrooox/localsync/internal/localsync/loadtest"
	"github.com/aatrooox/localsync/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "advanced",
	Short:   "Measure local store latency under concurrent clients",
	Long: `Run a load test against a scratch database.

The database is created in a temporary directory and populated with the
given number of todos. Concurrent clients then mix listings, dirty scans
and local updates. With --verify, readers also check that listings never
show deleted records while a writer churns the table.

Examples:
  lsync bench
  lsync bench --clients 50 --todos 5000 --ops 20
  lsync bench --driver sqlite --json`,
	Run: runBench,
}

func init() {
	benchCmd.Flags().Int("clients", 20, "Number of concurrent clients")
	benchCmd.Flags().Int("todos", 1000, "Number of todos to populate")
	benchCmd.Flags().Int("ops", 10, "Operations per client")
	benchCmd.Flags().Float64("synced", 0.5, "Fraction of todos marked synced (0.0-1.0)")
	benchCmd.Flags().Bool("verify", false, "Also run the consistency check")
	benchCmd.Flags().Bool("json", false, "Output results as JSON")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) {
	clients, _ := cmd.Flags().GetInt("clients")
	todos, _ := cmd.Flags().GetInt("todos")
	ops, _ := cmd.Flags().GetInt("ops")
	synced, _ := cmd.Flags().GetFloat64("synced")
	verify, _ := cmd.Flags().GetBool("verify")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if clients <= 0 || todos <= 0 || ops <= 0 {
		fatal("--clients, --todos and --ops must be positive")
	}
	if synced < 0 || synced > 1 {
		fatal("--synced must be between 0.0 and 1.0")
	}

	dir, err := os.MkdirTemp("", "lsync-bench-")
	if err != nil {
		fatal("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	ctx := cmd.Context()
	start := time.Now()
	ts, err := loadtest.CreateTestStore(ctx, appSettings.Driver, filepath.Join(dir, "bench.db"), todos, synced)
	if err != nil {
		fatal("%v", err)
	}
	defer ts.Close()
	setup := time.Since(start)

	start = time.Now()
	stats, err := ts.RunConcurrentClients(ctx, clients, ops)
	if err != nil {
		fatal("%v", err)
	}
	elapsed := time.Since(start)

	var verifyErr error
	if verify {
		verifyErr = ts.VerifyConsistency(ctx, 4, 2*time.Second)
	}

	if jsonOutput {
		out := map[string]any{
			"driver":     ts.DB.Driver(),
			"clients":    clients,
			"todos":      todos,
			"setup_ms":   setup.Milliseconds(),
			"elapsed_ms": elapsed.Milliseconds(),
			"stats":      stats,
		}
		if verify {
			out["consistent"] = verifyErr == nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fatal("%v", err)
		}
	} else {
		fmt.Printf("\n%s Load test (%s)\n\n", ui.RenderAccent("⚡"), ts.DB.Driver())
		fmt.Printf("  Clients: %d   Todos: %d   Setup: %v   Elapsed: %v\n\n", clients, todos, setup.Round(time.Millisecond), elapsed.Round(time.Millisecond))
		stats.PrintStats(os.Stdout)
		if verify {
			fmt.Println()
			if verifyErr == nil {
				fmt.Printf("%s Consistency check passed\n", ui.RenderPass("✓"))
			} else {
				fmt.Printf("%s Consistency check failed: %v\n", ui.RenderFail("✗"), verifyErr)
			}
		}
	}

	if verifyErr != nil || stats.Errors > 0 {
		ts.Close()
		os.RemoveAll(dir)
		os.Exit(1)
	}
}
