package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aatrooox/localsync/internal/localsync/transfer"
	"github.com/aatrooox/localsync/internal/ui"
)

func (a *app) tables() []transfer.Table {
	users, _ := a.manager.Users()
	todos, _ := a.manager.Todos()
	return []transfer.Table{transfer.For(users), transfer.For(todos)}
}

var exportCmd = &cobra.Command{
	Use:     "export <file.jsonl>",
	GroupID: "data",
	Short:   "Export the local store to JSONL",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(cmd)
		defer a.Close()

		res, err := transfer.ExportFile(cmd.Context(), args[0], a.tables()...)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Exported %d records to %s\n", ui.RenderPass("✓"), res.Exported, args[0])
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file.jsonl>",
	GroupID: "data",
	Short:   "Import records from JSONL",
	Long: `Import records written by 'lsync export'.

Records keep their ids and timestamps and are pushed on the next sync.
Existing ids are skipped unless --overwrite is given, in which case a
newer imported copy replaces the local one.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		backup, _ := cmd.Flags().GetBool("backup")

		if backup && !dryRun {
			if _, err := os.Stat(appSettings.DBPath); err == nil {
				path, err := transfer.Backup(appSettings.DBPath, time.Now())
				if err != nil {
					fatal("%v", err)
				}
				fmt.Printf("Backup: %s\n", path)
			}
		}

		a := mustOpen(cmd)
		defer a.Close()

		res, err := transfer.ImportFile(cmd.Context(), args[0], transfer.Options{
			DryRun:    dryRun,
			Overwrite: overwrite,
		}, a.tables()...)
		if err != nil {
			fatal("%v", err)
		}

		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d, replaced %d, skipped %d\n", ui.RenderPass("✓"), verb, res.Imported, res.Replaced, res.Skipped)
		for _, msg := range res.Errors {
			fmt.Printf("   %s\n", ui.RenderWarn(msg))
		}
		if len(res.Errors) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "Preview without writing")
	importCmd.Flags().Bool("overwrite", false, "Replace existing records with newer imported copies")
	importCmd.Flags().Bool("backup", true, "Copy the database aside first")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
