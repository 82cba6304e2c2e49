package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aatrooox/localsync/internal/localsync/repo"
	"github.com/aatrooox/localsync/internal/localsync/schema"
	"github.com/aatrooox/localsync/internal/ui"
)

var userCmd = &cobra.Command{
	Use:     "user",
	GroupID: "data",
	Short:   "Manage users in the local store",
}

var userAddCmd = &cobra.Command{
	Use:     "add <name>",
	Short:   "Add a user",
	Example: `  lsync user add "Ada Lovelace" --email ada@example.com`,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		email, _ := cmd.Flags().GetString("email")
		avatar, _ := cmd.Flags().GetString("avatar")

		user := &schema.User{Name: args[0], Email: email}
		if avatar != "" {
			user.Avatar = &avatar
		}
		if err := user.Validate(); err != nil {
			fatal("%v", err)
		}

		a := mustOpen(cmd)
		defer a.Close()
		users, _ := a.manager.Users()

		saved, err := users.SaveLocal(cmd.Context(), user)
		if err != nil {
			fatal("failed to save user: %v", err)
		}
		fmt.Printf("%s Added %s\n", ui.RenderPass("✓"), saved.ID)
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Run: func(cmd *cobra.Command, args []string) {
		search, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		a := mustOpen(cmd)
		defer a.Close()
		users, _ := a.manager.Users()

		list, err := users.ListLocal(cmd.Context(), repo.UserFilter{Search: search}, repo.Page{Limit: limit})
		if err != nil {
			fatal("failed to list users: %v", err)
		}
		if jsonOutput {
			printJSON(list)
			return
		}
		if len(list) == 0 {
			fmt.Println("No users")
			return
		}

		rows := make([][]string, 0, len(list))
		for _, u := range list {
			rows = append(rows, []string{u.ID, u.Name, u.Email, syncState(&u.Syncable)})
		}
		fmt.Println(ui.Table([]string{"ID", "NAME", "EMAIL", "SYNC"}, rows))
	},
}

func init() {
	userAddCmd.Flags().StringP("email", "e", "", "Email address")
	userAddCmd.Flags().String("avatar", "", "Avatar URL")

	userListCmd.Flags().StringP("search", "s", "", "Match name or email")
	userListCmd.Flags().Int("limit", repo.DefaultLimit, "Maximum results")
	userListCmd.Flags().Bool("json", false, "Output as JSON")

	userCmd.AddCommand(userAddCmd, userListCmd)
	rootCmd.AddCommand(userCmd)
}
