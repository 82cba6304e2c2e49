package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/aatrooox/localsync/internal/localsync/repo"
	"github.com/aatrooox/localsync/internal/localsync/schema"
	"github.com/aatrooox/localsync/internal/ui"
)

var todoCmd = &cobra.Command{
	Use:     "todo",
	GroupID: "data",
	Short:   "Manage todos in the local store",
}

var dueParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDue accepts a date (2006-01-02), an RFC 3339 time or a natural
// language expression such as "next friday" or "in 3 days".
func parseDue(text string, base time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, errors.New("empty due date")
	}
	if t, err := time.ParseInLocation("2006-01-02", text, base.Location()); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}

	r, err := dueParser.Parse(text, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse due date %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand due date %q", text)
	}
	return r.Time, nil
}

// parsePriority accepts high/medium/low or 0-2.
func parsePriority(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "h":
		return schema.PriorityHigh, nil
	case "medium", "med", "m", "":
		return schema.PriorityMedium, nil
	case "low", "l":
		return schema.PriorityLow, nil
	}
	p, err := strconv.Atoi(s)
	if err != nil || p < schema.PriorityHigh || p > schema.PriorityLow {
		return 0, fmt.Errorf("invalid priority %q (want high, medium, low or 0-2)", s)
	}
	return p, nil
}

func priorityName(p int) string {
	switch p {
	case schema.PriorityHigh:
		return ui.RenderFail("high")
	case schema.PriorityMedium:
		return "medium"
	case schema.PriorityLow:
		return ui.RenderMuted("low")
	default:
		return strconv.Itoa(p)
	}
}

func syncState(m *schema.Syncable) string {
	switch {
	case m.IsDirty() && m.HasRemote():
		return ui.RenderWarn("modified")
	case m.IsDirty():
		return ui.RenderWarn("new")
	default:
		return ui.RenderPass("synced")
	}
}

var todoAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a todo",
	Example: `  lsync todo add "Write report" --priority high --due "next friday"
  lsync todo add "Renew passport" --due 2025-01-31 --user <user-id>`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		description, _ := cmd.Flags().GetString("description")
		priority, _ := cmd.Flags().GetString("priority")
		due, _ := cmd.Flags().GetString("due")
		userID, _ := cmd.Flags().GetString("user")

		todo := &schema.Todo{
			Title:  strings.Join(args, " "),
			UserID: userID,
		}
		if description != "" {
			todo.Description = &description
		}
		p, err := parsePriority(priority)
		if err != nil {
			fatal("%v", err)
		}
		todo.Priority = p
		if due != "" {
			d, err := parseDue(due, time.Now())
			if err != nil {
				fatal("%v", err)
			}
			todo.DueDate = &d
		}
		if err := todo.Validate(); err != nil {
			fatal("%v", err)
		}

		a := mustOpen(cmd)
		defer a.Close()
		todos, _ := a.manager.Todos()

		saved, err := todos.SaveLocal(cmd.Context(), todo)
		if err != nil {
			fatal("failed to save todo: %v", err)
		}
		fmt.Printf("%s Added %s\n", ui.RenderPass("✓"), saved.ID)
	},
}

var todoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List todos",
	Run: func(cmd *cobra.Command, args []string) {
		filter := repo.TodoFilter{}
		filter.UserID, _ = cmd.Flags().GetString("user")
		filter.Search, _ = cmd.Flags().GetString("search")
		if cmd.Flags().Changed("completed") {
			c, _ := cmd.Flags().GetBool("completed")
			filter.Completed = &c
		}
		if cmd.Flags().Changed("priority") {
			s, _ := cmd.Flags().GetString("priority")
			p, err := parsePriority(s)
			if err != nil {
				fatal("%v", err)
			}
			filter.Priority = &p
		}
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		a := mustOpen(cmd)
		defer a.Close()
		todos, _ := a.manager.Todos()

		list, err := todos.ListLocal(cmd.Context(), filter, repo.Page{Limit: limit, Offset: offset})
		if err != nil {
			fatal("failed to list todos: %v", err)
		}
		if jsonOutput {
			printJSON(list)
			return
		}
		if len(list) == 0 {
			fmt.Println("No todos")
			return
		}

		rows := make([][]string, 0, len(list))
		for _, t := range list {
			done := " "
			if t.Completed {
				done = ui.RenderPass("✓")
			}
			dueStr := ""
			if t.DueDate != nil {
				dueStr = t.DueDate.Local().Format("2006-01-02")
			}
			rows = append(rows, []string{
				t.ID, done, ui.Truncate(t.Title, 40), priorityName(t.Priority), dueStr, syncState(&t.Syncable),
			})
		}
		fmt.Println(ui.Table([]string{"ID", "DONE", "TITLE", "PRIORITY", "DUE", "SYNC"}, rows))
	},
}

var todoDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a todo completed",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		undo, _ := cmd.Flags().GetBool("undo")

		a := mustOpen(cmd)
		defer a.Close()
		todos, _ := a.manager.Todos()

		if _, err := todos.UpdateLocal(cmd.Context(), args[0], func(t *schema.Todo) {
			t.Completed = !undo
		}); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Updated %s\n", ui.RenderPass("✓"), args[0])
	},
}

var todoRmCmd = &cobra.Command{
	Use:   "rm <id>...",
	Short: "Delete todos",
	Long:  `Delete todos. Deletion is soft: the record is hidden locally and the delete is pushed on the next sync.`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(cmd)
		defer a.Close()
		todos, _ := a.manager.Todos()

		for _, id := range args {
			if err := todos.DeleteLocal(cmd.Context(), id); err != nil {
				fatal("failed to delete %s: %v", id, err)
			}
			fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), id)
		}
	},
}

func init() {
	todoAddCmd.Flags().StringP("description", "d", "", "Description")
	todoAddCmd.Flags().StringP("priority", "p", "medium", "Priority: high, medium, low")
	todoAddCmd.Flags().String("due", "", `Due date ("2025-01-31", "tomorrow", "next friday")`)
	todoAddCmd.Flags().StringP("user", "u", "", "Owning user ID")

	todoListCmd.Flags().StringP("user", "u", "", "Only todos of this user")
	todoListCmd.Flags().StringP("search", "s", "", "Match title or description")
	todoListCmd.Flags().Bool("completed", false, "Filter by completion")
	todoListCmd.Flags().StringP("priority", "p", "", "Filter by priority")
	todoListCmd.Flags().Int("limit", repo.DefaultLimit, "Maximum results")
	todoListCmd.Flags().Int("offset", 0, "Results to skip")
	todoListCmd.Flags().Bool("json", false, "Output as JSON")

	todoDoneCmd.Flags().Bool("undo", false, "Mark as not completed")

	todoCmd.AddCommand(todoAddCmd, todoListCmd, todoDoneCmd, todoRmCmd)
	rootCmd.AddCommand(todoCmd)
}
