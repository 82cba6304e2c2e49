package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/aatrooox/localsync/internal/localsync/schema"
)

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(MutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return BoldStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	return t.String()
}

// RenderResult formats one repository's sync outcome as a single line plus
// one indented line per error.
func RenderResult(name string, res *schema.SyncResult) string {
	var b strings.Builder

	mark := RenderPass("✓")
	if !res.Success {
		mark = RenderFail("✗")
	} else if len(res.Conflicts) > 0 {
		mark = RenderWarn("⚠")
	}

	fmt.Fprintf(&b, "%s %s: created %d, updated %d, deleted %d",
		mark, RenderBold(name), res.Created, res.Updated, res.Deleted)
	if n := len(res.Conflicts); n > 0 {
		fmt.Fprintf(&b, ", %s", RenderWarn(fmt.Sprintf("%d conflicts", n)))
	}
	for _, msg := range res.Errors {
		fmt.Fprintf(&b, "\n   %s", RenderMuted(msg))
	}
	return b.String()
}

// RenderResults formats a SyncAll outcome in repository name order.
func RenderResults(results map[string]*schema.SyncResult) string {
	if len(results) == 0 {
		return RenderWarn("⚠") + " Sync skipped: remote sync is disabled"
	}
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, RenderResult(name, results[name]))
	}
	return strings.Join(lines, "\n")
}

// ConflictTable lists conflicts with both sides' JSON, truncated to width.
func ConflictTable(conflicts []schema.Conflict, width int) string {
	rows := make([][]string, 0, len(conflicts))
	for _, c := range conflicts {
		rows = append(rows, []string{
			c.Table,
			c.ID,
			string(c.ConflictType),
			Truncate(string(c.LocalData), width),
			Truncate(string(c.RemoteData), width),
		})
	}
	return Table([]string{"TABLE", "ID", "TYPE", "LOCAL", "REMOTE"}, rows)
}

// Truncate shortens s to at most n runes, marking the cut with "…".
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
