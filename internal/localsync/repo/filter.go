package repo

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Filter narrows list and count queries. Conditions feeds the local SQL
// WHERE clause (joined with AND); Query is sent as remote list parameters.
type Filter interface {
	Conditions() (conds []string, args []any)
	Query() url.Values
}

// Equals matches each column against a value.
type Equals map[string]any

// Conditions implements Filter.
func (f Equals) Conditions() ([]string, []any) {
	conds := make([]string, 0, len(f))
	args := make([]any, 0, len(f))
	for _, col := range f.columns() {
		conds = append(conds, quoteIdent(col)+" = ?")
		args = append(args, f[col])
	}
	return conds, args
}

// Query implements Filter.
func (f Equals) Query() url.Values {
	q := url.Values{}
	for _, col := range f.columns() {
		q.Set(col, fmt.Sprint(f[col]))
	}
	return q
}

func (f Equals) columns() []string {
	cols := make([]string, 0, len(f))
	for col := range f {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// TodoFilter matches todos. Zero fields are ignored.
type TodoFilter struct {
	UserID    string
	Priority  *int
	Completed *bool

	// Search is a case-insensitive substring match on title and description.
	Search string
}

// Conditions implements Filter.
func (f TodoFilter) Conditions() ([]string, []any) {
	var conds []string
	var args []any

	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Priority != nil {
		conds = append(conds, "priority = ?")
		args = append(args, *f.Priority)
	}
	if f.Completed != nil {
		conds = append(conds, "completed = ?")
		args = append(args, boolInt(*f.Completed))
	}
	if f.Search != "" {
		pattern := likePattern(f.Search)
		conds = append(conds, `(title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	return conds, args
}

// Query implements Filter.
func (f TodoFilter) Query() url.Values {
	q := url.Values{}
	if f.UserID != "" {
		q.Set("user_id", f.UserID)
	}
	if f.Priority != nil {
		q.Set("priority", strconv.Itoa(*f.Priority))
	}
	if f.Completed != nil {
		q.Set("completed", strconv.FormatBool(*f.Completed))
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	return q
}

// UserFilter matches users. Zero fields are ignored.
type UserFilter struct {
	Email string

	// Search is a case-insensitive substring match on name and email.
	Search string
}

// Conditions implements Filter.
func (f UserFilter) Conditions() ([]string, []any) {
	var conds []string
	var args []any

	if f.Email != "" {
		conds = append(conds, "email = ?")
		args = append(args, f.Email)
	}
	if f.Search != "" {
		pattern := likePattern(f.Search)
		conds = append(conds, `(name LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	return conds, args
}

// Query implements Filter.
func (f UserFilter) Query() url.Values {
	q := url.Values{}
	if f.Email != "" {
		q.Set("email", f.Email)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	return q
}

// quoteIdent quotes a column name so arbitrary filter keys cannot inject SQL.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
