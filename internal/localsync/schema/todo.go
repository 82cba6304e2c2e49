package schema

import (
	"fmt"
	"time"
)

// Priority levels for todos. Lower is more urgent.
const (
	PriorityHigh   = 0
	PriorityMedium = 1
	PriorityLow    = 2
)

// Todo is a task owned by a user.
type Todo struct {
	Syncable

	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	Priority    int        `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	UserID      string     `json:"user_id"`
}

// Validate checks if the Todo has valid field values.
func (t *Todo) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if t.Priority < PriorityHigh || t.Priority > PriorityLow {
		return fmt.Errorf("priority must be between %d and %d (got %d)", PriorityHigh, PriorityLow, t.Priority)
	}
	return nil
}
