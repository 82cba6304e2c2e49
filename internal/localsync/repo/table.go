package repo

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aatrooox/localsync/internal/localsync/db"
	"github.com/aatrooox/localsync/internal/localsync/schema"
)

// baseColumns are the Syncable columns every synchronized table carries.
var baseColumns = []string{"id", "remote_id", "created_at", "updated_at", "last_sync_at", "is_deleted"}

// Table binds an entity type to its storage table. Columns lists the
// entity-specific columns; Values and Scan must agree with its order.
// The Syncable columns are handled by the repository.
type Table[T any] struct {
	Name    string
	Columns []string
	Values  func(*T) ([]any, error)
	Scan    func(db.Row, *T) error
}

func (t Table[T]) allColumns() []string {
	cols := make([]string, 0, len(baseColumns)+len(t.Columns))
	cols = append(cols, baseColumns...)
	return append(cols, t.Columns...)
}

func baseValues(m *schema.Syncable) []any {
	return []any{
		m.ID,
		schema.NullString(m.RemoteID),
		schema.FormatTime(m.CreatedAt),
		schema.FormatTime(m.UpdatedAt),
		schema.NullTime(m.LastSyncAt),
		boolInt(m.IsDeleted),
	}
}

func scanBase(row db.Row, m *schema.Syncable) error {
	m.ID = row.String("id")
	m.RemoteID = row.NullString("remote_id")
	m.IsDeleted = row.Bool("is_deleted")

	created, err := schema.ParseTime(row.String("created_at"))
	if err != nil {
		return fmt.Errorf("failed to parse created_at: %w", err)
	}
	m.CreatedAt = created

	updated, err := schema.ParseTime(row.String("updated_at"))
	if err != nil {
		return fmt.Errorf("failed to parse updated_at: %w", err)
	}
	m.UpdatedAt = updated

	m.LastSyncAt = nil
	if v := row.NullString("last_sync_at"); v != nil && *v != "" {
		synced, err := schema.ParseTime(*v)
		if err != nil {
			return fmt.Errorf("failed to parse last_sync_at: %w", err)
		}
		m.LastSyncAt = &synced
	}
	return nil
}

// UserTable maps schema.User to the users table.
var UserTable = Table[schema.User]{
	Name:    "users",
	Columns: []string{"name", "email", "avatar", "preferences"},
	Values: func(u *schema.User) ([]any, error) {
		prefs := sql.NullString{}
		if u.Preferences != nil {
			b, err := json.Marshal(u.Preferences)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal preferences: %w", err)
			}
			prefs = sql.NullString{String: string(b), Valid: true}
		}
		return []any{u.Name, u.Email, schema.NullString(u.Avatar), prefs}, nil
	},
	Scan: func(row db.Row, u *schema.User) error {
		u.Name = row.String("name")
		u.Email = row.String("email")
		u.Avatar = row.NullString("avatar")
		u.Preferences = nil
		if raw := row.String("preferences"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &u.Preferences); err != nil {
				return fmt.Errorf("failed to unmarshal preferences: %w", err)
			}
		}
		return nil
	},
}

// TodoTable maps schema.Todo to the todos table.
var TodoTable = Table[schema.Todo]{
	Name:    "todos",
	Columns: []string{"title", "description", "completed", "priority", "due_date", "user_id"},
	Values: func(t *schema.Todo) ([]any, error) {
		return []any{
			t.Title,
			schema.NullString(t.Description),
			boolInt(t.Completed),
			t.Priority,
			schema.NullTime(t.DueDate),
			t.UserID,
		}, nil
	},
	Scan: func(row db.Row, t *schema.Todo) error {
		t.Title = row.String("title")
		t.Description = row.NullString("description")
		t.Completed = row.Bool("completed")
		t.Priority = int(row.Int("priority"))
		t.UserID = row.String("user_id")
		t.DueDate = nil
		if v := row.NullString("due_date"); v != nil && *v != "" {
			due, err := schema.ParseTime(*v)
			if err != nil {
				return fmt.Errorf("failed to parse due_date: %w", err)
			}
			t.DueDate = &due
		}
		return nil
	},
}
