package schema

import (
	"database/sql"
	"fmt"
	"time"
)

// TimeLayout is the storage format for timestamps. It is fixed width and
// always UTC, so string comparison orders chronologically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Syncable holds the identity and bookkeeping fields every synchronized
// entity carries. Embed it in entity structs.
type Syncable struct {
	// ===== Identity =====
	ID       string  `json:"id"`
	RemoteID *string `json:"remote_id,omitempty"` // set once by a successful remote create

	// ===== Timestamps (conflict detection) =====
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`

	// ===== Soft delete =====
	IsDeleted bool `json:"is_deleted,omitempty"`
}

// Meta returns the Syncable itself. Embedding promotes it, which is how
// entity pointers satisfy Record.
func (s *Syncable) Meta() *Syncable {
	return s
}

// IsDirty reports whether the record changed since its last successful sync.
func (s *Syncable) IsDirty() bool {
	return s.LastSyncAt == nil || s.UpdatedAt.After(*s.LastSyncAt)
}

// SyncTime returns LastSyncAt, or the zero time when the record never synced.
func (s *Syncable) SyncTime() time.Time {
	if s.LastSyncAt == nil {
		return time.Time{}
	}
	return *s.LastSyncAt
}

// HasRemote reports whether the record is linked to a remote counterpart.
func (s *Syncable) HasRemote() bool {
	return s.RemoteID != nil && *s.RemoteID != ""
}

// Record is implemented by pointers to structs embedding Syncable.
type Record interface {
	Meta() *Syncable
}

// RecordPtr constrains a type parameter to *T where *T is a Record.
// It lets generic code allocate a T and still call Meta on it.
type RecordPtr[T any] interface {
	*T
	Record
}

// NextUpdate returns the timestamp to stamp on a mutation: now, or one
// nanosecond past prev when the clock has not advanced beyond it.
func NextUpdate(now, prev time.Time) time.Time {
	now = now.UTC().Round(0)
	if !now.After(prev) {
		return prev.Add(time.Nanosecond).UTC()
	}
	return now
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a stored timestamp. RFC3339 input is accepted too so
// rows written by other tools still load.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// NullTime converts an optional time to a nullable SQL string.
func NullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatTime(*t), Valid: true}
}

// NullString converts an optional string to a nullable SQL string.
func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// Ptr returns a pointer to v.
func Ptr[V any](v V) *V {
	return &v
}
