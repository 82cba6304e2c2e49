package db

import (
	"fmt"
	"strconv"
	"time"
)

// Row is a single result row keyed by column name. SQL NULL is nil.
type Row map[string]any

// String returns the column as a string, or "" when NULL or absent.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// NullString returns nil for NULL, otherwise a pointer to the string value.
func (r Row) NullString(col string) *string {
	if r[col] == nil {
		return nil
	}
	s := r.String(col)
	return &s
}

// Int returns the column as an integer. Text values are parsed; NULL is 0.
func (r Row) Int(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// Bool returns the column as a boolean (non-zero integers are true).
func (r Row) Bool(col string) bool {
	if b, ok := r[col].(bool); ok {
		return b
	}
	return r.Int(col) != 0
}

// Has reports whether the row carries the column at all.
func (r Row) Has(col string) bool {
	_, ok := r[col]
	return ok
}
