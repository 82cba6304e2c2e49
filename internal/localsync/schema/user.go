package schema

import "fmt"

// User is a local account record.
type User struct {
	Syncable

	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Avatar      *string        `json:"avatar,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

// Validate checks if the User has valid field values.
func (u *User) Validate() error {
	if u.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(u.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(u.Name))
	}
	return nil
}
