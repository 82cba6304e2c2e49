package schema

import "encoding/json"

// ConflictType classifies a conflict found during pull.
type ConflictType string

const (
	// ConflictUpdate means both sides edited the record since the last sync.
	ConflictUpdate ConflictType = "update"

	// ConflictDelete means both sides changed the record and exactly one
	// of them soft-deleted it.
	ConflictDelete ConflictType = "delete"
)

// Conflict describes a record modified independently on both sides.
// LocalData and RemoteData hold the JSON form of each side at detection time.
type Conflict struct {
	ID           string          `json:"id"`
	Table        string          `json:"table"`
	LocalData    json.RawMessage `json:"local_data"`
	RemoteData   json.RawMessage `json:"remote_data"`
	ConflictType ConflictType    `json:"conflict_type"`
}

// SyncResult is the outcome of one sync pass over one repository.
//
// Deleted counts soft deletions in either direction: a local deletion
// pushed to a linked remote record, and a remote deletion applied locally.
// Those records are not counted in Updated, so Updated+Deleted is the number
// of existing records that changed on one side or the other.
type SyncResult struct {
	Success   bool       `json:"success"`
	Conflicts []Conflict `json:"conflicts"`
	Updated   int        `json:"updated"`
	Created   int        `json:"created"`
	Deleted   int        `json:"deleted"`
	Errors    []string   `json:"errors"`
}

// NewSyncResult returns a successful, empty result.
func NewSyncResult() *SyncResult {
	return &SyncResult{
		Success:   true,
		Conflicts: []Conflict{},
		Errors:    []string{},
	}
}

// Fail records an error message and marks the result unsuccessful.
func (r *SyncResult) Fail(msg string) {
	r.Success = false
	r.Errors = append(r.Errors, msg)
}

// Changed reports the number of records created, updated or deleted.
func (r *SyncResult) Changed() int {
	return r.Created + r.Updated + r.Deleted
}
