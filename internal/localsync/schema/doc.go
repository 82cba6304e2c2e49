// Package schema defines the entity model shared by the local store, the
// remote mirror and the sync engine.
//
// # Overview
//
// Every synchronized entity embeds Syncable, which carries identity, the
// soft-delete flag and the timestamps the sync engine reconciles on:
//
//	type Todo struct {
//	    schema.Syncable
//	    Title string `json:"title"`
//	}
//
// A pointer to such a struct satisfies Record through the promoted Meta
// method, so repositories and engines can be written once over RecordPtr.
//
// # Timestamps
//
// Timestamps are stored as fixed-width UTC text (see TimeLayout) so that
// lexical order equals chronological order inside SQL comparisons and
// ORDER BY clauses. A record is dirty when it has never been synced or
// was updated after its last sync.
//
// # Design Principles
//
//   - Flat JSON structure, snake_case keys for entities
//   - RemoteConfig keeps the camelCase keys of its persisted form
//   - remote_id is the only correlation key between local and remote
//   - Soft delete only; physical purge is the host's concern
package schema
