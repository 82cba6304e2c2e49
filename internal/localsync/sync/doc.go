// Package sync reconciles one repository's local records with the remote
// service.
//
// A pass runs in two phases, strictly in order:
//
//  1. Push: every locally dirty record (never synced, or updated since its
//     last sync) is sent to the remote. Linked records are updated, new
//     ones are created and linked by the returned remote id. Soft deletes
//     travel as updates carrying is_deleted.
//  2. Pull: the full remote listing is fetched page by page. Each remote
//     record is matched to a local one by remote_id. Records only the
//     remote changed are applied locally; records both sides changed are
//     reported as conflicts and left untouched; unknown records are
//     created locally.
//
// A pass never returns an error. Per-record failures are collected into
// the SyncResult and do not stop the batch; a failure outside a record
// (listing dirty records, fetching the remote) ends the pass with a single
// "Sync failed" entry.
//
// Conflicts are resolved separately through ResolveConflict, by default
// with last-write-wins on updated_at.
package sync
