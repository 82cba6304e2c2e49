package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/aatrooox/localsync/internal/localsync/schema"
)

// fetchPageSize is the page size FetchRemote walks the listing with.
const fetchPageSize = 100

// SetRemoteConfig replaces the remote configuration used by remote
// operations. The config store calls it on load and on every change.
func (r *Repository[T, P]) SetRemoteConfig(cfg schema.RemoteConfig) {
	r.remote.Configure(cfg)
}

// RemoteConfig returns the current remote configuration.
func (r *Repository[T, P]) RemoteConfig() schema.RemoteConfig {
	return r.remote.Config()
}

// RemoteEnabled reports whether remote mirroring is on.
func (r *Repository[T, P]) RemoteEnabled() bool {
	return r.remote.Config().Enabled
}

// GetRemote fetches one remote record. Failures are logged and reported
// as nil.
func (r *Repository[T, P]) GetRemote(ctx context.Context, remoteID string) P {
	if !r.RemoteEnabled() {
		return nil
	}

	rec := P(new(T))
	found, err := r.remote.Get(ctx, r.table.Name, remoteID, rec)
	if err != nil {
		r.logger.Printf("Warning: failed to get remote %s %s: %v", r.table.Name, remoteID, err)
		return nil
	}
	if !found {
		return nil
	}
	return rec
}

// ListRemote fetches one page of remote records. Failures are logged and
// reported as an empty list.
func (r *Repository[T, P]) ListRemote(ctx context.Context, filter Filter, page Page) []P {
	if !r.RemoteEnabled() {
		return nil
	}

	recs, err := r.listRemote(ctx, filter, page.normalize())
	if err != nil {
		r.logger.Printf("Warning: failed to list remote %s: %v", r.table.Name, err)
		return nil
	}
	return recs
}

// FetchRemote returns the full remote listing, walking it page by page.
// Unlike ListRemote it returns errors; the sync engine relies on that to
// tell an empty remote from an unreachable one.
func (r *Repository[T, P]) FetchRemote(ctx context.Context, filter Filter) ([]P, error) {
	if !r.RemoteEnabled() {
		return nil, ErrRemoteDisabled
	}

	var all []P
	seen := make(map[string]bool)
	for offset := 0; ; offset += fetchPageSize {
		page, err := r.listRemote(ctx, filter, Page{Limit: fetchPageSize, Offset: offset})
		if err != nil {
			return nil, err
		}

		fresh := 0
		for _, rec := range page {
			id := rec.Meta().ID
			if seen[id] {
				continue
			}
			seen[id] = true
			all = append(all, rec)
			fresh++
		}

		// A server that ignores offset keeps returning the same page.
		if len(page) < fetchPageSize || fresh == 0 {
			break
		}
	}
	return all, nil
}

// SaveRemote creates entity on the remote and returns the stored record,
// whose ID is the server-assigned identifier.
func (r *Repository[T, P]) SaveRemote(ctx context.Context, entity P) (P, error) {
	if !r.RemoteEnabled() {
		return nil, ErrRemoteDisabled
	}

	body, err := r.payload(entity, "")
	if err != nil {
		return nil, err
	}

	out := P(new(T))
	if err := r.remote.Create(ctx, r.table.Name, body, out); err != nil {
		return nil, fmt.Errorf("failed to create remote %s %s: %w", r.table.Name, entity.Meta().ID, err)
	}
	if out.Meta().ID == "" {
		return nil, fmt.Errorf("remote create of %s %s returned no id", r.table.Name, entity.Meta().ID)
	}
	return out, nil
}

// UpdateRemote sends the full entity to the remote record remoteID.
func (r *Repository[T, P]) UpdateRemote(ctx context.Context, remoteID string, entity P) (P, error) {
	if !r.RemoteEnabled() {
		return nil, ErrRemoteDisabled
	}

	body, err := r.payload(entity, remoteID)
	if err != nil {
		return nil, err
	}

	out := P(new(T))
	if err := r.remote.Update(ctx, r.table.Name, remoteID, body, out); err != nil {
		return nil, fmt.Errorf("failed to update remote %s %s: %w", r.table.Name, remoteID, err)
	}
	if out.Meta().ID == "" {
		out.Meta().ID = remoteID
	}
	return out, nil
}

// DeleteRemote deletes the remote record remoteID.
func (r *Repository[T, P]) DeleteRemote(ctx context.Context, remoteID string) error {
	if !r.RemoteEnabled() {
		return ErrRemoteDisabled
	}
	if err := r.remote.Delete(ctx, r.table.Name, remoteID); err != nil {
		return fmt.Errorf("failed to delete remote %s %s: %w", r.table.Name, remoteID, err)
	}
	return nil
}

func (r *Repository[T, P]) listRemote(ctx context.Context, filter Filter, page Page) ([]P, error) {
	// Copied so a filter returning nil or a shared map is safe to extend.
	q := url.Values{}
	if filter != nil {
		for k, v := range filter.Query() {
			q[k] = v
		}
	}
	q.Set("limit", strconv.Itoa(page.Limit))
	q.Set("offset", strconv.Itoa(page.Offset))

	var recs []P
	if err := r.remote.List(ctx, r.table.Name, q, &recs); err != nil {
		return nil, fmt.Errorf("failed to list remote %s: %w", r.table.Name, err)
	}

	out := recs[:0]
	for _, rec := range recs {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// payload renders entity as the remote sees it: id is the remote id (absent
// on create), local sync bookkeeping is stripped, is_deleted is explicit.
func (r *Repository[T, P]) payload(entity P, remoteID string) (map[string]any, error) {
	if entity == nil {
		return nil, errors.New("nil entity")
	}

	b, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s %s: %w", r.table.Name, entity.Meta().ID, err)
	}
	var body map[string]any
	if err := json.Unmarshal(b, &body); err != nil {
		return nil, fmt.Errorf("failed to encode %s %s: %w", r.table.Name, entity.Meta().ID, err)
	}

	delete(body, "remote_id")
	delete(body, "last_sync_at")
	if remoteID == "" {
		delete(body, "id")
	} else {
		body["id"] = remoteID
	}
	body["is_deleted"] = entity.Meta().IsDeleted
	return body, nil
}
