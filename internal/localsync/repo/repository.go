// Package repo provides typed repositories over the local store with
// optional mirrored operations against the remote service.
//
// A Repository is bound to one table. Local operations are always
// available and are the source of truth. Remote operations only act while
// the repository's RemoteConfig is enabled; reads degrade to empty results
// on failure, writes return errors.
package repo

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aatrooox/localsync/internal/clock"
	"github.com/aatrooox/localsync/internal/localsync/db"
	"github.com/aatrooox/localsync/internal/localsync/remote"
	"github.com/aatrooox/localsync/internal/localsync/schema"
)

// DefaultLimit is the page size used when Page.Limit is not set.
const DefaultLimit = 50

// Page selects a window of a listing.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Local is the local CRUD capability.
type Local[T any, P schema.RecordPtr[T]] interface {
	GetLocal(ctx context.Context, id string) (P, error)
	SaveLocal(ctx context.Context, entity P) (P, error)
	UpdateLocal(ctx context.Context, id string, apply func(P)) (P, error)
	DeleteLocal(ctx context.Context, id string) error
	ListLocal(ctx context.Context, filter Filter, page Page) ([]P, error)
	CountLocal(ctx context.Context, filter Filter) (int, error)
}

// Remote is the mirrored remote capability. Records returned by it carry
// the remote identifier in their ID field.
type Remote[T any, P schema.RecordPtr[T]] interface {
	GetRemote(ctx context.Context, remoteID string) P
	ListRemote(ctx context.Context, filter Filter, page Page) []P
	SaveRemote(ctx context.Context, entity P) (P, error)
	UpdateRemote(ctx context.Context, remoteID string, entity P) (P, error)
	DeleteRemote(ctx context.Context, remoteID string) error
	FetchRemote(ctx context.Context, filter Filter) ([]P, error)
}

// Options configures a Repository. The zero value is usable.
type Options struct {
	Clock      clock.Clock
	Logger     *log.Logger
	HTTPClient *http.Client

	// NewID mints local ids. Defaults to random UUIDs.
	NewID func() string
}

// Repository is the gateway to one entity table.
type Repository[T any, P schema.RecordPtr[T]] struct {
	store  db.Store
	table  Table[T]
	clock  clock.Clock
	logger *log.Logger
	newID  func() string
	remote *remote.Client

	selectList string
}

var (
	_ Local[schema.Todo, *schema.Todo]  = (*Repository[schema.Todo, *schema.Todo])(nil)
	_ Remote[schema.Todo, *schema.Todo] = (*Repository[schema.Todo, *schema.Todo])(nil)
)

// New creates a repository for table backed by store.
func New[T any, P schema.RecordPtr[T]](store db.Store, table Table[T], opts *Options) *Repository[T, P] {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[repo] ", log.LstdFlags)
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Repository[T, P]{
		store:      store,
		table:      table,
		clock:      clock.OrReal(opts.Clock),
		logger:     logger,
		newID:      newID,
		remote:     remote.NewClient(opts.HTTPClient),
		selectList: strings.Join(table.allColumns(), ", "),
	}
}

// Name returns the table name.
func (r *Repository[T, P]) Name() string {
	return r.table.Name
}

func (r *Repository[T, P]) now() time.Time {
	return r.clock.Now().UTC().Round(0)
}

// GetLocal returns the non-deleted record with id, or nil.
func (r *Repository[T, P]) GetLocal(ctx context.Context, id string) (P, error) {
	return r.selectOne(ctx, "id = ? AND is_deleted = 0", id)
}

// Lookup returns the record with id whether or not it is deleted, or nil.
func (r *Repository[T, P]) Lookup(ctx context.Context, id string) (P, error) {
	return r.selectOne(ctx, "id = ?", id)
}

// FindByRemoteID returns the record linked to remoteID, deleted or not, or nil.
func (r *Repository[T, P]) FindByRemoteID(ctx context.Context, remoteID string) (P, error) {
	return r.selectOne(ctx, "remote_id = ?", remoteID)
}

// SaveLocal inserts a copy of entity and returns it as stored. A missing id
// is minted, missing timestamps are set to now and is_deleted is cleared.
func (r *Repository[T, P]) SaveLocal(ctx context.Context, entity P) (P, error) {
	if entity == nil {
		return nil, fmt.Errorf("cannot save nil %s record", r.table.Name)
	}

	rec := P(new(T))
	*rec = *entity
	m := rec.Meta()

	now := r.now()
	if m.ID == "" {
		m.ID = r.newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}
	m.CreatedAt = m.CreatedAt.UTC().Round(0)
	m.UpdatedAt = m.UpdatedAt.UTC().Round(0)
	if m.UpdatedAt.Before(m.CreatedAt) {
		m.UpdatedAt = m.CreatedAt
	}
	m.IsDeleted = false

	values, err := r.values(rec)
	if err != nil {
		return nil, err
	}

	cols := r.table.allColumns()
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.table.Name, r.selectList, placeholders(len(cols)))
	if _, err := r.store.Execute(ctx, query, values...); err != nil {
		return nil, fmt.Errorf("failed to insert %s %s: %w", r.table.Name, m.ID, err)
	}

	return rec, nil
}

// UpdateLocal applies a change to the record with id, deleted or not, and
// writes it back. The id never changes, a remote id once set is kept, and
// updated_at strictly increases. Returns ErrNotFound if no record has id.
func (r *Repository[T, P]) UpdateLocal(ctx context.Context, id string, apply func(P)) (P, error) {
	rec, err := r.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, r.table.Name, id)
	}

	prev := *rec.Meta()
	if apply != nil {
		apply(rec)
	}

	m := rec.Meta()
	m.ID = prev.ID
	m.CreatedAt = prev.CreatedAt
	if prev.HasRemote() {
		m.RemoteID = prev.RemoteID
	}
	m.UpdatedAt = schema.NextUpdate(r.now(), prev.UpdatedAt)

	if err := r.write(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteLocal soft-deletes the record with id. Deleting a missing or
// already deleted record is a no-op.
func (r *Repository[T, P]) DeleteLocal(ctx context.Context, id string) error {
	rec, err := r.Lookup(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil || rec.Meta().IsDeleted {
		return nil
	}

	updated := schema.NextUpdate(r.now(), rec.Meta().UpdatedAt)
	query := fmt.Sprintf("UPDATE %s SET is_deleted = 1, updated_at = ? WHERE id = ?", r.table.Name)
	if _, err := r.store.Execute(ctx, query, schema.FormatTime(updated), id); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", r.table.Name, id, err)
	}
	return nil
}

// ListLocal returns non-deleted records matching filter, newest first.
func (r *Repository[T, P]) ListLocal(ctx context.Context, filter Filter, page Page) ([]P, error) {
	page = page.normalize()
	where, args := whereClause([]string{"is_deleted = 0"}, filter)

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY updated_at DESC, id LIMIT ? OFFSET ?",
		r.selectList, r.table.Name, where)
	return r.selectMany(ctx, query, append(args, page.Limit, page.Offset)...)
}

// CountLocal counts non-deleted records matching filter.
func (r *Repository[T, P]) CountLocal(ctx context.Context, filter Filter) (int, error) {
	where, args := whereClause([]string{"is_deleted = 0"}, filter)
	return r.count(ctx, where, args...)
}

// dirtyClause selects records changed since their last sync.
const dirtyClause = "(last_sync_at IS NULL OR updated_at > last_sync_at)"

// ListDirty returns every record changed since its last sync, including
// soft-deleted ones, oldest change first.
func (r *Repository[T, P]) ListDirty(ctx context.Context) ([]P, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY updated_at ASC, id",
		r.selectList, r.table.Name, dirtyClause)
	return r.selectMany(ctx, query)
}

// CountDirty counts records changed since their last sync.
func (r *Repository[T, P]) CountDirty(ctx context.Context) (int, error) {
	return r.count(ctx, dirtyClause)
}

// MarkSynced stamps last_sync_at on the record with id and links it to
// remoteID unless it is already linked. An updated_at behind the stamp is
// raised to it, so last_sync_at never passes updated_at and the next local
// edit, ordered after updated_at, makes the record dirty again even when
// the stamp came from a remote clock running ahead of ours.
func (r *Repository[T, P]) MarkSynced(ctx context.Context, id string, remoteID *string, at time.Time) error {
	query := fmt.Sprintf("UPDATE %s SET remote_id = COALESCE(remote_id, ?), last_sync_at = ?, updated_at = MAX(updated_at, ?) WHERE id = ?",
		r.table.Name)
	stamp := schema.FormatTime(at)
	if _, err := r.store.Execute(ctx, query, schema.NullString(remoteID), stamp, stamp, id); err != nil {
		return fmt.Errorf("failed to mark %s %s synced: %w", r.table.Name, id, err)
	}
	return nil
}

func (r *Repository[T, P]) write(ctx context.Context, rec P) error {
	values, err := r.values(rec)
	if err != nil {
		return err
	}

	cols := r.table.allColumns()[1:]
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = col + " = ?"
	}

	id := rec.Meta().ID
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", r.table.Name, strings.Join(sets, ", "))
	if _, err := r.store.Execute(ctx, query, append(values[1:], id)...); err != nil {
		return fmt.Errorf("failed to update %s %s: %w", r.table.Name, id, err)
	}
	return nil
}

func (r *Repository[T, P]) values(rec P) ([]any, error) {
	own, err := r.table.Values((*T)(rec))
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s %s: %w", r.table.Name, rec.Meta().ID, err)
	}
	return append(baseValues(rec.Meta()), own...), nil
}

func (r *Repository[T, P]) selectOne(ctx context.Context, where string, args ...any) (P, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT 1", r.selectList, r.table.Name, where)
	recs, err := r.selectMany(ctx, query, args...)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

func (r *Repository[T, P]) selectMany(ctx context.Context, query string, args ...any) ([]P, error) {
	rows, err := r.store.Select(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", r.table.Name, err)
	}

	recs := make([]P, 0, len(rows))
	for _, row := range rows {
		rec := P(new(T))
		if err := scanBase(row, rec.Meta()); err != nil {
			return nil, fmt.Errorf("failed to scan %s %s: %w", r.table.Name, row.String("id"), err)
		}
		if err := r.table.Scan(row, (*T)(rec)); err != nil {
			return nil, fmt.Errorf("failed to scan %s %s: %w", r.table.Name, row.String("id"), err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (r *Repository[T, P]) count(ctx context.Context, where string, args ...any) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) AS n FROM %s WHERE %s", r.table.Name, where)
	rows, err := r.store.Select(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", r.table.Name, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return int(rows[0].Int("n")), nil
}

func whereClause(base []string, filter Filter) (string, []any) {
	conds := append([]string(nil), base...)
	var args []any
	if filter != nil {
		fc, fa := filter.Conditions()
		conds = append(conds, fc...)
		args = append(args, fa...)
	}
	return strings.Join(conds, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
