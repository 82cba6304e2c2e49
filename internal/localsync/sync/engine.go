package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/aatrooox/localsync/internal/clock"
	"github.com/aatrooox/localsync/internal/localsync/repo"
	"github.com/aatrooox/localsync/internal/localsync/schema"
)

// Messages recorded when a pass cannot start.
const (
	MsgRemoteDisabled  = "Remote sync is disabled"
	MsgContentDisabled = "Content sync is disabled"
	MsgInProgress      = "Sync already in progress"
)

// ErrInProgress is returned by ResolveConflict while a pass is running.
var ErrInProgress = errors.New("sync already in progress")

// Source is what the engine needs from a repository. *repo.Repository
// implements it.
type Source[T any, P schema.RecordPtr[T]] interface {
	Name() string
	RemoteConfig() schema.RemoteConfig

	ListDirty(ctx context.Context) ([]P, error)
	Lookup(ctx context.Context, id string) (P, error)
	FindByRemoteID(ctx context.Context, remoteID string) (P, error)
	SaveLocal(ctx context.Context, entity P) (P, error)
	UpdateLocal(ctx context.Context, id string, apply func(P)) (P, error)
	MarkSynced(ctx context.Context, id string, remoteID *string, at time.Time) error

	SaveRemote(ctx context.Context, entity P) (P, error)
	UpdateRemote(ctx context.Context, remoteID string, entity P) (P, error)
	FetchRemote(ctx context.Context, filter repo.Filter) ([]P, error)
}

// Runner is the type-erased view of an Engine the manager drives.
type Runner interface {
	Name() string
	Sync(ctx context.Context) *schema.SyncResult
	Push(ctx context.Context) *schema.SyncResult
	Pull(ctx context.Context) *schema.SyncResult
	Resolve(ctx context.Context, c schema.Conflict) (Resolution, error)
	ResolveWith(ctx context.Context, c schema.Conflict, s Strategy) (Resolution, error)
}

// Options configures an Engine. The zero value is usable.
type Options struct {
	Clock  clock.Clock
	Logger *log.Logger

	// StampOnFailure stamps last_sync_at on a record even when pushing it
	// failed. Such a record is not retried until it changes again.
	StampOnFailure bool

	// PullFilter narrows the remote listing fetched by the pull phase.
	PullFilter repo.Filter
}

// Engine syncs one repository.
type Engine[T any, P schema.RecordPtr[T]] struct {
	src            Source[T, P]
	clock          clock.Clock
	logger         *log.Logger
	stampOnFailure bool
	pullFilter     repo.Filter
	policy         Policy[T, P]

	running atomic.Bool
}

var _ Runner = (*Engine[schema.Todo, *schema.Todo])(nil)

// New creates an engine over src.
func New[T any, P schema.RecordPtr[T]](src Source[T, P], opts *Options) *Engine[T, P] {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Engine[T, P]{
		src:            src,
		clock:          clock.OrReal(opts.Clock),
		logger:         logger,
		stampOnFailure: opts.StampOnFailure,
		pullFilter:     opts.PullFilter,
		policy:         LastWriteWins[T, P],
	}
}

// WithPolicy sets the policy Resolve uses. A nil policy restores
// last-write-wins.
func (e *Engine[T, P]) WithPolicy(p Policy[T, P]) *Engine[T, P] {
	if p == nil {
		p = LastWriteWins[T, P]
	}
	e.policy = p
	return e
}

// Name returns the table the engine syncs.
func (e *Engine[T, P]) Name() string {
	return e.src.Name()
}

// Running reports whether a pass is in progress.
func (e *Engine[T, P]) Running() bool {
	return e.running.Load()
}

// Sync runs a full pass: push, then pull.
func (e *Engine[T, P]) Sync(ctx context.Context) *schema.SyncResult {
	return e.run(ctx, "sync", e.push, e.pull)
}

// Push runs only the push phase.
func (e *Engine[T, P]) Push(ctx context.Context) *schema.SyncResult {
	return e.run(ctx, "push", e.push)
}

// Pull runs only the pull phase.
func (e *Engine[T, P]) Pull(ctx context.Context) *schema.SyncResult {
	return e.run(ctx, "pull", e.pull)
}

type phase func(ctx context.Context, res *schema.SyncResult) error

func (e *Engine[T, P]) run(ctx context.Context, kind string, phases ...phase) (res *schema.SyncResult) {
	res = schema.NewSyncResult()

	cfg := e.src.RemoteConfig()
	if !cfg.Enabled {
		res.Fail(MsgRemoteDisabled)
		return res
	}
	if !cfg.Features.ContentSync {
		res.Fail(MsgContentDisabled)
		return res
	}

	if !e.running.CompareAndSwap(false, true) {
		res.Fail(MsgInProgress)
		return res
	}
	defer e.running.Store(false)

	start := e.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Fail(fmt.Sprintf("Sync failed: %v", r))
		}
		e.logger.Printf("%s %s: created=%d updated=%d deleted=%d conflicts=%d errors=%d (%v)",
			kind, e.src.Name(), res.Created, res.Updated, res.Deleted,
			len(res.Conflicts), len(res.Errors), e.clock.Now().Sub(start))
	}()

	for _, p := range phases {
		if err := p(ctx, res); err != nil {
			res.Fail(fmt.Sprintf("Sync failed: %v", err))
			break
		}
	}
	return res
}

func (e *Engine[T, P]) now() time.Time {
	return e.clock.Now().UTC().Round(0)
}

// stampAt returns the last_sync_at to record: now, or the latest of the
// given timestamps if one is ahead of the local clock. MarkSynced raises
// updated_at along with it, so the remote copy sits at or before the sync
// time and later local edits still sort after it.
func (e *Engine[T, P]) stampAt(ts ...time.Time) time.Time {
	at := e.now()
	for _, t := range ts {
		if t.After(at) {
			at = t.UTC()
		}
	}
	return at
}

func (e *Engine[T, P]) push(ctx context.Context, res *schema.SyncResult) error {
	dirty, err := e.src.ListDirty(ctx)
	if err != nil {
		return fmt.Errorf("failed to list dirty %s: %w", e.src.Name(), err)
	}

	for _, rec := range dirty {
		if err := ctx.Err(); err != nil {
			return err
		}

		id := rec.Meta().ID
		if err := e.pushOne(ctx, rec, res); err != nil {
			res.Fail(fmt.Sprintf("Failed to sync item %s: %v", id, err))
			if e.stampOnFailure {
				if err := e.src.MarkSynced(ctx, id, nil, e.now()); err != nil {
					e.logger.Printf("Warning: failed to stamp %s %s: %v", e.src.Name(), id, err)
				}
			}
		}
	}
	return nil
}

func (e *Engine[T, P]) pushOne(ctx context.Context, rec P, res *schema.SyncResult) error {
	m := rec.Meta()

	switch {
	case m.HasRemote():
		out, err := e.src.UpdateRemote(ctx, *m.RemoteID, rec)
		if err != nil {
			return err
		}
		if m.IsDeleted {
			res.Deleted++
		} else {
			res.Updated++
		}
		return e.src.MarkSynced(ctx, m.ID, nil, e.stampAt(m.UpdatedAt, out.Meta().UpdatedAt))

	case m.IsDeleted:
		// Never reached the remote, so there is nothing to delete there.
		return e.src.MarkSynced(ctx, m.ID, nil, e.stampAt(m.UpdatedAt))

	default:
		out, err := e.src.SaveRemote(ctx, rec)
		if err != nil {
			return err
		}
		res.Created++
		remoteID := out.Meta().ID
		return e.src.MarkSynced(ctx, m.ID, &remoteID, e.stampAt(m.UpdatedAt, out.Meta().UpdatedAt))
	}
}

func (e *Engine[T, P]) pull(ctx context.Context, res *schema.SyncResult) error {
	remotes, err := e.src.FetchRemote(ctx, e.pullFilter)
	if err != nil {
		return fmt.Errorf("failed to fetch remote %s: %w", e.src.Name(), err)
	}

	for _, rec := range remotes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.pullOne(ctx, rec, res); err != nil {
			res.Fail(fmt.Sprintf("Failed to sync item %s: %v", rec.Meta().ID, err))
		}
	}
	return nil
}

func (e *Engine[T, P]) pullOne(ctx context.Context, remote P, res *schema.SyncResult) error {
	rm := remote.Meta()
	remoteID := rm.ID
	if remoteID == "" {
		return errors.New("remote record has no id")
	}

	local, err := e.src.FindByRemoteID(ctx, remoteID)
	if err != nil {
		return err
	}

	if local == nil {
		if rm.IsDeleted {
			// Deleted before this device ever saw it.
			return nil
		}

		rec := P(new(T))
		*rec = *remote
		m := rec.Meta()
		m.ID = ""
		m.RemoteID = &remoteID
		m.LastSyncAt = nil

		saved, err := e.src.SaveLocal(ctx, rec)
		if err != nil {
			return err
		}
		res.Created++
		return e.src.MarkSynced(ctx, saved.Meta().ID, nil, e.stampAt(saved.Meta().UpdatedAt, rm.UpdatedAt))
	}

	lm := local.Meta()
	if !rm.UpdatedAt.After(lm.SyncTime()) {
		return nil
	}

	if Conflicting(lm, rm) {
		c, err := e.conflict(local, remote)
		if err != nil {
			return err
		}
		res.Conflicts = append(res.Conflicts, c)
		return nil
	}

	wasDeleted := lm.IsDeleted
	merged, err := e.src.UpdateLocal(ctx, lm.ID, func(dst P) { overwrite[T, P](dst, remote) })
	if err != nil {
		return err
	}
	if rm.IsDeleted && !wasDeleted {
		res.Deleted++
	} else {
		res.Updated++
	}
	return e.src.MarkSynced(ctx, lm.ID, nil, e.stampAt(merged.Meta().UpdatedAt, rm.UpdatedAt))
}

// Conflicting reports whether both sides changed since the local record's
// last sync and disagree on when.
func Conflicting(local, remote *schema.Syncable) bool {
	syncTime := local.SyncTime()
	return local.UpdatedAt.After(syncTime) &&
		remote.UpdatedAt.After(syncTime) &&
		!local.UpdatedAt.Equal(remote.UpdatedAt)
}

func (e *Engine[T, P]) conflict(local, remote P) (schema.Conflict, error) {
	lm, rm := local.Meta(), remote.Meta()

	localData, err := json.Marshal(local)
	if err != nil {
		return schema.Conflict{}, fmt.Errorf("failed to encode local record: %w", err)
	}
	remoteData, err := json.Marshal(remote)
	if err != nil {
		return schema.Conflict{}, fmt.Errorf("failed to encode remote record: %w", err)
	}

	typ := schema.ConflictUpdate
	if lm.IsDeleted != rm.IsDeleted {
		typ = schema.ConflictDelete
	}

	return schema.Conflict{
		ID:           lm.ID,
		Table:        e.src.Name(),
		LocalData:    localData,
		RemoteData:   remoteData,
		ConflictType: typ,
	}, nil
}

// overwrite replaces dst's fields with remote's, keeping dst's local
// identity and sync bookkeeping.
func overwrite[T any, P schema.RecordPtr[T]](dst, remote P) {
	keep := *dst.Meta()
	*dst = *remote

	m := dst.Meta()
	m.ID = keep.ID
	m.RemoteID = keep.RemoteID
	m.CreatedAt = keep.CreatedAt
	m.LastSyncAt = keep.LastSyncAt
}
