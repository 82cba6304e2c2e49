package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aatrooox/localsync/internal/localsync/repo"
	"github.com/aatrooox/localsync/internal/localsync/schema"
)

// Resolution is the outcome of a conflict policy.
type Resolution int

const (
	// KeepLocal leaves the local record as is. It stays dirty, so the next
	// push sends it to the remote.
	KeepLocal Resolution = iota

	// TakeRemote overwrites the local record with the remote one.
	TakeRemote
)

func (r Resolution) String() string {
	switch r {
	case KeepLocal:
		return "keep-local"
	case TakeRemote:
		return "take-remote"
	default:
		return fmt.Sprintf("Resolution(%d)", int(r))
	}
}

// Policy decides a conflict given the current local record and the remote
// record captured with the conflict.
type Policy[T any, P schema.RecordPtr[T]] func(local, remote P) Resolution

// LastWriteWins takes the remote record only when its updated_at is
// strictly later than the local one.
func LastWriteWins[T any, P schema.RecordPtr[T]](local, remote P) Resolution {
	if remote.Meta().UpdatedAt.After(local.Meta().UpdatedAt) {
		return TakeRemote
	}
	return KeepLocal
}

// PreferLocal always keeps the local record.
func PreferLocal[T any, P schema.RecordPtr[T]](local, remote P) Resolution {
	return KeepLocal
}

// PreferRemote always takes the remote record.
func PreferRemote[T any, P schema.RecordPtr[T]](local, remote P) Resolution {
	return TakeRemote
}

// Strategy names a built-in policy.
type Strategy string

const (
	StrategyLastWriteWins Strategy = "lww"
	StrategyPreferLocal   Strategy = "local"
	StrategyPreferRemote  Strategy = "remote"
)

// PolicyFor returns the built-in policy named by s.
func PolicyFor[T any, P schema.RecordPtr[T]](s Strategy) (Policy[T, P], error) {
	switch s {
	case StrategyLastWriteWins, "":
		return LastWriteWins[T, P], nil
	case StrategyPreferLocal:
		return PreferLocal[T, P], nil
	case StrategyPreferRemote:
		return PreferRemote[T, P], nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (want lww, local or remote)", s)
	}
}

// ResolveWith applies the built-in policy named by s to c.
func (e *Engine[T, P]) ResolveWith(ctx context.Context, c schema.Conflict, s Strategy) (Resolution, error) {
	policy, err := PolicyFor[T, P](s)
	if err != nil {
		return KeepLocal, err
	}
	return e.ResolveConflict(ctx, c, policy)
}

// Resolve applies the engine's policy to c.
func (e *Engine[T, P]) Resolve(ctx context.Context, c schema.Conflict) (Resolution, error) {
	return e.ResolveConflict(ctx, c, e.policy)
}

// ResolveConflict applies policy to c; a nil policy means last-write-wins.
// The local side is reloaded so edits made after the conflict was
// reported are taken into account.
func (e *Engine[T, P]) ResolveConflict(ctx context.Context, c schema.Conflict, policy Policy[T, P]) (Resolution, error) {
	if policy == nil {
		policy = LastWriteWins[T, P]
	}
	if c.Table != "" && c.Table != e.src.Name() {
		return KeepLocal, fmt.Errorf("conflict for table %q resolved against %q", c.Table, e.src.Name())
	}

	if !e.running.CompareAndSwap(false, true) {
		return KeepLocal, ErrInProgress
	}
	defer e.running.Store(false)

	remote := P(new(T))
	if err := json.Unmarshal(c.RemoteData, remote); err != nil {
		return KeepLocal, fmt.Errorf("failed to decode remote data for %s: %w", c.ID, err)
	}

	local, err := e.src.Lookup(ctx, c.ID)
	if err != nil {
		return KeepLocal, err
	}
	if local == nil {
		return KeepLocal, fmt.Errorf("%w: %s %s", repo.ErrNotFound, e.src.Name(), c.ID)
	}

	decision := policy(local, remote)
	if decision != TakeRemote {
		return decision, nil
	}

	merged, err := e.src.UpdateLocal(ctx, c.ID, func(dst P) { overwrite[T, P](dst, remote) })
	if err != nil {
		return KeepLocal, err
	}
	at := e.stampAt(merged.Meta().UpdatedAt, remote.Meta().UpdatedAt)
	if err := e.src.MarkSynced(ctx, c.ID, nil, at); err != nil {
		return TakeRemote, err
	}
	e.logger.Printf("Resolved %s %s: %s", e.src.Name(), c.ID, decision)
	return decision, nil
}
