package sync

import (
	"errors"
	"testing"
	"time"

	"github.com/aatrooox/localsync/internal/localsync/repo"
	"github.com/aatrooox/localsync/internal/localsync/schema"
)

func TestConflicting(t *testing.T) {
	synced := at(10, 1)
	tests := []struct {
		name   string
		local  time.Time
		remote time.Time
		synced *time.Time
		want   bool
	}{
		{"both changed", at(10, 3), at(10, 5), &synced, true},
		{"only remote changed", at(10, 0), at(10, 5), &synced, false},
		{"only local changed", at(10, 3), at(10, 0), &synced, false},
		{"same timestamp", at(10, 3), at(10, 3), &synced, false},
		{"never synced", at(10, 3), at(10, 5), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := &schema.Syncable{UpdatedAt: tt.local, LastSyncAt: tt.synced}
			remote := &schema.Syncable{UpdatedAt: tt.remote}
			if got := Conflicting(local, remote); got != tt.want {
				t.Errorf("Conflicting() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLastWriteWins(t *testing.T) {
	older := &schema.Todo{Syncable: schema.Syncable{UpdatedAt: at(10, 3)}}
	newer := &schema.Todo{Syncable: schema.Syncable{UpdatedAt: at(10, 5)}}

	if got := LastWriteWins(older, newer); got != TakeRemote {
		t.Errorf("LastWriteWins(older local) = %v, want %v", got, TakeRemote)
	}
	if got := LastWriteWins(newer, older); got != KeepLocal {
		t.Errorf("LastWriteWins(newer local) = %v, want %v", got, KeepLocal)
	}
	if got := LastWriteWins(newer, newer); got != KeepLocal {
		t.Errorf("LastWriteWins(tie) = %v, want %v", got, KeepLocal)
	}
}

func TestResolveConflict_TakeRemote(t *testing.T) {
	env := newEnv(t, nil)
	env.linked(t, "X", "r9", at(10, 3), at(10, 1))
	env.seedRemote("r9", "Y", at(10, 5), false)
	env.clock.Set(at(10, 6))

	res := env.engine.Pull(env.ctx)
	if len(res.Conflicts) != 1 {
		t.Fatalf("len(Conflicts) = %d, want 1", len(res.Conflicts))
	}

	got, err := env.engine.ResolveConflict(env.ctx, res.Conflicts[0], nil)
	if err != nil {
		t.Fatalf("ResolveConflict() failed: %v", err)
	}
	if got != TakeRemote {
		t.Errorf("ResolveConflict() = %v, want %v", got, TakeRemote)
	}

	a1 := env.local(t, "a1")
	if a1.Title != "Y" || a1.IsDirty() {
		t.Errorf("a1 = %+v, want clean remote copy", a1)
	}
	if a1.RemoteID == nil || *a1.RemoteID != "r9" {
		t.Errorf("a1.remote_id = %v, want r9", a1.RemoteID)
	}

	env.clock.Advance(time.Minute)
	next := env.engine.Sync(env.ctx)
	assertClean(t, next)
	if len(next.Conflicts) != 0 || next.Changed() != 0 {
		t.Errorf("pass after resolution = %+v, want no changes", next)
	}
}

func TestResolveConflict_KeepLocal(t *testing.T) {
	env := newEnv(t, nil)
	env.linked(t, "X", "r9", at(10, 7), at(10, 1))
	env.seedRemote("r9", "Y", at(10, 5), false)
	env.clock.Set(at(10, 8))

	res := env.engine.Pull(env.ctx)
	if len(res.Conflicts) != 1 {
		t.Fatalf("len(Conflicts) = %d, want 1", len(res.Conflicts))
	}

	got, err := env.engine.Resolve(env.ctx, res.Conflicts[0])
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if got != KeepLocal {
		t.Errorf("Resolve() = %v, want %v", got, KeepLocal)
	}
	if a1 := env.local(t, "a1"); a1.Title != "X" {
		t.Errorf("a1.title = %q, want %q", a1.Title, "X")
	}

	// The kept local edit wins on the next pass.
	next := env.engine.Sync(env.ctx)
	assertClean(t, next)
	if next.Updated != 1 || len(next.Conflicts) != 0 {
		t.Errorf("updated/conflicts = %d/%d, want 1/0", next.Updated, len(next.Conflicts))
	}
	if r9, _ := env.srv.Get("todos", "r9"); r9["title"] != "X" {
		t.Errorf("remote title = %v, want X", r9["title"])
	}
}

func TestResolveConflict_CustomPolicy(t *testing.T) {
	env := newEnv(t, nil)
	env.linked(t, "X", "r9", at(10, 7), at(10, 1))
	env.seedRemote("r9", "Y", at(10, 5), false)
	env.clock.Set(at(10, 8))

	res := env.engine.Pull(env.ctx)
	if len(res.Conflicts) != 1 {
		t.Fatalf("len(Conflicts) = %d, want 1", len(res.Conflicts))
	}

	env.engine.WithPolicy(PreferRemote[schema.Todo, *schema.Todo])
	got, err := env.engine.Resolve(env.ctx, res.Conflicts[0])
	if err != nil || got != TakeRemote {
		t.Fatalf("Resolve() = %v, %v, want %v", got, err, TakeRemote)
	}
	if a1 := env.local(t, "a1"); a1.Title != "Y" {
		t.Errorf("a1.title = %q, want %q", a1.Title, "Y")
	}
}

func TestResolveConflict_Errors(t *testing.T) {
	env := newEnv(t, nil)

	_, err := env.engine.ResolveConflict(env.ctx, schema.Conflict{ID: "a1", Table: "users"}, nil)
	if err == nil {
		t.Error("ResolveConflict() accepted a conflict for another table")
	}

	_, err = env.engine.ResolveConflict(env.ctx, schema.Conflict{ID: "missing", RemoteData: []byte(`{"id":"r1"}`)}, nil)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("ResolveConflict(missing) error = %v, want ErrNotFound", err)
	}
}

func TestResolution_String(t *testing.T) {
	if KeepLocal.String() != "keep-local" || TakeRemote.String() != "take-remote" {
		t.Errorf("String() = %q, %q", KeepLocal.String(), TakeRemote.String())
	}
}

func TestPolicyFor(t *testing.T) {
	older := &schema.Todo{Syncable: schema.Syncable{UpdatedAt: at(10, 3)}}
	newer := &schema.Todo{Syncable: schema.Syncable{UpdatedAt: at(10, 5)}}

	tests := []struct {
		strategy Strategy
		want     Resolution
	}{
		{"", KeepLocal},
		{StrategyLastWriteWins, KeepLocal},
		{StrategyPreferLocal, KeepLocal},
		{StrategyPreferRemote, TakeRemote},
	}
	for _, tt := range tests {
		policy, err := PolicyFor[schema.Todo, *schema.Todo](tt.strategy)
		if err != nil {
			t.Fatalf("PolicyFor(%q) failed: %v", tt.strategy, err)
		}
		if got := policy(newer, older); got != tt.want {
			t.Errorf("PolicyFor(%q)(newer, older) = %v, want %v", tt.strategy, got, tt.want)
		}
	}

	if _, err := PolicyFor[schema.Todo, *schema.Todo]("newest"); err == nil {
		t.Error("PolicyFor(newest) succeeded, want error")
	}
}

func TestResolveWith(t *testing.T) {
	env := newEnv(t, nil)
	env.linked(t, "X", "r9", at(10, 7), at(10, 1))
	env.seedRemote("r9", "Y", at(10, 5), false)
	env.clock.Set(at(10, 8))

	res := env.engine.Pull(env.ctx)
	if len(res.Conflicts) != 1 {
		t.Fatalf("len(Conflicts) = %d, want 1", len(res.Conflicts))
	}

	if _, err := env.engine.ResolveWith(env.ctx, res.Conflicts[0], "bogus"); err == nil {
		t.Error("ResolveWith(bogus) succeeded")
	}

	// Local is newer, so only an explicit remote preference overwrites it.
	got, err := env.engine.ResolveWith(env.ctx, res.Conflicts[0], StrategyPreferRemote)
	if err != nil || got != TakeRemote {
		t.Fatalf("ResolveWith(remote) = %v, %v, want %v", got, err, TakeRemote)
	}
	if a1 := env.local(t, "a1"); a1.Title != "Y" || a1.IsDirty() {
		t.Errorf("a1 = %+v, want clean remote copy", a1)
	}
}
