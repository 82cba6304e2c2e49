package manager

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aatrooox/localsync/internal/clock"
	"github.com/aatrooox/localsync/internal/localsync/configstore"
	"github.com/aatrooox/localsync/internal/localsync/db"
	"github.com/aatrooox/localsync/internal/localsync/devremote"
	"github.com/aatrooox/localsync/internal/localsync/repo"
	"github.com/aatrooox/localsync/internal/localsync/schema"
	lsync "github.com/aatrooox/localsync/internal/localsync/sync"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	ctx     context.Context
	clock   *clock.FakeClock
	db      *db.DB
	srv     *devremote.Server
	baseURL string
	manager *Manager
}

func newFixture(t *testing.T, listeners ...configstore.Listener) *fixture {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	fc := clock.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	srv := devremote.New(&devremote.Options{Clock: fc, Logger: quiet})
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	return &fixture{
		ctx:     context.Background(),
		clock:   fc,
		db:      database,
		srv:     srv,
		baseURL: hs.URL + srv.Prefix(),
		manager: New(&Options{Clock: fc, Logger: quiet, Listeners: listeners}),
	}
}

func (f *fixture) init(t *testing.T) {
	t.Helper()
	if err := f.manager.Initialize(f.ctx, f.db); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
}

func (f *fixture) enable(t *testing.T) {
	t.Helper()
	cfg, err := f.manager.Config()
	if err != nil {
		t.Fatalf("Config() failed: %v", err)
	}
	err = cfg.SetRemoteConfig(f.ctx, schema.RemoteConfig{
		Enabled:  true,
		BaseURL:  f.baseURL,
		Features: schema.Features{ContentSync: true},
	})
	if err != nil {
		t.Fatalf("SetRemoteConfig() failed: %v", err)
	}
}

func TestAccessors_NotInitialized(t *testing.T) {
	m := New(&Options{Logger: log.New(io.Discard, "", 0)})

	if _, err := m.Users(); !errors.Is(err, repo.ErrNotInitialized) {
		t.Errorf("Users() error = %v, want ErrNotInitialized", err)
	}
	if _, err := m.Todos(); !errors.Is(err, repo.ErrNotInitialized) {
		t.Errorf("Todos() error = %v, want ErrNotInitialized", err)
	}
	if _, err := m.Config(); !errors.Is(err, repo.ErrNotInitialized) {
		t.Errorf("Config() error = %v, want ErrNotInitialized", err)
	}
	if _, err := m.SyncAll(context.Background()); !errors.Is(err, repo.ErrNotInitialized) {
		t.Errorf("SyncAll() error = %v, want ErrNotInitialized", err)
	}
	if _, err := m.Sync(context.Background(), "todos"); !errors.Is(err, repo.ErrNotInitialized) {
		t.Errorf("Sync() error = %v, want ErrNotInitialized", err)
	}
	if err := m.Initialize(context.Background(), nil); err == nil {
		t.Error("Initialize(nil) succeeded")
	}
}

func TestInitialize(t *testing.T) {
	f := newFixture(t)
	f.init(t)

	if _, err := f.manager.Users(); err != nil {
		t.Errorf("Users() error = %v", err)
	}
	if _, err := f.manager.Todos(); err != nil {
		t.Errorf("Todos() error = %v", err)
	}
	names := f.manager.Names()
	if len(names) != 2 || names[0] != "users" || names[1] != "todos" {
		t.Errorf("Names() = %v, want [users todos]", names)
	}
	if _, err := f.manager.Runner("projects"); err == nil {
		t.Error("Runner(projects) succeeded")
	}
}

// Scenario D: disabling the remote makes SyncAll a no-op.
func TestSyncAll_Disabled(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	f.enable(t)

	todos, _ := f.manager.Todos()
	if _, err := todos.SaveLocal(f.ctx, &schema.Todo{Title: "X"}); err != nil {
		t.Fatalf("SaveLocal() failed: %v", err)
	}

	cfg, _ := f.manager.Config()
	if err := cfg.SetRemoteConfig(f.ctx, schema.RemoteConfig{Enabled: false, Features: schema.Features{ContentSync: true}}); err != nil {
		t.Fatalf("SetRemoteConfig() failed: %v", err)
	}

	results, err := f.manager.SyncAll(f.ctx)
	if err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("SyncAll() = %v, want an empty map", results)
	}
	if n := len(f.srv.Records("todos")); n != 0 {
		t.Errorf("remote has %d todos, want 0", n)
	}
	if todos.RemoteEnabled() {
		t.Error("repository still sees the remote as enabled")
	}
}

func TestSyncAll_ContentSyncOff(t *testing.T) {
	f := newFixture(t)
	f.init(t)

	cfg, _ := f.manager.Config()
	if err := cfg.SetRemoteConfig(f.ctx, schema.RemoteConfig{Enabled: true, BaseURL: f.baseURL}); err != nil {
		t.Fatalf("SetRemoteConfig() failed: %v", err)
	}
	results, err := f.manager.SyncAll(f.ctx)
	if err != nil || len(results) != 0 {
		t.Errorf("SyncAll() = %v, %v, want empty map", results, err)
	}
}

func TestSyncAll_Enabled(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	f.enable(t)

	users, _ := f.manager.Users()
	todos, _ := f.manager.Todos()
	u, err := users.SaveLocal(f.ctx, &schema.User{Name: "Ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("SaveLocal(user) failed: %v", err)
	}
	if _, err := todos.SaveLocal(f.ctx, &schema.Todo{Title: "X", UserID: u.ID}); err != nil {
		t.Fatalf("SaveLocal(todo) failed: %v", err)
	}
	f.srv.Seed("todos", devremote.Record{"id": "r1", "title": "from elsewhere", "updated_at": "2024-03-01T09:00:00Z"})

	results, err := f.manager.SyncAll(f.ctx)
	if err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("SyncAll() returned %d results, want 2", len(results))
	}
	if r := results["users"]; !r.Success || r.Created != 1 {
		t.Errorf("users result = %+v, want 1 created", r)
	}
	if r := results["todos"]; !r.Success || r.Created != 2 {
		t.Errorf("todos result = %+v, want 2 created", r)
	}
	if n := len(f.srv.Records("users")); n != 1 {
		t.Errorf("remote has %d users, want 1", n)
	}

	again, err := f.manager.Sync(f.ctx, "todos")
	if err != nil {
		t.Fatalf("Sync(todos) failed: %v", err)
	}
	if !again.Success || again.Changed() != 0 {
		t.Errorf("second todos pass = %+v, want no changes", again)
	}
}

func TestInitialize_LoadsPersistedConfig(t *testing.T) {
	var seen []schema.RemoteConfig
	listener := configstore.ListenerFunc(func(cfg schema.RemoteConfig) { seen = append(seen, cfg) })

	f := newFixture(t)
	f.init(t)
	f.enable(t)

	restarted := New(&Options{Clock: f.clock, Logger: log.New(io.Discard, "", 0), Listeners: []configstore.Listener{listener}})
	if err := restarted.Initialize(f.ctx, f.db); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	todos, _ := restarted.Todos()
	if !todos.RemoteEnabled() || todos.RemoteConfig().BaseURL != f.baseURL {
		t.Errorf("restarted repository config = %+v, want the persisted one", todos.RemoteConfig())
	}
	if len(seen) != 1 || !seen[0].Enabled {
		t.Errorf("extra listener saw %v, want the persisted config", seen)
	}
}

func TestResolveConflicts(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	f.enable(t)

	todos, _ := f.manager.Todos()
	if _, err := todos.SaveLocal(f.ctx, &schema.Todo{
		Syncable: schema.Syncable{
			ID:        "a1",
			RemoteID:  schema.Ptr("r9"),
			CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		},
		Title: "X",
	}); err != nil {
		t.Fatalf("SaveLocal() failed: %v", err)
	}
	if err := todos.MarkSynced(f.ctx, "a1", nil, time.Date(2024, 3, 1, 9, 10, 0, 0, time.UTC)); err != nil {
		t.Fatalf("MarkSynced() failed: %v", err)
	}
	f.srv.Seed("todos", devremote.Record{"id": "r9", "title": "Y", "updated_at": "2024-03-01T09:45:00Z"})

	runner, err := f.manager.Runner("todos")
	if err != nil {
		t.Fatalf("Runner() failed: %v", err)
	}
	engine := runner.(*lsync.Engine[schema.Todo, *schema.Todo])
	res := engine.Pull(f.ctx)
	if len(res.Conflicts) != 1 {
		t.Fatalf("len(Conflicts) = %d, want 1", len(res.Conflicts))
	}

	conflicts := append(res.Conflicts, schema.Conflict{ID: "x", Table: "projects"})
	out, err := f.manager.ResolveConflicts(f.ctx, conflicts)
	if err == nil {
		t.Error("ResolveConflicts() with an unknown table returned nil error")
	}
	if out[0] != lsync.TakeRemote {
		t.Errorf("resolution = %v, want %v", out[0], lsync.TakeRemote)
	}
	if a1, _ := todos.GetLocal(f.ctx, "a1"); a1 == nil || a1.Title != "Y" {
		t.Errorf("a1 = %+v, want remote title", a1)
	}
}

func TestResolveConflictsWith(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	f.enable(t)

	todos, _ := f.manager.Todos()
	if _, err := todos.SaveLocal(f.ctx, &schema.Todo{
		Syncable: schema.Syncable{
			ID:        "a1",
			RemoteID:  schema.Ptr("r9"),
			CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		},
		Title: "X",
	}); err != nil {
		t.Fatalf("SaveLocal() failed: %v", err)
	}
	if err := todos.MarkSynced(f.ctx, "a1", nil, time.Date(2024, 3, 1, 9, 10, 0, 0, time.UTC)); err != nil {
		t.Fatalf("MarkSynced() failed: %v", err)
	}
	f.srv.Seed("todos", devremote.Record{"id": "r9", "title": "Y", "updated_at": "2024-03-01T09:45:00Z"})

	runner, _ := f.manager.Runner("todos")
	res := runner.Pull(f.ctx)
	if len(res.Conflicts) != 1 {
		t.Fatalf("len(Conflicts) = %d, want 1", len(res.Conflicts))
	}

	out, err := f.manager.ResolveConflictsWith(f.ctx, res.Conflicts, lsync.StrategyPreferLocal)
	if err != nil {
		t.Fatalf("ResolveConflictsWith() failed: %v", err)
	}
	if out[0] != lsync.KeepLocal {
		t.Errorf("resolution = %v, want %v", out[0], lsync.KeepLocal)
	}
	if a1, _ := todos.GetLocal(f.ctx, "a1"); a1 == nil || a1.Title != "X" {
		t.Errorf("a1 = %+v, want local title kept", a1)
	}
}
