package configstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aatrooox/localsync/internal/clock"
	"github.com/aatrooox/localsync/internal/localsync/db"
	"github.com/aatrooox/localsync/internal/localsync/schema"
)

func openTestStore(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return database
}

func quietOptions() *Options {
	return &Options{
		Clock:  clock.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)),
		Logger: log.New(io.Discard, "", 0),
	}
}

// recorder collects every config it is handed.
type recorder struct {
	got []schema.RemoteConfig
}

func (r *recorder) SetRemoteConfig(cfg schema.RemoteConfig) {
	r.got = append(r.got, cfg)
}

func (r *recorder) last() schema.RemoteConfig {
	return r.got[len(r.got)-1]
}

var enabled = schema.RemoteConfig{
	Enabled:        true,
	BaseURL:        "https://sync.example.com/api",
	APIKey:         "secret",
	SyncIntervalMS: 60000,
	Features:       schema.Features{ContentSync: true, Notifications: true},
}

func TestLoad_Missing(t *testing.T) {
	rec := &recorder{}
	s := New(openTestStore(t), quietOptions(), rec)

	found, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if found {
		t.Error("Load() found a config in an empty store")
	}
	if len(rec.got) != 1 || rec.last() != schema.DefaultRemoteConfig() {
		t.Errorf("listener got %v, want the default config", rec.got)
	}
}

func TestSetRemoteConfig_PersistsAndFansOut(t *testing.T) {
	ctx := context.Background()
	database := openTestStore(t)
	a, b := &recorder{}, &recorder{}
	s := New(database, quietOptions(), a)
	s.Register(b)

	if err := s.SetRemoteConfig(ctx, enabled); err != nil {
		t.Fatalf("SetRemoteConfig() failed: %v", err)
	}
	if s.RemoteConfig() != enabled {
		t.Errorf("RemoteConfig() = %+v, want %+v", s.RemoteConfig(), enabled)
	}
	if a.last() != enabled || b.last() != enabled {
		t.Error("listeners did not receive the new config")
	}

	// Upsert keeps a single row.
	updated := enabled
	updated.Features.DynamicFeed = true
	if err := s.SetRemoteConfig(ctx, updated); err != nil {
		t.Fatalf("SetRemoteConfig() failed: %v", err)
	}
	rows, err := database.Select(ctx, "SELECT key, value, updated_at FROM app_config")
	if err != nil {
		t.Fatalf("Select() failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("app_config has %d rows, want 1", len(rows))
	}
	if rows[0].String("key") != RemoteConfigKey {
		t.Errorf("key = %q, want %q", rows[0].String("key"), RemoteConfigKey)
	}
	for _, want := range []string{`"baseUrl":"https://sync.example.com/api"`, `"syncInterval":60000`, `"dynamicFeed":true`} {
		if !strings.Contains(rows[0].String("value"), want) {
			t.Errorf("value = %s, missing %s", rows[0].String("value"), want)
		}
	}
	if rows[0].String("updated_at") != "2024-03-01T10:00:00.000000000Z" {
		t.Errorf("updated_at = %q", rows[0].String("updated_at"))
	}

	// A fresh store sees the persisted config.
	fresh := &recorder{}
	reloaded := New(database, quietOptions(), fresh)
	found, err := reloaded.Load(ctx)
	if err != nil || !found {
		t.Fatalf("Load() = %v, %v, want true, nil", found, err)
	}
	if reloaded.RemoteConfig() != updated || fresh.last() != updated {
		t.Errorf("reloaded config = %+v, want %+v", reloaded.RemoteConfig(), updated)
	}
}

func TestSetRemoteConfig_Validation(t *testing.T) {
	rec := &recorder{}
	s := New(openTestStore(t), quietOptions(), rec)

	err := s.SetRemoteConfig(context.Background(), schema.RemoteConfig{Enabled: true, BaseURL: "  "})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("SetRemoteConfig() error = %v, want ErrInvalidConfig", err)
	}
	if len(rec.got) != 0 {
		t.Error("an invalid config was fanned out")
	}

	if err := s.SetRemoteConfig(context.Background(), schema.RemoteConfig{Enabled: false}); err != nil {
		t.Errorf("SetRemoteConfig(disabled, no URL) error = %v, want nil", err)
	}
}

// failingStore rejects every statement.
type failingStore struct{}

func (failingStore) Select(ctx context.Context, query string, args ...any) ([]db.Row, error) {
	return nil, errors.New("disk on fire")
}

func (failingStore) Execute(ctx context.Context, query string, args ...any) (db.ExecResult, error) {
	return db.ExecResult{}, errors.New("disk on fire")
}

func TestSetRemoteConfig_PersistFailureKeepsMemory(t *testing.T) {
	var logs bytes.Buffer
	rec := &recorder{}
	s := New(failingStore{}, &Options{Logger: log.New(&logs, "", 0)}, rec)

	if err := s.SetRemoteConfig(context.Background(), enabled); err != nil {
		t.Fatalf("SetRemoteConfig() error = %v, want nil", err)
	}
	if s.RemoteConfig() != enabled || rec.last() != enabled {
		t.Error("in-memory config rolled back after a persistence failure")
	}
	if !strings.Contains(logs.String(), "disk on fire") {
		t.Errorf("log = %q, want the persistence failure", logs.String())
	}

	if _, err := s.Load(context.Background()); err == nil {
		t.Error("Load() on a failing store succeeded")
	}
}

func TestListenerFunc(t *testing.T) {
	var got schema.RemoteConfig
	s := New(openTestStore(t), quietOptions())
	s.Register(ListenerFunc(func(cfg schema.RemoteConfig) { got = cfg }))

	if got != schema.DefaultRemoteConfig() {
		t.Errorf("Register() handed %+v, want the current config", got)
	}
	if err := s.SetRemoteConfig(context.Background(), enabled); err != nil {
		t.Fatalf("SetRemoteConfig() failed: %v", err)
	}
	if got != enabled {
		t.Errorf("listener got %+v, want %+v", got, enabled)
	}
}
