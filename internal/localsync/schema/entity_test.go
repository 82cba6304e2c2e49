package schema

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSyncable_IsDirty(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		updated  time.Time
		lastSync *time.Time
		want     bool
	}{
		{"never synced", base, nil, true},
		{"updated after sync", base.Add(time.Minute), Ptr(base), true},
		{"synced after update", base, Ptr(base.Add(time.Minute)), false},
		{"synced at update time", base, Ptr(base), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Syncable{UpdatedAt: tt.updated, LastSyncAt: tt.lastSync}
			if got := s.IsDirty(); got != tt.want {
				t.Errorf("IsDirty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextUpdate_StrictlyIncreasing(t *testing.T) {
	prev := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	if got := NextUpdate(prev, prev); !got.After(prev) {
		t.Errorf("NextUpdate(prev, prev) = %v, want after %v", got, prev)
	}
	if got := NextUpdate(prev.Add(-time.Hour), prev); !got.After(prev) {
		t.Errorf("NextUpdate with clock behind = %v, want after %v", got, prev)
	}
	later := prev.Add(time.Second)
	if got := NextUpdate(later, prev); !got.Equal(later) {
		t.Errorf("NextUpdate(later, prev) = %v, want %v", got, later)
	}
}

func TestFormatTime_LexicalOrder(t *testing.T) {
	a := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	b := a.Add(500 * time.Millisecond)
	c := a.Add(time.Second)

	fa, fb, fc := FormatTime(a), FormatTime(b), FormatTime(c)
	if !(fa < fb && fb < fc) {
		t.Errorf("formatted times not lexically ordered: %q %q %q", fa, fb, fc)
	}
	if len(fa) != len(fb) || len(fb) != len(fc) {
		t.Errorf("formatted times not fixed width: %q %q %q", fa, fb, fc)
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 3, 1, 10, 0, 0, 123000000, time.UTC)

	for _, in := range []string{FormatTime(want), "2024-03-01T10:00:00.123Z", "2024-03-01T12:00:00.123+02:00"} {
		got, err := ParseTime(in)
		if err != nil {
			t.Fatalf("ParseTime(%q) failed: %v", in, err)
		}
		if !got.Equal(want) {
			t.Errorf("ParseTime(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseTime("yesterday"); err == nil {
		t.Error("ParseTime should reject non-timestamps")
	}
}

func TestRecordPtr_Meta(t *testing.T) {
	todo := &Todo{Title: "x"}
	todo.ID = "t1"

	var rec Record = todo
	if rec.Meta().ID != "t1" {
		t.Errorf("Meta().ID = %q, want %q", rec.Meta().ID, "t1")
	}
	rec.Meta().IsDeleted = true
	if !todo.IsDeleted {
		t.Error("Meta() should return a pointer into the entity")
	}
}

func TestTodo_Validate(t *testing.T) {
	if err := (&Todo{Title: "ok", Priority: PriorityLow}).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
	if err := (&Todo{}).Validate(); err == nil {
		t.Error("Validate() should require a title")
	}
	if err := (&Todo{Title: "x", Priority: 7}).Validate(); err == nil {
		t.Error("Validate() should reject out-of-range priority")
	}
	if err := (&Todo{Title: strings.Repeat("a", 501)}).Validate(); err == nil {
		t.Error("Validate() should reject long titles")
	}
}

func TestRemoteConfig_JSONKeys(t *testing.T) {
	cfg := RemoteConfig{
		Enabled:        true,
		BaseURL:        "https://api.example.com",
		APIKey:         "k",
		SyncIntervalMS: 60000,
		Features:       Features{ContentSync: true, Notifications: true},
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, key := range []string{`"baseUrl"`, `"apiKey"`, `"syncInterval":60000`, `"contentSync":true`, `"dynamicFeed":false`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("marshaled config %s missing %s", data, key)
		}
	}
	if cfg.SyncInterval() != time.Minute {
		t.Errorf("SyncInterval() = %v, want 1m", cfg.SyncInterval())
	}
}

func TestRemoteConfig_SyncEnabled(t *testing.T) {
	cfg := DefaultRemoteConfig()
	if cfg.SyncEnabled() {
		t.Error("default config should not enable sync")
	}
	cfg.Enabled = true
	if !cfg.SyncEnabled() {
		t.Error("enabled config with contentSync should enable sync")
	}
	cfg.Features.ContentSync = false
	if cfg.SyncEnabled() {
		t.Error("contentSync=false should disable sync")
	}
}

func TestSyncResult_Fail(t *testing.T) {
	r := NewSyncResult()
	if !r.Success {
		t.Fatal("new result should be successful")
	}
	r.Fail("boom")
	if r.Success || len(r.Errors) != 1 || r.Errors[0] != "boom" {
		t.Errorf("after Fail: %+v", r)
	}
}
