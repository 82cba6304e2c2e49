package daemon

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aatrooox/localsync/internal/localsync/schema"
)

// fakeSyncer counts passes and signals each one.
type fakeSyncer struct {
	mu    sync.Mutex
	calls int
	err   error
	ran   chan struct{}
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{ran: make(chan struct{}, 100)}
}

func (s *fakeSyncer) SyncAll(ctx context.Context) (map[string]*schema.SyncResult, error) {
	s.mu.Lock()
	s.calls++
	err := s.err
	s.mu.Unlock()

	s.ran <- struct{}{}
	if err != nil {
		return nil, err
	}
	res := schema.NewSyncResult()
	res.Created = 1
	return map[string]*schema.SyncResult{"todos": res}, nil
}

func (s *fakeSyncer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// waitRun waits for one pass or fails after timeout.
func (s *fakeSyncer) waitRun(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-s.ran:
	case <-time.After(timeout):
		t.Fatalf("no sync pass within %v", timeout)
	}
}

type fakePublisher struct {
	mu      sync.Mutex
	batches []map[string]*schema.SyncResult
}

func (p *fakePublisher) PublishResults(results map[string]*schema.SyncResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, results)
}

type fixedInterval time.Duration

func (f fixedInterval) RemoteConfig() schema.RemoteConfig {
	return schema.RemoteConfig{SyncIntervalMS: time.Duration(f).Milliseconds()}
}

func testConfig() *Config {
	return &Config{
		DefaultInterval:  time.Hour,
		DebounceInterval: 50 * time.Millisecond,
		Logger:           log.New(io.Discard, "", 0),
	}
}

// startDaemon runs d.Start in the background and stops it at cleanup.
func startDaemon(t *testing.T, d *Daemon) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start() returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})
}

func TestNew(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("New(nil) succeeded, want error")
	}

	d, err := NewWithConfig(newFakeSyncer(), &Config{})
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	if d.config.DefaultInterval != 5*time.Minute || d.config.DebounceInterval != 500*time.Millisecond {
		t.Errorf("defaults not applied: %+v", d.config)
	}
	if d.config.Logger == nil {
		t.Error("Logger not defaulted")
	}
}

func TestInterval(t *testing.T) {
	d, _ := NewWithConfig(newFakeSyncer(), testConfig())
	if got := d.Interval(); got != time.Hour {
		t.Errorf("Interval() = %v, want %v", got, time.Hour)
	}

	d.SetIntervalSource(fixedInterval(90 * time.Second))
	if got := d.Interval(); got != 90*time.Second {
		t.Errorf("Interval() = %v, want %v", got, 90*time.Second)
	}

	d.SetIntervalSource(fixedInterval(0))
	if got := d.Interval(); got != time.Hour {
		t.Errorf("Interval() with zero config = %v, want default", got)
	}
}

func TestRunOnce_Publishes(t *testing.T) {
	s := newFakeSyncer()
	p := &fakePublisher{}
	d, _ := NewWithConfig(s, testConfig())
	d.SetPublisher(p)

	results, err := d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() failed: %v", err)
	}
	if results["todos"] == nil || results["todos"].Created != 1 {
		t.Errorf("RunOnce() = %v", results)
	}
	if len(p.batches) != 1 {
		t.Errorf("published %d batches, want 1", len(p.batches))
	}

	s.err = errors.New("not initialized")
	if _, err := d.RunOnce(context.Background()); err == nil {
		t.Error("RunOnce() swallowed the syncer error")
	}
	if len(p.batches) != 1 {
		t.Error("a failed pass was published")
	}
}

func TestStart_Periodic(t *testing.T) {
	s := newFakeSyncer()
	d, _ := NewWithConfig(s, testConfig())
	d.SetIntervalSource(fixedInterval(20 * time.Millisecond))
	startDaemon(t, d)

	// Initial pass plus at least two ticks.
	for i := 0; i < 3; i++ {
		s.waitRun(t, 2*time.Second)
	}
}

func TestStart_Trigger(t *testing.T) {
	s := newFakeSyncer()
	d, _ := NewWithConfig(s, testConfig())
	startDaemon(t, d)

	s.waitRun(t, 2*time.Second)
	d.Trigger()
	s.waitRun(t, 2*time.Second)

	if got := s.count(); got != 2 {
		t.Errorf("passes = %d, want 2", got)
	}
}

func TestStart_WatchesDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "lsync.db")
	if err := os.WriteFile(dbPath, []byte("initial"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	s := newFakeSyncer()
	cfg := testConfig()
	cfg.WatchPath = dbPath
	d, _ := NewWithConfig(s, cfg)
	startDaemon(t, d)

	s.waitRun(t, 2*time.Second)

	// Wait out the post-pass quiet window before writing.
	time.Sleep(3 * cfg.DebounceInterval)

	// Unrelated files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	select {
	case <-s.ran:
		t.Fatal("unrelated file triggered a pass")
	case <-time.After(4 * cfg.DebounceInterval):
	}

	if err := os.WriteFile(dbPath+"-wal", []byte("change"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	s.waitRun(t, 5*time.Second)
}

func TestStop(t *testing.T) {
	s := newFakeSyncer()
	d, _ := NewWithConfig(s, testConfig())

	done := make(chan error, 1)
	go func() { done <- d.Start(context.Background()) }()
	s.waitRun(t, 2*time.Second)

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v after Stop()", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}
