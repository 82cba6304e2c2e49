// Package daemon runs sync passes in the background.
//
// The daemon:
// 1. Runs a pass on startup
// 2. Runs a pass every sync interval (taken from the remote config)
// 3. Watches the database directory and runs a debounced pass when another
//    process writes to the local store
// 4. Publishes every outcome to an optional Publisher
// 5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aatrooox/localsync/internal/localsync/schema"
)

// Syncer runs one pass over every repository. *manager.Manager implements it.
type Syncer interface {
	SyncAll(ctx context.Context) (map[string]*schema.SyncResult, error)
}

// Publisher receives the outcome of every pass.
type Publisher interface {
	PublishResults(results map[string]*schema.SyncResult)
}

// IntervalSource supplies the current remote config, read before each wait.
type IntervalSource interface {
	RemoteConfig() schema.RemoteConfig
}

// Config holds configuration for the daemon.
type Config struct {
	// DefaultInterval is used when the remote config carries no interval
	DefaultInterval time.Duration

	// DebounceInterval is how long the database must be quiet before a
	// change-triggered pass runs
	DebounceInterval time.Duration

	// WatchPath is the database file to watch. Empty disables watching.
	WatchPath string

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultInterval:  5 * time.Minute,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon schedules sync passes.
type Daemon struct {
	syncer    Syncer
	intervals IntervalSource
	publisher Publisher
	config    *Config

	watcher *fsnotify.Watcher
	trigger chan struct{}

	changeMu    sync.Mutex
	lastChange  time.Time
	pending     bool
	runningPass bool
	quietUntil  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon with default configuration.
func New(syncer Syncer) (*Daemon, error) {
	return NewWithConfig(syncer, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(syncer Syncer, config *Config) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.DefaultInterval <= 0 {
		config.DefaultInterval = defaults.DefaultInterval
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = defaults.DebounceInterval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		syncer:  syncer,
		config:  config,
		trigger: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// SetIntervalSource makes the daemon follow the interval in src.
func (d *Daemon) SetIntervalSource(src IntervalSource) {
	d.intervals = src
}

// SetPublisher sets where pass outcomes are sent.
func (d *Daemon) SetPublisher(p Publisher) {
	d.publisher = p
}

// Interval returns the wait before the next scheduled pass.
func (d *Daemon) Interval() time.Duration {
	if d.intervals != nil {
		if iv := d.intervals.RemoteConfig().SyncInterval(); iv > 0 {
			return iv
		}
	}
	return d.config.DefaultInterval
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Run an initial pass
// 2. Start watching the database directory, if configured
// 3. Run a pass on every interval tick, trigger or settled change
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if d.config.WatchPath != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		dir := filepath.Dir(d.config.WatchPath)
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("failed to watch database directory: %w", err)
		}
		d.watcher = watcher
		d.config.Logger.Printf("Watching: %s", dir)

		d.wg.Add(2)
		go d.watchFileEvents()
		go d.processChangeQueue()
	}

	d.RunOnce(ctx)

	for {
		timer := time.NewTimer(d.Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			d.config.Logger.Println("Shutdown signal received")
			return d.Stop()

		case <-d.ctx.Done():
			timer.Stop()
			return nil

		case <-timer.C:
			d.RunOnce(ctx)

		case <-d.trigger:
			timer.Stop()
			d.RunOnce(ctx)
		}
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	// Signal shutdown
	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}

	// Wait for goroutines to finish
	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// Trigger requests a pass as soon as the current one, if any, finishes.
// Requests made while one is already queued are coalesced.
func (d *Daemon) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// RunOnce runs a single pass and publishes its outcome.
func (d *Daemon) RunOnce(ctx context.Context) (map[string]*schema.SyncResult, error) {
	d.changeMu.Lock()
	d.runningPass = true
	d.changeMu.Unlock()

	defer func() {
		// The pass itself writes to the database; ignore those events.
		d.changeMu.Lock()
		d.runningPass = false
		d.pending = false
		d.quietUntil = time.Now().Add(d.config.DebounceInterval)
		d.changeMu.Unlock()
	}()

	results, err := d.syncer.SyncAll(ctx)
	if err != nil {
		d.config.Logger.Printf("Sync failed: %v", err)
		return nil, err
	}

	if len(results) == 0 {
		d.config.Logger.Println("Sync skipped: remote sync is disabled")
	}
	for name, res := range results {
		d.config.Logger.Printf("Synced %s: success=%v created=%d updated=%d deleted=%d conflicts=%d",
			name, res.Success, res.Created, res.Updated, res.Deleted, len(res.Conflicts))
		for _, msg := range res.Errors {
			d.config.Logger.Printf("  %s: %s", name, msg)
		}
	}

	if d.publisher != nil {
		d.publisher.PublishResults(results)
	}
	return results, nil
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	base := filepath.Base(d.config.WatchPath)
	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			// Only care about Create, Write, Remove
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) == 0 {
				continue
			}

			// The database file and its -wal/-shm companions
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}

			d.queueChange()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange records a database change unless it was caused by a pass.
func (d *Daemon) queueChange() {
	d.changeMu.Lock()
	defer d.changeMu.Unlock()

	now := time.Now()
	if d.runningPass || now.Before(d.quietUntil) {
		return
	}
	d.pending = true
	d.lastChange = now
}

// processChangeQueue triggers a pass once queued changes have settled.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if d.settled() {
				d.config.Logger.Println("Local store changed, syncing")
				d.Trigger()
			}
		}
	}
}

// settled reports, and clears, a pending change that has been quiet for
// the debounce interval.
func (d *Daemon) settled() bool {
	d.changeMu.Lock()
	defer d.changeMu.Unlock()

	if !d.pending || time.Since(d.lastChange) < d.config.DebounceInterval {
		return false
	}
	d.pending = false
	return true
}
