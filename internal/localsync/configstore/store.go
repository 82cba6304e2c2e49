// Package configstore persists the remote configuration as a single row in
// the local store and fans every change out to registered listeners.
package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/aatrooox/localsync/internal/clock"
	"github.com/aatrooox/localsync/internal/localsync/db"
	"github.com/aatrooox/localsync/internal/localsync/schema"
)

// RemoteConfigKey is the app_config key the remote configuration lives under.
const RemoteConfigKey = "remote_config"

// ErrInvalidConfig is returned for a configuration that cannot be used.
var ErrInvalidConfig = errors.New("invalid remote config")

// Listener receives the remote configuration whenever it changes.
type Listener interface {
	SetRemoteConfig(cfg schema.RemoteConfig)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(cfg schema.RemoteConfig)

// SetRemoteConfig implements Listener.
func (f ListenerFunc) SetRemoteConfig(cfg schema.RemoteConfig) {
	f(cfg)
}

// Options configures a Store. The zero value is usable.
type Options struct {
	Clock  clock.Clock
	Logger *log.Logger
}

// Store owns the in-memory remote configuration and its persisted copy.
type Store struct {
	db     db.Store
	clock  clock.Clock
	logger *log.Logger

	mu        sync.RWMutex
	cfg       schema.RemoteConfig
	listeners []Listener
}

// New creates a store holding the default configuration.
func New(store db.Store, opts *Options, listeners ...Listener) *Store {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[config] ", log.LstdFlags)
	}
	return &Store{
		db:        store,
		clock:     clock.OrReal(opts.Clock),
		logger:    logger,
		cfg:       schema.DefaultRemoteConfig(),
		listeners: listeners,
	}
}

// Register adds a listener and immediately hands it the current config.
func (s *Store) Register(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	cfg := s.cfg
	s.mu.Unlock()

	l.SetRemoteConfig(cfg)
}

// RemoteConfig returns the in-memory configuration.
func (s *Store) RemoteConfig() schema.RemoteConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Load reads the persisted configuration, if any, and fans it out. It
// reports whether a row was found.
func (s *Store) Load(ctx context.Context) (bool, error) {
	rows, err := s.db.Select(ctx, "SELECT value FROM app_config WHERE key = ?", RemoteConfigKey)
	if err != nil {
		return false, fmt.Errorf("failed to load remote config: %w", err)
	}
	if len(rows) == 0 {
		s.publish(s.RemoteConfig())
		return false, nil
	}

	cfg := schema.DefaultRemoteConfig()
	if err := json.Unmarshal([]byte(rows[0].String("value")), &cfg); err != nil {
		return false, fmt.Errorf("failed to decode remote config: %w", err)
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.publish(cfg)
	return true, nil
}

// SetRemoteConfig updates the in-memory configuration, fans it out and
// persists it. A persistence failure is logged and does not undo the
// in-memory update.
func (s *Store) SetRemoteConfig(ctx context.Context, cfg schema.RemoteConfig) error {
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if err := Validate(cfg); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.publish(cfg)

	if err := s.persist(ctx, cfg); err != nil {
		s.logger.Printf("Warning: %v", err)
	}
	return nil
}

// Validate checks that an enabled configuration names a remote.
func Validate(cfg schema.RemoteConfig) error {
	if cfg.Enabled && strings.TrimSpace(cfg.BaseURL) == "" {
		return fmt.Errorf("%w: base URL is required when sync is enabled", ErrInvalidConfig)
	}
	if cfg.SyncIntervalMS < 0 {
		return fmt.Errorf("%w: sync interval must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (s *Store) persist(ctx context.Context, cfg schema.RemoteConfig) error {
	value, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode remote config: %w", err)
	}

	query := `
		INSERT INTO app_config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := s.db.Execute(ctx, query, RemoteConfigKey, string(value), schema.FormatTime(s.clock.Now())); err != nil {
		return fmt.Errorf("failed to persist remote config: %w", err)
	}
	return nil
}

func (s *Store) publish(cfg schema.RemoteConfig) {
	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()

	for _, l := range listeners {
		l.SetRemoteConfig(cfg)
	}
}
