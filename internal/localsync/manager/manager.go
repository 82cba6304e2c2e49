// Package manager is the composition root of the sync core. It owns one
// repository and one sync engine per entity type plus the config store,
// and drives an all-repositories sync.
//
// A Manager is constructed explicitly by the process entry point and
// passed to whatever needs it; there is no package-level instance.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/aatrooox/localsync/internal/clock"
	"github.com/aatrooox/localsync/internal/localsync/configstore"
	"github.com/aatrooox/localsync/internal/localsync/db"
	"github.com/aatrooox/localsync/internal/localsync/repo"
	"github.com/aatrooox/localsync/internal/localsync/schema"
	lsync "github.com/aatrooox/localsync/internal/localsync/sync"
)

// Options configures a Manager. The zero value is usable.
type Options struct {
	Clock      clock.Clock
	Logger     *log.Logger
	HTTPClient *http.Client

	// StampOnFailure is passed to every engine.
	StampOnFailure bool

	// Listeners are registered with the config store on Initialize, after
	// the repositories.
	Listeners []configstore.Listener
}

// Manager owns the repositories, engines and config store.
type Manager struct {
	opts   Options
	logger *log.Logger

	mu      sync.RWMutex
	ready   bool
	users   *repo.Users
	todos   *repo.Todos
	config  *configstore.Store
	runners []lsync.Runner
}

// New creates an uninitialized manager.
func New(opts *Options) *Manager {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[manager] ", log.LstdFlags)
	}
	return &Manager{opts: *opts, logger: logger}
}

// Initialize builds the repositories, engines and config store on top of
// store and loads the persisted remote configuration. Calling it again
// rebuilds everything against the new store.
func (m *Manager) Initialize(ctx context.Context, store db.Store) error {
	if store == nil {
		return errors.New("nil store")
	}

	repoOpts := &repo.Options{
		Clock:      m.opts.Clock,
		Logger:     m.opts.Logger,
		HTTPClient: m.opts.HTTPClient,
	}
	users := repo.NewUsers(store, repoOpts)
	todos := repo.NewTodos(store, repoOpts)

	listeners := append([]configstore.Listener{users, todos}, m.opts.Listeners...)
	config := configstore.New(store, &configstore.Options{
		Clock:  m.opts.Clock,
		Logger: m.opts.Logger,
	}, listeners...)

	if _, err := config.Load(ctx); err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}

	engineOpts := &lsync.Options{
		Clock:          m.opts.Clock,
		Logger:         m.opts.Logger,
		StampOnFailure: m.opts.StampOnFailure,
	}
	runners := []lsync.Runner{
		lsync.New[schema.User, *schema.User](users, engineOpts),
		lsync.New[schema.Todo, *schema.Todo](todos, engineOpts),
	}

	m.mu.Lock()
	m.users = users
	m.todos = todos
	m.config = config
	m.runners = runners
	m.ready = true
	m.mu.Unlock()

	m.logger.Printf("Initialized repositories: %v", m.Names())
	return nil
}

// Users returns the users repository.
func (m *Manager) Users() (*repo.Users, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ready {
		return nil, repo.ErrNotInitialized
	}
	return m.users, nil
}

// Todos returns the todos repository.
func (m *Manager) Todos() (*repo.Todos, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ready {
		return nil, repo.ErrNotInitialized
	}
	return m.todos, nil
}

// Config returns the config store.
func (m *Manager) Config() (*configstore.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ready {
		return nil, repo.ErrNotInitialized
	}
	return m.config, nil
}

// Names returns the registered entity names in sync order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.runners))
	for _, r := range m.runners {
		names = append(names, r.Name())
	}
	return names
}

// Runner returns the engine for name.
func (m *Manager) Runner(name string) (lsync.Runner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ready {
		return nil, repo.ErrNotInitialized
	}
	for _, r := range m.runners {
		if r.Name() == name {
			return r, nil
		}
	}
	return nil, fmt.Errorf("unknown repository %q", name)
}

// SyncAll syncs every repository, one after another. When sync is disabled
// it does nothing and returns an empty map.
func (m *Manager) SyncAll(ctx context.Context) (map[string]*schema.SyncResult, error) {
	m.mu.RLock()
	ready, config, runners := m.ready, m.config, m.runners
	m.mu.RUnlock()
	if !ready {
		return nil, repo.ErrNotInitialized
	}

	results := make(map[string]*schema.SyncResult)
	if !config.RemoteConfig().SyncEnabled() {
		return results, nil
	}

	for _, r := range runners {
		results[r.Name()] = r.Sync(ctx)
	}
	return results, nil
}

// Sync syncs one repository by name.
func (m *Manager) Sync(ctx context.Context, name string) (*schema.SyncResult, error) {
	r, err := m.Runner(name)
	if err != nil {
		return nil, err
	}
	return r.Sync(ctx), nil
}

// ResolveConflicts applies each engine's policy to the conflicts, routed
// by table. It keeps going past failures and returns them joined.
func (m *Manager) ResolveConflicts(ctx context.Context, conflicts []schema.Conflict) ([]lsync.Resolution, error) {
	return m.resolve(ctx, conflicts, func(r lsync.Runner, c schema.Conflict) (lsync.Resolution, error) {
		return r.Resolve(ctx, c)
	})
}

// ResolveConflictsWith is ResolveConflicts with a built-in strategy in place
// of each engine's policy.
func (m *Manager) ResolveConflictsWith(ctx context.Context, conflicts []schema.Conflict, s lsync.Strategy) ([]lsync.Resolution, error) {
	return m.resolve(ctx, conflicts, func(r lsync.Runner, c schema.Conflict) (lsync.Resolution, error) {
		return r.ResolveWith(ctx, c, s)
	})
}

func (m *Manager) resolve(ctx context.Context, conflicts []schema.Conflict, apply func(lsync.Runner, schema.Conflict) (lsync.Resolution, error)) ([]lsync.Resolution, error) {
	out := make([]lsync.Resolution, len(conflicts))
	var errs []error
	for i, c := range conflicts {
		r, err := m.Runner(c.Table)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		res, err := apply(r, c)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to resolve %s %s: %w", c.Table, c.ID, err))
			continue
		}
		out[i] = res
	}
	return out, errors.Join(errs...)
}
