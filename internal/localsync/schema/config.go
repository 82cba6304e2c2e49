package schema

import "time"

// Features toggles optional remote capabilities.
type Features struct {
	ContentSync   bool `json:"contentSync"`
	DynamicFeed   bool `json:"dynamicFeed"`
	Notifications bool `json:"notifications"`
}

// RemoteConfig gates remote mirroring and sync. It is persisted as a single
// JSON row by the config store; the keys match that persisted form.
type RemoteConfig struct {
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"baseUrl"`
	APIKey  string `json:"apiKey,omitempty"`

	// SyncIntervalMS is the periodic sync interval in milliseconds.
	SyncIntervalMS int64    `json:"syncInterval"`
	Features       Features `json:"features"`
}

// DefaultRemoteConfig returns the configuration used before anything was
// persisted: remote disabled, five minute interval, content sync on.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		SyncIntervalMS: (5 * time.Minute).Milliseconds(),
		Features:       Features{ContentSync: true},
	}
}

// SyncInterval returns the interval as a duration (zero if unset).
func (c RemoteConfig) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMS) * time.Millisecond
}

// SyncEnabled reports whether content sync may run.
func (c RemoteConfig) SyncEnabled() bool {
	return c.Enabled && c.Features.ContentSync
}
