package dashboard

import (
	"encoding/json"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/aatrooox/localsync/internal/localsync/schema"
)

// SyncResultData is the payload of a sync_result message.
type SyncResultData struct {
	Table     string   `json:"table"`
	Success   bool     `json:"success"`
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Deleted   int      `json:"deleted"`
	Conflicts int      `json:"conflicts"`
	Errors    []string `json:"errors,omitempty"`
}

// ConfigUpdateData is the payload of a config_update message. The API key
// is never sent.
type ConfigUpdateData struct {
	Enabled        bool            `json:"enabled"`
	BaseURL        string          `json:"baseUrl"`
	SyncIntervalMS int64           `json:"syncInterval"`
	Features       schema.Features `json:"features"`
}

// StatusData is the payload of a status message.
type StatusData struct {
	LastSync time.Time        `json:"last_sync"`
	Tables   []SyncResultData `json:"tables"`
	Config   ConfigUpdateData `json:"config"`
}

// Handler turns sync activity into dashboard messages. It implements
// daemon.Publisher and configstore.Listener.
type Handler struct {
	server *Server
	logger *log.Logger

	mu       sync.Mutex
	lastSync time.Time
	tables   map[string]SyncResultData
	config   ConfigUpdateData
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	h := &Handler{
		server: server,
		logger: logger,
		tables: make(map[string]SyncResultData),
	}
	server.welcome = h.statusMessage
	return h
}

// PublishResults broadcasts one sync_result per repository and one
// conflict message per conflict.
func (h *Handler) PublishResults(results map[string]*schema.SyncResult) {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	now := time.Now()
	h.mu.Lock()
	h.lastSync = now
	for _, name := range names {
		h.tables[name] = summarize(name, results[name])
	}
	h.mu.Unlock()

	for _, name := range names {
		res := results[name]
		h.send(MessageTypeSyncResult, now, summarize(name, res))
		for _, c := range res.Conflicts {
			h.logger.Printf("Conflict: %s/%s (%s)", c.Table, c.ID, c.ConflictType)
			h.send(MessageTypeConflict, now, c)
		}
	}
}

// SetRemoteConfig broadcasts a config_update.
func (h *Handler) SetRemoteConfig(cfg schema.RemoteConfig) {
	data := ConfigUpdateData{
		Enabled:        cfg.Enabled,
		BaseURL:        cfg.BaseURL,
		SyncIntervalMS: cfg.SyncIntervalMS,
		Features:       cfg.Features,
	}

	h.mu.Lock()
	h.config = data
	h.mu.Unlock()

	h.send(MessageTypeConfigUpdate, time.Now(), data)
}

// Status returns the latest snapshot.
func (h *Handler) Status() StatusData {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := StatusData{
		LastSync: h.lastSync,
		Tables:   make([]SyncResultData, 0, len(h.tables)),
		Config:   h.config,
	}
	for _, t := range h.tables {
		status.Tables = append(status.Tables, t)
	}
	sort.Slice(status.Tables, func(i, j int) bool {
		return status.Tables[i].Table < status.Tables[j].Table
	})
	return status
}

func (h *Handler) statusMessage() Message {
	data, err := json.Marshal(h.Status())
	if err != nil {
		h.logger.Printf("Failed to marshal status: %v", err)
		return Message{Type: MessageTypeStatus}
	}
	return Message{Type: MessageTypeStatus, Timestamp: time.Now(), Data: data}
}

func (h *Handler) send(typ MessageType, ts time.Time, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: ts, Data: data})
}

func summarize(table string, res *schema.SyncResult) SyncResultData {
	return SyncResultData{
		Table:     table,
		Success:   res.Success,
		Created:   res.Created,
		Updated:   res.Updated,
		Deleted:   res.Deleted,
		Conflicts: len(res.Conflicts),
		Errors:    res.Errors,
	}
}
