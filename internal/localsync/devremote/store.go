// Package devremote is an in-memory implementation of the per-table REST
// protocol the remote client speaks. It backs "lsync remote serve" and the
// repository and sync tests.
//
// Records are schemaless JSON objects. The server mints ids, stamps
// updated_at on every write and lists records in insertion order so that
// limit/offset paging is stable.
package devremote

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aatrooox/localsync/internal/clock"
)

// Record is one stored JSON object.
type Record = map[string]any

// Fault lets tests inject failures. A non-zero return aborts the request
// with that status before it touches the store.
type Fault func(method, table, id string, body Record) int

type table struct {
	records map[string]Record
	order   []string
}

// Store holds the tables.
type Store struct {
	mu     sync.Mutex
	tables map[string]*table
	clock  clock.Clock
	fault  Fault
}

// NewStore creates an empty store.
func NewStore(c clock.Clock) *Store {
	return &Store{
		tables: make(map[string]*table),
		clock:  clock.OrReal(c),
	}
}

// SetFault installs f; nil removes it.
func (s *Store) SetFault(f Fault) {
	s.mu.Lock()
	s.fault = f
	s.mu.Unlock()
}

func (s *Store) check(method, tbl, id string, body Record) int {
	s.mu.Lock()
	f := s.fault
	s.mu.Unlock()
	if f == nil {
		return 0
	}
	return f(method, tbl, id, body)
}

func (s *Store) table(name string) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{records: make(map[string]Record)}
		s.tables[name] = t
	}
	return t
}

func (s *Store) stamp() string {
	return s.clock.Now().UTC().Format(time.RFC3339Nano)
}

// Seed stores rec as is, minting an id and timestamps only when absent.
// It returns a copy of the stored record.
func (s *Store) Seed(tbl string, rec Record) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec = clone(rec)
	id, _ := rec["id"].(string)
	if id == "" {
		id = uuid.NewString()
		rec["id"] = id
	}
	now := s.stamp()
	if _, ok := rec["created_at"]; !ok {
		rec["created_at"] = now
	}
	if _, ok := rec["updated_at"]; !ok {
		rec["updated_at"] = now
	}

	t := s.table(tbl)
	if _, exists := t.records[id]; !exists {
		t.order = append(t.order, id)
	}
	t.records[id] = rec
	return clone(rec)
}

// Create stores body under a fresh server id.
func (s *Store) Create(tbl string, body Record) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := clone(body)
	id := uuid.NewString()
	now := s.stamp()
	rec["id"] = id
	if _, ok := rec["created_at"]; !ok {
		rec["created_at"] = now
	}
	rec["updated_at"] = now

	t := s.table(tbl)
	t.order = append(t.order, id)
	t.records[id] = rec
	return clone(rec)
}

// Update merges body over the record with id.
func (s *Store) Update(tbl, id string, body Record) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(tbl)
	rec, ok := t.records[id]
	if !ok {
		return nil, false
	}
	for k, v := range body {
		rec[k] = v
	}
	rec["id"] = id
	rec["updated_at"] = s.stamp()
	return clone(rec), true
}

// Delete removes the record with id.
func (s *Store) Delete(tbl, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(tbl)
	if _, ok := t.records[id]; !ok {
		return false
	}
	delete(t.records, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a copy of the record with id.
func (s *Store) Get(tbl, id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.table(tbl).records[id]
	if !ok {
		return nil, false
	}
	return clone(rec), true
}

// Query selects records for a list request.
type Query struct {
	Equals map[string]string
	Search string
	Limit  int
	Offset int
}

// List returns matching records in insertion order.
func (s *Store) List(tbl string, q Query) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(tbl)
	out := []Record{}
	skipped := 0
	for _, id := range t.order {
		rec := t.records[id]
		if !matches(rec, q) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
		out = append(out, clone(rec))
	}
	return out
}

// Records returns every record in tbl, in insertion order.
func (s *Store) Records(tbl string) []Record {
	return s.List(tbl, Query{})
}

func matches(rec Record, q Query) bool {
	for k, want := range q.Equals {
		if fmt.Sprint(rec[k]) != want {
			return false
		}
	}
	if q.Search == "" {
		return true
	}

	needle := strings.ToLower(q.Search)
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := rec[k].(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func clone(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
