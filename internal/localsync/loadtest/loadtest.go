// Package loadtest drives the local store with concurrent clients.
//
// It populates a database with users and todos, then runs clients that mix
// listings, dirty scans and local updates, recording the latency of each
// operation. It is used by 'lsync bench' and by its own tests to check
// that concurrent access through the repositories stays consistent.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/aatrooox/localsync/internal/localsync/db"
	"github.com/aatrooox/localsync/internal/localsync/repo"
	"github.com/aatrooox/localsync/internal/localsync/schema"
)

// TestStore is a populated database for load testing.
type TestStore struct {
	DB      *db.DB
	Users   *repo.Users
	Todos   *repo.Todos
	TodoIDs []string
	Synced  int
}

// LatencyStats captures performance metrics from a run.
type LatencyStats struct {
	Min        time.Duration
	Max        time.Duration
	Mean       time.Duration
	P50        time.Duration
	P95        time.Duration
	P99        time.Duration
	Operations int
	Errors     int
	ByOp       map[string]int
}

// CreateTestStore creates a database at dbPath holding numTodos todos
// spread over ten users. syncedPct of the todos are marked synced; the
// rest are dirty.
func CreateTestStore(ctx context.Context, driver, dbPath string, numTodos int, syncedPct float64) (*TestStore, error) {
	database, err := db.OpenDriver(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.InitSchema(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	opts := &repo.Options{Logger: log.New(io.Discard, "", 0)}
	ts := &TestStore{
		DB:      database,
		Users:   repo.NewUsers(database, opts),
		Todos:   repo.NewTodos(database, opts),
		TodoIDs: make([]string, 0, numTodos),
	}

	userIDs := make([]string, 10)
	for i := range userIDs {
		u, err := ts.Users.SaveLocal(ctx, &schema.User{
			Name:  fmt.Sprintf("User %d", i),
			Email: fmt.Sprintf("user%d@example.com", i),
		})
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("failed to insert user %d: %w", i, err)
		}
		userIDs[i] = u.ID
	}

	// Priority distribution weighted toward medium.
	priorities := []int{0, 1, 1, 1, 2}
	base := time.Now().Add(-30 * 24 * time.Hour)
	numSynced := int(float64(numTodos) * syncedPct)

	for i := 0; i < numTodos; i++ {
		created := base.Add(time.Duration(i) * time.Minute)
		todo, err := ts.Todos.SaveLocal(ctx, &schema.Todo{
			Syncable: schema.Syncable{CreatedAt: created, UpdatedAt: created},
			Title:    fmt.Sprintf("Todo %d", i),
			Priority: priorities[i%len(priorities)],
			UserID:   userIDs[i%len(userIDs)],
		})
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("failed to insert todo %d: %w", i, err)
		}
		ts.TodoIDs = append(ts.TodoIDs, todo.ID)

		if i < numSynced {
			rid := fmt.Sprintf("remote-%05d", i)
			if err := ts.Todos.MarkSynced(ctx, todo.ID, &rid, created); err != nil {
				_ = database.Close()
				return nil, fmt.Errorf("failed to mark todo %d synced: %w", i, err)
			}
			ts.Synced++
		}
	}

	return ts, nil
}

// Close closes the database connection.
func (ts *TestStore) Close() error {
	if ts.DB != nil {
		return ts.DB.Close()
	}
	return nil
}

// RunConcurrentClients runs numClients clients performing opsPerClient
// operations each: 60% listings, 20% dirty scans and 20% updates.
func (ts *TestStore) RunConcurrentClients(ctx context.Context, numClients, opsPerClient int) (*LatencyStats, error) {
	type sample struct {
		op string
		d  time.Duration
	}

	var wg sync.WaitGroup
	resultsChan := make(chan []sample, numClients)
	errorsChan := make(chan error, numClients)

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()

			rng := rand.New(rand.NewSource(int64(clientID) + 1))
			samples := make([]sample, 0, opsPerClient)

			for j := 0; j < opsPerClient; j++ {
				var op string
				var err error
				start := time.Now()

				switch n := rng.Intn(10); {
				case n < 6:
					op = "list"
					_, err = ts.Todos.ListLocal(ctx, repo.TodoFilter{}, repo.Page{Limit: 20, Offset: rng.Intn(5) * 20})
				case n < 8:
					op = "dirty"
					_, err = ts.Todos.CountDirty(ctx)
				default:
					op = "update"
					id := ts.TodoIDs[rng.Intn(len(ts.TodoIDs))]
					_, err = ts.Todos.UpdateLocal(ctx, id, func(t *schema.Todo) {
						t.Completed = !t.Completed
					})
				}

				samples = append(samples, sample{op: op, d: time.Since(start)})
				if err != nil {
					errorsChan <- fmt.Errorf("client %d op %d (%s) failed: %w", clientID, j, op, err)
					return
				}
			}

			resultsChan <- samples
		}(i)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	var firstErr error
	errorCount := 0
	for err := range errorsChan {
		errorCount++
		if firstErr == nil {
			firstErr = err
		}
	}

	var durations []time.Duration
	byOp := make(map[string]int)
	for samples := range resultsChan {
		for _, s := range samples {
			durations = append(durations, s.d)
			byOp[s.op]++
		}
	}

	if len(durations) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, fmt.Errorf("no operations completed")
	}

	stats := computeLatencyStats(durations)
	stats.Errors = errorCount
	stats.ByOp = byOp
	return stats, nil
}

// VerifyConsistency runs readers alongside writers that soft-delete and
// re-create todos for the given duration. Readers fail on any listed
// record that is deleted or has updated_at before created_at.
func (ts *TestStore) VerifyConsistency(ctx context.Context, numReaders int, duration time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var wg sync.WaitGroup
	errorsChan := make(chan error, numReaders+1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ctx.Err() == nil; i++ {
			id := ts.TodoIDs[i%len(ts.TodoIDs)]
			if err := ts.Todos.DeleteLocal(ctx, id); err != nil && ctx.Err() == nil {
				errorsChan <- fmt.Errorf("writer delete failed: %w", err)
				return
			}
			if _, err := ts.Todos.SaveLocal(ctx, &schema.Todo{Title: fmt.Sprintf("Churn %d", i)}); err != nil && ctx.Err() == nil {
				errorsChan <- fmt.Errorf("writer insert failed: %w", err)
				return
			}
		}
	}()

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(readerID int) {
			defer wg.Done()
			for ctx.Err() == nil {
				todos, err := ts.Todos.ListLocal(ctx, nil, repo.Page{Limit: 100})
				if err != nil {
					if ctx.Err() == nil {
						errorsChan <- fmt.Errorf("reader %d list failed: %w", readerID, err)
					}
					return
				}
				for _, t := range todos {
					if t.ID == "" {
						errorsChan <- fmt.Errorf("reader %d found todo with empty id", readerID)
						return
					}
					if t.IsDeleted {
						errorsChan <- fmt.Errorf("reader %d found deleted todo %s in listing", readerID, t.ID)
						return
					}
					if t.UpdatedAt.Before(t.CreatedAt) {
						errorsChan <- fmt.Errorf("reader %d found todo %s updated before created", readerID, t.ID)
						return
					}
				}
				time.Sleep(time.Millisecond)
			}
		}(i)
	}

	wg.Wait()
	close(errorsChan)

	for err := range errorsChan {
		if err != nil {
			return err
		}
	}
	return nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Mean:       sum / time.Duration(len(durations)),
		P50:        sorted[len(sorted)*50/100],
		P95:        sorted[len(sorted)*95/100],
		P99:        sorted[len(sorted)*99/100],
		Operations: len(durations),
	}
}

// PrintStats formats and prints latency statistics.
func (s *LatencyStats) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Operations:    %d (list %d, dirty %d, update %d)\n",
		s.Operations, s.ByOp["list"], s.ByOp["dirty"], s.ByOp["update"])
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
