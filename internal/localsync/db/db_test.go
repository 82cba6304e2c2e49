package db

import (
	"context"
	"path/filepath"
	"testing"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	tmpDir := t.TempDir()
	return filepath.Join(tmpDir, "test.db")
}

func openTestDB(t *testing.T, driver string) *DB {
	t.Helper()
	db, err := OpenDriver(driver, testDBPath(t))
	if err != nil {
		t.Fatalf("OpenDriver(%q) failed: %v", driver, err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

// TestOpen_Success tests successful database creation
func TestOpen_Success(t *testing.T) {
	path := testDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if db.Driver() != DriverNCruces {
		t.Errorf("Driver() = %q, want %q", db.Driver(), DriverNCruces)
	}
}

// TestOpen_CreatesDirectory tests that missing parent directories are created
func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "lsync.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()
}

func TestOpenDriver_Unsupported(t *testing.T) {
	if _, err := OpenDriver("postgres", testDBPath(t)); err == nil {
		t.Fatal("OpenDriver(postgres) succeeded, want error")
	}
}

// TestInitSchema_Success tests schema creation on both drivers
func TestInitSchema_Success(t *testing.T) {
	for _, driver := range []string{DriverNCruces, DriverModernc} {
		t.Run(driver, func(t *testing.T) {
			db := openTestDB(t, driver)

			tables := []string{"users", "todos", "app_config"}
			for _, table := range tables {
				rows, err := db.Select(context.Background(),
					`SELECT COUNT(*) AS n FROM sqlite_master WHERE type='table' AND name=?`, table)
				if err != nil {
					t.Fatalf("Failed to query table %s: %v", table, err)
				}
				if len(rows) != 1 || rows[0].Int("n") != 1 {
					t.Errorf("Table %s does not exist", table)
				}
			}
		})
	}
}

// TestInitSchema_Idempotent tests that schema initialization is idempotent
func TestInitSchema_Idempotent(t *testing.T) {
	db := openTestDB(t, DriverNCruces)

	if err := db.InitSchema(context.Background()); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}
}

func TestSelectExecute(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, DriverNCruces)

	res, err := db.Execute(ctx,
		`INSERT INTO app_config (key, value, updated_at) VALUES (?, ?, ?)`,
		"k1", `{"a":1}`, "2024-01-01T00:00:00.000000000Z")
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if res.RowsAffected != 1 {
		t.Errorf("RowsAffected = %d, want 1", res.RowsAffected)
	}

	rows, err := db.Select(ctx, `SELECT key, value FROM app_config WHERE key = ?`, "k1")
	if err != nil {
		t.Fatalf("Select() failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	if got := rows[0].String("value"); got != `{"a":1}` {
		t.Errorf("value = %q, want %q", got, `{"a":1}`)
	}

	rows, err = db.Select(ctx, `SELECT key FROM app_config WHERE key = ?`, "missing")
	if err != nil {
		t.Fatalf("Select() failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("len(rows) = %d, want 0", len(rows))
	}
}

func TestSelect_InvalidQuery(t *testing.T) {
	db := openTestDB(t, DriverNCruces)
	if _, err := db.Select(context.Background(), `SELECT * FROM nope`); err == nil {
		t.Error("Select() on missing table succeeded, want error")
	}
}

func TestRowAccessors(t *testing.T) {
	row := Row{
		"s":     "text",
		"b":     []byte("bytes"),
		"n":     int64(7),
		"ns":    "12",
		"null":  nil,
		"flag":  int64(1),
		"bflag": true,
	}

	if got := row.String("s"); got != "text" {
		t.Errorf("String(s) = %q, want %q", got, "text")
	}
	if got := row.String("b"); got != "bytes" {
		t.Errorf("String(b) = %q, want %q", got, "bytes")
	}
	if got := row.String("null"); got != "" {
		t.Errorf("String(null) = %q, want empty", got)
	}
	if got := row.NullString("null"); got != nil {
		t.Errorf("NullString(null) = %v, want nil", *got)
	}
	if got := row.NullString("s"); got == nil || *got != "text" {
		t.Errorf("NullString(s) = %v, want text", got)
	}
	if got := row.Int("n"); got != 7 {
		t.Errorf("Int(n) = %d, want 7", got)
	}
	if got := row.Int("ns"); got != 12 {
		t.Errorf("Int(ns) = %d, want 12", got)
	}
	if !row.Bool("flag") || !row.Bool("bflag") {
		t.Error("Bool() = false, want true")
	}
	if row.Bool("null") {
		t.Error("Bool(null) = true, want false")
	}
	if !row.Has("null") || row.Has("absent") {
		t.Error("Has() mismatch")
	}
}
