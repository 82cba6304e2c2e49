// Package transfer exports the local store to JSONL and imports it back.
//
// Each line is one record wrapped with its table name:
//
//	{"table":"todos","record":{"id":"...","title":"...",...}}
//
// Deleted records are not exported. Imported records keep their id,
// timestamps and remote id but are marked unsynced, so the next push sends
// them to the remote.
package transfer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aatrooox/localsync/internal/localsync/repo"
	"github.com/aatrooox/localsync/internal/localsync/schema"
)

// exportPageSize is the listing window used while exporting.
const exportPageSize = 500

// Line is one JSONL line.
type Line struct {
	Table  string          `json:"table"`
	Record json.RawMessage `json:"record"`
}

// Options configures an import.
type Options struct {
	// DryRun decodes and counts without writing.
	DryRun bool

	// Overwrite replaces an existing record when the imported copy has a
	// later updated_at. Otherwise existing ids are skipped.
	Overwrite bool
}

// Result contains statistics about an export or import.
type Result struct {
	Exported int
	Imported int
	Replaced int
	Skipped  int
	Errors   []string
}

// Table is one repository as seen by export and import.
type Table interface {
	Name() string
	export(ctx context.Context, enc *json.Encoder, res *Result) error
	load(ctx context.Context, raw json.RawMessage, opts Options, res *Result) error
}

// For adapts a repository.
func For[T any, P schema.RecordPtr[T]](r *repo.Repository[T, P]) Table {
	return table[T, P]{r: r}
}

type table[T any, P schema.RecordPtr[T]] struct {
	r *repo.Repository[T, P]
}

func (t table[T, P]) Name() string {
	return t.r.Name()
}

func (t table[T, P]) export(ctx context.Context, enc *json.Encoder, res *Result) error {
	for offset := 0; ; offset += exportPageSize {
		page, err := t.r.ListLocal(ctx, nil, repo.Page{Limit: exportPageSize, Offset: offset})
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", t.Name(), err)
		}
		for _, rec := range page {
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to marshal %s %s: %w", t.Name(), rec.Meta().ID, err)
			}
			if err := enc.Encode(Line{Table: t.Name(), Record: data}); err != nil {
				return fmt.Errorf("failed to write %s %s: %w", t.Name(), rec.Meta().ID, err)
			}
			res.Exported++
		}
		if len(page) < exportPageSize {
			return nil
		}
	}
}

func (t table[T, P]) load(ctx context.Context, raw json.RawMessage, opts Options, res *Result) error {
	rec := P(new(T))
	if err := json.Unmarshal(raw, rec); err != nil {
		return fmt.Errorf("invalid %s record: %w", t.Name(), err)
	}
	m := rec.Meta()
	if m.ID == "" {
		return fmt.Errorf("%s record has no id", t.Name())
	}
	if m.IsDeleted {
		res.Skipped++
		return nil
	}
	m.LastSyncAt = nil

	existing, err := t.r.Lookup(ctx, m.ID)
	if err != nil {
		return err
	}

	switch {
	case existing == nil:
		if !opts.DryRun {
			if _, err := t.r.SaveLocal(ctx, rec); err != nil {
				return err
			}
		}
		res.Imported++

	case opts.Overwrite && m.UpdatedAt.After(existing.Meta().UpdatedAt):
		if !opts.DryRun {
			_, err := t.r.UpdateLocal(ctx, m.ID, func(dst P) {
				keep := *dst.Meta()
				*dst = *rec
				dm := dst.Meta()
				dm.RemoteID = keep.RemoteID
				dm.LastSyncAt = keep.LastSyncAt
			})
			if err != nil {
				return err
			}
		}
		res.Replaced++

	default:
		res.Skipped++
	}
	return nil
}

// Export writes every non-deleted record of tables to w.
func Export(ctx context.Context, w io.Writer, tables ...Table) (*Result, error) {
	res := &Result{}
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	for _, t := range tables {
		if err := t.export(ctx, enc, res); err != nil {
			return res, err
		}
	}
	if err := bw.Flush(); err != nil {
		return res, fmt.Errorf("failed to flush export: %w", err)
	}
	return res, nil
}

// ExportFile writes the export to path through a temp file, so a failed
// export never leaves a partial file behind.
func ExportFile(ctx context.Context, path string, tables ...Table) (*Result, error) {
	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	res, err := Export(ctx, f, tables...)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close temp file: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return res, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return res, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return res, nil
}

// Import reads JSONL from r into the matching tables. A bad line is
// recorded in Result.Errors and the import continues.
func Import(ctx context.Context, r io.Reader, opts Options, tables ...Table) (*Result, error) {
	byName := make(map[string]Table, len(tables))
	for _, t := range tables {
		byName[t.Name()] = t
	}

	res := &Result{}
	dec := json.NewDecoder(bufio.NewReader(r))
	for lineNum := 1; ; lineNum++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var line Line
		if err := dec.Decode(&line); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return res, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}

		t, ok := byName[line.Table]
		if !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: unknown table %q", lineNum, line.Table))
			continue
		}
		if err := t.load(ctx, line.Record, opts, res); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", lineNum, err))
		}
	}
	return res, nil
}

// ImportFile imports the JSONL file at path.
func ImportFile(ctx context.Context, path string, opts Options, tables ...Table) (*Result, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()
	return Import(ctx, f, opts, tables...)
}

// Backup copies the file at path to path.backup.<timestamp> and returns the
// copy's path.
func Backup(path string, now time.Time) (string, error) {
	// #nosec G304 - controlled path from CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s for backup: %w", path, err)
	}
	backupPath := path + ".backup." + now.Format("20060102-150405")
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}
	return backupPath, nil
}
