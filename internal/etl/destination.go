package etl

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// ── Destination ────────────────────────────────────────────
// A Destination writes a table into a target system.
// Implementations: CSVWriter (flat file) and dbclient.TableWriter (relational).

// SyncMode determines how records are written to the destination.
type SyncMode string

const (
	SyncReplace SyncMode = "replace" // drop and recreate the target, insert fresh
	SyncAppend  SyncMode = "append"  // add rows without touching the target's schema
)

// Destination writes tables to a target system.
type Destination interface {
	Write(ctx context.Context, target string, t *Table, mode SyncMode) (int, error)
}

// Store is a relational destination that can also answer read-only queries.
type Store interface {
	Destination
	Query(ctx context.Context, query string) (*Table, error)
	Close() error
}

// StoreOpener opens the relational store for one run.
type StoreOpener func(ctx context.Context) (Store, error)

// SinkConfig describes one destination of a pipeline.
type SinkConfig struct {
	Type  string   `json:"type"`            // "csv" | "sql"
	Path  string   `json:"path,omitempty"`  // csv: output file
	Table string   `json:"table,omitempty"` // sql: destination table
	Mode  SyncMode `json:"mode,omitempty"`  // sql: replace (default) | append
}

// Target returns the sink's target name for logs and results.
func (c SinkConfig) Target() string {
	if c.Type == "csv" {
		return c.Path
	}
	return c.Table
}

// ── CSV Destination ────────────────────────────────────────

// CSVWriter writes a table as a delimited text file with a header row and no
// index column. An existing file is overwritten; the mode is ignored.
type CSVWriter struct{}

func (CSVWriter) Write(ctx context.Context, path string, t *Table, _ SyncMode) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Schema.FieldNames()); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	line := make([]string, len(t.Schema.Fields))
	for _, row := range t.Rows() {
		for i, v := range row {
			line[i] = FormatValue(v)
		}
		if err := w.Write(line); err != nil {
			return 0, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close csv: %w", err)
	}
	return t.Len(), nil
}

// FormatValue renders a value the way it is written to flat files.
// nil is the empty string; integral floats keep a trailing ".0" so they read
// back as floats.
func FormatValue(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case int64:
		return strconv.FormatInt(n, 10)
	case int:
		return strconv.Itoa(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return ""
		}
		s := strconv.FormatFloat(n, 'f', -1, 64)
		if n == math.Trunc(n) {
			s += ".0"
		}
		return s
	default:
		return fmt.Sprint(n)
	}
}
