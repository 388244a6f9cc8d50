package etl

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ── Source ──────────────────────────────────────────────────
// A Source extracts data from one kind of input artifact.
// Implementations live in etl/sources/, one file per source type.

// AdmissionPolicy decides what happens to a source record when one of its
// typed fields cannot be parsed.
type AdmissionPolicy string

const (
	AdmitNull AdmissionPolicy = "null" // keep the record, field becomes nil
	AdmitDrop AdmissionPolicy = "drop" // drop the whole record
	AdmitFail AdmissionPolicy = "fail" // abort the run
)

// Valid reports whether p is a known policy. The empty policy is valid and
// means "use the source's default".
func (p AdmissionPolicy) Valid() bool {
	switch p {
	case "", AdmitNull, AdmitDrop, AdmitFail:
		return true
	}
	return false
}

// Or returns p, or def when p is empty.
func (p AdmissionPolicy) Or(def AdmissionPolicy) AdmissionPolicy {
	if p == "" {
		return def
	}
	return p
}

// SourceConfig describes one source of a pipeline.
type SourceConfig struct {
	Type      string           `json:"type"`                // registered source type
	Paths     []string         `json:"paths,omitempty"`     // files or glob patterns
	URL       string           `json:"url,omitempty"`       // remote document
	Columns   []string         `json:"columns,omitempty"`   // declared column set
	Header    *bool            `json:"header,omitempty"`    // csv: first line is a header (default true)
	Delimiter string           `json:"delimiter,omitempty"` // csv: column delimiter (default ",")
	Fields    []Field          `json:"fields,omitempty"`    // xml: typed child fields
	NameCell  *int             `json:"nameCell,omitempty"`  // webtable: index of the name cell
	ValueCell *int             `json:"valueCell,omitempty"` // webtable: index of the magnitude cell
	Rows      []map[string]any `json:"rows,omitempty"`      // inline records
	Admission AdmissionPolicy  `json:"admission,omitempty"`
}

// HasHeader reports whether csv input starts with a header line.
func (c SourceConfig) HasHeader() bool {
	return c.Header == nil || *c.Header
}

// DeclaredFields returns the declared column set as text fields, unless typed
// fields are configured.
func (c SourceConfig) DeclaredFields() []Field {
	if len(c.Fields) > 0 {
		return c.Fields
	}
	fields := make([]Field, len(c.Columns))
	for i, name := range c.Columns {
		fields[i] = Field{Name: name, Type: TypeText}
	}
	return fields
}

// Env carries run-scoped collaborators into sources.
type Env struct {
	// Exclude lists file paths that must never be read as input, e.g. the
	// pipeline's own csv output.
	Exclude []string

	// HTTPTimeout bounds remote fetches. Zero means no timeout.
	HTTPTimeout time.Duration
}

// Source is the interface every data source must implement.
type Source interface {
	// Type returns the registered type name.
	Type() string

	// Extract reads every record the configuration points at, in
	// source-then-within-source order.
	Extract(ctx context.Context, cfg SourceConfig, env Env) (*Table, error)
}

// ── Source Registry ────────────────────────────────────────
// Compile-time registration via init() in each source file.

var (
	registryMu sync.RWMutex
	registry   = map[string]Source{}
)

// RegisterSource registers a source by its type.
// Called from init() in each source implementation file.
func RegisterSource(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Type()] = s
}

// GetSource returns a registered source by type, or an error if not found.
func GetSource(typ string) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %q", typ)
	}
	return s, nil
}

// ListSources returns the registered source types in sorted order.
func ListSources() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Extract runs every configured source and concatenates the results into one
// table whose schema starts with the declared columns.
func Extract(ctx context.Context, columns []Field, cfgs []SourceConfig, env Env) (*Table, error) {
	out := NewTable(columns...)
	for i, cfg := range cfgs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := GetSource(cfg.Type)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		t, err := src.Extract(ctx, cfg, env)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", cfg.Type, err)
		}
		out.Append(t)
	}
	out.Normalize()
	return out, nil
}
