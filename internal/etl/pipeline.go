package etl

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// ── Pipeline ───────────────────────────────────────────────
// Orchestrates: extract → transform → load → verify, each phase bracketed
// by progress log messages. A run is strictly sequential.

// Pipeline is the declarative definition of one ETL job.
type Pipeline struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Columns     []Field           `json:"columns,omitempty"` // declared output column set
	Sources     []SourceConfig    `json:"sources"`
	Rates       *RatesConfig      `json:"rates,omitempty"`
	Transforms  []TransformConfig `json:"transforms,omitempty"`
	Sinks       []SinkConfig      `json:"sinks,omitempty"`
	Store       string            `json:"store,omitempty"`   // named relational store; "" uses the default
	Queries     []string          `json:"queries,omitempty"` // read-only verification queries
	Log         LogConfig         `json:"log,omitempty"`
	Schedule    string            `json:"schedule,omitempty"` // cron expression for serve mode
	Watch       []string          `json:"watch,omitempty"`    // files that trigger a run in serve mode
}

// LogConfig configures the pipeline's progress log.
type LogConfig struct {
	Path      string            `json:"path,omitempty"`
	Separator string            `json:"separator,omitempty"`
	Messages  map[string]string `json:"messages,omitempty"` // event → message; "" silences an event
}

// TransformConfig is a declarative transform definition.
type TransformConfig struct {
	Type   string         `json:"type"` // "numeric" | "round" | "currency" | "rename"
	Config map[string]any `json:"config"`
}

// Progress events a pipeline run reports.
const (
	EventStart          = "start"
	EventExtractStart   = "extract_start"
	EventExtractEnd     = "extract_end"
	EventTransformStart = "transform_start"
	EventTransformEnd   = "transform_end"
	EventLoadStart      = "load_start"
	EventCSVSaved       = "csv_saved"
	EventStoreConnected = "store_connected"
	EventTableLoaded    = "table_loaded"
	EventLoadEnd        = "load_end"
	EventEnd            = "end"
)

// DefaultMessages are the progress messages used when a pipeline does not override them.
var DefaultMessages = map[string]string{
	EventStart:          "ETL Job Started",
	EventExtractStart:   "Extract phase Started",
	EventExtractEnd:     "Extract phase Ended",
	EventTransformStart: "Transform phase Started",
	EventTransformEnd:   "Transform phase Ended",
	EventLoadStart:      "Load phase Started",
	EventCSVSaved:       "",
	EventStoreConnected: "",
	EventTableLoaded:    "",
	EventLoadEnd:        "Load phase Ended",
	EventEnd:            "ETL Job Ended",
}

// ProgressLogger receives phase-boundary messages. It must never fail the run.
type ProgressLogger interface {
	Log(message string)
}

// RatesLoader reads an exchange rate table.
type RatesLoader func(ctx context.Context, cfg RatesConfig, env Env) (ExchangeRates, error)

// SinkResult reports how many rows one sink received.
type SinkResult struct {
	Type   string `json:"type"`
	Target string `json:"target"`
	Rows   int    `json:"rows"`
}

// QueryResult is the output of one verification query.
type QueryResult struct {
	Query string `json:"query"`
	Table *Table `json:"table"`
}

// SyncResult is the outcome of running a pipeline.
type SyncResult struct {
	Pipeline    string        `json:"pipeline"`
	Status      string        `json:"status"` // "success" | "error"
	RowsRead    int           `json:"rowsRead"`
	RowsWritten int           `json:"rowsWritten"`
	Sinks       []SinkResult  `json:"sinks,omitempty"`
	Queries     []QueryResult `json:"queries,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// ── Engine ─────────────────────────────────────────────────

// Engine runs pipelines against injected collaborators.
type Engine struct {
	Progress  ProgressLogger
	OpenStore StoreOpener
	LoadRates RatesLoader
	Env       Env
}

// RunSync executes a pipeline end-to-end.
// The relational store is opened at most once and always closed before returning.
func (e *Engine) RunSync(ctx context.Context, p *Pipeline) (result *SyncResult, err error) {
	start := time.Now()
	result = &SyncResult{Pipeline: p.Name}
	logger := slog.With("pipeline", p.Name)

	var store Store
	defer func() {
		if store != nil {
			if cerr := store.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close store: %w", cerr)
			}
		}
		result.Duration = time.Since(start)
		if err != nil {
			result.Status = "error"
			result.Error = err.Error()
			logger.ErrorContext(ctx, "pipeline failed", "err", err)
			return
		}
		result.Status = "success"
	}()

	e.progress(p, EventStart)

	// 1. Extract.
	e.progress(p, EventExtractStart)
	env := e.Env
	for _, s := range p.Sinks {
		if s.Type == "csv" && s.Path != "" {
			env.Exclude = append(env.Exclude, s.Path)
		}
	}
	extracted, err := Extract(ctx, p.Columns, p.Sources, env)
	if err != nil {
		return result, fmt.Errorf("extract: %w", err)
	}
	result.RowsRead = extracted.Len()
	logger.InfoContext(ctx, "extracted", "rows", result.RowsRead, "columns", extracted.Schema.FieldNames())
	e.progress(p, EventExtractEnd)

	// 2. Transform.
	e.progress(p, EventTransformStart)
	var rates ExchangeRates
	if p.Rates != nil {
		if e.LoadRates == nil {
			return result, fmt.Errorf("transform: pipeline needs exchange rates but no loader is configured")
		}
		rates, err = e.LoadRates(ctx, *p.Rates, e.Env)
		if err != nil {
			return result, fmt.Errorf("load rates: %w", err)
		}
	}
	transformers, err := BuildTransformers(p.Transforms, rates)
	if err != nil {
		return result, fmt.Errorf("transform: %w", err)
	}
	transformed, err := ApplyTransformers(extracted, transformers)
	if err != nil {
		return result, fmt.Errorf("transform: %w", err)
	}
	e.progress(p, EventTransformEnd)

	// 3. Load.
	e.progress(p, EventLoadStart)
	for _, sink := range p.Sinks {
		var dest Destination
		switch sink.Type {
		case "csv":
			dest = CSVWriter{}
		case "sql":
			if store == nil {
				if store, err = e.openStore(ctx); err != nil {
					return result, err
				}
				e.progress(p, EventStoreConnected)
			}
			dest = store
		default:
			return result, fmt.Errorf("load: unknown sink type %q", sink.Type)
		}

		mode := sink.Mode
		if mode == "" {
			mode = SyncReplace
		}
		written, err := dest.Write(ctx, sink.Target(), transformed, mode)
		if err != nil {
			return result, fmt.Errorf("load %s %s: %w", sink.Type, sink.Target(), err)
		}
		result.Sinks = append(result.Sinks, SinkResult{Type: sink.Type, Target: sink.Target(), Rows: written})
		result.RowsWritten += written
		logger.InfoContext(ctx, "loaded", "sink", sink.Type, "target", sink.Target(), "mode", mode, "rows", written)
		if sink.Type == "csv" {
			e.progress(p, EventCSVSaved)
		} else {
			e.progress(p, EventTableLoaded)
		}
	}

	// 4. Verify.
	for _, q := range p.Queries {
		if store == nil {
			if store, err = e.openStore(ctx); err != nil {
				return result, err
			}
			e.progress(p, EventStoreConnected)
		}
		t, err := store.Query(ctx, q)
		if err != nil {
			return result, fmt.Errorf("query %q: %w", q, err)
		}
		result.Queries = append(result.Queries, QueryResult{Query: q, Table: t})
	}
	e.progress(p, EventLoadEnd)
	e.progress(p, EventEnd)

	return result, nil
}

func (e *Engine) openStore(ctx context.Context) (Store, error) {
	if e.OpenStore == nil {
		return nil, fmt.Errorf("load: pipeline needs a relational store but none is configured")
	}
	store, err := e.OpenStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

// progress writes the pipeline's message for an event, if it has one.
func (e *Engine) progress(p *Pipeline, event string) {
	if e.Progress == nil {
		return
	}
	msg, ok := p.Log.Messages[event]
	if !ok {
		msg = DefaultMessages[event]
	}
	if msg != "" {
		e.Progress.Log(msg)
	}
}

// BuildTransformers converts declarative TransformConfig into Transformer instances.
func BuildTransformers(configs []TransformConfig, rates ExchangeRates) ([]Transformer, error) {
	var ts []Transformer

	for i, tc := range configs {
		switch tc.Type {
		case "numeric":
			field, _ := tc.Config["field"].(string)
			if field == "" {
				return nil, fmt.Errorf("transform %d: numeric needs a field", i)
			}
			strip, ok := tc.Config["strip"].(string)
			if !ok {
				strip = ","
			}
			ts = append(ts, &NumericTransform{Field: field, Strip: strip})

		case "round":
			field, _ := tc.Config["field"].(string)
			if field == "" {
				return nil, fmt.Errorf("transform %d: round needs a field", i)
			}
			ts = append(ts, &RoundTransform{Field: field, Places: intOr(tc.Config["places"], 2)})

		case "currency":
			base, _ := tc.Config["base"].(string)
			if base == "" {
				return nil, fmt.Errorf("transform %d: currency needs a base field", i)
			}
			targets, err := parseTargets(tc.Config["targets"])
			if err != nil {
				return nil, fmt.Errorf("transform %d: %w", i, err)
			}
			if rates == nil {
				return nil, fmt.Errorf("transform %d: currency needs exchange rates", i)
			}
			ct, err := NewCurrencyTransform(base, intOr(tc.Config["places"], 2), targets, rates)
			if err != nil {
				return nil, fmt.Errorf("transform %d: %w", i, err)
			}
			ts = append(ts, ct)

		case "rename":
			mapping, ok := tc.Config["mapping"].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("transform %d: rename needs a mapping", i)
			}
			m := make(map[string]string, len(mapping))
			for k, v := range mapping {
				m[k] = fmt.Sprint(v)
			}
			ts = append(ts, &RenameTransform{Mapping: m})

		default:
			return nil, fmt.Errorf("transform %d: unknown type %q", i, tc.Type)
		}
	}

	return ts, nil
}

// parseTargets accepts either [{code, column}, ...] or {CODE: column}.
// The map form yields targets in code order.
func parseTargets(raw any) ([]CurrencyTarget, error) {
	if m, ok := raw.(map[string]any); ok && len(m) > 0 {
		codes := make([]string, 0, len(m))
		for code := range m {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		targets := make([]CurrencyTarget, 0, len(m))
		for _, code := range codes {
			column, _ := m[code].(string)
			if column == "" {
				return nil, fmt.Errorf("currency target %s needs a column", code)
			}
			targets = append(targets, CurrencyTarget{Code: code, Column: column})
		}
		return targets, nil
	}
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("currency needs a non-empty targets list")
	}
	targets := make([]CurrencyTarget, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("currency target must be an object, got %T", item)
		}
		code, _ := m["code"].(string)
		column, _ := m["column"].(string)
		if code == "" || column == "" {
			return nil, fmt.Errorf("currency target needs code and column")
		}
		targets = append(targets, CurrencyTarget{Code: code, Column: column})
	}
	return targets, nil
}

func intOr(v any, def int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return def
	}
}
