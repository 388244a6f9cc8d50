package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dataeng/internal/etl"
)

// Run is one persisted pipeline execution.
type Run struct {
	ID          string           `json:"id"`
	Pipeline    string           `json:"pipeline"`
	Trigger     string           `json:"trigger"` // "manual" | "schedule" | "file_watch" | "mcp"
	StartedAt   time.Time        `json:"startedAt"`
	FinishedAt  time.Time        `json:"finishedAt"`
	Status      string           `json:"status"`
	RowsRead    int              `json:"rowsRead"`
	RowsWritten int              `json:"rowsWritten"`
	Sinks       []etl.SinkResult `json:"sinks,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// RunStore implements persistence for pipeline run history.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// NewRun builds a Run from a finished pipeline result.
func NewRun(res *etl.SyncResult, trigger string, startedAt time.Time) *Run {
	return &Run{
		Pipeline:    res.Pipeline,
		Trigger:     trigger,
		StartedAt:   startedAt,
		FinishedAt:  startedAt.Add(res.Duration),
		Status:      res.Status,
		RowsRead:    res.RowsRead,
		RowsWritten: res.RowsWritten,
		Sinks:       res.Sinks,
		Error:       res.Error,
	}
}

// CreateRun stores a run, assigning it a new id.
func (s *RunStore) CreateRun(ctx context.Context, run *Run) error {
	run.ID = uuid.New().String()
	if run.Trigger == "" {
		run.Trigger = "manual"
	}
	sinks, err := json.Marshal(run.Sinks)
	if err != nil {
		return fmt.Errorf("encode sinks: %w", err)
	}

	_, err = s.db.conn.ExecContext(ctx,
		`INSERT INTO etl_runs (id, pipeline, trigger_type, started_at, finished_at, status, rows_read, rows_written, sinks_json, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Pipeline, run.Trigger, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Status,
		run.RowsRead, run.RowsWritten, string(sinks), run.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// ListRuns returns the latest runs of a pipeline, newest first.
// An empty pipeline name lists runs of every pipeline.
func (s *RunStore) ListRuns(ctx context.Context, pipeline string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, pipeline, trigger_type, started_at, finished_at, status, rows_read, rows_written, sinks_json, error
		 FROM etl_runs WHERE (? = '' OR pipeline = ?) ORDER BY started_at DESC LIMIT ?`,
		pipeline, pipeline, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var sinks string
		if err := rows.Scan(&r.ID, &r.Pipeline, &r.Trigger, &r.StartedAt, &r.FinishedAt, &r.Status,
			&r.RowsRead, &r.RowsWritten, &sinks, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(sinks), &r.Sinks); err != nil {
			return nil, fmt.Errorf("decode sinks: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
