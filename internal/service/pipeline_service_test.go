package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dataeng/internal/dbclient"
	"dataeng/internal/etl"
	_ "dataeng/internal/etl/sources"
	"dataeng/internal/service"
	"dataeng/internal/storage"
)

type memHistory struct {
	mu   sync.Mutex
	runs []storage.Run
}

func (h *memHistory) CreateRun(_ context.Context, run *storage.Run) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	run.ID = "run-" + run.Pipeline
	h.runs = append(h.runs, *run)
	return nil
}

func (h *memHistory) ListRuns(_ context.Context, pipeline string, _ int) ([]storage.Run, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []storage.Run
	for _, r := range h.runs {
		if pipeline == "" || r.Pipeline == pipeline {
			out = append(out, r)
		}
	}
	return out, nil
}

func (h *memHistory) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.runs)
}

func csvPipeline(dir, name string) etl.Pipeline {
	return etl.Pipeline{
		Name: name,
		Sources: []etl.SourceConfig{{
			Type:    "inline",
			Columns: []string{"ID", "CITY"},
			Rows:    []map[string]any{{"ID": float64(1), "CITY": "Toronto"}, {"ID": float64(2), "CITY": "Markham"}},
		}},
		Sinks: []etl.SinkConfig{{Type: "csv", Path: filepath.Join(dir, name+".csv")}},
		Log:   etl.LogConfig{Path: filepath.Join(dir, name+"_log.txt")},
	}
}

func TestPipelineService_DuplicateNames(t *testing.T) {
	dir := t.TempDir()
	_, err := service.NewPipelineService(service.Options{
		Pipelines: []etl.Pipeline{csvPipeline(dir, "a"), csvPipeline(dir, "a")},
	})
	require.ErrorContains(t, err, "duplicate pipeline name")
}

func TestPipelineService_RunPipeline(t *testing.T) {
	dir := t.TempDir()
	history := &memHistory{}
	emitter := &service.MockEmitter{}
	svc, err := service.NewPipelineService(service.Options{
		Pipelines: []etl.Pipeline{csvPipeline(dir, "departments")},
		History:   history,
		Emitter:   emitter,
	})
	require.NoError(t, err)

	res, err := svc.RunPipeline(context.Background(), "departments", service.TriggerManual)
	require.NoError(t, err)
	require.Equal(t, "success", res.Status)
	require.Equal(t, 2, res.RowsWritten)

	data, err := os.ReadFile(filepath.Join(dir, "departments.csv"))
	require.NoError(t, err)
	require.Equal(t, "ID,CITY\n1,Toronto\n2,Markham\n", string(data))

	logData, err := os.ReadFile(filepath.Join(dir, "departments_log.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(logData)), "\n")
	require.Len(t, lines, 8)
	require.True(t, strings.HasSuffix(lines[0], ",ETL Job Started"))
	require.True(t, strings.HasSuffix(lines[7], ",ETL Job Ended"))

	runs, err := svc.History(context.Background(), "departments", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, service.TriggerManual, runs[0].Trigger)
	require.Equal(t, 2, runs[0].RowsWritten)

	events := emitter.Recorded()
	require.Len(t, events, 2)
	require.Equal(t, service.EventRunStarted, events[0].Event)
	require.Equal(t, service.EventRunCompleted, events[1].Event)
}

func TestPipelineService_UnknownPipeline(t *testing.T) {
	svc, err := service.NewPipelineService(service.Options{})
	require.NoError(t, err)

	_, err = svc.RunPipeline(context.Background(), "nope", service.TriggerManual)
	require.ErrorContains(t, err, "pipeline not found")
	_, err = svc.Query(context.Background(), "nope", "SELECT 1")
	require.ErrorContains(t, err, "pipeline not found")
}

func TestPipelineService_RefusesConcurrentRun(t *testing.T) {
	dir := t.TempDir()
	p := csvPipeline(dir, "instructor")
	p.Sinks = append(p.Sinks, etl.SinkConfig{Type: "sql", Table: "INSTRUCTOR"})

	entered := make(chan struct{})
	release := make(chan struct{})
	svc, err := service.NewPipelineService(service.Options{
		Pipelines: []etl.Pipeline{p},
		Stores: func(*etl.Pipeline) (etl.StoreOpener, error) {
			return func(context.Context) (etl.Store, error) {
				close(entered)
				<-release
				return nil, errors.New("store offline")
			}, nil
		},
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.RunPipeline(context.Background(), "instructor", service.TriggerManual)
		done <- err
	}()
	<-entered

	_, err = svc.RunPipeline(context.Background(), "instructor", service.TriggerManual)
	require.ErrorContains(t, err, "already running")

	close(release)
	require.ErrorContains(t, <-done, "store offline")
}

func TestPipelineService_QueryWithoutStore(t *testing.T) {
	svc, err := service.NewPipelineService(service.Options{Pipelines: []etl.Pipeline{csvPipeline(t.TempDir(), "cars")}})
	require.NoError(t, err)

	_, err = svc.Query(context.Background(), "cars", "SELECT 1")
	require.ErrorContains(t, err, "no relational store")
}

func TestPipelineService_InvalidSchedule(t *testing.T) {
	p := csvPipeline(t.TempDir(), "cars")
	p.Schedule = "every tuesday"
	svc, err := service.NewPipelineService(service.Options{Pipelines: []etl.Pipeline{p}})
	require.NoError(t, err)

	err = svc.StartTriggers(context.Background())
	require.ErrorContains(t, err, "invalid schedule")
	svc.Stop()
}

func TestPipelineService_FileWatchTriggersRun(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "source.csv")
	require.NoError(t, os.WriteFile(input, []byte("ID\n1\n"), 0o644))

	p := etl.Pipeline{
		Name:    "watched",
		Sources: []etl.SourceConfig{{Type: "csv", Paths: []string{input}}},
		Sinks:   []etl.SinkConfig{{Type: "csv", Path: filepath.Join(dir, "out", "watched.csv")}},
		Watch:   []string{input},
	}
	history := &memHistory{}
	svc, err := service.NewPipelineService(service.Options{Pipelines: []etl.Pipeline{p}, History: history})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.StartTriggers(ctx))
	defer svc.Stop()

	require.NoError(t, os.WriteFile(input, []byte("ID\n1\n2\n"), 0o644))

	require.Eventually(t, func() bool { return history.len() > 0 }, 5*time.Second, 50*time.Millisecond)
	runs, err := history.ListRuns(ctx, "watched", 1)
	require.NoError(t, err)
	require.Equal(t, service.TriggerFileWatch, runs[0].Trigger)
}

func TestPipelineService_ServeStopsOnCancel(t *testing.T) {
	svc, err := service.NewPipelineService(service.Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx, time.Second) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestPipelineService_SchemaAfterLoad(t *testing.T) {
	dir := t.TempDir()
	p := csvPipeline(dir, "instructor")
	p.Sinks = append(p.Sinks, etl.SinkConfig{Type: "sql", Table: "INSTRUCTOR"})
	conn := dbclient.ConnectionConfig{Driver: dbclient.DriverSQLite, Path: filepath.Join(dir, "STAFF.db")}

	svc, err := service.NewPipelineService(service.Options{
		Pipelines: []etl.Pipeline{p},
		Stores: func(*etl.Pipeline) (etl.StoreOpener, error) {
			return dbclient.Opener(conn), nil
		},
	})
	require.NoError(t, err)

	_, err = svc.RunPipeline(context.Background(), "instructor", service.TriggerManual)
	require.NoError(t, err)

	schema, err := svc.Schema(context.Background(), "instructor")
	require.NoError(t, err)
	require.Len(t, schema.Tables, 1)
	require.Equal(t, "INSTRUCTOR", schema.Tables[0].Name)
	require.Equal(t, []dbclient.ColumnInfo{{Name: "ID", Type: "INTEGER"}, {Name: "CITY", Type: "TEXT"}}, schema.Tables[0].Columns)

	tbl, err := svc.Query(context.Background(), "instructor", "SELECT COUNT(*) AS N FROM INSTRUCTOR")
	require.NoError(t, err)
	require.Equal(t, int64(2), tbl.Records[0].Data["N"])
}
