package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"dataeng/internal/dbclient"
	"dataeng/internal/etl"
	"dataeng/internal/progress"
	"dataeng/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// PipelineService: runs named pipelines, schedules and watches them
// ─────────────────────────────────────────────────────────────

// Run triggers.
const (
	TriggerManual    = "manual"
	TriggerSchedule  = "schedule"
	TriggerFileWatch = "file_watch"
	TriggerMCP       = "mcp"
)

// History persists finished runs.
type History interface {
	CreateRun(ctx context.Context, run *storage.Run) error
	ListRuns(ctx context.Context, pipeline string, limit int) ([]storage.Run, error)
}

// StoreResolver returns the relational store opener a pipeline loads into.
// A nil opener with a nil error means the pipeline has no store.
type StoreResolver func(p *etl.Pipeline) (etl.StoreOpener, error)

// Options configures a PipelineService.
type Options struct {
	Pipelines  []etl.Pipeline
	Stores     StoreResolver
	LoadRates  etl.RatesLoader
	Env        etl.Env
	History    History       // optional
	Emitter    EventEmitter  // optional
	RunTimeout time.Duration // zero means no timeout
}

// PipelineService owns the configured pipelines and everything needed to run them.
type PipelineService struct {
	pipelines  []etl.Pipeline
	byName     map[string]int
	stores     StoreResolver
	loadRates  etl.RatesLoader
	env        etl.Env
	history    History
	emitter    EventEmitter
	runTimeout time.Duration

	runningJobs runningJobsGuard

	// watcher / cron lifecycle
	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewPipelineService creates a PipelineService ready for use.
func NewPipelineService(opts Options) (*PipelineService, error) {
	s := &PipelineService{
		pipelines:  opts.Pipelines,
		byName:     make(map[string]int, len(opts.Pipelines)),
		stores:     opts.Stores,
		loadRates:  opts.LoadRates,
		env:        opts.Env,
		history:    opts.History,
		emitter:    opts.Emitter,
		runTimeout: opts.RunTimeout,
	}
	if s.emitter == nil {
		s.emitter = nopEmitter{}
	}
	for i, p := range opts.Pipelines {
		if _, dup := s.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate pipeline name: %s", p.Name)
		}
		s.byName[p.Name] = i
	}
	return s, nil
}

// ── Pipelines ──────────────────────────────────────────────

// Pipelines returns the configured pipelines in definition order.
func (s *PipelineService) Pipelines() []etl.Pipeline {
	return s.pipelines
}

// Pipeline returns a pipeline by name.
func (s *PipelineService) Pipeline(name string) (*etl.Pipeline, error) {
	i, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("pipeline not found: %s", name)
	}
	return &s.pipelines[i], nil
}

// ── Run ────────────────────────────────────────────────────

// RunPipeline executes one pipeline synchronously and records it in the history.
func (s *PipelineService) RunPipeline(ctx context.Context, name, trigger string) (*etl.SyncResult, error) {
	p, err := s.Pipeline(name)
	if err != nil {
		return nil, err
	}

	// Prevent concurrent execution of the same pipeline.
	if !s.runningJobs.TryLock(name) {
		return nil, fmt.Errorf("pipeline %s is already running", name)
	}
	defer s.runningJobs.Unlock(name)

	opener, err := s.openerFor(p)
	if err != nil {
		return nil, err
	}
	engine := &etl.Engine{
		Progress:  s.progressFor(p),
		OpenStore: opener,
		LoadRates: s.loadRates,
		Env:       s.env,
	}

	runCtx := ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	s.emitter.Emit(ctx, EventRunStarted, map[string]string{"pipeline": name, "trigger": trigger})
	start := time.Now()
	result, runErr := engine.RunSync(runCtx, p)

	if s.history != nil {
		if err := s.history.CreateRun(ctx, storage.NewRun(result, trigger, start)); err != nil {
			slog.WarnContext(ctx, "record run failed", "pipeline", name, "err", err)
		}
	}
	s.emitter.Emit(ctx, EventRunCompleted, result)

	return result, runErr
}

// Query runs a read-only statement against the store a pipeline loads into.
func (s *PipelineService) Query(ctx context.Context, name, query string) (*etl.Table, error) {
	p, err := s.Pipeline(name)
	if err != nil {
		return nil, err
	}
	opener, err := s.openerFor(p)
	if err != nil {
		return nil, err
	}
	if opener == nil {
		return nil, fmt.Errorf("pipeline %s has no relational store", name)
	}
	store, err := opener(ctx)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	return store.Query(ctx, query)
}

// schemaDescriber is implemented by stores that can list their tables.
type schemaDescriber interface {
	Introspect(ctx context.Context) (*dbclient.SchemaInfo, error)
}

// Schema describes the tables of the store a pipeline loads into.
func (s *PipelineService) Schema(ctx context.Context, name string) (*dbclient.SchemaInfo, error) {
	p, err := s.Pipeline(name)
	if err != nil {
		return nil, err
	}
	opener, err := s.openerFor(p)
	if err != nil {
		return nil, err
	}
	if opener == nil {
		return nil, fmt.Errorf("pipeline %s has no relational store", name)
	}
	store, err := opener(ctx)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	d, ok := store.(schemaDescriber)
	if !ok {
		return nil, fmt.Errorf("store of pipeline %s cannot describe its schema", name)
	}
	return d.Introspect(ctx)
}

// History returns the latest recorded runs of a pipeline ("" for all).
func (s *PipelineService) History(ctx context.Context, name string, limit int) ([]storage.Run, error) {
	if s.history == nil {
		return nil, fmt.Errorf("run history is not configured")
	}
	if name != "" {
		if _, err := s.Pipeline(name); err != nil {
			return nil, err
		}
	}
	return s.history.ListRuns(ctx, name, limit)
}

func (s *PipelineService) openerFor(p *etl.Pipeline) (etl.StoreOpener, error) {
	if s.stores == nil {
		return nil, nil
	}
	opener, err := s.stores(p)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", p.Name, err)
	}
	return opener, nil
}

func (s *PipelineService) progressFor(p *etl.Pipeline) etl.ProgressLogger {
	if p.Log.Path == "" {
		return progress.Discard{}
	}
	return progress.New(p.Log.Path, p.Log.Separator)
}

// ── Triggers (cron + file_watch) ──────────────────────────

// StartTriggers tears down the current watcher/cron and rebuilds them from
// the pipelines' schedules and watch lists.
func (s *PipelineService) StartTriggers(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTriggersLocked()

	// ── Cron jobs ──
	c := cron.New()
	scheduled := 0
	for _, p := range s.pipelines {
		if p.Schedule == "" {
			continue
		}
		name := p.Name
		if _, err := c.AddFunc(p.Schedule, func() {
			slog.InfoContext(ctx, "cron: running pipeline", "pipeline", name)
			if _, err := s.RunPipeline(ctx, name, TriggerSchedule); err != nil {
				slog.ErrorContext(ctx, "cron: pipeline failed", "pipeline", name, "err", err)
			}
		}); err != nil {
			return fmt.Errorf("pipeline %s: invalid schedule %q: %w", name, p.Schedule, err)
		}
		scheduled++
	}
	if scheduled > 0 {
		c.Start()
		s.cronSched = c
		slog.InfoContext(ctx, "cron: scheduled pipelines", "count", scheduled)
	}

	// ── File watchers ──
	pathToPipeline := make(map[string]string)
	for _, p := range s.pipelines {
		for _, path := range p.Watch {
			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("pipeline %s: bad watch path %q: %w", p.Name, path, err)
			}
			pathToPipeline[abs] = p.Name
		}
	}
	if len(pathToPipeline) == 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	s.watcher = watcher

	watchedDirs := make(map[string]bool)
	for abs := range pathToPipeline {
		dir := filepath.Dir(abs)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			slog.WarnContext(ctx, "watcher: cannot watch directory", "dir", dir, "err", err)
			continue
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel
	go s.watchLoop(watchCtx, watcher, pathToPipeline)

	slog.InfoContext(ctx, "watcher: watching files", "count", len(pathToPipeline))
	return nil
}

func (s *PipelineService) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, pathToPipeline map[string]string) {
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			abs, _ := filepath.Abs(event.Name)
			name, ok := pathToPipeline[abs]
			if !ok {
				continue
			}
			// Debounce bursts of writes into one run.
			if t, exists := timers[name]; exists {
				t.Stop()
			}
			timers[name] = time.AfterFunc(500*time.Millisecond, func() {
				slog.InfoContext(ctx, "watcher: file changed", "path", abs, "pipeline", name)
				if _, err := s.RunPipeline(ctx, name, TriggerFileWatch); err != nil {
					slog.ErrorContext(ctx, "watcher: pipeline failed", "pipeline", name, "err", err)
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.WarnContext(ctx, "watcher: error", "err", err)
		}
	}
}

// Serve starts the triggers and blocks until ctx is cancelled, then stops
// them and waits for running pipelines to finish.
func (s *PipelineService) Serve(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := s.StartTriggers(ctx); err != nil {
		s.Stop()
		return err
	}
	<-ctx.Done()
	s.Stop()

	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.WaitRunning(waitCtx)
	return nil
}

// WaitRunning blocks until all running pipelines finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *PipelineService) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *PipelineService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTriggersLocked()
}

func (s *PipelineService) stopTriggersLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
