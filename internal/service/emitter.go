package service

import (
	"context"
	"log/slog"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: run lifecycle notifications for the CLI and MCP front ends
// ─────────────────────────────────────────────────────────────

// Events emitted by PipelineService.
const (
	EventRunStarted   = "pipeline:started"
	EventRunCompleted = "pipeline:completed"
)

// EventEmitter receives run lifecycle events. The CLI logs them; tests
// record them with MockEmitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter writes every event to slog at INFO level.
type LogEmitter struct{}

func (LogEmitter) Emit(ctx context.Context, event string, data any) {
	slog.InfoContext(ctx, event, "data", data)
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, string, any) {}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Recorded returns a copy of the events emitted so far.
func (m *MockEmitter) Recorded() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmittedEvent(nil), m.Events...)
}
