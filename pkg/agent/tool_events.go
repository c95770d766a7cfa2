package agent

import (
	"context"
	"strings"
	"sync"
)

const (
	ToolEventCall   = "call"
	ToolEventResult = "result"
)

// ToolEvent is emitted by tools when they start and finish.
type ToolEvent struct {
	Kind       string `json:"kind"`
	Tool       string `json:"tool"`
	Payload    string `json:"payload,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

type toolEventHandlerKey struct{}

// ToolEventHandler receives tool events emitted during an agent call.
type ToolEventHandler func(event ToolEvent)

// WithToolEventHandler returns a context carrying handler. A handler already
// on ctx keeps receiving events after the new one.
func WithToolEventHandler(ctx context.Context, handler ToolEventHandler) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if handler == nil {
		return ctx
	}

	if outer, ok := ToolEventHandlerFromContext(ctx); ok {
		inner := handler
		handler = func(event ToolEvent) {
			inner(event)
			outer(event)
		}
	}

	return context.WithValue(ctx, toolEventHandlerKey{}, handler)
}

// ToolEventHandlerFromContext returns a context-carried tool event handler.
func ToolEventHandlerFromContext(ctx context.Context) (ToolEventHandler, bool) {
	if ctx == nil {
		return nil, false
	}

	handler, ok := ctx.Value(toolEventHandlerKey{}).(ToolEventHandler)
	if !ok || handler == nil {
		return nil, false
	}

	return handler, true
}

// EmitToolEvent emits one normalized tool event to a context handler, when present.
func EmitToolEvent(ctx context.Context, event ToolEvent) {
	handler, ok := ToolEventHandlerFromContext(ctx)
	if !ok {
		return
	}

	event.Kind = strings.TrimSpace(event.Kind)
	event.Tool = strings.TrimSpace(event.Tool)
	event.Payload = strings.TrimSpace(event.Payload)
	handler(event)
}

// ToolRecorder folds call/result event pairs into ToolCall records.
type ToolRecorder struct {
	mu    sync.Mutex
	calls []ToolCall
}

// Attach installs the recorder on ctx.
func (r *ToolRecorder) Attach(ctx context.Context) context.Context {
	return WithToolEventHandler(ctx, r.record)
}

func (r *ToolRecorder) record(event ToolEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Kind {
	case ToolEventCall:
		r.calls = append(r.calls, ToolCall{Name: event.Tool, Input: event.Payload})
	case ToolEventResult:
		for i := len(r.calls) - 1; i >= 0; i-- {
			if r.calls[i].Name == event.Tool && r.calls[i].Output == "" && r.calls[i].DurationMs == 0 {
				r.calls[i].Output = event.Payload
				r.calls[i].IsError = event.IsError
				r.calls[i].DurationMs = event.DurationMs
				return
			}
		}
		r.calls = append(r.calls, ToolCall{Name: event.Tool, Output: event.Payload, IsError: event.IsError, DurationMs: event.DurationMs})
	}
}

// Calls returns a copy of the recorded calls.
func (r *ToolRecorder) Calls() []ToolCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.calls) == 0 {
		return nil
	}
	out := make([]ToolCall, len(r.calls))
	copy(out, r.calls)
	return out
}
