// Package agent defines the conversational agent boundary used by the router.
package agent

import (
	"context"
	"errors"
	"strings"
	"sync"

	"valorbot/pkg/intent"
)

// ErrEmptyOutput is returned when a backend answers without any text.
var ErrEmptyOutput = errors.New("agent returned no text")

// Deps is the execution context of one agent call.
type Deps struct {
	ChatID           int64
	Username         string
	IsGroupChat      bool
	ChatHistory      string
	ProjectData      string
	PriorityQuestion bool
	Classification   *intent.Classification

	// SystemPrompt replaces the agent's base prompt for this call only.
	SystemPrompt string
	// AllowedTools limits the tools offered to the model. Nil offers every
	// registered tool; an empty non-nil slice offers none.
	AllowedTools []string
}

// ToolCall records one tool invocation made while answering.
type ToolCall struct {
	Name       string `json:"name"`
	Input      string `json:"input,omitempty"`
	Output     string `json:"output,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// Result is the agent's answer plus the tools it used.
type Result struct {
	Output    string
	ToolCalls []ToolCall
	Model     string
	Usage     Usage
}

// Agent answers enhanced chat messages.
type Agent interface {
	Run(ctx context.Context, message string, deps Deps) (Result, error)
	SystemPrompt() string
	SetSystemPrompt(prompt string)
	Health(ctx context.Context) error
}

// PromptHolder stores the base system prompt for backends.
type PromptHolder struct {
	mu     sync.RWMutex
	prompt string
}

func (p *PromptHolder) SystemPrompt() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.prompt
}

func (p *PromptHolder) SetSystemPrompt(prompt string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompt = strings.TrimSpace(prompt)
}

// Effective returns the per-call override when set, else the base prompt.
func (p *PromptHolder) Effective(deps Deps) string {
	if override := strings.TrimSpace(deps.SystemPrompt); override != "" {
		return override
	}
	return p.SystemPrompt()
}

// ToolAllowed reports whether deps permit the named tool.
func (d Deps) ToolAllowed(name string) bool {
	if d.AllowedTools == nil {
		return true
	}
	for _, allowed := range d.AllowedTools {
		if allowed == name {
			return true
		}
	}
	return false
}

// ToolNames returns distinct tool names in first-use order.
func (r Result) ToolNames() []string {
	seen := make(map[string]struct{}, len(r.ToolCalls))
	var names []string
	for _, call := range r.ToolCalls {
		if call.Name == "" {
			continue
		}
		if _, ok := seen[call.Name]; ok {
			continue
		}
		seen[call.Name] = struct{}{}
		names = append(names, call.Name)
	}
	return names
}

type chatIDKey struct{}

// WithChatID tags ctx with the chat an agent call serves so tools can scope
// their lookups.
func WithChatID(ctx context.Context, chatID int64) context.Context {
	return context.WithValue(ctx, chatIDKey{}, chatID)
}

func ChatIDFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	chatID, ok := ctx.Value(chatIDKey{}).(int64)
	return chatID, ok
}
