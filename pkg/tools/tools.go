// Package tools builds the fantasy agent tools the bot exposes to its model.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	core "charm.land/fantasy"

	"valorbot/pkg/agent"
	"valorbot/pkg/history"
	"valorbot/pkg/media"
	"valorbot/pkg/projects"
	"valorbot/pkg/toolpolicy"
)

const (
	ErrorInvalidInput  = "invalid_input"
	ErrorNotConfigured = "not_configured"
	ErrorUpstream      = "upstream_error"

	maxEventPayload = 240
)

// Error is a categorized tool failure reported back to the model.
type Error struct {
	Category string
	Detail   string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Category
	}
	return e.Category + ": " + e.Detail
}

func newError(category string, format string, args ...any) error {
	return &Error{Category: category, Detail: fmt.Sprintf(format, args...)}
}

// CategoryFromError maps tool and media errors to a stable category.
func CategoryFromError(err error) string {
	if err == nil {
		return ""
	}

	var toolErr *Error
	if errors.As(err, &toolErr) {
		return toolErr.Category
	}
	var mediaErr *media.Error
	if errors.As(err, &mediaErr) {
		return mediaErr.Category
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorUpstream
	}

	return media.ErrorIO
}

// HealthReporter describes the running process for the system_health tool.
type HealthReporter interface {
	HealthReport() string
}

// Options carries the collaborators tools call into. A nil collaborator
// leaves its tool registered but answering with not_configured.
type Options struct {
	History      history.Store
	Projects     projects.Source
	Media        *media.Dir
	Images       ImageGenerator
	Health       HealthReporter
	HTTPClient   *http.Client
	SearchURL    string
	FetchTimeout time.Duration
	Now          func() time.Time
}

// Build returns every tool the bot knows, in a stable order.
func Build(opts Options) []core.AgentTool {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	web := newWebTools(opts)

	return []core.AgentTool{
		core.NewAgentTool(toolpolicy.ToolCurrentTime, "Get the current date and time, optionally in an IANA time zone.",
			handler(toolpolicy.ToolCurrentTime, currentTime(opts.Now))),
		core.NewAgentTool(toolpolicy.ToolSystemHealth, "Report the bot's uptime, memory and message counters.",
			handler(toolpolicy.ToolSystemHealth, systemHealth(opts.Health))),
		core.NewAgentTool(toolpolicy.ToolFetchLink, "Fetch a web page and return its title, description and readable text.",
			handler(toolpolicy.ToolFetchLink, web.fetchLink)),
		core.NewAgentTool(toolpolicy.ToolSearchWeb, "Search the web and return result titles, URLs and snippets.",
			handler(toolpolicy.ToolSearchWeb, web.searchWeb)),
		core.NewAgentTool(toolpolicy.ToolSearchHistory, "Search earlier messages in the current chat.",
			handler(toolpolicy.ToolSearchHistory, searchHistory(opts.History))),
		core.NewAgentTool(toolpolicy.ToolQueryProjects, "Read the current project and task status summary.",
			handler(toolpolicy.ToolQueryProjects, queryProjects(opts.Projects))),
		core.NewAgentTool(toolpolicy.ToolGenerateImage, "Generate an image from a text description and attach it to the reply.",
			handler(toolpolicy.ToolGenerateImage, generateImage(opts.Images, opts.Media))),
	}
}

// handler wraps fn with tool events, debug logging and error shaping.
// Failures are returned as error responses so the model can recover.
func handler[T any](name string, fn func(ctx context.Context, input T) (string, error)) func(context.Context, T, core.ToolCall) (core.ToolResponse, error) {
	return func(ctx context.Context, input T, _ core.ToolCall) (core.ToolResponse, error) {
		start := time.Now()
		agent.EmitToolEvent(ctx, agent.ToolEvent{Kind: agent.ToolEventCall, Tool: name, Payload: toolEventPayload(input)})

		output, err := fn(ctx, input)
		elapsed := time.Since(start)
		if err != nil {
			category := CategoryFromError(err)
			logToolResult(name, false, elapsed, category)
			agent.EmitToolEvent(ctx, agent.ToolEvent{Kind: agent.ToolEventResult, Tool: name, Payload: err.Error(), IsError: true, DurationMs: elapsed.Milliseconds()})
			return toolErrorResponse(err), nil
		}

		logToolResult(name, true, elapsed, "")
		agent.EmitToolEvent(ctx, agent.ToolEvent{Kind: agent.ToolEventResult, Tool: name, Payload: eventSummary(name, output), DurationMs: elapsed.Milliseconds()})
		return core.NewTextResponse(output), nil
	}
}

func toolErrorResponse(err error) core.ToolResponse {
	category := CategoryFromError(err)
	message := err.Error()
	if !strings.HasPrefix(message, category) {
		message = category + ": " + message
	}

	return core.NewTextErrorResponse(message)
}

// eventSummary keeps event payloads short; image markers pass through whole
// so the router can recover the attachment.
func eventSummary(name string, output string) string {
	if name == toolpolicy.ToolGenerateImage {
		return output
	}
	output = strings.Join(strings.Fields(output), " ")
	runes := []rune(output)
	if len(runes) <= maxEventPayload {
		return output
	}
	return string(runes[:maxEventPayload]) + "…"
}

func logToolResult(toolName string, success bool, duration time.Duration, errorCategory string) {
	attrs := []any{
		"component", "tools",
		"tool", toolName,
		"success", success,
		"duration_ms", duration.Milliseconds(),
	}
	if errorCategory != "" {
		attrs = append(attrs, "error_category", errorCategory)
	}

	slog.Default().Debug("Tool execution", attrs...)
}

func toolEventPayload(input any) string {
	payload, err := json.Marshal(input)
	if err != nil {
		return fmt.Sprintf("%v", input)
	}

	return string(payload)
}
