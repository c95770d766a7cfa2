package agent

import (
	"context"
	"testing"
)

func TestPromptHolderOverride(t *testing.T) {
	var holder PromptHolder
	holder.SetSystemPrompt("  base  ")

	if got := holder.SystemPrompt(); got != "base" {
		t.Fatalf("SystemPrompt = %q, want base", got)
	}
	if got := holder.Effective(Deps{}); got != "base" {
		t.Fatalf("Effective without override = %q", got)
	}
	if got := holder.Effective(Deps{SystemPrompt: "intent prompt"}); got != "intent prompt" {
		t.Fatalf("Effective with override = %q", got)
	}
	if got := holder.SystemPrompt(); got != "base" {
		t.Fatalf("override leaked into base prompt: %q", got)
	}
}

func TestDepsToolAllowed(t *testing.T) {
	if !(Deps{}).ToolAllowed("anything") {
		t.Fatal("nil allow-list should allow every tool")
	}
	if (Deps{AllowedTools: []string{}}).ToolAllowed("fetch_link") {
		t.Fatal("empty allow-list should allow nothing")
	}
	if !(Deps{AllowedTools: []string{"fetch_link"}}).ToolAllowed("fetch_link") {
		t.Fatal("listed tool should be allowed")
	}
}

func TestToolRecorderPairsEvents(t *testing.T) {
	var recorder ToolRecorder
	ctx := recorder.Attach(context.Background())

	EmitToolEvent(ctx, ToolEvent{Kind: ToolEventCall, Tool: "search_web", Payload: `{"query":"go"}`})
	EmitToolEvent(ctx, ToolEvent{Kind: ToolEventCall, Tool: "fetch_link", Payload: `{"url":"x"}`})
	EmitToolEvent(ctx, ToolEvent{Kind: ToolEventResult, Tool: "search_web", Payload: "3 results", DurationMs: 12})
	EmitToolEvent(ctx, ToolEvent{Kind: ToolEventResult, Tool: "fetch_link", Payload: "timeout", IsError: true, DurationMs: 5})

	calls := recorder.Calls()
	if len(calls) != 2 {
		t.Fatalf("len(calls) = %d, want 2", len(calls))
	}
	if calls[0].Output != "3 results" || calls[0].DurationMs != 12 {
		t.Fatalf("calls[0] = %+v", calls[0])
	}
	if !calls[1].IsError {
		t.Fatalf("calls[1] = %+v, want error", calls[1])
	}
}

func TestWithToolEventHandlerChainsOuterHandler(t *testing.T) {
	var outer, inner []string
	ctx := WithToolEventHandler(context.Background(), func(e ToolEvent) { outer = append(outer, e.Tool) })
	ctx = WithToolEventHandler(ctx, func(e ToolEvent) { inner = append(inner, e.Tool) })

	EmitToolEvent(ctx, ToolEvent{Kind: ToolEventCall, Tool: " generate_image "})

	if len(outer) != 1 || len(inner) != 1 || outer[0] != "generate_image" {
		t.Fatalf("outer = %v inner = %v", outer, inner)
	}
}

func TestEmitWithoutHandlerIsNoop(t *testing.T) {
	EmitToolEvent(context.Background(), ToolEvent{Kind: ToolEventCall, Tool: "x"})
}

func TestResultToolNamesDistinct(t *testing.T) {
	r := Result{ToolCalls: []ToolCall{{Name: "search_web"}, {Name: "fetch_link"}, {Name: "search_web"}, {}}}
	names := r.ToolNames()
	if len(names) != 2 || names[0] != "search_web" || names[1] != "fetch_link" {
		t.Fatalf("ToolNames = %v", names)
	}
}

func TestUsageAppendMetadata(t *testing.T) {
	if got := (Usage{}).AppendMetadata(nil); got != nil {
		t.Fatalf("zero usage metadata = %v, want nil", got)
	}

	payload := Usage{InputTokens: 11, OutputTokens: 22, TotalTokens: 33, ReasoningTokens: 4, CacheReadTokens: 6}.
		AppendMetadata(map[string]string{"duration_ms": "5"})

	want := map[string]string{
		"duration_ms":             "5",
		UsageInputTokensKey:       "11",
		UsageOutputTokensKey:      "22",
		UsageTotalTokensKey:       "33",
		UsageReasoningTokensKey:   "4",
		UsageCacheCreateTokensKey: "0",
		UsageCacheReadTokensKey:   "6",
	}
	for key, value := range want {
		if payload[key] != value {
			t.Fatalf("payload[%s] = %q, want %q", key, payload[key], value)
		}
	}
}
