package fantasy

import (
	"context"
	"errors"
	"testing"

	core "charm.land/fantasy"

	"valorbot/pkg/agent"
	"valorbot/pkg/config"
)

type fakeLanguageModelProvider struct {
	model     core.LanguageModel
	err       error
	lastID    string
	callCount int
}

func (f *fakeLanguageModelProvider) LanguageModel(ctx context.Context, modelID string) (core.LanguageModel, error) {
	f.callCount++
	f.lastID = modelID
	if f.err != nil {
		return nil, f.err
	}

	return f.model, nil
}

type fakeLanguageModel struct{}

func (f *fakeLanguageModel) Generate(context.Context, core.Call) (*core.Response, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLanguageModel) Stream(context.Context, core.Call) (core.StreamResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLanguageModel) GenerateObject(context.Context, core.ObjectCall) (*core.ObjectResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLanguageModel) StreamObject(context.Context, core.ObjectCall) (core.ObjectStreamResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLanguageModel) Provider() string { return "openai" }
func (f *fakeLanguageModel) Model() string    { return "gpt-4o" }

func noopTool(name string) core.AgentTool {
	return core.NewAgentTool(name, name+" tool", func(ctx context.Context, input struct{}, call core.ToolCall) (core.ToolResponse, error) {
		return core.NewTextResponse("ok"), nil
	})
}

func textResult(text string) *core.AgentResult {
	return &core.AgentResult{
		Response: core.Response{Content: core.ResponseContent{core.TextContent{Text: text}}},
	}
}

func newTestClient(generate generateFunc, tools ...core.AgentTool) *Client {
	return &Client{
		provider:     &fakeLanguageModelProvider{model: &fakeLanguageModel{}},
		modelID:      "gpt-4o",
		tools:        tools,
		maxToolSteps: 4,
		generate:     generate,
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	cfg := &config.Config{}
	cfg.Agent.Model = "openai/gpt-4o"

	if _, err := New(cfg, nil); err == nil {
		t.Fatal("expected missing api key error")
	}
}

func TestNewAppliesDefaultToolStepLimit(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := &config.Config{}
	cfg.Agent.Model = "openai/gpt-4o"

	client, err := New(cfg, []core.AgentTool{noopTool("get_current_time")})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if len(client.tools) != 1 {
		t.Fatalf("tools length = %d, want 1", len(client.tools))
	}
	if client.maxToolSteps != defaultMaxToolSteps {
		t.Fatalf("maxToolSteps = %d, want %d", client.maxToolSteps, defaultMaxToolSteps)
	}
}

func TestNormalizeOpenAIModel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain model", input: "gpt-4o", want: "gpt-4o"},
		{name: "openai prefixed", input: "openai/gpt-4o", want: "gpt-4o"},
		{name: "non openai prefixed", input: "anthropic/claude", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeOpenAIModel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("normalizeOpenAIModel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("normalizeOpenAIModel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestHealthResolvesModel(t *testing.T) {
	provider := &fakeLanguageModelProvider{model: &fakeLanguageModel{}}
	client := &Client{provider: provider, modelID: "gpt-4o"}

	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health error: %v", err)
	}
	if provider.callCount != 1 || provider.lastID != "gpt-4o" {
		t.Fatalf("provider calls = %d, last id = %q", provider.callCount, provider.lastID)
	}

	provider.err = errors.New("down")
	if err := client.Health(context.Background()); err == nil {
		t.Fatal("expected health error")
	}
}

func TestRunRejectsEmptyMessage(t *testing.T) {
	client := newTestClient(nil)

	if _, err := client.Run(context.Background(), "  ", agent.Deps{}); err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestRunUsesPerCallSystemPrompt(t *testing.T) {
	var seen []core.Message
	client := newTestClient(func(ctx context.Context, model core.LanguageModel, call core.AgentCall, _ []core.AgentOption) (*core.AgentResult, error) {
		seen = call.Messages
		return textResult("reply"), nil
	})
	client.SetSystemPrompt("base identity")

	result, err := client.Run(context.Background(), "hello", agent.Deps{SystemPrompt: "intent prompt"})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if result.Output != "reply" {
		t.Fatalf("output = %q, want reply", result.Output)
	}
	if len(seen) != 1 || seen[0].Role != core.MessageRoleSystem {
		t.Fatalf("messages = %+v, want one system message", seen)
	}
	text, ok := seen[0].Content[0].(core.TextPart)
	if !ok || text.Text != "intent prompt" {
		t.Fatalf("system content = %+v, want intent prompt", seen[0].Content)
	}
	if client.SystemPrompt() != "base identity" {
		t.Fatalf("base prompt changed to %q", client.SystemPrompt())
	}
}

func TestRunWithoutPromptSendsNoSystemMessage(t *testing.T) {
	var seen []core.Message
	client := newTestClient(func(ctx context.Context, model core.LanguageModel, call core.AgentCall, _ []core.AgentOption) (*core.AgentResult, error) {
		seen = call.Messages
		return textResult("reply"), nil
	})

	if _, err := client.Run(context.Background(), "hello", agent.Deps{}); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(seen) != 0 {
		t.Fatalf("messages = %d, want 0", len(seen))
	}
}

func TestRunEmptyOutput(t *testing.T) {
	client := newTestClient(func(ctx context.Context, model core.LanguageModel, call core.AgentCall, _ []core.AgentOption) (*core.AgentResult, error) {
		return textResult("   "), nil
	})

	_, err := client.Run(context.Background(), "hello", agent.Deps{})
	if !errors.Is(err, agent.ErrEmptyOutput) {
		t.Fatalf("err = %v, want ErrEmptyOutput", err)
	}
}

func TestRunCollectsToolEvents(t *testing.T) {
	client := newTestClient(func(ctx context.Context, model core.LanguageModel, call core.AgentCall, _ []core.AgentOption) (*core.AgentResult, error) {
		agent.EmitToolEvent(ctx, agent.ToolEvent{Kind: agent.ToolEventCall, Tool: "search_web", Payload: `{"query":"go"}`})
		agent.EmitToolEvent(ctx, agent.ToolEvent{Kind: agent.ToolEventResult, Tool: "search_web", Payload: "ok", DurationMs: 3})
		return textResult("found it"), nil
	}, noopTool("search_web"))

	var outer []string
	ctx := agent.WithToolEventHandler(context.Background(), func(event agent.ToolEvent) {
		outer = append(outer, event.Kind)
	})

	result, err := client.Run(ctx, "search go", agent.Deps{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Name != "search_web" {
		t.Fatalf("tool calls = %+v", result.ToolCalls)
	}
	if len(outer) != 2 {
		t.Fatalf("outer handler events = %v, want call and result", outer)
	}
}

func TestToolsForFiltersByAllowList(t *testing.T) {
	client := newTestClient(nil, noopTool("search_web"), noopTool("fetch_link"), noopTool("generate_image"))

	if got := client.toolsFor(agent.Deps{}); len(got) != 3 {
		t.Fatalf("nil allow-list tools = %d, want 3", len(got))
	}
	if got := client.toolsFor(agent.Deps{AllowedTools: []string{}}); len(got) != 0 {
		t.Fatalf("empty allow-list tools = %d, want 0", len(got))
	}

	got := client.toolsFor(agent.Deps{AllowedTools: []string{"fetch_link", "unknown"}})
	if len(got) != 1 || got[0].Info().Name != "fetch_link" {
		t.Fatalf("filtered tools = %d", len(got))
	}
}

func TestRunGeneratesFinalSummaryWhenToolLimitReached(t *testing.T) {
	calls := 0
	var secondCall core.AgentCall
	var secondOptions []core.AgentOption
	client := newTestClient(func(ctx context.Context, model core.LanguageModel, call core.AgentCall, options []core.AgentOption) (*core.AgentResult, error) {
		calls++
		if calls == 1 {
			toolCall := core.ToolCallContent{ToolCallID: "1", ToolName: "search_web", Input: `{}`}
			return &core.AgentResult{
				Steps: []core.StepResult{{
					Response: core.Response{FinishReason: core.FinishReasonToolCalls, Content: core.ResponseContent{toolCall}},
					Messages: []core.Message{{Role: core.MessageRoleAssistant, Content: []core.MessagePart{core.ToolCallPart{ToolCallID: "1", ToolName: "search_web", Input: `{}`}}}},
				}},
				Response: core.Response{FinishReason: core.FinishReasonToolCalls, Content: core.ResponseContent{toolCall}},
			}, nil
		}

		secondCall = call
		secondOptions = options
		return textResult("final summary"), nil
	}, noopTool("search_web"))

	result, err := client.Run(context.Background(), "look it up", agent.Deps{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if result.Output != "final summary" {
		t.Fatalf("output = %q, want final summary", result.Output)
	}
	if calls != 2 {
		t.Fatalf("generate calls = %d, want 2", calls)
	}
	if secondCall.Prompt != finalSummaryPrompt {
		t.Fatalf("summary prompt = %q", secondCall.Prompt)
	}
	if len(secondCall.Messages) != 2 {
		t.Fatalf("summary messages = %d, want user prompt and step message", len(secondCall.Messages))
	}
	if secondOptions != nil {
		t.Fatal("summary call should not offer tools")
	}
}

func TestBuildAgentOptionsIncludesToolsAndStepLimit(t *testing.T) {
	client := &Client{maxToolSteps: 3}
	if options := client.buildAgentOptions(nil); options != nil {
		t.Fatalf("options without tools = %d, want none", len(options))
	}

	options := client.buildAgentOptions([]core.AgentTool{noopTool("noop")})
	if len(options) != 2 {
		t.Fatalf("options length = %d, want 2", len(options))
	}

	runtime := core.NewAgent(&fakeLanguageModel{}, options...)
	if _, err := runtime.Generate(context.Background(), core.AgentCall{Prompt: "hello"}); err == nil {
		t.Fatal("expected generation error from fake model")
	}
}

func TestExtractText(t *testing.T) {
	content := core.ResponseContent{
		core.ReasoningContent{Text: "ignore me"},
		core.TextContent{Text: "  first  "},
		core.TextContent{Text: ""},
		core.TextContent{Text: "second"},
	}

	if got := extractText(content); got != "first\nsecond" {
		t.Fatalf("extractText() = %q", got)
	}
}
