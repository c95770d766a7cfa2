package fantasy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	core "charm.land/fantasy"
	provideropenai "charm.land/fantasy/providers/openai"

	"valorbot/pkg/agent"
	"valorbot/pkg/config"
)

const (
	defaultMaxToolSteps = 8
	finalSummaryPrompt  = "You have reached the tool call limit for this message. Using only the tool results above, write the final answer for the user now without calling more tools."
)

type languageModelProvider interface {
	LanguageModel(ctx context.Context, modelID string) (core.LanguageModel, error)
}

type generateFunc func(context.Context, core.LanguageModel, core.AgentCall, []core.AgentOption) (*core.AgentResult, error)

// Client runs each message as an independent fantasy agent call. The base
// system prompt is shared; per-call overrides travel in agent.Deps.
type Client struct {
	agent.PromptHolder

	provider        languageModelProvider
	requestTimeout  time.Duration
	modelID         string
	maxOutputTokens *int64
	temperature     *float64
	tools           []core.AgentTool
	maxToolSteps    int
	generate        generateFunc
	log             *slog.Logger
}

// New builds a fantasy-backed agent over the OpenAI provider with tools.
func New(cfg *config.Config, tools []core.AgentTool) (*Client, error) {
	apiKey := config.APIKey(cfg.Providers.OpenAI.APIKeyEnv)
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY must be set")
	}

	modelID, err := normalizeOpenAIModel(cfg.Agent.Model)
	if err != nil {
		return nil, err
	}

	providerOptions := []provideropenai.Option{provideropenai.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.Providers.OpenAI.BaseURL); baseURL != "" {
		providerOptions = append(providerOptions, provideropenai.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(cfg.Providers.OpenAI.Organization); organization != "" {
		providerOptions = append(providerOptions, provideropenai.WithOrganization(organization))
	}
	if project := strings.TrimSpace(cfg.Providers.OpenAI.Project); project != "" {
		providerOptions = append(providerOptions, provideropenai.WithProject(project))
	}

	fantasyProvider, err := provideropenai.New(providerOptions...)
	if err != nil {
		return nil, fmt.Errorf("initialize fantasy openai provider: %w", err)
	}

	client := &Client{
		provider:       fantasyProvider,
		requestTimeout: time.Duration(cfg.Providers.OpenAI.RequestTimeoutSeconds) * time.Second,
		modelID:        modelID,
		tools:          tools,
		maxToolSteps:   cfg.Agent.MaxToolIterations,
		generate:       generateWithFantasyAgent,
		log:            slog.Default().With("component", "provider.fantasy"),
	}
	if client.maxToolSteps <= 0 {
		client.maxToolSteps = defaultMaxToolSteps
	}
	if cfg.Agent.MaxTokens > 0 {
		maxTokens := int64(cfg.Agent.MaxTokens)
		client.maxOutputTokens = &maxTokens
	}
	if cfg.Agent.Temperature > 0 {
		temp := cfg.Agent.Temperature
		client.temperature = &temp
	}

	return client, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if _, err := c.provider.LanguageModel(ctx, c.modelID); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	return nil
}

// Run answers message with the tools deps allows. Tool invocations are
// collected from the events the tools emit.
func (c *Client) Run(ctx context.Context, message string, deps agent.Deps) (agent.Result, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	message = strings.TrimSpace(message)
	if message == "" {
		return agent.Result{}, errors.New("message is required")
	}

	languageModel, err := c.provider.LanguageModel(ctx, c.modelID)
	if err != nil {
		return agent.Result{}, fmt.Errorf("resolve language model: %w", err)
	}

	var messages []core.Message
	if systemPrompt := c.Effective(deps); systemPrompt != "" {
		messages = append(messages, core.Message{
			Role:    core.MessageRoleSystem,
			Content: []core.MessagePart{core.TextPart{Text: systemPrompt}},
		})
	}

	call := core.AgentCall{Prompt: message, Messages: messages}
	if c.maxOutputTokens != nil {
		call.MaxOutputTokens = c.maxOutputTokens
	}
	if c.temperature != nil {
		call.Temperature = c.temperature
	}

	tools := c.toolsFor(deps)
	recorder := &agent.ToolRecorder{}
	ctx = recorder.Attach(agent.WithChatID(ctx, deps.ChatID))

	generate := c.generate
	if generate == nil {
		generate = generateWithFantasyAgent
	}

	startedAt := time.Now()
	result, err := generate(ctx, languageModel, call, c.buildAgentOptions(tools))
	if err != nil {
		return agent.Result{}, fmt.Errorf("agent run failed: %w", err)
	}

	response := extractText(result.Response.Content)
	if response == "" && len(tools) > 0 && result.Response.FinishReason == core.FinishReasonToolCalls {
		c.logger().Debug("Tool step limit reached, requesting final summary", "chat_id", deps.ChatID, "steps", len(result.Steps))
		response, err = finalSummary(ctx, generate, languageModel, call, result)
		if err != nil {
			return agent.Result{}, err
		}
	}
	if response == "" {
		return agent.Result{}, agent.ErrEmptyOutput
	}

	calls := recorder.Calls()
	c.logger().Debug("Agent run completed",
		"chat_id", deps.ChatID,
		"model", c.modelID,
		"tools_offered", len(tools),
		"tool_calls", len(calls),
		"input_tokens", result.TotalUsage.InputTokens,
		"output_tokens", result.TotalUsage.OutputTokens,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)

	return agent.Result{
		Output:    response,
		ToolCalls: calls,
		Model:     c.modelID,
		Usage: agent.Usage{
			InputTokens:         result.TotalUsage.InputTokens,
			OutputTokens:        result.TotalUsage.OutputTokens,
			TotalTokens:         result.TotalUsage.TotalTokens,
			ReasoningTokens:     result.TotalUsage.ReasoningTokens,
			CacheCreationTokens: result.TotalUsage.CacheCreationTokens,
			CacheReadTokens:     result.TotalUsage.CacheReadTokens,
		},
	}, nil
}

func finalSummary(ctx context.Context, generate generateFunc, model core.LanguageModel, call core.AgentCall, previous *core.AgentResult) (string, error) {
	messages := append([]core.Message{}, call.Messages...)
	messages = append(messages, core.NewUserMessage(call.Prompt))
	for _, step := range previous.Steps {
		messages = append(messages, step.Messages...)
	}

	summaryCall := core.AgentCall{
		Prompt:          finalSummaryPrompt,
		Messages:        messages,
		MaxOutputTokens: call.MaxOutputTokens,
		Temperature:     call.Temperature,
	}

	result, err := generate(ctx, model, summaryCall, nil)
	if err != nil {
		return "", fmt.Errorf("final summary failed: %w", err)
	}

	return extractText(result.Response.Content), nil
}

func (c *Client) toolsFor(deps agent.Deps) []core.AgentTool {
	if deps.AllowedTools == nil {
		return c.tools
	}

	filtered := make([]core.AgentTool, 0, len(deps.AllowedTools))
	for _, tool := range c.tools {
		if deps.ToolAllowed(tool.Info().Name) {
			filtered = append(filtered, tool)
		}
	}
	return filtered
}

func (c *Client) buildAgentOptions(tools []core.AgentTool) []core.AgentOption {
	if len(tools) == 0 {
		return nil
	}

	steps := c.maxToolSteps
	if steps <= 0 {
		steps = defaultMaxToolSteps
	}

	return []core.AgentOption{
		core.WithTools(tools...),
		core.WithStopConditions(core.StepCountIs(steps)),
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func normalizeOpenAIModel(model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New("model is required")
	}

	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 {
		return model, nil
	}

	providerID := strings.TrimSpace(parts[0])
	modelID := strings.TrimSpace(parts[1])
	if providerID == "" || modelID == "" {
		return "", errors.New("model is invalid")
	}
	if providerID != "openai" {
		return "", fmt.Errorf("model provider %q is not supported by fantasy openai provider", providerID)
	}

	return modelID, nil
}

func extractText(content core.ResponseContent) string {
	lines := make([]string, 0)
	for _, part := range content {
		if part.GetType() != core.ContentTypeText {
			continue
		}

		textPart, ok := core.AsContentType[core.TextContent](part)
		if !ok {
			continue
		}

		if line := strings.TrimSpace(textPart.Text); line != "" {
			lines = append(lines, line)
		}
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func generateWithFantasyAgent(ctx context.Context, model core.LanguageModel, call core.AgentCall, options []core.AgentOption) (*core.AgentResult, error) {
	runtime := core.NewAgent(model, options...)
	return runtime.Generate(ctx, call)
}

func (c *Client) logger() *slog.Logger {
	if c.log == nil {
		return slog.Default().With("component", "provider.fantasy")
	}
	return c.log
}
