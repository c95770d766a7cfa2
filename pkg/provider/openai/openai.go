package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"valorbot/pkg/agent"
	"valorbot/pkg/config"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

// Client answers through the Responses API. It offers no local tools, so
// Result.ToolCalls is always empty.
type Client struct {
	agent.PromptHolder

	client          osdk.Client
	model           string
	maxOutputTokens int64
	temperature     float64
	requestTimeout  time.Duration
}

func New(cfg *config.Config) (*Client, error) {
	providerCfg := cfg.Providers.OpenAI
	apiKey := config.APIKey(providerCfg.APIKeyEnv)
	if apiKey == "" {
		return nil, errors.New("providers.openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	model, err := normalizeModel(cfg.Agent.Model)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(providerCfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(providerCfg.Organization); organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if project := strings.TrimSpace(providerCfg.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}

	requestTimeout := time.Duration(providerCfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	return &Client{
		client:          osdk.NewClient(opts...),
		model:           model,
		maxOutputTokens: int64(cfg.Agent.MaxTokens),
		temperature:     cfg.Agent.Temperature,
		requestTimeout:  requestTimeout,
	}, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "health")
	startedAt := time.Now()
	log.Debug("provider request started")

	if _, err := c.client.Models.List(ctx); err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds())

	return nil
}

func (c *Client) Run(ctx context.Context, message string, deps agent.Deps) (agent.Result, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "run", "chat_id", deps.ChatID)
	startedAt := time.Now()

	params, err := c.buildParams(message, deps)
	if err != nil {
		return agent.Result{}, err
	}
	log.Debug("provider request started", "model", c.model, "prompt_length", len(message))

	response, err := c.client.Responses.New(ctx, params)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return agent.Result{}, fmt.Errorf("agent run failed: %w", err)
	}

	text := strings.TrimSpace(response.OutputText())
	if text == "" {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no output text")
		return agent.Result{}, agent.ErrEmptyOutput
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))

	return agent.Result{
		Output: text,
		Model:  c.model,
		Usage: agent.Usage{
			InputTokens:     response.Usage.InputTokens,
			OutputTokens:    response.Usage.OutputTokens,
			TotalTokens:     response.Usage.TotalTokens,
			ReasoningTokens: response.Usage.OutputTokensDetails.ReasoningTokens,
			CacheReadTokens: response.Usage.InputTokensDetails.CachedTokens,
		},
	}, nil
}

func (c *Client) buildParams(message string, deps agent.Deps) (responses.ResponseNewParams, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return responses.ResponseNewParams{}, errors.New("message is required")
	}

	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: osdk.String(message)},
	}
	if instructions := c.Effective(deps); instructions != "" {
		params.Instructions = osdk.String(instructions)
	}
	if c.maxOutputTokens > 0 {
		params.MaxOutputTokens = osdk.Int(c.maxOutputTokens)
	}
	if c.temperature > 0 {
		params.Temperature = osdk.Float(c.temperature)
	}

	return params, nil
}

func providerLogger() *slog.Logger {
	return slog.Default().With("component", "provider.openai")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func normalizeModel(model string) (string, error) {
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
		return "", fmt.Errorf("model provider %q is not supported by openai provider", providerID)
	}

	return modelID, nil
}
