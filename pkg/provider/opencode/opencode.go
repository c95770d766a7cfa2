package opencode

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	sdk "github.com/sst/opencode-sdk-go"
	"github.com/sst/opencode-sdk-go/option"

	"valorbot/pkg/agent"
	"valorbot/pkg/config"
)

const maxChatSessions = 256

// Client talks to an opencode server. Each chat keeps one server-side
// session so the remote agent sees its own conversation.
type Client struct {
	agent.PromptHolder

	client         *sdk.Client
	model          string
	agentName      string
	requestTimeout time.Duration

	mu            sync.Mutex
	sessionByChat *lru.Cache[int64, string]
}

type healthResponse struct {
	Healthy bool   `json:"healthy"`
	Version string `json:"version"`
}

func New(cfg *config.Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.Providers.OpenCode.BaseURL)
	if baseURL == "" {
		return nil, errors.New("providers.opencode.base_url is required")
	}

	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if authHeader, ok := buildBasicAuthHeader(cfg.Providers.OpenCode); ok {
		opts = append(opts, option.WithHeader("Authorization", authHeader))
	}

	sessions, err := lru.New[int64, string](maxChatSessions)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}

	return &Client{
		client:         sdk.NewClient(opts...),
		model:          strings.TrimSpace(cfg.Agent.Model),
		agentName:      strings.TrimSpace(cfg.Providers.OpenCode.Agent),
		requestTimeout: time.Duration(cfg.Providers.OpenCode.RequestTimeoutSeconds) * time.Second,
		sessionByChat:  sessions,
	}, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "health")
	startedAt := time.Now()
	log.Debug("provider request started")

	var response healthResponse
	if err := c.client.Get(ctx, "/global/health", nil, &response); err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("health check failed: %w", err)
	}
	if !response.Healthy {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "server unhealthy")
		return errors.New("opencode server reported unhealthy status")
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "version", response.Version)
	return nil
}

func (c *Client) Run(ctx context.Context, message string, deps agent.Deps) (agent.Result, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "run", "chat_id", deps.ChatID)
	startedAt := time.Now()

	message = strings.TrimSpace(message)
	if message == "" {
		return agent.Result{}, errors.New("message is required")
	}

	sessionID, err := c.sessionFor(ctx, deps.ChatID)
	if err != nil {
		return agent.Result{}, err
	}
	log.Debug("provider request started", "session_id", sessionID, "model", c.model, "prompt_length", len(message))

	response, err := c.client.Session.Prompt(ctx, sessionID, c.buildParams(message, deps))
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return agent.Result{}, fmt.Errorf("agent run failed: %w", err)
	}

	text := extractText(response.Parts)
	if text == "" {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no text parts")
		return agent.Result{}, agent.ErrEmptyOutput
	}
	log.Debug("provider request completed",
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"response_length", len(text),
		"parts_count", len(response.Parts),
	)

	return agent.Result{
		Output:    text,
		ToolCalls: extractToolCalls(response.Parts),
		Model:     strings.TrimSpace(response.Info.ModelID),
	}, nil
}

func (c *Client) buildParams(message string, deps agent.Deps) sdk.SessionPromptParams {
	params := sdk.SessionPromptParams{
		Parts: sdk.F([]sdk.SessionPromptParamsPartUnion{
			sdk.TextPartInputParam{
				Type: sdk.F(sdk.TextPartInputTypeText),
				Text: sdk.F(message),
			},
		}),
	}
	if c.agentName != "" {
		params.Agent = sdk.F(c.agentName)
	}
	if system := c.Effective(deps); system != "" {
		params.System = sdk.F(system)
	}
	if providerID, modelID, ok := parseModelRef(c.model); ok {
		params.Model = sdk.F(sdk.SessionPromptParamsModel{
			ProviderID: sdk.F(providerID),
			ModelID:    sdk.F(modelID),
		})
	}

	return params
}

func (c *Client) sessionFor(ctx context.Context, chatID int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sessionID, ok := c.sessionByChat.Get(chatID); ok {
		return sessionID, nil
	}

	session, err := c.client.Session.New(ctx, sdk.SessionNewParams{
		Title: sdk.F("chat " + strconv.FormatInt(chatID, 10)),
	})
	if err != nil {
		return "", fmt.Errorf("create session failed: %w", err)
	}
	if session == nil || session.ID == "" {
		return "", errors.New("create session returned empty session id")
	}

	c.sessionByChat.Add(chatID, session.ID)
	return session.ID, nil
}

func providerLogger() *slog.Logger {
	return slog.Default().With("component", "provider.opencode")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

func buildBasicAuthHeader(cfg config.OpenCodeProviderConfig) (string, bool) {
	passwordEnv := strings.TrimSpace(cfg.PasswordEnv)
	if passwordEnv == "" {
		return "", false
	}

	password := strings.TrimSpace(os.Getenv(passwordEnv))
	if password == "" {
		return "", false
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "opencode"
	}

	token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return "Basic " + token, true
}

func parseModelRef(input string) (providerID string, modelID string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(input), "/", 2)
	if len(parts) != 2 {
		return "", "", false
	}

	providerID = strings.TrimSpace(parts[0])
	modelID = strings.TrimSpace(parts[1])
	if providerID == "" || modelID == "" {
		return "", "", false
	}

	return providerID, modelID, true
}

func extractText(parts []sdk.Part) string {
	var lines []string
	for _, part := range parts {
		if part.Type == sdk.PartTypeText {
			text := strings.TrimSpace(part.Text)
			if text != "" {
				lines = append(lines, text)
			}
		}
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractToolCalls(parts []sdk.Part) []agent.ToolCall {
	var calls []agent.ToolCall
	for _, part := range parts {
		if part.Type != sdk.PartTypeTool {
			continue
		}
		if name := strings.TrimSpace(part.Tool); name != "" {
			calls = append(calls, agent.ToolCall{Name: name})
		}
	}
	return calls
}
