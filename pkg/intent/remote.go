package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const DefaultRemoteModel = "gpt-4o-mini"

// RemoteConfig configures the OpenAI-compatible secondary tier.
type RemoteConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	RequestTimeout time.Duration
}

// RemoteModel classifies through a chat-completion endpoint.
type RemoteModel struct {
	client osdk.Client
	model  string
}

// NewRemoteModel returns nil when no API key is configured; a nil tier is skipped.
func NewRemoteModel(cfg RemoteConfig) *RemoteModel {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeout))
	}

	model := strings.TrimPrefix(strings.TrimSpace(cfg.Model), "openai/")
	if model == "" {
		model = DefaultRemoteModel
	}

	return &RemoteModel{
		client: osdk.NewClient(opts...),
		model:  model,
	}
}

func (m *RemoteModel) Name() string {
	return "openai:" + m.model
}

// Complete sends the classification prompt as a system + user exchange.
func (m *RemoteModel) Complete(ctx context.Context, prompt string) (string, error) {
	log := slog.Default().With("component", "intent.remote", "model", m.model)
	startedAt := time.Now()

	completion, err := m.client.Chat.Completions.New(ctx, osdk.ChatCompletionNewParams{
		Model: osdk.ChatModel(m.model),
		Messages: []osdk.ChatCompletionMessageParamUnion{
			osdk.SystemMessage(systemInstruction),
			osdk.UserMessage(prompt),
		},
		Temperature:         osdk.Float(0.1),
		MaxCompletionTokens: osdk.Int(200),
	})
	if err != nil {
		log.Debug("model request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("chat completion returned empty content")
	}
	log.Debug("model request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))

	return text, nil
}
