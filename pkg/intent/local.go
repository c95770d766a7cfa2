package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultLocalURL   = "http://localhost:11434"
	DefaultLocalModel = "gemma2:2b"
	generatePath      = "/api/generate"
	maxErrorBodyBytes = 512
)

// StatusError is returned when the model endpoint answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// GenerateOptions are the sampling options sent with every local request.
type GenerateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

// LocalConfig configures the Ollama-compatible primary tier.
type LocalConfig struct {
	BaseURL        string
	Model          string
	RequestTimeout time.Duration
	Options        GenerateOptions
	HTTPClient     *http.Client
}

// LocalModel talks to an Ollama-compatible /api/generate endpoint.
type LocalModel struct {
	endpoint       string
	model          string
	options        GenerateOptions
	requestTimeout time.Duration
	httpClient     *http.Client
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options GenerateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// NewLocalModel applies defaults and builds a reusable client.
func NewLocalModel(cfg LocalConfig) *LocalModel {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultLocalURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultLocalModel
	}
	options := cfg.Options
	if options == (GenerateOptions{}) {
		options = GenerateOptions{Temperature: 0.1, TopP: 0.9, NumPredict: 200}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &LocalModel{
		endpoint:       baseURL + generatePath,
		model:          model,
		options:        options,
		requestTimeout: cfg.RequestTimeout,
		httpClient:     httpClient,
	}
}

func (m *LocalModel) Name() string {
	return "local:" + m.model
}

// Complete sends one non-streaming generate request.
func (m *LocalModel) Complete(ctx context.Context, prompt string) (string, error) {
	if m.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.requestTimeout)
		defer cancel()
	}
	log := slog.Default().With("component", "intent.local", "model", m.model)
	startedAt := time.Now()

	body, err := json.Marshal(generateRequest{
		Model:   m.model,
		Prompt:  prompt,
		Stream:  false,
		Options: m.options,
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		log.Debug("model request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", fmt.Errorf("call local model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if strings.TrimSpace(decoded.Response) == "" {
		return "", errors.New("local model returned an empty response")
	}
	log.Debug("model request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(decoded.Response))

	return decoded.Response, nil
}
