package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"valorbot/pkg/agent"
	"valorbot/pkg/bus"
	"valorbot/pkg/channel"
	"valorbot/pkg/config"
	"valorbot/pkg/router"
)

type sentText struct {
	chatID  int64
	replyTo int64
	text    string
}

// scriptedAdapter delivers a fixed list of messages and records everything
// the pipeline sends back.
type scriptedAdapter struct {
	name    string
	inbound []bus.InboundMessage
	runErr  error

	mu        sync.Mutex
	texts     []sentText
	reactions map[int64][]string
	resolved  []int64
}

func newScriptedAdapter(inbound ...bus.InboundMessage) *scriptedAdapter {
	return &scriptedAdapter{name: "telegram", inbound: inbound, reactions: make(map[int64][]string)}
}

func (a *scriptedAdapter) Name() string {
	return a.name
}

func (a *scriptedAdapter) Identity(context.Context) (int64, string, error) {
	return 99, "valorbot", nil
}

func (a *scriptedAdapter) Run(ctx context.Context, handler channel.Handler) error {
	for _, inbound := range a.inbound {
		if err := handler(ctx, inbound); err != nil {
			return err
		}
	}
	if a.runErr != nil {
		return a.runErr
	}

	<-ctx.Done()
	return nil
}

func (a *scriptedAdapter) SetReaction(_ context.Context, _ int64, messageID int64, symbols []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reactions[messageID] = append([]string(nil), symbols...)
	return nil
}

func (a *scriptedAdapter) SendText(_ context.Context, chatID int64, replyTo int64, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, sentText{chatID: chatID, replyTo: replyTo, text: text})
	return nil
}

func (a *scriptedAdapter) SendImage(context.Context, int64, int64, string, string) error {
	return nil
}

func (a *scriptedAdapter) ResolveChat(_ context.Context, chatID int64) (channel.ChatInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resolved = append(a.resolved, chatID)
	if chatID == -404 {
		return channel.ChatInfo{}, fmt.Errorf("chat not found")
	}
	return channel.ChatInfo{ID: chatID, Type: bus.ChatTypeSupergroup, Title: "Builders"}, nil
}

func (a *scriptedAdapter) sent() []sentText {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentText(nil), a.texts...)
}

func (a *scriptedAdapter) reactionsFor(messageID int64) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.reactions[messageID]...)
}

// echoAgent answers with the last line of the enhanced message.
type echoAgent struct {
	agent.PromptHolder

	mu        sync.Mutex
	healthErr error
	messages  []string
}

func (a *echoAgent) Run(_ context.Context, message string, _ agent.Deps) (agent.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, message)
	return agent.Result{Output: "ok:" + lastLine(message)}, nil
}

func (a *echoAgent) Health(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.healthErr
}

func (a *echoAgent) setHealthErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.healthErr = err
}

func lastLine(text string) string {
	for i := len(text) - 1; i >= 0; i-- {
		if text[i] == '\n' {
			return text[i+1:]
		}
	}
	return text
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Telegram: config.TelegramConfig{AllowDMs: true},
		Agent:    config.AgentConfig{Provider: "fantasy"},
		Tools:    config.ToolsConfig{ImageDir: t.TempDir()},
		History:  config.HistoryConfig{Backend: "memory", MemoryLimit: 50, MaxContextMessages: 10},
		Gateway:  config.GatewayConfig{Host: "127.0.0.1", Port: freeTCPPort(t), Workers: 2, QueueSize: 8},
	}
}

func newTestService(t *testing.T, cfg *config.Config, adapter *scriptedAdapter, ag agent.Agent) *Service {
	t.Helper()

	stack, err := NewStack(context.Background(), cfg, StackOptions{
		Transport: adapter,
		Bot:       identityOf(t, adapter),
		Agent:     ag,
	})
	require.NoError(t, err)

	return newService(cfg, adapter, stack, nil)
}

func identityOf(t *testing.T, adapter *scriptedAdapter) router.Identity {
	t.Helper()
	id, username, err := adapter.Identity(context.Background())
	require.NoError(t, err)
	return router.Identity{ID: id, Username: username}
}

func privateMessage(chatID int64, messageID int64, text string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:    "telegram",
		ChatID:     chatID,
		ChatType:   bus.ChatTypePrivate,
		MessageID:  messageID,
		Sender:     bus.Sender{ID: chatID, Username: "alice"},
		Text:       text,
		ReceivedAt: time.Now().UTC(),
	}
}

func waitHTTPStatus(t *testing.T, url string, timeout time.Duration) int {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		response, err := http.Get(url)
		if err == nil {
			statusCode := response.StatusCode
			require.NoError(t, response.Body.Close())
			return statusCode
		}

		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s: %v", url, err)
		}

		time.Sleep(25 * time.Millisecond)
	}
}

func freeTCPPort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return addr.Port
}
