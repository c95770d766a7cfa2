package chat

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"valorbot/pkg/channel"
)

type reactionMsg struct {
	messageID int64
	symbols   []string
}

type replyMsg struct {
	replyTo int64
	text    string
}

type imageMsg struct {
	replyTo int64
	path    string
	caption string
}

type typingMsg struct {
	active bool
}

// Transport delivers the router's output to the terminal UI instead of a
// chat service. Calls made before a program is attached are dropped.
type Transport struct {
	chat channel.ChatInfo

	mu   sync.RWMutex
	send func(tea.Msg)
}

func NewTransport(chat channel.ChatInfo) *Transport {
	return &Transport{chat: chat}
}

// Attach routes transport calls to program.
func (t *Transport) Attach(send func(tea.Msg)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.send = send
}

func (t *Transport) emit(msg tea.Msg) {
	t.mu.RLock()
	send := t.send
	t.mu.RUnlock()

	if send != nil {
		send(msg)
	}
}

func (t *Transport) SetReaction(_ context.Context, _ int64, messageID int64, symbols []string) error {
	t.emit(reactionMsg{messageID: messageID, symbols: append([]string(nil), symbols...)})
	return nil
}

func (t *Transport) SendText(_ context.Context, _ int64, replyTo int64, text string) error {
	t.emit(replyMsg{replyTo: replyTo, text: text})
	return nil
}

func (t *Transport) SendImage(_ context.Context, _ int64, replyTo int64, path string, caption string) error {
	t.emit(imageMsg{replyTo: replyTo, path: path, caption: caption})
	return nil
}

func (t *Transport) ResolveChat(context.Context, int64) (channel.ChatInfo, error) {
	return t.chat, nil
}

func (t *Transport) StartTyping(context.Context, int64) func() {
	t.emit(typingMsg{active: true})

	var once sync.Once
	return func() {
		once.Do(func() { t.emit(typingMsg{active: false}) })
	}
}
