package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"valorbot/pkg/bus"
	"valorbot/pkg/channel"
)

func newTestModel(handle HandleFunc) *model {
	return newModel(context.Background(), handle, modeInteractive, "", Session{
		ChatID: 42,
		Sender: bus.Sender{ID: 7, Username: "alice"},
	}, RuntimeInfo{Bot: "valorbot"})
}

func TestHandleViewportMouseWheelUpDisablesFollowLog(t *testing.T) {
	t.Parallel()

	m := newTestModel(nil)
	m.viewport.Width = 40
	m.viewport.Height = 5
	m.viewport.SetContent(strings.Repeat("line\n", 40))
	m.viewport.GotoBottom()
	m.followLog = true

	previousOffset := m.viewport.YOffset
	handled := m.handleViewportMouse(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonWheelUp})
	if !handled {
		t.Fatal("expected wheel-up mouse event to be handled")
	}
	if m.followLog {
		t.Fatal("expected followLog to be disabled after wheel-up scroll")
	}
	if m.viewport.YOffset >= previousOffset {
		t.Fatalf("expected YOffset to decrease after wheel-up scroll, got %d want < %d", m.viewport.YOffset, previousOffset)
	}
}

func TestHandleViewportMouseIgnoresNonWheelEvents(t *testing.T) {
	t.Parallel()

	m := newTestModel(nil)
	if m.handleViewportMouse(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonLeft}) {
		t.Fatal("expected non-wheel mouse event to be ignored")
	}
}

func TestSubmitBuildsInboundMessages(t *testing.T) {
	t.Parallel()

	var got []bus.InboundMessage
	m := newTestModel(func(_ context.Context, msg bus.InboundMessage) error {
		got = append(got, msg)
		return nil
	})

	for _, text := range []string{"hello there", "/image what is this?"} {
		cmd := m.submit(text)
		if _, ok := cmd().(handledMsg); !ok {
			t.Fatalf("submit(%q) did not produce handledMsg", text)
		}
	}

	if len(got) != 2 {
		t.Fatalf("handled %d messages, want 2", len(got))
	}
	if got[0].MessageID != 1 || got[0].ChatType != bus.ChatTypePrivate || got[0].Text != "hello there" || got[0].Channel != "console" {
		t.Fatalf("first message = %+v", got[0])
	}
	if got[1].MessageID != 2 || !got[1].HasImage || got[1].Caption != "what is this?" || got[1].Text != "" {
		t.Fatalf("image message = %+v", got[1])
	}
	if !m.isLoading {
		t.Fatal("expected model to wait for the pipeline")
	}
}

func TestImageCommandNeedsWordBoundary(t *testing.T) {
	t.Parallel()

	m := newTestModel(nil)
	if msg := m.inbound("/imagery is cool"); msg.HasImage {
		t.Fatalf("unexpected image message: %+v", msg)
	}
}

func TestTransportMessagesUpdateTranscript(t *testing.T) {
	t.Parallel()

	m := newTestModel(nil)
	m.submit("draw a cat")

	m.Update(reactionMsg{messageID: 1, symbols: []string{"👀", "🎨"}})
	m.Update(typingMsg{active: true})
	if !m.isTyping {
		t.Fatal("expected typing indicator")
	}
	m.Update(imageMsg{replyTo: 1, path: "/tmp/cat.png", caption: "a cat"})
	m.Update(reactionMsg{messageID: 1, symbols: []string{"👀", "🎨", "✅"}})
	m.Update(reactionMsg{messageID: 99, symbols: []string{"👍"}})
	m.Update(handledMsg{id: 1})

	if m.isLoading || m.isTyping {
		t.Fatalf("loading=%v typing=%v after handled", m.isLoading, m.isTyping)
	}
	if len(m.messages) != 2 {
		t.Fatalf("messages = %+v", m.messages)
	}
	if got := strings.Join(m.messages[0].reactions, ""); got != "👀🎨✅" {
		t.Fatalf("reactions = %q", got)
	}
	if m.messages[1].role != roleImage || !strings.Contains(m.messages[1].content, "/tmp/cat.png") {
		t.Fatalf("image entry = %+v", m.messages[1])
	}
}

func TestHandledErrorIsShown(t *testing.T) {
	t.Parallel()

	m := newTestModel(nil)
	m.submit("hi")
	m.Update(handledMsg{id: 1, err: errors.New("send failed")})

	if m.lastErr != "send failed" {
		t.Fatalf("lastErr = %q", m.lastErr)
	}
	if last := m.messages[len(m.messages)-1]; last.role != roleError {
		t.Fatalf("last message = %+v", last)
	}
}

func TestOneShotQuitsAfterHandled(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, modeOneShot, "ping", Session{ChatID: 1}, RuntimeInfo{})
	m.Init()
	m.Update(replyMsg{replyTo: 1, text: "🏓 pong"})
	_, cmd := m.Update(handledMsg{id: 1})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
	if !strings.Contains(m.View(), "pong") {
		t.Fatal("one-shot view should include the reply")
	}
}

func TestTransportEmitsToAttachedProgram(t *testing.T) {
	t.Parallel()

	transport := NewTransport(channel.ChatInfo{ID: 42, Type: bus.ChatTypePrivate, Title: "console"})
	if err := transport.SetReaction(context.Background(), 42, 1, []string{"👀"}); err != nil {
		t.Fatalf("SetReaction without program: %v", err)
	}

	var got []tea.Msg
	transport.Attach(func(msg tea.Msg) { got = append(got, msg) })

	_ = transport.SetReaction(context.Background(), 42, 1, []string{"👀"})
	_ = transport.SendText(context.Background(), 42, 1, "hello")
	stop := transport.StartTyping(context.Background(), 42)
	stop()
	stop()

	if len(got) != 4 {
		t.Fatalf("got %d messages, want 4: %#v", len(got), got)
	}
	if reply, ok := got[1].(replyMsg); !ok || reply.text != "hello" || reply.replyTo != 1 {
		t.Fatalf("reply = %#v", got[1])
	}
	if typing, ok := got[3].(typingMsg); !ok || typing.active {
		t.Fatalf("typing stop = %#v", got[3])
	}

	info, err := transport.ResolveChat(context.Background(), 42)
	if err != nil || info.Title != "console" {
		t.Fatalf("ResolveChat = %+v, %v", info, err)
	}
}
