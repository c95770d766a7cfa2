package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"valorbot/pkg/bus"
)

// Handler processes one inbound chat message end to end.
type Handler func(ctx context.Context, msg bus.InboundMessage) error

// ChatInfo is the subset of chat metadata the bot needs.
type ChatInfo struct {
	ID    int64
	Type  string
	Title string
}

// Transport is the outbound surface of a chat service.
type Transport interface {
	// SetReaction replaces the full reaction list on a message.
	SetReaction(ctx context.Context, chatID int64, messageID int64, symbols []string) error
	SendText(ctx context.Context, chatID int64, replyTo int64, text string) error
	SendImage(ctx context.Context, chatID int64, replyTo int64, path string, caption string) error
	ResolveChat(ctx context.Context, chatID int64) (ChatInfo, error)
}

// TypingIndicator shows a "typing" status until stop is called.
type TypingIndicator interface {
	StartTyping(ctx context.Context, chatID int64) (stop func())
}

// Adapter is a chat service connection that delivers inbound messages.
type Adapter interface {
	Transport
	Name() string
	Run(ctx context.Context, handler Handler) error
}

// RateLimitError signals that the chat service asked the caller to slow down.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// RetryAfter extracts the server-requested delay from a rate-limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		return 0, false
	}
	return rateErr.RetryAfter, true
}
