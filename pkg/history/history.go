// Package history stores per-chat conversation turns.
package history

import (
	"context"
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one stored conversation turn.
type Entry struct {
	ChatID    int64     `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	MessageID int64     `json:"message_id,omitempty"`
	ReplyTo   int64     `json:"reply_to,omitempty"`
	At        time.Time `json:"at"`
}

// Query bounds the excerpt returned by GetContext. The last AlwaysIncludeLast
// entries are returned even when older than MaxAge.
type Query struct {
	MaxMessages       int
	MaxAge            time.Duration
	AlwaysIncludeLast int
}

// DefaultQuery matches the excerpt size used for prompts.
var DefaultQuery = Query{MaxMessages: 10, MaxAge: 24 * time.Hour, AlwaysIncludeLast: 3}

// Store is the chat-history collaborator.
type Store interface {
	AddMessage(ctx context.Context, chatID int64, role string, content string, messageID int64, replyTo int64) error
	GetContext(ctx context.Context, chatID int64, q Query) ([]Entry, error)
	Search(ctx context.Context, chatID int64, text string, limit int) ([]Entry, error)
	Close()
}

// selectContext picks the excerpt from entries ordered oldest first.
func selectContext(entries []Entry, q Query, now time.Time) []Entry {
	if len(entries) == 0 {
		return nil
	}

	keep := make([]bool, len(entries))

	recent := 0
	for i := len(entries) - 1; i >= 0 && recent < q.MaxMessages; i-- {
		if q.MaxAge > 0 && now.Sub(entries[i].At) > q.MaxAge {
			continue
		}
		keep[i] = true
		recent++
	}
	for i := len(entries) - 1; i >= 0 && i >= len(entries)-q.AlwaysIncludeLast; i-- {
		keep[i] = true
	}

	var out []Entry
	for i, entry := range entries {
		if keep[i] {
			out = append(out, entry)
		}
	}
	return out
}

func normalizeEntry(role string, content string) (string, string, bool) {
	role = strings.TrimSpace(role)
	content = strings.TrimSpace(content)
	return role, content, role != "" && content != ""
}

// window is the number of trailing rows that can contribute to an excerpt.
func (q Query) window() int {
	return max(q.MaxMessages, q.AlwaysIncludeLast)
}
