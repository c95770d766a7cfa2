package history

import (
	"context"
	"strings"
	"sync"
	"time"
)

const defaultMemoryLimit = 500

// MemoryStore keeps a bounded number of turns per chat in process memory.
type MemoryStore struct {
	limit int
	now   func() time.Time

	mu    sync.RWMutex
	chats map[int64][]Entry
}

// NewMemoryStore returns a store keeping at most limit turns per chat.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = defaultMemoryLimit
	}

	return &MemoryStore{
		limit: limit,
		now:   time.Now,
		chats: make(map[int64][]Entry),
	}
}

func (m *MemoryStore) AddMessage(_ context.Context, chatID int64, role string, content string, messageID int64, replyTo int64) error {
	role, content, ok := normalizeEntry(role, content)
	if !ok {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries := append(m.chats[chatID], Entry{
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		MessageID: messageID,
		ReplyTo:   replyTo,
		At:        m.now().UTC(),
	})
	if over := len(entries) - m.limit; over > 0 {
		entries = append([]Entry(nil), entries[over:]...)
	}
	m.chats[chatID] = entries

	return nil
}

func (m *MemoryStore) GetContext(_ context.Context, chatID int64, q Query) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return selectContext(m.chats[chatID], q, m.now()), nil
}

// Search returns the newest entries containing text, newest first.
func (m *MemoryStore) Search(_ context.Context, chatID int64, text string, limit int) ([]Entry, error) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entry
	entries := m.chats[chatID]
	for i := len(entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if strings.Contains(strings.ToLower(entries[i].Content), needle) {
			out = append(out, entries[i])
		}
	}
	return out, nil
}

// Len returns the number of stored turns for a chat.
func (m *MemoryStore) Len(chatID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.chats[chatID])
}

func (m *MemoryStore) Close() {}
