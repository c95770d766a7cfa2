package router

import (
	"strings"
	"unicode/utf8"

	"valorbot/pkg/bus"
)

// Identity is the bot account as reported by the chat service.
type Identity struct {
	ID       int64
	Username string
}

func (i Identity) handle() string {
	username := strings.TrimPrefix(strings.TrimSpace(i.Username), "@")
	if username == "" {
		return ""
	}
	return "@" + username
}

// normalize picks the message text and reports whether the bot is addressed.
// Direct chats always address the bot. In groups a mention or a reply to the
// bot is required, and the mention is stripped from the returned text.
func normalize(msg bus.InboundMessage, bot Identity) (string, bool) {
	text, entities := msg.Text, msg.Entities
	if strings.TrimSpace(text) == "" {
		text, entities = msg.Caption, msg.CaptionEntities
	}

	handle := bot.handle()
	addressed := msg.IsPrivate()

	if start, end, ok := firstEntityMention(text, entities, bot, handle); ok {
		text = text[:start] + text[end:]
		addressed = true
	} else if handle != "" && containsFold(text, handle) {
		text = removeAllFold(text, handle)
		addressed = true
	}

	if msg.ReplyTo != nil && bot.ID != 0 && msg.ReplyTo.SenderID == bot.ID {
		addressed = true
	}

	return cleanText(text), addressed
}

// firstEntityMention returns the byte span of the first entity naming the bot.
func firstEntityMention(text string, entities []bus.Entity, bot Identity, handle string) (int, int, bool) {
	for _, entity := range entities {
		start, end, ok := utf16Span(text, entity.Offset, entity.Length)
		if !ok {
			continue
		}

		switch entity.Type {
		case bus.EntityMention:
			if bot.ID != 0 && entity.UserID == bot.ID {
				return start, end, true
			}
			if handle != "" && strings.EqualFold(text[start:end], handle) {
				return start, end, true
			}
		case bus.EntityTextMention:
			if bot.ID != 0 && entity.UserID == bot.ID {
				return start, end, true
			}
		}
	}
	return 0, 0, false
}

// utf16Span converts an offset/length pair in UTF-16 code units into byte
// indices of text.
func utf16Span(text string, offset int, length int) (int, int, bool) {
	if offset < 0 || length <= 0 {
		return 0, 0, false
	}

	start, end := -1, -1
	units := 0
	for i, r := range text {
		if units == offset {
			start = i
		}
		if units == offset+length {
			end = i
			break
		}
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
	}
	if start < 0 && units == offset {
		start = len(text)
	}
	if end < 0 && units == offset+length {
		end = len(text)
	}
	if start < 0 || end < start {
		return 0, 0, false
	}
	return start, end, true
}

func containsFold(s string, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func removeAllFold(s string, substr string) string {
	if substr == "" {
		return s
	}

	lower := strings.ToLower(s)
	needle := strings.ToLower(substr)
	// ToLower can change byte lengths for some scripts; fall back to an
	// exact-case removal when the offsets would not line up.
	if len(lower) != len(s) {
		return strings.ReplaceAll(s, substr, "")
	}

	var b strings.Builder
	for {
		idx := strings.Index(lower, needle)
		if idx < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:idx])
		s = s[idx+len(needle):]
		lower = lower[idx+len(needle):]
	}
}

func cleanText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, ",:; ")
	s = strings.ReplaceAll(s, "  ", " ")
	return strings.TrimSpace(s)
}

// hasLinks is the substring scan used for the classify context.
func hasLinks(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "http://") ||
		strings.Contains(lower, "https://") ||
		strings.Contains(lower, "www.")
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
