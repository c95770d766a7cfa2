package bus

import "time"

const (
	ChatTypePrivate    = "private"
	ChatTypeGroup      = "group"
	ChatTypeSupergroup = "supergroup"
	ChatTypeChannel    = "channel"
)

const (
	EntityMention     = "mention"
	EntityTextMention = "text_mention"
	EntityURL         = "url"
	EntityTextLink    = "text_link"
)

// Sender identifies the author of an inbound message.
type Sender struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	IsBot     bool   `json:"is_bot,omitempty"`
}

// Entity is a formatting span inside message text. Offset and Length are in
// UTF-16 code units as delivered by the chat service.
type Entity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	UserID int64  `json:"user_id,omitempty"`
	URL    string `json:"url,omitempty"`
}

// ReplyRef points at the message an inbound message replies to.
type ReplyRef struct {
	MessageID int64 `json:"message_id"`
	SenderID  int64 `json:"sender_id"`
}

// InboundMessage is a channel-neutral view of one received chat message.
type InboundMessage struct {
	Channel         string            `json:"channel"`
	ChatID          int64             `json:"chat_id"`
	ChatType        string            `json:"chat_type"`
	ChatTitle       string            `json:"chat_title,omitempty"`
	MessageID       int64             `json:"message_id"`
	Sender          Sender            `json:"sender"`
	Text            string            `json:"text,omitempty"`
	Caption         string            `json:"caption,omitempty"`
	Entities        []Entity          `json:"entities,omitempty"`
	CaptionEntities []Entity          `json:"caption_entities,omitempty"`
	HasImage        bool              `json:"has_image,omitempty"`
	ReplyTo         *ReplyRef         `json:"reply_to,omitempty"`
	ReceivedAt      time.Time         `json:"received_at"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// IsGroup reports whether the message came from a multi-user chat.
func (m InboundMessage) IsGroup() bool {
	return m.ChatType == ChatTypeGroup || m.ChatType == ChatTypeSupergroup
}

// IsPrivate reports whether the message came from a direct chat.
func (m InboundMessage) IsPrivate() bool {
	return m.ChatType == ChatTypePrivate
}
