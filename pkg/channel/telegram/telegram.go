package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	ta "github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"

	"valorbot/pkg/bus"
	"valorbot/pkg/channel"
	"valorbot/pkg/config"
	"valorbot/pkg/logger"
)

const channelName = "telegram"
const previewWidth = 80
const typingRefreshInterval = 4 * time.Second
const defaultPollTimeout = 30

const (
	errorCodeTooManyRequests = 429
	reactionsTooMany         = "REACTIONS_TOO_MANY"
)

// Adapter bridges Telegram long polling and the Bot API into the chat
// transport used by the router.
type Adapter struct {
	cfg config.TelegramConfig
	bot *telego.Bot
	log *slog.Logger

	mu sync.Mutex
	me *telego.User
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	return &Adapter{
		cfg: cfg,
		bot: bot,
		log: log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in bus metadata and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Identity returns the bot account from getMe. The first successful answer
// is cached.
func (a *Adapter) Identity(ctx context.Context) (int64, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.me == nil {
		me, err := a.bot.GetMe(ctx)
		if err != nil {
			return 0, "", fmt.Errorf("telegram getMe: %w", mapError(err))
		}
		a.me = me
	}

	return a.me.ID, a.me.Username, nil
}

// Run starts Telegram long polling and hands each message to handler.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	botID, username, err := a.Identity(ctx)
	if err != nil {
		return err
	}

	timeout := a.cfg.PollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}

	updates, err := a.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        timeout,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started", "bot_id", botID, "bot_username", username)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			inbound, ok := inboundFromMessage(update.Message, update.UpdateID)
			if !ok {
				continue
			}

			a.log.Debug("Received message",
				"chat_id", inbound.ChatID,
				"message_id", inbound.MessageID,
				"chat_type", inbound.ChatType,
				"sender_id", inbound.Sender.ID,
				"content", logger.Preview(firstNonEmpty(inbound.Text, inbound.Caption), previewWidth),
			)

			if err := handler(ctx, inbound); err != nil {
				a.log.Error("Failed to process inbound message", "chat_id", inbound.ChatID, "error", err)
			}
		}
	}
}

// SetReaction replaces the reactions on a message. When Telegram limits the
// bot to fewer reactions, only the newest symbol is kept.
func (a *Adapter) SetReaction(ctx context.Context, chatID int64, messageID int64, symbols []string) error {
	err := a.setReaction(ctx, chatID, messageID, symbols)
	if err != nil && len(symbols) > 1 && isTooManyReactions(err) {
		err = a.setReaction(ctx, chatID, messageID, symbols[len(symbols)-1:])
	}
	return mapError(err)
}

func (a *Adapter) setReaction(ctx context.Context, chatID int64, messageID int64, symbols []string) error {
	reactions := make([]telego.ReactionType, 0, len(symbols))
	for _, symbol := range symbols {
		reactions = append(reactions, &telego.ReactionTypeEmoji{Type: telego.ReactionEmoji, Emoji: symbol})
	}

	return a.bot.SetMessageReaction(ctx, &telego.SetMessageReactionParams{
		ChatID:    tu.ID(chatID),
		MessageID: int(messageID),
		Reaction:  reactions,
	})
}

// SendText sends a plain text message, replying to replyTo when non-zero.
func (a *Adapter) SendText(ctx context.Context, chatID int64, replyTo int64, text string) error {
	params := tu.Message(tu.ID(chatID), text)
	if replyTo > 0 {
		params = params.WithReplyParameters(replyParameters(replyTo))
	}

	a.log.Debug("Sending message", "chat_id", chatID, "reply_to", replyTo, "content", logger.Preview(text, previewWidth))
	if _, err := a.bot.SendMessage(ctx, params); err != nil {
		return mapError(err)
	}
	return nil
}

// SendImage uploads a local image file as a photo.
func (a *Adapter) SendImage(ctx context.Context, chatID int64, replyTo int64, path string, caption string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	params := tu.Photo(tu.ID(chatID), tu.File(file))
	if caption = strings.TrimSpace(caption); caption != "" {
		params = params.WithCaption(caption)
	}
	if replyTo > 0 {
		params = params.WithReplyParameters(replyParameters(replyTo))
	}

	a.log.Debug("Sending image", "chat_id", chatID, "reply_to", replyTo, "path", path)
	if _, err := a.bot.SendPhoto(ctx, params); err != nil {
		return mapError(err)
	}
	return nil
}

// ResolveChat looks up chat metadata with getChat.
func (a *Adapter) ResolveChat(ctx context.Context, chatID int64) (channel.ChatInfo, error) {
	chat, err := a.bot.GetChat(ctx, &telego.GetChatParams{ChatID: tu.ID(chatID)})
	if err != nil {
		return channel.ChatInfo{}, mapError(err)
	}

	return channel.ChatInfo{ID: chat.ID, Type: chat.Type, Title: chatTitle(chat.Title, chat.Username, chat.FirstName)}, nil
}

// StartTyping sends a typing action and refreshes it until stop is called.
func (a *Adapter) StartTyping(ctx context.Context, chatID int64) func() {
	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := a.bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}

// inboundFromMessage converts a Telegram message. Messages without a sender
// or without any text, caption or photo are skipped.
func inboundFromMessage(message *telego.Message, updateID int) (bus.InboundMessage, bool) {
	if message == nil || message.From == nil {
		return bus.InboundMessage{}, false
	}

	hasImage := len(message.Photo) > 0
	if strings.TrimSpace(message.Text) == "" && strings.TrimSpace(message.Caption) == "" && !hasImage {
		return bus.InboundMessage{}, false
	}

	inbound := bus.InboundMessage{
		Channel:   channelName,
		ChatID:    message.Chat.ID,
		ChatType:  message.Chat.Type,
		ChatTitle: message.Chat.Title,
		MessageID: int64(message.MessageID),
		Sender: bus.Sender{
			ID:        message.From.ID,
			Username:  message.From.Username,
			FirstName: message.From.FirstName,
			IsBot:     message.From.IsBot,
		},
		Text:            message.Text,
		Caption:         message.Caption,
		Entities:        convertEntities(message.Entities),
		CaptionEntities: convertEntities(message.CaptionEntities),
		HasImage:        hasImage,
		ReceivedAt:      time.Unix(message.Date, 0).UTC(),
		Metadata: map[string]string{
			"update_id": strconv.Itoa(updateID),
		},
	}

	if reply := message.ReplyToMessage; reply != nil {
		ref := &bus.ReplyRef{MessageID: int64(reply.MessageID)}
		if reply.From != nil {
			ref.SenderID = reply.From.ID
		}
		inbound.ReplyTo = ref
	}

	return inbound, true
}

func convertEntities(entities []telego.MessageEntity) []bus.Entity {
	if len(entities) == 0 {
		return nil
	}

	out := make([]bus.Entity, 0, len(entities))
	for _, entity := range entities {
		converted := bus.Entity{
			Type:   entity.Type,
			Offset: entity.Offset,
			Length: entity.Length,
			URL:    entity.URL,
		}
		if entity.User != nil {
			converted.UserID = entity.User.ID
		}
		out = append(out, converted)
	}
	return out
}

func replyParameters(messageID int64) *telego.ReplyParameters {
	return &telego.ReplyParameters{MessageID: int(messageID), AllowSendingWithoutReply: true}
}

// mapError turns Telegram's 429 answers into channel.RateLimitError.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *ta.Error
	if !errors.As(err, &apiErr) || apiErr.ErrorCode != errorCodeTooManyRequests {
		return err
	}

	retryAfter := time.Second
	if apiErr.Parameters != nil && apiErr.Parameters.RetryAfter > 0 {
		retryAfter = time.Duration(apiErr.Parameters.RetryAfter) * time.Second
	}
	return &channel.RateLimitError{RetryAfter: retryAfter, Err: err}
}

func isTooManyReactions(err error) bool {
	var apiErr *ta.Error
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Description, reactionsTooMany)
}

func chatTitle(values ...string) string {
	return firstNonEmpty(values...)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
