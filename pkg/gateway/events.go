package gateway

import (
	"context"
	"log/slog"
	"time"

	"valorbot/pkg/bus"
)

const eventBuffer = 64

// observeEvents logs pipeline events until ctx ends or the bus closes.
func observeEvents(ctx context.Context, messageBus *bus.MessageBus, log *slog.Logger) {
	log = log.With("component", "bus.events")
	events, unsubscribe := messageBus.SubscribeEvents(ctx, eventBuffer)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			logEvent(log, event)
		}
	}
}

func logEvent(log *slog.Logger, event bus.Event) {
	attrs := []any{
		"event_type", event.Type,
		"request_id", event.RequestID,
		"channel", event.Channel,
		"chat_id", event.ChatID,
		"message_id", event.MessageID,
		"timestamp", event.At.UTC().Format(time.RFC3339Nano),
	}
	if len(event.Payload) > 0 {
		attrs = append(attrs, "payload", event.Payload)
	}

	switch {
	case event.Type == bus.EventMessageFailed:
		log.Error("Pipeline event", append(attrs, "error", event.Error)...)
	case event.Type.Terminal():
		log.Info("Pipeline event", attrs...)
	default:
		log.Debug("Pipeline event", attrs...)
	}
}
