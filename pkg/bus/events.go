package bus

import (
	"context"
	"sync"
	"time"
)

// EventType names one step of the message pipeline.
type EventType string

const (
	EventMessageReceived   EventType = "message_received"
	EventMessageRejected   EventType = "message_rejected"
	EventMessageClassified EventType = "message_classified"
	EventReactionUpdated   EventType = "reaction_updated"
	EventToolInvoked       EventType = "tool_invoked"
	EventMessageResponded  EventType = "message_responded"
	EventMessageFailed     EventType = "message_failed"
)

// Terminal reports whether the event ends the processing of a message.
func (t EventType) Terminal() bool {
	switch t {
	case EventMessageRejected, EventMessageResponded, EventMessageFailed:
		return true
	default:
		return false
	}
}

// Event is a pipeline observation. Publishing never blocks on subscribers.
type Event struct {
	Type      EventType         `json:"type"`
	At        time.Time         `json:"at"`
	Channel   string            `json:"channel,omitempty"`
	ChatID    int64             `json:"chat_id,omitempty"`
	MessageID int64             `json:"message_id,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
	Error     string            `json:"error,omitempty"`
}

type subscriber struct {
	ch    chan Event
	types map[EventType]struct{}
}

func (s *subscriber) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// PublishEvent delivers event to every interested subscriber with room in its
// buffer. Events for full subscribers are dropped and counted.
func (mb *MessageBus) PublishEvent(ctx context.Context, event Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	mb.mu.RLock()
	defer mb.mu.RUnlock()

	for _, sub := range mb.eventSubscribers {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			mb.droppedEvents.Add(1)
		}
	}

	return true
}

// DroppedEvents returns how many deliveries were skipped because a subscriber
// was full.
func (mb *MessageBus) DroppedEvents() uint64 {
	return mb.droppedEvents.Load()
}

// SubscribeEvents returns a channel of events of the given types, or of every
// type when none are given. The channel is closed when ctx ends, the bus
// closes or unsubscribe is called.
func (mb *MessageBus) SubscribeEvents(ctx context.Context, buffer int, types ...EventType) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	sub := &subscriber{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	mb.mu.Lock()
	select {
	case <-mb.done:
		mb.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	default:
	}

	id := mb.nextEventSubscriberID
	mb.nextEventSubscriberID++
	mb.eventSubscribers[id] = sub
	mb.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			mb.mu.Lock()
			defer mb.mu.Unlock()
			if current, ok := mb.eventSubscribers[id]; ok {
				delete(mb.eventSubscribers, id)
				close(current.ch)
			}
		})
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-mb.done:
		}
		unsubscribe()
	}()

	return sub.ch, unsubscribe
}
