package bus

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultBufferSize = 100

// MessageBus queues inbound chat messages for workers and fans out pipeline events.
type MessageBus struct {
	inbound chan InboundMessage

	eventSubscribers      map[uint64]*subscriber
	nextEventSubscriberID uint64
	droppedEvents         atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return NewMessageBusWithBuffer(defaultBufferSize)
}

func NewMessageBusWithBuffer(size int) *MessageBus {
	if size <= 0 {
		size = defaultBufferSize
	}

	return &MessageBus{
		inbound:          make(chan InboundMessage, size),
		eventSubscribers: make(map[uint64]*subscriber),
		done:             make(chan struct{}),
	}
}

// PublishInbound enqueues msg, blocking while the queue is full.
func (mb *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case mb.inbound <- msg:
		return true
	}
}

// ConsumeInbound blocks until a message is available, ctx ends or the bus closes.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case <-mb.done:
		return InboundMessage{}, false
	case msg := <-mb.inbound:
		return msg, true
	}
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		for id, sub := range mb.eventSubscribers {
			close(sub.ch)
			delete(mb.eventSubscribers, id)
		}
		mb.mu.Unlock()
	})
}
