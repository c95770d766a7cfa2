package gateway

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"valorbot/pkg/bus"
	"valorbot/pkg/channel"
)

const (
	defaultWorkers = 4
	shardBuffer    = 16
)

// dispatcher drains the inbound queue into a fixed pool of workers. Each chat
// is pinned to one worker, so its messages are handled one at a time and in
// arrival order.
type dispatcher struct {
	bus     *bus.MessageBus
	handle  channel.Handler
	workers int
	log     *slog.Logger

	inFlight atomic.Int64
}

func newDispatcher(messageBus *bus.MessageBus, handle channel.Handler, workers int, log *slog.Logger) *dispatcher {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if log == nil {
		log = slog.Default()
	}

	return &dispatcher{
		bus:     messageBus,
		handle:  handle,
		workers: workers,
		log:     log.With("component", "gateway.dispatcher"),
	}
}

// Run blocks until ctx is cancelled or the bus is closed.
func (d *dispatcher) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	shards := make([]chan bus.InboundMessage, d.workers)
	for i := range shards {
		shard := make(chan bus.InboundMessage, shardBuffer)
		shards[i] = shard
		group.Go(func() error {
			for msg := range shard {
				d.process(groupCtx, msg)
			}
			return nil
		})
	}

	group.Go(func() error {
		defer func() {
			for _, shard := range shards {
				close(shard)
			}
		}()

		for {
			msg, ok := d.bus.ConsumeInbound(groupCtx)
			if !ok {
				return nil
			}

			d.inFlight.Add(1)
			select {
			case shards[shardFor(msg.ChatID, len(shards))] <- msg:
			case <-groupCtx.Done():
				d.inFlight.Add(-1)
				return nil
			}
		}
	})

	return group.Wait()
}

func (d *dispatcher) process(ctx context.Context, msg bus.InboundMessage) {
	defer d.inFlight.Add(-1)

	if ctx.Err() != nil {
		return
	}
	if err := d.handle(ctx, msg); err != nil {
		d.log.Error("Failed to deliver reply", "chat_id", msg.ChatID, "message_id", msg.MessageID, "error", err)
	}
}

// pending returns the number of messages taken off the bus but not finished.
func (d *dispatcher) pending() int {
	return int(d.inFlight.Load())
}

func shardFor(chatID int64, shards int) int {
	n := chatID % int64(shards)
	if n < 0 {
		n = -n
	}
	return int(n)
}
