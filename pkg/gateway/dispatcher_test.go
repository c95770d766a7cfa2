package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"valorbot/pkg/bus"
)

func TestDispatcherKeepsChatOrderAndNeverOverlaps(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messageBus := bus.NewMessageBusWithBuffer(32)
	defer messageBus.Close()

	var (
		mu      sync.Mutex
		running = map[int64]bool{}
		seen    = map[int64][]int64{}
		overlap bool
		done    = make(chan struct{})
		total   int
	)
	handle := func(_ context.Context, msg bus.InboundMessage) error {
		mu.Lock()
		if running[msg.ChatID] {
			overlap = true
		}
		running[msg.ChatID] = true
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		running[msg.ChatID] = false
		seen[msg.ChatID] = append(seen[msg.ChatID], msg.MessageID)
		total++
		if total == 20 {
			close(done)
		}
		mu.Unlock()
		return nil
	}

	d := newDispatcher(messageBus, handle, 3, nil)
	go func() { _ = d.Run(ctx) }()

	for i := int64(1); i <= 20; i++ {
		require.True(t, messageBus.PublishInbound(ctx, bus.InboundMessage{ChatID: i % 4, MessageID: i}))
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for messages")
	}

	mu.Lock()
	defer mu.Unlock()
	require.False(t, overlap, "messages of one chat overlapped")
	for chatID, ids := range seen {
		for i := 1; i < len(ids); i++ {
			require.Less(t, ids[i-1], ids[i], "chat %d out of order: %v", chatID, ids)
		}
	}
	require.Eventually(t, func() bool { return d.pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestDispatcherStopsWhenBusCloses(t *testing.T) {
	t.Parallel()

	messageBus := bus.NewMessageBus()
	d := newDispatcher(messageBus, func(context.Context, bus.InboundMessage) error { return nil }, 2, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(context.Background()) }()

	messageBus.Close()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestShardForNegativeChatIDs(t *testing.T) {
	t.Parallel()

	require.Equal(t, shardFor(-1001, 4), shardFor(-1001, 4))
	for _, chatID := range []int64{-1001, -7, 0, 5, 1 << 40} {
		shard := shardFor(chatID, 4)
		require.GreaterOrEqual(t, shard, 0)
		require.Less(t, shard, 4)
	}
}
