package reaction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"valorbot/pkg/bus"
	"valorbot/pkg/channel"
	"valorbot/pkg/intent"
)

type reactionCall struct {
	chatID    int64
	messageID int64
	symbols   []string
}

type fakeTransport struct {
	mu    sync.Mutex
	calls []reactionCall
	errs  []error
}

func (f *fakeTransport) SetReaction(_ context.Context, chatID int64, messageID int64, symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, reactionCall{chatID: chatID, messageID: messageID, symbols: append([]string(nil), symbols...)})
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestLifecycleReplacesActiveSlot(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	seq := New(transport, Options{}, nil, nil)
	ctx := context.Background()

	require.True(t, seq.Acknowledge(ctx, 1, 10))
	require.True(t, seq.SetIntent(ctx, 1, 10, intent.Classification{Intent: intent.WebSearch, Symbol: "🌐"}))
	require.True(t, seq.SetTool(ctx, 1, 10, "🔍"))
	require.True(t, seq.Finalize(ctx, 1, 10, true))

	require.Equal(t, []string{"👀", "🔍", "✅"}, seq.Snapshot(1, 10))
	require.Len(t, transport.calls, 4)
	require.Equal(t, []string{"👀", "🌐"}, transport.calls[1].symbols)
	require.Equal(t, []string{"👀", "🔍", "✅"}, transport.calls[3].symbols)
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	seq := New(transport, Options{}, nil, nil)

	require.True(t, seq.Acknowledge(context.Background(), 1, 1))
	require.True(t, seq.Acknowledge(context.Background(), 1, 1))

	require.Equal(t, 1, transport.callCount())
	require.Equal(t, []string{"👀"}, seq.Snapshot(1, 1))
}

func TestSetIntentTwiceKeepsOnlySecondSymbol(t *testing.T) {
	t.Parallel()

	seq := New(&fakeTransport{}, Options{}, nil, nil)
	ctx := context.Background()

	seq.Acknowledge(ctx, 5, 5)
	seq.SetIntent(ctx, 5, 5, intent.Classification{Intent: intent.CasualChat, Symbol: "😁"})
	seq.SetIntent(ctx, 5, 5, intent.Classification{Intent: intent.QuestionAnswer, Symbol: "🤔"})

	require.Equal(t, []string{"👀", "🤔"}, seq.Snapshot(5, 5))
}

func TestInvalidSymbolsAreSubstituted(t *testing.T) {
	t.Parallel()

	seq := New(&fakeTransport{}, Options{}, nil, nil)
	ctx := context.Background()

	seq.SetIntent(ctx, 1, 2, intent.Classification{Intent: intent.LinkAnalysis, Symbol: "🦖"})
	require.Equal(t, []string{intent.DefaultSymbol(intent.LinkAnalysis)}, seq.Snapshot(1, 2))

	seq.SetTool(ctx, 1, 2, "not-an-emoji")
	require.Equal(t, []string{intent.DefaultSymbol(intent.LinkAnalysis)}, seq.Snapshot(1, 2))

	seq.SetTool(ctx, 9, 9, "not-an-emoji")
	require.Equal(t, []string{intent.SymbolFallback}, seq.Snapshot(9, 9))
}

func TestFinalizeFailureUsesErrorSymbol(t *testing.T) {
	t.Parallel()

	seq := New(&fakeTransport{}, Options{}, nil, nil)
	ctx := context.Background()

	seq.Acknowledge(ctx, 1, 1)
	seq.Finalize(ctx, 1, 1, false)

	require.Equal(t, []string{"👀", intent.SymbolError}, seq.Snapshot(1, 1))
}

func TestRateLimitedCallIsRetriedOnce(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{errs: []error{&channel.RateLimitError{RetryAfter: time.Millisecond}}}
	seq := New(transport, Options{}, nil, nil)

	require.True(t, seq.Acknowledge(context.Background(), 1, 1))
	require.Equal(t, 2, transport.callCount())
	require.Equal(t, []string{"👀"}, seq.Snapshot(1, 1))
}

func TestRepeatedRateLimitGivesUp(t *testing.T) {
	t.Parallel()

	limit := &channel.RateLimitError{RetryAfter: time.Millisecond}
	transport := &fakeTransport{errs: []error{limit, limit, limit}}
	seq := New(transport, Options{}, nil, nil)

	require.False(t, seq.Acknowledge(context.Background(), 1, 1))
	require.Equal(t, 2, transport.callCount())
	require.Empty(t, seq.Snapshot(1, 1))
}

func TestOtherTransportErrorsAreNotRetried(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{errs: []error{errors.New("chat not found")}}
	seq := New(transport, Options{}, nil, nil)

	require.False(t, seq.Acknowledge(context.Background(), 1, 1))
	require.Equal(t, 1, transport.callCount())

	require.True(t, seq.Acknowledge(context.Background(), 1, 1), "a failed update is not recorded, so a later attempt still sends")
	require.Equal(t, 2, transport.callCount())
}

func TestSweepEvictsOldestInserted(t *testing.T) {
	t.Parallel()

	seq := New(&fakeTransport{}, Options{MaxTracked: 2}, nil, nil)
	ctx := context.Background()

	for id := int64(1); id <= 4; id++ {
		seq.Acknowledge(ctx, 1, id)
	}
	// Touching the oldest entry must not refresh its position.
	seq.SetIntent(ctx, 1, 1, intent.Classification{Intent: intent.CasualChat, Symbol: "😁"})

	require.Equal(t, 4, seq.Tracked())
	require.Equal(t, 2, seq.Sweep())
	require.Nil(t, seq.Snapshot(1, 1))
	require.Nil(t, seq.Snapshot(1, 2))
	require.Equal(t, []string{"👀"}, seq.Snapshot(1, 3))
	require.Equal(t, []string{"👀"}, seq.Snapshot(1, 4))
}

func TestSettleDelayPacesFinalReaction(t *testing.T) {
	t.Parallel()

	seq := New(&fakeTransport{}, Options{SettleDelay: 30 * time.Millisecond}, nil, nil)
	ctx := context.Background()

	seq.SetIntent(ctx, 1, 1, intent.Classification{Intent: intent.CasualChat, Symbol: "😁"})
	start := time.Now()
	require.True(t, seq.Finalize(ctx, 1, 1, true))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestPublishesReactionEvents(t *testing.T) {
	t.Parallel()

	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)
	events, unsubscribe := mb.SubscribeEvents(context.Background(), 4)
	defer unsubscribe()

	seq := New(&fakeTransport{}, Options{}, mb, nil)
	seq.Acknowledge(context.Background(), 3, 4)

	select {
	case event := <-events:
		require.Equal(t, bus.EventReactionUpdated, event.Type)
		require.Equal(t, int64(3), event.ChatID)
		require.Equal(t, "👀", event.Payload["reactions"])
	case <-time.After(time.Second):
		t.Fatal("expected reaction event")
	}
}

func TestThrottleHonoursContext(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	seq := New(transport, Options{PerChatRate: 0.001, PerChatBurst: 1}, nil, nil)

	require.True(t, seq.Acknowledge(context.Background(), 1, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.False(t, seq.Acknowledge(ctx, 1, 2))
	require.Equal(t, 1, transport.callCount())
}
