package reaction

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"valorbot/pkg/bus"
	"valorbot/pkg/channel"
	"valorbot/pkg/intent"
	"valorbot/pkg/retry"
)

const (
	defaultMaxTracked  = 1000
	defaultLimiterTTL  = 10 * time.Minute
	maxLimiters        = 4096
	maxSlots           = 3
	slotAcknowledge    = 0
	slotActive         = 1
	slotFinal          = 2
	rateLimitAttempts  = 2
	defaultSweepPeriod = time.Minute
)

// Transport is the single chat-service call the sequencer needs.
type Transport interface {
	SetReaction(ctx context.Context, chatID int64, messageID int64, symbols []string) error
}

// EventPublisher receives reaction updates for observability.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event bus.Event) bool
}

// Options configures state retention, client-side pacing and throttling.
type Options struct {
	// MaxTracked is the number of messages kept after a sweep.
	MaxTracked int
	// SettleDelay is the minimum gap between the active and final reaction.
	SettleDelay time.Duration
	// PerChatRate limits reaction calls per chat per second. Zero disables throttling.
	PerChatRate  float64
	PerChatBurst int
	LimiterTTL   time.Duration
}

type key struct {
	chatID    int64
	messageID int64
}

type state struct {
	mu       sync.Mutex
	slots    [maxSlots]string
	intent   intent.Intent
	activeAt time.Time
}

func (s *state) list() []string {
	out := make([]string, 0, maxSlots)
	for _, symbol := range s.slots {
		if symbol != "" {
			out = append(out, symbol)
		}
	}
	return out
}

// Sequencer drives the acknowledge → intent/tool → final reaction lifecycle
// for each message. Operations report success and never return errors.
type Sequencer struct {
	transport Transport
	opts      Options
	log       *slog.Logger
	events    EventPublisher

	// states is only read with Peek so eviction follows insertion order.
	states   *lru.Cache[key, *state]
	limiters *expirable.LRU[int64, *rate.Limiter]
	now      func() time.Time
}

// New builds a Sequencer. events may be nil.
func New(transport Transport, opts Options, events EventPublisher, log *slog.Logger) *Sequencer {
	if opts.MaxTracked <= 0 {
		opts.MaxTracked = defaultMaxTracked
	}
	if opts.LimiterTTL <= 0 {
		opts.LimiterTTL = defaultLimiterTTL
	}
	if opts.PerChatBurst <= 0 {
		opts.PerChatBurst = 1
	}
	if log == nil {
		log = slog.Default()
	}

	// The hard cap leaves room between sweeps. lru.New only fails for
	// non-positive sizes.
	states, err := lru.New[key, *state](opts.MaxTracked * 2)
	if err != nil {
		panic(err)
	}

	s := &Sequencer{
		transport: transport,
		opts:      opts,
		log:       log.With("component", "reaction.sequencer"),
		events:    events,
		states:    states,
		now:       time.Now,
	}
	if opts.PerChatRate > 0 {
		s.limiters = expirable.NewLRU[int64, *rate.Limiter](maxLimiters, nil, opts.LimiterTTL)
	}

	return s
}

// Acknowledge marks the message as received.
func (s *Sequencer) Acknowledge(ctx context.Context, chatID int64, messageID int64) bool {
	return s.update(ctx, chatID, messageID, slotAcknowledge, func(*state) string {
		return intent.SymbolReceived
	})
}

// SetIntent shows the classified intent in the active slot.
func (s *Sequencer) SetIntent(ctx context.Context, chatID int64, messageID int64, classification intent.Classification) bool {
	return s.update(ctx, chatID, messageID, slotActive, func(st *state) string {
		st.intent = classification.Intent
		return intent.ResolveSymbol(classification.Symbol, classification.Intent)
	})
}

// SetTool replaces the active slot with a tool-in-progress symbol.
func (s *Sequencer) SetTool(ctx context.Context, chatID int64, messageID int64, symbol string) bool {
	return s.update(ctx, chatID, messageID, slotActive, func(st *state) string {
		return intent.ResolveSymbol(symbol, st.intent)
	})
}

// Finalize sets the completion or error symbol.
func (s *Sequencer) Finalize(ctx context.Context, chatID int64, messageID int64, success bool) bool {
	symbol := intent.SymbolCompleted
	if !success {
		symbol = intent.SymbolError
	}

	st := s.stateFor(chatID, messageID)
	if s.opts.SettleDelay > 0 {
		st.mu.Lock()
		activeAt := st.activeAt
		st.mu.Unlock()
		if !activeAt.IsZero() {
			if wait := s.opts.SettleDelay - s.now().Sub(activeAt); wait > 0 {
				if !sleepContext(ctx, wait) {
					return false
				}
			}
		}
	}

	return s.update(ctx, chatID, messageID, slotFinal, func(*state) string {
		return symbol
	})
}

// Snapshot returns the current reaction list for a message.
func (s *Sequencer) Snapshot(chatID int64, messageID int64) []string {
	st, ok := s.states.Peek(key{chatID: chatID, messageID: messageID})
	if !ok {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.list()
}

// Tracked returns the number of messages with retained state.
func (s *Sequencer) Tracked() int {
	return s.states.Len()
}

// Sweep drops the oldest-inserted states above MaxTracked.
func (s *Sequencer) Sweep() int {
	removed := 0
	for s.states.Len() > s.opts.MaxTracked {
		if _, _, ok := s.states.RemoveOldest(); !ok {
			break
		}
		removed++
	}
	if removed > 0 {
		s.log.Debug("Swept reaction states", "removed", removed, "tracked", s.states.Len())
	}
	return removed
}

// RunSweeper sweeps periodically until ctx ends.
func (s *Sequencer) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepPeriod
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Sequencer) stateFor(chatID int64, messageID int64) *state {
	k := key{chatID: chatID, messageID: messageID}
	if st, ok := s.states.Peek(k); ok {
		return st
	}

	fresh := &state{}
	if previous, ok, _ := s.states.PeekOrAdd(k, fresh); ok {
		return previous
	}
	return fresh
}

func (s *Sequencer) update(ctx context.Context, chatID int64, messageID int64, slot int, pick func(*state) string) bool {
	st := s.stateFor(chatID, messageID)

	st.mu.Lock()
	defer st.mu.Unlock()

	symbol := pick(st)
	if st.slots[slot] == symbol {
		return true
	}

	next := st.slots
	next[slot] = symbol
	candidate := (&state{slots: next}).list()

	log := s.log.With("chat_id", chatID, "message_id", messageID, "symbol", symbol, "slot", slot+1)
	if err := s.send(ctx, chatID, messageID, candidate); err != nil {
		log.Warn("Failed to update reaction", "error", err)
		return false
	}

	st.slots = next
	if slot == slotActive {
		st.activeAt = s.now()
	}
	log.Debug("Reaction updated", "reactions", strings.Join(candidate, ""))

	if s.events != nil {
		s.events.PublishEvent(ctx, bus.Event{
			Type:      bus.EventReactionUpdated,
			ChatID:    chatID,
			MessageID: messageID,
			Payload:   map[string]string{"reactions": strings.Join(candidate, " ")},
		})
	}

	return true
}

func (s *Sequencer) send(ctx context.Context, chatID int64, messageID int64, symbols []string) error {
	policy := retry.Policy{
		MaxAttempts: rateLimitAttempts,
		Decide:      retry.AfterServerDelay(channel.RetryAfter),
	}

	return retry.Do(ctx, policy, func(ctx context.Context) error {
		if err := s.throttle(ctx, chatID); err != nil {
			return err
		}
		return s.transport.SetReaction(ctx, chatID, messageID, symbols)
	})
}

func (s *Sequencer) throttle(ctx context.Context, chatID int64) error {
	if s.limiters == nil {
		return nil
	}

	limiter, ok := s.limiters.Get(chatID)
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.opts.PerChatRate), s.opts.PerChatBurst)
		s.limiters.Add(chatID, limiter)
	}

	return limiter.Wait(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
