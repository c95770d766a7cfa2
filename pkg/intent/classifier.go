package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"valorbot/pkg/retry"
)

const (
	defaultTierTimeout   = 20 * time.Second
	defaultRetryAttempts = 2
	defaultRetryDelay    = 500 * time.Millisecond
)

// Model is one remote classification tier.
type Model interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// Options tunes tier timeouts and the primary tier's retry budget.
type Options struct {
	// TierTimeout bounds the total time spent in one tier, retries included.
	TierTimeout time.Duration
	// PrimaryRetries is the number of extra attempts on timeout. Zero means
	// the default of two; a negative value disables retries.
	PrimaryRetries int
	RetryDelay     time.Duration
}

// Classifier runs the local model, the remote model and finally the rules.
type Classifier struct {
	primary   Model
	secondary Model
	opts      Options
	log       *slog.Logger
}

// NewClassifier builds a Classifier. Either model may be nil; a nil tier is skipped.
func NewClassifier(primary Model, secondary Model, opts Options, log *slog.Logger) *Classifier {
	if opts.TierTimeout <= 0 {
		opts.TierTimeout = defaultTierTimeout
	}
	if opts.PrimaryRetries < 0 {
		opts.PrimaryRetries = 0
	} else if opts.PrimaryRetries == 0 {
		opts.PrimaryRetries = defaultRetryAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if log == nil {
		log = slog.Default()
	}

	return &Classifier{
		primary:   primary,
		secondary: secondary,
		opts:      opts,
		log:       log.With("component", "intent.classifier"),
	}
}

// Classify always returns a valid classification; failures degrade through the tiers.
func (c *Classifier) Classify(ctx context.Context, message string, cctx ClassifyContext) (result Classification) {
	if strings.TrimSpace(message) == "" {
		return Classification{
			Intent:     Unclear,
			Confidence: 1.0,
			Reasoning:  "Empty message",
			Symbol:     ResolveSymbol(SymbolThinking, Unclear),
		}
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			c.log.Error("Classifier panicked, using rules", "panic", fmt.Sprint(recovered))
			result = ClassifyByRules(message, cctx)
		}
	}()

	prompt := BuildPrompt(message, cctx)
	startedAt := time.Now()

	if c.primary != nil {
		policy := retry.Policy{
			MaxAttempts: 1 + c.opts.PrimaryRetries,
			Decide:      retry.OnTimeout(c.opts.RetryDelay),
		}
		classification, err := c.runTier(ctx, c.primary, prompt, policy)
		if err == nil {
			c.logResult("primary", c.primary.Name(), classification, startedAt)
			return classification
		}
		c.log.Warn("Primary classifier failed", "model", c.primary.Name(), "error", err)
	}

	if c.secondary != nil {
		classification, err := c.runTier(ctx, c.secondary, prompt, retry.Policy{MaxAttempts: 1})
		if err == nil {
			c.logResult("secondary", c.secondary.Name(), classification, startedAt)
			return classification
		}
		c.log.Warn("Secondary classifier failed", "model", c.secondary.Name(), "error", err)
	}

	classification := ClassifyByRules(message, cctx)
	c.logResult("rules", "rules", classification, startedAt)
	return classification
}

func (c *Classifier) runTier(ctx context.Context, model Model, prompt string, policy retry.Policy) (Classification, error) {
	tierCtx, cancel := context.WithTimeout(ctx, c.opts.TierTimeout)
	defer cancel()

	raw, err := retry.DoValue(tierCtx, policy, func(ctx context.Context) (string, error) {
		return model.Complete(ctx, prompt)
	})
	if err != nil {
		return Classification{}, fmt.Errorf("%s: %w", model.Name(), err)
	}

	return ParseResponse(raw)
}

func (c *Classifier) logResult(tier string, model string, classification Classification, startedAt time.Time) {
	c.log.Debug("Message classified",
		"tier", tier,
		"model", model,
		"intent", classification.Intent,
		"confidence", classification.Confidence,
		"symbol", classification.Symbol,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)
}
