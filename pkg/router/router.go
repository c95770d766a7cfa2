// Package router runs one inbound chat message through filtering,
// classification, reactions, agent dispatch and the reply.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"valorbot/pkg/agent"
	"valorbot/pkg/bus"
	"valorbot/pkg/channel"
	"valorbot/pkg/history"
	"valorbot/pkg/intent"
	"valorbot/pkg/logger"
	"valorbot/pkg/media"
	"valorbot/pkg/projects"
	"valorbot/pkg/prompt"
	"valorbot/pkg/reaction"
	"valorbot/pkg/retry"
	"valorbot/pkg/toolpolicy"
)

const (
	healthToken     = "ping"
	previewWidth    = 60
	sendAttempts    = 2
	classifyFailure = "classifier failed"
)

// Classifier assigns an intent to message text. It must not fail; a panic is
// recovered as unclear.
type Classifier interface {
	Classify(ctx context.Context, message string, cctx intent.ClassifyContext) intent.Classification
}

// EventPublisher receives pipeline events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event bus.Event) bool
}

// Deps are the collaborators of a Router. History, Projects, Events, Media,
// Console and Stats are optional.
type Deps struct {
	Classifier Classifier
	Reactions  *reaction.Sequencer
	Policy     *toolpolicy.Table
	Composer   *prompt.Composer
	Agent      agent.Agent
	Transport  channel.Transport

	History  history.Store
	Projects projects.Source
	Events   EventPublisher
	Media    *media.Dir
	Stats    *Stats
	Console  io.Writer
	Log      *slog.Logger
	Now      func() time.Time
}

// Options holds the bot identity and the chat allow-lists.
type Options struct {
	Bot           Identity
	AllowedGroups []int64
	AllowDMs      bool
	// AllowFrom restricts senders by username or numeric id when non-empty.
	AllowFrom    []string
	HistoryQuery history.Query
	// Tools are the tool names registered on the agent.
	Tools []string
}

type Router struct {
	deps  Deps
	opts  Options
	log   *slog.Logger
	stats *Stats
	now   func() time.Time
}

func New(deps Deps, opts Options) (*Router, error) {
	switch {
	case deps.Classifier == nil:
		return nil, errors.New("router: classifier is required")
	case deps.Reactions == nil:
		return nil, errors.New("router: reaction sequencer is required")
	case deps.Policy == nil:
		return nil, errors.New("router: tool policy is required")
	case deps.Composer == nil:
		return nil, errors.New("router: prompt composer is required")
	case deps.Agent == nil:
		return nil, errors.New("router: agent is required")
	case deps.Transport == nil:
		return nil, errors.New("router: transport is required")
	}

	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Console == nil {
		deps.Console = io.Discard
	}
	if deps.Stats == nil {
		deps.Stats = NewStats(deps.Now)
	}
	if opts.HistoryQuery == (history.Query{}) {
		opts.HistoryQuery = history.DefaultQuery
	}

	return &Router{
		deps:  deps,
		opts:  opts,
		log:   deps.Log.With("component", "router"),
		stats: deps.Stats,
		now:   deps.Now,
	}, nil
}

func (r *Router) Stats() *Stats {
	return r.stats
}

// Handle processes one inbound message. Classification, reaction and agent
// failures are absorbed; only a failed reply delivery is returned.
func (r *Router) Handle(ctx context.Context, msg bus.InboundMessage) error {
	requestID := uuid.NewString()
	log := r.log.With("request_id", requestID, "chat_id", msg.ChatID, "message_id", msg.MessageID)
	started := r.now()

	r.stats.received.Add(1)
	r.publish(ctx, msg, requestID, bus.EventMessageReceived, nil, "")

	if reason, ok := r.accept(msg); !ok {
		r.reject(ctx, msg, requestID, reason, log)
		return nil
	}

	text, addressed := normalize(msg, r.opts.Bot)
	if !addressed {
		// Group chatter is kept so later questions have context.
		r.remember(ctx, msg.ChatID, history.RoleUser, text, msg.MessageID, replyToID(msg), log)
		log.Debug("Ignoring message not addressed to bot")
		return nil
	}
	if text == "" && !msg.HasImage {
		log.Debug("Ignoring empty message")
		return nil
	}

	r.deps.Reactions.Acknowledge(ctx, msg.ChatID, msg.MessageID)

	if strings.EqualFold(text, healthToken) {
		reply := TextReply{Text: r.stats.HealthReport()}
		err := r.respond(ctx, msg, reply, log)
		r.finish(ctx, msg, requestID, text, reply, agent.Usage{}, err, started, log)
		return err
	}

	cctx := intent.ClassifyContext{
		HasImage:    msg.HasImage,
		HasLinks:    hasLinks(text),
		IsGroupChat: msg.IsGroup(),
	}
	classification := r.classify(ctx, text, cctx, log)
	r.publish(ctx, msg, requestID, bus.EventMessageClassified, map[string]string{
		"intent":     string(classification.Intent),
		"confidence": strconv.FormatFloat(classification.Confidence, 'f', 2, 64),
		"symbol":     classification.Symbol,
	}, "")

	if typing, ok := r.deps.Transport.(channel.TypingIndicator); ok {
		stop := typing.StartTyping(ctx, msg.ChatID)
		defer stop()
	}

	prepared := r.prepare(ctx, msg, text, classification, cctx, log)

	result, err := r.dispatch(ctx, msg, requestID, prepared, log)
	var reply Reply
	if err != nil {
		reply = TextReply{Text: apologyPrefix + err.Error()}
	} else {
		reply = buildReply(result)
	}

	deliverErr := r.respond(ctx, msg, reply, log)
	outcome := deliverErr
	if outcome == nil {
		outcome = err
	}
	r.finish(ctx, msg, requestID, text, reply, result.Usage, outcome, started, log)

	return deliverErr
}

// accept applies the chat and sender allow-lists.
func (r *Router) accept(msg bus.InboundMessage) (string, bool) {
	switch {
	case msg.IsGroup():
		if !slices.Contains(r.opts.AllowedGroups, msg.ChatID) {
			return "group_not_allowed", false
		}
	case msg.IsPrivate():
		if !r.opts.AllowDMs {
			return "direct_messages_disabled", false
		}
	default:
		return "unsupported_chat_type", false
	}

	if len(r.opts.AllowFrom) > 0 && !r.senderAllowed(msg.Sender) {
		return "sender_not_allowed", false
	}
	return "", true
}

func (r *Router) senderAllowed(sender bus.Sender) bool {
	id := strconv.FormatInt(sender.ID, 10)
	username := strings.ToLower(strings.TrimPrefix(sender.Username, "@"))
	for _, allowed := range r.opts.AllowFrom {
		allowed = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(allowed), "@"))
		if allowed == id || (username != "" && allowed == username) {
			return true
		}
	}
	return false
}

func (r *Router) reject(ctx context.Context, msg bus.InboundMessage, requestID string, reason string, log *slog.Logger) {
	preview := logger.Preview(firstNonEmpty(msg.Text, msg.Caption), previewWidth)
	user := senderLabel(msg.Sender)

	r.stats.rejected.Add(1)
	log.Warn("Rejected message",
		"reason", reason,
		"chat_type", msg.ChatType,
		"user", user,
		"preview", preview,
	)
	fmt.Fprintf(r.deps.Console, "[rejected] %s chat=%d user=%s: %s\n", reason, msg.ChatID, user, preview)
	r.publish(ctx, msg, requestID, bus.EventMessageRejected, map[string]string{"reason": reason}, "")
}

func (r *Router) classify(ctx context.Context, text string, cctx intent.ClassifyContext, log *slog.Logger) (c intent.Classification) {
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Error("Classifier panicked", "error", fmt.Sprint(recovered))
			c = intent.Classification{
				Intent:     intent.Unclear,
				Confidence: 0.5,
				Reasoning:  classifyFailure,
				Symbol:     intent.DefaultSymbol(intent.Unclear),
			}
		}
	}()

	return r.deps.Classifier.Classify(ctx, text, cctx)
}

// prepared is the assembled input for one agent call.
type prepared struct {
	text           string
	enhanced       string
	classification intent.Classification
	deps           agent.Deps
}

// prepare runs the post-classification steps concurrently: intent reaction,
// tool resolution, prompt composition, history and project lookups.
func (r *Router) prepare(ctx context.Context, msg bus.InboundMessage, text string, c intent.Classification, cctx intent.ClassifyContext, log *slog.Logger) prepared {
	var (
		allowed      []string
		systemPrompt string
		excerpt      string
		projectData  string
	)
	priority := isPriorityQuestion(text, c)

	var g errgroup.Group
	g.Go(func() error {
		r.deps.Reactions.SetIntent(ctx, msg.ChatID, msg.MessageID, c)
		return nil
	})
	g.Go(func() error {
		if len(r.opts.Tools) > 0 {
			allowed = r.deps.Policy.Filter(r.opts.Tools, c)
		} else {
			allowed = r.deps.Policy.Resolve(c).Allowed
		}
		if allowed == nil {
			allowed = []string{}
		}
		return nil
	})
	g.Go(func() error {
		systemPrompt = r.deps.Composer.Compose(c, &prompt.Context{
			IsGroupChat: cctx.IsGroupChat,
			Username:    msg.Sender.Username,
			ChatID:      msg.ChatID,
			HasImage:    cctx.HasImage,
			HasLinks:    cctx.HasLinks,
		})
		return nil
	})
	g.Go(func() error {
		excerpt = r.historyExcerpt(ctx, msg.ChatID, log)
		return nil
	})
	if priority {
		g.Go(func() error {
			projectData = r.projectData(ctx, log)
			return nil
		})
	}
	_ = g.Wait()

	log.Debug("Prepared agent call",
		"intent", c.Intent,
		"confidence", c.Confidence,
		"allowed_tools", strings.Join(allowed, ","),
		"priority_question", priority,
		"has_history", excerpt != "",
	)

	plain := text
	if msg.HasImage {
		plain = strings.TrimSpace("[Image] " + text)
	}

	return prepared{
		text: plain,
		enhanced: buildEnhancedMessage(enhancedInput{
			classification: &c,
			history:        excerpt,
			projectData:    projectData,
			text:           text,
			hasImage:       msg.HasImage,
		}),
		classification: c,
		deps: agent.Deps{
			ChatID:           msg.ChatID,
			Username:         msg.Sender.Username,
			IsGroupChat:      msg.IsGroup(),
			ChatHistory:      excerpt,
			ProjectData:      projectData,
			PriorityQuestion: priority,
			Classification:   &c,
			SystemPrompt:     systemPrompt,
			AllowedTools:     allowed,
		},
	}
}

func (r *Router) historyExcerpt(ctx context.Context, chatID int64, log *slog.Logger) string {
	if r.deps.History == nil {
		return ""
	}
	entries, err := r.deps.History.GetContext(ctx, chatID, r.opts.HistoryQuery)
	if err != nil {
		log.Warn("Failed to load chat history", "error", err)
		return ""
	}
	return formatHistory(entries)
}

func (r *Router) projectData(ctx context.Context, log *slog.Logger) string {
	if r.deps.Projects == nil {
		return ""
	}
	summary, err := r.deps.Projects.Summary(ctx)
	if err != nil {
		if !errors.Is(err, projects.ErrNotConfigured) {
			log.Warn("Failed to load project data", "error", err)
		}
		return ""
	}
	if projects.IsErrorText(summary) {
		log.Warn("Project data reports an error", "preview", logger.Preview(summary, previewWidth))
		return ""
	}
	return summary
}

// dispatch calls the agent with the intent-aware input, then once more with
// the plain message if that fails.
func (r *Router) dispatch(ctx context.Context, msg bus.InboundMessage, requestID string, p prepared, log *slog.Logger) (agent.Result, error) {
	ctx = agent.WithToolEventHandler(ctx, func(event agent.ToolEvent) {
		if event.Kind != agent.ToolEventCall {
			return
		}
		if symbol, ok := ToolSymbol(event.Tool); ok {
			r.deps.Reactions.SetTool(ctx, msg.ChatID, msg.MessageID, symbol)
		}
		r.publish(ctx, msg, requestID, bus.EventToolInvoked, map[string]string{"tool": event.Tool}, "")
	})

	started := r.now()
	result, err := r.deps.Agent.Run(ctx, p.enhanced, p.deps)
	if err == nil {
		log.Info("Agent responded",
			"intent", p.classification.Intent,
			"model", result.Model,
			"tools", strings.Join(result.ToolNames(), ","),
			"duration_ms", r.now().Sub(started).Milliseconds(),
		)
		return result, nil
	}
	log.Warn("Agent failed, retrying without intent context", "error", err)

	plain := agent.Deps{
		ChatID:      p.deps.ChatID,
		Username:    p.deps.Username,
		IsGroupChat: p.deps.IsGroupChat,
		ChatHistory: p.deps.ChatHistory,
	}
	result, fallbackErr := r.deps.Agent.Run(ctx, p.text, plain)
	if fallbackErr != nil {
		log.Error("Agent fallback failed", "error", fallbackErr, "first_error", err)
		return agent.Result{}, fallbackErr
	}
	return result, nil
}

// respond delivers the reply, retrying once when the chat service asks to
// wait. Images outside the media directory are sent as their caption.
func (r *Router) respond(ctx context.Context, msg bus.InboundMessage, reply Reply, log *slog.Logger) error {
	policy := retry.Policy{
		MaxAttempts: sendAttempts,
		Decide:      retry.AfterServerDelay(channel.RetryAfter),
	}

	if image, ok := reply.(ImageReply); ok {
		path, err := r.imagePath(image.Path)
		if err == nil {
			caption := image.Caption
			if runeLen(caption) > maxCaptionLength {
				caption = string([]rune(caption)[:maxCaptionLength])
			}
			return retry.Do(ctx, policy, func(ctx context.Context) error {
				return r.deps.Transport.SendImage(ctx, msg.ChatID, msg.MessageID, path, caption)
			})
		}
		log.Warn("Refusing to send image", "path", image.Path, "error", err)
		reply = TextReply{Text: firstNonEmpty(image.Caption, fallbackResponse)}
	}

	text := reply.(TextReply).Text
	if strings.TrimSpace(text) == "" {
		text = fallbackResponse
	}
	for i, chunk := range SplitText(text, MaxMessageLength) {
		replyTo := msg.MessageID
		if i > 0 {
			replyTo = 0
		}
		err := retry.Do(ctx, policy, func(ctx context.Context) error {
			return r.deps.Transport.SendText(ctx, msg.ChatID, replyTo, chunk)
		})
		if err != nil {
			return fmt.Errorf("send reply part %d: %w", i+1, err)
		}
	}
	return nil
}

func (r *Router) imagePath(path string) (string, error) {
	if r.deps.Media == nil {
		return "", errors.New("no media directory configured")
	}
	return r.deps.Media.Contains(path)
}

// finish finalizes reactions, records the outcome and persists both turns.
func (r *Router) finish(ctx context.Context, msg bus.InboundMessage, requestID string, text string, reply Reply, usage agent.Usage, err error, started time.Time, log *slog.Logger) {
	success := err == nil
	r.deps.Reactions.Finalize(ctx, msg.ChatID, msg.MessageID, success)

	elapsed := r.now().Sub(started).Milliseconds()
	if success {
		r.stats.responded.Add(1)
		log.Info("Message handled", "duration_ms", elapsed)
		payload := usage.AppendMetadata(map[string]string{"duration_ms": strconv.FormatInt(elapsed, 10)})
		r.publish(ctx, msg, requestID, bus.EventMessageResponded, payload, "")
	} else {
		r.stats.failed.Add(1)
		log.Error("Message failed", "error", err, "duration_ms", elapsed)
		r.publish(ctx, msg, requestID, bus.EventMessageFailed, nil, err.Error())
	}

	userText := text
	if msg.HasImage {
		userText = strings.TrimSpace("[Image] " + text)
	}
	r.remember(ctx, msg.ChatID, history.RoleUser, userText, msg.MessageID, replyToID(msg), log)
	r.remember(ctx, msg.ChatID, history.RoleAssistant, replyText(reply), 0, msg.MessageID, log)
}

func (r *Router) remember(ctx context.Context, chatID int64, role string, content string, messageID int64, replyTo int64, log *slog.Logger) {
	if r.deps.History == nil || strings.TrimSpace(content) == "" {
		return
	}
	if err := r.deps.History.AddMessage(ctx, chatID, role, content, messageID, replyTo); err != nil {
		log.Warn("Failed to store chat history", "role", role, "error", err)
	}
}

func (r *Router) publish(ctx context.Context, msg bus.InboundMessage, requestID string, eventType bus.EventType, payload map[string]string, errText string) {
	if r.deps.Events == nil {
		return
	}
	r.deps.Events.PublishEvent(ctx, bus.Event{
		Type:      eventType,
		At:        r.now().UTC(),
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		MessageID: msg.MessageID,
		RequestID: requestID,
		Payload:   payload,
		Error:     errText,
	})
}

var toolSymbols = map[string]string{
	toolpolicy.ToolSearchWeb:     "🔍",
	toolpolicy.ToolFetchLink:     "🔗",
	toolpolicy.ToolGenerateImage: "🎨",
	toolpolicy.ToolSearchHistory: "✍",
	toolpolicy.ToolQueryProjects: "👨‍💻",
	toolpolicy.ToolSystemHealth:  "💯",
	toolpolicy.ToolCurrentTime:   "⚡",
}

// ToolSymbol maps a tool name to the reaction shown while it runs.
func ToolSymbol(tool string) (string, bool) {
	symbol, ok := toolSymbols[tool]
	if !ok || !intent.IsValidSymbol(symbol) {
		return "", false
	}
	return symbol, true
}

func replyText(reply Reply) string {
	switch v := reply.(type) {
	case TextReply:
		return v.Text
	case ImageReply:
		return strings.TrimSpace("[Image] " + v.Caption)
	default:
		return ""
	}
}

func replyToID(msg bus.InboundMessage) int64 {
	if msg.ReplyTo == nil {
		return 0
	}
	return msg.ReplyTo.MessageID
}

func senderLabel(sender bus.Sender) string {
	if sender.Username != "" {
		return "@" + strings.TrimPrefix(sender.Username, "@")
	}
	return strconv.FormatInt(sender.ID, 10)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
