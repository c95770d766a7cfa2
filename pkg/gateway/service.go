// Package gateway runs the bot as a long-lived service: one chat adapter, the
// message pipeline behind a worker pool, background maintenance and a small
// status server.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"valorbot/pkg/bus"
	"valorbot/pkg/channel"
	"valorbot/pkg/config"
	"valorbot/pkg/router"
)

const (
	defaultHealthHost    = "0.0.0.0"
	defaultHealthPort    = 18790
	providerCheckPeriod  = 30 * time.Second
	mediaPrunePeriod     = time.Hour
	mediaRetention       = 24 * time.Hour
	defaultSweepInterval = time.Minute
)

// identitySource is implemented by adapters that can report the bot account.
type identitySource interface {
	Identity(ctx context.Context) (int64, string, error)
}

type Service struct {
	cfg        *config.Config
	log        *slog.Logger
	adapter    channel.Adapter
	stack      *Stack
	dispatcher *dispatcher

	mu               sync.RWMutex
	startedAt        time.Time
	providerLastOKAt time.Time
	providerLastErr  string
	channelStates    map[string]channelState
	chats            map[int64]chatStatus
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type chatStatus struct {
	Title string `json:"title,omitempty"`
	Type  string `json:"type,omitempty"`
	Error string `json:"error,omitempty"`
}

type statusResponse struct {
	Status           string                  `json:"status"`
	UptimeSeconds    int64                   `json:"uptime_seconds"`
	ProviderLastOKAt string                  `json:"provider_last_ok_at,omitempty"`
	ProviderLastErr  string                  `json:"provider_last_error,omitempty"`
	Channels         map[string]channelState `json:"channels"`
}

type detailResponse struct {
	statusResponse
	Stats            router.StatsSnapshot  `json:"stats"`
	TrackedReactions int                   `json:"tracked_reactions"`
	PendingMessages  int                   `json:"pending_messages"`
	DroppedEvents    uint64                `json:"dropped_events"`
	AllowedGroups    map[string]chatStatus `json:"allowed_groups,omitempty"`
}

// NewService resolves the bot identity through the adapter and wires the
// message pipeline behind it.
func NewService(ctx context.Context, cfg *config.Config, adapter channel.Adapter, console io.Writer, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if adapter == nil {
		return nil, errors.New("channel adapter is required")
	}
	if log == nil {
		log = slog.Default()
	}

	var bot router.Identity
	if source, ok := adapter.(identitySource); ok {
		id, username, err := source.Identity(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve bot identity: %w", err)
		}
		bot = router.Identity{ID: id, Username: username}
	}

	stack, err := NewStack(ctx, cfg, StackOptions{
		Transport: adapter,
		Bot:       bot,
		Console:   console,
		Log:       log,
	})
	if err != nil {
		return nil, err
	}

	return newService(cfg, adapter, stack, log), nil
}

func newService(cfg *config.Config, adapter channel.Adapter, stack *Stack, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		adapter:       adapter,
		stack:         stack,
		dispatcher:    newDispatcher(stack.Bus, stack.Router.Handle, cfg.Gateway.Workers, log),
		channelStates: map[string]channelState{adapter.Name(): {}},
		chats:         make(map[int64]chatStatus),
	}
}

// Run serves until ctx is cancelled or the adapter or status server fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.stack.Close()

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.checkProviderHealth(ctx); err != nil {
		return err
	}

	s.resolveAllowedGroups(ctx)

	serverErrors := make(chan error, 1)
	go s.runHealthServer(ctx, serverErrors)

	go s.every(ctx, providerCheckPeriod, func() {
		_ = s.checkProviderHealth(ctx)
	})
	go s.every(ctx, mediaPrunePeriod, s.pruneMedia)
	go observeEvents(ctx, s.stack.Bus, s.log)

	sweepInterval := time.Duration(s.cfg.Reactions.SweepIntervalSeconds) * time.Second
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	go s.stack.Reactions.RunSweeper(ctx, sweepInterval)

	go func() {
		if err := s.dispatcher.Run(ctx); err != nil {
			s.log.Error("Dispatcher stopped", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	name := s.adapter.Name()
	s.setChannelState(name, channelState{Running: true})
	go func() {
		err := s.adapter.Run(ctx, s.enqueue)
		s.setChannelState(name, channelState{Running: false, Error: errorString(err)})
		if err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("run %s channel: %w", name, err)
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-errCh:
		return err
	}
}

// enqueue hands an inbound message to the worker pool, waiting while the
// queue is full.
func (s *Service) enqueue(ctx context.Context, msg bus.InboundMessage) error {
	if !s.stack.Bus.PublishInbound(ctx, msg) {
		return errors.New("inbound queue closed")
	}
	return nil
}

// resolveAllowedGroups looks up every allowed group once so misconfigured ids
// show up at startup instead of as silent rejections.
func (s *Service) resolveAllowedGroups(ctx context.Context) {
	for _, chatID := range s.cfg.Telegram.AllowedGroups {
		info, err := s.adapter.ResolveChat(ctx, chatID)
		status := chatStatus{Title: info.Title, Type: info.Type}
		if err != nil {
			status.Error = err.Error()
			s.log.Warn("Failed to resolve allowed group", "chat_id", chatID, "error", err)
		} else {
			s.log.Info("Allowed group", "chat_id", chatID, "title", info.Title, "chat_type", info.Type)
		}

		s.mu.Lock()
		s.chats[chatID] = status
		s.mu.Unlock()
	}
}

func (s *Service) pruneMedia() {
	removed, err := s.stack.Media.Prune(mediaRetention, time.Now())
	if err != nil {
		s.log.Warn("Failed to prune generated images", "error", err)
		return
	}
	if removed > 0 {
		s.log.Info("Pruned generated images", "removed", removed)
	}
}

func (s *Service) every(ctx context.Context, period time.Duration, fn func()) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (s *Service) runHealthServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

var ginModeOnce sync.Once

func (s *Service) routes() http.Handler {
	ginModeOnce.Do(func() { gin.SetMode(gin.ReleaseMode) })
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/readyz", s.handleReady)
	engine.GET("/status", s.handleStatus)

	return engine
}

func (s *Service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.currentStatus("ok"))
}

func (s *Service) handleReady(c *gin.Context) {
	if !s.isReady() {
		c.JSON(http.StatusServiceUnavailable, s.currentStatus("not_ready"))
		return
	}
	c.JSON(http.StatusOK, s.currentStatus("ready"))
}

func (s *Service) handleStatus(c *gin.Context) {
	status := "ready"
	if !s.isReady() {
		status = "not_ready"
	}

	detail := detailResponse{
		statusResponse:   s.currentStatus(status),
		Stats:            s.stack.Stats.Snapshot(),
		TrackedReactions: s.stack.Reactions.Tracked(),
		PendingMessages:  s.dispatcher.pending(),
		DroppedEvents:    s.stack.Bus.DroppedEvents(),
	}

	s.mu.RLock()
	if len(s.chats) > 0 {
		detail.AllowedGroups = make(map[string]chatStatus, len(s.chats))
		for chatID, chat := range s.chats {
			detail.AllowedGroups[strconv.FormatInt(chatID, 10)] = chat
		}
	}
	s.mu.RUnlock()

	c.JSON(http.StatusOK, detail)
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	providerLastOK := ""
	if !s.providerLastOKAt.IsZero() {
		providerLastOK = s.providerLastOKAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:           status,
		UptimeSeconds:    uptime,
		ProviderLastOKAt: providerLastOK,
		ProviderLastErr:  s.providerLastErr,
		Channels:         channels,
	}
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	anyRunning := false
	for _, state := range s.channelStates {
		if state.Running {
			anyRunning = true
			break
		}
	}

	return anyRunning && !s.providerLastOKAt.IsZero() && s.providerLastErr == ""
}

func (s *Service) checkProviderHealth(ctx context.Context) error {
	if err := s.stack.Agent.Health(ctx); err != nil {
		s.mu.Lock()
		s.providerLastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("provider health check failed: %w", err)
	}

	s.mu.Lock()
	s.providerLastErr = ""
	s.providerLastOKAt = time.Now().UTC()
	s.mu.Unlock()

	return nil
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
