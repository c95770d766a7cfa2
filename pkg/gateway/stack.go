package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	core "charm.land/fantasy"

	"valorbot/pkg/agent"
	"valorbot/pkg/agent/profile"
	"valorbot/pkg/bus"
	"valorbot/pkg/channel"
	"valorbot/pkg/config"
	"valorbot/pkg/history"
	"valorbot/pkg/intent"
	"valorbot/pkg/media"
	"valorbot/pkg/projects"
	"valorbot/pkg/provider"
	"valorbot/pkg/reaction"
	"valorbot/pkg/router"
	"valorbot/pkg/toolpolicy"
	"valorbot/pkg/tools"
)

// Stack is the fully wired message pipeline for one transport.
type Stack struct {
	Router     *router.Router
	Reactions  *reaction.Sequencer
	Agent      agent.Agent
	Classifier *intent.Classifier
	Policy     *toolpolicy.Table
	History    history.Store
	Media      *media.Dir
	Bus        *bus.MessageBus
	Stats      *router.Stats
}

// StackOptions carries what the stack cannot read from config.
type StackOptions struct {
	Transport channel.Transport
	Bot       router.Identity
	Console   io.Writer
	Log       *slog.Logger
	// Agent replaces the configured backend, mainly for tests.
	Agent agent.Agent
}

// NewStack builds every collaborator from cfg. Close releases the history store.
func NewStack(ctx context.Context, cfg *config.Config, opts StackOptions) (*Stack, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	messageBus := bus.NewMessageBusWithBuffer(cfg.Gateway.QueueSize)
	stats := router.NewStats(nil)

	policy := toolpolicy.Default()
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("validate tool policy: %w", err)
	}

	composer, err := profile.LoadComposer(cfg.Agent.IdentityFile, cfg.Agent.PersonalityFile)
	if err != nil {
		return nil, err
	}

	store, err := newHistoryStore(ctx, cfg.History, log)
	if err != nil {
		return nil, err
	}

	mediaDir, err := media.NewDir(cfg.Tools.ImageDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("prepare image directory: %w", err)
	}

	projectSource := projects.NewFileSource(cfg.Projects.File)

	toolset := tools.Build(tools.Options{
		History:      store,
		Projects:     projectSource,
		Media:        mediaDir,
		Images:       newImageGenerator(cfg),
		Health:       stats,
		SearchURL:    cfg.Tools.SearchURL,
		FetchTimeout: time.Duration(cfg.Tools.FetchTimeoutSeconds) * time.Second,
	})

	ag := opts.Agent
	if ag == nil {
		ag, err = provider.New(cfg, toolset)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("initialize agent: %w", err)
		}
	}
	ag.SetSystemPrompt(profile.ResolveSystemProfile(cfg.Agent.Provider, composer))

	classifier := NewClassifier(cfg.Classifier, log)

	reactions := reaction.New(opts.Transport, reaction.Options{
		MaxTracked:   cfg.Reactions.MaxTracked,
		SettleDelay:  time.Duration(cfg.Reactions.SettleDelayMillis) * time.Millisecond,
		PerChatRate:  cfg.Reactions.PerChatRate,
		PerChatBurst: cfg.Reactions.PerChatBurst,
	}, messageBus, log)

	var toolNames []string
	if localToolsEnabled(cfg.Agent.Provider) {
		toolNames = toolNamesOf(toolset)
	}

	r, err := router.New(router.Deps{
		Classifier: classifier,
		Reactions:  reactions,
		Policy:     policy,
		Composer:   composer,
		Agent:      ag,
		Transport:  opts.Transport,
		History:    store,
		Projects:   projectSource,
		Events:     messageBus,
		Media:      mediaDir,
		Stats:      stats,
		Console:    opts.Console,
		Log:        log,
	}, router.Options{
		Bot:           opts.Bot,
		AllowedGroups: cfg.Telegram.AllowedGroups,
		AllowDMs:      cfg.Telegram.AllowDMs,
		AllowFrom:     cfg.Telegram.AllowFrom,
		HistoryQuery: history.Query{
			MaxMessages:       cfg.History.MaxContextMessages,
			MaxAge:            time.Duration(cfg.History.MaxAgeHours) * time.Hour,
			AlwaysIncludeLast: cfg.History.AlwaysIncludeLast,
		},
		Tools: toolNames,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Stack{
		Router:     r,
		Reactions:  reactions,
		Agent:      ag,
		Classifier: classifier,
		Policy:     policy,
		History:    store,
		Media:      mediaDir,
		Bus:        messageBus,
		Stats:      stats,
	}, nil
}

func (s *Stack) Close() {
	s.Bus.Close()
	s.History.Close()
}

func newHistoryStore(ctx context.Context, cfg config.HistoryConfig, log *slog.Logger) (history.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "memory":
		return history.NewMemoryStore(cfg.MemoryLimit), nil
	case "postgres":
		store, err := history.NewPostgresStore(ctx, history.PostgresConfig{URL: cfg.DatabaseURL}, log)
		if err != nil {
			return nil, fmt.Errorf("open chat history: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported history backend: %s", cfg.Backend)
	}
}

// NewClassifier wires the local and remote tiers from config. A disabled or
// unconfigured tier is left nil so the classifier skips it.
func NewClassifier(cfg config.ClassifierConfig, log *slog.Logger) *intent.Classifier {
	var primary, secondary intent.Model

	if cfg.Local.Enabled {
		primary = intent.NewLocalModel(intent.LocalConfig{
			BaseURL:        cfg.Local.URL,
			Model:          cfg.Local.Model,
			RequestTimeout: time.Duration(cfg.Local.RequestTimeoutSeconds) * time.Second,
		})
	}
	if cfg.Remote.Enabled {
		remote := intent.NewRemoteModel(intent.RemoteConfig{
			APIKey:         config.APIKey(cfg.Remote.APIKeyEnv),
			BaseURL:        cfg.Remote.BaseURL,
			Model:          cfg.Remote.Model,
			RequestTimeout: time.Duration(cfg.Remote.RequestTimeoutSeconds) * time.Second,
		})
		if remote != nil {
			secondary = remote
		}
	}

	retries := cfg.Local.Retries
	if retries == 0 {
		retries = -1
	}

	return intent.NewClassifier(primary, secondary, intent.Options{
		TierTimeout:    time.Duration(cfg.TierTimeoutSeconds) * time.Second,
		PrimaryRetries: retries,
		RetryDelay:     time.Duration(cfg.RetryDelayMillis) * time.Millisecond,
	}, log)
}

func newImageGenerator(cfg *config.Config) tools.ImageGenerator {
	images := tools.NewOpenAIImages(tools.OpenAIImagesConfig{
		APIKey:         config.APIKey(cfg.Providers.OpenAI.APIKeyEnv),
		BaseURL:        cfg.Providers.OpenAI.BaseURL,
		Model:          cfg.Tools.ImageModel,
		RequestTimeout: 2 * time.Minute,
	})
	if images == nil {
		return nil
	}
	return images
}

func localToolsEnabled(providerID string) bool {
	providerID = strings.TrimSpace(providerID)
	return providerID == "" || providerID == provider.DefaultProvider
}

func toolNamesOf(toolset []core.AgentTool) []string {
	names := make([]string, 0, len(toolset))
	for _, tool := range toolset {
		names = append(names, tool.Info().Name)
	}
	return names
}
