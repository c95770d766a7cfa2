// Package provider selects the conversational agent backend.
package provider

import (
	"fmt"
	"log/slog"
	"strings"

	core "charm.land/fantasy"

	"valorbot/pkg/agent"
	"valorbot/pkg/config"
	providerfantasy "valorbot/pkg/provider/fantasy"
	provideropenai "valorbot/pkg/provider/openai"
	"valorbot/pkg/provider/opencode"
)

const DefaultProvider = "fantasy"

// New builds the configured agent. Only the fantasy backend runs local tools.
func New(cfg *config.Config, tools []core.AgentTool) (agent.Agent, error) {
	providerID := strings.TrimSpace(cfg.Agent.Provider)
	if providerID == "" {
		providerID = DefaultProvider
	}

	slog.Default().With("component", "provider.factory").Debug("Resolving agent backend", "provider", providerID, "tools", len(tools))

	switch providerID {
	case "fantasy":
		return providerfantasy.New(cfg, tools)
	case "openai":
		return provideropenai.New(cfg)
	case "opencode":
		return opencode.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerID)
	}
}
