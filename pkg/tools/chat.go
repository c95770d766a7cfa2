package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"valorbot/pkg/agent"
	"valorbot/pkg/history"
	"valorbot/pkg/projects"
)

const (
	defaultHistoryResults = 5
	maxHistoryResults     = 20
)

type currentTimeInput struct {
	Timezone string `json:"timezone,omitempty" description:"IANA time zone such as Europe/Berlin. Defaults to UTC."`
}

type systemHealthInput struct{}

type searchHistoryInput struct {
	Query string `json:"query" description:"Text to look for in earlier messages of this chat."`
	Limit int    `json:"limit,omitempty" description:"Maximum number of messages to return (default 5, max 20)."`
}

type queryProjectsInput struct{}

func currentTime(now func() time.Time) func(context.Context, currentTimeInput) (string, error) {
	return func(_ context.Context, input currentTimeInput) (string, error) {
		zone := strings.TrimSpace(input.Timezone)
		if zone == "" {
			zone = "UTC"
		}

		location, err := time.LoadLocation(zone)
		if err != nil {
			return "", newError(ErrorInvalidInput, "unknown time zone %q", zone)
		}

		current := now().In(location)
		return fmt.Sprintf("%s (%s, %s)", current.Format(time.RFC3339), current.Weekday(), zone), nil
	}
}

func systemHealth(reporter HealthReporter) func(context.Context, systemHealthInput) (string, error) {
	return func(context.Context, systemHealthInput) (string, error) {
		if reporter == nil {
			return "", newError(ErrorNotConfigured, "health reporting is not available")
		}
		return reporter.HealthReport(), nil
	}
}

func searchHistory(store history.Store) func(context.Context, searchHistoryInput) (string, error) {
	return func(ctx context.Context, input searchHistoryInput) (string, error) {
		if store == nil {
			return "", newError(ErrorNotConfigured, "chat history is not available")
		}

		query := strings.TrimSpace(input.Query)
		if query == "" {
			return "", newError(ErrorInvalidInput, "query must not be empty")
		}

		chatID, ok := agent.ChatIDFromContext(ctx)
		if !ok {
			return "", newError(ErrorNotConfigured, "no chat is associated with this request")
		}

		limit := input.Limit
		if limit <= 0 {
			limit = defaultHistoryResults
		}
		if limit > maxHistoryResults {
			limit = maxHistoryResults
		}

		entries, err := store.Search(ctx, chatID, query, limit)
		if err != nil {
			return "", fmt.Errorf("search chat history: %w", err)
		}
		if len(entries) == 0 {
			return fmt.Sprintf("No earlier messages mention %q.", query), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Found %d message(s):", len(entries))
		for _, entry := range entries {
			fmt.Fprintf(&b, "\n[%s] %s: %s", entry.At.UTC().Format("2006-01-02 15:04"), entry.Role, entry.Content)
		}
		return b.String(), nil
	}
}

func queryProjects(source projects.Source) func(context.Context, queryProjectsInput) (string, error) {
	return func(ctx context.Context, _ queryProjectsInput) (string, error) {
		if source == nil {
			return "", newError(ErrorNotConfigured, "project data is not configured")
		}

		summary, err := source.Summary(ctx)
		if err != nil {
			return "", fmt.Errorf("read project data: %w", err)
		}
		if projects.IsErrorText(summary) {
			return "", newError(ErrorUpstream, "project data unavailable: %s", strings.TrimSpace(summary))
		}

		return summary, nil
	}
}
