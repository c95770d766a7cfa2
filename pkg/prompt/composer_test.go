package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"valorbot/pkg/intent"
)

func newComposer(t *testing.T) *Composer {
	t.Helper()

	c, err := NewComposer()
	require.NoError(t, err)
	return c
}

func TestComposeSectionsInOrder(t *testing.T) {
	t.Parallel()

	c := newComposer(t)
	out := c.Compose(intent.Classification{
		Intent:     intent.WebSearch,
		Confidence: 0.876,
		Reasoning:  "asks for news",
	}, &Context{IsGroupChat: true, Username: "alice", ChatID: -100, HasLinks: true})

	order := []string{"# Identity", "# Personality", "## Message classification", "## Guidance", "## Context", "## Instructions"}
	last := -1
	for _, heading := range order {
		idx := strings.Index(out, heading)
		require.Greater(t, idx, last, "heading %q out of order", heading)
		last = idx
	}

	require.Contains(t, out, "Confidence: 0.88")
	require.Contains(t, out, "Reasoning: asks for news")
	require.Contains(t, out, "- Chat: group chat")
	require.Contains(t, out, "- User: @alice")
	require.Contains(t, out, "- Chat ID: -100")
	require.Contains(t, out, "- The message contains links")
	require.NotContains(t, out, "contains an image")
	require.Contains(t, out, "Search before answering.")
}

func TestComposeOmitsEmptyContext(t *testing.T) {
	t.Parallel()

	c := newComposer(t)
	classification := intent.Classification{Intent: intent.CasualChat, Confidence: 0.5}

	require.NotContains(t, c.Compose(classification, nil), "## Context")
	require.NotContains(t, c.Compose(classification, &Context{}), "## Context")
	require.Contains(t, c.Compose(classification, &Context{HasImage: true}), "- Chat: direct message")
}

func TestComposeIsDeterministic(t *testing.T) {
	t.Parallel()

	c := newComposer(t)
	classification := intent.Classification{Intent: intent.ProjectQuery, Confidence: 0.7, Reasoning: "x"}
	ctx := &Context{Username: "bob", ChatID: 1}

	require.Equal(t, c.Compose(classification, ctx), c.Compose(classification, ctx))
}

func TestUnknownIntentUsesUnclearGuidance(t *testing.T) {
	t.Parallel()

	c := newComposer(t)
	out := c.Compose(intent.Classification{Intent: intent.Intent("weather")}, nil)

	require.Contains(t, out, "Focus: "+guidance[intent.Unclear].Focus)
	require.NotContains(t, out, "## Instructions")
	require.Contains(t, out, "Intent: weather")
}

func TestEveryIntentHasTables(t *testing.T) {
	t.Parallel()

	for _, i := range intent.Intents() {
		require.Contains(t, guidance, i)
		require.NotEmpty(t, instructions[i], "intent %s", i)
	}
}

func TestBaseAndCustomBlocks(t *testing.T) {
	t.Parallel()

	c := newComposer(t)
	require.True(t, strings.HasPrefix(c.Base(), "# Identity"))

	custom, err := NewComposerWith("I am a test bot.", "Calm.")
	require.NoError(t, err)
	require.Equal(t, "I am a test bot.\n\nCalm.", custom.Base())

	_, err = NewComposerWith(" ", "Calm.")
	require.Error(t, err)
}
