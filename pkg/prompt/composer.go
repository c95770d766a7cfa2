// Package prompt renders intent-shaped system instructions for the agent.
package prompt

import (
	"embed"
	"fmt"
	"strconv"
	"strings"

	"valorbot/pkg/intent"
)

//go:embed templates/*.md
var templatesFS embed.FS

const (
	identityTemplate    = "identity"
	personalityTemplate = "personality"
)

// Context carries the message facts rendered into the context block.
type Context struct {
	IsGroupChat bool
	Username    string
	ChatID      int64
	HasImage    bool
	HasLinks    bool
}

func (c *Context) empty() bool {
	return c == nil || *c == Context{}
}

// Composer builds system prompts. It is read-only after construction.
type Composer struct {
	identity    string
	personality string
}

// NewComposer loads the embedded identity and personality templates.
func NewComposer() (*Composer, error) {
	identity, err := loadTemplate(identityTemplate)
	if err != nil {
		return nil, err
	}
	personality, err := loadTemplate(personalityTemplate)
	if err != nil {
		return nil, err
	}

	return &Composer{identity: identity, personality: personality}, nil
}

// NewComposerWith uses caller-supplied blocks, e.g. from a configured file.
func NewComposerWith(identity string, personality string) (*Composer, error) {
	identity = strings.TrimSpace(identity)
	personality = strings.TrimSpace(personality)
	if identity == "" || personality == "" {
		return nil, fmt.Errorf("identity and personality blocks are required")
	}

	return &Composer{identity: identity, personality: personality}, nil
}

// Base is the intent-agnostic system prompt.
func (c *Composer) Base() string {
	return c.identity + "\n\n" + c.personality
}

// Compose renders the full prompt for one classified message.
func (c *Composer) Compose(classification intent.Classification, ctx *Context) string {
	sections := []string{
		c.identity,
		c.personality,
		summarySection(classification),
		guidanceSection(classification.Intent),
	}
	if !ctx.empty() {
		sections = append(sections, contextSection(ctx))
	}
	if instructions := instructionsSection(classification.Intent); instructions != "" {
		sections = append(sections, instructions)
	}

	return strings.Join(sections, "\n\n")
}

func summarySection(c intent.Classification) string {
	reasoning := strings.TrimSpace(c.Reasoning)
	if reasoning == "" {
		reasoning = "none given"
	}

	var b strings.Builder
	b.WriteString("## Message classification\n")
	b.WriteString("Intent: " + string(c.Intent) + "\n")
	b.WriteString("Confidence: " + strconv.FormatFloat(c.Confidence, 'f', 2, 64) + "\n")
	b.WriteString("Reasoning: " + reasoning)
	return b.String()
}

func guidanceSection(i intent.Intent) string {
	g, ok := guidance[i]
	if !ok {
		g = guidance[intent.Unclear]
	}

	var b strings.Builder
	b.WriteString("## Guidance\n")
	b.WriteString("Focus: " + g.Focus + "\n")
	b.WriteString("Communication style: " + g.Style + "\n")
	b.WriteString("Tool usage: " + g.ToolUsage + "\n")
	b.WriteString("Specific guidance: " + g.Specific)
	return b.String()
}

func contextSection(ctx *Context) string {
	lines := []string{"## Context"}
	if ctx.IsGroupChat {
		lines = append(lines, "- Chat: group chat, other people can read your reply")
	} else {
		lines = append(lines, "- Chat: direct message")
	}
	if ctx.Username != "" {
		lines = append(lines, "- User: @"+strings.TrimPrefix(ctx.Username, "@"))
	}
	if ctx.ChatID != 0 {
		lines = append(lines, "- Chat ID: "+strconv.FormatInt(ctx.ChatID, 10))
	}
	if ctx.HasImage {
		lines = append(lines, "- The message contains an image")
	}
	if ctx.HasLinks {
		lines = append(lines, "- The message contains links")
	}
	return strings.Join(lines, "\n")
}

func instructionsSection(i intent.Intent) string {
	items, ok := instructions[i]
	if !ok || len(items) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Instructions")
	for _, item := range items {
		b.WriteString("\n- " + item)
	}
	return b.String()
}

func loadTemplate(name string) (string, error) {
	content, err := templatesFS.ReadFile("templates/" + name + ".md")
	if err != nil {
		return "", fmt.Errorf("load %s template: %w", name, err)
	}

	text := strings.TrimSpace(string(content))
	if text == "" {
		return "", fmt.Errorf("template %q is empty", name)
	}
	return text, nil
}
