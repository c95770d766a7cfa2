package router

import (
	"fmt"
	"regexp"
	"strings"

	"valorbot/pkg/history"
	"valorbot/pkg/intent"
)

const maxHistoryLineRunes = 500

var (
	priorityPattern = regexp.MustCompile(`(?i)\b(projects?|status|priorit(y|ies)|roadmap|deadlines?|milestones?|tasks?|what should i work on)\b`)

	mixedMarkerPattern = regexp.MustCompile(`(?i)\[(image\s*(\+|and|with)\s*text|text\s*(\+|and|with)\s*image|mixed content)\]`)
	imagePhrasePattern = regexp.MustCompile(`(?i)\[image\]|\b(this|the|attached)\s+(image|photo|picture|screenshot)\b`)
	textPhrasePattern  = regexp.MustCompile(`(?i)\b(the\s+text|caption|it\s+says|written|read\s+(this|it))\b`)
)

// isPriorityQuestion flags messages that should carry project data.
func isPriorityQuestion(text string, c intent.Classification) bool {
	return c.Intent == intent.ProjectQuery || priorityPattern.MatchString(text)
}

// isMixedContent reports image+text markers, explicit or phrase-based.
func isMixedContent(text string) bool {
	if mixedMarkerPattern.MatchString(text) {
		return true
	}
	return imagePhrasePattern.MatchString(text) && textPhrasePattern.MatchString(text)
}

func formatHistory(entries []history.Entry) string {
	if len(entries) == 0 {
		return ""
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		content := strings.TrimSpace(entry.Content)
		if runeLen(content) > maxHistoryLineRunes {
			content = string([]rune(content)[:maxHistoryLineRunes]) + "…"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", entry.Role, content))
	}
	return strings.Join(lines, "\n")
}

// enhancedInput is everything prepended to the user's text.
type enhancedInput struct {
	classification *intent.Classification
	history        string
	projectData    string
	text           string
	hasImage       bool
}

// buildEnhancedMessage orders the sections as: intent, conversation, project
// data, current message.
func buildEnhancedMessage(in enhancedInput) string {
	var sections []string

	if c := in.classification; c != nil {
		sections = append(sections, fmt.Sprintf("[Intent: %s (confidence %.2f)]", c.Intent, c.Confidence))
	}
	if in.history != "" {
		sections = append(sections, "Recent conversation:\n"+in.history)
	}
	if in.projectData != "" {
		sections = append(sections, "Project data:\n"+strings.TrimSpace(in.projectData))
	}

	text := in.text
	if in.hasImage {
		text = strings.TrimSpace("[Image] " + text)
	}
	if isMixedContent(text) {
		sections = append(sections, "Current message (mixed content: image + text):\n"+text)
	} else {
		sections = append(sections, "Current message:\n"+text)
	}

	return strings.Join(sections, "\n\n")
}
