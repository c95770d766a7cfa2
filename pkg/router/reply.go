package router

import (
	"strings"

	"github.com/rivo/uniseg"

	"valorbot/pkg/agent"
	"valorbot/pkg/toolpolicy"
	"valorbot/pkg/tools"
)

const (
	// MaxMessageLength is the per-message ceiling for outbound text.
	MaxMessageLength = 4000
	maxCaptionLength = 1024

	fallbackResponse = "I'm not sure how to respond to that. Could you rephrase?"
	apologyPrefix    = "I encountered an error processing your message: "
)

// Reply is what the router sends back: a TextReply or an ImageReply.
type Reply interface {
	isReply()
}

type TextReply struct {
	Text string
}

type ImageReply struct {
	Path    string
	Caption string
}

func (TextReply) isReply()  {}
func (ImageReply) isReply() {}

// ParseReply recognises the generated-image sentinel
// TELEGRAM_IMAGE_GENERATED|path|caption. Anything else is text.
func ParseReply(output string) Reply {
	trimmed := strings.TrimSpace(output)
	if !strings.HasPrefix(trimmed, tools.ImageMarker+"|") {
		return TextReply{Text: output}
	}

	parts := strings.SplitN(trimmed, "|", 3)
	path := strings.TrimSpace(parts[1])
	if path == "" {
		return TextReply{Text: output}
	}

	caption := ""
	if len(parts) == 3 {
		caption = strings.TrimSpace(parts[2])
	}
	return ImageReply{Path: path, Caption: caption}
}

// buildReply turns the agent result into a reply. A generated image found in
// the tool trace is attached even when the model answered in prose.
func buildReply(result agent.Result) Reply {
	if reply, ok := ParseReply(result.Output).(ImageReply); ok {
		return reply
	}

	output := strings.TrimSpace(result.Output)
	for i := len(result.ToolCalls) - 1; i >= 0; i-- {
		call := result.ToolCalls[i]
		if call.Name != toolpolicy.ToolGenerateImage || call.IsError {
			continue
		}
		image, ok := ParseReply(call.Output).(ImageReply)
		if !ok {
			continue
		}
		if output != "" && runeLen(output) <= maxCaptionLength {
			image.Caption = output
		}
		return image
	}

	if output == "" {
		return TextReply{Text: fallbackResponse}
	}
	if summary := actionsSummary(result.ToolCalls); summary != "" {
		output = summary + "\n\n" + output
	}
	return TextReply{Text: output}
}

var toolLabels = map[string]string{
	toolpolicy.ToolCurrentTime:   "checked the time",
	toolpolicy.ToolSystemHealth:  "checked system health",
	toolpolicy.ToolFetchLink:     "read a link",
	toolpolicy.ToolSearchWeb:     "searched the web",
	toolpolicy.ToolSearchHistory: "searched chat history",
	toolpolicy.ToolQueryProjects: "looked up projects",
	toolpolicy.ToolGenerateImage: "generated an image",
}

// actionsSummary renders "Actions: …" for the distinct tools used, in order.
func actionsSummary(calls []agent.ToolCall) string {
	seen := make(map[string]bool, len(calls))
	var labels []string
	for _, call := range calls {
		if call.Name == "" || seen[call.Name] {
			continue
		}
		seen[call.Name] = true

		label, ok := toolLabels[call.Name]
		if !ok {
			label = "used " + call.Name
		}
		labels = append(labels, label)
	}
	if len(labels) == 0 {
		return ""
	}
	return "Actions: " + strings.Join(labels, ", ")
}

// SplitText cuts text into chunks of at most limit characters without
// splitting grapheme clusters. A chunk prefers to end at the last line break
// or space in its second half.
func SplitText(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}
	if runeLen(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	count := 0
	breakAt, breakCount := -1, 0

	flush := func(rest string) {
		if chunk := strings.TrimRight(current.String(), " \n"); chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
		current.WriteString(rest)
		count = runeLen(rest)
		breakAt, breakCount = -1, 0
	}

	graphemes := uniseg.NewGraphemes(text)
	for graphemes.Next() {
		cluster := graphemes.Str()
		n := runeLen(cluster)

		if count+n > limit && count > 0 {
			if breakAt > 0 && breakCount >= limit/2 {
				chunk := current.String()
				current.Reset()
				current.WriteString(chunk[:breakAt])
				flush(chunk[breakAt:])
			} else {
				flush("")
			}
		}

		current.WriteString(cluster)
		count += n
		if cluster == " " || cluster == "\n" {
			breakAt, breakCount = current.Len(), count
		}
	}
	flush("")

	return chunks
}
