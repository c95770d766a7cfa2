package intent

import (
	"fmt"
	"strings"
)

const systemInstruction = "You classify chat messages for a Telegram assistant. Respond with a single JSON object and nothing else."

// BuildPrompt renders the classification prompt shared by every model tier.
func BuildPrompt(message string, ctx ClassifyContext) string {
	var b strings.Builder

	b.WriteString("Classify the intent of this chat message.\n\n")
	fmt.Fprintf(&b, "Message: %q\n", strings.TrimSpace(message))

	var notes []string
	if ctx.HasImage {
		notes = append(notes, "[Message contains an image]")
	}
	if ctx.HasLinks {
		notes = append(notes, "[Message contains links]")
	}
	if ctx.IsGroupChat {
		notes = append(notes, "[Message is from a group chat]")
	}
	if len(notes) > 0 {
		b.WriteString(strings.Join(notes, "\n"))
		b.WriteString("\n")
	}

	b.WriteString("\nIntent categories:\n")
	for _, i := range Intents() {
		fmt.Fprintf(&b, "- %s: %s\n", i, i.Description())
	}

	b.WriteString("\nPick the emoji reaction only from this list:\n")
	b.WriteString(symbolCatalog())
	b.WriteString("\n\n")

	b.WriteString(`Respond with JSON only:
{"intent": "<category>", "confidence": <0.0-1.0>, "reasoning": "<short explanation>", "emoji": "<one emoji from the list>"}`)

	return b.String()
}
