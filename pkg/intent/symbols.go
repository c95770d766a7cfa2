package intent

import (
	"fmt"
	"strings"
)

// Lifecycle symbols used by the reaction sequence.
const (
	SymbolReceived  = "👀"
	SymbolThinking  = "🤔"
	SymbolCompleted = "✅"
	SymbolError     = "👎"
	SymbolFallback  = "👍"
)

type symbolInfo struct {
	Symbol      string
	Description string
}

// validSymbols is the fixed set of reactions the chat transport accepts, in
// the order they are offered to the classification model.
var validSymbols = []symbolInfo{
	{"👍", "approval, agreement, acknowledged"},
	{"👎", "disagreement, failure"},
	{"❤", "love, warm appreciation"},
	{"🔥", "exciting, impressive, hot topic"},
	{"🥰", "affection, adorable"},
	{"👏", "applause, well done"},
	{"😁", "happy, friendly small talk"},
	{"🤔", "thinking, a question to consider"},
	{"🤯", "mind-blowing, complex"},
	{"😱", "shock, alarming"},
	{"😢", "sad, sympathy"},
	{"🎉", "celebration, milestone"},
	{"🤩", "amazed, star-struck"},
	{"🙏", "request, gratitude, please"},
	{"👌", "ok, fine, understood"},
	{"🕊", "peace, calm"},
	{"🥱", "boring, tired"},
	{"😍", "delighted, beautiful"},
	{"🐳", "playful, whale"},
	{"💯", "perfect, fully working, health check"},
	{"🤣", "very funny, joke"},
	{"⚡", "fast action, energy, building something"},
	{"🏆", "achievement, winner"},
	{"🤨", "skeptical, unclear"},
	{"😐", "neutral"},
	{"🍾", "launch, release"},
	{"😴", "sleepy, idle"},
	{"🤓", "nerdy, technical deep dive"},
	{"👻", "spooky, ghost"},
	{"👨‍💻", "coding, development, project work"},
	{"👀", "looking, reading, received"},
	{"🙈", "embarrassed"},
	{"😇", "innocent, kind"},
	{"🤝", "deal, collaboration"},
	{"✍", "writing, note taking"},
	{"🤗", "hug, welcome"},
	{"🫡", "salute, on it"},
	{"🆒", "cool"},
	{"🦄", "unique, creative"},
	{"😎", "confident, cool"},
	{"👾", "gaming, retro"},
	{"🤷", "unsure, shrug"},
	{"✅", "completed successfully"},
	{"🎨", "art, image creation"},
	{"🌐", "web, internet search"},
	{"🔍", "searching, investigating"},
	{"🔗", "link, url"},
}

var validSymbolSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(validSymbols))
	for _, info := range validSymbols {
		set[info.Symbol] = struct{}{}
	}
	return set
}()

var defaultSymbols = map[Intent]string{
	CasualChat:      "😁",
	QuestionAnswer:  "🤔",
	ProjectQuery:    "👨‍💻",
	DevelopmentTask: "⚡",
	ImageGeneration: "🎨",
	ImageAnalysis:   "👀",
	WebSearch:       "🌐",
	LinkAnalysis:    "🔗",
	SystemHealth:    "💯",
	Unclear:         "🤨",
}

// IsValidSymbol reports whether symbol is in the transport-accepted set.
func IsValidSymbol(symbol string) bool {
	_, ok := validSymbolSet[normalizeSymbol(symbol)]
	return ok
}

// ValidSymbols returns the accepted symbols in offer order.
func ValidSymbols() []string {
	out := make([]string, 0, len(validSymbols))
	for _, info := range validSymbols {
		out = append(out, info.Symbol)
	}
	return out
}

// DefaultSymbol returns the configured symbol for an intent, already validated.
func DefaultSymbol(i Intent) string {
	if symbol, ok := defaultSymbols[i]; ok && IsValidSymbol(symbol) {
		return symbol
	}

	return SymbolFallback
}

// ResolveSymbol returns candidate when it is valid, otherwise the intent
// default, otherwise the universal fallback.
func ResolveSymbol(candidate string, i Intent) string {
	if normalized := normalizeSymbol(candidate); IsValidSymbol(normalized) {
		return normalized
	}

	return DefaultSymbol(i)
}

func normalizeSymbol(symbol string) string {
	// Models often append the emoji presentation selector.
	return strings.TrimSuffix(strings.TrimSpace(symbol), "\ufe0f")
}

func symbolCatalog() string {
	var b strings.Builder
	for _, info := range validSymbols {
		fmt.Fprintf(&b, "%s - %s\n", info.Symbol, info.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}
