package intent

import (
	"regexp"
	"strings"
)

type rule struct {
	intent     Intent
	confidence float64
	reasoning  string
	match      func(lower string, ctx ClassifyContext) bool
}

var healthPhrases = map[string]struct{}{
	"ping":          {},
	"status":        {},
	"health":        {},
	"health check":  {},
	"healthcheck":   {},
	"are you alive": {},
	"are you there": {},
	"you there":     {},
	"alive":         {},
}

var (
	imageMarkerPattern = regexp.MustCompile(`\[(image|photo|picture|img)[^\]]*\]|📷|🖼`)
	urlPattern         = regexp.MustCompile(`https?://|www\.`)
	imageGenPattern    = regexp.MustCompile(`\b(generate|create|make|render|produce|design)\s+(me\s+)?(an?\s+|the\s+|some\s+)?(image|picture|photo|drawing|illustration|logo|icon|artwork)s?\b|\b(draw|paint|sketch|illustrate)\b|\bdall-?e\b`)
	devPattern         = regexp.MustCompile(`\b(code|coding|bug|bugs|debug|fix|implement|refactor|deploy|deployment|function|api|compile|unit test|tests|pull request|commit|repo|repository|script|stack trace|error log|golang|python|javascript|typescript)\b`)
	projectPattern     = regexp.MustCompile(`\b(project|projects|task|tasks|deadline|deadlines|milestone|roadmap|sprint|backlog|priority|priorities|work on next|status of|notion|ticket|tickets)\b`)
	webSearchPattern   = regexp.MustCompile(`\b(current|currently|latest|news|today|recent|recently|right now|this week|weather|price of|stock price|trending|breaking)\b`)
	questionPattern    = regexp.MustCompile(`\b(what|why|when|where|who|whom|whose|which|how)\b`)
)

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{
		intent:     SystemHealth,
		confidence: 1.0,
		reasoning:  "Matched health-check phrase",
		match: func(lower string, _ ClassifyContext) bool {
			_, ok := healthPhrases[strings.Trim(lower, " ?!.")]
			return ok
		},
	},
	{
		intent:     ImageAnalysis,
		confidence: 0.9,
		reasoning:  "Message contains an image",
		match: func(lower string, ctx ClassifyContext) bool {
			return ctx.HasImage || imageMarkerPattern.MatchString(lower)
		},
	},
	{
		intent:     LinkAnalysis,
		confidence: 0.9,
		reasoning:  "Message contains a link",
		match: func(lower string, ctx ClassifyContext) bool {
			return ctx.HasLinks || urlPattern.MatchString(lower)
		},
	},
	{
		intent:     ImageGeneration,
		confidence: 0.7,
		reasoning:  "Matched image generation keywords",
		match:      matchPattern(imageGenPattern),
	},
	{
		intent:     DevelopmentTask,
		confidence: 0.7,
		reasoning:  "Matched development keywords",
		match:      matchPattern(devPattern),
	},
	{
		intent:     ProjectQuery,
		confidence: 0.7,
		reasoning:  "Matched project keywords",
		match:      matchPattern(projectPattern),
	},
	{
		intent:     WebSearch,
		confidence: 0.6,
		reasoning:  "Matched current-information keywords",
		match:      matchPattern(webSearchPattern),
	},
	{
		intent:     QuestionAnswer,
		confidence: 0.6,
		reasoning:  "Message is phrased as a question",
		match: func(lower string, _ ClassifyContext) bool {
			return strings.Contains(lower, "?") || questionPattern.MatchString(lower)
		},
	},
}

func matchPattern(pattern *regexp.Regexp) func(string, ClassifyContext) bool {
	return func(lower string, _ ClassifyContext) bool {
		return pattern.MatchString(lower)
	}
}

// ClassifyByRules is the deterministic last tier. It never fails.
func ClassifyByRules(message string, ctx ClassifyContext) Classification {
	lower := strings.ToLower(strings.TrimSpace(message))

	for _, r := range rules {
		if r.match(lower, ctx) {
			return Classification{
				Intent:     r.intent,
				Confidence: r.confidence,
				Reasoning:  "Rule-based: " + r.reasoning,
				Symbol:     DefaultSymbol(r.intent),
			}
		}
	}

	return Classification{
		Intent:     CasualChat,
		Confidence: 0.5,
		Reasoning:  "Rule-based: default to casual chat",
		Symbol:     DefaultSymbol(CasualChat),
	}
}
