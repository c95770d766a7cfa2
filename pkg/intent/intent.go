package intent

import (
	"math"
	"strings"
)

// Intent is the closed set of message categories the bot routes on.
type Intent string

const (
	CasualChat      Intent = "casual_chat"
	QuestionAnswer  Intent = "question_answer"
	ProjectQuery    Intent = "project_query"
	DevelopmentTask Intent = "development_task"
	ImageGeneration Intent = "image_generation"
	ImageAnalysis   Intent = "image_analysis"
	WebSearch       Intent = "web_search"
	LinkAnalysis    Intent = "link_analysis"
	SystemHealth    Intent = "system_health"
	Unclear         Intent = "unclear"
)

// HighConfidenceThreshold is the inclusive lower bound for IsHighConfidence.
const HighConfidenceThreshold = 0.7

var allIntents = []Intent{
	CasualChat,
	QuestionAnswer,
	ProjectQuery,
	DevelopmentTask,
	ImageGeneration,
	ImageAnalysis,
	WebSearch,
	LinkAnalysis,
	SystemHealth,
	Unclear,
}

var intentDescriptions = map[Intent]string{
	CasualChat:      "General conversation, greetings, small talk",
	QuestionAnswer:  "Factual questions, explanations, how-to requests",
	ProjectQuery:    "Questions about tracked projects, tasks, status or priorities",
	DevelopmentTask: "Coding, debugging, refactoring, deployment or other engineering work",
	ImageGeneration: "Requests to create, draw or generate an image",
	ImageAnalysis:   "Messages with an image that should be described or analyzed",
	WebSearch:       "Requests for current events, news or other up-to-date information",
	LinkAnalysis:    "Messages sharing a URL that should be summarized or saved",
	SystemHealth:    "Health checks and bot status probes such as ping",
	Unclear:         "Intent cannot be determined",
}

// Intents returns every intent in declaration order.
func Intents() []Intent {
	out := make([]Intent, len(allIntents))
	copy(out, allIntents)
	return out
}

// Description returns the one-line description used in classification prompts.
func (i Intent) Description() string {
	if description, ok := intentDescriptions[i]; ok {
		return description
	}

	return intentDescriptions[Unclear]
}

// Valid reports whether i is a member of the closed intent set.
func (i Intent) Valid() bool {
	_, ok := intentDescriptions[i]
	return ok
}

func (i Intent) String() string {
	return string(i)
}

// ParseIntent maps a model-provided label onto the closed set.
// Unknown labels map to Unclear.
func ParseIntent(raw string) Intent {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)

	candidate := Intent(normalized)
	if candidate.Valid() {
		return candidate
	}

	return Unclear
}

// Classification is the immutable result of classifying one message.
type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Symbol     string  `json:"emoji"`
}

// IsHighConfidence reports whether the classification can be trusted without hedging.
func (c Classification) IsHighConfidence() bool {
	return c.Confidence >= HighConfidenceThreshold
}

// ClassifyContext carries lightweight message facts that sharpen classification.
type ClassifyContext struct {
	HasImage    bool
	HasLinks    bool
	IsGroupChat bool
}

func clampConfidence(value float64) float64 {
	switch {
	case math.IsNaN(value):
		return defaultConfidence
	case value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}
