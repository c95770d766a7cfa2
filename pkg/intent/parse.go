package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	defaultConfidence = 0.5
	defaultReasoning  = "Classified by AI"
)

// ErrParse marks a model response that does not contain a usable classification.
var ErrParse = errors.New("unparseable classification")

type modelPayload struct {
	Intent     *string         `json:"intent"`
	Confidence json.RawMessage `json:"confidence"`
	Reasoning  *string         `json:"reasoning"`
	Emoji      *string         `json:"emoji"`
}

// ParseResponse decodes a raw model response into a Classification.
// The JSON object may be wrapped in prose or markdown fences.
func ParseResponse(raw string) (Classification, error) {
	object, ok := extractJSONObject(raw)
	if !ok {
		return Classification{}, fmt.Errorf("%w: no json object in response", ErrParse)
	}

	var payload modelPayload
	if err := json.Unmarshal([]byte(object), &payload); err != nil {
		return Classification{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if payload.Intent == nil || strings.TrimSpace(*payload.Intent) == "" {
		return Classification{}, fmt.Errorf("%w: missing intent", ErrParse)
	}

	result := Classification{
		Intent:     ParseIntent(*payload.Intent),
		Confidence: parseConfidence(payload.Confidence),
		Reasoning:  defaultReasoning,
	}
	if payload.Reasoning != nil && strings.TrimSpace(*payload.Reasoning) != "" {
		result.Reasoning = strings.TrimSpace(*payload.Reasoning)
	}

	candidate := ""
	if payload.Emoji != nil {
		candidate = *payload.Emoji
	}
	result.Symbol = ResolveSymbol(candidate, result.Intent)

	return result, nil
}

func parseConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return defaultConfidence
	}

	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return clampConfidence(number)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		var parsed float64
		if _, err := fmt.Sscanf(strings.TrimSpace(text), "%g", &parsed); err == nil {
			return clampConfidence(parsed)
		}
	}

	return defaultConfidence
}

// extractJSONObject returns the first balanced {...} block in text.
func extractJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		if end, ok := matchBrace(text, start); ok {
			return text[start : end+1], true
		}

		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	return "", false
}

func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}

	return 0, false
}
