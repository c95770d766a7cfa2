package intent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyByRulesPriorityOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		message    string
		ctx        ClassifyContext
		want       Intent
		confidence float64
	}{
		{name: "health exact", message: "  PING ", want: SystemHealth, confidence: 1.0},
		{name: "health with punctuation", message: "are you alive?", want: SystemHealth, confidence: 1.0},
		{name: "health only on exact match", message: "ping the server about the bug", want: DevelopmentTask, confidence: 0.7},
		{name: "image context", message: "what is this?", ctx: ClassifyContext{HasImage: true}, want: ImageAnalysis, confidence: 0.9},
		{name: "image marker", message: "[Image] check the chart", want: ImageAnalysis, confidence: 0.9},
		{name: "url beats keywords", message: "fix https://example.com/bug", want: LinkAnalysis, confidence: 0.9},
		{name: "www", message: "see www.example.com", want: LinkAnalysis, confidence: 0.9},
		{name: "image generation", message: "Generate an image of a sunset", want: ImageGeneration, confidence: 0.7},
		{name: "draw", message: "can you draw a fox?", want: ImageGeneration, confidence: 0.7},
		{name: "development", message: "please refactor the parser", want: DevelopmentTask, confidence: 0.7},
		{name: "project", message: "what's the deadline for the migration project", want: ProjectQuery, confidence: 0.7},
		{name: "web search", message: "latest news on the election", want: WebSearch, confidence: 0.6},
		{name: "question mark", message: "is it going to rain?", want: QuestionAnswer, confidence: 0.6},
		{name: "wh word", message: "tell me why the sky is blue", want: QuestionAnswer, confidence: 0.6},
		{name: "default", message: "hello friend", want: CasualChat, confidence: 0.5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ClassifyByRules(tc.message, tc.ctx)
			require.Equal(t, tc.want, got.Intent)
			require.Equal(t, tc.confidence, got.Confidence)
			require.Equal(t, DefaultSymbol(tc.want), got.Symbol)
		})
	}
}

func TestDefaultSymbolsAreValid(t *testing.T) {
	t.Parallel()

	for _, i := range Intents() {
		require.True(t, IsValidSymbol(DefaultSymbol(i)), i)
	}
	require.Equal(t, SymbolFallback, DefaultSymbol(Intent("not_a_real_intent")))
}

func TestResolveSymbolSubstitution(t *testing.T) {
	t.Parallel()

	require.Equal(t, "🔥", ResolveSymbol("🔥", CasualChat))
	require.Equal(t, "❤", ResolveSymbol("❤\ufe0f", CasualChat))
	require.Equal(t, DefaultSymbol(WebSearch), ResolveSymbol("🦖", WebSearch))
	require.Equal(t, DefaultSymbol(Unclear), ResolveSymbol("", Unclear))
	require.Equal(t, SymbolFallback, ResolveSymbol("nope", Intent("mystery")))

	for _, symbol := range []string{SymbolReceived, SymbolThinking, SymbolCompleted, SymbolError, SymbolFallback} {
		require.True(t, IsValidSymbol(symbol), symbol)
	}
}

func TestParseIntent(t *testing.T) {
	t.Parallel()

	require.Equal(t, ImageGeneration, ParseIntent(" Image_Generation "))
	require.Equal(t, WebSearch, ParseIntent("web-search"))
	require.Equal(t, DevelopmentTask, ParseIntent("development task"))
	require.Equal(t, Unclear, ParseIntent("weather_report"))
	require.Equal(t, Unclear, ParseIntent(""))
}

func TestIsHighConfidence(t *testing.T) {
	t.Parallel()

	require.True(t, Classification{Confidence: 0.7}.IsHighConfidence())
	require.False(t, Classification{Confidence: 0.69}.IsHighConfidence())
}
