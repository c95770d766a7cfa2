package logger

import (
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestPreviewCollapsesWhitespace(t *testing.T) {
	if got := Preview("hello\n\n  world", 0); got != "hello world" {
		t.Fatalf("Preview = %q, want %q", got, "hello world")
	}
}

func TestPreviewTruncatesByDisplayWidth(t *testing.T) {
	got := Preview("日本語のメッセージです", 10)
	if w := runewidth.StringWidth(got); w > 10 {
		t.Fatalf("width = %d, want <= 10 (%q)", w, got)
	}
	if got[len(got)-len("…"):] != "…" {
		t.Fatalf("expected ellipsis suffix, got %q", got)
	}
}
