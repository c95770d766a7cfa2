package logger

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const DefaultPreviewWidth = 80

// Preview collapses whitespace and truncates text to width terminal cells,
// so wide scripts and emoji never overflow a log column.
func Preview(text string, width int) string {
	if width <= 0 {
		width = DefaultPreviewWidth
	}

	text = strings.Join(strings.Fields(text), " ")
	return runewidth.Truncate(text, width, "…")
}
