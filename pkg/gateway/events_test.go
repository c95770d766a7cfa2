package gateway

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"valorbot/pkg/bus"
)

func TestLogEventLevels(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	log := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	logEvent(log, bus.Event{Type: bus.EventMessageFailed, At: at, ChatID: 7, Error: "send failed"})
	logEvent(log, bus.Event{Type: bus.EventMessageResponded, At: at, ChatID: 7, Payload: map[string]string{"reply": "text"}})
	logEvent(log, bus.Event{Type: bus.EventReactionUpdated, At: at, ChatID: 7})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d log lines, want 3:\n%s", len(lines), out.String())
	}

	checks := []struct {
		level string
		want  string
	}{
		{level: "level=ERROR", want: `error="send failed"`},
		{level: "level=INFO", want: "payload=map[reply:text]"},
		{level: "level=DEBUG", want: "event_type=reaction_updated"},
	}
	for i, check := range checks {
		if !strings.Contains(lines[i], check.level) || !strings.Contains(lines[i], check.want) {
			t.Fatalf("line %d = %q, want %s and %s", i, lines[i], check.level, check.want)
		}
	}
}
