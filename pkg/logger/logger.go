// Package logger builds the process-wide slog logger: colored text through
// charmbracelet/log for terminals, or one JSON object per line for log
// collectors.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"

	"valorbot/pkg/config"
)

const (
	formatText = "text"
	formatJSON = "json"

	envFormat    = "VALOR_LOG_FORMAT"
	envLevel     = "VALOR_LOG_LEVEL"
	envAddSource = "VALOR_LOG_ADD_SOURCE"
)

// LogEntry is the shape of one JSON log line. Pipeline identifiers are lifted
// out of Fields so collectors can index them.
type LogEntry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"timestamp"`
	Component string         `json:"component,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	ChatID    int64          `json:"chat_id,omitempty"`
	MessageID int64          `json:"message_id,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

type settings struct {
	format    string
	level     slog.Level
	addSource bool
}

// New returns a logger writing to stderr. Environment variables override cfg.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr)
}

func newWithWriter(cfg config.LoggingConfig, writer io.Writer) (*slog.Logger, error) {
	s, err := resolveSettings(cfg)
	if err != nil {
		return nil, err
	}

	if s.format == formatJSON {
		return slog.New(&jsonHandler{
			level:     s.level,
			addSource: s.addSource,
			writer:    writer,
			mu:        &sync.Mutex{},
		}), nil
	}

	return slog.New(charmLog.NewWithOptions(writer, charmLog.Options{
		Level:           charmLevel(s.level),
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		ReportCaller:    s.addSource,
		Formatter:       charmLog.TextFormatter,
	})), nil
}

func resolveSettings(cfg config.LoggingConfig) (settings, error) {
	s := settings{format: formatText, level: slog.LevelInfo, addSource: cfg.AddSource}

	format := firstSet(os.Getenv(envFormat), cfg.Format)
	switch format {
	case "", formatText:
	case formatJSON:
		s.format = formatJSON
	default:
		return settings{}, fmt.Errorf("unsupported log format %q", format)
	}

	if level := firstSet(os.Getenv(envLevel), cfg.Level); level != "" {
		if level == "warning" {
			level = "warn"
		}
		if err := s.level.UnmarshalText([]byte(level)); err != nil {
			return settings{}, fmt.Errorf("unsupported log level %q", level)
		}
	}

	if env := strings.TrimSpace(os.Getenv(envAddSource)); env != "" {
		s.addSource = slices.Contains([]string{"1", "true", "yes", "on"}, strings.ToLower(env))
	}

	return s, nil
}

func firstSet(values ...string) string {
	for _, value := range values {
		if value = strings.ToLower(strings.TrimSpace(value)); value != "" {
			return value
		}
	}
	return ""
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}

type jsonHandler struct {
	level     slog.Level
	addSource bool
	writer    io.Writer
	attrs     []slog.Attr
	groups    []string
	mu        *sync.Mutex
}

func (h *jsonHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *jsonHandler) Handle(_ context.Context, record slog.Record) error {
	at := record.Time
	if at.IsZero() {
		at = time.Now()
	}

	entry := LogEntry{
		Level:     strings.ToLower(record.Level.String()),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Message:   record.Message,
		Fields:    make(map[string]any),
	}

	for _, attr := range h.attrs {
		entry.add(h.groups, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		entry.add(h.groups, attr)
		return true
	})
	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}

	if h.addSource && record.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{record.PC}).Next()
		if frame.File != "" {
			entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(append(line, '\n'))
	return err
}

func (h *jsonHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(slices.Clone(h.attrs), attrs...)
	return &next
}

func (h *jsonHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(slices.Clone(h.groups), name)
	return &next
}

func (e *LogEntry) add(groups []string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + attr.Key
	}

	if e.promote(key, attr.Value) {
		return
	}
	e.Fields[key] = plainValue(attr.Value)
}

func (e *LogEntry) promote(key string, value slog.Value) bool {
	switch key {
	case "component":
		if value.Kind() == slog.KindString {
			e.Component = value.String()
			return true
		}
	case "request_id":
		if value.Kind() == slog.KindString {
			e.RequestID = value.String()
			return true
		}
	case "chat_id":
		if value.Kind() == slog.KindInt64 {
			e.ChatID = value.Int64()
			return true
		}
	case "message_id":
		if value.Kind() == slog.KindInt64 {
			e.MessageID = value.Int64()
			return true
		}
	}
	return false
}

func plainValue(value slog.Value) any {
	switch value.Kind() {
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := value.Group()
		out := make(map[string]any, len(group))
		for _, item := range group {
			out[item.Key] = plainValue(item.Value.Resolve())
		}
		return out
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			return err.Error()
		}
		return value.Any()
	default:
		return value.Any()
	}
}
