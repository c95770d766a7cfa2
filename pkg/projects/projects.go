// Package projects supplies externally tracked project status for prompts.
package projects

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

const defaultMaxBytes = 8 << 10

// ErrNotConfigured is returned by sources without a backing file.
var ErrNotConfigured = errors.New("project data source is not configured")

// Source returns a plain-text summary of tracked work.
type Source interface {
	Summary(ctx context.Context) (string, error)
}

// FileSource reads the summary from a file on every call so edits are picked
// up without a restart.
type FileSource struct {
	Path     string
	MaxBytes int
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: strings.TrimSpace(path), MaxBytes: defaultMaxBytes}
}

func (s *FileSource) Summary(ctx context.Context) (string, error) {
	if s == nil || s.Path == "" {
		return "", ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	content, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("read project data: %w", err)
	}

	text := strings.TrimSpace(string(content))
	limit := s.MaxBytes
	if limit <= 0 {
		limit = defaultMaxBytes
	}
	if len(text) > limit {
		text = truncateUTF8(text, limit) + "\n…"
	}
	return text, nil
}

// IsErrorText reports whether a summary is itself an error report and should
// not be shown to the model as data.
func IsErrorText(text string) bool {
	text = strings.TrimSpace(text)
	return text == "" || strings.HasPrefix(text, "Error") || strings.HasPrefix(text, "❌")
}

func truncateUTF8(s string, limit int) string {
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
