// Package media owns the directory generated images are written to and
// checks that outbound image paths stay inside it.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultDirName = ".valorbot/images"

// Dir is a resolved media directory.
type Dir struct {
	root string
}

// NewDir resolves path (expanding ~) and creates the directory when missing.
func NewDir(path string) (*Dir, error) {
	root, err := ResolveRoot(path)
	if err != nil {
		return nil, err
	}

	return &Dir{root: root}, nil
}

// ResolveRoot normalizes path input; an empty path means ~/.valorbot/images.
func ResolveRoot(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed = filepath.Join(homeDir, defaultDirName)
	}

	expanded, err := expandHome(trimmed)
	if err != nil {
		return "", err
	}

	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve absolute media path: %w", err)
	}

	cleanPath := filepath.Clean(absPath)
	if err := os.MkdirAll(cleanPath, 0o755); err != nil {
		return "", fmt.Errorf("create media directory: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(cleanPath)
	if err != nil {
		return "", normalizeIOError(err, "resolve media root")
	}

	return filepath.Clean(resolved), nil
}

func (d *Dir) Root() string {
	if d == nil {
		return ""
	}
	return d.root
}

// Save writes data under a fresh name with the given extension and returns
// the absolute path.
func (d *Dir) Save(prefix string, ext string, data []byte) (string, error) {
	if d == nil {
		return "", NewError(ErrorIO, "media directory is not configured")
	}
	if len(data) == 0 {
		return "", NewError(ErrorInvalidPath, "refusing to write empty file")
	}

	prefix = sanitizeName(prefix)
	if prefix == "" {
		prefix = "image"
	}
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "png"
	}

	name := fmt.Sprintf("%s-%s.%s", prefix, uuid.NewString(), ext)
	path := filepath.Join(d.root, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", normalizeIOError(err, "write media file")
	}

	return path, nil
}

// Contains resolves path and reports an error unless it names an existing
// file inside the directory. Symlinks are followed before the check.
func (d *Dir) Contains(path string) (string, error) {
	if d == nil {
		return "", NewError(ErrorIO, "media directory is not configured")
	}

	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", NewError(ErrorInvalidPath, "path must not be empty")
	}
	if !filepath.IsAbs(trimmed) {
		trimmed = filepath.Join(d.root, trimmed)
	}

	resolved, err := filepath.EvalSymlinks(filepath.Clean(trimmed))
	if err != nil {
		return "", normalizeIOError(err, "resolve media path")
	}
	if !isWithin(d.root, resolved) {
		return "", NewError(ErrorOutsideDir, "path escapes media directory")
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", normalizeIOError(err, "stat media path")
	}
	if info.IsDir() {
		return "", NewError(ErrorInvalidPath, "path is a directory")
	}

	return resolved, nil
}

// Prune removes regular files older than maxAge and returns how many went.
func (d *Dir) Prune(maxAge time.Duration, now time.Time) (int, error) {
	if d == nil || maxAge <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(d.root)
	if err != nil {
		return 0, normalizeIOError(err, "list media directory")
	}

	removed := 0
	cutoff := now.Add(-maxAge)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(d.root, entry.Name())); err == nil {
			removed++
		}
	}

	return removed, nil
}

// RelPath returns path relative to the root when it lies inside it.
func (d *Dir) RelPath(path string) string {
	if d == nil {
		return filepath.Clean(path)
	}

	rel, err := filepath.Rel(d.root, path)
	if err != nil || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return filepath.Clean(path)
	}

	return filepath.Clean(rel)
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
		if b.Len() >= 32 {
			break
		}
	}
	return strings.Trim(b.String(), "-_")
}

func expandHome(path string) (string, error) {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return home, nil
	}

	prefix := "~" + string(filepath.Separator)
	if strings.HasPrefix(path, prefix) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, prefix)), nil
	}

	return path, nil
}

func isWithin(root string, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." {
		return false
	}
	if strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}

	return !filepath.IsAbs(rel)
}
