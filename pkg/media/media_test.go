package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestResolveRootExpandsHomeAndCreatesDirectory(t *testing.T) {
	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)

	root, err := ResolveRoot("~/bot-images")
	if err != nil {
		t.Fatalf("ResolveRoot error: %v", err)
	}

	want, err := filepath.EvalSymlinks(filepath.Join(homeDir, "bot-images"))
	if err != nil {
		t.Fatalf("EvalSymlinks error: %v", err)
	}
	if root != want {
		t.Fatalf("ResolveRoot root = %q, want %q", root, want)
	}
	if info, statErr := os.Stat(root); statErr != nil || !info.IsDir() {
		t.Fatalf("media directory missing: %v", statErr)
	}
}

func TestSaveWritesInsideRoot(t *testing.T) {
	dir := mustDir(t)

	path, err := dir.Save("A Sunset!", ".png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if !strings.HasPrefix(path, dir.Root()+string(filepath.Separator)) {
		t.Fatalf("path %q not inside %q", path, dir.Root())
	}
	if !strings.HasPrefix(filepath.Base(path), "a-sunset-") || filepath.Ext(path) != ".png" {
		t.Fatalf("unexpected file name %q", filepath.Base(path))
	}

	resolved, err := dir.Contains(path)
	if err != nil || resolved != path {
		t.Fatalf("Contains(%q) = %q, %v", path, resolved, err)
	}
}

func TestSaveRejectsEmptyData(t *testing.T) {
	dir := mustDir(t)

	_, err := dir.Save("x", "png", nil)
	if CategoryFromError(err) != ErrorInvalidPath {
		t.Fatalf("category = %q, want %q", CategoryFromError(err), ErrorInvalidPath)
	}
}

func TestContainsRejectsOutsidePath(t *testing.T) {
	dir := mustDir(t)
	outside := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o600); err != nil {
		t.Fatalf("write outside file: %v", err)
	}

	_, err := dir.Contains(outside)
	if CategoryFromError(err) != ErrorOutsideDir {
		t.Fatalf("category = %q, want %q", CategoryFromError(err), ErrorOutsideDir)
	}
}

func TestContainsRejectsSymlinkEscape(t *testing.T) {
	dir := mustDir(t)
	outside := filepath.Join(t.TempDir(), "secret.png")
	if err := os.WriteFile(outside, []byte("x"), 0o600); err != nil {
		t.Fatalf("write outside file: %v", err)
	}
	link := filepath.Join(dir.Root(), "link.png")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("create symlink: %v", err)
	}

	_, err := dir.Contains(link)
	if CategoryFromError(err) != ErrorOutsideDir {
		t.Fatalf("category = %q, want %q", CategoryFromError(err), ErrorOutsideDir)
	}
}

func TestContainsMissingFile(t *testing.T) {
	dir := mustDir(t)

	_, err := dir.Contains("missing.png")
	if CategoryFromError(err) != ErrorPathNotFound {
		t.Fatalf("category = %q, want %q", CategoryFromError(err), ErrorPathNotFound)
	}
}

func TestPruneRemovesOldFiles(t *testing.T) {
	dir := mustDir(t)

	oldPath, err := dir.Save("old", "png", []byte("1"))
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	newPath, err := dir.Save("new", "png", []byte("2"))
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	now := time.Now()
	if err := os.Chtimes(oldPath, now.Add(-48*time.Hour), now.Add(-48*time.Hour)); err != nil {
		t.Fatalf("Chtimes error: %v", err)
	}

	removed, err := dir.Prune(24*time.Hour, now)
	if err != nil {
		t.Fatalf("Prune error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatal("old file still present")
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Fatalf("new file removed: %v", err)
	}
}

func TestRelPath(t *testing.T) {
	dir := mustDir(t)

	if got := dir.RelPath(filepath.Join(dir.Root(), "a.png")); got != "a.png" {
		t.Fatalf("RelPath = %q, want a.png", got)
	}
	if got := dir.RelPath("/etc/passwd"); got != "/etc/passwd" {
		t.Fatalf("RelPath outside = %q", got)
	}
}

func mustDir(t *testing.T) *Dir {
	t.Helper()

	dir, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir error: %v", err)
	}
	return dir
}
