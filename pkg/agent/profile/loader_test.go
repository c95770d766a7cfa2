package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadComposerDefaults(t *testing.T) {
	composer, err := LoadComposer("", "")
	if err != nil {
		t.Fatalf("LoadComposer error: %v", err)
	}
	if !strings.Contains(composer.Base(), "Valor") {
		t.Fatalf("base prompt = %q, want embedded identity", composer.Base())
	}
}

func TestLoadComposerFromFiles(t *testing.T) {
	dir := t.TempDir()
	identity := filepath.Join(dir, "identity.md")
	personality := filepath.Join(dir, "personality.md")
	if err := os.WriteFile(identity, []byte("# Identity\nYou are Tester.\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(personality, []byte("Be brief."), 0o600); err != nil {
		t.Fatal(err)
	}

	composer, err := LoadComposer(identity, personality)
	if err != nil {
		t.Fatalf("LoadComposer error: %v", err)
	}
	if got, want := composer.Base(), "# Identity\nYou are Tester.\n\nBe brief."; got != want {
		t.Fatalf("base = %q, want %q", got, want)
	}
}

func TestLoadComposerRejectsPartialConfig(t *testing.T) {
	if _, err := LoadComposer("identity.md", ""); err == nil {
		t.Fatal("expected error when only one file is configured")
	}

	empty := filepath.Join(t.TempDir(), "empty.md")
	if err := os.WriteFile(empty, []byte("  \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadComposer(empty, empty); err == nil {
		t.Fatal("expected error for empty block")
	}
}

func TestResolveSystemProfile(t *testing.T) {
	composer, err := LoadComposer("", "")
	if err != nil {
		t.Fatalf("LoadComposer error: %v", err)
	}

	t.Run("opencode returns empty profile", func(t *testing.T) {
		if content := ResolveSystemProfile("OpenCode", composer); content != "" {
			t.Fatalf("content = %q, want empty", content)
		}
	})

	t.Run("other providers use the composer base", func(t *testing.T) {
		if content := ResolveSystemProfile("fantasy", composer); content != composer.Base() {
			t.Fatalf("content = %q, want composer base", content)
		}
	})
}
