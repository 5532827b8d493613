package auth

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStatic(t *testing.T) {
	src := Static("tok-123")
	if got := src.Token(); got != "tok-123" {
		t.Errorf("Token() = %q, want %q", got, "tok-123")
	}
}

func TestEnv(t *testing.T) {
	t.Setenv("AITUTOR_TEST_TOKEN", "env-tok")

	src := Env("AITUTOR_TEST_TOKEN")
	if got := src.Token(); got != "env-tok" {
		t.Errorf("Token() = %q, want %q", got, "env-tok")
	}

	os.Unsetenv("AITUTOR_TEST_TOKEN")
	if got := src.Token(); got != "" {
		t.Errorf("Token() after unset = %q, want empty", got)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	if err := os.WriteFile(path, []byte("  file-tok\n"), 0o600); err != nil {
		t.Fatalf("write token file: %v", err)
	}

	src, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if got := src.Token(); got != "file-tok" {
		t.Errorf("Token() = %q, want %q (whitespace trimmed)", got, "file-tok")
	}

	// Rotate the file and reload.
	if err := os.WriteFile(path, []byte("rotated"), 0o600); err != nil {
		t.Fatalf("rotate token file: %v", err)
	}
	if err := src.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if got := src.Token(); got != "rotated" {
		t.Errorf("Token() after Reload = %q, want %q", got, "rotated")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing token file")
	}

	if _, err := LoadFile(""); err == nil {
		t.Error("expected error for empty path")
	}
}
