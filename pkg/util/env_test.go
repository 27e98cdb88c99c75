package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvWithLocalBinFallbackUsesHomeFile(t *testing.T) {
	tmp := t.TempDir()
	fakeHome := filepath.Join(tmp, "home")
	if err := os.MkdirAll(filepath.Join(fakeHome, ".local", "bin"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	envPath := filepath.Join(fakeHome, ".local", "bin", ".env")
	if err := os.WriteFile(envPath, []byte("DISCORDSTATE_TOKEN=fromfile"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}

	t.Setenv("HOME", fakeHome)
	_ = os.Unsetenv("DISCORDSTATE_TOKEN")

	got, err := LoadEnvWithLocalBinFallback("DISCORDSTATE_TOKEN")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got != "fromfile" {
		t.Fatalf("expected value from file, got %q", got)
	}

	// When env already set, file should not override.
	t.Setenv("DISCORDSTATE_TOKEN", "envwins")
	got, err = LoadEnvWithLocalBinFallback("DISCORDSTATE_TOKEN")
	if err != nil || got != "envwins" {
		t.Fatalf("expected existing env to win, got %q err=%v", got, err)
	}
}

func TestEnvInt64(t *testing.T) {
	t.Setenv("INT_OK", "42")
	t.Setenv("INT_BAD", "oops")
	if got := EnvInt64("INT_OK", 1); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := EnvInt64("INT_BAD", 7); got != 7 {
		t.Fatalf("expected fallback, got %d", got)
	}
}

func TestLoadEnvWithLocalBinFallbackMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_ = os.Unsetenv("DISCORDSTATE_TEST_MISSING")

	if _, err := LoadEnvWithLocalBinFallback("DISCORDSTATE_TEST_MISSING"); err == nil {
		t.Fatalf("expected error for unset variable")
	}
}
