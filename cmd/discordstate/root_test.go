package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MY_BOT_TOKEN", "secret")
	t.Setenv("DISCORDSTATE_TOKEN_ENV", "MY_BOT_TOKEN")
	t.Setenv("DISCORDSTATE_MAX_MESSAGES", "25")
	t.Setenv("DISCORDSTATE_ARCHIVE", "false")
	t.Setenv("DISCORDSTATE_ARCHIVE_RETENTION", "72h")
	t.Setenv("DISCORDSTATE_LOG_LEVEL", "debug")

	cfg, err := configFromViper(newTestViper())
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Token != "secret" {
		t.Fatalf("expected token from MY_BOT_TOKEN, got %q", cfg.Token)
	}
	if cfg.MaxMessages != 25 {
		t.Fatalf("expected max messages 25, got %d", cfg.MaxMessages)
	}
	if cfg.Archive.Enabled {
		t.Fatalf("expected archive disabled")
	}
	if cfg.Archive.Retention != 72*time.Hour {
		t.Fatalf("expected retention 72h, got %v", cfg.Archive.Retention)
	}
	if cfg.Log.Level != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", cfg.Log.Level)
	}
}

func TestConfigRequiresToken(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(defaultTokenEnv, "")

	if _, err := configFromViper(newTestViper()); err == nil {
		t.Fatalf("expected error without a token")
	}
}

func TestConfigRejectsBadLogLevel(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(defaultTokenEnv, "secret")
	t.Setenv("DISCORDSTATE_LOG_LEVEL", "chatty")

	if _, err := configFromViper(newTestViper()); err == nil {
		t.Fatalf("expected error for unknown log level")
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "discordstate ") {
		t.Fatalf("unexpected version output %q", out.String())
	}
}
