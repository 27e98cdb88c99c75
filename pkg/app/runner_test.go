package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/discordstate/pkg/discord/session"
)

func TestFormatStartupMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		appName string
		version string
		commit  string
		want    string
	}{
		{
			name:    "version only",
			appName: "discordstate",
			version: "v0.3.0",
			want:    "🚀 Starting discordstate v0.3.0...",
		},
		{
			name:    "commit is shortened",
			appName: "discordstate",
			version: "v0.3.0",
			commit:  "0123456789abcdef",
			want:    "🚀 Starting discordstate v0.3.0 (commit 0123456789ab)...",
		},
		{
			name:    "no version",
			appName: "discordstate",
			want:    "🚀 Starting discordstate...",
		},
		{
			name:    "trims spaces",
			appName: " discordstate ",
			version: " dev ",
			commit:  " abc ",
			want:    "🚀 Starting discordstate dev (commit abc)...",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := formatStartupMessage(tc.appName, tc.version, tc.commit)
			if got != tc.want {
				t.Fatalf("formatStartupMessage() mismatch\nwant: %q\ngot:  %q", tc.want, got)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	base := DefaultConfig()
	base.Token = "token"
	base.LogDir = t.TempDir()
	if err := base.Validate(); err != nil {
		t.Fatalf("default config with token should be valid: %v", err)
	}

	cases := map[string]func(*Config){
		"empty token":        func(c *Config) { c.Token = " " },
		"negative messages":  func(c *Config) { c.MaxMessages = -1 },
		"zero shards":        func(c *Config) { c.ShardCount = 0 },
		"shard out of range": func(c *Config) { c.ShardCount, c.ShardID = 2, 2 },
		"empty log dir":      func(c *Config) { c.LogDir = "" },
		"archive no path":    func(c *Config) { c.Archive.Path = "" },
		"negative retention": func(c *Config) { c.Archive.Retention = -time.Hour },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func stubSession(t *testing.T, openErr error) (opened, closed *bool) {
	t.Helper()
	origOpen, origClose := openSession, closeSession
	t.Cleanup(func() {
		openSession, closeSession = origOpen, origClose
	})

	opened, closed = new(bool), new(bool)
	openSession = func(token string, opts session.Options) (*discordgo.Session, error) {
		if openErr != nil {
			return nil, openErr
		}
		s := &discordgo.Session{}
		if opts.Attach != nil {
			opts.Attach(s)
		}
		*opened = true
		return s, nil
	}
	closeSession = func(*discordgo.Session) error {
		*closed = true
		return nil
	}
	return opened, closed
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.Token = "token"
	cfg.LogDir = t.TempDir()
	cfg.ControlAddr = ""
	cfg.Archive.Path = filepath.Join(t.TempDir(), "archive", "messages.db")
	return cfg
}

func TestRunStartsAndStopsOnCancel(t *testing.T) {
	opened, closed := stubSession(t, nil)
	cfg := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(cfg.Archive.Path); err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("archive database was not created")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
	if !*opened || !*closed {
		t.Fatalf("expected session opened and closed, got opened=%v closed=%v", *opened, *closed)
	}
}

func TestRunFailsWhenSessionCannotOpen(t *testing.T) {
	_, closed := stubSession(t, errors.New("gateway unreachable"))
	cfg := testConfig(t)

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "gateway unreachable") {
		t.Fatalf("expected session error, got %v", err)
	}
	if *closed {
		t.Fatalf("a session that never opened must not be closed")
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	stubSession(t, nil)
	cfg := testConfig(t)
	cfg.Token = ""
	if err := Run(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for missing token")
	}
}
