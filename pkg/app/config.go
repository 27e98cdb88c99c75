package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/log"
	"github.com/small-frappuccino/discordstate/pkg/util"
)

// Config is everything Run needs. The zero value is not usable; start from DefaultConfig.
type Config struct {
	// Token is the bot token, with or without the "Bot " prefix.
	Token string

	MaxMessages int
	ShardID     int
	ShardCount  int

	LogDir string
	Log    log.Options

	// ControlAddr is the listen address of the HTTP inspector. Empty disables it.
	ControlAddr string

	Archive ArchiveConfig
}

// ArchiveConfig controls the SQLite archive of messages that leave the cache.
type ArchiveConfig struct {
	Enabled bool
	Path    string
	// Retention is how long archived messages are kept. Zero keeps them forever.
	Retention     time.Duration
	CleanupHour   int
	CleanupMinute int
	// HeartbeatInterval is how often the time of the last applied event is persisted.
	HeartbeatInterval time.Duration
}

// DefaultConfig returns the settings used when no flag or variable overrides them.
func DefaultConfig() Config {
	return Config{
		MaxMessages: 1000,
		ShardCount:  1,
		LogDir:      util.LogDir(),
		ControlAddr: "127.0.0.1:8377",
		Archive: ArchiveConfig{
			Enabled:           true,
			Path:              util.ArchiveDBPath(),
			Retention:         30 * 24 * time.Hour,
			CleanupHour:       4,
			HeartbeatInterval: time.Minute,
		},
	}
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return fmt.Errorf("bot token is empty")
	}
	if c.MaxMessages < 0 {
		return fmt.Errorf("max messages must not be negative, got %d", c.MaxMessages)
	}
	if c.ShardCount < 1 {
		return fmt.Errorf("shard count must be at least 1, got %d", c.ShardCount)
	}
	if c.ShardID < 0 || c.ShardID >= c.ShardCount {
		return fmt.Errorf("shard id %d out of range for %d shards", c.ShardID, c.ShardCount)
	}
	if strings.TrimSpace(c.LogDir) == "" {
		return fmt.Errorf("log directory is empty")
	}
	if c.Archive.Enabled {
		if strings.TrimSpace(c.Archive.Path) == "" {
			return fmt.Errorf("archive enabled without a database path")
		}
		if c.Archive.Retention < 0 {
			return fmt.Errorf("archive retention must not be negative")
		}
	}
	return nil
}
