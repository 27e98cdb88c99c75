// Package session opens the Discord gateway connection that feeds the cache.
package session

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/discordstate/pkg/errutil"
	"github.com/small-frappuccino/discordstate/pkg/log"
)

// Error messages
const (
	ErrSessionCreationFailed   = "failed to create Discord session: %w"
	ErrSessionConnectionFailed = "failed to connect to Discord: %w"
)

// Intents are the gateway intents whose events the cache consumes.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildPresences |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsGuildEmojis |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentMessageContent

// Options tunes the session before it connects.
type Options struct {
	ShardID    int
	ShardCount int
	// Attach runs after configuration and before Open so no dispatch is missed.
	Attach func(*discordgo.Session)
}

var (
	newSession   = func(token string) (*discordgo.Session, error) { return discordgo.New(token) }
	openSession  = func(s *discordgo.Session) error { return s.Open() }
	closeSession = func(s *discordgo.Session) error { return s.Close() }
)

// NewDiscordSession creates a bot session with discordgo's own state tracking disabled,
// since the cache replaces it, and connects it to the gateway.
func NewDiscordSession(token string, opts Options) (*discordgo.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		log.ErrorLoggerRaw().Error("Discord bot token is empty")
		return nil, fmt.Errorf("discord bot token is empty")
	}
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}

	var s *discordgo.Session
	if err := errutil.HandleDiscordError("create_session", func() error {
		var err error
		s, err = newSession(token)
		return err
	}); err != nil {
		return nil, fmt.Errorf(ErrSessionCreationFailed, err)
	}

	s.Identify.Intents = Intents
	s.StateEnabled = false
	s.SyncEvents = true
	if opts.ShardCount > 1 {
		s.ShardID = opts.ShardID
		s.ShardCount = opts.ShardCount
	}
	if opts.Attach != nil {
		opts.Attach(s)
	}

	log.DiscordLogger().Info("Connecting to Discord", "shard", s.ShardID, "shard_count", s.ShardCount)
	if err := errutil.HandleDiscordError("connect", func() error { return openSession(s) }); err != nil {
		_ = closeSession(s)
		return nil, fmt.Errorf(ErrSessionConnectionFailed, err)
	}

	log.DiscordLogger().Info("Connected to Discord")
	return s, nil
}

// Close disconnects s, logging failures.
func Close(s *discordgo.Session) error {
	if s == nil {
		return nil
	}
	return errutil.HandleDiscordError("close_session", func() error { return closeSession(s) })
}
