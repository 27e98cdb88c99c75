// Package cache mirrors Discord gateway state in memory.
//
// A Cache is fed decoded gateway events through Update, which mutates the relevant tables
// and returns the value that existed before the event took effect. Every top-level table
// is a keyedmap.Map, so events touching different guilds, channels or users never wait on
// each other. Multi-key effects (a guild and its reverse channel index, a channel and its
// message history) are applied key by key in a fixed order; readers may briefly observe
// one key updated and the other not.
//
// Lock order: a guild entry may be held while a message segment is read or written, never
// the reverse. The user table is never locked while a guild entry is held for writing.
package cache

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/small-frappuccino/discordstate/pkg/discord/model"
	"github.com/small-frappuccino/discordstate/pkg/keyedmap"
)

// Settings configures a Cache at construction.
type Settings struct {
	// MaxMessages bounds the history kept per channel. Zero disables message caching;
	// message events still update the owning channel's last message id.
	MaxMessages int
}

// ShardData is the aggregate shard bookkeeping recorded from Ready events.
type ShardData struct {
	Total     int   `json:"total"`
	Connected []int `json:"connected"`
}

// Cache holds the mirrored state. Create it with New; the zero value is not usable.
type Cache struct {
	guilds   *keyedmap.Map[string, *model.Guild]
	channels *keyedmap.Map[string, string] // channel id -> owning guild id
	messages *keyedmap.Map[string, *segment]
	users    *keyedmap.Map[string, model.User]

	// unavailableGuilds maps each unavailable guild to the threads whose message logs
	// were kept through the outage. Threads are not in the reverse index.
	unavailableGuilds *keyedmap.Map[string, []string]

	userMu      sync.RWMutex
	currentUser model.CurrentUser
	hasUser     bool

	shardMu        sync.RWMutex
	shardTotal     int
	shardConnected map[int]struct{}

	maxMessages atomic.Int64

	metrics *cacheMetrics
}

// New returns an empty cache.
func New(settings Settings) *Cache {
	c := &Cache{
		guilds:            keyedmap.New[string, *model.Guild](),
		channels:          keyedmap.New[string, string](),
		messages:          keyedmap.New[string, *segment](),
		users:             keyedmap.New[string, model.User](),
		unavailableGuilds: keyedmap.New[string, []string](),
		shardConnected:    make(map[int]struct{}),
	}
	c.SetMaxMessages(settings.MaxMessages)
	c.metrics = newCacheMetrics(c)
	return c
}

// SetMaxMessages changes the per-channel history bound. Existing histories larger than the
// new bound are trimmed by the next message created in each channel.
func (c *Cache) SetMaxMessages(n int) {
	if n < 0 {
		n = 0
	}
	c.maxMessages.Store(int64(n))
}

// MaxMessages returns the per-channel history bound.
func (c *Cache) MaxMessages() int {
	return int(c.maxMessages.Load())
}

// Update applies ev and returns the previous value defined for its kind, or nil.
// The concrete type of the result is documented on each event's Update method.
func (c *Cache) Update(ev Event) any {
	if ev == nil {
		return nil
	}
	prev := ev.apply(c)
	c.metrics.observeEvent(ev.Kind())
	return prev
}

// Guild returns a copy of the guild.
func (c *Cache) Guild(id string) (*model.Guild, bool) {
	var out *model.Guild
	c.guilds.View(id, func(g *model.Guild) { out = g.Clone() })
	return out, out != nil
}

// GuildIDs returns the ids of every cached guild.
func (c *Cache) GuildIDs() []string {
	return c.guilds.Keys()
}

// GuildCount returns the number of cached guilds.
func (c *Cache) GuildCount() int {
	return c.guilds.Len()
}

// ChannelGuildID resolves the guild owning a channel through the reverse index.
func (c *Cache) ChannelGuildID(channelID string) (string, bool) {
	return c.channels.Load(channelID)
}

// Channel returns a copy of a guild channel, resolving its guild through the reverse index.
func (c *Cache) Channel(channelID string) (*model.Channel, bool) {
	guildID, ok := c.channels.Load(channelID)
	if !ok {
		return nil, false
	}
	var out *model.Channel
	c.guilds.View(guildID, func(g *model.Guild) {
		out = g.Channels[channelID].Clone()
	})
	return out, out != nil
}

// Thread returns a copy of a thread in the given guild.
func (c *Cache) Thread(guildID, threadID string) (*model.Channel, bool) {
	var out *model.Channel
	c.guilds.View(guildID, func(g *model.Guild) {
		if i := g.Thread(threadID); i >= 0 {
			out = g.Threads[i].Clone()
		}
	})
	return out, out != nil
}

// Member returns a copy of a guild member.
func (c *Cache) Member(guildID, userID string) (*model.Member, bool) {
	var out *model.Member
	c.guilds.View(guildID, func(g *model.Guild) { out = g.Members[userID].Clone() })
	return out, out != nil
}

// Role returns a copy of a guild role.
func (c *Cache) Role(guildID, roleID string) (*model.Role, bool) {
	var out *model.Role
	c.guilds.View(guildID, func(g *model.Guild) { out = g.Roles[roleID].Clone() })
	return out, out != nil
}

// Presence returns a copy of a user's presence in a guild. Offline users have none.
func (c *Cache) Presence(guildID, userID string) (*model.Presence, bool) {
	var out *model.Presence
	c.guilds.View(guildID, func(g *model.Guild) { out = g.Presences[userID].Clone() })
	return out, out != nil
}

// VoiceState returns a copy of a user's voice state in a guild.
func (c *Cache) VoiceState(guildID, userID string) (*model.VoiceState, bool) {
	var out *model.VoiceState
	c.guilds.View(guildID, func(g *model.Guild) { out = g.VoiceStates[userID].Clone() })
	return out, out != nil
}

// Message returns a copy of a cached message.
func (c *Cache) Message(channelID, messageID string) (*model.Message, bool) {
	var out *model.Message
	c.messages.View(channelID, func(s *segment) {
		if m, ok := s.Get(messageID); ok {
			out = m.Clone()
		}
	})
	return out, out != nil
}

// Messages returns copies of a channel's cached messages, oldest first.
func (c *Cache) Messages(channelID string) []*model.Message {
	var out []*model.Message
	c.messages.View(channelID, func(s *segment) { out = s.Messages() })
	return out
}

// MessageCount returns the number of messages cached for a channel.
func (c *Cache) MessageCount(channelID string) int {
	n := 0
	c.messages.View(channelID, func(s *segment) { n = s.Len() })
	return n
}

// HasMessageLog reports whether a message history exists for the channel, even an empty one.
func (c *Cache) HasMessageLog(channelID string) bool {
	return c.messages.Has(channelID)
}

// User returns the canonical copy of a user.
func (c *Cache) User(id string) (model.User, bool) {
	return c.users.Load(id)
}

// UserCount returns the number of users in the global table.
func (c *Cache) UserCount() int {
	return c.users.Len()
}

// CurrentUser returns the identity the connection is authenticated as.
func (c *Cache) CurrentUser() (model.CurrentUser, bool) {
	c.userMu.RLock()
	defer c.userMu.RUnlock()
	return c.currentUser, c.hasUser
}

// ShardData returns the recorded shard total and the sorted ids of connected shards.
func (c *Cache) ShardData() ShardData {
	c.shardMu.RLock()
	defer c.shardMu.RUnlock()
	connected := make([]int, 0, len(c.shardConnected))
	for id := range c.shardConnected {
		connected = append(connected, id)
	}
	slices.Sort(connected)
	return ShardData{Total: c.shardTotal, Connected: connected}
}

// IsUnavailable reports whether the guild is currently marked unavailable.
func (c *Cache) IsUnavailable(guildID string) bool {
	return c.unavailableGuilds.Has(guildID)
}

// UnavailableGuildIDs returns the ids of guilds marked unavailable.
func (c *Cache) UnavailableGuildIDs() []string {
	return c.unavailableGuilds.Keys()
}

// upsertUser makes u the canonical entry for its id and returns the stored copy.
func (c *Cache) upsertUser(u model.User) model.User {
	if u.ID == "" {
		return u
	}
	c.users.Store(u.ID, u)
	return u
}

// canonicalUser returns the cached user for id, falling back to u.
func (c *Cache) canonicalUser(u model.User) model.User {
	if cached, ok := c.users.Load(u.ID); ok {
		return cached
	}
	return u
}

// dropMessages removes a channel's message history and returns it in arrival order.
func (c *Cache) dropMessages(channelID string) []*model.Message {
	s, ok := c.messages.Delete(channelID)
	if !ok || s == nil {
		return nil
	}
	return s.drain()
}

// indexedChannels returns the channels the reverse index attributes to guildID.
func (c *Cache) indexedChannels(guildID string) []string {
	var ids []string
	c.channels.Range(func(id, owner string) bool {
		if owner == guildID {
			ids = append(ids, id)
		}
		return true
	})
	return ids
}

// markUnavailable drops the guild and flags it unavailable. The guild's channel index and
// message logs stay, and its thread ids are remembered so a later removal can still purge
// their logs.
func (c *Cache) markUnavailable(guildID string) {
	old, _ := c.guilds.Delete(guildID)
	var threads []string
	if old != nil {
		threads = old.ThreadIDs()
	}
	c.unavailableGuilds.Upsert(guildID, func(v *[]string, _ bool) {
		for _, id := range threads {
			if !slices.Contains(*v, id) {
				*v = append(*v, id)
			}
		}
	})
}

// setCurrentUser replaces the current user and returns the previous one.
func (c *Cache) setCurrentUser(u model.CurrentUser) (model.CurrentUser, bool) {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	old, had := c.currentUser, c.hasUser
	c.currentUser, c.hasUser = u, true
	return old, had
}

func (c *Cache) recordShard(id, total int) {
	c.shardMu.Lock()
	c.shardTotal = total
	c.shardConnected[id] = struct{}{}
	c.shardMu.Unlock()
}

// previous converts a typed pointer result into the untyped previous value, keeping nil
// pointers nil.
func previous[T any](v *T) any {
	if v == nil {
		return nil
	}
	return v
}
