package cache

import (
	"github.com/small-frappuccino/discordstate/pkg/discord/model"
)

// GuildCreate carries a full guild snapshot. It arrives lazily after Ready, when the bot
// joins a guild, and when an unavailable guild recovers.
type GuildCreate struct {
	Guild *model.Guild
}

// Update replaces the cached guild with the snapshot. Member users are written to the
// global user table and the payload members are normalized to the canonical copies. It
// defines no previous value.
func (e *GuildCreate) Update(c *Cache) {
	g := e.Guild
	if g == nil || g.ID == "" {
		return
	}
	outageThreads, _ := c.unavailableGuilds.Delete(g.ID)

	for userID, m := range g.Members {
		if m == nil {
			delete(g.Members, userID)
			continue
		}
		c.upsertUser(m.User)
		m.User = c.canonicalUser(m.User)
		m.GuildID = g.ID
	}
	for id, ch := range g.Channels {
		if ch == nil {
			delete(g.Channels, id)
		}
	}

	stored := g.Clone()
	for _, ch := range stored.Channels {
		ch.GuildID = g.ID
	}
	for _, t := range stored.Threads {
		if t != nil {
			t.GuildID = g.ID
		}
	}

	old, _ := c.guilds.Swap(g.ID, stored)
	for id := range stored.Channels {
		c.channels.Store(id, g.ID)
	}

	// Channels deleted while the guild was away are only known to the reverse index.
	for _, id := range c.indexedChannels(g.ID) {
		if _, kept := stored.Channels[id]; !kept {
			c.channels.Delete(id)
			c.dropMessages(id)
		}
	}
	if old != nil {
		outageThreads = append(outageThreads, old.ThreadIDs()...)
	}
	for _, id := range outageThreads {
		if stored.Thread(id) < 0 {
			c.dropMessages(id)
		}
	}
}

func (e *GuildCreate) apply(c *Cache) any {
	e.Update(c)
	return nil
}

// GuildDelete reports that a guild left the connection's view. Unavailable distinguishes
// an outage from the bot being removed.
type GuildDelete struct {
	ID          string
	Unavailable bool
}

// Update handles both flavors of guild deletion.
//
// During an outage the guild is marked unavailable and dropped from the guild table, but
// the channel index and message histories stay so they are still valid once the guild
// comes back. A real removal purges the guild's channels from the reverse index along with
// every message history of its channels and threads, and returns the removed guild. A
// guild removed while unavailable is purged the same way and yields nil.
func (e *GuildDelete) Update(c *Cache) *model.Guild {
	if e.ID == "" {
		return nil
	}
	if e.Unavailable {
		c.markUnavailable(e.ID)
		return nil
	}

	outageThreads, wasUnavailable := c.unavailableGuilds.Delete(e.ID)
	old, _ := c.guilds.Delete(e.ID)
	if old == nil && !wasUnavailable {
		c.metrics.missingEntity(KindGuildDelete)
	}

	channels := c.indexedChannels(e.ID)
	threads := outageThreads
	if old != nil {
		channels = append(channels, old.ChannelIDs()...)
		threads = append(threads, old.ThreadIDs()...)
	}
	for _, id := range channels {
		c.channels.Delete(id)
		c.dropMessages(id)
	}
	for _, id := range threads {
		c.dropMessages(id)
	}
	return old
}

func (e *GuildDelete) apply(c *Cache) any { return previous(e.Update(c)) }

// GuildUpdate carries the updatable subset of a guild.
type GuildUpdate struct {
	Guild model.PartialGuild
}

// Update overwrites the fields set in the partial guild and leaves every other field, and
// every nested table except roles when present, untouched. It defines no previous value.
func (e *GuildUpdate) Update(c *Cache) {
	if !c.updateGuild(e.Guild.ID, e.Guild.ApplyTo) {
		c.metrics.missingEntity(KindGuildUpdate)
	}
}

func (e *GuildUpdate) apply(c *Cache) any {
	e.Update(c)
	return nil
}

// GuildEmojisUpdate carries a guild's complete emoji set.
type GuildEmojisUpdate struct {
	GuildID string
	Emojis  map[string]*model.Emoji
}

// Update replaces the guild's emoji table.
func (e *GuildEmojisUpdate) Update(c *Cache) {
	emojis := make(map[string]*model.Emoji, len(e.Emojis))
	for id, em := range e.Emojis {
		emojis[id] = em.Clone()
	}
	if !c.updateGuild(e.GuildID, func(g *model.Guild) { g.Emojis = emojis }) {
		c.metrics.missingEntity(KindGuildEmojisUpdate)
	}
}

func (e *GuildEmojisUpdate) apply(c *Cache) any {
	e.Update(c)
	return nil
}

// GuildStickersUpdate carries a guild's complete sticker set.
type GuildStickersUpdate struct {
	GuildID  string
	Stickers map[string]*model.Sticker
}

// Update replaces the guild's sticker table.
func (e *GuildStickersUpdate) Update(c *Cache) {
	stickers := make(map[string]*model.Sticker, len(e.Stickers))
	for id, st := range e.Stickers {
		stickers[id] = st.Clone()
	}
	if !c.updateGuild(e.GuildID, func(g *model.Guild) { g.Stickers = stickers }) {
		c.metrics.missingEntity(KindGuildStickersUpdate)
	}
}

func (e *GuildStickersUpdate) apply(c *Cache) any {
	e.Update(c)
	return nil
}

// GuildRoleCreate reports a new role.
type GuildRoleCreate struct {
	GuildID string
	Role    *model.Role
}

// Update inserts the role. It defines no previous value.
func (e *GuildRoleCreate) Update(c *Cache) {
	if e.Role == nil {
		return
	}
	stored := e.Role.Clone()
	if !c.updateGuild(e.GuildID, func(g *model.Guild) { g.Roles[stored.ID] = stored }) {
		c.metrics.missingEntity(KindGuildRoleCreate)
	}
}

func (e *GuildRoleCreate) apply(c *Cache) any {
	e.Update(c)
	return nil
}

// GuildRoleUpdate reports a changed role.
type GuildRoleUpdate struct {
	GuildID string
	Role    *model.Role
}

// Update replaces the role and returns the replaced one. A role the cache has not seen is
// inserted.
func (e *GuildRoleUpdate) Update(c *Cache) *model.Role {
	if e.Role == nil {
		return nil
	}
	stored := e.Role.Clone()
	var old *model.Role
	if !c.updateGuild(e.GuildID, func(g *model.Guild) {
		old = g.Roles[stored.ID]
		g.Roles[stored.ID] = stored
	}) {
		c.metrics.missingEntity(KindGuildRoleUpdate)
	}
	return old
}

func (e *GuildRoleUpdate) apply(c *Cache) any { return previous(e.Update(c)) }

// GuildRoleDelete reports a deleted role.
type GuildRoleDelete struct {
	GuildID string
	RoleID  string
}

// Update removes the role and returns it.
func (e *GuildRoleDelete) Update(c *Cache) *model.Role {
	var old *model.Role
	if !c.updateGuild(e.GuildID, func(g *model.Guild) {
		old = g.Roles[e.RoleID]
		delete(g.Roles, e.RoleID)
	}) {
		c.metrics.missingEntity(KindGuildRoleDelete)
	}
	return old
}

func (e *GuildRoleDelete) apply(c *Cache) any { return previous(e.Update(c)) }
