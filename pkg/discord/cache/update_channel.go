package cache

import (
	"time"

	"github.com/small-frappuccino/discordstate/pkg/discord/model"
)

// ChannelCreate reports a new guild channel.
type ChannelCreate struct {
	Channel *model.Channel
}

// Update stores the channel in its guild and indexes it. It returns the channel previously
// stored under the same id, if any.
func (e *ChannelCreate) Update(c *Cache) *model.Channel {
	return c.putChannel(KindChannelCreate, e.Channel)
}

func (e *ChannelCreate) apply(c *Cache) any { return previous(e.Update(c)) }

// ChannelUpdate reports a changed guild channel. It carries the full channel.
type ChannelUpdate struct {
	Channel *model.Channel
}

// Update replaces the channel in its guild and returns the replaced channel.
func (e *ChannelUpdate) Update(c *Cache) *model.Channel {
	return c.putChannel(KindChannelUpdate, e.Channel)
}

func (e *ChannelUpdate) apply(c *Cache) any { return previous(e.Update(c)) }

// putChannel is shared by create and update. Channels outside a guild (DMs) are not kept.
func (c *Cache) putChannel(kind EventKind, ch *model.Channel) *model.Channel {
	if ch == nil || ch.ID == "" || ch.GuildID == "" {
		return nil
	}
	stored := ch.Clone()
	var old *model.Channel
	found := c.updateGuild(ch.GuildID, func(g *model.Guild) {
		old = g.Channels[ch.ID]
		g.Channels[ch.ID] = stored
	})
	if !found {
		c.metrics.missingEntity(kind)
		return nil
	}
	c.channels.Store(ch.ID, ch.GuildID)
	return old
}

// ChannelDelete reports a deleted guild channel.
type ChannelDelete struct {
	Channel *model.Channel
}

// Update removes the channel from the reverse index and its guild, then drops its message
// history. It returns the dropped messages oldest first; the result is nil when no history
// existed for the channel.
func (e *ChannelDelete) Update(c *Cache) []*model.Message {
	ch := e.Channel
	if ch == nil || ch.ID == "" {
		return nil
	}
	guildID := ch.GuildID
	if indexed, ok := c.channels.Delete(ch.ID); ok && guildID == "" {
		guildID = indexed
	}
	c.updateGuild(guildID, func(g *model.Guild) {
		delete(g.Channels, ch.ID)
	})
	return c.dropMessages(ch.ID)
}

func (e *ChannelDelete) apply(c *Cache) any {
	if removed := e.Update(c); removed != nil {
		return removed
	}
	return nil
}

// ChannelPinsUpdate reports that a channel's pins changed.
type ChannelPinsUpdate struct {
	GuildID          string
	ChannelID        string
	LastPinTimestamp *time.Time
}

// Update patches the last pin timestamp of the guild channel or thread. It defines no
// previous value.
func (e *ChannelPinsUpdate) Update(c *Cache) {
	guildID := e.GuildID
	if guildID == "" {
		guildID, _ = c.channels.Load(e.ChannelID)
	}
	patched := false
	c.updateGuild(guildID, func(g *model.Guild) {
		ch := g.Channels[e.ChannelID]
		if ch == nil {
			if i := g.Thread(e.ChannelID); i >= 0 {
				ch = g.Threads[i]
			}
		}
		if ch != nil {
			if e.LastPinTimestamp != nil {
				ts := *e.LastPinTimestamp
				ch.LastPinTimestamp = &ts
			} else {
				ch.LastPinTimestamp = nil
			}
			patched = true
		}
	})
	if !patched {
		c.metrics.missingEntity(KindChannelPinsUpdate)
	}
}

func (e *ChannelPinsUpdate) apply(c *Cache) any {
	e.Update(c)
	return nil
}

// ThreadCreate reports a thread the connection can now see.
type ThreadCreate struct {
	Thread *model.Channel
}

// Update stores the thread in its guild and returns the thread it replaced, if any.
func (e *ThreadCreate) Update(c *Cache) *model.Channel {
	return c.putThread(KindThreadCreate, e.Thread)
}

func (e *ThreadCreate) apply(c *Cache) any { return previous(e.Update(c)) }

// ThreadUpdate reports a changed thread.
type ThreadUpdate struct {
	Thread *model.Channel
}

// Update replaces the thread in its guild, or appends it when unknown. It returns the
// replaced thread.
func (e *ThreadUpdate) Update(c *Cache) *model.Channel {
	return c.putThread(KindThreadUpdate, e.Thread)
}

func (e *ThreadUpdate) apply(c *Cache) any { return previous(e.Update(c)) }

func (c *Cache) putThread(kind EventKind, t *model.Channel) *model.Channel {
	if t == nil || t.ID == "" {
		return nil
	}
	stored := t.Clone()
	var old *model.Channel
	found := c.updateGuild(t.GuildID, func(g *model.Guild) {
		if i := g.Thread(t.ID); i >= 0 {
			old = g.Threads[i]
			g.Threads[i] = stored
			return
		}
		g.Threads = append(g.Threads, stored)
	})
	if !found {
		c.metrics.missingEntity(kind)
	}
	return old
}

// ThreadDelete reports a deleted thread.
type ThreadDelete struct {
	ID       string
	GuildID  string
	ParentID string
}

// Update removes the thread from its guild and drops its message history. It returns the
// removed thread.
func (e *ThreadDelete) Update(c *Cache) *model.Channel {
	var removed *model.Channel
	found := c.updateGuild(e.GuildID, func(g *model.Guild) {
		if i := g.Thread(e.ID); i >= 0 {
			removed = g.Threads[i]
			g.Threads = append(g.Threads[:i], g.Threads[i+1:]...)
		}
	})
	if !found {
		c.metrics.missingEntity(KindThreadDelete)
	}
	c.dropMessages(e.ID)
	return removed
}

func (e *ThreadDelete) apply(c *Cache) any { return previous(e.Update(c)) }

// updateGuild runs fn with exclusive access to a cached guild. It reports false when the
// guild is not cached.
func (c *Cache) updateGuild(id string, fn func(g *model.Guild)) bool {
	if id == "" {
		return false
	}
	return c.guilds.Update(id, func(g **model.Guild) {
		if *g != nil {
			fn(*g)
		}
	})
}
