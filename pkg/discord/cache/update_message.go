package cache

import (
	"github.com/small-frappuccino/discordstate/pkg/discord/model"
)

// MessageCreate reports a new message.
type MessageCreate struct {
	Message *model.Message
}

// Update records the message.
//
// The owning guild channel or thread has its last message id moved to this message when
// the message is newer than the cached copy of the current last message, or when that
// copy is not cached. With a non-zero MaxMessages the message is appended to the
// channel's history; if the history is full, the oldest messages are evicted first and
// the oldest of them is returned.
func (e *MessageCreate) Update(c *Cache) *model.Message {
	m := e.Message
	if m == nil || m.ID == "" || m.ChannelID == "" {
		return nil
	}

	guildID := m.GuildID
	if guildID == "" {
		guildID, _ = c.channels.Load(m.ChannelID)
	}
	c.updateGuild(guildID, func(g *model.Guild) {
		if ch := g.Channels[m.ChannelID]; ch != nil {
			c.advanceLastMessage(ch, m)
			return
		}
		if i := g.Thread(m.ChannelID); i >= 0 {
			c.advanceLastMessage(g.Threads[i], m)
		}
	})

	limit := c.MaxMessages()
	if limit == 0 {
		return nil
	}

	stored := m.Clone()
	var (
		evicted *model.Message
		dropped int
	)
	c.messages.Upsert(m.ChannelID, func(s **segment, loaded bool) {
		if !loaded || *s == nil {
			*s = newSegment()
		}
		seg := *s
		if _, dup := seg.Get(stored.ID); dup {
			seg.Push(stored)
			return
		}
		for seg.Len() >= limit {
			old, ok := seg.PopOldest()
			if !ok {
				break
			}
			if evicted == nil {
				evicted = old
			}
			dropped++
		}
		seg.Push(stored)
	})
	c.metrics.messagesEvicted(dropped)
	return evicted
}

func (e *MessageCreate) apply(c *Cache) any { return previous(e.Update(c)) }

// advanceLastMessage runs with the guild entry held and reads the channel's message
// segment, which follows the guild-then-segment lock order.
func (c *Cache) advanceLastMessage(ch *model.Channel, m *model.Message) {
	if ch.LastMessageID != "" {
		newer := true
		c.messages.View(ch.ID, func(s *segment) {
			if last, ok := s.Get(ch.LastMessageID); ok {
				newer = m.Timestamp.After(last.Timestamp)
			}
		})
		if !newer {
			return
		}
	}
	ch.LastMessageID = m.ID
}

// MessageUpdate is a message edit. Only the fields in Patch that are set changed.
type MessageUpdate struct {
	ID        string
	ChannelID string
	GuildID   string
	Patch     model.MessagePatch
}

// Update applies the patch to the cached message and returns a copy taken before the
// patch. Edits to messages outside the cached history are ignored.
func (e *MessageUpdate) Update(c *Cache) *model.Message {
	var old *model.Message
	c.messages.Update(e.ChannelID, func(s **segment) {
		if m, ok := (*s).Get(e.ID); ok {
			old = m.Clone()
			e.Patch.ApplyTo(m)
		}
	})
	if old == nil {
		c.metrics.missingEntity(KindMessageUpdate)
	}
	return old
}

func (e *MessageUpdate) apply(c *Cache) any { return previous(e.Update(c)) }

// MessageDelete reports a deleted message.
type MessageDelete struct {
	ID        string
	ChannelID string
	GuildID   string
}

// Update removes the message from the channel's history and returns it.
func (e *MessageDelete) Update(c *Cache) *model.Message {
	var old *model.Message
	c.messages.Update(e.ChannelID, func(s **segment) {
		old, _ = (*s).Remove(e.ID)
	})
	return old
}

func (e *MessageDelete) apply(c *Cache) any { return previous(e.Update(c)) }

// MessageDeleteBulk reports several messages deleted at once.
type MessageDeleteBulk struct {
	IDs       []string
	ChannelID string
	GuildID   string
}

// Update removes every listed message that is cached and returns them in the order of
// IDs. The result is nil when none was cached.
func (e *MessageDeleteBulk) Update(c *Cache) []*model.Message {
	var removed []*model.Message
	c.messages.Update(e.ChannelID, func(s **segment) {
		for _, id := range e.IDs {
			if m, ok := (*s).Remove(id); ok {
				removed = append(removed, m)
			}
		}
	})
	return removed
}

func (e *MessageDeleteBulk) apply(c *Cache) any {
	if removed := e.Update(c); removed != nil {
		return removed
	}
	return nil
}
