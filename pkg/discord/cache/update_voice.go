package cache

import (
	"github.com/small-frappuccino/discordstate/pkg/discord/model"
)

// VoiceStateUpdate reports a user joining, moving within or leaving voice.
type VoiceStateUpdate struct {
	VoiceState *model.VoiceState
}

// Update stores the embedded member, if any, then upserts the voice state when it names a
// channel and removes it when it does not. It returns the replaced or removed state.
func (e *VoiceStateUpdate) Update(c *Cache) *model.VoiceState {
	vs := e.VoiceState
	if vs == nil || vs.GuildID == "" || vs.UserID == "" {
		return nil
	}

	var member *model.Member
	if vs.Member != nil && vs.Member.User.ID != "" {
		c.upsertUser(vs.Member.User)
		vs.Member.User = c.canonicalUser(vs.Member.User)
		vs.Member.GuildID = vs.GuildID
		member = vs.Member.Clone()
	}

	stored := vs.Clone()
	var old *model.VoiceState
	if !c.updateGuild(vs.GuildID, func(g *model.Guild) {
		if member != nil {
			g.Members[member.User.ID] = member
		}
		old = g.VoiceStates[vs.UserID]
		if vs.ChannelID != "" {
			g.VoiceStates[vs.UserID] = stored
		} else {
			delete(g.VoiceStates, vs.UserID)
		}
	}) {
		c.metrics.missingEntity(KindVoiceStateUpdate)
	}
	return old
}

func (e *VoiceStateUpdate) apply(c *Cache) any { return previous(e.Update(c)) }

// VoiceChannelStatusUpdate reports a new status text on a voice channel.
type VoiceChannelStatusUpdate struct {
	GuildID   string
	ChannelID string
	Status    string
}

// Update sets the channel's status and returns the previous status. ok is false when the
// channel is not cached.
func (e *VoiceChannelStatusUpdate) Update(c *Cache) (old string, ok bool) {
	c.updateGuild(e.GuildID, func(g *model.Guild) {
		ch := g.Channels[e.ChannelID]
		if ch == nil {
			return
		}
		old, ok = ch.Status, true
		ch.Status = e.Status
	})
	if !ok {
		c.metrics.missingEntity(KindVoiceChannelStatusUpdate)
	}
	return old, ok
}

func (e *VoiceChannelStatusUpdate) apply(c *Cache) any {
	if old, ok := e.Update(c); ok {
		return old
	}
	return nil
}
