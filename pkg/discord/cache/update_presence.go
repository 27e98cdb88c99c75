package cache

import (
	"github.com/small-frappuccino/discordstate/pkg/discord/model"
)

// PresenceUpdate reports a user's status change in a guild.
type PresenceUpdate struct {
	Presence *model.Presence
}

// Update records the presence.
//
// A presence carrying a complete user refreshes the global user table; the payload user is
// then replaced with the canonical copy when one exists. Going offline removes the
// presence, any other status stores it. When the user is fully known but has no member
// in the guild, a placeholder member is created so role and permission lookups have
// something to work with. It defines no previous value.
func (e *PresenceUpdate) Update(c *Cache) {
	p := e.Presence
	if p == nil || p.User.ID == "" {
		return
	}
	if !p.User.IsPartial() {
		c.upsertUser(p.User)
	}
	if u, ok := c.users.Load(p.User.ID); ok {
		p.User = u
	}
	if p.GuildID == "" {
		return
	}

	userID := p.User.ID
	complete := !p.User.IsPartial()
	stored := p.Clone()
	if !c.updateGuild(p.GuildID, func(g *model.Guild) {
		if p.Status == model.StatusOffline {
			delete(g.Presences, userID)
		} else {
			g.Presences[userID] = stored
		}
		if _, ok := g.Members[userID]; !ok && complete {
			g.Members[userID] = &model.Member{
				GuildID: p.GuildID,
				User:    p.User,
				Roles:   []string{},
			}
		}
	}) {
		c.metrics.missingEntity(KindPresenceUpdate)
	}
}

func (e *PresenceUpdate) apply(c *Cache) any {
	e.Update(c)
	return nil
}
