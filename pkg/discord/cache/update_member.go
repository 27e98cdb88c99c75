package cache

import (
	"slices"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/discord/model"
)

// GuildMemberAdd reports a user joining a guild.
type GuildMemberAdd struct {
	Member *model.Member
}

// Update writes the user to the global table, normalizes the payload member's user,
// stores the member and increments the guild's member count. It defines no previous value.
func (e *GuildMemberAdd) Update(c *Cache) {
	m := e.Member
	if m == nil || m.User.ID == "" {
		return
	}
	c.upsertUser(m.User)
	m.User = c.canonicalUser(m.User)

	stored := m.Clone()
	if !c.updateGuild(m.GuildID, func(g *model.Guild) {
		g.MemberCount++
		g.Members[stored.User.ID] = stored
	}) {
		c.metrics.missingEntity(KindGuildMemberAdd)
	}
}

func (e *GuildMemberAdd) apply(c *Cache) any {
	e.Update(c)
	return nil
}

// GuildMemberRemove reports a user leaving a guild.
type GuildMemberRemove struct {
	GuildID string
	User    model.User
}

// Update decrements the guild's member count and returns the removed member. The count
// does not go below zero.
func (e *GuildMemberRemove) Update(c *Cache) *model.Member {
	var old *model.Member
	if !c.updateGuild(e.GuildID, func(g *model.Guild) {
		if g.MemberCount > 0 {
			g.MemberCount--
		}
		old = g.Members[e.User.ID]
		delete(g.Members, e.User.ID)
	}) {
		c.metrics.missingEntity(KindGuildMemberRemove)
	}
	return old
}

func (e *GuildMemberRemove) apply(c *Cache) any { return previous(e.Update(c)) }

// GuildMemberUpdate is a partial member payload. User is always present; every other
// field is applied only when set.
type GuildMemberUpdate struct {
	GuildID                    string
	User                       model.User
	Nick                       model.Field[string]
	Avatar                     model.Field[string]
	Roles                      model.Field[[]string]
	JoinedAt                   model.Field[*time.Time]
	PremiumSince               model.Field[*time.Time]
	CommunicationDisabledUntil model.Field[*time.Time]
	UnusualDMActivityUntil     model.Field[*time.Time]
	Pending                    model.Field[bool]
	Deaf                       model.Field[bool]
	Mute                       model.Field[bool]
	Flags                      model.Field[model.MemberFlags]
}

// SynthesizedMember is the previous value of a GuildMemberUpdate for a member the cache
// had not seen. It holds the member built from the payload.
type SynthesizedMember struct {
	*model.Member
}

// Update patches the cached member with the set fields and returns a copy of it taken
// before the patch. When the member is not cached one is built from the payload; the copy
// of that new member is returned with synthesized set.
func (e *GuildMemberUpdate) Update(c *Cache) (prev *model.Member, synthesized bool) {
	if e.User.ID == "" {
		return nil, false
	}
	c.upsertUser(e.User)
	user := c.canonicalUser(e.User)

	found := c.updateGuild(e.GuildID, func(g *model.Guild) {
		if m := g.Members[user.ID]; m != nil {
			prev = m.Clone()
			e.patch(m, user)
			return
		}
		m := &model.Member{GuildID: e.GuildID, Roles: []string{}}
		e.patch(m, user)
		g.Members[user.ID] = m
		prev = m.Clone()
		synthesized = true
	})
	if !found {
		c.metrics.missingEntity(KindGuildMemberUpdate)
	}
	return prev, synthesized
}

func (e *GuildMemberUpdate) patch(m *model.Member, user model.User) {
	m.User = user
	e.Nick.Apply(&m.Nick)
	e.Avatar.Apply(&m.Avatar)
	if roles, ok := e.Roles.Get(); ok {
		m.Roles = slices.Clone(roles)
	}
	applyTime(e.JoinedAt, &m.JoinedAt)
	applyTime(e.PremiumSince, &m.PremiumSince)
	applyTime(e.CommunicationDisabledUntil, &m.CommunicationDisabledUntil)
	applyTime(e.UnusualDMActivityUntil, &m.UnusualDMActivityUntil)
	e.Pending.Apply(&m.Pending)
	e.Deaf.Apply(&m.Deaf)
	e.Mute.Apply(&m.Mute)
	e.Flags.Apply(&m.Flags)
}

func (e *GuildMemberUpdate) apply(c *Cache) any {
	prev, synthesized := e.Update(c)
	switch {
	case prev == nil:
		return nil
	case synthesized:
		return SynthesizedMember{Member: prev}
	default:
		return prev
	}
}

func applyTime(f model.Field[*time.Time], dst **time.Time) {
	v, ok := f.Get()
	if !ok {
		return
	}
	if v == nil {
		*dst = nil
		return
	}
	t := *v
	*dst = &t
}

// GuildMembersChunk is one page of a guild member request.
type GuildMembersChunk struct {
	GuildID string
	Members []*model.Member
}

// Update writes every member's user to the global table and stores the members with
// normalized users. The member count is left alone: chunks describe members already
// counted by the guild snapshot.
func (e *GuildMembersChunk) Update(c *Cache) {
	stored := make([]*model.Member, 0, len(e.Members))
	for _, m := range e.Members {
		if m == nil || m.User.ID == "" {
			continue
		}
		c.upsertUser(m.User)
		m.User = c.canonicalUser(m.User)
		m.GuildID = e.GuildID
		stored = append(stored, m.Clone())
	}
	if !c.updateGuild(e.GuildID, func(g *model.Guild) {
		for _, m := range stored {
			g.Members[m.User.ID] = m
		}
	}) {
		c.metrics.missingEntity(KindGuildMembersChunk)
	}
}

func (e *GuildMembersChunk) apply(c *Cache) any {
	e.Update(c)
	return nil
}
