package cache

import (
	"github.com/small-frappuccino/discordstate/pkg/discord/model"
)

// ShardInfo identifies the shard a Ready event arrived on.
type ShardInfo struct {
	ID    int
	Total int
}

// defaultShard is assumed when Ready carries no shard information.
var defaultShard = ShardInfo{ID: 0, Total: 1}

// Ready is the first dispatch of a session.
type Ready struct {
	User  model.CurrentUser
	Shard *ShardInfo
	// Guilds lists the guilds of the session. They all start out unavailable and arrive
	// later as GuildCreate events.
	Guilds []string
}

// Update marks every listed guild unavailable and drops any stale copy of it, records the
// shard, and sets the current user. It defines no previous value.
func (e *Ready) Update(c *Cache) {
	for _, id := range e.Guilds {
		if id == "" {
			continue
		}
		c.markUnavailable(id)
	}

	shard := defaultShard
	if e.Shard != nil {
		shard = *e.Shard
	}
	c.recordShard(shard.ID, shard.Total)
	c.setCurrentUser(e.User)
}

func (e *Ready) apply(c *Cache) any {
	e.Update(c)
	return nil
}

// UserUpdate reports a change to the current user.
type UserUpdate struct {
	User model.CurrentUser
}

// Update replaces the current user and returns the previous one, or nil before the first
// Ready.
func (e *UserUpdate) Update(c *Cache) *model.CurrentUser {
	old, had := c.setCurrentUser(e.User)
	if !had {
		return nil
	}
	return &old
}

func (e *UserUpdate) apply(c *Cache) any { return previous(e.Update(c)) }
