package model

import (
	"slices"
	"time"
)

// ChannelType mirrors Discord's channel type numbers.
type ChannelType int

const (
	ChannelTypeGuildText          ChannelType = 0
	ChannelTypeDM                 ChannelType = 1
	ChannelTypeGuildVoice         ChannelType = 2
	ChannelTypeGroupDM            ChannelType = 3
	ChannelTypeGuildCategory      ChannelType = 4
	ChannelTypeGuildNews          ChannelType = 5
	ChannelTypeGuildNewsThread    ChannelType = 10
	ChannelTypeGuildPublicThread  ChannelType = 11
	ChannelTypeGuildPrivateThread ChannelType = 12
	ChannelTypeGuildStageVoice    ChannelType = 13
	ChannelTypeGuildForum         ChannelType = 15
	ChannelTypeGuildMedia         ChannelType = 16
)

// IsThread reports whether the type is one of the thread types.
func (t ChannelType) IsThread() bool {
	switch t {
	case ChannelTypeGuildNewsThread, ChannelTypeGuildPublicThread, ChannelTypeGuildPrivateThread:
		return true
	}
	return false
}

// PermissionOverwrite is a role or member permission override on a channel.
type PermissionOverwrite struct {
	ID    string `json:"id"`
	Type  int    `json:"type"`
	Allow int64  `json:"allow,string"`
	Deny  int64  `json:"deny,string"`
}

// ThreadMetadata holds the thread-only fields of a channel.
type ThreadMetadata struct {
	Archived            bool       `json:"archived"`
	AutoArchiveDuration int        `json:"auto_archive_duration"`
	ArchiveTimestamp    time.Time  `json:"archive_timestamp"`
	Locked              bool       `json:"locked"`
	Invitable           bool       `json:"invitable,omitempty"`
	CreateTimestamp     *time.Time `json:"create_timestamp,omitempty"`
}

// Channel is a guild channel or thread. GuildID is a lookup key back to the owning guild,
// never an ownership link.
type Channel struct {
	ID                   string                 `json:"id"`
	GuildID              string                 `json:"guild_id,omitempty"`
	Type                 ChannelType            `json:"type"`
	Name                 string                 `json:"name"`
	Topic                string                 `json:"topic,omitempty"`
	Position             int                    `json:"position"`
	NSFW                 bool                   `json:"nsfw,omitempty"`
	ParentID             string                 `json:"parent_id,omitempty"`
	OwnerID              string                 `json:"owner_id,omitempty"`
	LastMessageID        string                 `json:"last_message_id,omitempty"`
	LastPinTimestamp     *time.Time             `json:"last_pin_timestamp,omitempty"`
	Bitrate              int                    `json:"bitrate,omitempty"`
	UserLimit            int                    `json:"user_limit,omitempty"`
	RateLimitPerUser     int                    `json:"rate_limit_per_user,omitempty"`
	Status               string                 `json:"status,omitempty"`
	Flags                int                    `json:"flags,omitempty"`
	PermissionOverwrites []*PermissionOverwrite `json:"permission_overwrites,omitempty"`
	ThreadMetadata       *ThreadMetadata        `json:"thread_metadata,omitempty"`
}

// Clone returns a deep copy of c.
func (c *Channel) Clone() *Channel {
	if c == nil {
		return nil
	}
	out := *c
	out.LastPinTimestamp = cloneTime(c.LastPinTimestamp)
	if c.PermissionOverwrites != nil {
		out.PermissionOverwrites = make([]*PermissionOverwrite, len(c.PermissionOverwrites))
		for i, po := range c.PermissionOverwrites {
			if po != nil {
				v := *po
				out.PermissionOverwrites[i] = &v
			}
		}
	}
	if c.ThreadMetadata != nil {
		tm := *c.ThreadMetadata
		tm.CreateTimestamp = cloneTime(c.ThreadMetadata.CreateTimestamp)
		out.ThreadMetadata = &tm
	}
	return &out
}

// Role is a guild role.
type Role struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Color        int    `json:"color"`
	Hoist        bool   `json:"hoist"`
	Icon         string `json:"icon,omitempty"`
	UnicodeEmoji string `json:"unicode_emoji,omitempty"`
	Position     int    `json:"position"`
	Permissions  int64  `json:"permissions,string"`
	Managed      bool   `json:"managed"`
	Mentionable  bool   `json:"mentionable"`
	Flags        int    `json:"flags,omitempty"`
}

// Clone returns a copy of r.
func (r *Role) Clone() *Role {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Emoji is a custom guild emoji.
type Emoji struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Roles         []string `json:"roles,omitempty"`
	Animated      bool     `json:"animated,omitempty"`
	Managed       bool     `json:"managed,omitempty"`
	RequireColons bool     `json:"require_colons,omitempty"`
	Available     bool     `json:"available"`
}

// Clone returns a deep copy of e.
func (e *Emoji) Clone() *Emoji {
	if e == nil {
		return nil
	}
	c := *e
	c.Roles = slices.Clone(e.Roles)
	return &c
}

// Sticker is a guild sticker.
type Sticker struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Tags        string `json:"tags,omitempty"`
	FormatType  int    `json:"format_type"`
	Available   bool   `json:"available"`
}

// Clone returns a copy of s.
func (s *Sticker) Clone() *Sticker {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
