package model

import (
	"slices"
	"time"
)

// User is a global account identity, independent of any guild.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	GlobalName    string `json:"global_name,omitempty"`
	Discriminator string `json:"discriminator,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
	Banner        string `json:"banner,omitempty"`
	AccentColor   int    `json:"accent_color,omitempty"`
	Bot           bool   `json:"bot,omitempty"`
	System        bool   `json:"system,omitempty"`
	PublicFlags   int    `json:"public_flags,omitempty"`
}

// IsPartial reports whether only the id is known. Presence payloads usually carry
// nothing but the id.
func (u User) IsPartial() bool {
	return u.Username == ""
}

// CurrentUser is the identity the connection is authenticated as.
type CurrentUser struct {
	User
	Email      string `json:"email,omitempty"`
	Verified   bool   `json:"verified,omitempty"`
	MFAEnabled bool   `json:"mfa_enabled,omitempty"`
	Locale     string `json:"locale,omitempty"`
}

// MemberFlags mirrors the guild member flags bitfield.
type MemberFlags int

const (
	MemberFlagDidRejoin MemberFlags = 1 << iota
	MemberFlagCompletedOnboarding
	MemberFlagBypassesVerification
	MemberFlagStartedOnboarding
)

// Member is a user's membership in one guild. The embedded User is a denormalized copy
// of the global user table entry at the time the member was last touched.
type Member struct {
	GuildID                    string      `json:"guild_id"`
	User                       User        `json:"user"`
	Nick                       string      `json:"nick,omitempty"`
	Avatar                     string      `json:"avatar,omitempty"`
	Roles                      []string    `json:"roles"`
	JoinedAt                   *time.Time  `json:"joined_at,omitempty"`
	PremiumSince               *time.Time  `json:"premium_since,omitempty"`
	CommunicationDisabledUntil *time.Time  `json:"communication_disabled_until,omitempty"`
	UnusualDMActivityUntil     *time.Time  `json:"unusual_dm_activity_until,omitempty"`
	Deaf                       bool        `json:"deaf"`
	Mute                       bool        `json:"mute"`
	Pending                    bool        `json:"pending,omitempty"`
	Flags                      MemberFlags `json:"flags"`
	Permissions                *int64      `json:"permissions,omitempty"`
}

// Clone returns a deep copy of m.
func (m *Member) Clone() *Member {
	if m == nil {
		return nil
	}
	c := *m
	c.Roles = slices.Clone(m.Roles)
	c.JoinedAt = cloneTime(m.JoinedAt)
	c.PremiumSince = cloneTime(m.PremiumSince)
	c.CommunicationDisabledUntil = cloneTime(m.CommunicationDisabledUntil)
	c.UnusualDMActivityUntil = cloneTime(m.UnusualDMActivityUntil)
	if m.Permissions != nil {
		p := *m.Permissions
		c.Permissions = &p
	}
	return &c
}

// Status is an online status.
type Status string

const (
	StatusOnline       Status = "online"
	StatusIdle         Status = "idle"
	StatusDoNotDisturb Status = "dnd"
	StatusInvisible    Status = "invisible"
	StatusOffline      Status = "offline"
)

// Activity is one entry of a presence's activity list.
type Activity struct {
	Name    string `json:"name"`
	Type    int    `json:"type"`
	URL     string `json:"url,omitempty"`
	State   string `json:"state,omitempty"`
	Details string `json:"details,omitempty"`
}

// ClientStatus is the per-platform status of a presence.
type ClientStatus struct {
	Desktop Status `json:"desktop,omitempty"`
	Mobile  Status `json:"mobile,omitempty"`
	Web     Status `json:"web,omitempty"`
}

// Presence is a user's status within a guild. A guild only holds presences for users
// that are not offline.
type Presence struct {
	User         User         `json:"user"`
	GuildID      string       `json:"guild_id,omitempty"`
	Status       Status       `json:"status"`
	Activities   []Activity   `json:"activities,omitempty"`
	ClientStatus ClientStatus `json:"client_status"`
}

// Clone returns a deep copy of p.
func (p *Presence) Clone() *Presence {
	if p == nil {
		return nil
	}
	c := *p
	c.Activities = slices.Clone(p.Activities)
	return &c
}

// VoiceState is a user's connection to a voice channel.
type VoiceState struct {
	GuildID                 string     `json:"guild_id,omitempty"`
	ChannelID               string     `json:"channel_id,omitempty"`
	UserID                  string     `json:"user_id"`
	Member                  *Member    `json:"member,omitempty"`
	SessionID               string     `json:"session_id"`
	Deaf                    bool       `json:"deaf"`
	Mute                    bool       `json:"mute"`
	SelfDeaf                bool       `json:"self_deaf"`
	SelfMute                bool       `json:"self_mute"`
	SelfStream              bool       `json:"self_stream,omitempty"`
	SelfVideo               bool       `json:"self_video"`
	Suppress                bool       `json:"suppress"`
	RequestToSpeakTimestamp *time.Time `json:"request_to_speak_timestamp,omitempty"`
}

// Clone returns a deep copy of v.
func (v *VoiceState) Clone() *VoiceState {
	if v == nil {
		return nil
	}
	c := *v
	c.Member = v.Member.Clone()
	c.RequestToSpeakTimestamp = cloneTime(v.RequestToSpeakTimestamp)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
