package model

import (
	"slices"
	"time"
)

// Attachment is a file attached to a message.
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	URL         string `json:"url"`
	Size        int    `json:"size"`
}

// Embed is the subset of a rich embed the cache keeps.
type Embed struct {
	Type        string `json:"type,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Color       int    `json:"color,omitempty"`
}

// Message is a channel message. It is owned by its channel's message log.
type Message struct {
	ID              string       `json:"id"`
	ChannelID       string       `json:"channel_id"`
	GuildID         string       `json:"guild_id,omitempty"`
	Author          User         `json:"author"`
	Member          *Member      `json:"member,omitempty"`
	Content         string       `json:"content"`
	Timestamp       time.Time    `json:"timestamp"`
	EditedTimestamp *time.Time   `json:"edited_timestamp,omitempty"`
	TTS             bool         `json:"tts"`
	MentionEveryone bool         `json:"mention_everyone"`
	Mentions        []User       `json:"mentions,omitempty"`
	MentionRoles    []string     `json:"mention_roles,omitempty"`
	Attachments     []Attachment `json:"attachments,omitempty"`
	Embeds          []Embed      `json:"embeds,omitempty"`
	Pinned          bool         `json:"pinned"`
	Type            int          `json:"type"`
	Flags           int          `json:"flags,omitempty"`
	WebhookID       string       `json:"webhook_id,omitempty"`
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.Member = m.Member.Clone()
	c.EditedTimestamp = cloneTime(m.EditedTimestamp)
	c.Mentions = slices.Clone(m.Mentions)
	c.MentionRoles = slices.Clone(m.MentionRoles)
	c.Attachments = slices.Clone(m.Attachments)
	c.Embeds = slices.Clone(m.Embeds)
	return &c
}

// MessagePatch carries the fields of a message edit. Discord only sends the fields that
// changed, so every field is optional.
type MessagePatch struct {
	Content         Field[string]
	EditedTimestamp Field[*time.Time]
	TTS             Field[bool]
	MentionEveryone Field[bool]
	Mentions        Field[[]User]
	MentionRoles    Field[[]string]
	Attachments     Field[[]Attachment]
	Embeds          Field[[]Embed]
	Pinned          Field[bool]
	Flags           Field[int]
	Author          Field[User]
}

// ApplyTo writes the set fields of p into m.
func (p *MessagePatch) ApplyTo(m *Message) {
	p.Content.Apply(&m.Content)
	if ts, ok := p.EditedTimestamp.Get(); ok {
		m.EditedTimestamp = cloneTime(ts)
	}
	p.TTS.Apply(&m.TTS)
	p.MentionEveryone.Apply(&m.MentionEveryone)
	if v, ok := p.Mentions.Get(); ok {
		m.Mentions = slices.Clone(v)
	}
	if v, ok := p.MentionRoles.Get(); ok {
		m.MentionRoles = slices.Clone(v)
	}
	if v, ok := p.Attachments.Get(); ok {
		m.Attachments = slices.Clone(v)
	}
	if v, ok := p.Embeds.Get(); ok {
		m.Embeds = slices.Clone(v)
	}
	p.Pinned.Apply(&m.Pinned)
	p.Flags.Apply(&m.Flags)
	p.Author.Apply(&m.Author)
}
