package model

import (
	"maps"
	"slices"
	"time"
)

// Guild is a server and everything the cache holds for it. Nested records are owned by
// the guild; top-level indices only refer to them by id.
type Guild struct {
	ID                          string   `json:"id"`
	Name                        string   `json:"name"`
	Icon                        string   `json:"icon,omitempty"`
	Banner                      string   `json:"banner,omitempty"`
	Splash                      string   `json:"splash,omitempty"`
	DiscoverySplash             string   `json:"discovery_splash,omitempty"`
	Description                 string   `json:"description,omitempty"`
	OwnerID                     string   `json:"owner_id"`
	VanityURLCode               string   `json:"vanity_url_code,omitempty"`
	PreferredLocale             string   `json:"preferred_locale,omitempty"`
	AfkChannelID                string   `json:"afk_channel_id,omitempty"`
	AfkTimeout                  int      `json:"afk_timeout"`
	SystemChannelID             string   `json:"system_channel_id,omitempty"`
	SystemChannelFlags          int      `json:"system_channel_flags"`
	RulesChannelID              string   `json:"rules_channel_id,omitempty"`
	PublicUpdatesChannelID      string   `json:"public_updates_channel_id,omitempty"`
	WidgetEnabled               bool     `json:"widget_enabled,omitempty"`
	WidgetChannelID             string   `json:"widget_channel_id,omitempty"`
	VerificationLevel           int      `json:"verification_level"`
	DefaultMessageNotifications int      `json:"default_message_notifications"`
	ExplicitContentFilter       int      `json:"explicit_content_filter"`
	MfaLevel                    int      `json:"mfa_level"`
	NSFWLevel                   int      `json:"nsfw_level"`
	PremiumTier                 int      `json:"premium_tier"`
	PremiumSubscriptionCount    int      `json:"premium_subscription_count"`
	MaxMembers                  int      `json:"max_members,omitempty"`
	MaxPresences                int      `json:"max_presences,omitempty"`
	MaxVideoChannelUsers        int      `json:"max_video_channel_users,omitempty"`
	Features                    []string `json:"features"`
	Large                       bool     `json:"large"`

	JoinedAt time.Time `json:"joined_at"`

	// MemberCount is adjusted by member add/remove events. Member lists are often cached
	// partially, so it is not expected to equal len(Members).
	MemberCount int `json:"member_count"`

	Channels    map[string]*Channel    `json:"channels"`
	Threads     []*Channel             `json:"threads"`
	Members     map[string]*Member     `json:"members"`
	Roles       map[string]*Role       `json:"roles"`
	Presences   map[string]*Presence   `json:"presences"`
	VoiceStates map[string]*VoiceState `json:"voice_states"`
	Emojis      map[string]*Emoji      `json:"emojis"`
	Stickers    map[string]*Sticker    `json:"stickers"`
}

// NewGuild returns a guild with every nested table allocated.
func NewGuild(id string) *Guild {
	g := &Guild{ID: id}
	g.ensureTables()
	return g
}

func (g *Guild) ensureTables() {
	if g.Channels == nil {
		g.Channels = make(map[string]*Channel)
	}
	if g.Members == nil {
		g.Members = make(map[string]*Member)
	}
	if g.Roles == nil {
		g.Roles = make(map[string]*Role)
	}
	if g.Presences == nil {
		g.Presences = make(map[string]*Presence)
	}
	if g.VoiceStates == nil {
		g.VoiceStates = make(map[string]*VoiceState)
	}
	if g.Emojis == nil {
		g.Emojis = make(map[string]*Emoji)
	}
	if g.Stickers == nil {
		g.Stickers = make(map[string]*Sticker)
	}
}

// Clone returns a deep copy of g. Nested tables of the copy are always allocated.
func (g *Guild) Clone() *Guild {
	if g == nil {
		return nil
	}
	c := *g
	c.Features = slices.Clone(g.Features)
	c.Channels = cloneTable(g.Channels, (*Channel).Clone)
	c.Members = cloneTable(g.Members, (*Member).Clone)
	c.Roles = cloneTable(g.Roles, (*Role).Clone)
	c.Presences = cloneTable(g.Presences, (*Presence).Clone)
	c.VoiceStates = cloneTable(g.VoiceStates, (*VoiceState).Clone)
	c.Emojis = cloneTable(g.Emojis, (*Emoji).Clone)
	c.Stickers = cloneTable(g.Stickers, (*Sticker).Clone)
	if g.Threads != nil {
		c.Threads = make([]*Channel, len(g.Threads))
		for i, t := range g.Threads {
			c.Threads[i] = t.Clone()
		}
	}
	c.ensureTables()
	return &c
}

// Thread returns the index of the thread with the given id in g.Threads, or -1.
func (g *Guild) Thread(id string) int {
	return slices.IndexFunc(g.Threads, func(t *Channel) bool { return t != nil && t.ID == id })
}

// ChannelIDs returns the ids of the guild's channels.
func (g *Guild) ChannelIDs() []string {
	return slices.Collect(maps.Keys(g.Channels))
}

// ThreadIDs returns the ids of the guild's threads in order.
func (g *Guild) ThreadIDs() []string {
	ids := make([]string, 0, len(g.Threads))
	for _, t := range g.Threads {
		if t != nil {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// PartialGuild carries the updatable subset of guild fields reported by a guild update.
// Unset fields leave the cached guild untouched.
type PartialGuild struct {
	ID                          string
	Name                        Field[string]
	Icon                        Field[string]
	Banner                      Field[string]
	Splash                      Field[string]
	DiscoverySplash             Field[string]
	Description                 Field[string]
	OwnerID                     Field[string]
	VanityURLCode               Field[string]
	PreferredLocale             Field[string]
	AfkChannelID                Field[string]
	AfkTimeout                  Field[int]
	SystemChannelID             Field[string]
	SystemChannelFlags          Field[int]
	RulesChannelID              Field[string]
	PublicUpdatesChannelID      Field[string]
	WidgetEnabled               Field[bool]
	WidgetChannelID             Field[string]
	VerificationLevel           Field[int]
	DefaultMessageNotifications Field[int]
	ExplicitContentFilter       Field[int]
	MfaLevel                    Field[int]
	NSFWLevel                   Field[int]
	PremiumTier                 Field[int]
	PremiumSubscriptionCount    Field[int]
	MaxMembers                  Field[int]
	MaxPresences                Field[int]
	MaxVideoChannelUsers        Field[int]
	Features                    Field[[]string]
	Roles                       Field[map[string]*Role]
}

// ApplyTo writes the set fields of p into g.
func (p *PartialGuild) ApplyTo(g *Guild) {
	p.Name.Apply(&g.Name)
	p.Icon.Apply(&g.Icon)
	p.Banner.Apply(&g.Banner)
	p.Splash.Apply(&g.Splash)
	p.DiscoverySplash.Apply(&g.DiscoverySplash)
	p.Description.Apply(&g.Description)
	p.OwnerID.Apply(&g.OwnerID)
	p.VanityURLCode.Apply(&g.VanityURLCode)
	p.PreferredLocale.Apply(&g.PreferredLocale)
	p.AfkChannelID.Apply(&g.AfkChannelID)
	p.AfkTimeout.Apply(&g.AfkTimeout)
	p.SystemChannelID.Apply(&g.SystemChannelID)
	p.SystemChannelFlags.Apply(&g.SystemChannelFlags)
	p.RulesChannelID.Apply(&g.RulesChannelID)
	p.PublicUpdatesChannelID.Apply(&g.PublicUpdatesChannelID)
	p.WidgetEnabled.Apply(&g.WidgetEnabled)
	p.WidgetChannelID.Apply(&g.WidgetChannelID)
	p.VerificationLevel.Apply(&g.VerificationLevel)
	p.DefaultMessageNotifications.Apply(&g.DefaultMessageNotifications)
	p.ExplicitContentFilter.Apply(&g.ExplicitContentFilter)
	p.MfaLevel.Apply(&g.MfaLevel)
	p.NSFWLevel.Apply(&g.NSFWLevel)
	p.PremiumTier.Apply(&g.PremiumTier)
	p.PremiumSubscriptionCount.Apply(&g.PremiumSubscriptionCount)
	p.MaxMembers.Apply(&g.MaxMembers)
	p.MaxPresences.Apply(&g.MaxPresences)
	p.MaxVideoChannelUsers.Apply(&g.MaxVideoChannelUsers)
	if v, ok := p.Features.Get(); ok {
		g.Features = slices.Clone(v)
	}
	if v, ok := p.Roles.Get(); ok {
		g.Roles = cloneTable(v, (*Role).Clone)
	}
}

func cloneTable[T any](src map[string]*T, clone func(*T) *T) map[string]*T {
	dst := make(map[string]*T, len(src))
	for k, v := range src {
		dst[k] = clone(v)
	}
	return dst
}
