package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/discordstate/pkg/discord/cache"
	"github.com/small-frappuccino/discordstate/pkg/discord/model"
	"github.com/small-frappuccino/discordstate/pkg/log"
)

// convertRaw decodes the gateway kinds that must be read from raw JSON.
func convertRaw(e *discordgo.Event) (cache.Event, bool) {
	if e == nil || len(e.RawData) == 0 {
		return nil, false
	}
	var (
		ev  cache.Event
		err error
	)
	switch cache.EventKind(e.Type) {
	case cache.KindMessageUpdate:
		ev, err = decodeMessageUpdate(e.RawData)
	case cache.KindGuildMemberUpdate:
		ev, err = decodeMemberUpdate(e.RawData)
	case cache.KindGuildUpdate:
		ev, err = decodeGuildUpdate(e.RawData)
	case cache.KindVoiceChannelStatusUpdate:
		ev, err = decodeVoiceChannelStatus(e.RawData)
	default:
		return nil, false
	}
	if err != nil {
		log.DiscordLogger().Warn("Dropping undecodable gateway payload", "type", e.Type, "err", err)
		return nil, false
	}
	return ev, true
}

// decoder reads optional fields out of a JSON object, keeping the first error.
type decoder struct {
	fields map[string]json.RawMessage
	err    error
}

func newDecoder(data []byte) (*decoder, error) {
	d := &decoder{}
	if err := json.Unmarshal(data, &d.fields); err != nil {
		return nil, err
	}
	return d, nil
}

// field sets dst when key is present. An explicit null sets the zero value.
func field[T any](d *decoder, key string, dst *model.Field[T]) {
	raw, ok := d.fields[key]
	if !ok || d.err != nil {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		d.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = model.Some(v)
}

// required decodes a mandatory key.
func required[T any](d *decoder, key string, dst *T) {
	if d.err != nil {
		return
	}
	raw, ok := d.fields[key]
	if !ok {
		d.err = fmt.Errorf("missing %s", key)
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		d.err = fmt.Errorf("%s: %w", key, err)
	}
}

func optional[T any](d *decoder, key string, dst *T) {
	if _, ok := d.fields[key]; ok {
		required(d, key, dst)
	}
}

var errMissingID = errors.New("payload without id")

func decodeMessageUpdate(data []byte) (cache.Event, error) {
	d, err := newDecoder(data)
	if err != nil {
		return nil, err
	}
	ev := &cache.MessageUpdate{}
	required(d, "id", &ev.ID)
	required(d, "channel_id", &ev.ChannelID)
	optional(d, "guild_id", &ev.GuildID)

	p := &ev.Patch
	field(d, "content", &p.Content)
	field(d, "edited_timestamp", &p.EditedTimestamp)
	field(d, "tts", &p.TTS)
	field(d, "mention_everyone", &p.MentionEveryone)
	field(d, "mentions", &p.Mentions)
	field(d, "mention_roles", &p.MentionRoles)
	field(d, "attachments", &p.Attachments)
	field(d, "embeds", &p.Embeds)
	field(d, "pinned", &p.Pinned)
	field(d, "flags", &p.Flags)
	field(d, "author", &p.Author)
	if d.err != nil {
		return nil, d.err
	}
	if ev.ID == "" {
		return nil, errMissingID
	}
	return ev, nil
}

func decodeMemberUpdate(data []byte) (cache.Event, error) {
	d, err := newDecoder(data)
	if err != nil {
		return nil, err
	}
	ev := &cache.GuildMemberUpdate{}
	required(d, "guild_id", &ev.GuildID)
	required(d, "user", &ev.User)
	field(d, "nick", &ev.Nick)
	field(d, "avatar", &ev.Avatar)
	field(d, "roles", &ev.Roles)
	field(d, "joined_at", &ev.JoinedAt)
	field(d, "premium_since", &ev.PremiumSince)
	field(d, "communication_disabled_until", &ev.CommunicationDisabledUntil)
	field(d, "unusual_dm_activity_until", &ev.UnusualDMActivityUntil)
	field(d, "pending", &ev.Pending)
	field(d, "deaf", &ev.Deaf)
	field(d, "mute", &ev.Mute)
	field(d, "flags", &ev.Flags)
	if d.err != nil {
		return nil, d.err
	}
	if ev.User.ID == "" {
		return nil, errMissingID
	}
	return ev, nil
}

func decodeGuildUpdate(data []byte) (cache.Event, error) {
	d, err := newDecoder(data)
	if err != nil {
		return nil, err
	}
	g := model.PartialGuild{}
	required(d, "id", &g.ID)
	field(d, "name", &g.Name)
	field(d, "icon", &g.Icon)
	field(d, "banner", &g.Banner)
	field(d, "splash", &g.Splash)
	field(d, "discovery_splash", &g.DiscoverySplash)
	field(d, "description", &g.Description)
	field(d, "owner_id", &g.OwnerID)
	field(d, "vanity_url_code", &g.VanityURLCode)
	field(d, "preferred_locale", &g.PreferredLocale)
	field(d, "afk_channel_id", &g.AfkChannelID)
	field(d, "afk_timeout", &g.AfkTimeout)
	field(d, "system_channel_id", &g.SystemChannelID)
	field(d, "system_channel_flags", &g.SystemChannelFlags)
	field(d, "rules_channel_id", &g.RulesChannelID)
	field(d, "public_updates_channel_id", &g.PublicUpdatesChannelID)
	field(d, "widget_enabled", &g.WidgetEnabled)
	field(d, "widget_channel_id", &g.WidgetChannelID)
	field(d, "verification_level", &g.VerificationLevel)
	field(d, "default_message_notifications", &g.DefaultMessageNotifications)
	field(d, "explicit_content_filter", &g.ExplicitContentFilter)
	field(d, "mfa_level", &g.MfaLevel)
	field(d, "nsfw_level", &g.NSFWLevel)
	field(d, "premium_tier", &g.PremiumTier)
	field(d, "premium_subscription_count", &g.PremiumSubscriptionCount)
	field(d, "max_members", &g.MaxMembers)
	field(d, "max_presences", &g.MaxPresences)
	field(d, "max_video_channel_users", &g.MaxVideoChannelUsers)
	field(d, "features", &g.Features)

	var roles model.Field[[]*model.Role]
	field(d, "roles", &roles)
	if d.err != nil {
		return nil, d.err
	}
	if list, ok := roles.Get(); ok {
		table := make(map[string]*model.Role, len(list))
		for _, r := range list {
			if r != nil {
				table[r.ID] = r
			}
		}
		g.Roles = model.Some(table)
	}
	if g.ID == "" {
		return nil, errMissingID
	}
	return &cache.GuildUpdate{Guild: g}, nil
}

func decodeVoiceChannelStatus(data []byte) (cache.Event, error) {
	var payload struct {
		ID      string  `json:"id"`
		GuildID string  `json:"guild_id"`
		Status  *string `json:"status"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload.ID == "" {
		return nil, errMissingID
	}
	ev := &cache.VoiceChannelStatusUpdate{GuildID: payload.GuildID, ChannelID: payload.ID}
	if payload.Status != nil {
		ev.Status = *payload.Status
	}
	return ev, nil
}
