package gateway

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/discordstate/pkg/discord/cache"
	"github.com/small-frappuccino/discordstate/pkg/discord/model"
)

// Convert maps an event delivered by a discordgo session to a cache event.
//
// Most kinds are taken from discordgo's typed structs. Kinds whose payloads are partial
// (MESSAGE_UPDATE, GUILD_MEMBER_UPDATE, GUILD_UPDATE) and kinds discordgo does not decode
// are taken from the raw *discordgo.Event, because only the raw JSON tells an absent field
// from a zero one. The typed structs of those kinds convert to false, so a session that
// delivers both forms yields exactly one cache event per gateway dispatch.
func Convert(v any) (cache.Event, bool) {
	switch e := v.(type) {
	case *discordgo.Event:
		return convertRaw(e)

	case *discordgo.Ready:
		ev := &cache.Ready{User: currentUser(e.User)}
		if e.Shard != nil {
			ev.Shard = &cache.ShardInfo{ID: e.Shard[0], Total: e.Shard[1]}
		}
		for _, g := range e.Guilds {
			if g != nil {
				ev.Guilds = append(ev.Guilds, g.ID)
			}
		}
		return ev, true
	case *discordgo.UserUpdate:
		if e.User == nil {
			return nil, false
		}
		return &cache.UserUpdate{User: currentUser(e.User)}, true

	case *discordgo.ChannelCreate:
		if e.Channel == nil {
			return nil, false
		}
		return &cache.ChannelCreate{Channel: channel(e.Channel)}, true
	case *discordgo.ChannelUpdate:
		if e.Channel == nil {
			return nil, false
		}
		return &cache.ChannelUpdate{Channel: channel(e.Channel)}, true
	case *discordgo.ChannelDelete:
		if e.Channel == nil {
			return nil, false
		}
		return &cache.ChannelDelete{Channel: channel(e.Channel)}, true
	case *discordgo.ChannelPinsUpdate:
		return &cache.ChannelPinsUpdate{
			GuildID:          e.GuildID,
			ChannelID:        e.ChannelID,
			LastPinTimestamp: parseTimestamp(e.LastPinTimestamp),
		}, true
	case *discordgo.ThreadCreate:
		if e.Channel == nil {
			return nil, false
		}
		return &cache.ThreadCreate{Thread: channel(e.Channel)}, true
	case *discordgo.ThreadUpdate:
		if e.Channel == nil {
			return nil, false
		}
		return &cache.ThreadUpdate{Thread: channel(e.Channel)}, true
	case *discordgo.ThreadDelete:
		if e.Channel == nil {
			return nil, false
		}
		return &cache.ThreadDelete{ID: e.ID, GuildID: e.GuildID, ParentID: e.ParentID}, true

	case *discordgo.GuildCreate:
		if e.Guild == nil {
			return nil, false
		}
		return &cache.GuildCreate{Guild: guild(e.Guild)}, true
	case *discordgo.GuildDelete:
		if e.Guild == nil {
			return nil, false
		}
		return &cache.GuildDelete{ID: e.ID, Unavailable: e.Unavailable}, true
	case *discordgo.GuildEmojisUpdate:
		return &cache.GuildEmojisUpdate{GuildID: e.GuildID, Emojis: emojiTable(e.Emojis)}, true
	case *discordgo.GuildStickersUpdate:
		return &cache.GuildStickersUpdate{GuildID: e.GuildID, Stickers: stickerTable(e.Stickers)}, true
	case *discordgo.GuildRoleCreate:
		if e.GuildRole == nil || e.Role == nil {
			return nil, false
		}
		return &cache.GuildRoleCreate{GuildID: e.GuildID, Role: role(e.Role)}, true
	case *discordgo.GuildRoleUpdate:
		if e.GuildRole == nil || e.Role == nil {
			return nil, false
		}
		return &cache.GuildRoleUpdate{GuildID: e.GuildID, Role: role(e.Role)}, true
	case *discordgo.GuildRoleDelete:
		return &cache.GuildRoleDelete{GuildID: e.GuildID, RoleID: e.RoleID}, true

	case *discordgo.GuildMemberAdd:
		if e.Member == nil || e.User == nil {
			return nil, false
		}
		return &cache.GuildMemberAdd{Member: member(e.Member)}, true
	case *discordgo.GuildMemberRemove:
		if e.Member == nil || e.User == nil {
			return nil, false
		}
		return &cache.GuildMemberRemove{GuildID: e.GuildID, User: user(e.User)}, true
	case *discordgo.GuildMembersChunk:
		members := make([]*model.Member, 0, len(e.Members))
		for _, m := range e.Members {
			if m != nil && m.User != nil {
				members = append(members, member(m))
			}
		}
		return &cache.GuildMembersChunk{GuildID: e.GuildID, Members: members}, true

	case *discordgo.MessageCreate:
		if e.Message == nil {
			return nil, false
		}
		return &cache.MessageCreate{Message: message(e.Message)}, true
	case *discordgo.MessageDelete:
		if e.Message == nil {
			return nil, false
		}
		return &cache.MessageDelete{ID: e.ID, ChannelID: e.ChannelID, GuildID: e.GuildID}, true
	case *discordgo.MessageDeleteBulk:
		return &cache.MessageDeleteBulk{IDs: e.Messages, ChannelID: e.ChannelID, GuildID: e.GuildID}, true

	case *discordgo.PresenceUpdate:
		if e.User == nil {
			return nil, false
		}
		p := presence(&e.Presence)
		p.GuildID = e.GuildID
		return &cache.PresenceUpdate{Presence: p}, true
	case *discordgo.VoiceStateUpdate:
		if e.VoiceState == nil {
			return nil, false
		}
		return &cache.VoiceStateUpdate{VoiceState: voiceState(e.VoiceState)}, true
	}
	return nil, false
}

func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func user(u *discordgo.User) model.User {
	if u == nil {
		return model.User{}
	}
	return model.User{
		ID:            u.ID,
		Username:      u.Username,
		GlobalName:    u.GlobalName,
		Discriminator: u.Discriminator,
		Avatar:        u.Avatar,
		Banner:        u.Banner,
		AccentColor:   u.AccentColor,
		Bot:           u.Bot,
		System:        u.System,
		PublicFlags:   int(u.PublicFlags),
	}
}

func currentUser(u *discordgo.User) model.CurrentUser {
	if u == nil {
		return model.CurrentUser{}
	}
	return model.CurrentUser{
		User:       user(u),
		Email:      u.Email,
		Verified:   u.Verified,
		MFAEnabled: u.MFAEnabled,
		Locale:     u.Locale,
	}
}

func member(m *discordgo.Member) *model.Member {
	out := &model.Member{
		GuildID:                    m.GuildID,
		User:                       user(m.User),
		Nick:                       m.Nick,
		Avatar:                     m.Avatar,
		Roles:                      append([]string{}, m.Roles...),
		JoinedAt:                   timePtr(m.JoinedAt),
		PremiumSince:               m.PremiumSince,
		CommunicationDisabledUntil: m.CommunicationDisabledUntil,
		Deaf:                       m.Deaf,
		Mute:                       m.Mute,
		Pending:                    m.Pending,
		Flags:                      model.MemberFlags(m.Flags),
	}
	if m.Permissions != 0 {
		p := m.Permissions
		out.Permissions = &p
	}
	return out
}

func channel(c *discordgo.Channel) *model.Channel {
	if c == nil {
		return nil
	}
	out := &model.Channel{
		ID:               c.ID,
		GuildID:          c.GuildID,
		Type:             model.ChannelType(c.Type),
		Name:             c.Name,
		Topic:            c.Topic,
		Position:         c.Position,
		NSFW:             c.NSFW,
		ParentID:         c.ParentID,
		OwnerID:          c.OwnerID,
		LastMessageID:    c.LastMessageID,
		LastPinTimestamp: c.LastPinTimestamp,
		Bitrate:          c.Bitrate,
		UserLimit:        c.UserLimit,
		RateLimitPerUser: c.RateLimitPerUser,
		Flags:            int(c.Flags),
	}
	for _, po := range c.PermissionOverwrites {
		if po == nil {
			continue
		}
		out.PermissionOverwrites = append(out.PermissionOverwrites, &model.PermissionOverwrite{
			ID:    po.ID,
			Type:  int(po.Type),
			Allow: po.Allow,
			Deny:  po.Deny,
		})
	}
	if tm := c.ThreadMetadata; tm != nil {
		out.ThreadMetadata = &model.ThreadMetadata{
			Archived:            tm.Archived,
			AutoArchiveDuration: tm.AutoArchiveDuration,
			ArchiveTimestamp:    tm.ArchiveTimestamp,
			Locked:              tm.Locked,
			Invitable:           tm.Invitable,
		}
	}
	return out
}

func role(r *discordgo.Role) *model.Role {
	return &model.Role{
		ID:           r.ID,
		Name:         r.Name,
		Color:        r.Color,
		Hoist:        r.Hoist,
		Icon:         r.Icon,
		UnicodeEmoji: r.UnicodeEmoji,
		Position:     r.Position,
		Permissions:  r.Permissions,
		Managed:      r.Managed,
		Mentionable:  r.Mentionable,
	}
}

func emojiTable(in []*discordgo.Emoji) map[string]*model.Emoji {
	out := make(map[string]*model.Emoji, len(in))
	for _, e := range in {
		if e == nil {
			continue
		}
		out[e.ID] = &model.Emoji{
			ID:            e.ID,
			Name:          e.Name,
			Roles:         append([]string(nil), e.Roles...),
			Animated:      e.Animated,
			Managed:       e.Managed,
			RequireColons: e.RequireColons,
			Available:     e.Available,
		}
	}
	return out
}

func stickerTable(in []*discordgo.Sticker) map[string]*model.Sticker {
	out := make(map[string]*model.Sticker, len(in))
	for _, s := range in {
		if s == nil {
			continue
		}
		out[s.ID] = &model.Sticker{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Tags:        s.Tags,
			FormatType:  int(s.FormatType),
			Available:   s.Available,
		}
	}
	return out
}

func presence(p *discordgo.Presence) *model.Presence {
	out := &model.Presence{
		User:   user(p.User),
		Status: model.Status(p.Status),
		ClientStatus: model.ClientStatus{
			Desktop: model.Status(p.ClientStatus.Desktop),
			Mobile:  model.Status(p.ClientStatus.Mobile),
			Web:     model.Status(p.ClientStatus.Web),
		},
	}
	for _, a := range p.Activities {
		if a == nil {
			continue
		}
		out.Activities = append(out.Activities, model.Activity{
			Name:    a.Name,
			Type:    int(a.Type),
			URL:     a.URL,
			State:   a.State,
			Details: a.Details,
		})
	}
	return out
}

func voiceState(v *discordgo.VoiceState) *model.VoiceState {
	out := &model.VoiceState{
		GuildID:                 v.GuildID,
		ChannelID:               v.ChannelID,
		UserID:                  v.UserID,
		SessionID:               v.SessionID,
		Deaf:                    v.Deaf,
		Mute:                    v.Mute,
		SelfDeaf:                v.SelfDeaf,
		SelfMute:                v.SelfMute,
		SelfStream:              v.SelfStream,
		SelfVideo:               v.SelfVideo,
		Suppress:                v.Suppress,
		RequestToSpeakTimestamp: v.RequestToSpeakTimestamp,
	}
	if v.Member != nil && v.Member.User != nil {
		out.Member = member(v.Member)
		if out.Member.GuildID == "" {
			out.Member.GuildID = v.GuildID
		}
	}
	return out
}

func message(m *discordgo.Message) *model.Message {
	out := &model.Message{
		ID:              m.ID,
		ChannelID:       m.ChannelID,
		GuildID:         m.GuildID,
		Author:          user(m.Author),
		Content:         m.Content,
		Timestamp:       m.Timestamp,
		EditedTimestamp: m.EditedTimestamp,
		TTS:             m.TTS,
		MentionEveryone: m.MentionEveryone,
		MentionRoles:    append([]string(nil), m.MentionRoles...),
		Pinned:          m.Pinned,
		Type:            int(m.Type),
		Flags:           int(m.Flags),
		WebhookID:       m.WebhookID,
	}
	if m.Member != nil {
		mem := *m.Member
		mem.User = m.Author
		out.Member = member(&mem)
		out.Member.GuildID = m.GuildID
	}
	for _, u := range m.Mentions {
		if u != nil {
			out.Mentions = append(out.Mentions, user(u))
		}
	}
	for _, a := range m.Attachments {
		if a != nil {
			out.Attachments = append(out.Attachments, model.Attachment{
				ID:          a.ID,
				Filename:    a.Filename,
				ContentType: a.ContentType,
				URL:         a.URL,
				Size:        a.Size,
			})
		}
	}
	for _, e := range m.Embeds {
		if e != nil {
			out.Embeds = append(out.Embeds, model.Embed{
				Type:        string(e.Type),
				Title:       e.Title,
				Description: e.Description,
				URL:         e.URL,
				Color:       e.Color,
			})
		}
	}
	return out
}

func guild(g *discordgo.Guild) *model.Guild {
	out := model.NewGuild(g.ID)
	out.Name = g.Name
	out.Icon = g.Icon
	out.Banner = g.Banner
	out.Splash = g.Splash
	out.DiscoverySplash = g.DiscoverySplash
	out.Description = g.Description
	out.OwnerID = g.OwnerID
	out.VanityURLCode = g.VanityURLCode
	out.PreferredLocale = g.PreferredLocale
	out.AfkChannelID = g.AfkChannelID
	out.AfkTimeout = g.AfkTimeout
	out.SystemChannelID = g.SystemChannelID
	out.SystemChannelFlags = int(g.SystemChannelFlags)
	out.RulesChannelID = g.RulesChannelID
	out.PublicUpdatesChannelID = g.PublicUpdatesChannelID
	out.WidgetEnabled = g.WidgetEnabled
	out.WidgetChannelID = g.WidgetChannelID
	out.VerificationLevel = int(g.VerificationLevel)
	out.DefaultMessageNotifications = int(g.DefaultMessageNotifications)
	out.ExplicitContentFilter = int(g.ExplicitContentFilter)
	out.MfaLevel = int(g.MfaLevel)
	out.NSFWLevel = int(g.NSFWLevel)
	out.PremiumTier = int(g.PremiumTier)
	out.PremiumSubscriptionCount = g.PremiumSubscriptionCount
	out.MaxMembers = g.MaxMembers
	out.MaxPresences = g.MaxPresences
	out.MaxVideoChannelUsers = g.MaxVideoChannelUsers
	out.Large = g.Large
	out.JoinedAt = g.JoinedAt
	out.MemberCount = g.MemberCount
	for _, f := range g.Features {
		out.Features = append(out.Features, string(f))
	}

	for _, c := range g.Channels {
		if c != nil {
			out.Channels[c.ID] = channel(c)
		}
	}
	for _, t := range g.Threads {
		if t != nil {
			out.Threads = append(out.Threads, channel(t))
		}
	}
	for _, m := range g.Members {
		if m != nil && m.User != nil {
			out.Members[m.User.ID] = member(m)
		}
	}
	for _, r := range g.Roles {
		if r != nil {
			out.Roles[r.ID] = role(r)
		}
	}
	for _, p := range g.Presences {
		if p != nil && p.User != nil {
			mp := presence(p)
			mp.GuildID = g.ID
			out.Presences[p.User.ID] = mp
		}
	}
	for _, v := range g.VoiceStates {
		if v != nil {
			out.VoiceStates[v.UserID] = voiceState(v)
		}
	}
	out.Emojis = emojiTable(g.Emojis)
	out.Stickers = stickerTable(g.Stickers)
	return out
}
