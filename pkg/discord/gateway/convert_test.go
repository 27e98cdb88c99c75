package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/discordstate/pkg/discord/cache"
	"github.com/small-frappuccino/discordstate/pkg/discord/model"
)

func rawEvent(t *testing.T, kind cache.EventKind, payload string) *discordgo.Event {
	t.Helper()
	if !json.Valid([]byte(payload)) {
		t.Fatalf("invalid test payload: %s", payload)
	}
	return &discordgo.Event{Type: string(kind), RawData: json.RawMessage(payload)}
}

func TestConvertGuildCreate(t *testing.T) {
	joined := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	ev, ok := Convert(&discordgo.GuildCreate{Guild: &discordgo.Guild{
		ID:          "g1",
		Name:        "guild",
		MemberCount: 3,
		Features:    []discordgo.GuildFeature{"COMMUNITY"},
		Channels:    []*discordgo.Channel{{ID: "c1", Name: "general", Type: discordgo.ChannelTypeGuildText}},
		Threads:     []*discordgo.Channel{{ID: "t1", ParentID: "c1", Type: discordgo.ChannelTypeGuildPublicThread}},
		Members: []*discordgo.Member{{
			User:     &discordgo.User{ID: "u1", Username: "alpha"},
			Roles:    []string{"r1"},
			JoinedAt: joined,
		}},
		Roles:       []*discordgo.Role{{ID: "r1", Name: "role", Permissions: 8}},
		Presences:   []*discordgo.Presence{{User: &discordgo.User{ID: "u1"}, Status: discordgo.StatusOnline}},
		VoiceStates: []*discordgo.VoiceState{{UserID: "u1", ChannelID: "c1", GuildID: "g1"}},
		Emojis:      []*discordgo.Emoji{{ID: "e1", Name: "wave"}},
	}})
	if !ok {
		t.Fatalf("guild create not converted")
	}
	gc, ok := ev.(*cache.GuildCreate)
	if !ok {
		t.Fatalf("expected *cache.GuildCreate, got %T", ev)
	}
	g := gc.Guild
	if g.Name != "guild" || g.MemberCount != 3 || len(g.Features) != 1 {
		t.Fatalf("unexpected scalars: %+v", g)
	}
	if g.Channels["c1"].Name != "general" || len(g.Threads) != 1 || !g.Threads[0].Type.IsThread() {
		t.Fatalf("channels not converted: %+v %+v", g.Channels, g.Threads)
	}
	m := g.Members["u1"]
	if m == nil || m.JoinedAt == nil || !m.JoinedAt.Equal(joined) || m.User.Username != "alpha" {
		t.Fatalf("member not converted: %+v", m)
	}
	if g.Roles["r1"].Permissions != 8 || g.Presences["u1"].Status != model.StatusOnline {
		t.Fatalf("roles or presences not converted")
	}
	if g.VoiceStates["u1"].ChannelID != "c1" || g.Emojis["e1"].Name != "wave" {
		t.Fatalf("voice states or emojis not converted")
	}
}

func TestConvertReadyAndGuildDelete(t *testing.T) {
	ev, ok := Convert(&discordgo.Ready{
		User:   &discordgo.User{ID: "bot", Username: "bot", Bot: true, Verified: true},
		Shard:  &[2]int{1, 4},
		Guilds: []*discordgo.Guild{{ID: "g1"}, {ID: "g2"}},
	})
	if !ok {
		t.Fatalf("ready not converted")
	}
	r := ev.(*cache.Ready)
	if r.User.ID != "bot" || !r.User.Verified || r.Shard == nil || r.Shard.ID != 1 || r.Shard.Total != 4 {
		t.Fatalf("unexpected ready: %+v", r)
	}
	if len(r.Guilds) != 2 {
		t.Fatalf("expected two guild ids, got %v", r.Guilds)
	}

	ev, ok = Convert(&discordgo.GuildDelete{Guild: &discordgo.Guild{ID: "g1", Unavailable: true}})
	if !ok {
		t.Fatalf("guild delete not converted")
	}
	if gd := ev.(*cache.GuildDelete); gd.ID != "g1" || !gd.Unavailable {
		t.Fatalf("unexpected guild delete: %+v", gd)
	}
}

func TestConvertMessageCreate(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ev, ok := Convert(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID:          "m1",
		ChannelID:   "c1",
		GuildID:     "g1",
		Content:     "hi",
		Timestamp:   ts,
		Author:      &discordgo.User{ID: "u1", Username: "alpha"},
		Member:      &discordgo.Member{Nick: "a"},
		Mentions:    []*discordgo.User{{ID: "u2"}},
		Attachments: []*discordgo.MessageAttachment{{ID: "a1", Filename: "f.png", Size: 10}},
	}})
	if !ok {
		t.Fatalf("message create not converted")
	}
	m := ev.(*cache.MessageCreate).Message
	if m.Author.Username != "alpha" || !m.Timestamp.Equal(ts) || len(m.Mentions) != 1 || len(m.Attachments) != 1 {
		t.Fatalf("unexpected message: %+v", m)
	}
	if m.Member == nil || m.Member.User.ID != "u1" || m.Member.GuildID != "g1" {
		t.Fatalf("message member should carry the author: %+v", m.Member)
	}
}

func TestConvertPartialKindsOnlyFromRaw(t *testing.T) {
	if _, ok := Convert(&discordgo.MessageUpdate{Message: &discordgo.Message{ID: "m1"}}); ok {
		t.Fatalf("typed message update must be skipped in favour of the raw payload")
	}
	if _, ok := Convert(&discordgo.GuildMemberUpdate{Member: &discordgo.Member{}}); ok {
		t.Fatalf("typed member update must be skipped")
	}
	if _, ok := Convert(&discordgo.GuildUpdate{Guild: &discordgo.Guild{ID: "g1"}}); ok {
		t.Fatalf("typed guild update must be skipped")
	}
	if _, ok := Convert(rawEvent(t, cache.KindMessageCreate, `{"id":"m1"}`)); ok {
		t.Fatalf("raw events of typed kinds must be skipped")
	}
}

func TestConvertRawMessageUpdateKeepsAbsentFieldsUnset(t *testing.T) {
	ev, ok := Convert(rawEvent(t, cache.KindMessageUpdate,
		`{"id":"m1","channel_id":"c1","guild_id":"g1","content":"edited","edited_timestamp":"2024-01-01T00:00:05.000000+00:00","embeds":[]}`))
	if !ok {
		t.Fatalf("message update not converted")
	}
	mu := ev.(*cache.MessageUpdate)
	if mu.ID != "m1" || mu.ChannelID != "c1" || mu.GuildID != "g1" {
		t.Fatalf("unexpected ids: %+v", mu)
	}
	p := mu.Patch
	if v, ok := p.Content.Get(); !ok || v != "edited" {
		t.Fatalf("content not set: %+v", p.Content)
	}
	if ts, ok := p.EditedTimestamp.Get(); !ok || ts == nil || ts.Second() != 5 {
		t.Fatalf("edited timestamp not set: %+v", p.EditedTimestamp)
	}
	if v, ok := p.Embeds.Get(); !ok || len(v) != 0 {
		t.Fatalf("empty embeds must be set, got %+v", p.Embeds)
	}
	if p.Pinned.Set || p.Author.Set || p.Mentions.Set {
		t.Fatalf("absent fields must stay unset: %+v", p)
	}
}

func TestConvertRawMemberUpdate(t *testing.T) {
	ev, ok := Convert(rawEvent(t, cache.KindGuildMemberUpdate,
		`{"guild_id":"g1","user":{"id":"u1","username":"alpha"},"nick":null,"roles":["r1","r2"],"premium_since":null}`))
	if !ok {
		t.Fatalf("member update not converted")
	}
	mu := ev.(*cache.GuildMemberUpdate)
	if mu.GuildID != "g1" || mu.User.Username != "alpha" {
		t.Fatalf("unexpected member update: %+v", mu)
	}
	if v, ok := mu.Nick.Get(); !ok || v != "" {
		t.Fatalf("null nick must clear, got %+v", mu.Nick)
	}
	if v, ok := mu.PremiumSince.Get(); !ok || v != nil {
		t.Fatalf("null premium_since must clear, got %+v", mu.PremiumSince)
	}
	if v, _ := mu.Roles.Get(); len(v) != 2 {
		t.Fatalf("roles not decoded: %+v", mu.Roles)
	}
	if mu.Deaf.Set || mu.JoinedAt.Set {
		t.Fatalf("absent fields must stay unset")
	}

	if _, ok := Convert(rawEvent(t, cache.KindGuildMemberUpdate, `{"guild_id":"g1"}`)); ok {
		t.Fatalf("member update without user must be dropped")
	}
}

func TestConvertRawGuildUpdate(t *testing.T) {
	ev, ok := Convert(rawEvent(t, cache.KindGuildUpdate,
		`{"id":"g1","name":"renamed","roles":[{"id":"r1","name":"mod","permissions":"8"}]}`))
	if !ok {
		t.Fatalf("guild update not converted")
	}
	g := ev.(*cache.GuildUpdate).Guild
	if v, _ := g.Name.Get(); v != "renamed" {
		t.Fatalf("name not set: %+v", g.Name)
	}
	roles, ok := g.Roles.Get()
	if !ok || roles["r1"] == nil || roles["r1"].Permissions != 8 {
		t.Fatalf("roles not decoded: %+v", g.Roles)
	}
	if g.Icon.Set || g.VerificationLevel.Set {
		t.Fatalf("absent fields must stay unset")
	}
}

func TestConvertRawVoiceChannelStatus(t *testing.T) {
	ev, ok := Convert(rawEvent(t, cache.KindVoiceChannelStatusUpdate, `{"id":"v1","guild_id":"g1","status":null}`))
	if !ok {
		t.Fatalf("voice channel status not converted")
	}
	vs := ev.(*cache.VoiceChannelStatusUpdate)
	if vs.ChannelID != "v1" || vs.GuildID != "g1" || vs.Status != "" {
		t.Fatalf("unexpected status update: %+v", vs)
	}
}

func TestConvertRawMalformedIsDropped(t *testing.T) {
	if _, ok := Convert(&discordgo.Event{Type: string(cache.KindMessageUpdate), RawData: json.RawMessage(`{"id":5}`)}); ok {
		t.Fatalf("malformed payload must be dropped")
	}
}
