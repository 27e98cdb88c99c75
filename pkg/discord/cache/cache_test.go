package cache

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/discord/model"
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testUser(id string) model.User {
	return model.User{ID: id, Username: "user-" + id}
}

func testGuild(id string, channelIDs ...string) *model.Guild {
	g := model.NewGuild(id)
	g.Name = "guild-" + id
	g.Icon = "icon-" + id
	g.VerificationLevel = 2
	g.Features = []string{"COMMUNITY"}
	g.Roles["r1"] = &model.Role{ID: "r1", Name: "mod", Permissions: 8}
	for _, cid := range channelIDs {
		g.Channels[cid] = &model.Channel{ID: cid, GuildID: id, Name: "chan-" + cid}
	}
	return g
}

func testMessage(id, channelID, guildID string, offset int) *model.Message {
	return &model.Message{
		ID:        id,
		ChannelID: channelID,
		GuildID:   guildID,
		Author:    testUser("author"),
		Content:   "content " + id,
		Timestamp: testEpoch.Add(time.Duration(offset) * time.Second),
	}
}

func seedGuild(t *testing.T, c *Cache, g *model.Guild) {
	t.Helper()
	c.Update(&GuildCreate{Guild: g})
	if _, ok := c.Guild(g.ID); !ok {
		t.Fatalf("guild %s not cached after create", g.ID)
	}
}

func TestNewCacheIsEmpty(t *testing.T) {
	c := New(Settings{MaxMessages: 10})
	if c.GuildCount() != 0 || c.UserCount() != 0 {
		t.Fatalf("expected empty cache")
	}
	if _, ok := c.CurrentUser(); ok {
		t.Fatalf("expected no current user before ready")
	}
	if got := c.MaxMessages(); got != 10 {
		t.Fatalf("expected max messages 10, got %d", got)
	}
	c.SetMaxMessages(-5)
	if got := c.MaxMessages(); got != 0 {
		t.Fatalf("expected negative max messages to clamp to 0, got %d", got)
	}
}

func TestUpdateNilEventIsNoop(t *testing.T) {
	c := New(Settings{})
	if prev := c.Update(nil); prev != nil {
		t.Fatalf("expected nil previous value, got %v", prev)
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	c := New(Settings{MaxMessages: 5})
	seedGuild(t, c, testGuild("g1", "c1"))
	c.Update(&MessageCreate{Message: testMessage("m1", "c1", "g1", 1)})

	g, _ := c.Guild("g1")
	g.Name = "changed"
	g.Channels["c1"].Name = "changed"
	delete(g.Roles, "r1")

	again, _ := c.Guild("g1")
	if again.Name != "guild-g1" || again.Channels["c1"].Name != "chan-c1" {
		t.Fatalf("guild mutation leaked into cache: %+v", again)
	}
	if _, ok := again.Roles["r1"]; !ok {
		t.Fatalf("role deletion on copy leaked into cache")
	}

	m, _ := c.Message("c1", "m1")
	m.Content = "changed"
	if stored, _ := c.Message("c1", "m1"); stored.Content != "content m1" {
		t.Fatalf("message mutation leaked into cache: %q", stored.Content)
	}
}

func TestChannelAccessorResolvesGuild(t *testing.T) {
	c := New(Settings{})
	seedGuild(t, c, testGuild("g1", "c1", "c2"))

	ch, ok := c.Channel("c2")
	if !ok || ch.GuildID != "g1" {
		t.Fatalf("expected channel c2 in g1, got %+v %v", ch, ok)
	}
	if gid, ok := c.ChannelGuildID("c1"); !ok || gid != "g1" {
		t.Fatalf("expected reverse index c1 -> g1, got %q %v", gid, ok)
	}
	if _, ok := c.Channel("missing"); ok {
		t.Fatalf("expected missing channel to be not found")
	}
}

func TestPayloadIsClonedBeforeStore(t *testing.T) {
	c := New(Settings{})
	seedGuild(t, c, testGuild("g1"))

	ch := &model.Channel{ID: "c9", GuildID: "g1", Name: "before"}
	c.Update(&ChannelCreate{Channel: ch})
	ch.Name = "after"

	stored, _ := c.Channel("c9")
	if stored.Name != "before" {
		t.Fatalf("payload mutation after update leaked into cache: %q", stored.Name)
	}
}

func TestStatsAndMetrics(t *testing.T) {
	c := New(Settings{MaxMessages: 1})
	seedGuild(t, c, testGuild("g1", "c1"))
	c.Update(&MessageCreate{Message: testMessage("m1", "c1", "g1", 1)})
	c.Update(&MessageCreate{Message: testMessage("m2", "c1", "g1", 2)})
	c.Update(&GuildRoleDelete{GuildID: "missing", RoleID: "r1"})

	st := c.Stats()
	if st.Guilds != 1 || st.Channels != 1 || st.Messages != 1 || st.MessageChannels != 1 {
		t.Fatalf("unexpected table sizes: %+v", st)
	}
	if st.Events != 4 {
		t.Fatalf("expected 4 events, got %d", st.Events)
	}
	if st.EventsByKind[KindMessageCreate] != 2 {
		t.Fatalf("expected 2 message creates, got %d", st.EventsByKind[KindMessageCreate])
	}
	if st.MessageEvictions != 1 {
		t.Fatalf("expected 1 eviction, got %d", st.MessageEvictions)
	}
	if st.MissingEntities != 1 {
		t.Fatalf("expected 1 missing entity, got %d", st.MissingEntities)
	}

	var buf bytes.Buffer
	c.WritePrometheus(&buf)
	out := buf.String()
	for _, want := range []string{
		`discordstate_cache_events_total{kind="MESSAGE_CREATE"} 2`,
		`discordstate_cache_message_evictions_total 1`,
		`discordstate_cache_guilds 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, out)
		}
	}
}

func TestConcurrentUpdatesOnDistinctGuilds(t *testing.T) {
	c := New(Settings{MaxMessages: 20})
	const guilds = 16
	const perGuild = 200

	var wg sync.WaitGroup
	for i := 0; i < guilds; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			gid := fmt.Sprintf("g%d", i)
			cid := fmt.Sprintf("c%d", i)
			c.Update(&GuildCreate{Guild: testGuild(gid, cid)})
			for j := 0; j < perGuild; j++ {
				c.Update(&MessageCreate{Message: testMessage(fmt.Sprintf("%s-m%d", cid, j), cid, gid, j)})
				c.Update(&GuildMemberAdd{Member: &model.Member{GuildID: gid, User: testUser(fmt.Sprintf("u%d", j))}})
				c.Guild(gid)
				c.Messages(cid)
			}
		}(i)
	}
	wg.Wait()

	if c.GuildCount() != guilds {
		t.Fatalf("expected %d guilds, got %d", guilds, c.GuildCount())
	}
	for i := 0; i < guilds; i++ {
		cid := fmt.Sprintf("c%d", i)
		if n := c.MessageCount(cid); n != 20 {
			t.Fatalf("channel %s: expected 20 cached messages, got %d", cid, n)
		}
		tracked, cached, ok := c.MemberCounts(fmt.Sprintf("g%d", i))
		if !ok || tracked != perGuild || cached != perGuild {
			t.Fatalf("guild g%d: expected %d members, got tracked=%d cached=%d", i, perGuild, tracked, cached)
		}
	}
}

func TestConcurrentUpdatesOnSameChannel(t *testing.T) {
	c := New(Settings{MaxMessages: 50})
	seedGuild(t, c, testGuild("g1", "c1"))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := fmt.Sprintf("w%d-%d", w, j)
				c.Update(&MessageCreate{Message: testMessage(id, "c1", "g1", j)})
				if j%3 == 0 {
					c.Update(&MessageDelete{ID: id, ChannelID: "c1"})
				}
			}
		}(w)
	}
	wg.Wait()

	n := c.MessageCount("c1")
	if n > 50 {
		t.Fatalf("history exceeded bound: %d", n)
	}
	if got := len(c.Messages("c1")); got != n {
		t.Fatalf("table and queue diverged: count=%d listed=%d", n, got)
	}
}
