package cache

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/discord/model"
)

func TestChannelCreateAndUpdate(t *testing.T) {
	c := New(Settings{})
	seedGuild(t, c, testGuild("g1"))

	if prev := c.Update(&ChannelCreate{Channel: &model.Channel{ID: "c1", GuildID: "g1", Name: "general"}}); prev != nil {
		t.Fatalf("expected no previous channel on create, got %v", prev)
	}
	prev := c.Update(&ChannelUpdate{Channel: &model.Channel{ID: "c1", GuildID: "g1", Name: "renamed"}})
	old, ok := prev.(*model.Channel)
	if !ok || old.Name != "general" {
		t.Fatalf("expected previous channel named general, got %#v", prev)
	}
	if gid, ok := c.ChannelGuildID("c1"); !ok || gid != "g1" {
		t.Fatalf("expected c1 indexed to g1, got %q %v", gid, ok)
	}
}

func TestChannelUpdateIsIdempotent(t *testing.T) {
	c := New(Settings{})
	seedGuild(t, c, testGuild("g1", "c1"))

	update := func() any {
		return c.Update(&ChannelUpdate{Channel: &model.Channel{ID: "c1", GuildID: "g1", Name: "topic", Topic: "news", Position: 3}})
	}
	update()
	first, _ := c.Guild("g1")
	firstIdx, _ := c.ChannelGuildID("c1")

	prev := update()
	second, _ := c.Guild("g1")
	secondIdx, _ := c.ChannelGuildID("c1")

	if !reflect.DeepEqual(first, second) || firstIdx != secondIdx {
		t.Fatalf("second identical update changed the cache")
	}
	if !reflect.DeepEqual(prev, first.Channels["c1"]) {
		t.Fatalf("second update's previous value should equal the first update's result: %#v", prev)
	}
}

func TestChannelCreateForUnknownGuild(t *testing.T) {
	c := New(Settings{})
	if prev := c.Update(&ChannelCreate{Channel: &model.Channel{ID: "c1", GuildID: "nope"}}); prev != nil {
		t.Fatalf("expected nil, got %v", prev)
	}
	if _, ok := c.ChannelGuildID("c1"); ok {
		t.Fatalf("channel of an uncached guild must not be indexed")
	}
	if c.Stats().MissingEntities != 1 {
		t.Fatalf("expected missing entity to be counted")
	}
}

func TestChannelDeleteReturnsCachedMessages(t *testing.T) {
	c := New(Settings{MaxMessages: 10})
	seedGuild(t, c, testGuild("g1", "c1", "c2"))
	for i := 0; i < 5; i++ {
		c.Update(&MessageCreate{Message: testMessage(fmt.Sprint(i), "c1", "g1", i)})
	}

	prev := c.Update(&ChannelDelete{Channel: &model.Channel{ID: "c1", GuildID: "g1"}})
	removed, ok := prev.([]*model.Message)
	if !ok || len(removed) != 5 {
		t.Fatalf("expected 5 removed messages, got %#v", prev)
	}
	for i, m := range removed {
		if m.ID != fmt.Sprint(i) {
			t.Fatalf("expected arrival order, got %s at %d", m.ID, i)
		}
	}
	if _, ok := c.ChannelGuildID("c1"); ok {
		t.Fatalf("expected c1 gone from reverse index")
	}
	if c.HasMessageLog("c1") {
		t.Fatalf("expected c1 history to be gone")
	}
	g, _ := c.Guild("g1")
	if _, ok := g.Channels["c1"]; ok {
		t.Fatalf("expected c1 gone from guild")
	}
	if _, ok := g.Channels["c2"]; !ok {
		t.Fatalf("sibling channel must survive")
	}
}

func TestChannelDeleteWithoutHistory(t *testing.T) {
	c := New(Settings{MaxMessages: 10})
	seedGuild(t, c, testGuild("g1", "c1"))
	if prev := c.Update(&ChannelDelete{Channel: &model.Channel{ID: "c1"}}); prev != nil {
		t.Fatalf("expected nil without history, got %#v", prev)
	}
	g, _ := c.Guild("g1")
	if _, ok := g.Channels["c1"]; ok {
		t.Fatalf("expected channel to be resolved through the index and removed")
	}
}

func TestChannelPinsUpdatePatchesOnlyTimestamp(t *testing.T) {
	c := New(Settings{})
	g := testGuild("g1", "c1")
	g.Channels["c1"].Topic = "keep"
	seedGuild(t, c, g)

	ts := testEpoch.Add(time.Hour)
	if prev := c.Update(&ChannelPinsUpdate{GuildID: "g1", ChannelID: "c1", LastPinTimestamp: &ts}); prev != nil {
		t.Fatalf("pins update defines no previous value, got %v", prev)
	}
	ch, _ := c.Channel("c1")
	if ch.LastPinTimestamp == nil || !ch.LastPinTimestamp.Equal(ts) {
		t.Fatalf("expected pin timestamp %v, got %v", ts, ch.LastPinTimestamp)
	}
	if ch.Topic != "keep" {
		t.Fatalf("pins update replaced the channel")
	}
}

func TestThreadLifecycle(t *testing.T) {
	c := New(Settings{MaxMessages: 5})
	seedGuild(t, c, testGuild("g1", "c1"))

	thread := &model.Channel{ID: "t1", GuildID: "g1", ParentID: "c1", Name: "first", Type: model.ChannelTypeGuildPublicThread}
	if prev := c.Update(&ThreadCreate{Thread: thread}); prev != nil {
		t.Fatalf("expected nil on first create, got %v", prev)
	}
	prev := c.Update(&ThreadUpdate{Thread: &model.Channel{ID: "t1", GuildID: "g1", ParentID: "c1", Name: "second"}})
	if old, ok := prev.(*model.Channel); !ok || old.Name != "first" {
		t.Fatalf("expected previous thread, got %#v", prev)
	}
	g, _ := c.Guild("g1")
	if len(g.Threads) != 1 {
		t.Fatalf("update must replace in place, got %d threads", len(g.Threads))
	}

	c.Update(&MessageCreate{Message: testMessage("m1", "t1", "g1", 1)})
	prev = c.Update(&ThreadDelete{ID: "t1", GuildID: "g1", ParentID: "c1"})
	if old, ok := prev.(*model.Channel); !ok || old.Name != "second" {
		t.Fatalf("expected removed thread, got %#v", prev)
	}
	if _, ok := c.Thread("g1", "t1"); ok {
		t.Fatalf("thread still cached after delete")
	}
	if c.HasMessageLog("t1") {
		t.Fatalf("thread history still cached after delete")
	}
}

func TestVoiceChannelStatusUpdate(t *testing.T) {
	c := New(Settings{})
	seedGuild(t, c, testGuild("g1", "v1"))

	if prev := c.Update(&VoiceChannelStatusUpdate{GuildID: "g1", ChannelID: "v1", Status: "live"}); prev != "" {
		t.Fatalf("expected empty previous status, got %#v", prev)
	}
	if prev := c.Update(&VoiceChannelStatusUpdate{GuildID: "g1", ChannelID: "v1", Status: "off"}); prev != "live" {
		t.Fatalf("expected previous status live, got %#v", prev)
	}
	if prev := c.Update(&VoiceChannelStatusUpdate{GuildID: "g1", ChannelID: "nope", Status: "x"}); prev != nil {
		t.Fatalf("expected nil for unknown channel, got %#v", prev)
	}
}
