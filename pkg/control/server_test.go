package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/discord/cache"
	"github.com/small-frappuccino/discordstate/pkg/discord/model"
	"github.com/small-frappuccino/discordstate/pkg/service"
	"github.com/small-frappuccino/discordstate/pkg/storage"
)

type fakeArchive struct {
	records []*storage.MessageRecord
	err     error
	limit   int
}

func (f *fakeArchive) ListChannelMessages(channelID string, limit int) ([]*storage.MessageRecord, error) {
	f.limit = limit
	return f.records, f.err
}

func (f *fakeArchive) CountMessages() (int64, error) {
	return int64(len(f.records)), f.err
}

func seededCache(t *testing.T) *cache.Cache {
	t.Helper()
	c := cache.New(cache.Settings{MaxMessages: 5})

	g := model.NewGuild("g1")
	g.Name = "guild"
	g.Channels["c1"] = &model.Channel{ID: "c1", GuildID: "g1", Name: "general"}
	c.Update(&cache.GuildCreate{Guild: g})
	c.Update(&cache.GuildMemberAdd{Member: &model.Member{
		GuildID: "g1",
		User:    model.User{ID: "u1", Username: "alice"},
	}})
	c.Update(&cache.MessageCreate{Message: &model.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   "g1",
		Author:    model.User{ID: "u1", Username: "alice"},
		Content:   "hello",
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}})
	return c
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServerRequiresAddrAndCache(t *testing.T) {
	if NewServer("", cache.New(cache.Settings{}), Deps{}) != nil {
		t.Fatalf("expected nil server for empty addr")
	}
	if NewServer("127.0.0.1:0", nil, Deps{}) != nil {
		t.Fatalf("expected nil server for nil cache")
	}
	var s *Server
	if err := s.Start(); err != nil {
		t.Fatalf("nil server Start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("nil server Stop: %v", err)
	}
}

func TestGuildMemberChannelUserLookups(t *testing.T) {
	s := NewServer("127.0.0.1:0", seededCache(t), Deps{})

	rec := do(t, s, http.MethodGet, "/v1/guilds/g1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("guild: status %d", rec.Code)
	}
	var g model.Guild
	if err := json.Unmarshal(rec.Body.Bytes(), &g); err != nil {
		t.Fatalf("decode guild: %v", err)
	}
	if g.Name != "guild" || g.MemberCount != 1 {
		t.Fatalf("unexpected guild: name=%q count=%d", g.Name, g.MemberCount)
	}

	if rec := do(t, s, http.MethodGet, "/v1/guilds/g1/members/u1", ""); rec.Code != http.StatusOK {
		t.Fatalf("member: status %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/v1/guilds/g1/members/nobody", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing member: status %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/v1/channels/c1", ""); rec.Code != http.StatusOK {
		t.Fatalf("channel: status %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/v1/users/u1", ""); rec.Code != http.StatusOK {
		t.Fatalf("user: status %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/v1/guilds/g2", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing guild: status %d", rec.Code)
	}
}

func TestUnavailableGuildReports503(t *testing.T) {
	c := cache.New(cache.Settings{})
	c.Update(&cache.Ready{User: model.CurrentUser{User: model.User{ID: "bot"}}, Guilds: []string{"g9"}})
	s := NewServer("127.0.0.1:0", c, Deps{})

	if rec := do(t, s, http.MethodGet, "/v1/guilds/g9", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for unavailable guild, got %d", rec.Code)
	}

	rec := do(t, s, http.MethodGet, "/v1/guilds", "")
	var body struct {
		Guilds      []string `json:"guilds"`
		Unavailable []string `json:"unavailable"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode guilds: %v", err)
	}
	if len(body.Guilds) != 0 || len(body.Unavailable) != 1 || body.Unavailable[0] != "g9" {
		t.Fatalf("unexpected guild listing: %+v", body)
	}
}

func TestMessagesWithArchive(t *testing.T) {
	archive := &fakeArchive{records: []*storage.MessageRecord{{
		Message: &model.Message{ID: "m0", ChannelID: "c1"},
		Reason:  storage.ReasonEvicted,
	}}}
	s := NewServer("127.0.0.1:0", seededCache(t), Deps{Archive: archive})

	rec := do(t, s, http.MethodGet, "/v1/channels/c1/messages?archived=true&limit=7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp messagesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Cached) != 1 || resp.Cached[0].ID != "m1" {
		t.Fatalf("unexpected cached messages: %+v", resp.Cached)
	}
	if len(resp.Archived) != 1 || resp.Archived[0].Reason != storage.ReasonEvicted {
		t.Fatalf("unexpected archived messages: %+v", resp.Archived)
	}
	if archive.limit != 7 {
		t.Fatalf("expected limit 7 passed to archive, got %d", archive.limit)
	}

	if rec := do(t, s, http.MethodGet, "/v1/channels/c1/messages?archived=true&limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: status %d", rec.Code)
	}

	archive.err = errors.New("disk gone")
	if rec := do(t, s, http.MethodGet, "/v1/channels/c1/messages?archived=true", ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("archive error: status %d", rec.Code)
	}
}

func TestMessagesWithoutArchive(t *testing.T) {
	s := NewServer("127.0.0.1:0", seededCache(t), Deps{})

	rec := do(t, s, http.MethodGet, "/v1/channels/unknown/messages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"cached":[]`) {
		t.Fatalf("expected empty cached list, got %s", rec.Body.String())
	}
	if rec := do(t, s, http.MethodGet, "/v1/channels/c1/messages?archived=1", ""); rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 without archive, got %d", rec.Code)
	}
}

func TestRuntimePatch(t *testing.T) {
	c := seededCache(t)
	s := NewServer("127.0.0.1:0", c, Deps{})

	rec := do(t, s, http.MethodPost, "/v1/runtime", `{"max_messages": 42, "log_level": "debug"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if got := c.MaxMessages(); got != 42 {
		t.Fatalf("expected max messages 42, got %d", got)
	}

	cases := []string{
		`{}`,
		`{"unknown": 1}`,
		`{"max_messages": -1}`,
		`{"max_messages": 1.5}`,
		`{"log_level": "loud"}`,
		`not json`,
	}
	for _, body := range cases {
		if rec := do(t, s, http.MethodPost, "/v1/runtime", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("payload %s: expected 400, got %d", body, rec.Code)
		}
	}

	// A rejected field leaves the others unapplied.
	do(t, s, http.MethodPost, "/v1/runtime", `{"max_messages": 3, "bogus": true}`)
	if got := c.MaxMessages(); got != 42 {
		t.Fatalf("expected max messages unchanged at 42, got %d", got)
	}
}

func TestStatsAndMetrics(t *testing.T) {
	archive := &fakeArchive{records: make([]*storage.MessageRecord, 3)}
	s := NewServer("127.0.0.1:0", seededCache(t), Deps{Archive: archive})

	rec := do(t, s, http.MethodGet, "/v1/stats", "")
	var resp struct {
		Cache            cache.Stats `json:"cache"`
		ArchivedMessages int64       `json:"archived_messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if resp.Cache.Guilds != 1 || resp.ArchivedMessages != 3 {
		t.Fatalf("unexpected stats: %+v", resp)
	}

	rec = do(t, s, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), "discordstate_cache_") {
		t.Fatalf("expected cache metrics in output")
	}
}

func TestServicesListing(t *testing.T) {
	mgr := service.NewManager()
	_ = mgr.Register(service.NewWrapper("archive", nil, nil, nil))
	if err := mgr.StartAll(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	s := NewServer("127.0.0.1:0", cache.New(cache.Settings{}), Deps{Services: mgr})

	rec := do(t, s, http.MethodGet, "/v1/services", "")
	var infos []service.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "archive" || infos[0].State != service.StateRunning {
		t.Fatalf("unexpected services: %+v", infos)
	}
}

func TestStartStop(t *testing.T) {
	s := NewServer("127.0.0.1:0", cache.New(cache.Settings{}), Deps{})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	resp, err := http.Get("http://" + s.Addr() + "/v1/shards")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
