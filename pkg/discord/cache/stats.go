package cache

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"

	"github.com/small-frappuccino/discordstate/pkg/discord/model"
)

// cacheMetrics holds the per-cache metric set. Counters for every event kind are created
// up front so the hot path never touches the set's registry.
type cacheMetrics struct {
	set       *metrics.Set
	events    map[EventKind]*metrics.Counter
	missing   map[EventKind]*metrics.Counter
	evictions *metrics.Counter
}

func newCacheMetrics(c *Cache) *cacheMetrics {
	s := metrics.NewSet()
	m := &cacheMetrics{
		set:       s,
		events:    make(map[EventKind]*metrics.Counter, len(Kinds)),
		missing:   make(map[EventKind]*metrics.Counter, len(Kinds)),
		evictions: s.NewCounter("discordstate_cache_message_evictions_total"),
	}
	for _, k := range Kinds {
		m.events[k] = s.NewCounter(fmt.Sprintf(`discordstate_cache_events_total{kind=%q}`, k))
		m.missing[k] = s.NewCounter(fmt.Sprintf(`discordstate_cache_missing_entity_total{kind=%q}`, k))
	}

	s.NewGauge("discordstate_cache_guilds", func() float64 { return float64(c.GuildCount()) })
	s.NewGauge("discordstate_cache_unavailable_guilds", func() float64 { return float64(c.unavailableGuilds.Len()) })
	s.NewGauge("discordstate_cache_channels", func() float64 { return float64(c.channels.Len()) })
	s.NewGauge("discordstate_cache_users", func() float64 { return float64(c.UserCount()) })
	s.NewGauge("discordstate_cache_message_channels", func() float64 { return float64(c.messages.Len()) })
	s.NewGauge("discordstate_cache_max_messages", func() float64 { return float64(c.MaxMessages()) })
	return m
}

func (m *cacheMetrics) observeEvent(k EventKind) {
	if ctr := m.events[k]; ctr != nil {
		ctr.Inc()
	}
}

func (m *cacheMetrics) missingEntity(k EventKind) {
	if ctr := m.missing[k]; ctr != nil {
		ctr.Inc()
	}
}

func (m *cacheMetrics) messagesEvicted(n int) {
	if n > 0 {
		m.evictions.Add(n)
	}
}

// WritePrometheus writes the cache metrics in Prometheus text format.
func (c *Cache) WritePrometheus(w io.Writer) {
	c.metrics.set.WritePrometheus(w)
}

// Stats is a point-in-time summary of the cache.
type Stats struct {
	Guilds            int    `json:"guilds"`
	UnavailableGuilds int    `json:"unavailable_guilds"`
	Channels          int    `json:"channels"`
	Users             int    `json:"users"`
	MessageChannels   int    `json:"message_channels"`
	Messages          int    `json:"messages"`
	MaxMessages       int    `json:"max_messages"`
	Events            uint64 `json:"events"`
	MessageEvictions  uint64 `json:"message_evictions"`
	MissingEntities   uint64 `json:"missing_entities"`
	ShardTotal        int    `json:"shard_total"`
	ShardsConnected   int    `json:"shards_connected"`
	HasCurrentUser    bool   `json:"has_current_user"`

	EventsByKind map[EventKind]uint64 `json:"events_by_kind,omitempty"`
}

// Stats returns a snapshot of table sizes and counters. Sizes are read key by key and
// are not mutually consistent while events are being applied.
func (c *Cache) Stats() Stats {
	st := Stats{
		Guilds:            c.GuildCount(),
		UnavailableGuilds: c.unavailableGuilds.Len(),
		Channels:          c.channels.Len(),
		Users:             c.UserCount(),
		MaxMessages:       c.MaxMessages(),
		MessageEvictions:  c.metrics.evictions.Get(),
		EventsByKind:      make(map[EventKind]uint64),
	}
	c.messages.Range(func(_ string, s *segment) bool {
		st.MessageChannels++
		st.Messages += s.Len()
		return true
	})
	for k, ctr := range c.metrics.events {
		if n := ctr.Get(); n > 0 {
			st.EventsByKind[k] = n
			st.Events += n
		}
	}
	for _, ctr := range c.metrics.missing {
		st.MissingEntities += ctr.Get()
	}

	shards := c.ShardData()
	st.ShardTotal = shards.Total
	st.ShardsConnected = len(shards.Connected)
	_, st.HasCurrentUser = c.CurrentUser()
	return st
}

// MemberCounts returns, for a guild, the tracked member count and the number of members
// actually cached. The two legitimately differ when only part of the member list is known.
func (c *Cache) MemberCounts(guildID string) (tracked, cached int, ok bool) {
	ok = c.guilds.View(guildID, func(g *model.Guild) {
		tracked, cached = g.MemberCount, len(g.Members)
	})
	return tracked, cached, ok
}
