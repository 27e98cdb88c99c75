// Package gateway feeds a discordgo session into the cache and hands every applied event,
// together with the value it replaced, to subscribers.
package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/discordstate/pkg/discord/cache"
	"github.com/small-frappuccino/discordstate/pkg/discord/perf"
	"github.com/small-frappuccino/discordstate/pkg/log"
	"github.com/small-frappuccino/discordstate/pkg/task"
)

// All subscribes to every event kind.
const All cache.EventKind = "*"

const deliveryTaskType = "gateway.delivery"

// Delivery is one applied event as seen by a subscriber.
type Delivery struct {
	Shard    int
	Event    cache.Event
	Previous any
	At       time.Time
}

// Handler consumes deliveries. A returned error makes the router retry the same delivery
// before the subscriber sees the next one.
type Handler func(ctx context.Context, d Delivery) error

type subscription struct {
	id   int
	kind cache.EventKind
	fn   Handler
}

type subscriberDelivery struct {
	sub *subscription
	d   Delivery
}

// Dispatcher applies events to a cache in arrival order and forwards deliveries through a
// task router. Each subscriber sees the deliveries of a shard in the order they were applied.
type Dispatcher struct {
	cache  *cache.Cache
	router *task.TaskRouter

	mu     sync.RWMutex
	subs   []*subscription
	nextID int

	set         *metrics.Set
	applied     *metrics.Counter
	ignored     *metrics.Counter
	deliveries  *metrics.Counter
	dispatchErr *metrics.Counter

	now func() time.Time
}

// NewDispatcher wires c to router. The router is shared; the dispatcher registers its own
// task type on it.
func NewDispatcher(c *cache.Cache, router *task.TaskRouter) *Dispatcher {
	set := metrics.NewSet()
	d := &Dispatcher{
		cache:       c,
		router:      router,
		set:         set,
		applied:     set.NewCounter("discordstate_gateway_events_applied_total"),
		ignored:     set.NewCounter("discordstate_gateway_events_ignored_total"),
		deliveries:  set.NewCounter("discordstate_gateway_deliveries_total"),
		dispatchErr: set.NewCounter("discordstate_gateway_delivery_errors_total"),
		now:         time.Now,
	}
	set.NewGauge("discordstate_gateway_subscribers", func() float64 {
		d.mu.RLock()
		defer d.mu.RUnlock()
		return float64(len(d.subs))
	})
	router.RegisterHandler(deliveryTaskType, d.deliver)
	return d
}

// Cache returns the cache the dispatcher writes to.
func (d *Dispatcher) Cache() *cache.Cache { return d.cache }

// Subscribe registers fn for one event kind, or All. The returned func removes it.
func (d *Dispatcher) Subscribe(kind cache.EventKind, fn Handler) func() {
	d.mu.Lock()
	d.nextID++
	sub := &subscription{id: d.nextID, kind: kind, fn: fn}
	d.subs = append(d.subs, sub)
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, s := range d.subs {
			if s == sub {
				d.subs = append(d.subs[:i], d.subs[i+1:]...)
				return
			}
		}
	}
}

// Apply updates the cache with ev and queues a delivery for every matching subscriber.
// It returns the previous value reported by the cache.
func (d *Dispatcher) Apply(shard int, ev cache.Event) any {
	done := perf.StartGatewayEvent(string(ev.Kind()), slog.Int("shard", shard))
	defer done()

	prev := d.cache.Update(ev)
	d.applied.Inc()

	delivery := Delivery{Shard: shard, Event: ev, Previous: prev, At: d.now()}
	for _, sub := range d.matching(ev.Kind()) {
		err := d.router.Dispatch(context.Background(), task.Task{
			Type:    deliveryTaskType,
			Payload: subscriberDelivery{sub: sub, d: delivery},
			Options: task.TaskOptions{GroupKey: fmt.Sprintf("shard-%d/sub-%d", shard, sub.id)},
		})
		if err != nil {
			d.dispatchErr.Inc()
			log.DiscordLogger().Warn("Delivery not queued", "kind", ev.Kind(), "shard", shard, "err", err)
		}
	}
	return prev
}

// Handle converts a raw discordgo event and applies it. Unsupported events are ignored.
func (d *Dispatcher) Handle(shard int, v any) {
	ev, ok := Convert(v)
	if !ok {
		d.ignored.Inc()
		return
	}
	d.Apply(shard, ev)
}

// Attach registers the dispatcher on s. Events must be delivered in order, so the session's
// SyncEvents flag is turned on. The returned func detaches it.
func (d *Dispatcher) Attach(s *discordgo.Session) func() {
	s.SyncEvents = true
	shard := s.ShardID
	return s.AddHandler(func(_ *discordgo.Session, v any) {
		d.Handle(shard, v)
	})
}

// WritePrometheus writes the dispatcher counters in Prometheus text format.
func (d *Dispatcher) WritePrometheus(w io.Writer) {
	d.set.WritePrometheus(w)
}

// DispatcherStats is a snapshot of dispatcher counters.
type DispatcherStats struct {
	Applied        uint64 `json:"applied"`
	Ignored        uint64 `json:"ignored"`
	Deliveries     uint64 `json:"deliveries"`
	DeliveryErrors uint64 `json:"delivery_errors"`
	Subscribers    int    `json:"subscribers"`
}

func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.RLock()
	subs := len(d.subs)
	d.mu.RUnlock()
	return DispatcherStats{
		Applied:        d.applied.Get(),
		Ignored:        d.ignored.Get(),
		Deliveries:     d.deliveries.Get(),
		DeliveryErrors: d.dispatchErr.Get(),
		Subscribers:    subs,
	}
}

func (d *Dispatcher) matching(kind cache.EventKind) []*subscription {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*subscription
	for _, s := range d.subs {
		if s.kind == All || s.kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (d *Dispatcher) deliver(ctx context.Context, payload any) error {
	sd, ok := payload.(subscriberDelivery)
	if !ok {
		return fmt.Errorf("unexpected delivery payload %T", payload)
	}
	if err := sd.sub.fn(ctx, sd.d); err != nil {
		return err
	}
	d.deliveries.Inc()
	return nil
}
