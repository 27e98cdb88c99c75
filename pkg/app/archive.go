package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/discord/cache"
	"github.com/small-frappuccino/discordstate/pkg/discord/gateway"
	"github.com/small-frappuccino/discordstate/pkg/discord/model"
	"github.com/small-frappuccino/discordstate/pkg/errutil"
	"github.com/small-frappuccino/discordstate/pkg/log"
	"github.com/small-frappuccino/discordstate/pkg/storage"
	"github.com/small-frappuccino/discordstate/pkg/task"
)

const (
	cleanupTaskType   = "archive.cleanup"
	heartbeatTaskType = "archive.heartbeat"
)

// archiveStore is the part of storage.Store the archiver writes to.
type archiveStore interface {
	UpsertMessage(m *model.Message, reason storage.Reason, archivedAt time.Time) error
	UpsertMessages(msgs []*model.Message, reason storage.Reason, archivedAt time.Time) error
	CleanupOlderThan(cutoff time.Time) (int64, error)
	DeleteGuildMessages(guildID string) (int64, error)
	SetRuntimeMeta(key string, ts time.Time) error
}

// archiver persists the messages the cache lets go of, using the previous value of each
// delivery.
type archiver struct {
	store     archiveStore
	retention time.Duration
	now       func() time.Time

	lastEvent atomic.Int64
}

func newArchiver(store archiveStore, retention time.Duration) *archiver {
	return &archiver{store: store, retention: retention, now: time.Now}
}

// handle is a gateway.Handler subscribed to every event kind.
func (a *archiver) handle(_ context.Context, d gateway.Delivery) error {
	a.lastEvent.Store(d.At.UnixNano())

	switch d.Event.Kind() {
	case cache.KindMessageCreate:
		// The previous value of a create is the message pushed out of the window.
		return a.one(d.Previous, storage.ReasonEvicted, d.At)
	case cache.KindMessageUpdate:
		return a.one(d.Previous, storage.ReasonEdited, d.At)
	case cache.KindMessageDelete:
		return a.one(d.Previous, storage.ReasonDeleted, d.At)
	case cache.KindMessageDeleteBulk:
		return a.many(d.Previous, storage.ReasonBulkDeleted, d.At)
	case cache.KindChannelDelete:
		return a.many(d.Previous, storage.ReasonChannelDeleted, d.At)
	case cache.KindGuildDelete:
		return a.forgetGuild(d.Event)
	case cache.KindReady:
		return errutil.HandleStorageError("record_ready", func() error {
			return a.store.SetRuntimeMeta(storage.MetaLastReady, d.At)
		})
	}
	return nil
}

func (a *archiver) one(prev any, reason storage.Reason, at time.Time) error {
	m, ok := prev.(*model.Message)
	if !ok || m == nil {
		return nil
	}
	return errutil.HandleStorageError("archive_message", func() error {
		return a.store.UpsertMessage(m, reason, at)
	})
}

func (a *archiver) many(prev any, reason storage.Reason, at time.Time) error {
	msgs, ok := prev.([]*model.Message)
	if !ok || len(msgs) == 0 {
		return nil
	}
	return errutil.HandleStorageError("archive_messages", func() error {
		return a.store.UpsertMessages(msgs, reason, at)
	})
}

// forgetGuild erases the archive of a guild the bot was removed from. Outages keep it.
func (a *archiver) forgetGuild(ev cache.Event) error {
	gd, ok := ev.(*cache.GuildDelete)
	if !ok || gd.Unavailable || gd.ID == "" {
		return nil
	}
	var removed int64
	err := errutil.HandleStorageError("forget_guild", func() error {
		var err error
		removed, err = a.store.DeleteGuildMessages(gd.ID)
		return err
	})
	if err != nil {
		return err
	}
	if removed > 0 {
		log.DatabaseLogger().Info("Archived messages of removed guild deleted", "guild_id", gd.ID, "removed", removed)
	}
	return nil
}

// cleanup drops archived messages older than the retention window.
func (a *archiver) cleanup(context.Context, any) error {
	if a.retention <= 0 {
		return nil
	}
	cutoff := a.now().Add(-a.retention)
	var removed int64
	err := errutil.HandleStorageError("cleanup_archive", func() error {
		var err error
		removed, err = a.store.CleanupOlderThan(cutoff)
		return err
	})
	if err != nil {
		return err
	}
	log.DatabaseLogger().Info("Archive cleanup finished", "removed", removed, "cutoff", cutoff.UTC().Format(time.RFC3339))
	return nil
}

// heartbeat persists the time of the last event seen, if any arrived.
func (a *archiver) heartbeat(context.Context, any) error {
	ns := a.lastEvent.Load()
	if ns == 0 {
		return nil
	}
	return errutil.HandleStorageError("record_heartbeat", func() error {
		return a.store.SetRuntimeMeta(storage.MetaLastEvent, time.Unix(0, ns))
	})
}

// attachArchive subscribes the archiver and schedules its maintenance. The returned func
// undoes both.
func attachArchive(a *archiver, d *gateway.Dispatcher, router *task.TaskRouter, cfg ArchiveConfig) (func(), error) {
	if a == nil || d == nil || router == nil {
		return nil, fmt.Errorf("attach archive: missing dependency")
	}
	router.RegisterHandler(cleanupTaskType, a.cleanup)
	router.RegisterHandler(heartbeatTaskType, a.heartbeat)

	unsubscribe := d.Subscribe(gateway.All, a.handle)
	cancelCleanup := router.ScheduleDailyAtUTC(cfg.CleanupHour, cfg.CleanupMinute, task.Task{
		Type:    cleanupTaskType,
		Options: task.TaskOptions{GroupKey: "archive-maintenance"},
	})
	cancelHeartbeat := router.ScheduleEvery(cfg.HeartbeatInterval, task.Task{
		Type:    heartbeatTaskType,
		Options: task.TaskOptions{GroupKey: "archive-maintenance", MaxAttempts: 1},
	})

	return func() {
		unsubscribe()
		cancelCleanup()
		cancelHeartbeat()
	}, nil
}
