package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/discordstate/pkg/control"
	"github.com/small-frappuccino/discordstate/pkg/discord/cache"
	"github.com/small-frappuccino/discordstate/pkg/discord/gateway"
	"github.com/small-frappuccino/discordstate/pkg/discord/session"
	"github.com/small-frappuccino/discordstate/pkg/errutil"
	"github.com/small-frappuccino/discordstate/pkg/log"
	"github.com/small-frappuccino/discordstate/pkg/service"
	"github.com/small-frappuccino/discordstate/pkg/storage"
	"github.com/small-frappuccino/discordstate/pkg/task"
	"github.com/small-frappuccino/discordstate/pkg/util"
)

// Service names, in start order.
const (
	svcArchive = "archive"
	svcRouter  = "router"
	svcGateway = "gateway"
	svcControl = "control"
)

var (
	openSession  = session.NewDiscordSession
	closeSession = session.Close
)

// Run mirrors the gateway into a cache until ctx is cancelled or the process is
// interrupted.
//
// Start order is archive, router, gateway, control. Shutdown runs the other way round: the
// session closes first so no new events arrive, the router then drains queued deliveries
// into the archive, and the archive database closes last.
func Run(ctx context.Context, cfg Config) error {
	started := time.Now()

	if err := log.SetupLogger(cfg.LogDir, cfg.Log); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	defer log.Sync()

	if err := errutil.InitializeGlobalErrorHandler(log.ErrorLoggerRaw()); err != nil {
		return fmt.Errorf("initialize global error handler: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.ApplicationLogger().Info(formatStartupMessage(util.AppName, Version, Commit))

	c := cache.New(cache.Settings{MaxMessages: cfg.MaxMessages})
	router := task.NewRouter(task.Defaults())
	dispatcher := gateway.NewDispatcher(c, router)
	manager := service.NewManager()

	var store *storage.Store
	routerDeps := []string{}
	if cfg.Archive.Enabled {
		store = storage.NewStore(cfg.Archive.Path)
		if err := manager.Register(archiveService(store, dispatcher, router, cfg.Archive)); err != nil {
			return err
		}
		routerDeps = append(routerDeps, svcArchive)
	}

	if err := manager.Register(service.NewWrapper(svcRouter, routerDeps, nil,
		func(context.Context) error {
			router.Close()
			return nil
		},
	)); err != nil {
		return err
	}

	if err := manager.Register(gatewayService(cfg, dispatcher)); err != nil {
		return err
	}

	deps := control.Deps{Dispatcher: dispatcher, Router: router, Services: manager}
	if store != nil {
		deps.Archive = store
	}
	if srv := control.NewServer(cfg.ControlAddr, c, deps); srv != nil {
		if err := manager.Register(service.NewWrapper(svcControl, []string{svcGateway},
			func(context.Context) error { return srv.Start() },
			srv.Stop,
		)); err != nil {
			return err
		}
	}

	if err := manager.StartAll(ctx); err != nil {
		router.Close()
		return err
	}

	log.ApplicationLogger().Info(fmt.Sprintf("🎯 %s initialized in %s", util.AppName, time.Since(started).Round(time.Millisecond)))
	log.ApplicationLogger().Info(fmt.Sprintf("🤖 %s running. Press Ctrl+C to stop...", util.AppName))

	util.WaitForInterruptWithCallback(ctx, func() {
		log.ApplicationLogger().Info(fmt.Sprintf("🛑 Stopping %s...", util.AppName))
	})

	if err := manager.StopAll(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	st := c.Stats()
	log.ApplicationLogger().Info("Shutdown complete",
		"events", st.Events,
		"guilds", st.Guilds,
		"users", st.Users,
		"messages", st.Messages,
	)
	return nil
}

func archiveService(store *storage.Store, d *gateway.Dispatcher, router *task.TaskRouter, cfg ArchiveConfig) service.Service {
	var detach func()
	return service.NewWrapper(svcArchive, nil,
		func(context.Context) error {
			if err := errutil.HandleConfigError("ensure_archive_dir", cfg.Path, func() error {
				return util.EnsureParentDir(cfg.Path)
			}); err != nil {
				return err
			}
			if err := store.Init(); err != nil {
				return fmt.Errorf("initialize archive: %w", err)
			}
			if ts, ok, err := store.GetRuntimeMeta(storage.MetaLastEvent); err == nil && ok {
				log.DatabaseLogger().Info("Previous run last saw an event", "at", ts.UTC().Format(time.RFC3339))
			}
			var err error
			detach, err = attachArchive(newArchiver(store, cfg.Retention), d, router, cfg)
			return err
		},
		func(context.Context) error {
			if detach != nil {
				detach()
			}
			return store.Close()
		},
	)
}

func gatewayService(cfg Config, d *gateway.Dispatcher) service.Service {
	var (
		s      *discordgo.Session
		detach func()
	)
	return service.NewWrapper(svcGateway, []string{svcRouter},
		func(context.Context) error {
			var err error
			s, err = openSession(cfg.Token, session.Options{
				ShardID:    cfg.ShardID,
				ShardCount: cfg.ShardCount,
				Attach: func(sess *discordgo.Session) {
					detach = d.Attach(sess)
				},
			})
			return err
		},
		func(context.Context) error {
			if detach != nil {
				detach()
			}
			return closeSession(s)
		},
	)
}
