// Package app wires configuration, storage, the Telegram adapter and the
// scheduling core into one process.
package app

import (
	"context"
	"fmt"
	"time"

	"memewrangler/internal/backup"
	"memewrangler/internal/commands"
	"memewrangler/internal/config"
	"memewrangler/internal/eventbus"
	"memewrangler/internal/observability"
	"memewrangler/internal/posting"
	rtsup "memewrangler/internal/runtime/supervisor"
	"memewrangler/internal/schedule"
	"memewrangler/internal/storage"
	"memewrangler/internal/task/scheduler"
	kit "memewrangler/internal/transport"
	telegram "memewrangler/internal/transport/telegram/adapter"
	"memewrangler/internal/transport/telegram/router"
	logx "memewrangler/pkg/logx"
	"memewrangler/pkg/systemd"
)

const (
	taskPost   = "post"
	taskBackup = "backup"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    storage.Store
	adapter  *telegram.Adapter
	sched    *schedule.Scheduler
	poster   *posting.Engine
	backups  *backup.Engine
	handlers *commands.Handlers
	router   *router.CommandManager
	tasks    *scheduler.Service

	metrics     *observability.Metrics
	diag        *observability.Server
	supervisors *rtsup.Registry

	updates chan kit.Update
}

// New loads the config and builds every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, root := logx.New(logConfig(cfg), nil)
	log := root.With(logx.String("comp", "app"))

	ad, err := telegram.New(adapterConfig(cfg), root)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	logs.SetSender(ad)

	store, err := storage.Open(storageConfig(cfg), root)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	clock, err := cfg.SlotClock()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	channel, err := cfg.ChannelDestination()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	verifier, err := backup.NewVerifier(cfg.Backup.PasswordHash)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("backup.password_hash: %w", err)
	}

	bus := eventbus.New()
	metrics := observability.NewMetrics()
	loc := clock.Location()

	sched := schedule.New(store, clock, schedule.Options{Log: root, Bus: bus})
	poster := posting.NewEngine(store,
		posting.NewDeliverer(ad, cfg.Schedule.RatePerSec, cfg.PostTimeout()),
		posting.Options{
			Channel:  channel,
			Location: loc,
			LogSize:  cfg.Schedule.LogSize,
			Log:      root,
			Bus:      bus,
			Metrics:  metrics,
		})
	backups := backup.NewEngine(store, backup.Options{Dir: cfg.Backup.Dir, Location: loc, Log: root, Bus: bus})

	handlers := commands.New(commands.Deps{
		Scheduler: sched,
		Poster:    poster,
		Backups:   backups,
		Store:     store,
		Media:     ad,
		Verifier:  verifier,
		Log:       root,
	})

	supervisors := rtsup.NewRegistry()
	rt := router.NewCommandManager(root, ad, router.Options{
		Owners:     cfg.Telegram.OwnerUserIDs,
		Registry:   supervisors,
		Middleware: []router.Middleware{router.MWAudit(store, root)},
	})

	tasks := scheduler.New(schedulerConfig(cfg), root)
	diag := observability.NewServer(diagnosticsConfig(cfg), observability.Deps{
		Metrics:     metrics,
		Store:       store,
		Supervisors: supervisors,
		Schedules:   func() any { return tasks.Snapshot() },
	}, root)

	log.Info("configured",
		logx.String("storage", store.Driver()),
		logx.String("channel", channel.String()),
		logx.String("timezone", loc.String()),
		logx.Int("owners", len(cfg.Telegram.OwnerUserIDs)),
	)

	return &App{
		cfgm:        cfgm,
		log:         log,
		logs:        logs,
		bus:         bus,
		store:       store,
		adapter:     ad,
		sched:       sched,
		poster:      poster,
		backups:     backups,
		handlers:    handlers,
		router:      rt,
		tasks:       tasks,
		metrics:     metrics,
		diag:        diag,
		supervisors: supervisors,
		updates:     make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app context ends, by Stop or a fatal error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	a.supervisors.Set("telegram.adapter", a.adapter.Supervisor())

	a.router.SetMediaHandler(a.handlers.MediaHandler())
	a.router.SetRegistry(run, a.handlers.Commands())
	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	a.sup.Go("metrics.watch", func(c context.Context) error {
		a.metrics.Watch(c, a.bus)
		return nil
	})
	if cfg.Backup.OnIntake {
		a.sup.Go("backup.on_intake", func(c context.Context) error {
			a.backups.Watch(c, a.bus)
			return nil
		})
	}
	a.sup.Go("events.log", func(c context.Context) error {
		a.logEvents(c)
		return nil
	})

	if err := a.registerTasks(cfg); err != nil {
		return err
	}
	a.tasks.Start(run)

	if err := a.diag.Start(run); err != nil {
		return err
	}
	a.supervisors.Set("diagnostics", a.diag.Supervisor())

	a.sup.Go("config.reload", func(c context.Context) error {
		a.reloadLoop(c)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		if err := systemd.Watchdog(c, a.supervisors.Healthy, a.log); err != nil {
			a.log.Warn("systemd watchdog disabled", logx.Err(err))
		}
		return nil
	})
	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if sent {
		_, _ = systemd.Status("posting to %s", cfg.Telegram.Channel)
	}

	a.log.Info("app started")
	return nil
}

// registerTasks installs the posting cycle and the optional periodic backup.
func (a *App) registerTasks(cfg *config.Config) error {
	if err := a.tasks.AddInterval(taskPost, cfg.PostInterval(), cycleTimeout(cfg), a.postCycle); err != nil {
		return err
	}
	return a.setBackupSchedule(cfg.Backup.Schedule)
}

func (a *App) postCycle(ctx context.Context) error {
	rep, err := a.poster.RunCycle(ctx)
	if err != nil {
		return err
	}
	if rep.Due > 0 {
		a.log.Debug("post cycle", logx.Int("due", rep.Due), logx.Int("posted", rep.Posted), logx.Int("failed", rep.Failed))
	}
	return nil
}

func (a *App) backupJob(ctx context.Context) error {
	art, err := a.backups.Backup(ctx)
	if err != nil {
		return err
	}
	a.log.Info("scheduled backup written", logx.String("path", art.Path), logx.Int("total", art.Total))
	return nil
}

func (a *App) setBackupSchedule(spec string) error {
	if spec == "" {
		a.tasks.Remove(taskBackup)
		return nil
	}
	return a.tasks.AddSchedule(taskBackup, spec, backupTimeout, a.backupJob)
}

func (a *App) logEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	_, _ = systemd.Stopping()
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	a.stopStep(ctx, "tasks", 5*time.Second, func(c context.Context) error { a.tasks.Stop(c); return nil })
	a.stopStep(ctx, "diagnostics", 3*time.Second, func(c context.Context) error { a.diag.Stop(c); return nil })
	a.stopStep(ctx, "adapter", 3*time.Second, a.adapter.Stop)
	a.stopStep(ctx, "supervisor", 3*time.Second, a.sup.Wait)
	a.stopStep(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
