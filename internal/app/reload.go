package app

import (
	"context"
	"strings"

	"memewrangler/internal/backup"
	"memewrangler/internal/config"
	logx "memewrangler/pkg/logx"
	"memewrangler/pkg/systemd"
)

// reloadLoop applies published config changes until ctx ends.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			_, _ = systemd.Reloading()
			a.applyConfig(ctx, last, next)
			last = next
			_, _ = systemd.Ready()
		}
	}
}

// applyConfig pushes the live-reloadable parts of next into the running
// components. Everything else is logged as needing a restart.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	ch := config.Diff(prev, next)
	if len(ch.Sections) == 0 {
		a.log.Debug("config reload had no effective changes")
		return
	}

	if ch.Has("logging") || ch.Has("telegram") {
		a.logs.Apply(logConfig(next))
	}
	if ch.Has("telegram") {
		a.router.SetOwners(next.Telegram.OwnerUserIDs)
		if dest, err := next.ChannelDestination(); err == nil {
			a.poster.SetChannel(dest)
		}
	}
	if ch.Has("backup") {
		if v, err := backup.NewVerifier(next.Backup.PasswordHash); err != nil {
			a.log.Warn("backup password hash rejected; keeping previous", logx.Err(err))
		} else {
			a.handlers.SetVerifier(v)
		}
		if prev.Backup.Schedule != next.Backup.Schedule {
			if err := a.setBackupSchedule(next.Backup.Schedule); err != nil {
				a.log.Warn("backup schedule rejected", logx.Err(err))
			}
		}
	}
	if ch.Has("schedule") {
		if prev.Schedule.PostInterval != next.Schedule.PostInterval || prev.Schedule.PostTimeout != next.Schedule.PostTimeout {
			if err := a.tasks.AddInterval(taskPost, next.PostInterval(), cycleTimeout(next), a.postCycle); err != nil {
				a.log.Warn("post interval rejected", logx.Err(err))
			}
		}
		if prev.Schedule.Timezone != next.Schedule.Timezone {
			a.tasks.Apply(schedulerConfig(next))
		}
	}
	if ch.Has("diagnostics") {
		if err := a.diag.Reconfigure(ctx, diagnosticsConfig(next)); err != nil {
			a.log.Warn("diagnostics reconfigure failed", logx.Err(err))
		}
		a.supervisors.Set("diagnostics", a.diag.Supervisor())
	}

	if len(ch.RestartRequired) > 0 {
		a.log.Warn("config changes need a restart", logx.String("keys", strings.Join(ch.RestartRequired, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	a.log.Info("config applied", fields...)
}
