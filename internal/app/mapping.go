package app

import (
	"time"

	"memewrangler/internal/config"
	"memewrangler/internal/observability"
	"memewrangler/internal/storage"
	"memewrangler/internal/task/scheduler"
	telegram "memewrangler/internal/transport/telegram/adapter"
	logx "memewrangler/pkg/logx"
)

const (
	defaultPollTimeout = 10 * time.Second
	defaultBusyTimeout = 5 * time.Second
	// backupTimeout bounds one scheduled backup run.
	backupTimeout = 2 * time.Minute
)

func logConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ChatID:     cfg.Telegram.LogChat,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func adapterConfig(cfg *config.Config) telegram.Config {
	poll, _ := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, defaultPollTimeout)
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: poll}
}

func storageConfig(cfg *config.Config) storage.Config {
	s := cfg.Storage
	busy, _ := config.ParseDurationOrDefault("storage.busy_timeout", s.BusyTimeout, defaultBusyTimeout)
	return storage.Config{Driver: s.Driver, Path: s.Path, DSN: s.DSN, BusyTimeout: busy}
}

func diagnosticsConfig(cfg *config.Config) observability.Config {
	d := cfg.Diagnostics
	return observability.Config{
		Enabled:       d.Enabled,
		Addr:          d.Addr,
		Token:         d.Token,
		AllowInsecure: d.AllowInsecure,
		Pprof:         d.Pprof,
	}
}

// cycleTimeout bounds one posting cycle. A cycle may send several due memes,
// each with its own per-send timeout.
func cycleTimeout(cfg *config.Config) time.Duration {
	return 5 * cfg.PostTimeout()
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Timezone: cfg.Schedule.Timezone}
}
