package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memewrangler/internal/config"
	logx "memewrangler/pkg/logx"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		Telegram: config.TelegramConfig{
			Token:        "t",
			OwnerUserIDs: []int64{1},
			Channel:      "@memes",
			LogChat:      -1001,
			PollTimeout:  "25s",
		},
		Logging: config.LoggingConfig{
			Level:    "warn",
			Telegram: config.LoggingTelegram{Enabled: true, ThreadID: 7, MinLevel: "error", RatePerSec: 2},
		},
		Storage:     config.StorageConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "3s"},
		Schedule:    config.ScheduleConfig{PostTimeout: "20s"},
		Diagnostics: config.DiagnosticsConfig{Enabled: true, Token: "secret", Pprof: true},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestComponentConfigMapping(t *testing.T) {
	cfg := testConfig()

	lc := logConfig(cfg)
	assert.Equal(t, "warn", lc.Level)
	assert.True(t, lc.Console)
	assert.True(t, lc.Telegram.Enabled)
	assert.Equal(t, int64(-1001), lc.Telegram.ChatID)
	assert.Equal(t, 7, lc.Telegram.ThreadID)

	ac := adapterConfig(cfg)
	assert.Equal(t, "t", ac.Token)
	assert.Equal(t, 25*time.Second, ac.PollTimeout)

	sc := storageConfig(cfg)
	assert.Equal(t, "sqlite", sc.Driver)
	assert.Equal(t, 3*time.Second, sc.BusyTimeout)

	dc := diagnosticsConfig(cfg)
	assert.True(t, dc.Enabled)
	assert.Equal(t, config.DefaultDiagAddr, dc.Addr)
	assert.Equal(t, "secret", dc.Token)
	assert.True(t, dc.Pprof)

	assert.Equal(t, 100*time.Second, cycleTimeout(cfg))
	assert.Equal(t, "Asia/Kolkata", schedulerConfig(cfg).Timezone)
}

func TestStorageConfigDefaultsBusyTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.BusyTimeout = ""
	assert.Equal(t, defaultBusyTimeout, storageConfig(cfg).BusyTimeout)
}

func TestStopStep(t *testing.T) {
	a := &App{log: logx.Nop()}

	ran := false
	a.stopStep(context.Background(), "ok", time.Second, func(context.Context) error {
		ran = true
		return nil
	})
	assert.True(t, ran)

	start := time.Now()
	a.stopStep(context.Background(), "slow", 50*time.Millisecond, func(c context.Context) error {
		time.Sleep(time.Second)
		return nil
	})
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	a.stopStep(context.Background(), "panics", time.Second, func(context.Context) error {
		panic("boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	expired, stop := context.WithDeadline(ctx, time.Now().Add(-time.Second))
	defer stop()
	a.stopStep(expired, "late", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.False(t, called)
}
