package adapter

import (
	"context"
	"errors"
	"time"

	rtsup "memewrangler/internal/runtime/supervisor"
	kit "memewrangler/internal/transport"
	logx "memewrangler/pkg/logx"
)

const (
	dropReportEvery = 5 * time.Second
	stopGrace       = 2 * time.Second
)

// Supervisor returns the poll loop's supervisor, nil when stopped.
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

// sendUpdate hands an update to the router without ever blocking the poll loop.
func (a *Adapter) sendUpdate(up kit.Update) {
	p := a.out.Load()
	if p == nil {
		return
	}
	select {
	case *p <- up:
	default:
		a.dropped.Add(1)
	}
}

func (a *Adapter) reportDropped(out chan<- kit.Update) {
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("updates dropped (router queue full)", logx.Uint64("count", n), logx.Int("queue_cap", cap(out)))
	}
}

// Start begins long polling and forwards updates to out. Calling it again
// while running is a no-op.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.sup != nil {
		return nil
	}
	a.out.Store(&out)
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(false))
	a.sup = sup

	sup.Go("drop.report", func(c context.Context) error {
		t := time.NewTicker(dropReportEvery)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(out)
				return nil
			case <-t.C:
				a.reportDropped(out)
			}
		}
	})
	sup.Go("poll.stop", func(c context.Context) error {
		<-c.Done()
		a.bot.Stop()
		return nil
	})
	// bot.Start blocks until bot.Stop; an early return while ctx is live is
	// treated as a crash and restarted.
	sup.GoRestart("poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

// Stop cancels polling and waits a short grace period for the loop to end.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	a.out.Store(nil)
	a.runMu.Unlock()
	if sup == nil {
		return nil
	}
	sup.Cancel()

	wctx, cancel := context.WithTimeout(ctx, stopGrace)
	defer cancel()
	err := sup.Wait(wctx)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		a.log.Warn("telegram stop timed out", logx.Err(err))
	default:
		a.log.Debug("telegram stopped with error", logx.Err(err))
	}
	return nil
}
