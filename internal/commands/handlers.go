// Package commands implements the owner chat surface: media intake and the
// slash commands that inspect, reschedule, post and back up memes.
package commands

import (
	"context"
	"sync"
	"time"

	"memewrangler/internal/backup"
	"memewrangler/internal/posting"
	"memewrangler/internal/schedule"
	"memewrangler/internal/storage"
	"memewrangler/internal/transport"
	"memewrangler/internal/transport/telegram/router"
	logx "memewrangler/pkg/logx"
)

const (
	msgStart       = "Hi! I schedule memes to the configured channel."
	msgUnsupported = "Please send a photo, animation (GIF) or video."
)

type Deps struct {
	Scheduler *schedule.Scheduler
	Poster    *posting.Engine
	Backups   *backup.Engine
	Store     storage.Queries
	Media     transport.MediaClient
	Verifier  *backup.Verifier
	Log       logx.Logger
}

// Handlers holds the command implementations. The password verifier may be
// swapped at runtime.
type Handlers struct {
	sched   *schedule.Scheduler
	poster  *posting.Engine
	backups *backup.Engine
	store   storage.Queries
	media   transport.MediaClient
	log     logx.Logger

	mu       sync.RWMutex
	verifier *backup.Verifier
}

func New(d Deps) *Handlers {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	return &Handlers{
		sched:    d.Scheduler,
		poster:   d.Poster,
		backups:  d.Backups,
		store:    d.Store,
		media:    d.Media,
		log:      d.Log.With(logx.String("comp", "commands")),
		verifier: d.Verifier,
	}
}

func (h *Handlers) SetVerifier(v *backup.Verifier) {
	h.mu.Lock()
	h.verifier = v
	h.mu.Unlock()
}

func (h *Handlers) checkPassword(args []string) bool {
	if len(args) == 0 {
		return false
	}
	h.mu.RLock()
	v := h.verifier
	h.mu.RUnlock()
	return v.Verify(args[0])
}

func (h *Handlers) loc() *time.Location { return h.sched.Clock().Location() }

// Commands returns the slash commands in menu order.
func (h *Handlers) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "start",
			Description: "greeting",
			Access:      router.AccessEveryone,
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, msgStart)
			},
		},
		{
			Name:        "scheduled",
			Aliases:     []string{"list"},
			Description: "preview every pending meme",
			Usage:       "/scheduled",
			Access:      router.AccessOwnerOnly,
			Timeout:     2 * time.Minute,
			Handle:      h.scheduled,
		},
		{
			Name:        "preview",
			Description: "preview one meme",
			Usage:       "/preview <id>",
			Access:      router.AccessOwnerOnly,
			Timeout:     time.Minute,
			Handle:      h.preview,
		},
		{
			Name:        "postnow",
			Description: "post the next (or given) meme now",
			Usage:       "/postnow [id]",
			Access:      router.AccessOwnerOnly,
			Timeout:     time.Minute,
			Handle:      h.postNow,
		},
		{
			Name:        "scheduleat",
			Description: "move a meme or a range of memes",
			Usage:       usageScheduleAt,
			Access:      router.AccessOwnerOnly,
			Timeout:     30 * time.Second,
			Handle:      h.scheduleAt,
		},
		{
			Name:        "unschedule",
			Description: "remove pending memes",
			Usage:       usageUnschedule,
			Access:      router.AccessOwnerOnly,
			Timeout:     30 * time.Second,
			Handle:      h.unschedule,
		},
		{
			Name:        "log",
			Description: "last posting events",
			Usage:       "/log",
			Access:      router.AccessOwnerOnly,
			Handle:      h.eventLog,
		},
		{
			Name:        "backup",
			Description: "write and send a backup file",
			Usage:       "/backup <password>",
			Access:      router.AccessOwnerOnly,
			Timeout:     time.Minute,
			Handle:      h.backup,
		},
		{
			Name:        "restore",
			Description: "replace all memes from a backup file",
			Usage:       "/restore <password> (reply to backup file)",
			Access:      router.AccessOwnerOnly,
			Timeout:     2 * time.Minute,
			Handle:      h.restore,
		},
	}
}

// MediaHandler returns the handler for photos and videos sent to the bot.
func (h *Handlers) MediaHandler() router.Command {
	return router.Command{
		Name:    "intake",
		Access:  router.AccessOwnerOnly,
		Timeout: 30 * time.Second,
		Handle:  h.intake,
	}
}

// replyErr sends text and returns err so the audit row records a failure.
func replyErr(ctx context.Context, req *router.Request, text string, err error) error {
	if rerr := req.Reply(ctx, text); rerr != nil {
		req.Logger.Warn("reply failed", logx.Err(rerr))
	}
	return err
}
