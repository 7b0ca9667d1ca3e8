package commands

import (
	"context"

	"memewrangler/internal/meme"
	"memewrangler/internal/posting"
	"memewrangler/internal/schedule"
	"memewrangler/internal/transport"
	"memewrangler/internal/transport/telegram/router"
)

// intakeFrom maps an incoming media message to a schedule request. ok is
// false for attachments that cannot be posted as memes.
func intakeFrom(msg *transport.Message) (schedule.Intake, bool) {
	if msg == nil || msg.FileID == "" {
		return schedule.Intake{}, false
	}
	in := schedule.Intake{
		OwnerFileID:   msg.FileID,
		PreviewFileID: msg.FileID,
		Caption:       msg.Caption,
	}
	switch msg.Media {
	case transport.MediaPhoto, transport.MediaAnimation:
		in.Mime = meme.MimeImage
	case transport.MediaVideo:
		in.Mime = meme.MimeVideo
	default:
		return schedule.Intake{}, false
	}
	return in, true
}

func (h *Handlers) intake(ctx context.Context, req *router.Request) error {
	in, ok := intakeFrom(req.Message)
	if !ok {
		return req.Reply(ctx, msgUnsupported)
	}
	rec, err := h.sched.ScheduleIntake(ctx, in)
	if err != nil {
		return replyErr(ctx, req, "Failed to schedule meme: "+err.Error(), err)
	}
	at := rec.ScheduledAt.In(h.loc())
	return req.Reply(ctx, "Scheduled for: "+at.Format("2006-01-02 15:04:05")+" "+posting.ZoneLabel(h.loc()))
}
