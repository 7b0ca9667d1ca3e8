package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"memewrangler/internal/meme"
	"memewrangler/internal/posting"
	"memewrangler/internal/transport"
	"memewrangler/internal/transport/telegram/router"
	logx "memewrangler/pkg/logx"
	"memewrangler/pkg/tgui"
)

func (h *Handlers) scheduled(ctx context.Context, req *router.Request) error {
	recs, err := h.sched.Pending(ctx)
	if err != nil {
		return replyErr(ctx, req, "Could not list scheduled memes: "+err.Error(), err)
	}
	if len(recs) == 0 {
		return req.Reply(ctx, "No scheduled memes.")
	}
	to := transport.ChatDestination(req.Chat.ChatID)
	for _, rec := range recs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		summary := posting.Summary(rec, h.loc())
		out := h.poster.Preview(ctx, to, rec, rec.PreviewRef(), tgui.TruncRunes(summary, tgui.CaptionLimit))
		if out.Delivered {
			continue
		}
		req.Logger.Debug("preview fell back to text", logx.Int64("id", rec.ID), logx.Err(out.Err()))
		if err := req.Reply(ctx, summary); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handlers) unschedule(ctx context.Context, req *router.Request) error {
	ids, err := parseIDs(req.Args)
	if err != nil {
		return req.Reply(ctx, usageUnschedule)
	}
	if _, err := h.sched.Unschedule(ctx, ids); err != nil {
		return replyErr(ctx, req, "Failed to unschedule: "+err.Error(), err)
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return req.Reply(ctx, fmt.Sprintf("Unscheduled memes with IDs: %s (if they existed and were not posted yet).", strings.Join(parts, ", ")))
}

func (h *Handlers) scheduleAt(ctx context.Context, req *router.Request) error {
	if strings.TrimSpace(req.ArgLine) == "" {
		return req.Reply(ctx, usageScheduleAt)
	}
	args := parseScheduleAt(req.ArgLine)
	zone := posting.ZoneLabel(h.loc())

	switch args.kind {
	case scheduleAtOne:
		if args.hour > 23 || args.minute > 59 {
			return req.Reply(ctx, "Invalid time format. Use 24h HH:MM.")
		}
		when, ok, err := h.sched.RescheduleAt(ctx, args.id, args.hour, args.minute)
		if err != nil {
			if errors.Is(err, meme.ErrValidation) {
				return req.Reply(ctx, "Invalid format. "+usageScheduleAt)
			}
			return replyErr(ctx, req, "Failed to reschedule: "+err.Error(), err)
		}
		if !ok {
			return req.Reply(ctx, fmt.Sprintf("No scheduled meme with ID %d to reschedule.", args.id))
		}
		return req.Reply(ctx, fmt.Sprintf("Rescheduled meme ID %d for %s %s.", args.id, when.Format("2006-01-02 15:04"), zone))

	case scheduleAtRange:
		day, err := meme.ParseDate(args.date, h.loc())
		if err != nil {
			return req.Reply(ctx, "Invalid date format. Use YYYY-MM-DD.")
		}
		if _, err := h.sched.RescheduleRange(ctx, args.start, args.end, day); err != nil {
			if errors.Is(err, meme.ErrValidation) {
				return req.Reply(ctx, "Invalid format. "+err.Error())
			}
			return replyErr(ctx, req, "Failed to reschedule: "+err.Error(), err)
		}
		slots := h.sched.Clock().Slots()
		names := make([]string, len(slots))
		for i, s := range slots {
			names[i] = s.String()
		}
		return req.Reply(ctx, fmt.Sprintf("Rescheduled memes IDs %d-%d for %s in slots %s %s (cycled).",
			args.start, args.end, args.date, strings.Join(names, ", "), zone))
	}
	return req.Reply(ctx, "Invalid format. Use /scheduleat id: <id> <HH:MM> or /scheduleat ids: <start>-<end> <YYYY-MM-DD>")
}
