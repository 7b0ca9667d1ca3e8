package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"memewrangler/internal/posting"
	"memewrangler/internal/transport"
	"memewrangler/internal/transport/telegram/router"
)

const logEntries = 10

func (h *Handlers) postNow(ctx context.Context, req *router.Request) error {
	var id *int64
	if len(req.Args) > 0 {
		v, ok := parseID(req.Args[:1])
		if !ok {
			return req.Reply(ctx, "Usage: /postnow [id]")
		}
		id = &v
	}
	rec, _, err := h.poster.PostNow(ctx, id)
	switch {
	case errors.Is(err, posting.ErrNothingToPost):
		if id != nil {
			return req.Reply(ctx, fmt.Sprintf("No scheduled meme with ID %d to post.", *id))
		}
		return req.Reply(ctx, "No scheduled memes to post.")
	case err != nil:
		return replyErr(ctx, req, "Failed to post meme: "+err.Error(), err)
	}
	return req.Reply(ctx, fmt.Sprintf("Posted meme with ID %d to channel.", rec.ID))
}

func (h *Handlers) preview(ctx context.Context, req *router.Request) error {
	id, ok := parseID(req.Args)
	if !ok {
		return req.Reply(ctx, "Usage: /preview <id>")
	}
	rec, found, err := h.store.Get(ctx, id)
	if err != nil {
		return replyErr(ctx, req, "Could not load meme: "+err.Error(), err)
	}
	if !found {
		return req.Reply(ctx, fmt.Sprintf("No meme found with ID %d.", id))
	}
	if err := req.Reply(ctx, fmt.Sprintf("Previewing meme %d...", id)); err != nil {
		return err
	}
	rec = rec.In(h.loc())
	out := h.poster.Preview(ctx, transport.ChatDestination(req.Chat.ChatID), rec, rec.OwnerFileID, fmt.Sprintf("Preview ID %d", id))
	if out.Delivered {
		return nil
	}
	return replyErr(ctx, req, fmt.Sprintf("Could not preview meme %d.\n%s", id, posting.Summary(rec, h.loc())), out.Err())
}

func (h *Handlers) eventLog(ctx context.Context, req *router.Request) error {
	entries := h.poster.Events().Recent(logEntries)
	if len(entries) == 0 {
		return req.Reply(ctx, "No posting events yet.")
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return req.Reply(ctx, "Last posting events:\n"+strings.Join(lines, "\n"))
}
