package commands

import (
	"context"
	"errors"
	"fmt"

	"memewrangler/internal/backup"
	"memewrangler/internal/transport"
	"memewrangler/internal/transport/telegram/router"
	logx "memewrangler/pkg/logx"
)

const (
	msgBackupAuth  = "Backup password missing or incorrect. Usage: /backup <password>"
	msgRestoreAuth = "Backup password missing or incorrect. Usage: /restore <password> (reply to backup file)"
	msgRestoreHow  = "Reply to a backup JSON document with /restore."
)

var errUnauthorized = errors.New("wrong backup password")

func (h *Handlers) backup(ctx context.Context, req *router.Request) error {
	if !h.checkPassword(req.Args) {
		return replyErr(ctx, req, msgBackupAuth, errUnauthorized)
	}
	art, err := h.backups.Backup(ctx)
	if err != nil {
		return replyErr(ctx, req, "Backup failed: "+err.Error(), err)
	}
	caption := fmt.Sprintf("Backup created: %d total memes (%d scheduled).", art.Total, art.Scheduled)
	doc := transport.Media{Data: art.Data, FileName: art.Name}
	if err := h.media.SendDocument(ctx, transport.ChatDestination(req.Chat.ChatID), doc, caption); err != nil {
		req.Logger.Warn("backup upload failed", logx.String("path", art.Path), logx.Err(err))
		return req.Reply(ctx, caption+"\nSaved to "+art.Path+" (upload failed: "+err.Error()+")")
	}
	return nil
}

func (h *Handlers) restore(ctx context.Context, req *router.Request) error {
	if !h.checkPassword(req.Args) {
		return replyErr(ctx, req, msgRestoreAuth, errUnauthorized)
	}
	if req.Message == nil || req.Message.ReplyDocumentID == "" {
		return req.Reply(ctx, msgRestoreHow)
	}
	raw, err := h.media.FetchFile(ctx, req.Message.ReplyDocumentID)
	if err != nil {
		return replyErr(ctx, req, "Could not download backup: "+err.Error(), err)
	}
	res, err := h.backups.Restore(ctx, raw)
	if err != nil {
		if backup.IsRestoreError(err) {
			return replyErr(ctx, req, "Could not parse backup: "+err.Error(), err)
		}
		return replyErr(ctx, req, "Restore failed: "+err.Error(), err)
	}
	return req.Reply(ctx, fmt.Sprintf("Restore complete: %d memes imported (%d scheduled).", res.Imported, res.Scheduled))
}
