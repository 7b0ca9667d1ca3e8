package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "memewrangler/internal/transport"
)

const (
	telegramTextLimit = 4000
	// maxDownload is the Bot API getFile ceiling.
	maxDownload = 20 << 20
)

// channelName addresses a public chat by @username.
type channelName string

func (c channelName) Recipient() string { return string(c) }

func recipient(to kit.Destination) (tele.Recipient, error) {
	switch {
	case to.ChatID != 0:
		return tele.ChatID(to.ChatID), nil
	case to.Username != "":
		return channelName(to.Username), nil
	default:
		return nil, errors.New("empty destination")
	}
}

// splitTelegramText cuts s into chunks of at most limit runes, preferring
// newline boundaries and, for HTML, never cutting inside a tag.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, tele.ModeHTML)

	var out []string
	for start := 0; start < len(rs); {
		end := start + limit
		if end >= len(rs) {
			end = len(rs)
		} else {
			end = cutPoint(rs, start, end, limit, html)
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func cutPoint(rs []rune, start, end, limit int, html bool) int {
	for i := end - 1; i > start+limit/3; i-- {
		if rs[i] == '\n' {
			end = i + 1
			break
		}
	}
	if !html {
		return end
	}
	open, closed := -1, -1
	for i := start; i < end; i++ {
		switch rs[i] {
		case '<':
			open = i
		case '>':
			closed = i
		}
	}
	if open > closed && open > start+1 {
		return open
	}
	return end
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}
	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	}

	var first kit.MessageRef
	for i, chunk := range splitTelegramText(text, telegramTextLimit, opt.ParseMode) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, sendOpt)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func mediaFile(m kit.Media) (tele.File, error) {
	if m.IsUpload() {
		return tele.FromReader(bytes.NewReader(m.Data)), nil
	}
	if strings.TrimSpace(m.Ref) == "" {
		return tele.File{}, errors.New("media has neither reference nor data")
	}
	return tele.File{FileID: m.Ref}, nil
}

func (a *Adapter) sendMedia(ctx context.Context, to kit.Destination, what tele.Sendable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rcpt, err := recipient(to)
	if err != nil {
		return err
	}
	_, err = a.bot.Send(rcpt, what)
	return err
}

func (a *Adapter) SendPhoto(ctx context.Context, to kit.Destination, m kit.Media, caption string) error {
	f, err := mediaFile(m)
	if err != nil {
		return err
	}
	return a.sendMedia(ctx, to, &tele.Photo{File: f, Caption: caption})
}

func (a *Adapter) SendVideo(ctx context.Context, to kit.Destination, m kit.Media, caption string) error {
	f, err := mediaFile(m)
	if err != nil {
		return err
	}
	return a.sendMedia(ctx, to, &tele.Video{File: f, Caption: caption, FileName: m.FileName})
}

func (a *Adapter) SendDocument(ctx context.Context, to kit.Destination, m kit.Media, caption string) error {
	f, err := mediaFile(m)
	if err != nil {
		return err
	}
	return a.sendMedia(ctx, to, &tele.Document{File: f, Caption: caption, FileName: m.FileName})
}

func (a *Adapter) FetchFile(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(ref) == "" {
		return nil, errors.New("empty file reference")
	}
	rc, err := a.bot.File(&tele.File{FileID: ref})
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxDownload+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxDownload {
		return nil, fmt.Errorf("file exceeds %d bytes", maxDownload)
	}
	return data, nil
}
