package adapter

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "memewrangler/internal/transport"
)

func TestMenuCommandsClampsAndHashes(t *testing.T) {
	t.Parallel()
	cmds := []kit.BotCommand{
		{Command: "help", Description: "show help"},
		{Command: ""},
		{Command: "log"},
		{Command: "long", Description: strings.Repeat("é", 300)},
	}
	got, sum := menuCommands(cmds)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[1].Description != "log" {
		t.Fatalf("empty description should fall back to the command, got %q", got[1].Description)
	}
	if n := len([]rune(got[2].Description)); n != maxMenuDescription {
		t.Fatalf("description runes = %d", n)
	}
	_, again := menuCommands(cmds)
	if sum != again {
		t.Fatal("hash is not stable")
	}
	_, other := menuCommands(cmds[:1])
	if sum == other {
		t.Fatal("different lists share a hash")
	}

	many := make([]kit.BotCommand, 150)
	for i := range many {
		many[i] = kit.BotCommand{Command: "c", Description: "d"}
	}
	if got, _ := menuCommands(many); len(got) != maxMenuCommands {
		t.Fatalf("len = %d, want %d", len(got), maxMenuCommands)
	}
}

func TestConvertMessageMedia(t *testing.T) {
	t.Parallel()
	m := &tele.Message{
		ID:      9,
		Chat:    &tele.Chat{ID: 42, Type: tele.ChatPrivate},
		Sender:  &tele.User{ID: 42, Username: "owner"},
		Caption: "lol",
		Video: &tele.Video{
			File:      tele.File{FileID: "vid"},
			MIME:      "video/mp4",
			Thumbnail: &tele.Photo{File: tele.File{FileID: "thumb"}},
		},
	}
	got := convertMessage(m)
	if got.Media != kit.MediaVideo || got.FileID != "vid" || got.ThumbID != "thumb" || got.MediaMime != "video/mp4" {
		t.Fatalf("unexpected media fields: %+v", got)
	}
	if !got.IsPrivate || got.FromID != 42 || got.FromUsername != "owner" || got.ChatID != 42 || got.Caption != "lol" {
		t.Fatalf("unexpected message fields: %+v", got)
	}
}

func TestConvertMessageAnimationWinsOverDocument(t *testing.T) {
	t.Parallel()
	m := &tele.Message{
		Chat:      &tele.Chat{ID: 1, Type: tele.ChatPrivate},
		Animation: &tele.Animation{File: tele.File{FileID: "gif"}},
		Document:  &tele.Document{File: tele.File{FileID: "doc"}},
	}
	got := convertMessage(m)
	if got.Media != kit.MediaAnimation || got.FileID != "gif" {
		t.Fatalf("got %+v", got)
	}
}

func TestConvertMessageReplyDocument(t *testing.T) {
	t.Parallel()
	m := &tele.Message{
		Chat: &tele.Chat{ID: 1, Type: tele.ChatPrivate},
		Text: "/restore pw",
		ReplyTo: &tele.Message{
			Document: &tele.Document{File: tele.File{FileID: "backup"}, FileName: "memes.json"},
		},
	}
	got := convertMessage(m)
	if got.ReplyDocumentID != "backup" || got.ReplyFileName != "memes.json" || got.Media != "" {
		t.Fatalf("got %+v", got)
	}
}

func TestSendUpdateNeverBlocks(t *testing.T) {
	t.Parallel()
	a := &Adapter{}
	a.sendUpdate(kit.Update{})

	out := make(chan kit.Update, 1)
	var send chan<- kit.Update = out
	a.out.Store(&send)
	a.sendUpdate(kit.Update{Kind: kit.UpdateMessage})
	a.sendUpdate(kit.Update{Kind: kit.UpdateMessage})
	if len(out) != 1 || a.dropped.Load() != 1 {
		t.Fatalf("queued=%d dropped=%d", len(out), a.dropped.Load())
	}
}
