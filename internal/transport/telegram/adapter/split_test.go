package adapter

import (
	"strings"
	"testing"

	kit "memewrangler/internal/transport"
)

func TestSplitTelegramTextShort(t *testing.T) {
	t.Parallel()
	got := splitTelegramText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitTelegramText(in, 10, "")
	if len(got) != 2 || got[0] != strings.Repeat("a", 8) || got[1] != strings.Repeat("b", 8) {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextKeepsTagsWhole(t *testing.T) {
	t.Parallel()
	in := "abcdefg<b>bold</b>"
	got := splitTelegramText(in, 9, "HTML")
	if got[0] != "abcdefg" {
		t.Fatalf("first chunk = %q", got[0])
	}
	if strings.Join(got, "") != in {
		t.Fatalf("chunks lost text: %q", got)
	}
}

func TestRecipient(t *testing.T) {
	t.Parallel()
	r, err := recipient(kit.Destination{ChatID: -100123})
	if err != nil || r.Recipient() != "-100123" {
		t.Fatalf("recipient = %v, %v", r, err)
	}
	r, err = recipient(kit.Destination{Username: "@memes"})
	if err != nil || r.Recipient() != "@memes" {
		t.Fatalf("recipient = %v, %v", r, err)
	}
	if _, err := recipient(kit.Destination{}); err == nil {
		t.Fatal("expected error for empty destination")
	}
}

func TestMediaFile(t *testing.T) {
	t.Parallel()
	f, err := mediaFile(kit.Media{Ref: "AgAD"})
	if err != nil || f.FileID != "AgAD" {
		t.Fatalf("mediaFile ref = %+v, %v", f, err)
	}
	f, err = mediaFile(kit.Media{Data: []byte("x"), FileName: "meme_1.jpg"})
	if err != nil || f.FileReader == nil {
		t.Fatalf("mediaFile upload = %+v, %v", f, err)
	}
	if _, err := mediaFile(kit.Media{}); err == nil {
		t.Fatal("expected error for empty media")
	}
}
