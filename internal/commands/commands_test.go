package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memewrangler/internal/backup"
	"memewrangler/internal/meme"
	"memewrangler/internal/posting"
	"memewrangler/internal/schedule"
	"memewrangler/internal/storage"
	"memewrangler/internal/transport"
	"memewrangler/internal/transport/telegram/router"
	logx "memewrangler/pkg/logx"
)

var ist = time.FixedZone("IST", 5*3600+30*60)

const ownerChat = 42

type chatLog struct {
	mu    sync.Mutex
	texts []string
}

func (c *chatLog) Start(context.Context, chan<- transport.Update) error { return nil }
func (c *chatLog) Stop(context.Context) error                          { return nil }

func (c *chatLog) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (c *chatLog) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.texts) == 0 {
		return ""
	}
	return c.texts[len(c.texts)-1]
}

func (c *chatLog) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

type sent struct {
	method  string
	to      transport.Destination
	ref     string
	name    string
	data    []byte
	caption string
}

type mediaClient struct {
	mu    sync.Mutex
	fail  map[string]bool
	files map[string][]byte
	sent  []sent
}

func (m *mediaClient) record(method string, to transport.Destination, media transport.Media, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[method] || m.fail[media.Ref] {
		return fmt.Errorf("%s refused", method)
	}
	m.sent = append(m.sent, sent{method: method, to: to, ref: media.Ref, name: media.FileName, data: media.Data, caption: caption})
	return nil
}

func (m *mediaClient) SendPhoto(_ context.Context, to transport.Destination, media transport.Media, caption string) error {
	return m.record("photo", to, media, caption)
}

func (m *mediaClient) SendVideo(_ context.Context, to transport.Destination, media transport.Media, caption string) error {
	return m.record("video", to, media, caption)
}

func (m *mediaClient) SendDocument(_ context.Context, to transport.Destination, media transport.Media, caption string) error {
	return m.record("document", to, media, caption)
}

func (m *mediaClient) FetchFile(_ context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[ref]
	if !ok {
		return nil, errors.New("file not found")
	}
	return b, nil
}

func (m *mediaClient) sentList() []sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sent(nil), m.sent...)
}

type fixture struct {
	store   storage.Store
	h       *Handlers
	chat    *chatLog
	media   *mediaClient
	poster  *posting.Engine
	backups *backup.Engine
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "c.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{
		store: st,
		chat:  &chatLog{},
		media: &mediaClient{fail: map[string]bool{}, files: map[string][]byte{}},
		now:   time.Date(2025, 10, 19, 9, 0, 0, 0, ist),
	}
	now := func() time.Time { return f.now }
	clock := meme.MustSlotClock(ist)
	sched := schedule.New(st, clock, schedule.Options{Now: now})
	f.poster = posting.NewEngine(st, posting.NewDeliverer(f.media, 0, 0), posting.Options{
		Channel:  transport.Destination{Username: "@memes"},
		Location: ist,
		Now:      now,
	})
	f.backups = backup.NewEngine(st, backup.Options{Dir: t.TempDir(), Location: ist, Now: now})
	v, err := backup.NewVerifier("f52fbd32b2b3b86ff88ef6c490628285f482af15ddcb29541f94bcf526a3f6c7")
	require.NoError(t, err)

	f.h = New(Deps{
		Scheduler: sched,
		Poster:    f.poster,
		Backups:   f.backups,
		Store:     st,
		Media:     f.media,
		Verifier:  v,
	})
	return f
}

func (f *fixture) request(argLine string) *router.Request {
	return &router.Request{
		Message: &transport.Message{ChatID: ownerChat, FromID: ownerChat, IsPrivate: true},
		Chat:    transport.ChatTarget{ChatID: ownerChat},
		FromID:  ownerChat,
		Args:    strings.Fields(argLine),
		ArgLine: argLine,
		Adapter: f.chat,
		Logger:  logx.Nop(),
	}
}

func (f *fixture) mediaRequest(kind transport.MediaKind, file, caption string) *router.Request {
	req := f.request("")
	req.Message.Media = kind
	req.Message.FileID = file
	req.Message.Caption = caption
	return req
}

func (f *fixture) intake(t *testing.T, file string) {
	t.Helper()
	require.NoError(t, f.h.intake(context.Background(), f.mediaRequest(transport.MediaPhoto, file, "")))
}

func TestParseIDs(t *testing.T) {
	t.Parallel()
	ids, err := parseIDs([]string{"3", "4,5", "3"})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4, 5, 3}, ids)

	for _, bad := range [][]string{nil, {"x"}, {"0"}, {"-2"}, {","}} {
		_, err := parseIDs(bad)
		assert.ErrorIs(t, err, meme.ErrValidation, "%v", bad)
	}
}

func TestParseScheduleAt(t *testing.T) {
	t.Parallel()
	got := parseScheduleAt("id: 6 16:20")
	assert.Equal(t, scheduleAtArgs{kind: scheduleAtOne, id: 6, hour: 16, minute: 20}, got)

	got = parseScheduleAt("ID:6   09:05")
	assert.Equal(t, scheduleAtOne, got.kind)
	assert.Equal(t, 9, got.hour)

	got = parseScheduleAt("ids: 5-10 2025-10-19")
	assert.Equal(t, scheduleAtArgs{kind: scheduleAtRange, start: 5, end: 10, date: "2025-10-19"}, got)

	for _, bad := range []string{"id: 6 1620", "id: x 16:20", "ids: 5 2025-10-19", "ids: 5-10 19-10-2025", "6 16:20"} {
		assert.Equal(t, scheduleAtNone, parseScheduleAt(bad).kind, bad)
	}
}

func TestIntakeSchedulesNextSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.h.intake(ctx, f.mediaRequest(transport.MediaPhoto, "p1", "first")))
	assert.Equal(t, "Scheduled for: 2025-10-19 11:00:00 IST", f.chat.last())

	require.NoError(t, f.h.intake(ctx, f.mediaRequest(transport.MediaVideo, "v1", "")))
	assert.Equal(t, "Scheduled for: 2025-10-19 16:00:00 IST", f.chat.last())

	require.NoError(t, f.h.intake(ctx, f.mediaRequest(transport.MediaDocument, "d1", "")))
	assert.Equal(t, msgUnsupported, f.chat.last())

	recs, err := f.store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, meme.MimeImage, recs[0].Mime)
	assert.Equal(t, "first", recs[0].Caption)
	assert.Equal(t, meme.MimeVideo, recs[1].Mime)
}

func TestUnschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.intake(t, "a")
	f.intake(t, "b")

	require.NoError(t, f.h.unschedule(ctx, f.request("")))
	assert.Equal(t, usageUnschedule, f.chat.last())
	require.NoError(t, f.h.unschedule(ctx, f.request("1 nope")))
	assert.Equal(t, usageUnschedule, f.chat.last())

	require.NoError(t, f.h.unschedule(ctx, f.request("1 9")))
	assert.Equal(t, "Unscheduled memes with IDs: 1, 9 (if they existed and were not posted yet).", f.chat.last())

	recs, err := f.store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(2), recs[0].ID)
}

func TestScheduleAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		f.intake(t, fmt.Sprintf("m%d", i))
	}

	require.NoError(t, f.h.scheduleAt(ctx, f.request("")))
	assert.Equal(t, usageScheduleAt, f.chat.last())

	require.NoError(t, f.h.scheduleAt(ctx, f.request("id: 2 16:20")))
	assert.Equal(t, "Rescheduled meme ID 2 for 2025-10-19 16:20 IST.", f.chat.last())
	rec, _, err := f.store.Get(ctx, 2)
	require.NoError(t, err)
	assert.True(t, rec.ScheduledAt.Equal(time.Date(2025, 10, 19, 16, 20, 0, 0, ist)))

	require.NoError(t, f.h.scheduleAt(ctx, f.request("id: 2 25:00")))
	assert.Equal(t, "Invalid time format. Use 24h HH:MM.", f.chat.last())

	require.NoError(t, f.h.scheduleAt(ctx, f.request("id: 99 10:00")))
	assert.Equal(t, "No scheduled meme with ID 99 to reschedule.", f.chat.last())

	require.NoError(t, f.h.scheduleAt(ctx, f.request("ids: 1-4 2025-10-25")))
	assert.Equal(t, "Rescheduled memes IDs 1-4 for 2025-10-25 in slots 11:00, 16:00, 21:00 IST (cycled).", f.chat.last())
	wantHours := []int{11, 16, 21, 11}
	for i, h := range wantHours {
		rec, _, err := f.store.Get(ctx, int64(i+1))
		require.NoError(t, err)
		assert.True(t, rec.ScheduledAt.Equal(time.Date(2025, 10, 25, h, 0, 0, 0, ist)), "id %d", i+1)
	}

	require.NoError(t, f.h.scheduleAt(ctx, f.request("ids: 4-1 2025-10-25")))
	assert.True(t, strings.HasPrefix(f.chat.last(), "Invalid format."))

	require.NoError(t, f.h.scheduleAt(ctx, f.request("ids: 1-2 2025-13-40")))
	assert.Equal(t, "Invalid date format. Use YYYY-MM-DD.", f.chat.last())

	require.NoError(t, f.h.scheduleAt(ctx, f.request("tomorrow")))
	assert.True(t, strings.HasPrefix(f.chat.last(), "Invalid format. Use /scheduleat"))
}

func TestPostNowAndLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.h.eventLog(ctx, f.request("")))
	assert.Equal(t, "No posting events yet.", f.chat.last())

	require.NoError(t, f.h.postNow(ctx, f.request("")))
	assert.Equal(t, "No scheduled memes to post.", f.chat.last())

	f.intake(t, "a")
	f.intake(t, "b")

	require.NoError(t, f.h.postNow(ctx, f.request("2")))
	assert.Equal(t, "Posted meme with ID 2 to channel.", f.chat.last())
	require.NoError(t, f.h.postNow(ctx, f.request("2")))
	assert.Equal(t, "No scheduled meme with ID 2 to post.", f.chat.last())

	f.media.fail["photo"] = true
	f.media.fail["document"] = true
	require.Error(t, f.h.postNow(ctx, f.request("")))
	assert.True(t, strings.HasPrefix(f.chat.last(), "Failed to post meme: "), f.chat.last())

	require.NoError(t, f.h.eventLog(ctx, f.request("")))
	lines := strings.Split(f.chat.last(), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Last posting events:", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "[SUCCESS] Posted meme id=2 at "))
	assert.True(t, strings.HasPrefix(lines[2], "[FAIL] Meme id=1 at "))

	sentTo := f.media.sentList()
	require.Len(t, sentTo, 1)
	assert.Equal(t, "@memes", sentTo[0].to.String())
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.intake(t, "owner-ref")

	require.NoError(t, f.h.preview(ctx, f.request("")))
	assert.Equal(t, "Usage: /preview <id>", f.chat.last())
	require.NoError(t, f.h.preview(ctx, f.request("7")))
	assert.Equal(t, "No meme found with ID 7.", f.chat.last())

	require.NoError(t, f.h.preview(ctx, f.request("1")))
	assert.Equal(t, "Previewing meme 1...", f.chat.last())
	got := f.media.sentList()
	require.Len(t, got, 1)
	assert.Equal(t, "photo", got[0].method)
	assert.Equal(t, "owner-ref", got[0].ref)
	assert.Equal(t, "Preview ID 1", got[0].caption)
	assert.Equal(t, int64(ownerChat), got[0].to.ChatID)

	f.media.fail["owner-ref"] = true
	require.Error(t, f.h.preview(ctx, f.request("1")))
	assert.True(t, strings.HasPrefix(f.chat.last(), "Could not preview meme 1.\nID: 1, Time: 2025-10-19 11:00:00 IST"), f.chat.last())

	rec, _, err := f.store.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, rec.Posted)
}

func TestScheduledListsWithTextFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.h.scheduled(ctx, f.request("")))
	assert.Equal(t, "No scheduled memes.", f.chat.last())

	require.NoError(t, f.h.intake(ctx, f.mediaRequest(transport.MediaPhoto, "ok", "hello")))
	f.intake(t, "bad")
	f.media.fail["bad"] = true

	require.NoError(t, f.h.scheduled(ctx, f.request("")))
	got := f.media.sentList()
	require.Len(t, got, 1)
	assert.Equal(t, "ID: 1, Time: 2025-10-19 11:00:00 IST, Type: image, Caption: hello", got[0].caption)
	assert.Equal(t, "ID: 2, Time: 2025-10-19 16:00:00 IST, Type: image", f.chat.last())
}

func TestBackupAndRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.intake(t, "a")
	f.intake(t, "b")

	require.Error(t, f.h.backup(ctx, f.request("")))
	assert.Equal(t, msgBackupAuth, f.chat.last())
	require.Error(t, f.h.backup(ctx, f.request("wrong")))
	assert.Equal(t, msgBackupAuth, f.chat.last())

	require.NoError(t, f.h.backup(ctx, f.request("hunter2")))
	docs := f.media.sentList()
	require.Len(t, docs, 1)
	assert.Equal(t, "document", docs[0].method)
	assert.Equal(t, "memes-backup-20251019-090000.json", docs[0].name)
	assert.Equal(t, "Backup created: 2 total memes (2 scheduled).", docs[0].caption)

	require.NoError(t, f.h.restore(ctx, f.request("hunter2")))
	assert.Equal(t, msgRestoreHow, f.chat.last())

	f.media.files["doc-1"] = docs[0].data
	f.media.files["junk"] = []byte(`{"version": 1}`)

	_, err := f.store.DeletePending(ctx, []int64{1, 2})
	require.NoError(t, err)

	req := f.request("hunter2")
	req.Message.ReplyDocumentID = "junk"
	require.Error(t, f.h.restore(ctx, req))
	assert.True(t, strings.HasPrefix(f.chat.last(), "Could not parse backup: "), f.chat.last())

	req = f.request("nope")
	req.Message.ReplyDocumentID = "doc-1"
	require.Error(t, f.h.restore(ctx, req))
	assert.Equal(t, msgRestoreAuth, f.chat.last())

	req = f.request("hunter2")
	req.Message.ReplyDocumentID = "doc-1"
	require.NoError(t, f.h.restore(ctx, req))
	assert.Equal(t, "Restore complete: 2 memes imported (2 scheduled).", f.chat.last())

	recs, err := f.store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].OwnerFileID)
}

func TestCommandsAreOwnerOnlyExceptStart(t *testing.T) {
	f := newFixture(t)
	for _, c := range f.h.Commands() {
		if c.Name == "start" {
			assert.Equal(t, router.AccessEveryone, c.Access)
			continue
		}
		assert.Equal(t, router.AccessOwnerOnly, c.Access, c.Name)
		assert.NotNil(t, c.Handle, c.Name)
	}
	assert.Equal(t, router.AccessOwnerOnly, f.h.MediaHandler().Access)
}
