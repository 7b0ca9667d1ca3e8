package posting

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

	"memewrangler/internal/meme"
	"memewrangler/internal/storage"
	"memewrangler/internal/transport"
	logx "memewrangler/pkg/logx"
)

var ist = time.FixedZone("IST", 5*3600+30*60)

// fakeClient fails any call whose key ("photo", "document+upload", ...) is in fail.
type fakeClient struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (f *fakeClient) do(kind string, m transport.Media) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := kind
	if m.IsUpload() {
		key += "+upload"
	}
	f.calls = append(f.calls, key+":"+m.Ref)
	if f.fail[key] || f.fail[m.Ref] {
		return fmt.Errorf("%s rejected", key)
	}
	return nil
}

func (f *fakeClient) SendPhoto(_ context.Context, _ transport.Destination, m transport.Media, _ string) error {
	return f.do("photo", m)
}

func (f *fakeClient) SendVideo(_ context.Context, _ transport.Destination, m transport.Media, _ string) error {
	return f.do("video", m)
}

func (f *fakeClient) SendDocument(_ context.Context, _ transport.Destination, m transport.Media, _ string) error {
	return f.do("document", m)
}

func (f *fakeClient) FetchFile(_ context.Context, ref string) ([]byte, error) {
	return []byte("bytes:" + ref), nil
}

func (f *fakeClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type engineFixture struct {
	store  storage.Store
	client *fakeClient
	engine *Engine
	now    time.Time
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "p.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := &engineFixture{
		store:  st,
		client: &fakeClient{fail: map[string]bool{}},
		now:    time.Date(2025, 10, 19, 16, 0, 30, 0, ist),
	}
	f.engine = NewEngine(st, NewDeliverer(f.client, 0, 0), Options{
		Channel:  channel,
		Location: ist,
		Now:      func() time.Time { return f.now },
	})
	return f
}

func (f *engineFixture) add(t *testing.T, ref string, mime meme.MimeClass, h int) int64 {
	t.Helper()
	id, err := f.store.Insert(context.Background(), meme.Record{
		OwnerFileID: ref,
		Mime:        mime,
		ScheduledAt: time.Date(2025, 10, 19, h, 0, 0, 0, ist),
	})
	require.NoError(t, err)
	return id
}

func TestRunCyclePostsDueAndKeepsFailuresPending(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ok := f.add(t, "vid", meme.MimeVideo, 11)
	bad := f.add(t, "broken", meme.MimeImage, 16)
	later := f.add(t, "later", meme.MimeImage, 21)
	f.client.fail["broken"] = true

	rep, err := f.engine.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, CycleReport{Due: 2, Posted: 1, Failed: 1, Took: rep.Took}, rep)

	rec, _, err := f.store.Get(ctx, ok)
	require.NoError(t, err)
	assert.True(t, rec.Posted)
	rec, _, err = f.store.Get(ctx, bad)
	require.NoError(t, err)
	assert.False(t, rec.Posted)
	rec, _, err = f.store.Get(ctx, later)
	require.NoError(t, err)
	assert.False(t, rec.Posted)

	entries := f.engine.Events().Recent(0)
	require.Len(t, entries, 2)
	assert.Equal(t, ResultSuccess, entries[0].Result)
	assert.Equal(t, ok, entries[0].MemeID)
	assert.Equal(t, ResultFail, entries[1].Result)
	assert.True(t, strings.HasPrefix(entries[1].String(), fmt.Sprintf("[FAIL] Meme id=%d at 2025-10-19 16:00:30+05:30: delivery: document: ", bad)))
}

func TestRunCycleTwiceDoesNotResend(t *testing.T) {
	f := newEngineFixture(t)
	f.add(t, "a", meme.MimeImage, 11)
	f.add(t, "b", meme.MimeImage, 16)

	_, err := f.engine.RunCycle(context.Background())
	require.NoError(t, err)
	sends := f.client.count()
	logged := f.engine.Events().Len()
	assert.Equal(t, 2, sends)
	assert.Equal(t, 2, logged)

	rep, err := f.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Due)
	assert.Equal(t, sends, f.client.count())
	assert.Equal(t, logged, f.engine.Events().Len())
}

func TestRunCycleReturnsStoreErrors(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.store.Close())
	_, err := f.engine.RunCycle(context.Background())
	assert.ErrorIs(t, err, meme.ErrPersistence)
}

func TestPostNow(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, _, err := f.engine.PostNow(ctx, nil)
	require.ErrorIs(t, err, ErrNothingToPost)

	first := f.add(t, "first", meme.MimeImage, 21)
	second := f.add(t, "second", meme.MimeVideo, 22)

	rec, out, err := f.engine.PostNow(ctx, &second)
	require.NoError(t, err)
	assert.True(t, out.Delivered)
	assert.Equal(t, second, rec.ID)
	assert.True(t, rec.Posted)

	_, _, err = f.engine.PostNow(ctx, &second)
	require.ErrorIs(t, err, ErrNothingToPost)

	rec, _, err = f.engine.PostNow(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, first, rec.ID)
	assert.Equal(t, 2, f.engine.Events().Len())

	f.add(t, "dead", meme.MimeImage, 23)
	f.client.fail["dead"] = true
	_, out, err = f.engine.PostNow(ctx, nil)
	require.ErrorIs(t, err, meme.ErrDelivery)
	assert.False(t, out.Delivered)
	assert.Equal(t, ResultFail, f.engine.Events().Recent(1)[0].Result)
}

func TestPreviewUsesReupload(t *testing.T) {
	f := newEngineFixture(t)
	f.client.fail["photo"] = true
	f.client.fail["document"] = true

	rec := meme.Record{ID: 7, OwnerFileID: "own", PreviewFileID: "thumb", Mime: meme.MimeImage}
	out := f.engine.Preview(context.Background(), transport.ChatDestination(42), rec, rec.PreviewRef(), "Preview ID 7")
	require.True(t, out.Delivered)
	last, _ := out.Final()
	assert.True(t, last.Reupload)
	assert.Equal(t, MethodPhoto, last.Method)
	assert.Zero(t, f.engine.Events().Len())
}

func TestSummary(t *testing.T) {
	rec := meme.Record{ID: 3, Mime: meme.MimeVideo, Caption: "lol", ScheduledAt: time.Date(2025, 10, 19, 5, 30, 0, 0, time.UTC)}
	loc := time.FixedZone("IST", 5*3600+30*60)
	assert.Equal(t, "ID: 3, Time: 2025-10-19 11:00:00 IST, Type: video, Caption: lol", Summary(rec, loc))
	rec.Caption = ""
	assert.Equal(t, "ID: 3, Time: 2025-10-19 11:00:00 IST, Type: video", Summary(rec, loc))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "delivery: photo: boom", describe(meme.Delivery("photo", errors.New("boom"))))
	assert.Equal(t, "error: plain", describe(errors.New("plain")))
}
