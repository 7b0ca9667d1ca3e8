package posting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"memewrangler/internal/eventbus"
	"memewrangler/internal/meme"
	"memewrangler/internal/storage"
	"memewrangler/internal/transport"
	logx "memewrangler/pkg/logx"
)

var ErrNothingToPost = errors.New("no scheduled meme to post")

// Recorder receives posting metrics. A nil Recorder is allowed.
type Recorder interface {
	ObservePost(method string, ok bool)
	ObserveCycle(took time.Duration, due int)
	SetPending(n int)
}

// CycleReport summarizes one RunCycle.
type CycleReport struct {
	Due    int
	Posted int
	Failed int
	Took   time.Duration
}

type Options struct {
	Channel  transport.Destination
	Location *time.Location
	LogSize  int
	Now      func() time.Time
	Log      logx.Logger
	Bus      eventbus.Bus
	Metrics  Recorder
}

// Engine posts due memes and owns the event log.
type Engine struct {
	store   storage.Store
	deliver *Deliverer
	events  *EventLog

	channel transport.Destination
	loc     *time.Location
	now     func() time.Time
	log     logx.Logger
	bus     eventbus.Bus
	metrics Recorder

	// mu serializes cycles and on-demand posts so a record is never sent twice
	// concurrently.
	mu sync.Mutex
}

func NewEngine(store storage.Store, d *Deliverer, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	return &Engine{
		store:   store,
		deliver: d,
		events:  NewEventLog(opts.LogSize),
		channel: opts.Channel,
		loc:     opts.Location,
		now:     opts.Now,
		log:     opts.Log.With(logx.String("comp", "posting")),
		bus:     opts.Bus,
		metrics: opts.Metrics,
	}
}

func (e *Engine) Events() *EventLog { return e.events }

// SetChannel swaps the destination; used on config reload.
func (e *Engine) SetChannel(to transport.Destination) {
	e.mu.Lock()
	e.channel = to
	e.mu.Unlock()
}

// RunCycle posts every pending meme whose time has come. A store failure
// while listing is returned; delivery failures only reach the event log.
func (e *Engine) RunCycle(ctx context.Context) (CycleReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	due, err := e.store.ListDue(ctx, e.now())
	if err != nil {
		return CycleReport{}, err
	}
	rep := CycleReport{Due: len(due)}
	for _, rec := range due {
		if ctx.Err() != nil {
			break
		}
		if e.post(ctx, rec) {
			rep.Posted++
		} else {
			rep.Failed++
		}
	}
	rep.Took = time.Since(start)

	if e.metrics != nil {
		e.metrics.ObserveCycle(rep.Took, rep.Due)
		if pending, err := e.store.ListPending(ctx); err == nil {
			e.metrics.SetPending(len(pending))
		}
	}
	if rep.Due > 0 {
		e.log.Info("posting cycle done",
			logx.Int("due", rep.Due),
			logx.Int("posted", rep.Posted),
			logx.Int("failed", rep.Failed),
			logx.Duration("took", rep.Took),
		)
	}
	return rep, ctx.Err()
}

// PostNow posts the given pending id, or the earliest pending meme when id
// is nil, through the same chain as a cycle.
func (e *Engine) PostNow(ctx context.Context, id *int64) (meme.Record, Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		rec meme.Record
		ok  bool
		err error
	)
	if id != nil {
		rec, ok, err = e.store.Get(ctx, *id)
		ok = ok && !rec.Posted
	} else {
		rec, ok, err = e.store.NextPending(ctx)
	}
	if err != nil {
		return meme.Record{}, Outcome{}, err
	}
	if !ok {
		return meme.Record{}, Outcome{}, ErrNothingToPost
	}

	out := e.send(ctx, rec)
	if !out.Delivered {
		e.fail(rec, out.Err())
		return rec.In(e.loc), out, out.Err()
	}
	if err := e.store.MarkPosted(ctx, rec.ID); err != nil {
		e.fail(rec, err)
		return rec.In(e.loc), out, err
	}
	rec.Posted = true
	e.succeed(rec, out)
	return rec.In(e.loc), out, nil
}

// Preview sends rec to an arbitrary chat using ref, falling back to a
// fetch-and-upload when every direct send fails. It never touches state.
func (e *Engine) Preview(ctx context.Context, to transport.Destination, rec meme.Record, ref, caption string) Outcome {
	if ref == "" {
		ref = rec.OwnerFileID
	}
	out := e.deliver.Deliver(ctx, Request{
		To:       to,
		ID:       rec.ID,
		Ref:      ref,
		Mime:     rec.Mime,
		Caption:  caption,
		Reupload: true,
	})
	if !out.Delivered {
		e.log.Debug("preview failed", logx.Int64("id", rec.ID), logx.Err(out.Err()))
	}
	return out
}

// Summary is the text shown when no preview could be delivered.
func Summary(rec meme.Record, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	parts := []string{
		fmt.Sprintf("ID: %d", rec.ID),
		"Time: " + rec.ScheduledAt.In(loc).Format("2006-01-02 15:04:05") + " " + ZoneLabel(loc),
		"Type: " + rec.Mime.String(),
	}
	if rec.Caption != "" {
		parts = append(parts, "Caption: "+rec.Caption)
	}
	return strings.Join(parts, ", ")
}

// ZoneLabel prints IST for Asia/Kolkata and the abbreviation elsewhere.
func ZoneLabel(loc *time.Location) string {
	if loc.String() == meme.DefaultTimezone {
		return "IST"
	}
	name, _ := time.Now().In(loc).Zone()
	return name
}

func (e *Engine) post(ctx context.Context, rec meme.Record) bool {
	out := e.send(ctx, rec)
	if !out.Delivered {
		e.fail(rec, out.Err())
		return false
	}
	if err := e.store.MarkPosted(ctx, rec.ID); err != nil {
		e.fail(rec, err)
		e.log.Error("sent but not marked posted", logx.Int64("id", rec.ID), logx.Err(err))
		return false
	}
	e.succeed(rec, out)
	return true
}

func (e *Engine) send(ctx context.Context, rec meme.Record) Outcome {
	out := e.deliver.Deliver(ctx, Request{
		To:      e.channel,
		ID:      rec.ID,
		Ref:     rec.OwnerFileID,
		Mime:    rec.Mime,
		Caption: rec.Caption,
	})
	for _, a := range out.Attempts {
		if a.Err != nil {
			e.log.Warn("send attempt failed",
				logx.Int64("id", rec.ID),
				logx.String("method", string(a.Method)),
				logx.Err(a.Err),
			)
		}
		if e.metrics != nil {
			e.metrics.ObservePost(string(a.Method), a.Err == nil)
		}
	}
	return out
}

func (e *Engine) succeed(rec meme.Record, out Outcome) {
	method := ""
	if last, ok := out.Final(); ok {
		method = string(last.Method)
	}
	e.events.Append(Entry{Result: ResultSuccess, MemeID: rec.ID, At: e.now().In(e.loc)})
	e.log.Info("meme posted", logx.Int64("id", rec.ID), logx.String("method", method))
	eventbus.Emit(e.bus, eventbus.TypeMemePosted, rec.ID)
}

func (e *Engine) fail(rec meme.Record, err error) {
	detail := describe(err)
	e.events.Append(Entry{Result: ResultFail, MemeID: rec.ID, At: e.now().In(e.loc), Detail: detail})
	e.log.Warn("meme post failed", logx.Int64("id", rec.ID), logx.String("detail", detail))
	eventbus.Emit(e.bus, eventbus.TypeMemeFailed, rec.ID)
}

// describe renders "<kind>: <message>" for the event log.
func describe(err error) string {
	if err == nil {
		return "unknown: no error"
	}
	var me *meme.Error
	if errors.As(err, &me) {
		msg := me.Msg
		if me.Err != nil {
			if msg != "" {
				msg += ": "
			}
			msg += me.Err.Error()
		}
		if me.Op != "" {
			msg = me.Op + ": " + msg
		}
		return string(me.Kind) + ": " + msg
	}
	return "error: " + err.Error()
}
