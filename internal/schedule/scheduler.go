// Package schedule assigns slot boundaries to incoming memes and applies
// owner reschedule commands.
package schedule

import (
	"context"
	"sort"
	"time"

	"memewrangler/internal/eventbus"
	"memewrangler/internal/meme"
	"memewrangler/internal/storage"
	logx "memewrangler/pkg/logx"
)

// Intake is a freshly received meme awaiting a slot.
type Intake struct {
	OwnerFileID   string
	PreviewFileID string
	Mime          meme.MimeClass
	Caption       string
}

// MaxRangeIDs bounds the number of ids one range reschedule may touch.
const MaxRangeIDs = 1000

// Assignment is the outcome of one id in a range reschedule.
type Assignment struct {
	ID      int64
	At      time.Time
	Updated bool
}

type Options struct {
	Now func() time.Time
	Log logx.Logger
	Bus eventbus.Bus
}

type Scheduler struct {
	store storage.Store
	clock *meme.SlotClock
	now   func() time.Time
	log   logx.Logger
	bus   eventbus.Bus
}

func New(store storage.Store, clock *meme.SlotClock, opts Options) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	return &Scheduler{
		store: store,
		clock: clock,
		now:   opts.Now,
		log:   opts.Log.With(logx.String("comp", "schedule")),
		bus:   opts.Bus,
	}
}

func (s *Scheduler) Clock() *meme.SlotClock { return s.clock }

// ScheduleIntake stores in at the slot after the latest pending one (or after
// now when nothing is pending). The read and the insert share one locked
// transaction, so concurrent intakes never collide on a slot.
func (s *Scheduler) ScheduleIntake(ctx context.Context, in Intake) (meme.Record, error) {
	if in.OwnerFileID == "" {
		return meme.Record{}, meme.Validation("schedule", "missing file reference")
	}
	now := s.now()
	rec := meme.Record{
		OwnerFileID:   in.OwnerFileID,
		PreviewFileID: in.PreviewFileID,
		Mime:          in.Mime,
		Caption:       in.Caption,
		CreatedAt:     now,
	}
	err := s.store.IntakeTx(ctx, func(q storage.Queries) error {
		after, ok, err := q.LatestPendingAt(ctx)
		if err != nil {
			return err
		}
		if !ok {
			after = now
		}
		rec.ScheduledAt = s.clock.NextSlot(after)
		rec.ID, err = q.Insert(ctx, rec)
		return err
	})
	if err != nil {
		return meme.Record{}, err
	}
	rec = rec.In(s.clock.Location())
	s.log.Info("meme scheduled",
		logx.Int64("id", rec.ID),
		logx.String("mime", rec.Mime.String()),
		logx.String("at", rec.ScheduledAt.Format(time.RFC3339)),
	)
	eventbus.Emit(s.bus, eventbus.TypeMemeScheduled, rec)
	return rec, nil
}

// RescheduleAt moves a pending meme to hour:minute today in the fixed zone.
// ok is false when the id is missing or already posted.
func (s *Scheduler) RescheduleAt(ctx context.Context, id int64, hour, minute int) (time.Time, bool, error) {
	if id <= 0 {
		return time.Time{}, false, meme.Validation("reschedule", "invalid id %d", id)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, false, meme.Validation("reschedule", "invalid time %02d:%02d (use 24h HH:MM)", hour, minute)
	}
	when := s.clock.At(s.now(), hour, minute)
	ok, err := s.store.SetScheduledAt(ctx, id, when)
	if err != nil {
		return time.Time{}, false, err
	}
	if ok {
		s.log.Info("meme rescheduled", logx.Int64("id", id), logx.String("at", when.Format(time.RFC3339)))
		eventbus.Emit(s.bus, eventbus.TypeMemeRescheduled, []Assignment{{ID: id, At: when, Updated: true}})
	}
	return when, ok, nil
}

// RescheduleRange assigns the slots of day, in order and cycling, to ids
// start..end inclusive. All updates share one transaction.
func (s *Scheduler) RescheduleRange(ctx context.Context, start, end int64, day time.Time) ([]Assignment, error) {
	if start <= 0 || end <= 0 {
		return nil, meme.Validation("reschedule range", "ids must be positive")
	}
	if start > end {
		return nil, meme.Validation("reschedule range", "start id %d is after end id %d", start, end)
	}
	if end-start >= MaxRangeIDs {
		return nil, meme.Validation("reschedule range", "range %d-%d spans more than %d ids", start, end, MaxRangeIDs)
	}
	n := int(end - start + 1)
	slots := s.clock.SlotsFrom(day, n)
	out := make([]Assignment, n)
	err := s.store.InTx(ctx, func(q storage.Queries) error {
		for i := range out {
			id := start + int64(i)
			ok, err := q.SetScheduledAt(ctx, id, slots[i])
			if err != nil {
				return err
			}
			out[i] = Assignment{ID: id, At: slots[i], Updated: ok}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("meme range rescheduled",
		logx.Int64("from", start),
		logx.Int64("to", end),
		logx.String("day", day.In(s.clock.Location()).Format("2006-01-02")),
	)
	eventbus.Emit(s.bus, eventbus.TypeMemeRescheduled, out)
	return out, nil
}

// Unschedule deletes the pending memes among ids. Posted ids are left alone.
func (s *Scheduler) Unschedule(ctx context.Context, ids []int64) (int64, error) {
	clean := make([]int64, 0, len(ids))
	seen := map[int64]bool{}
	for _, id := range ids {
		if id <= 0 {
			return 0, meme.Validation("unschedule", "invalid id %d", id)
		}
		if !seen[id] {
			seen[id] = true
			clean = append(clean, id)
		}
	}
	if len(clean) == 0 {
		return 0, meme.Validation("unschedule", "no ids given")
	}
	sort.Slice(clean, func(i, j int) bool { return clean[i] < clean[j] })
	n, err := s.store.DeletePending(ctx, clean)
	if err != nil {
		return 0, err
	}
	s.log.Info("memes unscheduled", logx.Any("ids", clean), logx.Int64("deleted", n))
	eventbus.Emit(s.bus, eventbus.TypeMemeUnscheduled, clean)
	return n, nil
}

// Pending lists unposted memes ordered by schedule, in the fixed zone.
func (s *Scheduler) Pending(ctx context.Context) ([]meme.Record, error) {
	recs, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	loc := s.clock.Location()
	for i := range recs {
		recs[i] = recs[i].In(loc)
	}
	return recs, nil
}
