package meme

import (
	"errors"
	"testing"
	"time"
)

var ist = time.FixedZone("IST", 5*3600+30*60)

func TestNextSlot(t *testing.T) {
	t.Parallel()
	c := MustSlotClock(ist)
	day := func(d, h, m int) time.Time { return time.Date(2025, 10, d, h, m, 0, 0, ist) }

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{name: "before first", in: day(19, 10, 59), want: day(19, 11, 0)},
		{name: "on first", in: day(19, 11, 0), want: day(19, 16, 0)},
		{name: "between", in: day(19, 13, 37), want: day(19, 16, 0)},
		{name: "on second", in: day(19, 16, 0), want: day(19, 21, 0)},
		{name: "on last", in: day(19, 21, 0), want: day(20, 11, 0)},
		{name: "after last", in: day(19, 21, 1), want: day(20, 11, 0)},
		{name: "midnight", in: day(19, 0, 0), want: day(19, 11, 0)},
		{name: "month end", in: time.Date(2025, 10, 31, 22, 0, 0, 0, ist), want: time.Date(2025, 11, 1, 11, 0, 0, 0, ist)},
		{name: "utc input same day", in: time.Date(2025, 10, 19, 5, 29, 59, 0, time.UTC), want: day(19, 11, 0)},
		{name: "utc input next civil day", in: time.Date(2025, 10, 19, 20, 0, 0, 0, time.UTC), want: day(20, 11, 0)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := c.NextSlot(tt.in)
			if !got.Equal(tt.want) {
				t.Fatalf("NextSlot(%s) = %s, want %s", tt.in, got, tt.want)
			}
			if got.Location() != ist {
				t.Fatalf("NextSlot location = %s, want IST", got.Location())
			}
		})
	}
}

func TestNextSlotChainIsStrictlyIncreasing(t *testing.T) {
	t.Parallel()
	c := MustSlotClock(ist)
	ref := time.Date(2025, 1, 1, 9, 0, 0, 0, ist)
	prev := ref
	for i := 0; i < 10; i++ {
		next := c.NextSlot(prev)
		if !next.After(prev) {
			t.Fatalf("step %d: %s is not after %s", i, next, prev)
		}
		prev = next
	}
	if want := time.Date(2025, 1, 4, 11, 0, 0, 0, ist); !prev.Equal(want) {
		t.Fatalf("10th slot = %s, want %s", prev, want)
	}
}

func TestSlotsFromCycles(t *testing.T) {
	t.Parallel()
	c := MustSlotClock(ist)
	day := time.Date(2025, 10, 19, 0, 0, 0, 0, ist)
	got := c.SlotsFrom(day, 6)
	wantHours := []int{11, 16, 21, 11, 16, 21}
	if len(got) != len(wantHours) {
		t.Fatalf("len = %d, want %d", len(got), len(wantHours))
	}
	for i, h := range wantHours {
		if got[i].Hour() != h || got[i].Day() != 19 {
			t.Fatalf("slot %d = %s, want 2025-10-19 %02d:00", i, got[i], h)
		}
	}
}

func TestNewSlotClockSortsAndRejects(t *testing.T) {
	t.Parallel()
	c, err := NewSlotClock(ist, SlotTime{21, 0}, SlotTime{9, 30}, SlotTime{21, 0})
	if err != nil {
		t.Fatalf("NewSlotClock error: %v", err)
	}
	slots := c.Slots()
	if len(slots) != 2 || slots[0] != (SlotTime{9, 30}) || slots[1] != (SlotTime{21, 0}) {
		t.Fatalf("unexpected slots: %v", slots)
	}
	if _, err := NewSlotClock(ist, SlotTime{24, 0}); err == nil {
		t.Fatal("expected error for hour 24")
	}
	if _, err := NewSlotClock(nil); err == nil {
		t.Fatal("expected error for nil location")
	}
}

func TestParseSlotAndDate(t *testing.T) {
	t.Parallel()
	s, err := ParseSlot("16:20")
	if err != nil || s != (SlotTime{16, 20}) {
		t.Fatalf("ParseSlot = %v, %v", s, err)
	}
	for _, bad := range []string{"24:00", "12:60", "1620", "ab:cd", ""} {
		if _, err := ParseSlot(bad); !errors.Is(err, ErrValidation) {
			t.Fatalf("ParseSlot(%q) err = %v, want validation", bad, err)
		}
	}
	d, err := ParseDate("2025-10-19", ist)
	if err != nil {
		t.Fatalf("ParseDate error: %v", err)
	}
	if d.Year() != 2025 || d.Month() != time.October || d.Day() != 19 || d.Location() != ist {
		t.Fatalf("ParseDate = %s", d)
	}
	if _, err := ParseDate("19-10-2025", ist); !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseDate bad err = %v", err)
	}
}

func TestClassifyMime(t *testing.T) {
	t.Parallel()
	cases := map[string]MimeClass{
		"video":     MimeVideo,
		"video/mp4": MimeVideo,
		"VIDEO":     MimeVideo,
		"image":     MimeImage,
		"animation": MimeImage,
		"":          MimeImage,
	}
	for in, want := range cases {
		if got := ClassifyMime(in); got != want {
			t.Fatalf("ClassifyMime(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestRecordPreviewRef(t *testing.T) {
	t.Parallel()
	r := Record{OwnerFileID: "owner"}
	if r.PreviewRef() != "owner" {
		t.Fatalf("PreviewRef = %q", r.PreviewRef())
	}
	r.PreviewFileID = "small"
	if r.PreviewRef() != "small" {
		t.Fatalf("PreviewRef = %q", r.PreviewRef())
	}
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()
	base := errors.New("connection refused")
	err := Persistence("insert", base)
	if !errors.Is(err, ErrPersistence) {
		t.Fatal("expected persistence kind")
	}
	if errors.Is(err, ErrValidation) {
		t.Fatal("persistence error must not match validation")
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped cause")
	}
	if Persistence("outer", err) != err {
		t.Fatal("persistence errors should not be double wrapped")
	}
	if Persistence("noop", nil) != nil || Delivery("noop", nil) != nil {
		t.Fatal("nil cause must yield nil")
	}
	if KindOf(Integrity("restore", "entry %d", 3)) != KindIntegrity {
		t.Fatal("KindOf integrity")
	}
	if got := Validation("scheduleat", "bad id").Error(); got != "scheduleat: bad id" {
		t.Fatalf("Error() = %q", got)
	}
}
