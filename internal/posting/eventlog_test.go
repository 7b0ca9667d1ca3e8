package posting

import (
	"testing"
	"time"
)

func TestEventLogEvictsOldest(t *testing.T) {
	t.Parallel()
	l := NewEventLog(0)
	if l.Cap() != DefaultLogSize {
		t.Fatalf("cap = %d", l.Cap())
	}
	for i := 1; i <= 101; i++ {
		l.Append(Entry{Result: ResultSuccess, MemeID: int64(i)})
	}
	if l.Len() != 100 {
		t.Fatalf("len = %d, want 100", l.Len())
	}
	all := l.Recent(0)
	if all[0].MemeID != 2 || all[99].MemeID != 101 {
		t.Fatalf("oldest=%d newest=%d", all[0].MemeID, all[99].MemeID)
	}
	last := l.Recent(10)
	if len(last) != 10 || last[0].MemeID != 92 || last[9].MemeID != 101 {
		t.Fatalf("recent(10) = %d..%d", last[0].MemeID, last[len(last)-1].MemeID)
	}
}

func TestEventLogCapacityIsBounded(t *testing.T) {
	t.Parallel()
	l := NewEventLog(500)
	if l.Cap() != DefaultLogSize {
		t.Fatalf("cap = %d, want %d", l.Cap(), DefaultLogSize)
	}
	for i := 1; i <= 300; i++ {
		l.Append(Entry{Result: ResultFail, MemeID: int64(i)})
	}
	if l.Len() != DefaultLogSize {
		t.Fatalf("len = %d, want %d", l.Len(), DefaultLogSize)
	}
	if got := l.Recent(0); got[0].MemeID != 201 || got[len(got)-1].MemeID != 300 {
		t.Fatalf("kept %d..%d, want 201..300", got[0].MemeID, got[len(got)-1].MemeID)
	}
}

func TestEventLogRecentBeforeFull(t *testing.T) {
	t.Parallel()
	l := NewEventLog(5)
	l.Append(Entry{MemeID: 1})
	l.Append(Entry{MemeID: 2})
	got := l.Recent(10)
	if len(got) != 2 || got[0].MemeID != 1 || got[1].MemeID != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestEntryString(t *testing.T) {
	t.Parallel()
	ist := time.FixedZone("IST", 5*3600+30*60)
	at := time.Date(2025, 10, 19, 11, 0, 3, 0, ist)
	ok := Entry{Result: ResultSuccess, MemeID: 5, At: at}
	if got := ok.String(); got != "[SUCCESS] Posted meme id=5 at 2025-10-19 11:00:03+05:30" {
		t.Fatalf("got %q", got)
	}
	bad := Entry{Result: ResultFail, MemeID: 5, At: at, Detail: "delivery: photo: bad request"}
	if got := bad.String(); got != "[FAIL] Meme id=5 at 2025-10-19 11:00:03+05:30: delivery: photo: bad request" {
		t.Fatalf("got %q", got)
	}
}
