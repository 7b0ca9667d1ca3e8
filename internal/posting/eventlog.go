package posting

import (
	"fmt"
	"sync"
	"time"
)

// DefaultLogSize is the event log capacity and its upper bound.
const DefaultLogSize = 100

type Result string

const (
	ResultSuccess Result = "SUCCESS"
	ResultFail    Result = "FAIL"
)

// Entry is one posting attempt outcome.
type Entry struct {
	Result Result
	MemeID int64
	At     time.Time
	Detail string
}

const entryTimeLayout = "2006-01-02 15:04:05.999999-07:00"

func (e Entry) String() string {
	ts := e.At.Format(entryTimeLayout)
	if e.Result == ResultSuccess {
		return fmt.Sprintf("[SUCCESS] Posted meme id=%d at %s", e.MemeID, ts)
	}
	return fmt.Sprintf("[FAIL] Meme id=%d at %s: %s", e.MemeID, ts, e.Detail)
}

// EventLog is a fixed-capacity ring; appending to a full log evicts the
// oldest entry. Safe for concurrent use.
type EventLog struct {
	mu    sync.Mutex
	buf   []Entry
	start int
	n     int
}

func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 || capacity > DefaultLogSize {
		capacity = DefaultLogSize
	}
	return &EventLog{buf: make([]Entry, capacity)}
}

func (l *EventLog) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.n < len(l.buf) {
		l.buf[(l.start+l.n)%len(l.buf)] = e
		l.n++
		return
	}
	l.buf[l.start] = e
	l.start = (l.start + 1) % len(l.buf)
}

// Recent returns up to n newest entries, oldest first. n <= 0 means all.
func (l *EventLog) Recent(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > l.n {
		n = l.n
	}
	out := make([]Entry, n)
	skip := l.n - n
	for i := 0; i < n; i++ {
		out[i] = l.buf[(l.start+skip+i)%len(l.buf)]
	}
	return out
}

func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

func (l *EventLog) Cap() int { return len(l.buf) }
