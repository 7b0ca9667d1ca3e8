package meme

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultTimezone is the zone every slot boundary is expressed in unless
// configured otherwise.
const DefaultTimezone = "Asia/Kolkata"

// SlotTime is a wall-clock boundary within a day.
type SlotTime struct {
	Hour   int
	Minute int
}

func (s SlotTime) String() string { return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute) }

func (s SlotTime) minutes() int { return s.Hour*60 + s.Minute }

// DefaultSlots returns the daily posting boundaries 11:00, 16:00 and 21:00.
func DefaultSlots() []SlotTime {
	return []SlotTime{{11, 0}, {16, 0}, {21, 0}}
}

// SlotClock maps instants onto the fixed daily slots of a single zone.
// It is immutable and safe for concurrent use.
type SlotClock struct {
	loc   *time.Location
	slots []SlotTime
}

// NewSlotClock builds a clock. An empty slot list means DefaultSlots.
func NewSlotClock(loc *time.Location, slots ...SlotTime) (*SlotClock, error) {
	if loc == nil {
		return nil, fmt.Errorf("slot clock: location is nil")
	}
	if len(slots) == 0 {
		slots = DefaultSlots()
	}
	seen := map[int]bool{}
	out := make([]SlotTime, 0, len(slots))
	for _, s := range slots {
		if s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 {
			return nil, fmt.Errorf("slot clock: invalid slot %02d:%02d", s.Hour, s.Minute)
		}
		if seen[s.minutes()] {
			continue
		}
		seen[s.minutes()] = true
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].minutes() < out[j].minutes() })
	return &SlotClock{loc: loc, slots: out}, nil
}

// MustSlotClock is NewSlotClock for static setups and tests.
func MustSlotClock(loc *time.Location, slots ...SlotTime) *SlotClock {
	c, err := NewSlotClock(loc, slots...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *SlotClock) Location() *time.Location { return c.loc }

// Slots returns a copy of the ordered slot list.
func (c *SlotClock) Slots() []SlotTime { return append([]SlotTime(nil), c.slots...) }

// NextSlot returns the earliest slot boundary strictly after the given instant.
func (c *SlotClock) NextSlot(after time.Time) time.Time {
	t := after.In(c.loc)
	for _, s := range c.slots {
		cand := c.At(t, s.Hour, s.Minute)
		if cand.After(t) {
			return cand
		}
	}
	first := c.slots[0]
	return c.At(t.AddDate(0, 0, 1), first.Hour, first.Minute)
}

// At returns hour:minute on the civil date of day, in the clock's zone.
func (c *SlotClock) At(day time.Time, hour, minute int) time.Time {
	d := day.In(c.loc)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, c.loc)
}

// SlotsFrom returns n boundaries on the civil date of day, cycling through
// the slot list when n exceeds it.
func (c *SlotClock) SlotsFrom(day time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	out := make([]time.Time, n)
	for i := range out {
		s := c.slots[i%len(c.slots)]
		out[i] = c.At(day, s.Hour, s.Minute)
	}
	return out
}

var reSlot = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseSlot parses a 24h "HH:MM" value.
func ParseSlot(raw string) (SlotTime, error) {
	m := reSlot.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return SlotTime{}, Validation("parse slot", "invalid time %q (use 24h HH:MM)", raw)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if hh > 23 || mm > 59 {
		return SlotTime{}, Validation("parse slot", "invalid time %q (use 24h HH:MM)", raw)
	}
	return SlotTime{Hour: hh, Minute: mm}, nil
}

// ParseSlots parses a list of "HH:MM" values.
func ParseSlots(raw []string) ([]SlotTime, error) {
	out := make([]SlotTime, 0, len(raw))
	for _, r := range raw {
		s, err := ParseSlot(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ParseDate parses "YYYY-MM-DD" as midnight in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, Validation("parse date", "invalid date %q (use YYYY-MM-DD)", raw)
	}
	return t, nil
}
