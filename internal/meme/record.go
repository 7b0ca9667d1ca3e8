package meme

import (
	"strings"
	"time"
)

// MimeClass decides which delivery method is tried first.
type MimeClass string

const (
	MimeImage MimeClass = "image"
	MimeVideo MimeClass = "video"
)

// ClassifyMime maps a stored or legacy mime string onto the closed enum.
// Anything that does not start with "video" (including animations and empty
// values) is treated as an image.
func ClassifyMime(s string) MimeClass {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "video") {
		return MimeVideo
	}
	return MimeImage
}

func (m MimeClass) String() string {
	if m == "" {
		return string(MimeImage)
	}
	return string(m)
}

// Record is one scheduled or posted item.
type Record struct {
	ID            int64
	OwnerFileID   string
	PreviewFileID string
	Mime          MimeClass
	Caption       string
	ScheduledAt   time.Time
	CreatedAt     time.Time
	Posted        bool
}

// PreviewRef returns the reference used for cheap previews.
func (r Record) PreviewRef() string {
	if strings.TrimSpace(r.PreviewFileID) != "" {
		return r.PreviewFileID
	}
	return r.OwnerFileID
}

// Pending reports whether the record is still waiting to be posted.
func (r Record) Pending() bool { return !r.Posted }

// In returns a copy with both instants converted to loc.
func (r Record) In(loc *time.Location) Record {
	if loc == nil {
		return r
	}
	r.ScheduledAt = r.ScheduledAt.In(loc)
	r.CreatedAt = r.CreatedAt.In(loc)
	return r
}
