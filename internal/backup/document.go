package backup

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"memewrangler/internal/meme"
)

// FormatVersion is written into every document.
const FormatVersion = 1

// Document is the backup artifact.
type Document struct {
	Version        int    `json:"version"`
	GeneratedAt    string `json:"generated_at"`
	Memes          []Item `json:"memes"`
	ScheduledMemes []Item `json:"scheduled_memes"`
}

// Item is one record in artifact form. Empty optional strings are written
// as null.
type Item struct {
	ID            int64   `json:"id"`
	OwnerFileID   string  `json:"owner_file_id"`
	MimeType      string  `json:"mime_type"`
	ScheduledTS   int64   `json:"scheduled_ts"`
	Posted        int     `json:"posted"`
	CreatedTS     int64   `json:"created_ts"`
	PreviewFileID *string `json:"preview_file_id"`
	Caption       *string `json:"caption"`
}

func itemFromRecord(r meme.Record) Item {
	it := Item{
		ID:            r.ID,
		OwnerFileID:   r.OwnerFileID,
		MimeType:      r.Mime.String(),
		ScheduledTS:   r.ScheduledAt.Unix(),
		CreatedTS:     r.CreatedAt.Unix(),
		PreviewFileID: optString(r.PreviewFileID),
		Caption:       optString(r.Caption),
	}
	if r.Posted {
		it.Posted = 1
	}
	return it
}

func (it Item) record() meme.Record {
	r := meme.Record{
		ID:          it.ID,
		OwnerFileID: it.OwnerFileID,
		Mime:        meme.ClassifyMime(it.MimeType),
		ScheduledAt: time.Unix(it.ScheduledTS, 0).UTC(),
		CreatedAt:   time.Unix(it.CreatedTS, 0).UTC(),
		Posted:      it.Posted == 1,
	}
	if it.PreviewFileID != nil {
		r.PreviewFileID = *it.PreviewFileID
	}
	if it.Caption != nil {
		r.Caption = *it.Caption
	}
	return r
}

// NewDocument builds a document from records ordered by id.
func NewDocument(recs []meme.Record, generatedAt time.Time) Document {
	doc := Document{
		Version:        FormatVersion,
		GeneratedAt:    generatedAt.Format(time.RFC3339Nano),
		Memes:          make([]Item, 0, len(recs)),
		ScheduledMemes: make([]Item, 0),
	}
	for _, r := range recs {
		it := itemFromRecord(r)
		doc.Memes = append(doc.Memes, it)
		if it.Posted == 0 {
			doc.ScheduledMemes = append(doc.ScheduledMemes, it)
		}
	}
	return doc
}

// Encode renders the document with two-space indentation.
func (d Document) Encode() ([]byte, error) {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Records converts the memes list back into records.
func (d Document) Records() []meme.Record {
	out := make([]meme.Record, len(d.Memes))
	for i, it := range d.Memes {
		out[i] = it.record()
	}
	return out
}

// Decode parses and validates a backup. A malformed envelope is a validation
// error; a bad entry is an integrity error naming its index. The
// scheduled_memes list is derived and ignored on input.
func Decode(raw []byte) (Document, error) {
	const op = "restore"
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var env map[string]any
	if err := dec.Decode(&env); err != nil {
		return Document{}, meme.Validation(op, "could not parse backup: %v", err)
	}
	list, ok := env["memes"].([]any)
	if !ok {
		return Document{}, meme.Validation(op, "backup file missing 'memes' list")
	}

	doc := Document{Version: FormatVersion, Memes: make([]Item, 0, len(list))}
	if v, ok := env["version"]; ok {
		n, err := asInt(v)
		if err != nil {
			return Document{}, meme.Validation(op, "version: %v", err)
		}
		if n > FormatVersion {
			return Document{}, meme.Validation(op, "unsupported backup version %d", n)
		}
		doc.Version = int(n)
	}
	if s, ok := env["generated_at"].(string); ok {
		doc.GeneratedAt = s
	}

	seen := make(map[int64]int, len(list))
	for i, raw := range list {
		it, err := decodeItem(raw)
		if err != nil {
			return Document{}, meme.Integrity(op, "entry %d: %v", i, err)
		}
		if prev, dup := seen[it.ID]; dup {
			return Document{}, meme.Integrity(op, "entry %d: duplicate id %d (also entry %d)", i, it.ID, prev)
		}
		seen[it.ID] = i
		doc.Memes = append(doc.Memes, it)
		if it.Posted == 0 {
			doc.ScheduledMemes = append(doc.ScheduledMemes, it)
		}
	}
	return doc, nil
}

type fieldError struct {
	field string
	msg   string
}

func (e *fieldError) Error() string { return e.field + ": " + e.msg }

func decodeItem(raw any) (Item, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Item{}, &fieldError{field: "entry", msg: "not an object"}
	}
	var it Item
	var err error

	if it.ID, err = requiredInt(obj, "id"); err != nil {
		return Item{}, err
	}
	if it.ID <= 0 {
		return Item{}, &fieldError{field: "id", msg: "must be positive"}
	}
	owner, ok := obj["owner_file_id"].(string)
	if !ok || strings.TrimSpace(owner) == "" {
		return Item{}, &fieldError{field: "owner_file_id", msg: "must be a non-empty string"}
	}
	it.OwnerFileID = owner

	mime, err := optionalString(obj, "mime_type")
	if err != nil {
		return Item{}, err
	}
	it.MimeType = meme.ClassifyMime(derefOr(mime, "")).String()

	if it.ScheduledTS, err = requiredInt(obj, "scheduled_ts"); err != nil {
		return Item{}, err
	}
	if it.CreatedTS, err = requiredInt(obj, "created_ts"); err != nil {
		return Item{}, err
	}
	if v, ok := obj["posted"]; ok && v != nil {
		p, err := asInt(v)
		if err != nil {
			return Item{}, &fieldError{field: "posted", msg: err.Error()}
		}
		if p != 0 && p != 1 {
			return Item{}, &fieldError{field: "posted", msg: "must be 0 or 1"}
		}
		it.Posted = int(p)
	}
	if it.PreviewFileID, err = optionalString(obj, "preview_file_id"); err != nil {
		return Item{}, err
	}
	if it.Caption, err = optionalString(obj, "caption"); err != nil {
		return Item{}, err
	}
	return it, nil
}

func requiredInt(obj map[string]any, field string) (int64, error) {
	v, ok := obj[field]
	if !ok || v == nil {
		return 0, &fieldError{field: field, msg: "missing"}
	}
	n, err := asInt(v)
	if err != nil {
		return 0, &fieldError{field: field, msg: err.Error()}
	}
	return n, nil
}

type coerceError string

func (e coerceError) Error() string { return string(e) }

// asInt accepts JSON integers, integral floats and numeric strings.
func asInt(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return 0, coerceError("not a number")
		}
		return integral(f)
	case float64:
		return integral(x)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, coerceError("not an integer string")
		}
		return n, nil
	default:
		return 0, coerceError("not an integer")
	}
}

func integral(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, coerceError("not an integral number")
	}
	return int64(f), nil
}

func optionalString(obj map[string]any, field string) (*string, error) {
	v, ok := obj[field]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, &fieldError{field: field, msg: "must be a string or null"}
	}
	return optString(s), nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
