// Package backup exports the full record set to versioned JSON files and
// restores it transactionally.
package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"memewrangler/internal/eventbus"
	"memewrangler/internal/meme"
	"memewrangler/internal/storage"
	logx "memewrangler/pkg/logx"
)

const filePrefix = "memes-backup-"

// Artifact is a written backup file.
type Artifact struct {
	Path      string
	Name      string
	Total     int
	Scheduled int
	Checksum  string // sha256 hex of Data
	Data      []byte
}

// Result summarizes a restore.
type Result struct {
	Imported  int
	Scheduled int
}

type Options struct {
	Dir      string
	Location *time.Location
	Now      func() time.Time
	Log      logx.Logger
	Bus      eventbus.Bus
}

type Engine struct {
	store storage.Store
	dir   string
	loc   *time.Location
	now   func() time.Time
	log   logx.Logger
	bus   eventbus.Bus
}

func NewEngine(store storage.Store, opts Options) *Engine {
	if opts.Dir == "" {
		opts.Dir = "backups"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	return &Engine{
		store: store,
		dir:   opts.Dir,
		loc:   opts.Location,
		now:   opts.Now,
		log:   opts.Log.With(logx.String("comp", "backup")),
		bus:   opts.Bus,
	}
}

func (e *Engine) Dir() string { return e.dir }

// Snapshot reads every record, posted or not, into a document.
func (e *Engine) Snapshot(ctx context.Context) (Document, error) {
	recs, err := e.store.ListAll(ctx)
	if err != nil {
		return Document{}, err
	}
	return NewDocument(recs, e.now().In(e.loc)), nil
}

// Backup writes a snapshot to a new timestamped file. Existing files are
// never overwritten; a numeric suffix is added on collision.
func (e *Engine) Backup(ctx context.Context) (Artifact, error) {
	doc, err := e.Snapshot(ctx)
	if err != nil {
		return Artifact{}, err
	}
	data, err := doc.Encode()
	if err != nil {
		return Artifact{}, fmt.Errorf("encode backup: %w", err)
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("backup dir: %w", err)
	}

	stamp := e.now().In(e.loc).Format("20060102-150405")
	path, err := writeExclusive(e.dir, filePrefix+stamp, ".json", data)
	if err != nil {
		return Artifact{}, err
	}
	sum := sha256.Sum256(data)
	art := Artifact{
		Path:      path,
		Name:      filepath.Base(path),
		Total:     len(doc.Memes),
		Scheduled: len(doc.ScheduledMemes),
		Checksum:  hex.EncodeToString(sum[:]),
		Data:      data,
	}
	e.log.Info("backup written",
		logx.String("path", art.Path),
		logx.Int("total", art.Total),
		logx.Int("scheduled", art.Scheduled),
	)
	eventbus.Emit(e.bus, eventbus.TypeBackupCreated, art.Name)
	return art, nil
}

func writeExclusive(dir, base, ext string, data []byte) (string, error) {
	for i := 0; i < 1000; i++ {
		name := base + ext
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", base, i, ext)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create backup: %w", err)
		}
		if err := persist(f, path, data); err != nil {
			return "", err
		}
		return path, nil
	}
	return "", fmt.Errorf("create backup: too many files named %s*", base)
}

type backupFile interface {
	Write(p []byte) (int, error)
	Sync() error
	Close() error
}

// persist writes data to f and flushes it. On any failure the file at path
// is removed so no partial backup is left behind.
func persist(f backupFile, path string, data []byte) error {
	fail := func(step string, err error) error {
		_ = os.Remove(path)
		return fmt.Errorf("%s backup: %w", step, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fail("write", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fail("sync", err)
	}
	if err := f.Close(); err != nil {
		return fail("close", err)
	}
	return nil
}

// Restore validates raw and replaces the whole record set with it. Nothing
// is written unless every entry is valid.
func (e *Engine) Restore(ctx context.Context, raw []byte) (Result, error) {
	doc, err := Decode(raw)
	if err != nil {
		return Result{}, err
	}
	recs := doc.Records()
	if err := e.store.ReplaceAll(ctx, recs); err != nil {
		return Result{}, err
	}
	res := Result{Imported: len(doc.Memes), Scheduled: len(doc.ScheduledMemes)}
	e.log.Info("backup restored", logx.Int("imported", res.Imported), logx.Int("scheduled", res.Scheduled))
	eventbus.Emit(e.bus, eventbus.TypeBackupRestored, res)
	return res, nil
}

// Watch writes a backup after every intake until ctx is done.
func (e *Engine) Watch(ctx context.Context, bus eventbus.Bus) {
	if bus == nil {
		return
	}
	ch, unsub := bus.Subscribe(16)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Type != eventbus.TypeMemeScheduled {
				continue
			}
			if _, err := e.Backup(ctx); err != nil {
				e.log.Error("automatic backup failed", logx.Err(err))
			}
		}
	}
}

// IsRestoreError reports whether err came from document validation.
func IsRestoreError(err error) bool {
	k := meme.KindOf(err)
	return k == meme.KindValidation || k == meme.KindIntegrity
}
