package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"memewrangler/internal/meme"
	logx "memewrangler/pkg/logx"
)

// Queries is the record API available both on the store and inside a
// transaction.
type Queries interface {
	// LatestPendingAt returns the greatest scheduled instant among unposted
	// records.
	LatestPendingAt(ctx context.Context) (at time.Time, ok bool, err error)
	// Insert stores rec with posted=0 and returns the assigned id.
	Insert(ctx context.Context, rec meme.Record) (int64, error)
	Get(ctx context.Context, id int64) (meme.Record, bool, error)
	// NextPending returns the unposted record with the earliest schedule.
	NextPending(ctx context.Context) (meme.Record, bool, error)
	// ListPending returns unposted records ordered by scheduled time.
	ListPending(ctx context.Context) ([]meme.Record, error)
	// ListDue returns unposted records scheduled at or before now.
	ListDue(ctx context.Context, now time.Time) ([]meme.Record, error)
	// ListAll returns every record ordered by id.
	ListAll(ctx context.Context) ([]meme.Record, error)
	// SetScheduledAt moves an unposted record. It reports whether a row
	// changed; posted or missing ids are a no-op.
	SetScheduledAt(ctx context.Context, id int64, at time.Time) (bool, error)
	// DeletePending removes unposted records among ids.
	DeletePending(ctx context.Context, ids []int64) (int64, error)
	MarkPosted(ctx context.Context, id int64) error
}

// Store is the persistence API used by the scheduler, poster and backup engine.
type Store interface {
	Queries

	// InTx runs fn inside a transaction; fn's error rolls it back.
	InTx(ctx context.Context, fn func(q Queries) error) error
	// IntakeTx is InTx holding the intake lock, so concurrent intakes
	// observe each other's inserts.
	IntakeTx(ctx context.Context, fn func(q Queries) error) error
	// ReplaceAll swaps the full record set atomically and realigns the id
	// counter with the greatest restored id.
	ReplaceAll(ctx context.Context, recs []meme.Record) error

	AppendAudit(ctx context.Context, e AuditEntry) error
	Driver() string
	Ping(ctx context.Context) error
	Close() error
}

// Open initializes the configured store and applies migrations.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "none":
		return nil, ErrDisabled
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql", "pg":
		return openPostgres(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
