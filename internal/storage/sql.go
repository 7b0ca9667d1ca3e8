package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"memewrangler/internal/meme"
	logx "memewrangler/pkg/logx"
)

const memeColumns = `id, owner_file_id, mime_type, scheduled_ts, posted, created_ts, preview_file_id, caption`

// queries implements Queries over either the pool or a transaction.
type queries struct {
	ex execer
	d  dialect
}

func (q queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.ex.ExecContext(ctx, q.d.rebind(query), args...)
}

func (q queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.ex.QueryContext(ctx, q.d.rebind(query), args...)
}

func (q queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.ex.QueryRowContext(ctx, q.d.rebind(query), args...)
}

func (q queries) LatestPendingAt(ctx context.Context) (time.Time, bool, error) {
	var ts int64
	err := q.queryRow(ctx, `SELECT scheduled_ts FROM memes WHERE posted = 0 ORDER BY scheduled_ts DESC LIMIT 1`).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, meme.Persistence("latest pending", err)
	}
	return fromEpoch(ts), true, nil
}

func (q queries) Insert(ctx context.Context, rec meme.Record) (int64, error) {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	var id int64
	err := q.queryRow(ctx,
		`INSERT INTO memes (owner_file_id, mime_type, scheduled_ts, posted, created_ts, preview_file_id, caption)
		 VALUES (?, ?, ?, 0, ?, ?, ?) RETURNING id`,
		rec.OwnerFileID, rec.Mime.String(), rec.ScheduledAt.Unix(), created.Unix(),
		nullStr(rec.PreviewFileID), nullStr(rec.Caption),
	).Scan(&id)
	if err != nil {
		return 0, meme.Persistence("insert", err)
	}
	return id, nil
}

func (q queries) Get(ctx context.Context, id int64) (meme.Record, bool, error) {
	rec, err := scanRecord(q.queryRow(ctx, `SELECT `+memeColumns+` FROM memes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return meme.Record{}, false, nil
	}
	if err != nil {
		return meme.Record{}, false, meme.Persistence("get", err)
	}
	return rec, true, nil
}

func (q queries) NextPending(ctx context.Context) (meme.Record, bool, error) {
	rec, err := scanRecord(q.queryRow(ctx,
		`SELECT `+memeColumns+` FROM memes WHERE posted = 0 ORDER BY scheduled_ts ASC, id ASC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return meme.Record{}, false, nil
	}
	if err != nil {
		return meme.Record{}, false, meme.Persistence("next pending", err)
	}
	return rec, true, nil
}

func (q queries) ListPending(ctx context.Context) ([]meme.Record, error) {
	return q.list(ctx, "list pending",
		`SELECT `+memeColumns+` FROM memes WHERE posted = 0 ORDER BY scheduled_ts ASC, id ASC`)
}

func (q queries) ListDue(ctx context.Context, now time.Time) ([]meme.Record, error) {
	return q.list(ctx, "list due",
		`SELECT `+memeColumns+` FROM memes WHERE posted = 0 AND scheduled_ts <= ? ORDER BY scheduled_ts ASC, id ASC`,
		now.Unix())
}

func (q queries) ListAll(ctx context.Context) ([]meme.Record, error) {
	return q.list(ctx, "list all", `SELECT `+memeColumns+` FROM memes ORDER BY id ASC`)
}

func (q queries) list(ctx context.Context, op, query string, args ...any) ([]meme.Record, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, meme.Persistence(op, err)
	}
	defer rows.Close()
	var out []meme.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, meme.Persistence(op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, meme.Persistence(op, err)
	}
	return out, nil
}

func (q queries) SetScheduledAt(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := q.exec(ctx, `UPDATE memes SET scheduled_ts = ? WHERE id = ? AND posted = 0`, at.Unix(), id)
	if err != nil {
		return false, meme.Persistence("reschedule", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, meme.Persistence("reschedule", err)
	}
	return n > 0, nil
}

func (q queries) DeletePending(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	set, args := q.d.idSet(ids)
	res, err := q.exec(ctx, `DELETE FROM memes WHERE posted = 0 AND `+set, args...)
	if err != nil {
		return 0, meme.Persistence("unschedule", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, meme.Persistence("unschedule", err)
	}
	return n, nil
}

func (q queries) MarkPosted(ctx context.Context, id int64) error {
	err := retryDB(ctx, "mark posted", func() error {
		_, err := q.exec(ctx, `UPDATE memes SET posted = 1 WHERE id = ?`, id)
		return err
	})
	return meme.Persistence("mark posted", err)
}

// sqlStore is the Store shared by both SQL backends.
type sqlStore struct {
	queries
	db  *sql.DB
	log logx.Logger
}

func newSQLStore(db *sql.DB, d dialect, log logx.Logger) *sqlStore {
	return &sqlStore{queries: queries{ex: db, d: d}, db: db, log: log}
}

func (s *sqlStore) Driver() string { return s.d.name }

func (s *sqlStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) migrate(ctx context.Context, script string) error {
	b, err := migrationsFS.ReadFile(script)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqlStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	return s.tx(ctx, false, fn)
}

func (s *sqlStore) IntakeTx(ctx context.Context, fn func(q Queries) error) error {
	return s.tx(ctx, true, fn)
}

func (s *sqlStore) tx(ctx context.Context, lock bool, fn func(q Queries) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return meme.Persistence("begin", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if lock && s.d.intakeLock != "" {
		if _, err = tx.ExecContext(ctx, s.d.intakeLock); err != nil {
			return meme.Persistence("intake lock", err)
		}
	}
	if err = fn(queries{ex: tx, d: s.d}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return meme.Persistence("commit", err)
	}
	return nil
}

func (s *sqlStore) ReplaceAll(ctx context.Context, recs []meme.Record) error {
	return s.tx(ctx, true, func(q Queries) error {
		tq := q.(queries)
		if _, err := tq.exec(ctx, `DELETE FROM memes`); err != nil {
			return meme.Persistence("replace: clear", err)
		}
		var maxID int64
		for _, r := range recs {
			posted := 0
			if r.Posted {
				posted = 1
			}
			_, err := tq.exec(ctx,
				`INSERT INTO memes (`+memeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				r.ID, r.OwnerFileID, nullStr(string(r.Mime)), r.ScheduledAt.Unix(), posted,
				r.CreatedAt.Unix(), nullStr(r.PreviewFileID), nullStr(r.Caption),
			)
			if err != nil {
				return meme.Persistence(fmt.Sprintf("replace: insert id=%d", r.ID), err)
			}
			if r.ID > maxID {
				maxID = r.ID
			}
		}
		if err := s.d.resetSequence(ctx, tq.ex, maxID); err != nil {
			return meme.Persistence("replace: reset sequence", err)
		}
		return nil
	})
}

func (s *sqlStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	ok := 0
	if e.OK {
		ok = 1
	}
	_, err := s.exec(ctx,
		`INSERT INTO audit(at, actor_id, actor_username, chat_id, command, target, ok, err, took_ms, meta)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.ActorID, nullStr(e.ActorUsername), e.ChatID,
		e.Command, nullStr(e.Target), ok, nullStr(e.Error), e.TookMS, nullStr(e.MetaJSON),
	)
	return meme.Persistence("append audit", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (meme.Record, error) {
	var (
		rec                 meme.Record
		mime, preview, capt sql.NullString
		scheduled, created  int64
		posted              int64
	)
	if err := r.Scan(&rec.ID, &rec.OwnerFileID, &mime, &scheduled, &posted, &created, &preview, &capt); err != nil {
		return meme.Record{}, err
	}
	rec.Mime = meme.ClassifyMime(mime.String)
	rec.ScheduledAt = fromEpoch(scheduled)
	rec.CreatedAt = fromEpoch(created)
	rec.Posted = posted != 0
	rec.PreviewFileID = preview.String
	rec.Caption = capt.String
	return rec, nil
}

func fromEpoch(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}
