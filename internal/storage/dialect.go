package storage

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dialect holds the few statements that differ between backends. Queries are
// written with '?' placeholders and rebound per dialect.
type dialect struct {
	name string

	// numbered switches '?' to '$n'.
	numbered bool

	// intakeLock is executed first inside IntakeTx; empty means the backend
	// already serializes writers.
	intakeLock string

	// resetSequence realigns the id counter after ReplaceAll.
	resetSequence func(ctx context.Context, ex execer, maxID int64) error

	// idSet renders "id IN (...)" for a list of ids.
	idSet func(ids []int64) (string, []any)
}

func (d dialect) rebind(q string) string {
	if !d.numbered || !strings.Contains(q, "?") {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

var sqliteDialect = dialect{
	name: "sqlite",
	resetSequence: func(ctx context.Context, ex execer, maxID int64) error {
		if _, err := ex.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = 'memes'`); err != nil {
			return err
		}
		if maxID <= 0 {
			return nil
		}
		_, err := ex.ExecContext(ctx, `INSERT INTO sqlite_sequence(name, seq) VALUES('memes', ?)`, maxID)
		return err
	},
	idSet: func(ids []int64) (string, []any) {
		args := make([]any, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		return "id IN (" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")", args
	},
}

var postgresDialect = dialect{
	name:       "postgres",
	numbered:   true,
	intakeLock: `LOCK TABLE memes IN SHARE ROW EXCLUSIVE MODE`,
	resetSequence: func(ctx context.Context, ex execer, maxID int64) error {
		if maxID > 0 {
			_, err := ex.ExecContext(ctx, `SELECT setval(pg_get_serial_sequence('memes', 'id'), $1, true)`, maxID)
			return err
		}
		_, err := ex.ExecContext(ctx, `SELECT setval(pg_get_serial_sequence('memes', 'id'), 1, false)`)
		return err
	},
	idSet: func(ids []int64) (string, []any) {
		return "id = ANY(?)", []any{pq.Array(ids)}
	},
}
