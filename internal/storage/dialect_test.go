package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	t.Parallel()
	q := `UPDATE memes SET scheduled_ts = ? WHERE id = ? AND note = '?'`
	assert.Equal(t, `UPDATE memes SET scheduled_ts = $1 WHERE id = $2 AND note = '?'`, postgresDialect.rebind(q))
	assert.Equal(t, q, sqliteDialect.rebind(q))
}

func TestIDSet(t *testing.T) {
	t.Parallel()
	set, args := sqliteDialect.idSet([]int64{4, 5, 6})
	assert.Equal(t, "id IN (?,?,?)", set)
	assert.Equal(t, []any{int64(4), int64(5), int64(6)}, args)

	set, args = postgresDialect.idSet([]int64{4, 5})
	assert.Equal(t, "id = ANY(?)", set)
	assert.Len(t, args, 1)
}

func TestRetryDBRetriesTransientErrors(t *testing.T) {
	t.Parallel()
	calls := 0
	err := retryDB(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryDBStopsOnPermanentErrors(t *testing.T) {
	t.Parallel()
	calls := 0
	err := retryDB(context.Background(), "op", func() error {
		calls++
		return errors.New("UNIQUE constraint failed: memes.id")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-retryable")
	assert.Equal(t, 1, calls)
}

func TestRetryDBHonorsContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := retryDB(ctx, "op", func() error { return errors.New("connection refused") })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
