package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	retryAttempts   = 3
	retryBackoff    = 100 * time.Millisecond
	retryMaxBackoff = 2 * time.Second
)

// retryDB runs op, retrying transient failures with linear backoff.
func retryDB(ctx context.Context, name string, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableDBError(err) {
			return fmt.Errorf("%s failed (non-retryable): %w", name, err)
		}
		if attempt == retryAttempts {
			break
		}

		backoff := time.Duration(attempt) * retryBackoff
		if backoff > retryMaxBackoff {
			backoff = retryMaxBackoff
		}
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, retryAttempts, lastErr)
}

func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	for _, s := range []string{
		"database is locked",
		"disk I/O error",
		"no such host",
		"connection refused",
		"connection reset by peer",
		"bad connection",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
