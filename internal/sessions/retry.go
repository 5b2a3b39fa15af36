package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// RetryPolicy retries an operation on transient contention. One policy
// object per operation class keeps the backoff schedule in a single place
// instead of ad hoc loops around every store call.
type RetryPolicy struct {
	// MaxAttempts bounds the total tries, including the first.
	MaxAttempts int

	// Backoff is the delay before the second attempt.
	Backoff time.Duration

	// Grow makes the delay scale linearly with the attempt number.
	Grow bool

	// Retryable classifies errors. Nil retries everything.
	Retryable func(error) bool

	// Sleep is overridable so tests do not wait out real backoffs.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do runs fn until it succeeds, fails non-retryably, or exhausts the
// attempt budget. Exhaustion surfaces as ErrStoreUnavailable wrapping the
// last error.
func (p RetryPolicy) Do(ctx context.Context, logger hclog.Logger, op string, fn func() error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.Backoff
		if p.Grow {
			delay = time.Duration(attempt) * p.Backoff
		}
		logger.Warn("store contention, retrying",
			"op", op, "attempt", attempt, "backoff", delay, "error", err)
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, sleepErr)
		}
	}

	return fmt.Errorf("%s: %w after %d attempts: %v", op, ErrStoreUnavailable, p.MaxAttempts, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isBusy reports whether err is transient sqlite lock contention.
func isBusy(err error) bool {
	if errors.Is(err, ErrStoreBusy) {
		return true
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}
