package sessions

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	_ "modernc.org/sqlite"
)

const (
	// busyTimeout lets concurrent callers block briefly inside sqlite
	// instead of failing immediately on a held write lock.
	busyTimeout = 5 * time.Second

	// initLockStaleAfter is how old an init lock left by a crashed process
	// must be before it is treated as garbage and cleared.
	initLockStaleAfter = 2 * time.Minute
)

var (
	initRetry = RetryPolicy{
		MaxAttempts: 3,
		Backoff:     2 * time.Second,
		Grow:        true,
		Retryable:   isBusy,
	}
	writeRetry = RetryPolicy{
		MaxAttempts: 5,
		Backoff:     500 * time.Millisecond,
		Retryable:   isBusy,
	}
)

// SQLiteStore persists task sessions in a single sqlite file. WAL mode plus
// a busy timeout permit concurrent readers during a writer transaction;
// mutating operations are additionally retried on lock contention, since
// another process instance or an overlapping sync pass may hold the file.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger hclog.Logger

	initRetry  RetryPolicy
	writeRetry RetryPolicy
}

func NewSQLiteStore(dbPath string, logger hclog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite parent dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
		dbPath, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &SQLiteStore{
		db:         db,
		path:       dbPath,
		logger:     logger,
		initRetry:  initRetry,
		writeRetry: writeRetry,
	}
	if err := store.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// initialize creates the schema if absent. Multiple process instances may
// race here, so the schema migration runs under an advisory lock file with
// bounded retries, and a lock left behind by a crash is cleared once stale.
func (s *SQLiteStore) initialize(ctx context.Context) error {
	return s.initRetry.Do(ctx, s.logger, "initialize", func() error {
		release, err := s.acquireInitLock()
		if err != nil {
			return err
		}
		defer release()
		return s.migrate(ctx)
	})
}

func (s *SQLiteStore) acquireInitLock() (func(), error) {
	lockPath := s.path + ".init.lock"

	for tries := 0; tries < 2; tries++ {
		file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_ = file.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create init lock: %w", err)
		}

		info, statErr := os.Stat(lockPath)
		if statErr != nil {
			if os.IsNotExist(statErr) {
				continue // holder released between open and stat
			}
			return nil, fmt.Errorf("stat init lock: %w", statErr)
		}
		if time.Since(info.ModTime()) < initLockStaleAfter {
			return nil, fmt.Errorf("init lock held at %s: %w", lockPath, ErrStoreBusy)
		}

		s.logger.Warn("clearing stale init lock from prior crash",
			"path", lockPath, "age", time.Since(info.ModTime()))
		if rmErr := os.Remove(lockPath); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("clear stale init lock: %w", rmErr)
		}
	}

	return nil, fmt.Errorf("init lock contended at %s: %w", lockPath, ErrStoreBusy)
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS session_tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		hours REAL NOT NULL,
		task TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '',
		synced_to_ledger INTEGER NOT NULL DEFAULT 0
	);`)
	if err != nil {
		return fmt.Errorf("migrate session_tasks schema: %w", err)
	}
	return nil
}

// Add validates and inserts a session with synced forced to false. Lock
// contention is retried up to the write budget; exhaustion means the session
// was not saved and the caller must not assume otherwise.
func (s *SQLiteStore) Add(ctx context.Context, session TaskSession) (int64, error) {
	if err := session.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := s.writeRetry.Do(ctx, s.logger, "add", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("start add tx: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		result, err := tx.ExecContext(
			ctx,
			`INSERT INTO session_tasks(date, hours, task, description, tags, synced_to_ledger)
			 VALUES (?, ?, ?, ?, ?, 0)`,
			session.Date,
			session.Hours,
			session.Task,
			session.Description,
			joinTags(session.Tags),
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		insertedID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("read inserted session id: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit add tx: %w", err)
		}

		id = insertedID
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("session saved", "id", id, "task", session.Task, "hours", session.Hours)
	return id, nil
}

func (s *SQLiteStore) Unsynced(ctx context.Context) ([]TaskSession, error) {
	return s.query(ctx,
		`SELECT id, date, hours, task, description, tags, synced_to_ledger
		 FROM session_tasks
		 WHERE synced_to_ledger = 0
		 ORDER BY id ASC`)
}

func (s *SQLiteStore) All(ctx context.Context) ([]TaskSession, error) {
	return s.query(ctx,
		`SELECT id, date, hours, task, description, tags, synced_to_ledger
		 FROM session_tasks
		 ORDER BY date DESC, id DESC`)
}

// MarkSynced flips one record's synced flag. It is deliberately not retried
// on contention: a failure after a successful remote append is the accepted
// at-least-once gap, and the next pass re-reads the record.
func (s *SQLiteStore) MarkSynced(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE session_tasks SET synced_to_ledger = 1 WHERE id = ? AND synced_to_ledger = 0`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("mark session %d synced: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("read mark-synced row count: %w", err)
	}
	if affected == 0 {
		s.logger.Warn("no unsynced session to mark", "id", id)
		return false, nil
	}
	return true, nil
}

func (s *SQLiteStore) query(ctx context.Context, query string) ([]TaskSession, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]TaskSession, 0)
	for rows.Next() {
		var (
			session TaskSession
			tags    string
			synced  int
		)
		if err := rows.Scan(
			&session.ID,
			&session.Date,
			&session.Hours,
			&session.Task,
			&session.Description,
			&tags,
			&synced,
		); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		session.Tags = splitTags(tags)
		session.Synced = synced != 0
		result = append(result, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return result, nil
}
