package sessions

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
)

func nullLogger() hclog.Logger {
	return hclog.NewNullLogger()
}

type sqliteTestHarness struct {
	Ctx   context.Context
	Path  string
	Store *SQLiteStore
}

func newSQLiteTestHarness(t *testing.T) *sqliteTestHarness {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	store, err := NewSQLiteStore(dbPath, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	return &sqliteTestHarness{
		Ctx:   context.Background(),
		Path:  dbPath,
		Store: store,
	}
}

func sampleSession() TaskSession {
	return TaskSession{
		Date:        "2026-03-02",
		Hours:       1.25,
		Task:        "Write spec",
		Description: "core module outline",
		Tags:        []string{"writing", "deep-work"},
	}
}
