package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"prodtrack/internal/sessions"
)

var (
	// ErrAuthFailure aborts a whole pass before any record is touched.
	ErrAuthFailure = errors.New("remote ledger authentication failed")

	// ErrRemoteAppend stops a pass at the failing record; earlier appends
	// and marks stand.
	ErrRemoteAppend = errors.New("remote ledger append failed")
)

// Report is the outcome of one sync pass. PassID tags the pass's log lines
// for correlation.
type Report struct {
	PassID    uuid.UUID
	Attempted int
	Synced    int
	FailedID  int64
	Err       error
}

func (r Report) Ok() bool {
	return r.Err == nil
}

// Coordinator reconciles the store's unsynced backlog against a remote
// ledger. It owns no records itself; everything it reads or writes goes
// through the store, and nothing is held past the end of a pass.
type Coordinator struct {
	store  sessions.Store
	ledger RemoteLedger
	logger hclog.Logger
}

func New(store sessions.Store, ledger RemoteLedger, logger hclog.Logger) *Coordinator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Coordinator{store: store, ledger: ledger, logger: logger}
}

// Run executes one sync pass: read the backlog, authenticate, then append
// and mark each record one at a time in store order. Appending one record
// and marking it before moving on bounds a crash's blast radius to a single
// duplicate row rather than the whole backlog; delivery is at-least-once.
//
// A pass runs to completion or first failure; there is no cancellation of
// an individual remote call beyond ctx.
func (c *Coordinator) Run(ctx context.Context) Report {
	report := Report{PassID: uuid.New()}
	logger := c.logger.With("pass_id", report.PassID.String())

	backlog, err := c.store.Unsynced(ctx)
	if err != nil {
		report.Err = fmt.Errorf("read unsynced backlog: %w", err)
		return report
	}
	report.Attempted = len(backlog)
	if len(backlog) == 0 {
		logger.Info("nothing to sync")
		return report
	}

	logger.Info("starting sync pass", "backlog", len(backlog))
	if err := c.ledger.Authenticate(ctx); err != nil {
		report.Err = fmt.Errorf("%w: %v", ErrAuthFailure, err)
		logger.Error("sync pass aborted", "error", report.Err)
		return report
	}

	for _, session := range backlog {
		row, err := FormatRow(session)
		if err != nil {
			report.FailedID = session.ID
			report.Err = err
			logger.Error("sync pass stopped on malformed record", "id", session.ID, "error", err)
			return report
		}

		if err := c.ledger.AppendRow(ctx, row); err != nil {
			report.FailedID = session.ID
			report.Err = fmt.Errorf("session %d: %w: %v", session.ID, ErrRemoteAppend, err)
			logger.Error("sync pass stopped on append failure",
				"id", session.ID, "synced_so_far", report.Synced, "error", err)
			return report
		}

		// Mark immediately, never batched at the end: the window where the
		// remote has the row but the store does not know is one record wide.
		updated, err := c.store.MarkSynced(ctx, session.ID)
		if err != nil {
			report.FailedID = session.ID
			report.Err = fmt.Errorf("session %d appended but not marked synced: %w", session.ID, err)
			logger.Error("sync pass stopped: appended row will be re-sent next pass",
				"id", session.ID, "error", err)
			return report
		}
		if !updated {
			logger.Warn("session already marked synced by another pass", "id", session.ID)
		}
		report.Synced++
		logger.Debug("session synced", "id", session.ID, "task", session.Task)
	}

	logger.Info("sync pass complete", "synced", report.Synced)
	return report
}
