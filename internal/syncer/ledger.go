package syncer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"prodtrack/internal/sessions"
)

// ledgerDateLayout is the calendar form the external ledger displays,
// distinct from the store's YYYY-MM-DD form.
const ledgerDateLayout = "01/02/2006"

// Row is the ordered five-value shape the remote ledger expects:
// formatted date, hours, task, description, joined tags.
type Row [5]string

// RemoteLedger is anything that can take a row and report success. The
// concrete sheets client lives elsewhere; the coordinator only needs these
// two calls.
type RemoteLedger interface {
	Authenticate(ctx context.Context) error
	AppendRow(ctx context.Context, row Row) error
}

// FormatRow shapes a stored session for the ledger contract.
func FormatRow(session sessions.TaskSession) (Row, error) {
	date, err := time.Parse(sessions.DateLayout, session.Date)
	if err != nil {
		return Row{}, fmt.Errorf("format session %d date %q: %w", session.ID, session.Date, err)
	}
	return Row{
		date.Format(ledgerDateLayout),
		strconv.FormatFloat(session.Hours, 'f', 2, 64),
		session.Task,
		session.Description,
		strings.Join(session.Tags, ", "),
	}, nil
}
