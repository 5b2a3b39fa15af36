package sessions

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date form sessions are attributed to.
const DateLayout = "2006-01-02"

// TaskSession is one completed, durable unit of tracked work. ID is assigned
// by the store and immutable afterwards; Synced transitions false to true
// exactly once, when a sync pass lands the record in the remote ledger.
type TaskSession struct {
	ID          int64    `json:"id"`
	Date        string   `json:"date"`
	Hours       float64  `json:"hours"`
	Task        string   `json:"task"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Synced      bool     `json:"synced"`
}

// Validate rejects sessions the store must never see.
func (s TaskSession) Validate() error {
	if strings.TrimSpace(s.Task) == "" {
		return fmt.Errorf("%w: task name is required", ErrValidation)
	}
	if s.Hours < 0 {
		return fmt.Errorf("%w: hours must be non-negative, got %v", ErrValidation, s.Hours)
	}
	if _, err := time.Parse(DateLayout, s.Date); err != nil {
		return fmt.Errorf("%w: date %q is not %s", ErrValidation, s.Date, DateLayout)
	}
	return nil
}

func joinTags(tags []string) string {
	return strings.Join(tags, ", ")
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var tags []string
	for _, part := range strings.Split(raw, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
