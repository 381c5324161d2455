package domain

import (
	"time"

	"github.com/google/uuid"
)

// TrackedURL is one rewritten link in a run's body. Position disambiguates
// repeated identical hrefs; the (run, url, position) triple is unique.
type TrackedURL struct {
	ID       uuid.UUID
	RunID    uuid.UUID
	URL      string
	Position int
}

// OpenEvent records an open-pixel hit. Reopen distinguishes the first open
// for a (recipient, run) pair from every subsequent one.
type OpenEvent struct {
	ID          uuid.UUID
	RunID       uuid.UUID
	RecipientID uuid.UUID
	Reopen      bool
	OccurredAt  time.Time
}

// ClickEvent records a tracked-link redirect. Clicks are never deduplicated.
type ClickEvent struct {
	ID           uuid.UUID
	TrackedURLID uuid.UUID
	RecipientID  uuid.UUID
	OccurredAt   time.Time
}
