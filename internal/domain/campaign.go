// Package domain holds the core entities of the campaign dispatch engine.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Recurrence controls how often a campaign re-occurs after its start date.
type Recurrence string

const (
	RecurrenceNever   Recurrence = "never"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// DefaultDelimiter wraps placeholder tokens in campaign bodies.
const DefaultDelimiter = "!@!"

// Campaign is the reusable scheduled email definition. It is authored
// externally; the engine only reads it and updates estimate fields.
type Campaign struct {
	ID                  uuid.UUID
	Title               string
	Subject             string
	HTMLSourceURI       string
	TextSourceURI       string
	Recurrence          Recurrence
	StartDate           time.Time     // date component only
	SendTime            time.Duration // offset from midnight, local to StartDate's zone
	FromAddress         string
	FromName            string
	Delimiter           string
	GroupIDs            []uuid.UUID
	TrackURLs           bool
	TrackOpens          bool
	PreviewEnabled      bool
	PreviewAddresses    []string
	SendOverride        bool
	EstimatedRecipients int
}

// PlaceholderDelimiter returns the campaign's delimiter, falling back to
// the platform default when unset.
func (c *Campaign) PlaceholderDelimiter() string {
	if c.Delimiter == "" {
		return DefaultDelimiter
	}
	return c.Delimiter
}

// RequestedStart combines a calendar day with the campaign's scheduled
// time-of-day. This timestamp keys run idempotency, so it must be computed
// identically everywhere.
func (c *Campaign) RequestedStart(day time.Time) time.Time {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return midnight.Add(c.SendTime)
}

// OccursOn reports whether the campaign's recurrence rule lands on the
// given calendar day.
func (c *Campaign) OccursOn(day time.Time) bool {
	start := c.StartDate
	sy, sm, sd := start.Date()
	dy, dm, dd := day.Date()

	switch c.Recurrence {
	case RecurrenceNever:
		return sy == dy && sm == dm && sd == dd
	case RecurrenceDaily:
		return !dayOf(day).Before(dayOf(start))
	case RecurrenceWeekly:
		return day.Weekday() == start.Weekday() && !dayOf(day).Before(dayOf(start))
	case RecurrenceMonthly:
		return dd == sd && !dayOf(day).Before(dayOf(start))
	}
	return false
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
