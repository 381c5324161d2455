package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryRun is one concrete execution of a campaign at a requested
// timestamp. The resolved body is frozen at creation; only the end
// timestamp and terminate flag mutate afterwards.
type DeliveryRun struct {
	ID          uuid.UUID
	CampaignID  uuid.UUID
	RequestedAt time.Time
	StartedAt   time.Time
	EndedAt     *time.Time
	HTMLBody    string
	TextBody    string
	Subject     string
	TrackURLs   bool
	TrackOpens  bool
	Terminated  bool
}

// DeliveryRecord is the per-recipient outcome row for a run. Exactly one
// exists per (run, recipient), created before any send attempt. A record
// with both SentAt and Error nil was never attempted.
type DeliveryRecord struct {
	ID          uuid.UUID
	RunID       uuid.UUID
	RecipientID uuid.UUID
	Email       string
	SentAt      *time.Time
	Error       *string
}

// Attempted reports whether the record has a recorded outcome.
func (r *DeliveryRecord) Attempted() bool {
	return r.SentAt != nil || r.Error != nil
}
