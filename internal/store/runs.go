package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// RunExists reports whether a delivery run already exists for the exact
// requested timestamp. This is the send-selection idempotency check.
func (s *Store) RunExists(ctx context.Context, campaignID uuid.UUID, requestedAt time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM delivery_runs WHERE campaign_id = $1 AND requested_at = $2
		)
	`, campaignID, requestedAt).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("run exists: %w", err)
	}
	return exists, nil
}

// CreateRun inserts a new delivery run. The unique (campaign_id,
// requested_at) constraint backs the selector's idempotency check under
// concurrent ticks.
func (s *Store) CreateRun(ctx context.Context, run *domain.DeliveryRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_runs
			(id, campaign_id, requested_at, started_at, html_body, text_body, subject, track_urls, track_opens, terminated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)
	`, run.ID, run.CampaignID, run.RequestedAt, run.StartedAt,
		run.HTMLBody, run.TextBody, run.Subject, run.TrackURLs, run.TrackOpens)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// GetRun loads a delivery run by ID.
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (*domain.DeliveryRun, error) {
	var run domain.DeliveryRun
	err := s.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, requested_at, started_at, ended_at,
		       html_body, COALESCE(text_body, ''), subject, track_urls, track_opens, terminated
		FROM delivery_runs WHERE id = $1
	`, runID).Scan(
		&run.ID, &run.CampaignID, &run.RequestedAt, &run.StartedAt, &run.EndedAt,
		&run.HTMLBody, &run.TextBody, &run.Subject, &run.TrackURLs, &run.TrackOpens, &run.Terminated,
	)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

// CompleteRun stamps the run's end timestamp once the queue has drained.
func (s *Store) CompleteRun(ctx context.Context, runID uuid.UUID, endedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE delivery_runs SET ended_at = $2 WHERE id = $1
	`, runID, endedAt)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// RunTerminated reads the persisted cancellation flag. The termination
// monitor polls this so cancellation can be requested out-of-process.
func (s *Store) RunTerminated(ctx context.Context, runID uuid.UUID) (bool, error) {
	var terminated bool
	err := s.db.QueryRowContext(ctx, `
		SELECT terminated FROM delivery_runs WHERE id = $1
	`, runID).Scan(&terminated)
	if err != nil {
		return false, fmt.Errorf("run terminated: %w", err)
	}
	return terminated, nil
}

// TerminateRun sets the persisted cancellation flag for a running dispatch.
func (s *Store) TerminateRun(ctx context.Context, runID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE delivery_runs SET terminated = TRUE WHERE id = $1
	`, runID)
	if err != nil {
		return fmt.Errorf("terminate run: %w", err)
	}
	return nil
}

// PreviewExists reports whether a preview was already issued for the exact
// requested timestamp.
func (s *Store) PreviewExists(ctx context.Context, campaignID uuid.UUID, requestedAt time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM delivery_previews WHERE campaign_id = $1 AND requested_at = $2
		)
	`, campaignID, requestedAt).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("preview exists: %w", err)
	}
	return exists, nil
}

// CreatePreview records that a preview was issued for the requested
// timestamp, keying preview idempotency.
func (s *Store) CreatePreview(ctx context.Context, campaignID uuid.UUID, requestedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_previews (campaign_id, requested_at, issued_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (campaign_id, requested_at) DO NOTHING
	`, campaignID, requestedAt)
	if err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	return nil
}
