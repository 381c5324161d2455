// Package store is the Postgres repository for the dispatch engine. All
// queries are parameterized; callers never see SQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// Store wraps a database handle with the engine's persistence operations.
type Store struct {
	db *sql.DB
}

// New creates a Store over an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListSchedulable returns all campaigns the selector should evaluate,
// with their recipient group sets attached.
func (s *Store) ListSchedulable(ctx context.Context) ([]*domain.Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, subject,
		       COALESCE(html_source_uri, ''), COALESCE(text_source_uri, ''),
		       recurrence, start_date, send_time_seconds,
		       from_address, COALESCE(from_name, ''), COALESCE(delimiter, ''),
		       track_urls, track_opens,
		       preview_enabled, COALESCE(preview_addresses, '{}'),
		       send_override
		FROM campaigns
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		var sendSeconds int
		var recurrence string
		if err := rows.Scan(
			&c.ID, &c.Title, &c.Subject,
			&c.HTMLSourceURI, &c.TextSourceURI,
			&recurrence, &c.StartDate, &sendSeconds,
			&c.FromAddress, &c.FromName, &c.Delimiter,
			&c.TrackURLs, &c.TrackOpens,
			&c.PreviewEnabled, pq.Array(&c.PreviewAddresses),
			&c.SendOverride,
		); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		c.Recurrence = domain.Recurrence(recurrence)
		c.SendTime = time.Duration(sendSeconds) * time.Second

		groups, err := s.campaignGroupIDs(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		c.GroupIDs = groups
		campaigns = append(campaigns, &c)
	}
	return campaigns, rows.Err()
}

func (s *Store) campaignGroupIDs(ctx context.Context, campaignID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id FROM campaign_groups WHERE campaign_id = $1
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign groups: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClearSendOverride atomically clears a campaign's override flag and
// reports whether this caller owned the clear. Concurrent ticks race on
// this write; exactly one wins, which prevents duplicate dispatch.
func (s *Store) ClearSendOverride(ctx context.Context, campaignID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaigns SET send_override = FALSE, updated_at = NOW()
		WHERE id = $1 AND send_override
	`, campaignID)
	if err != nil {
		return false, fmt.Errorf("clear send override: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetEstimatedRecipients stamps the campaign's recipient estimate at run
// build time. This is the only campaign field the engine writes besides
// the override flag.
func (s *Store) SetEstimatedRecipients(ctx context.Context, campaignID uuid.UUID, n int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE campaigns SET estimated_recipients = $2, updated_at = NOW()
		WHERE id = $1
	`, campaignID, n)
	if err != nil {
		return fmt.Errorf("set estimated recipients: %w", err)
	}
	return nil
}
