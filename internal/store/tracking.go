package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// ErrNotFound is returned when a tracked entity cannot be resolved.
var ErrNotFound = errors.New("not found")

// CreateOrGetTrackedURL resolves the tracked-URL row for a (run, url,
// position) triple, creating it on first sight. Safe under concurrent
// callers thanks to the unique constraint.
func (s *Store) CreateOrGetTrackedURL(ctx context.Context, runID uuid.UUID, url string, position int) (*domain.TrackedURL, error) {
	tu := &domain.TrackedURL{RunID: runID, URL: url, Position: position}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tracked_urls (id, run_id, url, position)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, url, position) DO UPDATE SET url = EXCLUDED.url
		RETURNING id
	`, uuid.New(), runID, url, position).Scan(&tu.ID)
	if err != nil {
		return nil, fmt.Errorf("create tracked url: %w", err)
	}
	return tu, nil
}

// GetTrackedURL resolves an existing tracked URL; returns ErrNotFound when
// the triple was never registered (forged or stale callback).
func (s *Store) GetTrackedURL(ctx context.Context, runID uuid.UUID, url string, position int) (*domain.TrackedURL, error) {
	tu := &domain.TrackedURL{RunID: runID, URL: url, Position: position}
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM tracked_urls WHERE run_id = $1 AND url = $2 AND position = $3
	`, runID, url, position).Scan(&tu.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tracked url: %w", err)
	}
	return tu, nil
}

// InsertOpen appends an open event. Open events are never rejected as
// duplicates; the reopen flag carries the first-vs-subsequent distinction.
// The partial unique index on (run_id, recipient_id) WHERE NOT reopen
// arbitrates concurrent first opens: exactly one callback lands the
// reopen=false row, every loser falls through to a reopen=true insert.
func (s *Store) InsertOpen(ctx context.Context, runID, recipientID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO open_events (id, run_id, recipient_id, reopen, occurred_at)
		VALUES ($1, $2, $3, FALSE, NOW())
		ON CONFLICT (run_id, recipient_id) WHERE NOT reopen DO NOTHING
	`, uuid.New(), runID, recipientID)
	if err != nil {
		return fmt.Errorf("insert open: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert open: %w", err)
	}
	if n == 1 {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO open_events (id, run_id, recipient_id, reopen, occurred_at)
		VALUES ($1, $2, $3, TRUE, NOW())
	`, uuid.New(), runID, recipientID)
	if err != nil {
		return fmt.Errorf("insert reopen: %w", err)
	}
	return nil
}

// InsertClick appends a click event unconditionally.
func (s *Store) InsertClick(ctx context.Context, trackedURLID, recipientID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO click_events (id, tracked_url_id, recipient_id, occurred_at)
		VALUES ($1, $2, $3, NOW())
	`, uuid.New(), trackedURLID, recipientID)
	if err != nil {
		return fmt.Errorf("insert click: %w", err)
	}
	return nil
}
