package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// CreateDeliveryRecords inserts one record per recipient in a single
// transaction before any send attempt, so partial failure is always
// auditable. The unique (run_id, recipient_id) constraint guarantees no
// recipient is ever enqueued twice for a run.
func (s *Store) CreateDeliveryRecords(ctx context.Context, runID uuid.UUID, recipients []*domain.Recipient) ([]*domain.DeliveryRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delivery records: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("delivery_records", "id", "run_id", "recipient_id", "email"))
	if err != nil {
		return nil, fmt.Errorf("prepare copy: %w", err)
	}

	records := make([]*domain.DeliveryRecord, 0, len(recipients))
	for _, r := range recipients {
		rec := &domain.DeliveryRecord{
			ID:          uuid.New(),
			RunID:       runID,
			RecipientID: r.ID,
			Email:       r.Email,
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.RunID, rec.RecipientID, rec.Email); err != nil {
			stmt.Close()
			return nil, fmt.Errorf("copy delivery record: %w", err)
		}
		records = append(records, rec)
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return nil, fmt.Errorf("flush delivery records: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return nil, fmt.Errorf("close copy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delivery records: %w", err)
	}
	return records, nil
}

// MarkRecordSent stamps a record's send timestamp on success.
func (s *Store) MarkRecordSent(ctx context.Context, recordID uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE delivery_records SET sent_at = $2 WHERE id = $1
	`, recordID, at)
	if err != nil {
		return fmt.Errorf("mark record sent: %w", err)
	}
	return nil
}

// MarkRecordFailed records a terminal per-recipient error message.
func (s *Store) MarkRecordFailed(ctx context.Context, recordID uuid.UUID, msg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE delivery_records SET error = $2 WHERE id = $1
	`, recordID, msg)
	if err != nil {
		return fmt.Errorf("mark record failed: %w", err)
	}
	return nil
}

// CountUnattempted reports how many records of a run were never attempted
// (both sent_at and error null). These are the recipients dropped by
// aborted workers, candidates for a manual re-run.
func (s *Store) CountUnattempted(ctx context.Context, runID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM delivery_records
		WHERE run_id = $1 AND sent_at IS NULL AND error IS NULL
	`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unattempted: %w", err)
	}
	return n, nil
}

// RunOutcome summarizes a finished run for the completion log line.
type RunOutcome struct {
	Sent        int
	Failed      int
	Unattempted int
}

// SummarizeRun aggregates delivery record outcomes for a run.
func (s *Store) SummarizeRun(ctx context.Context, runID uuid.UUID) (*RunOutcome, error) {
	var out RunOutcome
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE sent_at IS NOT NULL),
			COUNT(*) FILTER (WHERE error IS NOT NULL),
			COUNT(*) FILTER (WHERE sent_at IS NULL AND error IS NULL)
		FROM delivery_records WHERE run_id = $1
	`, runID).Scan(&out.Sent, &out.Failed, &out.Unattempted)
	if err != nil {
		return nil, fmt.Errorf("summarize run: %w", err)
	}
	return &out, nil
}
