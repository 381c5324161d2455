// Package ledger is the append-only record of engagement events. Every
// verified callback produces exactly one event row.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// Store is the persistence surface the ledger writes through. InsertOpen
// decides the reopen flag itself, atomically against concurrent callbacks.
type Store interface {
	InsertOpen(ctx context.Context, runID, recipientID uuid.UUID) error
	GetTrackedURL(ctx context.Context, runID uuid.UUID, url string, position int) (*domain.TrackedURL, error)
	InsertClick(ctx context.Context, trackedURLID, recipientID uuid.UUID) error
}

// Ledger appends open and click events.
type Ledger struct {
	store Store
}

// New builds a ledger over the given store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// RecordOpen appends an open event. The first open for a (run, recipient)
// pair is recorded with reopen false; every later open is a distinct
// event with reopen true. N callbacks always produce N rows.
func (l *Ledger) RecordOpen(ctx context.Context, runID, recipientID uuid.UUID) error {
	if err := l.store.InsertOpen(ctx, runID, recipientID); err != nil {
		return fmt.Errorf("record open: %w", err)
	}
	return nil
}

// RecordClick resolves the tracked URL registered at rewrite time and
// appends a click event. Clicks are never deduplicated.
func (l *Ledger) RecordClick(ctx context.Context, runID uuid.UUID, url string, position int, recipientID uuid.UUID) error {
	tu, err := l.store.GetTrackedURL(ctx, runID, url, position)
	if err != nil {
		return fmt.Errorf("record click: %w", err)
	}
	if err := l.store.InsertClick(ctx, tu.ID, recipientID); err != nil {
		return fmt.Errorf("record click: %w", err)
	}
	return nil
}
