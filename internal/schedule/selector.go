// Package schedule decides which campaigns are due to preview or send in
// the current processing tick.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// Store is the narrow repository surface the selector needs.
type Store interface {
	ListSchedulable(ctx context.Context) ([]*domain.Campaign, error)
	ClearSendOverride(ctx context.Context, campaignID uuid.UUID) (bool, error)
	RunExists(ctx context.Context, campaignID uuid.UUID, requestedAt time.Time) (bool, error)
	PreviewExists(ctx context.Context, campaignID uuid.UUID, requestedAt time.Time) (bool, error)
}

// Selection pairs a due campaign with the requested start timestamp that
// keys the resulting run's idempotency.
type Selection struct {
	Campaign    *domain.Campaign
	RequestedAt time.Time
}

// Selector evaluates recurrence rules against the current tick window.
type Selector struct {
	store       Store
	tick        time.Duration
	previewLead time.Duration
}

// NewSelector builds a selector for the given processing interval and
// preview lead time.
func NewSelector(store Store, tick, previewLead time.Duration) *Selector {
	return &Selector{store: store, tick: tick, previewLead: previewLead}
}

// DueForSend returns the campaigns whose scheduled time falls within
// [now, now+tick), or whose override flag recovers a missed tick. The
// override is cleared as part of selection so a second tick in the same
// window cannot re-fire it.
func (s *Selector) DueForSend(ctx context.Context, now time.Time) ([]Selection, error) {
	campaigns, err := s.store.ListSchedulable(ctx)
	if err != nil {
		return nil, fmt.Errorf("due for send: %w", err)
	}

	windowEnd := now.Add(s.tick)
	var due []Selection
	for _, c := range campaigns {
		if !c.OccursOn(now) {
			continue
		}
		requested := c.RequestedStart(now)

		inWindow := !requested.Before(now) && requested.Before(windowEnd)
		overrideDue := c.SendOverride && !requested.After(windowEnd)
		if !inWindow && !overrideDue {
			continue
		}

		exists, err := s.store.RunExists(ctx, c.ID, requested)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		if c.SendOverride {
			cleared, err := s.store.ClearSendOverride(ctx, c.ID)
			if err != nil {
				return nil, err
			}
			// A concurrent tick already consumed the override; without a
			// window hit of our own there is nothing left to fire.
			if !cleared && !inWindow {
				continue
			}
			c.SendOverride = false
		}

		logger.Info("campaign due for send", "campaign_id", c.ID, "requested_at", requested.Format(time.RFC3339))
		due = append(due, Selection{Campaign: c, RequestedAt: requested})
	}
	return due, nil
}

// DueForPreview evaluates the same window shifted earlier by the preview
// lead, for campaigns with preview enabled. Idempotency is checked against
// issued preview records.
func (s *Selector) DueForPreview(ctx context.Context, now time.Time) ([]Selection, error) {
	campaigns, err := s.store.ListSchedulable(ctx)
	if err != nil {
		return nil, fmt.Errorf("due for preview: %w", err)
	}

	shifted := now.Add(s.previewLead)
	windowEnd := shifted.Add(s.tick)
	var due []Selection
	for _, c := range campaigns {
		if !c.PreviewEnabled || len(c.PreviewAddresses) == 0 {
			continue
		}
		if !c.OccursOn(shifted) {
			continue
		}
		requested := c.RequestedStart(shifted)
		if requested.Before(shifted) || !requested.Before(windowEnd) {
			continue
		}

		exists, err := s.store.PreviewExists(ctx, c.ID, requested)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		logger.Info("campaign due for preview", "campaign_id", c.ID, "requested_at", requested.Format(time.RFC3339))
		due = append(due, Selection{Campaign: c, RequestedAt: requested})
	}
	return due, nil
}
