// Package engine ties scheduling, content resolution, personalization,
// tracking, and transmission into the campaign processing loop.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/content"
	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/personalize"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/schedule"
	"github.com/ignite/campaign-dispatch/internal/store"
	"github.com/ignite/campaign-dispatch/internal/tracking"
)

// Store is the persistence surface the engine drives directly. The
// selector and pipeline hold their own narrower views of the same store.
type Store interface {
	CreateRun(ctx context.Context, run *domain.DeliveryRun) error
	CreatePreview(ctx context.Context, campaignID uuid.UUID, requestedAt time.Time) error
	RecipientsForGroups(ctx context.Context, groupIDs []uuid.UUID) ([]*domain.Recipient, error)
	CreateDeliveryRecords(ctx context.Context, runID uuid.UUID, recipients []*domain.Recipient) ([]*domain.DeliveryRecord, error)
	MarkRecordFailed(ctx context.Context, recordID uuid.UUID, msg string) error
	CompleteRun(ctx context.Context, runID uuid.UUID, endedAt time.Time) error
	SetEstimatedRecipients(ctx context.Context, campaignID uuid.UUID, n int) error
	CreateOrGetTrackedURL(ctx context.Context, runID uuid.UUID, url string, position int) (*domain.TrackedURL, error)
	SummarizeRun(ctx context.Context, runID uuid.UUID) (*store.RunOutcome, error)
}

// Engine runs the processing ticks.
type Engine struct {
	store    Store
	selector *schedule.Selector
	resolver *content.Resolver
	codec    *tracking.Codec
	rewriter *tracking.Rewriter
	pipeline *dispatch.Pipeline
	sessions dispatch.SessionFactory
	tick     time.Duration
}

// New assembles the engine from its collaborators. The session factory
// is used directly for preview sends, which bypass the pipeline.
func New(st Store, selector *schedule.Selector, resolver *content.Resolver, codec *tracking.Codec, pipeline *dispatch.Pipeline, sessions dispatch.SessionFactory, tick time.Duration) *Engine {
	return &Engine{
		store:    st,
		selector: selector,
		resolver: resolver,
		codec:    codec,
		rewriter: tracking.NewRewriter(codec),
		pipeline: pipeline,
		sessions: sessions,
		tick:     tick,
	}
}

// Run executes ticks until the context ends.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	logger.Info("engine started", "tick", e.tick.String())
	e.Tick(ctx, time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			logger.Info("engine stopped")
			return
		case <-ticker.C:
			e.Tick(ctx, time.Now().UTC())
		}
	}
}

// Tick evaluates one scheduling window: previews first, because their
// lead time makes them the more deadline-sensitive of the two, then live
// sends. A failing campaign never blocks the rest of the tick.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	previews, err := e.selector.DueForPreview(ctx, now)
	if err != nil {
		logger.Error("preview selection failed", "error", err.Error())
	}
	for _, sel := range previews {
		if err := e.Preview(ctx, sel); err != nil {
			logger.Error("preview failed", "campaign_id", sel.Campaign.ID, "error", err.Error())
		}
	}

	sends, err := e.selector.DueForSend(ctx, now)
	if err != nil {
		logger.Error("send selection failed", "error", err.Error())
		return
	}
	for _, sel := range sends {
		if err := e.Dispatch(ctx, sel); err != nil {
			logger.Error("dispatch failed", "campaign_id", sel.Campaign.ID, "error", err.Error())
		}
	}
}

// Dispatch executes a full delivery run for one due campaign: resolve and
// prepare the shared body, persist the run and its per-recipient records,
// then hand transmission to the pipeline.
func (e *Engine) Dispatch(ctx context.Context, sel schedule.Selection) error {
	c := sel.Campaign

	resolved, err := e.resolver.Resolve(ctx, c, false)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", c.ID, err)
	}

	recipients, err := e.store.RecipientsForGroups(ctx, c.GroupIDs)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", c.ID, err)
	}

	run := &domain.DeliveryRun{
		ID:          uuid.New(),
		CampaignID:  c.ID,
		RequestedAt: sel.RequestedAt,
		StartedAt:   time.Now().UTC(),
		Subject:     c.Subject,
		TrackURLs:   c.TrackURLs,
		TrackOpens:  c.TrackOpens,
	}

	html := resolved.HTML
	var links []tracking.TrackedLink
	if c.TrackURLs {
		html, links = e.rewriter.RewriteLinks(html, run.ID)
	}
	if c.TrackOpens {
		html = e.rewriter.AppendOpenPixel(html, run.ID)
	}
	run.HTMLBody = html
	run.TextBody = resolved.Text

	// The run row is the idempotency anchor; it exists even when the
	// audience turns out to be empty. It must also exist before the
	// tracked URLs below, which reference it.
	if err := e.store.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("dispatch %s: %w", c.ID, err)
	}
	for _, link := range links {
		if _, err := e.store.CreateOrGetTrackedURL(ctx, run.ID, link.URL, link.Position); err != nil {
			return fmt.Errorf("dispatch %s: %w", c.ID, err)
		}
	}
	logger.Info("delivery run created", "run_id", run.ID, "campaign_id", c.ID,
		"requested_at", sel.RequestedAt.Format(time.RFC3339), "recipients", len(recipients))

	if len(recipients) == 0 {
		return e.store.CompleteRun(ctx, run.ID, time.Now().UTC())
	}

	records, err := e.store.CreateDeliveryRecords(ctx, run.ID, recipients)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", c.ID, err)
	}
	recordByRecipient := make(map[uuid.UUID]*domain.DeliveryRecord, len(records))
	for _, rec := range records {
		recordByRecipient[rec.RecipientID] = rec
	}

	// Addresses that cannot be transmitted fail their records up front
	// instead of burning SMTP transactions.
	var valid []*domain.Recipient
	for _, r := range recipients {
		if !domain.ValidateEmail(r.Email) {
			if rec := recordByRecipient[r.ID]; rec != nil {
				if mErr := e.store.MarkRecordFailed(ctx, rec.ID, "invalid email address"); mErr != nil {
					logger.Error("mark invalid recipient failed", "record_id", rec.ID, "error", mErr.Error())
				}
			}
			continue
		}
		valid = append(valid, r)
	}
	if err := e.store.SetEstimatedRecipients(ctx, c.ID, len(valid)); err != nil {
		logger.Warn("estimated recipient update failed", "campaign_id", c.ID, "error", err.Error())
	}

	p := personalize.New(c.PlaceholderDelimiter())
	tokens := p.Extract(run.HTMLBody + "\n" + run.TextBody + "\n" + run.Subject)
	values := p.ResolveAll(tokens, valid)

	items := make([]dispatch.Item, 0, len(valid))
	for _, r := range valid {
		if rec := recordByRecipient[r.ID]; rec != nil {
			items = append(items, dispatch.Item{Record: rec, Recipient: r})
		}
	}

	job := &dispatch.RunJob{
		Run:   run,
		Items: items,
		Build: func(r *domain.Recipient) (*dispatch.Message, error) {
			vals := values[r.ID]
			unsub := e.codec.UnsubscribeURL(r.ID)

			htmlBody := p.Substitute(run.HTMLBody, vals)
			htmlBody = p.SubstituteUnsubscribe(htmlBody, unsub)
			htmlBody = e.rewriter.FillRecipient(htmlBody, r.ID, run.ID, links)

			textBody := ""
			if run.TextBody != "" {
				textBody = p.Substitute(run.TextBody, vals)
				textBody = p.SubstituteUnsubscribeText(textBody, unsub)
			}

			return &dispatch.Message{
				FromAddress:    c.FromAddress,
				FromName:       c.FromName,
				To:             r.Email,
				Subject:        p.Substitute(run.Subject, vals),
				HTMLBody:       htmlBody,
				TextBody:       textBody,
				UnsubscribeURL: unsub,
			}, nil
		},
	}

	if err := e.pipeline.Run(ctx, job); err != nil {
		return fmt.Errorf("dispatch %s: %w", c.ID, err)
	}

	outcome, err := e.store.SummarizeRun(ctx, run.ID)
	if err != nil {
		logger.Warn("run summary unavailable", "run_id", run.ID, "error", err.Error())
		return nil
	}
	logger.Info("delivery run completed", "run_id", run.ID, "campaign_id", c.ID,
		"sent", outcome.Sent, "failed", outcome.Failed, "unattempted", outcome.Unattempted)
	return nil
}

// Preview sends the resolved body to the campaign's review addresses
// ahead of the live send. Preview mail is unpersonalized, untracked, and
// leaves no delivery records; the preview row only keys idempotency.
func (e *Engine) Preview(ctx context.Context, sel schedule.Selection) error {
	c := sel.Campaign

	if err := e.store.CreatePreview(ctx, c.ID, sel.RequestedAt); err != nil {
		return fmt.Errorf("preview %s: %w", c.ID, err)
	}

	resolved, err := e.resolver.Resolve(ctx, c, true)
	if err != nil {
		return fmt.Errorf("preview %s: %w", c.ID, err)
	}
	if resolved.Degraded {
		logger.Warn("preview content degraded", "campaign_id", c.ID)
	}

	sess, err := e.sessions.Dial()
	if err != nil {
		return fmt.Errorf("preview %s: %w", c.ID, err)
	}
	defer sess.Close()

	for _, addr := range c.PreviewAddresses {
		msg := &dispatch.Message{
			FromAddress: c.FromAddress,
			FromName:    c.FromName,
			To:          addr,
			Subject:     "[Preview] " + c.Subject,
			HTMLBody:    resolved.HTML,
			TextBody:    resolved.Text,
		}
		if err := sess.Send(msg.FromAddress, msg.To, msg.Bytes()); err != nil {
			logger.Error("preview send failed", "campaign_id", c.ID,
				"to", logger.RedactEmail(addr), "error", err.Error())
			continue
		}
		logger.Info("preview sent", "campaign_id", c.ID, "to", logger.RedactEmail(addr))
	}
	return nil
}
