// Package content fetches campaign bodies from their origin and normalizes
// them for 7-bit-safe SMTP transport.
package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// ErrContentUnavailable means the HTML source is unset or unreachable.
// This aborts a live send before any delivery records are created.
var ErrContentUnavailable = errors.New("content source unavailable")

// degradedBanner is prepended to preview bodies when the origin returned a
// non-2xx status, so reviewers cannot miss that the content is stale.
const degradedBanner = `<div style="background:#c0392b;color:#fff;padding:12px;font-size:16px;font-weight:bold;">` +
	`WARNING: the content source returned an error status. This preview may show stale or partial content.</div>`

// Content is the resolved, sanitized body pair for a run.
type Content struct {
	HTML     string
	Text     string
	Degraded bool
}

// Resolver fetches raw bodies over HTTP.
type Resolver struct {
	client *http.Client
}

// NewResolver creates a resolver with the given per-request timeout.
func NewResolver(timeout time.Duration) *Resolver {
	return &Resolver{client: &http.Client{Timeout: timeout}}
}

// Resolve fetches and sanitizes the campaign's HTML (required) and plain
// text (optional). For previews a non-2xx origin status degrades the body
// with a warning banner instead of failing.
func (r *Resolver) Resolve(ctx context.Context, c *domain.Campaign, preview bool) (*Content, error) {
	if c.HTMLSourceURI == "" {
		return nil, fmt.Errorf("%w: campaign %s has no html source", ErrContentUnavailable, c.ID)
	}

	status, body, err := r.fetch(ctx, c.HTMLSourceURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	out := &Content{}
	if status < 200 || status > 299 {
		if !preview {
			return nil, fmt.Errorf("%w: origin returned status %d", ErrContentUnavailable, status)
		}
		out.Degraded = true
	}
	out.HTML = Sanitize(body)
	if out.Degraded {
		out.HTML = degradedBanner + out.HTML
	}

	if c.TextSourceURI != "" {
		tStatus, tBody, tErr := r.fetch(ctx, c.TextSourceURI)
		if tErr != nil || tStatus < 200 || tStatus > 299 {
			// Plain text is optional; its absence never fails a run.
			logger.Warn("plain text source unavailable", "campaign_id", c.ID, "uri", c.TextSourceURI)
		} else {
			out.Text = Transliterate(tBody)
		}
	}

	return out, nil
}

// fetch issues two sequential GETs: a warm request that absorbs the
// origin's cold-cache penalty, then the captured request whose status and
// body are authoritative.
func (r *Resolver) fetch(ctx context.Context, uri string) (int, string, error) {
	if _, _, err := r.get(ctx, uri); err != nil {
		return 0, "", err
	}
	return r.get(ctx, uri)
}

func (r *Resolver) get(ctx context.Context, uri string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, string(body), nil
}
