package tracking

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Ledger records verified open and click callbacks.
type Ledger interface {
	RecordOpen(ctx context.Context, runID, recipientID uuid.UUID) error
	RecordClick(ctx context.Context, runID uuid.UUID, url string, position int, recipientID uuid.UUID) error
}

// RecipientStore is the recipient surface the unsubscribe endpoint needs.
type RecipientStore interface {
	DisableRecipient(ctx context.Context, id uuid.UUID) error
}

// Handler serves the tracking callback endpoints.
type Handler struct {
	codec      *Codec
	ledger     Ledger
	recipients RecipientStore
}

// NewHandler builds the callback handler.
func NewHandler(codec *Codec, ledger Ledger, recipients RecipientStore) *Handler {
	return &Handler{codec: codec, ledger: ledger, recipients: recipients}
}

// Routes mounts the tracking endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/track/click", h.HandleClick)
	r.Get("/track/open", h.HandleOpen)
	r.Get("/track/unsubscribe", h.HandleUnsubscribe)
	r.Get("/health", h.HandleHealth)
	return r
}

// HandleClick verifies the link MAC, records the click, and redirects.
// The redirect happens even when verification fails: the recipient asked
// for a page, and refusing to forward them punishes the wrong party. An
// unverified click is simply never recorded.
func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dest := q.Get("url")
	if dest == "" {
		http.Error(w, "bad parameters", http.StatusBadRequest)
		return
	}

	runID, rErr := uuid.Parse(q.Get("instance"))
	recipientID, pErr := uuid.Parse(q.Get("recipient"))
	position, posErr := strconv.Atoi(q.Get("position"))
	mac := q.Get("mac")

	if rErr != nil || pErr != nil || posErr != nil ||
		!h.codec.VerifyURLMAC(mac, dest, position, recipientID, runID) {
		logger.Warn("click callback failed verification", "remote", r.RemoteAddr)
		http.Redirect(w, r, dest, http.StatusFound)
		return
	}

	if err := h.ledger.RecordClick(r.Context(), runID, dest, position, recipientID); err != nil {
		logger.Error("record click", "error", err.Error(), "run_id", runID)
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

// HandleOpen verifies the pixel MAC and records the open. The pixel bytes
// are served no matter what; mail clients must never see an error image.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	runID, rErr := uuid.Parse(q.Get("instance"))
	recipientID, pErr := uuid.Parse(q.Get("recipient"))
	mac := q.Get("mac")

	if rErr == nil && pErr == nil && h.codec.VerifyOpenMAC(mac, recipientID, runID) {
		if err := h.ledger.RecordOpen(r.Context(), runID, recipientID); err != nil {
			logger.Error("record open", "error", err.Error(), "run_id", runID)
		}
	} else {
		logger.Warn("open callback failed verification", "remote", r.RemoteAddr)
	}
	h.servePixel(w)
}

// HandleUnsubscribe disables the recipient after verifying either the
// current MAC form or the legacy campaign-bound form signalled by the
// email query parameter. Invalid requests get a generic rejection so the
// response reveals nothing about which field failed.
func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	recipientID, err := uuid.Parse(q.Get("recipient"))
	if err != nil {
		http.Error(w, "bad parameters", http.StatusBadRequest)
		return
	}
	mac := q.Get("mac")

	verified := h.codec.VerifyUnsubscribeMAC(mac, recipientID)
	if !verified && q.Get("email") != "" {
		// Legacy links carry the campaign ID in the email parameter.
		if campaignID, cErr := uuid.Parse(q.Get("email")); cErr == nil {
			verified = h.codec.VerifyLegacyUnsubscribeMAC(mac, recipientID, campaignID)
		}
	}
	if !verified {
		logger.Warn("unsubscribe callback failed verification", "remote", r.RemoteAddr)
		http.Error(w, "bad parameters", http.StatusBadRequest)
		return
	}

	if err := h.recipients.DisableRecipient(r.Context(), recipientID); err != nil {
		logger.Error("disable recipient", "error", err.Error(), "recipient_id", recipientID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	logger.Info("recipient unsubscribed", "recipient_id", recipientID)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(`<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;text-align:center;padding:50px;">
		<h1>You have been unsubscribed</h1>
		<p>You will no longer receive emails from us.</p>
	</body></html>`))
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Write(pixelGIF)
}
