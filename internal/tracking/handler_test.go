package tracking

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
)

type fakeLedger struct {
	opens  int
	clicks int
}

func (f *fakeLedger) RecordOpen(ctx context.Context, runID, recipientID uuid.UUID) error {
	f.opens++
	return nil
}

func (f *fakeLedger) RecordClick(ctx context.Context, runID uuid.UUID, u string, position int, recipientID uuid.UUID) error {
	f.clicks++
	return nil
}

type fakeRecipients struct {
	disabled []uuid.UUID
}

func (f *fakeRecipients) DisableRecipient(ctx context.Context, id uuid.UUID) error {
	f.disabled = append(f.disabled, id)
	return nil
}

func newTestHandler() (*Handler, *fakeLedger, *fakeRecipients) {
	led := &fakeLedger{}
	rec := &fakeRecipients{}
	return NewHandler(testCodec(), led, rec), led, rec
}

func TestHandleClick_ValidMAC(t *testing.T) {
	h, led, _ := newTestHandler()
	c := testCodec()
	run, recipient := uuid.New(), uuid.New()
	dest := "https://shop.example.com/sale?x=1"
	mac := c.URLMAC(dest, 0, recipient, run)

	target := fmt.Sprintf("/track/click?instance=%s&url=%s&position=0&recipient=%s&mac=%s",
		run, url.QueryEscape(dest), recipient, mac)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != dest {
		t.Errorf("Location = %q, want %q", loc, dest)
	}
	if led.clicks != 1 {
		t.Errorf("clicks recorded = %d, want 1", led.clicks)
	}
}

func TestHandleClick_InvalidMACStillRedirects(t *testing.T) {
	h, led, _ := newTestHandler()
	run, recipient := uuid.New(), uuid.New()
	dest := "https://shop.example.com/sale"

	target := fmt.Sprintf("/track/click?instance=%s&url=%s&position=0&recipient=%s&mac=forged",
		run, url.QueryEscape(dest), recipient)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != dest {
		t.Errorf("Location = %q, want %q", loc, dest)
	}
	if led.clicks != 0 {
		t.Errorf("forged click recorded")
	}
}

func TestHandleClick_MissingURL(t *testing.T) {
	h, _, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/track/click?instance=x", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleOpen_AlwaysServesPixel(t *testing.T) {
	h, led, _ := newTestHandler()
	c := testCodec()
	run, recipient := uuid.New(), uuid.New()

	valid := fmt.Sprintf("/track/open?instance=%s&recipient=%s&mac=%s",
		run, recipient, c.OpenMAC(recipient, run))
	forged := fmt.Sprintf("/track/open?instance=%s&recipient=%s&mac=forged", run, recipient)

	for _, target := range []string{valid, forged} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()
		h.Routes().ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "image/gif" {
			t.Errorf("Content-Type = %q", ct)
		}
		if w.Body.Len() != len(pixelGIF) {
			t.Errorf("pixel length = %d, want %d", w.Body.Len(), len(pixelGIF))
		}
	}
	if led.opens != 1 {
		t.Errorf("opens recorded = %d, want 1 (valid request only)", led.opens)
	}
}

func TestHandleUnsubscribe_Valid(t *testing.T) {
	h, _, rec := newTestHandler()
	c := testCodec()
	recipient := uuid.New()

	target := fmt.Sprintf("/track/unsubscribe?recipient=%s&mac=%s", recipient, c.UnsubscribeMAC(recipient))
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "unsubscribed") {
		t.Error("confirmation page missing")
	}
	if len(rec.disabled) != 1 || rec.disabled[0] != recipient {
		t.Errorf("recipient not disabled: %v", rec.disabled)
	}
}

func TestHandleUnsubscribe_LegacyForm(t *testing.T) {
	h, _, rec := newTestHandler()
	c := testCodec()
	recipient, campaign := uuid.New(), uuid.New()

	target := fmt.Sprintf("/track/unsubscribe?recipient=%s&email=%s&mac=%s",
		recipient, campaign, c.LegacyUnsubscribeMAC(recipient, campaign))
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(rec.disabled) != 1 {
		t.Errorf("legacy unsubscribe did not disable recipient")
	}
}

func TestHandleUnsubscribe_InvalidRejectedGenerically(t *testing.T) {
	h, _, rec := newTestHandler()
	recipient := uuid.New()

	for _, target := range []string{
		"/track/unsubscribe?recipient=not-a-uuid&mac=x",
		fmt.Sprintf("/track/unsubscribe?recipient=%s&mac=forged", recipient),
		fmt.Sprintf("/track/unsubscribe?recipient=%s&email=%s&mac=forged", recipient, uuid.New()),
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()
		h.Routes().ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, w.Code)
		}
		if !strings.Contains(w.Body.String(), "bad parameters") {
			t.Errorf("%s: body = %q, want generic rejection", target, w.Body.String())
		}
	}
	if len(rec.disabled) != 0 {
		t.Errorf("forged unsubscribe disabled a recipient")
	}
}
