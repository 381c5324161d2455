// Package tracking signs and serves the per-recipient callback URLs
// embedded in outgoing mail: click redirects, open pixels, and
// unsubscribe links.
package tracking

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
)

// macLength is the number of hex characters kept from the full HMAC.
const macLength = 16

// Codec computes and verifies the message authentication codes that
// protect tracking callbacks against forgery.
type Codec struct {
	signingKey []byte
	baseURL    string
}

// NewCodec builds a codec from the shared signing secret and the public
// base URL of the tracking endpoint.
func NewCodec(signingKey, baseURL string) *Codec {
	return &Codec{signingKey: []byte(signingKey), baseURL: baseURL}
}

// sign returns the truncated hex HMAC-SHA256 of the canonical data string.
func (c *Codec) sign(data string) string {
	h := hmac.New(sha256.New, c.signingKey)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))[:macLength]
}

func (c *Codec) verify(data, mac string) bool {
	return hmac.Equal([]byte(c.sign(data)), []byte(mac))
}

// URLMAC authenticates a single rewritten link. The position field binds
// the code to one occurrence of the destination, so repeated links in the
// same body carry distinct codes.
func (c *Codec) URLMAC(href string, position int, recipientID, runID uuid.UUID) string {
	return c.sign(fmt.Sprintf("url|%s|%d|%s|%s", href, position, recipientID, runID))
}

// VerifyURLMAC checks a click callback's code.
func (c *Codec) VerifyURLMAC(mac, href string, position int, recipientID, runID uuid.UUID) bool {
	return c.verify(fmt.Sprintf("url|%s|%d|%s|%s", href, position, recipientID, runID), mac)
}

// OpenMAC authenticates the open pixel for one recipient of one run.
func (c *Codec) OpenMAC(recipientID, runID uuid.UUID) string {
	return c.sign(fmt.Sprintf("open|%s|%s", recipientID, runID))
}

// VerifyOpenMAC checks an open callback's code.
func (c *Codec) VerifyOpenMAC(mac string, recipientID, runID uuid.UUID) bool {
	return c.verify(fmt.Sprintf("open|%s|%s", recipientID, runID), mac)
}

// UnsubscribeMAC authenticates an unsubscribe link. It is derived from
// the recipient alone so the link stays valid across runs.
func (c *Codec) UnsubscribeMAC(recipientID uuid.UUID) string {
	return c.sign(fmt.Sprintf("unsub|%s", recipientID))
}

// VerifyUnsubscribeMAC checks an unsubscribe callback's code.
func (c *Codec) VerifyUnsubscribeMAC(mac string, recipientID uuid.UUID) bool {
	return c.verify(fmt.Sprintf("unsub|%s", recipientID), mac)
}

// LegacyUnsubscribeMAC covers links minted by the previous generation of
// the platform, which bound the recipient to a campaign.
func (c *Codec) LegacyUnsubscribeMAC(recipientID, campaignID uuid.UUID) string {
	return c.sign(fmt.Sprintf("unsub|%s|%s", recipientID, campaignID))
}

// VerifyLegacyUnsubscribeMAC checks a legacy-form unsubscribe code.
func (c *Codec) VerifyLegacyUnsubscribeMAC(mac string, recipientID, campaignID uuid.UUID) bool {
	return c.verify(fmt.Sprintf("unsub|%s|%s", recipientID, campaignID), mac)
}

// RedirectURL builds the click-tracking URL for one link occurrence. The
// recipient and mac fields are fill tokens replaced at send time, so the
// rewritten body is shared across every recipient of the run. The index
// identifies the link within the run's rewrite order and keys its MAC
// fill token.
func (c *Codec) RedirectURL(runID uuid.UUID, href string, position, index int) string {
	return fmt.Sprintf("%s/track/click?instance=%s&url=%s&position=%d&recipient=%s&mac=%s",
		c.baseURL, runID, url.QueryEscape(href), position, tokenRecipient, urlMACToken(index))
}

// PixelURL builds the open-pixel URL with fill tokens in place of the
// per-recipient fields.
func (c *Codec) PixelURL(runID uuid.UUID) string {
	return fmt.Sprintf("%s/track/open?instance=%s&recipient=%s&mac=%s",
		c.baseURL, runID, tokenRecipient, tokenOpenMAC)
}

// UnsubscribeURL builds a fully resolved unsubscribe link for one
// recipient. Unlike redirect and pixel URLs it carries no fill tokens.
func (c *Codec) UnsubscribeURL(recipientID uuid.UUID) string {
	return fmt.Sprintf("%s/track/unsubscribe?recipient=%s&mac=%s",
		c.baseURL, recipientID, c.UnsubscribeMAC(recipientID))
}

// Fill tokens inserted into the shared body during link rewriting and
// resolved per recipient just before transmission.
const (
	tokenRecipient = "%%RECIPIENT%%"
	tokenOpenMAC   = "%%OPENMAC%%"
)

func urlMACToken(index int) string {
	return "%%URLMAC:" + strconv.Itoa(index) + "%%"
}
