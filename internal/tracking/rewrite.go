package tracking

import (
	"html"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// hrefRe matches anchor tags tolerant of interleaved attributes; group 1
// captures the double-quoted href value.
var hrefRe = regexp.MustCompile(`(?is)<a\b[^>]*?\bhref\s*=\s*"([^"]*)"`)

// TrackedLink records one rewritten occurrence: the original destination
// and its ordinal position among identical destinations in the body.
type TrackedLink struct {
	URL      string
	Position int
}

// Rewriter replaces outbound link destinations with signed redirect URLs
// and injects the open pixel.
type Rewriter struct {
	codec *Codec
}

// NewRewriter builds a rewriter over the given codec.
func NewRewriter(codec *Codec) *Rewriter {
	return &Rewriter{codec: codec}
}

// RewriteLinks scans the body left to right and swaps each trackable href
// for a redirect URL. Identical destinations get consecutive positions in
// document order so each occurrence stays distinguishable in click data.
// Returns the rewritten body and the links it registered, in rewrite order.
func (rw *Rewriter) RewriteLinks(body string, runID uuid.UUID) (string, []TrackedLink) {
	matches := hrefRe.FindAllStringSubmatchIndex(body, -1)
	if len(matches) == 0 {
		return body, nil
	}

	var (
		out       strings.Builder
		links     []TrackedLink
		positions = make(map[string]int)
		last      = 0
	)
	for _, m := range matches {
		start, end := m[2], m[3]
		// Attribute values arrive entity-escaped ("&amp;" between query
		// parameters); the MAC, the registry, and the redirect target all
		// want the real URL.
		href := html.UnescapeString(body[start:end])
		if !trackable(href) {
			continue
		}

		position := positions[href]
		positions[href] = position + 1

		out.WriteString(body[last:start])
		out.WriteString(rw.codec.RedirectURL(runID, href, position, len(links)))
		last = end

		links = append(links, TrackedLink{URL: href, Position: position})
	}
	out.WriteString(body[last:])
	return out.String(), links
}

// trackable excludes non-HTTP schemes, fragment-only links, and URLs that
// already point at a tracking endpoint.
func trackable(href string) bool {
	lower := strings.ToLower(strings.TrimSpace(href))
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	return !strings.Contains(lower, "/track/")
}

// AppendOpenPixel inserts the 1x1 pixel image before the closing body tag,
// or at the end when the body has no such tag.
func (rw *Rewriter) AppendOpenPixel(body string, runID uuid.UUID) string {
	img := `<img src="` + rw.codec.PixelURL(runID) + `" width="1" height="1" alt="" style="display:none;">`
	idx := strings.LastIndex(strings.ToLower(body), "</body>")
	if idx < 0 {
		return body + img
	}
	return body[:idx] + img + body[idx:]
}

// FillRecipient resolves the shared body's fill tokens for one recipient:
// recipient ID, per-link URL MACs, and the open MAC.
func (rw *Rewriter) FillRecipient(body string, recipientID, runID uuid.UUID, links []TrackedLink) string {
	body = strings.ReplaceAll(body, tokenRecipient, recipientID.String())
	for i, link := range links {
		mac := rw.codec.URLMAC(link.URL, link.Position, recipientID, runID)
		body = strings.ReplaceAll(body, urlMACToken(i), mac)
	}
	return strings.ReplaceAll(body, tokenOpenMAC, rw.codec.OpenMAC(recipientID, runID))
}
