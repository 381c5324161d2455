package tracking

import (
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func testRewriter() *Rewriter {
	return NewRewriter(testCodec())
}

func TestRewriteLinks_PositionsPerDestination(t *testing.T) {
	rw := testRewriter()
	run := uuid.New()

	body := `<a href="https://a.example.com/x">one</a>
<a href="https://b.example.com/y">two</a>
<a href="https://a.example.com/x">one again</a>`
	out, links := rw.RewriteLinks(body, run)

	if len(links) != 3 {
		t.Fatalf("links = %d, want 3", len(links))
	}
	want := []TrackedLink{
		{URL: "https://a.example.com/x", Position: 0},
		{URL: "https://b.example.com/y", Position: 0},
		{URL: "https://a.example.com/x", Position: 1},
	}
	for i, w := range want {
		if links[i] != w {
			t.Errorf("links[%d] = %+v, want %+v", i, links[i], w)
		}
	}

	if strings.Contains(out, `href="https://a.example.com/x"`) {
		t.Error("original destination survived rewriting")
	}
	if !strings.Contains(out, "instance="+run.String()) {
		t.Error("redirect urls missing run id")
	}
	if !strings.Contains(out, "url="+url.QueryEscape("https://a.example.com/x")) {
		t.Error("destination not encoded into redirect url")
	}
	if !strings.Contains(out, "position=1") {
		t.Error("second occurrence position missing")
	}
}

func TestRewriteLinks_TolerantOfAttributes(t *testing.T) {
	rw := testRewriter()
	body := `<a class="btn" target="_blank" href="https://a.example.com/x" rel="noopener">go</a>`
	out, links := rw.RewriteLinks(body, uuid.New())
	if len(links) != 1 {
		t.Fatalf("links = %d, want 1", len(links))
	}
	if !strings.Contains(out, `class="btn"`) || !strings.Contains(out, `rel="noopener"`) {
		t.Error("surrounding attributes damaged")
	}
}

func TestRewriteLinks_UnescapesEntityEscapedHrefs(t *testing.T) {
	rw := testRewriter()
	run := uuid.New()

	// Canonical HTML serialization escapes the ampersands between query
	// parameters; the registered URL and the redirect target must carry
	// the real ones.
	body := `<a href="https://a.example.com/x?a=1&amp;b=2">go</a>`
	out, links := rw.RewriteLinks(body, run)

	if len(links) != 1 {
		t.Fatalf("links = %d, want 1", len(links))
	}
	if links[0].URL != "https://a.example.com/x?a=1&b=2" {
		t.Errorf("registered url = %q, want decoded ampersand", links[0].URL)
	}
	if !strings.Contains(out, "url="+url.QueryEscape("https://a.example.com/x?a=1&b=2")) {
		t.Error("redirect url not built from the decoded destination")
	}
	if strings.Contains(out, url.QueryEscape("&amp;")) {
		t.Error("entity escape leaked into the redirect url")
	}
}

func TestRewriteLinks_SkipsUntrackable(t *testing.T) {
	rw := testRewriter()
	body := `<a href="mailto:x@example.com">mail</a>
<a href="#section">anchor</a>
<a href="https://track.example.com/track/unsubscribe?recipient=a&mac=b">unsub</a>`
	out, links := rw.RewriteLinks(body, uuid.New())
	if len(links) != 0 {
		t.Fatalf("links = %d, want 0", len(links))
	}
	if out != body {
		t.Error("untrackable body modified")
	}
}

func TestAppendOpenPixel(t *testing.T) {
	rw := testRewriter()
	run := uuid.New()

	withBody := rw.AppendOpenPixel("<html><body><p>hi</p></body></html>", run)
	if !strings.Contains(withBody, `<img src="https://track.example.com/track/open?instance=`+run.String()) {
		t.Error("pixel missing")
	}
	if !strings.HasSuffix(withBody, `</body></html>`) {
		t.Errorf("pixel not inserted before closing body tag: %q", withBody)
	}

	bare := rw.AppendOpenPixel("<p>hi</p>", run)
	if !strings.HasSuffix(bare, `style="display:none;">`) {
		t.Errorf("pixel not appended to tagless body: %q", bare)
	}
}

func TestFillRecipient(t *testing.T) {
	rw := testRewriter()
	codec := rw.codec
	run, recipient := uuid.New(), uuid.New()

	body := `<html><body>
<a href="https://a.example.com/x">one</a>
<a href="https://a.example.com/x">two</a>
</body></html>`
	shared, links := rw.RewriteLinks(body, run)
	shared = rw.AppendOpenPixel(shared, run)

	filled := rw.FillRecipient(shared, recipient, run, links)
	if strings.Contains(filled, "%%") {
		t.Fatalf("fill tokens left behind: %q", filled)
	}
	if !strings.Contains(filled, "recipient="+recipient.String()) {
		t.Error("recipient id not filled")
	}
	if !strings.Contains(filled, "mac="+codec.URLMAC("https://a.example.com/x", 0, recipient, run)) {
		t.Error("first link mac not filled")
	}
	if !strings.Contains(filled, "mac="+codec.URLMAC("https://a.example.com/x", 1, recipient, run)) {
		t.Error("second link mac not filled")
	}
	if !strings.Contains(filled, "mac="+codec.OpenMAC(recipient, run)) {
		t.Error("open mac not filled")
	}
}
