package content

import (
	"strings"
	"testing"
)

func TestTransliterate(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"café", "cafe"},
		{"Über naïve résumé", "Uber naive resume"},
		{"“smart quotes” and – dashes", `"smart quotes" and - dashes`},
		{"Straße", "Strasse"},
		{"œuvre", "oeuvre"},
		{"price: 10€", "price: 10EUR"},
		{"plain ascii stays", "plain ascii stays"},
		{"日本語", ""},
	}
	for _, tt := range tests {
		if got := Transliterate(tt.in); got != tt.want {
			t.Errorf("Transliterate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTransliterate_OutputIsASCII(t *testing.T) {
	out := Transliterate("ángström — «déjà vu» …")
	for _, r := range out {
		if r > 127 {
			t.Fatalf("non-ascii rune %q in %q", r, out)
		}
	}
}

func TestSanitize(t *testing.T) {
	out := Sanitize(`<html><body><p>café & "quotes"</p></body></html>`)
	if strings.Contains(out, "café") {
		t.Errorf("accents survived sanitization: %q", out)
	}
	if !strings.Contains(out, "cafe") {
		t.Errorf("transliterated text missing: %q", out)
	}
	if !strings.Contains(out, "&amp;") {
		t.Errorf("ampersand not canonically escaped: %q", out)
	}
}

func TestSanitize_FragmentSurvives(t *testing.T) {
	out := Sanitize(`<p>hello <b>world`)
	if !strings.Contains(out, "hello") || !strings.Contains(out, "world") {
		t.Errorf("fragment content lost: %q", out)
	}
}
