package content

import (
	"bytes"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Sanitize re-parses the HTML and re-serializes it so every entity is
// escaped canonically, then transliterates the result to ASCII. The
// outbound transport only guarantees 7-bit-safe delivery.
func Sanitize(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		// The parser is tolerant enough that this is effectively
		// unreachable for string input; fall back to the raw body.
		return Transliterate(rawHTML)
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return Transliterate(rawHTML)
	}
	return Transliterate(buf.String())
}

// Common typographic characters that decompose to nothing useful under NFD
// and deserve an explicit ASCII equivalent.
var asciiFold = strings.NewReplacer(
	"‘", "'", "’", "'", "‚", "'",
	"“", `"`, "”", `"`, "„", `"`,
	"–", "-", "—", "-", "―", "-",
	"…", "...",
	" ", " ",
	"«", `"`, "»", `"`,
	"×", "x",
	"ß", "ss",
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ø", "o", "Ø", "O",
	"€", "EUR",
)

// Transliterate maps text to its closest ASCII form: typographic
// punctuation is folded, accented letters lose their combining marks, and
// anything still outside ASCII is dropped.
func Transliterate(s string) string {
	s = asciiFold.Replace(s)

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
		runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
