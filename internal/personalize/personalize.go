// Package personalize extracts delimiter-wrapped placeholder tokens and
// substitutes per-recipient attribute values.
package personalize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// reservedToken is handled by the unsubscribe substitution, never resolved
// against recipient attributes.
const reservedToken = "unsubscribe"

// Personalizer performs placeholder extraction and substitution with a
// per-campaign delimiter (default "!@!").
type Personalizer struct {
	delimiter string
	tokenRe   *regexp.Regexp
	unsubRe   *regexp.Regexp
}

// New builds a personalizer for the given delimiter; an empty delimiter
// falls back to the platform default.
func New(delimiter string) *Personalizer {
	if delimiter == "" {
		delimiter = domain.DefaultDelimiter
	}
	quoted := regexp.QuoteMeta(delimiter)
	return &Personalizer{
		delimiter: delimiter,
		tokenRe:   regexp.MustCompile(quoted + `(.*?)` + quoted),
		unsubRe:   regexp.MustCompile(`(?i)` + quoted + reservedToken + quoted),
	}
}

// Extract scans the body once and returns the distinct placeholder tokens
// in first-occurrence order, excluding the reserved unsubscribe token.
func (p *Personalizer) Extract(body string) []string {
	seen := make(map[string]bool)
	var tokens []string
	for _, m := range p.tokenRe.FindAllStringSubmatch(body, -1) {
		token := m[1]
		if strings.EqualFold(token, reservedToken) {
			continue
		}
		if seen[token] {
			continue
		}
		seen[token] = true
		tokens = append(tokens, token)
	}
	return tokens
}

// ResolveAll precomputes the substitution value map for every recipient
// before dispatch starts. A missing attribute resolves to the empty string
// and is logged; it never fails the run.
func (p *Personalizer) ResolveAll(tokens []string, recipients []*domain.Recipient) map[uuid.UUID]map[string]string {
	values := make(map[uuid.UUID]map[string]string, len(recipients))
	for _, r := range recipients {
		m := make(map[string]string, len(tokens))
		for _, token := range tokens {
			v, ok := r.Attribute(token)
			if !ok {
				logger.Debug("placeholder attribute missing", "recipient_id", r.ID, "token", token)
			}
			m[token] = v
		}
		values[r.ID] = m
	}
	return values
}

// Substitute replaces every delimiter-wrapped token occurrence with its
// resolved value.
func (p *Personalizer) Substitute(body string, values map[string]string) string {
	for token, value := range values {
		body = strings.ReplaceAll(body, p.delimiter+token+p.delimiter, value)
	}
	return body
}

// SubstituteUnsubscribe replaces the reserved placeholder (any case) with
// an anchor pointing at the recipient's signed unsubscribe URL.
func (p *Personalizer) SubstituteUnsubscribe(body, unsubscribeURL string) string {
	anchor := fmt.Sprintf(`<a href="%s">Unsubscribe</a>`, unsubscribeURL)
	return p.unsubRe.ReplaceAllLiteralString(body, anchor)
}

// SubstituteUnsubscribeText replaces the reserved placeholder with the bare
// URL for plain-text bodies.
func (p *Personalizer) SubstituteUnsubscribeText(body, unsubscribeURL string) string {
	return p.unsubRe.ReplaceAllLiteralString(body, unsubscribeURL)
}
