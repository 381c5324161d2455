package domain

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Recipient is a stable identity keyed by normalized email address. The
// attribute map feeds placeholder substitution; the disabled flag is set by
// bounce processing and unsubscribes.
type Recipient struct {
	ID         uuid.UUID
	Email      string
	Disabled   bool
	Attributes map[string]string
}

// Attribute resolves a personalization attribute. The second return value
// distinguishes a missing key from an empty value.
func (r *Recipient) Attribute(key string) (string, bool) {
	v, ok := r.Attributes[key]
	return v, ok
}

// NormalizeEmail lower-cases and trims an address to its canonical identity
// form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail performs basic structural email validation.
func ValidateEmail(email string) bool {
	email = strings.TrimSpace(email)
	if len(email) < 3 || len(email) > 254 {
		return false
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}

	local, domain := parts[0], parts[1]
	if len(local) == 0 || len(local) > 64 {
		return false
	}
	if len(domain) == 0 || len(domain) > 253 {
		return false
	}
	if !strings.Contains(domain, ".") {
		return false
	}

	_, err := url.Parse("mailto:" + email)
	return err == nil
}
