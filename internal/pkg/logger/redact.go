package logger

import "strings"

// RedactEmail masks a recipient address so log output never carries a
// full identity. Only the first two characters of the local part and the
// domain survive: "ada.l@example.com" becomes "ad***@example.com".
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***@***"
	}
	local, host := email[:at], email[at+1:]
	if len(local) <= 2 {
		return "***@" + host
	}
	return local[:2] + "***@" + host
}
