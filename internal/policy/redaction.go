// Package policy applies data-handling rules at the service boundaries.
// Learner messages are stored verbatim (edit flows must round-trip the exact
// text), so redaction is applied only where text leaves the trust boundary:
// server logs.
package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Run card redaction before phone to avoid card numbers being classified as phone.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// LogSafe renders an error for logging with PII masked. Errors bubbling out
// of the pipeline can embed request fields (emails in lookup failures, raw
// model text), so everything logged at the handler level passes through here.
func LogSafe(err error) string {
	if err == nil {
		return ""
	}
	out, _ := RedactPII(err.Error())
	return out
}
