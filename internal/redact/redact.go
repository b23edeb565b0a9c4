// Package redact implements PII-redaction rules:
// email addresses embedded in free text are masked before they reach logs
// or DLQ envelopes, and long subject lines are truncated.
package redact

import (
	"regexp"
	"strconv"
	"strings"
)

// emailToken matches an X@Y.TLD token where the TLD is at least two
// letters, the shape DLQ envelopes and log lines must scrub (P8).
var emailToken = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// String replaces every email-like token in s with "***@domain.tld",
// preserving the domain so operators can still see which recipient domain
// a log line concerns without exposing the mailbox name (P8).
func String(s string) string {
	return emailToken.ReplaceAllStringFunc(s, func(tok string) string {
		at := strings.IndexByte(tok, '@')
		if at < 0 {
			return tok
		}
		return "***" + tok[at:]
	})
}

// Fields redacts the values of well-known address-bearing keys (to, cc,
// bcc, from, reply_to) in a structured-log field map, in addition to
// scrubbing free text, for the case where an address sits in its own
// field rather than inside a sentence.
func Fields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if s, ok := v.(string); ok {
			out[k] = String(s)
			continue
		}
		out[k] = v
	}
	return out
}

// Subject truncates a subject line longer than 6 characters to its first 3
// visible characters followed by "...[N chars]".
func Subject(subject string) string {
	runes := []rune(subject)
	if len(runes) <= 6 {
		return subject
	}
	return string(runes[:3]) + "...[" + strconv.Itoa(len(runes)) + " chars]"
}
