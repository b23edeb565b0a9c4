package attachment

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const maxFilenameLength = 255

// filenameAllowed reports whether r is permitted in a sanitized filename:
// alphanumeric plus '.', '_', '-' ( step 4).
func filenameAllowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.' || r == '_' || r == '-':
		return true
	default:
		return false
	}
}

// SanitizeFilename enforces the strict whitelist, 255-char cap, '..'
// collapse and leading/trailing '.' trim (P7). An empty
// result is replaced with "file_<uuid>".
func SanitizeFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		if filenameAllowed(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	for strings.Contains(out, "..") {
		out = strings.ReplaceAll(out, "..", "_")
	}
	out = strings.Trim(out, ".")
	if len(out) > maxFilenameLength {
		out = out[:maxFilenameLength]
	}
	if out == "" {
		out = "file_" + uuid.NewString()
	}
	return out
}

// SanitizePathComponent enforces the stricter path-component filter used
// for the message-id segment of an attachment key (P6):
// alphanumeric plus '-_.@', max 255 chars, no '..', no leading/trailing '.'.
func SanitizePathComponent(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.' || r == '@':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	for strings.Contains(out, "..") {
		out = strings.ReplaceAll(out, "..", "_")
	}
	out = strings.Trim(out, ".")
	if len(out) > maxFilenameLength {
		out = out[:maxFilenameLength]
	}
	if out == "" {
		out = "unknown"
	}
	return out
}

// dedupeFilename appends "-<index>" before the extension when name has
// already been seen in this batch.
func dedupeFilename(name string, seen map[string]int) string {
	n, ok := seen[name]
	seen[name] = n + 1
	if !ok || n == 0 {
		seen[name] = 1
		return name
	}
	idx := n
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 {
		return name + "-" + strconv.Itoa(idx)
	}
	return name[:dot] + "-" + strconv.Itoa(idx) + name[dot:]
}
