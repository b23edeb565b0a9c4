package email

import (
	"strings"

	"golang.org/x/net/idna"
)

// SplitAddress splits an email address into local-part and domain. It does
// not special-case the bare "postmaster" mailbox, since this system only
// ever deals with fully qualified addresses.
func SplitAddress(addr string) (local, domain string, ok bool) {
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 || at == len(addr)-1 {
		return "", "", false
	}
	return addr[:at], addr[at+1:], true
}

// Domain returns the lowercased domain part of addr, or "" if addr has no
// '@'. Used by the security gate's sender-domain allowlist and the
// inbound envelope's metadata.domain, both case-insensitive.
func Domain(addr string) string {
	_, domain, ok := SplitAddress(addr)
	if !ok {
		return ""
	}
	return strings.ToLower(domain)
}

// ValidAddress reports whether addr conforms to the email-address grammar
// required by OutboundRequest.email.from: non-empty local
// part, non-empty domain, and a syntactically valid (IDNA-encodable)
// domain label set.
func ValidAddress(addr string) bool {
	local, domain, ok := SplitAddress(addr)
	if !ok || local == "" {
		return false
	}
	return validDomain(domain)
}

func validDomain(domain string) bool {
	if domain == "" || len(domain) > 255 {
		return false
	}
	if strings.HasPrefix(domain, ".") || strings.Contains(domain, "..") {
		return false
	}
	ascii, err := idna.ToASCII(domain)
	if err != nil {
		return false
	}
	for _, label := range strings.Split(ascii, ".") {
		if label == "" || len(label) > 64 {
			return false
		}
	}
	return true
}

// ExtractApp implements the app-extraction rule (P3):
// extract_app(local@domain) yields (x, true) iff local starts with '_',
// with x = local[1:].
func ExtractApp(addr string) (app string, ok bool) {
	local, _, split := SplitAddress(addr)
	if !split || local == "" || local[0] != '_' {
		return "", false
	}
	rest := local[1:]
	if rest == "" {
		return "", false
	}
	return rest, true
}
