// Package identity holds the pure input-normalization and identity
// allocation pieces of registration: username sanitization, email
// canonicalization and discriminator assignment.
package identity

import (
	"net/mail"
	"strings"
	"unicode"
)

// freeMailDomains are providers known to ignore dots in the local part and to
// discard anything after a "+". Addresses on these domains are collapsed so
// cosmetic variants of one mailbox cannot evade the duplicate-email check.
var freeMailDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
}

// SanitizeUsername strips control and format characters (backspace, newline,
// zero-width points and the rest of Unicode Cc/Cf) without touching visible
// characters. Length limits are the validation layer's job, not ours.
func SanitizeUsername(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, raw)
}

// CanonicalizeEmail normalizes raw into the form stored and compared for
// duplicate detection. For recognized free-mail domains the local part loses
// its dots and any "+tag" suffix; every other domain passes through
// unchanged, case preserved. Returns ok=false when raw does not parse as an
// address at all.
func CanonicalizeEmail(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		// reject display-name forms; only a bare address is an email here
		return "", false
	}

	at := strings.LastIndex(raw, "@")
	if at <= 0 || at == len(raw)-1 {
		return "", false
	}
	local, domain := raw[:at], raw[at+1:]

	if !freeMailDomains[strings.ToLower(domain)] {
		return raw, true
	}

	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	local = strings.ReplaceAll(local, ".", "")
	if local == "" {
		return "", false
	}
	return local + "@" + domain, true
}
