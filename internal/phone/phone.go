// Package phone normalizes Brazilian phone numbers into WhatsApp chat ids.
package phone

import "strings"

const (
	CountryCode = "55"
	UserSuffix  = "@c.us"
)

// Digits strips everything that is not an ASCII digit.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Format normalizes raw and reports whether it matched a known shape.
// Inputs that already carry a server suffix are returned as-is.
//
//	11 digits, subscriber starts with 9  -> 55 + digits
//	10 digits                            -> 55 + digits
//	13 digits starting with 55           -> unchanged
//	anything else                        -> unchanged, ok=false
func Format(raw string) (id string, ok bool) {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "@") {
		return raw, true
	}
	d := Digits(raw)
	switch {
	case len(d) == 11 && d[2] == '9':
		return CountryCode + d + UserSuffix, true
	case len(d) == 10:
		return CountryCode + d + UserSuffix, true
	case len(d) == 13 && strings.HasPrefix(d, CountryCode):
		return d + UserSuffix, true
	default:
		return d + UserSuffix, false
	}
}

// Normalize is Format without the shape report. It never fails.
func Normalize(raw string) string {
	id, _ := Format(raw)
	return id
}

// User returns the part of a chat id before the server suffix.
func User(id string) string {
	if i := strings.IndexByte(id, '@'); i >= 0 {
		return id[:i]
	}
	return id
}
