package phone

import (
	"regexp"
	"strings"
)

// nanpE164 matches +1 followed by a 3-digit area code and 7 subscriber digits.
var nanpE164 = regexp.MustCompile(`^\+1(\d{3})\d{7}$`)

// Normalize converts user-entered numbers to NANP E.164 where possible.
//
// 10 digits get a leading 1, 11 digits starting with 1 are kept. Anything else is
// returned as given when it already starts with '+', or as '+' followed by its digits.
// Normalize never fails; callers validate the result with IsE164 / IsNANP.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	digits := digitsOnly(s)

	switch {
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	case strings.HasPrefix(s, "+"):
		return s
	case digits == "":
		return s
	default:
		return "+" + digits
	}
}

// AreaCode returns the NANP area code of an E.164 number.
// Non-NANP numbers report ok=false; proximity selection only covers NANP.
func AreaCode(e164 string) (string, bool) {
	m := nanpE164.FindStringSubmatch(strings.TrimSpace(e164))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsE164 reports whether s is '+' followed by 8 to 15 digits.
func IsE164(s string) bool {
	if len(s) < 9 || len(s) > 16 || s[0] != '+' {
		return false
	}
	for _, c := range s[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// IsNANP reports whether s is a complete +1 NANP number.
func IsNANP(s string) bool {
	return nanpE164.MatchString(s)
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}
