package payload

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MaxAddressLength is the carrier's limit for names and address lines
	MaxAddressLength = 35

	minPhoneDigits = 7
	maxPhoneDigits = 15
)

var nonDigits = regexp.MustCompile(`\D`)

// NormalizePhone strips formatting and returns 7 to 15 digits. Missing or
// too-short numbers return "" so validation reports them.
func NormalizePhone(phone string) string {
	digits := nonDigits.ReplaceAllString(phone, "")
	if len(digits) < minPhoneDigits {
		return ""
	}
	if len(digits) > maxPhoneDigits {
		digits = digits[:maxPhoneDigits]
	}
	return digits
}

// NormalizePostalCode reformats US ZIP codes as 5 or ZIP+4 digits. Codes for
// other countries are returned trimmed but otherwise verbatim.
func NormalizePostalCode(postalCode, country string) string {
	code := strings.TrimSpace(postalCode)
	if code == "" || !strings.EqualFold(strings.TrimSpace(country), "US") {
		return code
	}

	digits := nonDigits.ReplaceAllString(code, "")
	switch {
	case len(digits) >= 9:
		return digits[:5] + "-" + digits[5:9]
	case len(digits) >= 5:
		return digits[:5]
	default:
		return code
	}
}

// TruncateAddress limits s to max characters, cutting at the last word
// boundary when one exists.
func TruncateAddress(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}

	cut := string(runes[:max])
	if i := strings.LastIndex(cut, " "); i > 0 {
		return strings.TrimSpace(cut[:i])
	}
	return cut
}

// normalizeDecimal renders a decimal string canonically, reporting whether it
// parsed
func normalizeDecimal(value string, places int32) (string, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return "", false
	}
	return d.StringFixed(places), true
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
