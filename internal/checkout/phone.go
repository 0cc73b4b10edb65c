package checkout

import "strings"

// NormalizePhone reduces raw input to 10 US digits. An 11-digit number with
// a leading country code of 1 is accepted.
func NormalizePhone(raw string) (string, error) {
	digits := onlyDigits(raw)
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return "", ErrInvalidPhone
	}
	return digits, nil
}

// E164 formats 10 normalized digits for the backend.
func E164(digits string) string {
	return "+1" + digits
}

// FormatPhone renders 10 digits as (317) 555-0100.
func FormatPhone(digits string) string {
	if len(digits) != 10 {
		return digits
	}
	return "(" + digits[:3] + ") " + digits[3:6] + "-" + digits[6:]
}

func onlyDigits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
