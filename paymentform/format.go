package paymentform

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonDigitRe   = regexp.MustCompile(`[^0-9]`)
	digitRunRe   = regexp.MustCompile(`\d{4,16}`)
	upper        = cases.Upper(language.Und)
)

func digitsOnly(raw string) string {
	return nonDigitRe.ReplaceAllString(whitespaceRe.ReplaceAllString(raw, ""), "")
}

// FormatCardNumber groups the first run of 4 to 16 digits in blocks of four.
// Input without such a run is returned unchanged so partial typing survives.
func FormatCardNumber(raw string) string {
	match := digitRunRe.FindString(digitsOnly(raw))
	if match == "" {
		return raw
	}

	parts := make([]string, 0, 4)
	for i := 0; i < len(match); i += 4 {
		end := i + 4
		if end > len(match) {
			end = len(match)
		}
		parts = append(parts, match[i:end])
	}
	return strings.Join(parts, " ")
}

// FormatExpiry applies the MM/YY mask.
func FormatExpiry(raw string) string {
	v := digitsOnly(raw)
	if len(v) < 2 {
		return v
	}
	if len(v) > 4 {
		v = v[:4]
	}
	return v[:2] + "/" + v[2:]
}

// FormatCardName upper-cases the cardholder name as it is typed.
func FormatCardName(raw string) string {
	return upper.String(raw)
}

// FormatCVV drops everything but digits.
func FormatCVV(raw string) string {
	return nonDigitRe.ReplaceAllString(raw, "")
}

// Format applies the input-time formatter of the given field.
func Format(f Field, raw string) string {
	switch f {
	case CardNumber:
		return FormatCardNumber(raw)
	case CardName:
		return FormatCardName(raw)
	case Expiry:
		return FormatExpiry(raw)
	case CVV:
		return FormatCVV(raw)
	}
	return raw
}
