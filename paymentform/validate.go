package paymentform

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	cardNumberMinLen = 13
	cardNumberMaxLen = 19
	cardNameMinLen   = 3
	cvvMinLen        = 3
	cvvMaxLen        = 4
	expiryLen        = len("MM/YY")
)

var (
	allDigitsRe = regexp.MustCompile(`^\d+$`)
	expiryRe    = regexp.MustCompile(`^(\d{2})/(\d{2})$`)
)

// stripSpace drops every Unicode space, NBSP and friends included, as
// browsers do for pasted card numbers.
func stripSpace(value string) string {
	return strings.Join(strings.Fields(value), "")
}

// nameRune reports whether r may appear in a cardholder name: ASCII letters
// and any Unicode space.
func nameRune(r rune) bool {
	return ('A' <= r && r <= 'Z') || ('a' <= r && r <= 'z') || unicode.IsSpace(r)
}

// ValidateCardNumber checks the number with every whitespace character removed.
func ValidateCardNumber(value string) error {
	v := stripSpace(value)
	n := utf8.RuneCountInString(v)

	if n == 0 {
		return fail(CardNumber, Required)
	}
	if n < cardNumberMinLen || n > cardNumberMaxLen {
		return fail(CardNumber, LengthOutOfRange)
	}
	if !allDigitsRe.MatchString(v) {
		return fail(CardNumber, NonNumeric)
	}
	return nil
}

// ValidateCardName accepts letters and spaces, at least three characters once trimmed.
func ValidateCardName(value string) error {
	v := strings.TrimSpace(value)
	n := utf8.RuneCountInString(v)

	if n == 0 {
		return fail(CardName, Required)
	}
	if n < cardNameMinLen {
		return fail(CardName, TooShort)
	}
	if strings.IndexFunc(v, func(r rune) bool { return !nameRune(r) }) >= 0 {
		return fail(CardName, InvalidCharacters)
	}
	return nil
}

// ValidateExpiry validates an MM/YY date against the current month.
func ValidateExpiry(value string) error {
	return ValidateExpiryAt(value, time.Now())
}

// ValidateExpiryAt validates an MM/YY date against the month of now.
// A card expiring in the current month is still accepted.
func ValidateExpiryAt(value string, now time.Time) error {
	v := strings.TrimSpace(value)

	if v == "" {
		return fail(Expiry, Required)
	}
	if utf8.RuneCountInString(v) != expiryLen {
		return fail(Expiry, BadFormat)
	}

	m := expiryRe.FindStringSubmatch(v)
	if m == nil {
		return fail(Expiry, BadFormat)
	}
	month, _ := strconv.Atoi(m[1])
	yy, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return fail(Expiry, BadFormat)
	}

	year := 2000 + yy
	if year < now.Year() || (year == now.Year() && month < int(now.Month())) {
		return fail(Expiry, Expired)
	}
	return nil
}

// ValidateCVV accepts three or four digits.
func ValidateCVV(value string) error {
	v := strings.TrimSpace(value)
	n := utf8.RuneCountInString(v)

	if n == 0 {
		return fail(CVV, Required)
	}
	if n < cvvMinLen || n > cvvMaxLen {
		return fail(CVV, LengthOutOfRange)
	}
	if !allDigitsRe.MatchString(v) {
		return fail(CVV, NonNumeric)
	}
	return nil
}

// Validate runs the validator of f against value using now for the expiry check.
func Validate(f Field, value string, now time.Time) error {
	switch f {
	case CardNumber:
		return ValidateCardNumber(value)
	case CardName:
		return ValidateCardName(value)
	case Expiry:
		return ValidateExpiryAt(value, now)
	case CVV:
		return ValidateCVV(value)
	}
	return ErrUnknownField
}
