package utils

import "strings"

func stripSpaces(cardNumber string) string {
	return strings.Join(strings.Fields(cardNumber), "")
}

// MaskCardNumber keeps only the last four digits, for logs and hand-off payloads.
func MaskCardNumber(cardNumber string) string {
	digits := stripSpaces(cardNumber)
	if len(digits) < 4 {
		return "****"
	}
	return "**** **** **** " + digits[len(digits)-4:]
}

// ValidateLuhn runs the mod-10 checksum over a number that may contain spaces.
func ValidateLuhn(cardNumber string) bool {
	digits := stripSpaces(cardNumber)
	if digits == "" {
		return false
	}

	sum := 0
	isEven := len(digits)%2 == 0

	for i, r := range digits {
		digit := int(r - '0')

		if digit < 0 || digit > 9 {
			return false
		}

		if isEven == (i%2 == 0) {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
	}

	return sum%10 == 0
}
