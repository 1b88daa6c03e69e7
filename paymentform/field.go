package paymentform

import (
	"errors"
	"fmt"
)

// Method is the value of the payment method selector.
type Method string

const (
	MethodCard  Method = "card"
	MethodCheck Method = "check"
)

// IsCard reports whether card fields are required for this method.
func (m Method) IsCard() bool {
	return m == MethodCard
}

// Field identifies one card input. The order is the order of the inputs on the page.
type Field int

const (
	CardNumber Field = iota
	CardName
	Expiry
	CVV
)

// Fields lists every card field in page order.
var Fields = []Field{CardNumber, CardName, Expiry, CVV}

var fieldNames = [...]string{
	CardNumber: "card_number",
	CardName:   "card_name",
	Expiry:     "expiry_date",
	CVV:        "cvv",
}

func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

func (f Field) valid() bool {
	return f >= 0 && int(f) < len(fieldNames)
}

var ErrUnknownField = errors.New("unknown payment field")

// ParseField maps a form input name to its Field.
func ParseField(name string) (Field, error) {
	for i, n := range fieldNames {
		if n == name {
			return Field(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// ErrorKind classifies why a field failed validation.
type ErrorKind int

const (
	Required ErrorKind = iota + 1
	LengthOutOfRange
	NonNumeric
	InvalidCharacters
	TooShort
	BadFormat
	Expired
)

var kindNames = map[ErrorKind]string{
	Required:          "required",
	LengthOutOfRange:  "length_out_of_range",
	NonNumeric:        "non_numeric",
	InvalidCharacters: "invalid_characters",
	TooShort:          "too_short",
	BadFormat:         "bad_format",
	Expired:           "expired",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseErrorKind is the inverse of ErrorKind.String.
func ParseErrorKind(name string) (ErrorKind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// FieldError is the single failure reported by a field validator.
type FieldError struct {
	Field Field
	Kind  ErrorKind
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Kind)
}

// KindOf returns the ErrorKind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

func fail(f Field, k ErrorKind) error {
	return &FieldError{Field: f, Kind: k}
}
