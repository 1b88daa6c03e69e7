package models

import "time"

// FieldRequest carries one input or blur event.
type FieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type MethodRequest struct {
	PaymentMethod string `json:"payment_method"`
}

// SubmitRequest is the payment form as the browser submits it.
type SubmitRequest struct {
	PaymentMethod     string `json:"payment_method"`
	CardNumber        string `json:"card_number"`
	CardName          string `json:"card_name"`
	ExpiryDate        string `json:"expiry_date"`
	CVV               string `json:"cvv"`
	ShippingAddressID int    `json:"shipping_address_id,omitempty"`
}

type FormattedField struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// FieldState is the rendered state of one card field.
type FieldState struct {
	Field     string `json:"field"`
	State     string `json:"state"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

type FormState struct {
	PaymentMethod string       `json:"payment_method"`
	Fields        []FieldState `json:"fields"`
}

// SubmitResult is returned for both blocked and accepted submissions.
type SubmitResult struct {
	Allowed   bool         `json:"allowed"`
	Focus     string       `json:"focus,omitempty"`
	Fields    []FieldState `json:"fields,omitempty"`
	Reference string       `json:"reference,omitempty"`
}

// Shopper is the authenticated storefront user behind a request.
type Shopper struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type HealthStatus struct {
	Status     string `json:"status"`
	Time       string `json:"time"`
	Storefront string `json:"storefront"`
	Redis      string `json:"redis,omitempty"`
	Uptime     string `json:"uptime"`
	GoVersion  string `json:"go_version"`
}

// PaymentSubmission is what leaves this service once a submit is allowed.
type PaymentSubmission struct {
	Reference         string    `json:"reference"`
	PaymentMethod     string    `json:"payment_method"`
	Shopper           Shopper   `json:"shopper"`
	CardNumber        string    `json:"card_number,omitempty"`
	CardNumberMasked  string    `json:"card_number_masked,omitempty"`
	CardName          string    `json:"card_name,omitempty"`
	ExpiryDate        string    `json:"expiry_date,omitempty"`
	CVV               string    `json:"cvv,omitempty"`
	ChecksumOK        bool      `json:"checksum_ok"`
	ShippingAddressID int       `json:"shipping_address_id,omitempty"`
	Language          string    `json:"language"`
	SubmittedAt       time.Time `json:"submitted_at"`
}
