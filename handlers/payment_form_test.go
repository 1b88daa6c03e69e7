package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront-payment/i18n"
	"storefront-payment/models"
	"storefront-payment/services/auth"
	"storefront-payment/services/checkout"
)

type testEnv struct {
	router     *mux.Router
	token      string
	forwarded  []models.PaymentSubmission
	forwardErr error
	cookies    []*http.Cookie
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	jwtService, err := auth.NewJWTService("test-jwt-secret", "urban-loom-storefront")
	require.NoError(t, err)
	token, err := jwtService.GenerateToken(models.Shopper{UserID: 7, Username: "ana", Email: "ana@example.com"}, time.Hour)
	require.NoError(t, err)

	env := &testEnv{token: token}
	forwarder := checkout.ForwarderFunc(func(_ context.Context, s models.PaymentSubmission) error {
		if env.forwardErr != nil {
			return env.forwardErr
		}
		env.forwarded = append(env.forwarded, s)
		return nil
	})

	store := sessions.NewCookieStore([]byte("test-session-secret"))
	pf := NewPaymentFormHandler(store, i18n.MustLoad(), forwarder, zap.NewNop())
	pf.now = func() time.Time { return time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC) }

	ok := PingerFunc(func(context.Context) error { return nil })
	env.router = NewRouter(RouterDeps{
		PaymentForm:     pf,
		Health:          NewHealthHandler(ok, nil),
		Validator:       jwtService,
		DefaultLanguage: "es",
		Logger:          zap.NewNop(),
	})
	return env
}

// do sends a request carrying the cookies of earlier responses.
func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	for _, c := range e.cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		e.setCookie(c)
	}

	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func (e *testEnv) setCookie(c *http.Cookie) {
	for i, old := range e.cookies {
		if old.Name == c.Name {
			e.cookies[i] = c
			return
		}
	}
	e.cookies = append(e.cookies, c)
}

func dataAs(t *testing.T, resp models.APIResponse, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func fieldByName(fields []models.FieldState, name string) models.FieldState {
	for _, f := range fields {
		if f.Field == name {
			return f
		}
	}
	return models.FieldState{}
}

func TestInputFormats(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		field, value, want string
	}{
		{"card_number", "4111111111111111", "4111 1111 1111 1111"},
		{"card_name", "ana maria", "ANA MARIA"},
		{"expiry_date", "1230", "12/30"},
		{"cvv", "12a3", "123"},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			rec, resp := env.do(t, http.MethodPost, "/api/payment/input", models.FieldRequest{Field: tt.field, Value: tt.value})
			require.Equal(t, http.StatusOK, rec.Code)

			var got models.FormattedField
			dataAs(t, resp, &got)
			assert.Equal(t, tt.want, got.Value)
		})
	}
}

func TestInputRejectsUnknownField(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/payment/input", models.FieldRequest{Field: "email", Value: "x"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", resp.Status)
}

func TestPaymentRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	env.token = ""

	rec, _ := env.do(t, http.MethodGet, "/api/payment/state", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBlurStoresStateInSession(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/payment/blur", models.FieldRequest{Field: "cvv", Value: "12"})
	require.Equal(t, http.StatusOK, rec.Code)

	var st models.FieldState
	dataAs(t, resp, &st)
	assert.Equal(t, models.FieldState{
		Field:     "cvv",
		State:     "invalid",
		ErrorCode: "length_out_of_range",
		Message:   "El CVV debe tener 3 o 4 dígitos",
	}, st)

	_, resp = env.do(t, http.MethodPost, "/api/payment/blur", models.FieldRequest{Field: "card_name", Value: "Ana Maria"})
	dataAs(t, resp, &st)
	assert.Equal(t, "valid", st.State)

	_, resp = env.do(t, http.MethodGet, "/api/payment/state", nil)
	var form models.FormState
	dataAs(t, resp, &form)

	assert.Equal(t, "card", form.PaymentMethod)
	require.Len(t, form.Fields, 4)
	assert.Equal(t, "pristine", fieldByName(form.Fields, "card_number").State)
	assert.Equal(t, "valid", fieldByName(form.Fields, "card_name").State)
	assert.Equal(t, "length_out_of_range", fieldByName(form.Fields, "cvv").ErrorCode)
	assert.Equal(t, "El CVV debe tener 3 o 4 dígitos", fieldByName(form.Fields, "cvv").Message)
}

func TestBlurCorrectedFieldBecomesValid(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/payment/blur", models.FieldRequest{Field: "expiry_date", Value: "09/26"})
	_, resp := env.do(t, http.MethodPost, "/api/payment/blur", models.FieldRequest{Field: "expiry_date", Value: "10/26"})

	var st models.FieldState
	dataAs(t, resp, &st)
	assert.Equal(t, models.FieldState{Field: "expiry_date", State: "valid"}, st)
}

func TestBlurMessageFollowsLanguage(t *testing.T) {
	env := newTestEnv(t)

	_, resp := env.do(t, http.MethodPost, "/api/payment/blur?lang=en", models.FieldRequest{Field: "card_number", Value: ""})
	var st models.FieldState
	dataAs(t, resp, &st)
	assert.Equal(t, "required", st.ErrorCode)
	assert.Equal(t, "Card number is required", st.Message)

	// the language cookie sticks without the query parameter
	_, resp = env.do(t, http.MethodGet, "/api/payment/state", nil)
	var form models.FormState
	dataAs(t, resp, &form)
	assert.Equal(t, "Card number is required", fieldByName(form.Fields, "card_number").Message)
}

func TestSelectMethodClearsIndicators(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/payment/blur", models.FieldRequest{Field: "cvv", Value: "1"})

	rec, resp := env.do(t, http.MethodPost, "/api/payment/method", models.MethodRequest{PaymentMethod: "check"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Método de pago actualizado", resp.Message)

	var form models.FormState
	dataAs(t, resp, &form)
	assert.Equal(t, "check", form.PaymentMethod)
	for _, f := range form.Fields {
		assert.Equal(t, "pristine", f.State, f.Field)
		assert.Empty(t, f.Message)
	}

	rec, _ = env.do(t, http.MethodPost, "/api/payment/method", models.MethodRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReset(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/payment/method", models.MethodRequest{PaymentMethod: "check"})

	_, resp := env.do(t, http.MethodPost, "/api/payment/reset", nil)
	assert.Equal(t, "Formulario reiniciado", resp.Message)

	var form models.FormState
	dataAs(t, resp, &form)
	assert.Equal(t, "card", form.PaymentMethod)
}

func TestSubmitBlocked(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/payment/submit", models.SubmitRequest{
		PaymentMethod: "card",
		CardNumber:    "4111 1111 1111 1111",
		CardName:      "Jo",
		ExpiryDate:    "09/26",
		CVV:           "123",
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Revisa los datos de la tarjeta antes de continuar", resp.Message)

	var res models.SubmitResult
	dataAs(t, resp, &res)
	assert.False(t, res.Allowed)
	assert.Equal(t, "card_name", res.Focus)
	assert.Equal(t, "valid", fieldByName(res.Fields, "card_number").State)
	assert.Equal(t, "too_short", fieldByName(res.Fields, "card_name").ErrorCode)
	assert.Equal(t, "expired", fieldByName(res.Fields, "expiry_date").ErrorCode)
	assert.Equal(t, "valid", fieldByName(res.Fields, "cvv").State)
	assert.Empty(t, env.forwarded)
}

func TestSubmitAllowedForwards(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/payment/submit?lang=en", models.SubmitRequest{
		PaymentMethod:     "card",
		CardNumber:        "4111 1111 1111 1111",
		CardName:          "ANA MARIA",
		ExpiryDate:        "10/26",
		CVV:               "1234",
		ShippingAddressID: 12,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Payment sent for processing", resp.Message)

	var res models.SubmitResult
	dataAs(t, resp, &res)
	assert.True(t, res.Allowed)

	require.Len(t, env.forwarded, 1)
	sub := env.forwarded[0]
	assert.Equal(t, res.Reference, sub.Reference)
	assert.Equal(t, 7, sub.Shopper.UserID)
	assert.Equal(t, "**** **** **** 1111", sub.CardNumberMasked)
	assert.True(t, sub.ChecksumOK)
	assert.Equal(t, 12, sub.ShippingAddressID)
	assert.Equal(t, "en", sub.Language)
}

func TestSubmitOtherMethodSkipsCardValidation(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/payment/submit", models.SubmitRequest{PaymentMethod: "check"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, env.forwarded, 1)
	assert.Equal(t, "check", env.forwarded[0].PaymentMethod)
	assert.Empty(t, env.forwarded[0].CardNumber)
}

func TestSubmitUsesSessionMethod(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/payment/method", models.MethodRequest{PaymentMethod: "check"})

	rec, _ := env.do(t, http.MethodPost, "/api/payment/submit", models.SubmitRequest{})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, env.forwarded, 1)
	assert.Equal(t, "check", env.forwarded[0].PaymentMethod)
}

func TestSubmitForwardFailure(t *testing.T) {
	env := newTestEnv(t)
	env.forwardErr = errors.New("storefront down")

	rec, resp := env.do(t, http.MethodPost, "/api/payment/submit", models.SubmitRequest{PaymentMethod: "check"})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "No se pudo enviar el pago, intenta de nuevo", resp.Message)
}

func TestSessionIsPerShopper(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/payment/blur", models.FieldRequest{Field: "cvv", Value: "1"})

	jwtService, err := auth.NewJWTService("test-jwt-secret", "urban-loom-storefront")
	require.NoError(t, err)
	env.token, err = jwtService.GenerateToken(models.Shopper{UserID: 8, Username: "luis"}, time.Hour)
	require.NoError(t, err)

	_, resp := env.do(t, http.MethodGet, "/api/payment/state", nil)
	var form models.FormState
	dataAs(t, resp, &form)
	assert.Equal(t, "pristine", fieldByName(form.Fields, "cvv").State)
}

func TestHealth(t *testing.T) {
	down := PingerFunc(func(context.Context) error { return errors.New("down") })
	up := PingerFunc(func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	NewHealthHandler(up, down).Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	var health models.HealthStatus
	dataAs(t, resp, &health)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "connected", health.Storefront)
	assert.Equal(t, "error", health.Redis)
}
