package handlers

import (
	"encoding/gob"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"storefront-payment/config"
	"storefront-payment/i18n"
	"storefront-payment/middleware"
	"storefront-payment/models"
	"storefront-payment/paymentform"
	"storefront-payment/services/checkout"
	"storefront-payment/utils"
)

const (
	formSessionName = "payment-form"
	snapshotKey     = "snapshot"
	ownerKey        = "user_id"
)

func init() {
	gob.Register(paymentform.Snapshot{})
}

// NewSessionStore builds the cookie store holding the form snapshot. Card
// values never go into it.
func NewSessionStore(cfg config.SessionConfig) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.Secret))
	store.Options = &sessions.Options{
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   cfg.MaxAge,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

type PaymentFormHandler struct {
	store     sessions.Store
	catalog   *i18n.Catalog
	forwarder checkout.Forwarder
	logger    *zap.Logger
	now       func() time.Time
}

func NewPaymentFormHandler(store sessions.Store, catalog *i18n.Catalog, forwarder checkout.Forwarder, logger *zap.Logger) *PaymentFormHandler {
	return &PaymentFormHandler{
		store:     store,
		catalog:   catalog,
		forwarder: forwarder,
		logger:    logger,
		now:       time.Now,
	}
}

// formRequest is one request's view of the form: the component, its inputs
// and the session it was restored from.
type formRequest struct {
	form    *paymentform.Form
	inputs  [4]*paymentform.TextInput
	session *sessions.Session
	lang    string
}

func (fr *formRequest) input(f paymentform.Field) *paymentform.TextInput {
	return fr.inputs[f]
}

// load rebuilds the form for this request from the session snapshot, with
// values as the current field contents.
func (h *PaymentFormHandler) load(r *http.Request, values [4]string) (*formRequest, error) {
	fr := &formRequest{lang: middleware.LanguageFromContext(r.Context())}
	for i := range fr.inputs {
		fr.inputs[i] = paymentform.NewTextInput(values[i])
	}

	form, err := paymentform.New(paymentform.Inputs{
		CardNumber: fr.inputs[paymentform.CardNumber],
		CardName:   fr.inputs[paymentform.CardName],
		Expiry:     fr.inputs[paymentform.Expiry],
		CVV:        fr.inputs[paymentform.CVV],
	},
		paymentform.WithClock(h.now),
		paymentform.WithMessages(h.catalog.Messages(fr.lang)),
	)
	if err != nil {
		return nil, err
	}
	fr.form = form

	session, err := h.store.Get(r, formSessionName)
	if err != nil {
		// undecodable cookie, start over with the fresh session gorilla hands back
		h.logger.Info("Discarding unreadable payment form session", zap.Error(err))
	}
	fr.session = session

	shopper := middleware.GetShopperFromContext(r.Context())
	owner, _ := session.Values[ownerKey].(int)
	if shopper != nil && owner != shopper.UserID {
		return fr, nil
	}

	if snap, ok := session.Values[snapshotKey].(paymentform.Snapshot); ok {
		if err := form.Restore(snap); err != nil {
			h.logger.Warn("Ignoring payment form snapshot", zap.Error(err))
		}
	}
	return fr, nil
}

func (h *PaymentFormHandler) save(w http.ResponseWriter, r *http.Request, fr *formRequest) error {
	if shopper := middleware.GetShopperFromContext(r.Context()); shopper != nil {
		fr.session.Values[ownerKey] = shopper.UserID
	}
	fr.session.Values[snapshotKey] = fr.form.Snapshot()
	return fr.session.Save(r, w)
}

func (h *PaymentFormHandler) fieldState(fr *formRequest, f paymentform.Field) models.FieldState {
	st := fr.form.State(f)
	out := models.FieldState{
		Field: f.String(),
		State: st.State.String(),
	}
	if st.State == paymentform.Invalid {
		out.ErrorCode = st.Reason.String()
		out.Message = fr.input(f).Message()
	}
	return out
}

func (h *PaymentFormHandler) formState(fr *formRequest) models.FormState {
	fields := make([]models.FieldState, 0, len(paymentform.Fields))
	for _, f := range paymentform.Fields {
		fields = append(fields, h.fieldState(fr, f))
	}
	return models.FormState{
		PaymentMethod: string(fr.form.Method()),
		Fields:        fields,
	}
}

func (h *PaymentFormHandler) decodeField(w http.ResponseWriter, r *http.Request) (paymentform.Field, string, bool) {
	var req models.FieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Info("Error decoding request body", zap.Error(err))
		utils.SendErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return 0, "", false
	}

	field, err := paymentform.ParseField(req.Field)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, err.Error())
		return 0, "", false
	}
	return field, req.Value, true
}

func valuesWith(f paymentform.Field, v string) [4]string {
	var values [4]string
	values[f] = v
	return values
}

func (h *PaymentFormHandler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, zap.Error(err), zap.String("request_id", middleware.RequestIDFromContext(r.Context())))
	utils.SendErrorResponse(w, http.StatusInternalServerError, "Payment form error")
}

// Input formats a field as it is typed. It does not touch the field's state.
func (h *PaymentFormHandler) Input(w http.ResponseWriter, r *http.Request) {
	field, value, ok := h.decodeField(w, r)
	if !ok {
		return
	}

	fr, err := h.load(r, valuesWith(field, value))
	if err != nil {
		h.fail(w, r, "Error building payment form", err)
		return
	}
	fr.form.Input(field)

	utils.SendSuccessResponse(w, models.APIResponse{
		Status: "success",
		Data: models.FormattedField{
			Field: field.String(),
			Value: fr.input(field).Value(),
		},
	})
}

// Blur validates the field that lost focus and remembers its state.
func (h *PaymentFormHandler) Blur(w http.ResponseWriter, r *http.Request) {
	field, value, ok := h.decodeField(w, r)
	if !ok {
		return
	}

	fr, err := h.load(r, valuesWith(field, value))
	if err != nil {
		h.fail(w, r, "Error building payment form", err)
		return
	}

	// a failed validation is a normal outcome, reported in the field state
	_ = fr.form.Blur(field)

	if err := h.save(w, r, fr); err != nil {
		h.fail(w, r, "Error saving payment form session", err)
		return
	}

	utils.SendSuccessResponse(w, models.APIResponse{
		Status: "success",
		Data:   h.fieldState(fr, field),
	})
}

func (h *PaymentFormHandler) SelectMethod(w http.ResponseWriter, r *http.Request) {
	var req models.MethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Info("Error decoding request body", zap.Error(err))
		utils.SendErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PaymentMethod == "" {
		utils.SendErrorResponse(w, http.StatusBadRequest, "Missing payment_method")
		return
	}

	fr, err := h.load(r, [4]string{})
	if err != nil {
		h.fail(w, r, "Error building payment form", err)
		return
	}
	fr.form.SelectMethod(paymentform.Method(req.PaymentMethod))

	if err := h.save(w, r, fr); err != nil {
		h.fail(w, r, "Error saving payment form session", err)
		return
	}

	utils.SendSuccessResponse(w, models.APIResponse{
		Status:  "success",
		Message: h.catalog.Lookup(fr.lang, "payment.method.updated"),
		Data:    h.formState(fr),
	})
}

func (h *PaymentFormHandler) Reset(w http.ResponseWriter, r *http.Request) {
	fr, err := h.load(r, [4]string{})
	if err != nil {
		h.fail(w, r, "Error building payment form", err)
		return
	}
	fr.form.Reset()

	if err := h.save(w, r, fr); err != nil {
		h.fail(w, r, "Error saving payment form session", err)
		return
	}

	utils.SendSuccessResponse(w, models.APIResponse{
		Status:  "success",
		Message: h.catalog.Lookup(fr.lang, "payment.form.reset"),
		Data:    h.formState(fr),
	})
}

func (h *PaymentFormHandler) State(w http.ResponseWriter, r *http.Request) {
	fr, err := h.load(r, [4]string{})
	if err != nil {
		h.fail(w, r, "Error building payment form", err)
		return
	}

	utils.SendSuccessResponse(w, models.APIResponse{
		Status: "success",
		Data:   h.formState(fr),
	})
}

// Submit runs the aggregate validation for card payments. A blocked submit
// answers 422 with every field state and the field that got focus; an
// allowed one is handed off and answers with the submission reference.
func (h *PaymentFormHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Info("Error decoding request body", zap.Error(err))
		utils.SendErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	shopper := middleware.GetShopperFromContext(r.Context())
	if shopper == nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	fr, err := h.load(r, [4]string{req.CardNumber, req.CardName, req.ExpiryDate, req.CVV})
	if err != nil {
		h.fail(w, r, "Error building payment form", err)
		return
	}
	if req.PaymentMethod != "" {
		fr.form.SelectMethod(paymentform.Method(req.PaymentMethod))
	}
	req.PaymentMethod = string(fr.form.Method())

	res := fr.form.Submit()
	if !res.Allowed {
		if err := h.save(w, r, fr); err != nil {
			h.fail(w, r, "Error saving payment form session", err)
			return
		}

		h.logger.Info("Payment submit blocked",
			zap.Int("user_id", shopper.UserID),
			zap.Int("invalid_fields", len(res.Errors)),
			zap.String("focus", res.Focus.String()),
		)
		utils.SendJSON(w, http.StatusUnprocessableEntity, models.APIResponse{
			Status:  "error",
			Message: h.catalog.Lookup(fr.lang, "payment.submit.blocked"),
			Data: models.SubmitResult{
				Allowed: false,
				Focus:   res.Focus.String(),
				Fields:  h.formState(fr).Fields,
			},
		})
		return
	}

	submission := checkout.BuildSubmission(req, *shopper, fr.lang, h.now())
	if err := h.forwarder.Forward(r.Context(), submission); err != nil {
		h.logger.Error("Error forwarding payment submission",
			zap.String("reference", submission.Reference),
			zap.String("card", submission.CardNumberMasked),
			zap.Error(err),
		)
		utils.SendErrorResponse(w, http.StatusBadGateway, h.catalog.Lookup(fr.lang, "payment.submit.failed"))
		return
	}

	// the submission left; the next visit starts from a clean form
	fr.form.Reset()
	if err := h.save(w, r, fr); err != nil {
		h.logger.Warn("Error clearing payment form session", zap.Error(err))
	}

	h.logger.Info("Payment submit accepted",
		zap.Int("user_id", shopper.UserID),
		zap.String("reference", submission.Reference),
		zap.String("method", submission.PaymentMethod),
	)
	utils.SendSuccessResponse(w, models.APIResponse{
		Status:  "success",
		Message: h.catalog.Lookup(fr.lang, "payment.submit.accepted"),
		Data: models.SubmitResult{
			Allowed:   true,
			Reference: submission.Reference,
		},
	})
}
