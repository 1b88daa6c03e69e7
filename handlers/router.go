package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"storefront-payment/middleware"
)

// RouterDeps collects what the HTTP surface is built from. RateLimiter and
// Addresses may be nil.
type RouterDeps struct {
	PaymentForm     *PaymentFormHandler
	Addresses       *AddressHandler
	Health          *HealthHandler
	Validator       middleware.TokenValidator
	RateLimiter     *middleware.RateLimiter
	DefaultLanguage string
	Logger          *zap.Logger
}

func NewRouter(deps RouterDeps) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.CORSMiddleware)
	router.Use(middleware.SecurityHeadersMiddleware)
	router.Use(middleware.LoggingMiddleware(deps.Logger))
	router.Use(middleware.LanguageMiddleware(deps.DefaultLanguage))

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", deps.Health.Health).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.AuthMiddleware(deps.Validator, deps.Logger))
	if deps.RateLimiter != nil {
		protected.Use(deps.RateLimiter.RateLimitMiddleware())
	}

	payment := protected.PathPrefix("/payment").Subrouter()
	payment.HandleFunc("/input", deps.PaymentForm.Input).Methods(http.MethodPost, http.MethodOptions)
	payment.HandleFunc("/blur", deps.PaymentForm.Blur).Methods(http.MethodPost, http.MethodOptions)
	payment.HandleFunc("/method", deps.PaymentForm.SelectMethod).Methods(http.MethodPost, http.MethodOptions)
	payment.HandleFunc("/reset", deps.PaymentForm.Reset).Methods(http.MethodPost, http.MethodOptions)
	payment.HandleFunc("/state", deps.PaymentForm.State).Methods(http.MethodGet, http.MethodOptions)
	payment.HandleFunc("/submit", deps.PaymentForm.Submit).Methods(http.MethodPost, http.MethodOptions)

	if deps.Addresses != nil {
		protected.HandleFunc("/addresses", deps.Addresses.Create).Methods(http.MethodPost, http.MethodOptions)
		protected.HandleFunc("/addresses/{id:[0-9]+}/{action}", deps.Addresses.Action).Methods(http.MethodPost, http.MethodOptions)
	}

	return router
}
