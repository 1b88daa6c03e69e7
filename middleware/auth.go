package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"storefront-payment/models"
	"storefront-payment/services/auth"
	"storefront-payment/utils"
)

type contextKey string

const ShopperContextKey contextKey = "shopper"

// TokenValidator is satisfied by auth.JWTService.
type TokenValidator interface {
	ValidateToken(token string) (*models.Shopper, error)
}

// AuthMiddleware only lets logged-in shoppers through.
func AuthMiddleware(validator TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Info("Missing Authorization header", zap.String("remote_addr", r.RemoteAddr))
				utils.SendErrorResponse(w, http.StatusUnauthorized, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.Info("Invalid Authorization header format", zap.String("remote_addr", r.RemoteAddr))
				utils.SendErrorResponse(w, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}

			shopper, err := validator.ValidateToken(parts[1])
			if err != nil {
				logger.Info("Token validation failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))

				message := "Authentication failed"
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					message = "Token expired"
				case errors.Is(err, auth.ErrInvalidToken):
					message = "Invalid token"
				}

				utils.SendErrorResponse(w, http.StatusUnauthorized, message)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithShopper(r.Context(), shopper)))
		})
	}
}

// GetShopperFromContext returns the shopper set by AuthMiddleware, or nil.
func GetShopperFromContext(ctx context.Context) *models.Shopper {
	shopper, ok := ctx.Value(ShopperContextKey).(*models.Shopper)
	if !ok {
		return nil
	}
	return shopper
}

// WithShopper stores shopper the way AuthMiddleware does.
func WithShopper(ctx context.Context, shopper *models.Shopper) context.Context {
	return context.WithValue(ctx, ShopperContextKey, shopper)
}
