package middleware

import (
	"context"
	"net/http"

	"storefront-payment/i18n"
)

const (
	LanguageContextKey contextKey = "language"
	LanguageCookie                = "user_language"
	languageCookieMaxAge          = 365 * 24 * 60 * 60
)

// LanguageMiddleware resolves the shopper's language and remembers an
// explicit ?lang= choice in a cookie.
func LanguageMiddleware(defaultLanguage string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query := r.URL.Query().Get("lang")

			var cookie string
			if c, err := r.Cookie(LanguageCookie); err == nil {
				cookie = c.Value
			}

			lang := i18n.Negotiate(query, cookie, r.Header.Get("Accept-Language"), defaultLanguage)

			if query != "" && i18n.Normalize(query) == lang {
				http.SetCookie(w, &http.Cookie{
					Name:     LanguageCookie,
					Value:    lang,
					Path:     "/",
					MaxAge:   languageCookieMaxAge,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), LanguageContextKey, lang)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LanguageFromContext falls back to Spanish, the storefront's default.
func LanguageFromContext(ctx context.Context) string {
	if lang, ok := ctx.Value(LanguageContextKey).(string); ok && lang != "" {
		return lang
	}
	return i18n.Spanish
}
