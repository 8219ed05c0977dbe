package middleware

import (
	"context"
	"net/http"
	"strings"

	"bistro/internal/model"

	"github.com/rs/zerolog"
)

// TokenParser verifies a bearer token and returns the account it names.
type TokenParser interface {
	Parse(raw string) (*model.Account, error)
}

// Authenticate resolves an optional bearer token into the request's account.
// Requests without an Authorization header pass through anonymously; a
// malformed or invalid token is rejected with 401.
func Authenticate(parser TokenParser, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorised, "Malformed authorization header")
				return
			}

			account, err := parser.Parse(strings.TrimSpace(raw))
			if err != nil {
				logger.Warn().
					Err(err).
					Str("path", r.URL.Path).
					Str("request_id", RequestIDFromContext(r.Context())).
					Msg("rejected bearer token")
				writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorised, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
		})
	}
}

// RequireAccount rejects anonymous requests.
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if AccountFromContext(r.Context()) == nil {
			writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorised, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests not made by an admin account.
func RequireAdmin(next http.Handler) http.Handler {
	return RequireAccount(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !AccountFromContext(r.Context()).IsAdmin() {
			writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// WithAccount stores account in ctx.
func WithAccount(ctx context.Context, account *model.Account) context.Context {
	return context.WithValue(ctx, accountKey, account)
}

// AccountFromContext returns the authenticated account, or nil.
func AccountFromContext(ctx context.Context) *model.Account {
	account, _ := ctx.Value(accountKey).(*model.Account)
	return account
}
