package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sandeepkv93/device-auth-service/internal/http/response"
	"github.com/sandeepkv93/device-auth-service/internal/observability"
)

type contextKey string

const (
	UserIDContextKey contextKey = "user_id"
)

// Authenticator resolves an access token to the caller's user id.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (uint, error)
}

func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw == "" {
				observability.RecordAccessTokenValidation(r.Context(), "missing", "none")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			userID, err := auth.Authenticate(r.Context(), raw)
			if err != nil {
				response.FromError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

func UserIDFromContext(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(UserIDContextKey).(uint)
	return id, ok
}
