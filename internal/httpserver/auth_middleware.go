package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"chatup/internal/domain"
	"chatup/internal/security"
)

type contextKey string

const userContextKey contextKey = "currentUser"

// WithUser returns a new context carrying the current user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// CurrentUser extracts the current user from context, if any.
func CurrentUser(r *http.Request) *domain.User {
	if v := r.Context().Value(userContextKey); v != nil {
		if u, ok := v.(*domain.User); ok {
			return u
		}
	}
	return nil
}

// bearerToken reads "Authorization: Bearer <tok>", falling back to the bare
// "token" header older web clients send.
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) > len("Bearer ") && strings.EqualFold(authHeader[:len("Bearer ")], "bearer ") {
		return strings.TrimSpace(authHeader[len("Bearer "):])
	}
	return strings.TrimSpace(r.Header.Get("token"))
}

// AuthMiddleware validates the bearer token and attaches the user to the context.
func AuthMiddleware(tokens *security.TokenService, users domain.UserRepository, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerToken(r)
			if tokenStr == "" {
				writeFail(w, http.StatusUnauthorized, "missing or invalid Authorization header")
				return
			}

			sub, err := tokens.Subject(tokenStr)
			if err != nil {
				writeFail(w, http.StatusUnauthorized, "invalid token")
				return
			}

			user, err := users.GetByID(r.Context(), sub)
			if err != nil {
				log.Error().Err(err).Str("sub", sub).Msg("auth: user lookup failed")
				writeFail(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if user == nil {
				log.Debug().Str("sub", sub).Msg("auth: token for unknown user")
				writeFail(w, http.StatusUnauthorized, "user not found")
				return
			}

			ctx := WithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
