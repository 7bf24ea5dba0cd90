package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"opsdash/internal/model"
)

type contextKey string

const identityKey contextKey = "identity"

// Middleware authenticates every request with a Bearer token and places
// the resolved identity in the context. Denials are uniform 401s so a
// probing client learns nothing about accounts.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			unauthorized(w)
			return
		}

		user, err := g.Resolve(r.Context(), token)
		if err != nil {
			if errors.Is(err, model.ErrUnauthenticated) || errors.Is(err, model.ErrAccountDisabled) {
				unauthorized(w)
				return
			}
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RoleMiddleware denies actors below the required role. Must be mounted
// after Middleware.
func (g *Guard) RoleMiddleware(required model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := Identity(r.Context())
			if !ok {
				unauthorized(w)
				return
			}
			if err := g.RequireRole(user, required); err != nil {
				http.Error(w, err.Error(), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Identity extracts the authenticated user from the context.
func Identity(ctx context.Context) (model.User, bool) {
	user, ok := ctx.Value(identityKey).(model.User)
	return user, ok
}

// WithIdentity returns a context carrying the given user. Used by tests.
func WithIdentity(ctx context.Context, user model.User) context.Context {
	return context.WithValue(ctx, identityKey, user)
}

// BearerToken extracts the token from an Authorization header, falling
// back to the token query parameter for WebSocket clients that cannot
// set headers.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, true
		}
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "could not validate credentials", http.StatusUnauthorized)
}
