package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/crrserver/core/internal/apperror"
	"github.com/crrserver/core/internal/authsvc"
)

// contextKey is an unexported type for this package's context keys, generalized from the
// teacher's auth middleware so a plain string key can't collide with another package's.
type contextKey string

const identityKey contextKey = "identity"

// RequireIdentity resolves the request's bearer token via authsvc.Service.Authenticate and
// stores the resulting Identity in the request context; a request with no valid credential is
// rejected with 401 before it reaches the handler.
func RequireIdentity(auth *authsvc.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := auth.Authenticate(r)
			if err != nil {
				var appErr *apperror.AppError
				if errors.As(err, &appErr) && errors.Is(appErr.Err, apperror.ErrUnauthorized) {
					http.Error(w, `{"error":"unauthorized","message":"`+appErr.Message+`"}`, http.StatusUnauthorized)
					return
				}
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), identityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext retrieves the Identity RequireIdentity stored, for handlers that need to
// resolve per-database Permissions or grant first-use ownership.
func IdentityFromContext(ctx context.Context) (*authsvc.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*authsvc.Identity)
	return id, ok
}
