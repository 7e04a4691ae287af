package middleware

import (
	"encoding/json"
	"net/http"

	apperrors "invitely/pkg/errors"
)

// Authenticator reports whether a remote session is available
type Authenticator interface {
	Authenticated() bool
}

// RequireAuth rejects requests with 401 unless signed in to the remote service
func RequireAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil || !auth.Authenticated() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(apperrors.ToFrontendError(apperrors.ErrAuthRequired))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
