package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	apperrors "invitely/pkg/errors"
)

// ViewerState reports whether the project is presented read-only
type ViewerState interface {
	ViewerMode() bool
}

// ReadOnly rejects mutating requests with 403 while the viewer is in
// read-only mode. Paths with one of the allow prefixes always pass.
func ReadOnly(state ViewerState, allow ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) || !state.ViewerMode() || allowed(r.URL.Path, allow) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(apperrors.ToFrontendError(apperrors.ErrViewerMode))
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func allowed(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
