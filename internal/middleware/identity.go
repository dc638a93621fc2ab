package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"palaver/internal/domain"
	"palaver/internal/httputil"
	"palaver/internal/identity"
)

// Identity resolves the caller (bearer token or anonymous cookie) and stores
// the resulting user id in the request context. A present-but-invalid token
// is rejected rather than downgraded to an anonymous identity.
func Identity(resolver *identity.Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := resolver.Resolve(w, r)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthorized) {
					httputil.RespondError(w, http.StatusUnauthorized, "invalid or expired token")
					return
				}
				logger.Error("identity resolution failed", "error", err, "path", r.URL.Path)
				httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			next.ServeHTTP(w, httputil.WithUserID(r, userID))
		})
	}
}
