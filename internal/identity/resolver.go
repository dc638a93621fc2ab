package identity

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"palaver/internal/auth"
)

// anonCookie holds the identifier issued to visitors without a bearer token.
const anonCookie = "palaver_uid"

const anonCookieMaxAge = 365 * 24 * 60 * 60

// Resolver derives a stable per-user identifier for each request.
//
// Authenticated requests resolve to "<provider>_<subject>" from the verified
// token. Anonymous requests get a random identifier on first contact,
// persisted in a cookie; subsequent requests return the same identifier for
// the cookie's lifetime.
type Resolver struct {
	verifier auth.TokenVerifier // nil when bearer auth is not configured
	logger   *slog.Logger
}

// NewResolver creates a resolver. verifier may be nil, in which case every
// request is treated as anonymous.
func NewResolver(verifier auth.TokenVerifier, logger *slog.Logger) *Resolver {
	return &Resolver{
		verifier: verifier,
		logger:   logger,
	}
}

// Resolve returns the user identifier for the request, issuing and setting
// an anonymous cookie when needed. A present-but-invalid bearer token is an
// error; it never silently downgrades to a fresh anonymous identity.
func (r *Resolver) Resolve(w http.ResponseWriter, req *http.Request) (string, error) {
	if token := bearerToken(req); token != "" && r.verifier != nil {
		claims, err := r.verifier.VerifyToken(token)
		if err != nil {
			return "", err
		}
		return claims.UserID(), nil
	}

	if c, err := req.Cookie(anonCookie); err == nil && uuid.Validate(c.Value) == nil {
		return c.Value, nil
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     anonCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   anonCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	r.logger.Debug("issued anonymous identity", "user_id", id)
	return id, nil
}

func bearerToken(req *http.Request) string {
	header := req.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}
