package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by a verified bearer token. Provider comes from the
// identity provider's "idp" claim when present.
type Claims struct {
	jwt.RegisteredClaims
	Provider string `json:"idp,omitempty"`
}

// UserID derives the stable user identifier: the subject claim prefixed by
// the provider name, so subjects from different providers can never collide.
func (c *Claims) UserID() string {
	provider := c.Provider
	if provider == "" {
		provider = "jwt"
	}
	return provider + "_" + c.Subject
}

// TokenVerifier validates a bearer token and extracts its claims.
type TokenVerifier interface {
	VerifyToken(token string) (*Claims, error)
}
