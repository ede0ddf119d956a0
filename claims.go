package secure

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the bearer-token payload minted for stateless zones: registered
// claims plus the authority set the Authorization Engine evaluates.
type Claims struct {
	jwt.RegisteredClaims
	Username    string   `json:"preferred_username,omitempty"`
	Authorities []string `json:"authorities,omitempty"`
}

// Principal converts validated claims into the request principal. A token
// that validated is by definition enabled and unlocked; revocation between
// issuance and expiry is out of scope for stateless zones.
func (c *Claims) Principal() *Principal {
	name := c.Username
	if name == "" {
		name = c.Subject
	}
	return NewPrincipal(name, c.Authorities, true, false, false)
}
