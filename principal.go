package secure

import (
	"fmt"
	"strings"
)

// RolePrefix is prepended to bare role names when evaluating role predicates,
// mirroring the ROLE_ convention of the authority strings in the store.
const RolePrefix = "ROLE_"

// Principal is an immutable snapshot of an authenticated identity, produced
// once authentication succeeds and owned by the request's SecurityContext. A
// nil *Principal means anonymous.
type Principal struct {
	username           string
	authorities        []string
	enabled            bool
	locked             bool
	credentialsExpired bool
}

// NewPrincipal builds a principal snapshot. The authority slice is copied.
func NewPrincipal(username string, authorities []string, enabled, locked, credentialsExpired bool) *Principal {
	granted := make([]string, len(authorities))
	copy(granted, authorities)

	return &Principal{
		username:           username,
		authorities:        granted,
		enabled:            enabled,
		locked:             locked,
		credentialsExpired: credentialsExpired,
	}
}

func (p *Principal) Username() string {
	if p == nil {
		return ""
	}
	return p.username
}

// Authorities returns a copy of the granted authority set.
func (p *Principal) Authorities() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.authorities))
	copy(out, p.authorities)
	return out
}

func (p *Principal) Enabled() bool {
	return p != nil && p.enabled
}

func (p *Principal) Locked() bool {
	return p != nil && p.locked
}

func (p *Principal) CredentialsExpired() bool {
	return p != nil && p.credentialsExpired
}

// Anonymous reports whether the principal represents no authenticated identity.
func (p *Principal) Anonymous() bool {
	return p == nil
}

// Active reports whether the account may be used: enabled, not locked, and
// credentials still valid.
func (p *Principal) Active() bool {
	return p != nil && p.enabled && !p.locked && !p.credentialsExpired
}

// HasAuthority tests exact membership in the granted authority set.
func (p *Principal) HasAuthority(authority string) bool {
	if p == nil {
		return false
	}
	for _, a := range p.authorities {
		if a == authority {
			return true
		}
	}
	return false
}

// HasRole tests membership for a role name, accepting either the bare name
// ("ADMIN") or the prefixed authority ("ROLE_ADMIN").
func (p *Principal) HasRole(role string) bool {
	return p.HasAuthority(roleAuthority(role))
}

// HasAnyRole reports whether the principal holds at least one of the roles.
func (p *Principal) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if p.HasRole(r) {
			return true
		}
	}
	return false
}

func (p *Principal) String() string {
	if p == nil {
		return "anonymous"
	}
	return fmt.Sprintf("user=%s authorities=%v active=%t", p.username, p.authorities, p.Active())
}

func roleAuthority(role string) string {
	if strings.HasPrefix(role, RolePrefix) {
		return role
	}
	return RolePrefix + role
}
