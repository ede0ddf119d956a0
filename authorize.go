package secure

// Decision is the authorization verdict for one (principal, requirement) pair.
type Decision uint8

const (
	// DecisionAllow passes the request on to application logic.
	DecisionAllow Decision = iota
	// DecisionDeny rejects with 403; the principal is known but insufficient.
	DecisionDeny
	// DecisionRequiresAuth means no usable principal yet; prompt for
	// authentication (login redirect or 401 challenge depending on the zone).
	DecisionRequiresAuth
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionDeny:
		return "deny"
	case DecisionRequiresAuth:
		return "requires_auth"
	default:
		return "unknown"
	}
}

// Authorize evaluates a requirement against a principal (nil = anonymous).
// Pure function: no side effects, same inputs always yield the same verdict.
//
// An anonymous principal failing anything but permitAll gets requires_auth.
// An authenticated principal that is disabled, locked, or holds expired
// credentials is denied outright, as is an active principal missing a
// required role.
func Authorize(p *Principal, req Requirement) Decision {
	if req.kind == requirePermitAll {
		return DecisionAllow
	}

	if p.Anonymous() {
		return DecisionRequiresAuth
	}

	if !p.Active() {
		return DecisionDeny
	}

	switch req.kind {
	case requireAuthenticated:
		return DecisionAllow
	case requireRole, requireAnyRole:
		if p.HasAnyRole(req.roles...) {
			return DecisionAllow
		}
		return DecisionDeny
	default:
		return DecisionDeny
	}
}
