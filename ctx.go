package secure

import (
	"context"

	"github.com/goliatone/go-router"
)

// LocalsSecurityKey is the router-locals key the pipeline stores the resolved
// SecurityContext under after an allow verdict.
const LocalsSecurityKey = "security_context"

var securityCtxKey = &contextKey{"security"}

type contextKey struct {
	name string
}

// SecurityContext is what the pipeline hands downstream after ALLOW: the
// resolved principal (nil = anonymous) and a non-owning session reference
// (nil = sessionless request).
type SecurityContext struct {
	principal *Principal
	session   *Session
}

// NewSecurityContext pairs a principal with its session for one request.
func NewSecurityContext(p *Principal, s *Session) SecurityContext {
	return SecurityContext{principal: p, session: s}
}

func (sc SecurityContext) Principal() *Principal {
	return sc.principal
}

func (sc SecurityContext) Session() *Session {
	return sc.session
}

// Authenticated reports whether a non-anonymous principal is present.
func (sc SecurityContext) Authenticated() bool {
	return !sc.principal.Anonymous()
}

// WithSecurityContext sets the SecurityContext in the given context.
func WithSecurityContext(ctx context.Context, sc SecurityContext) context.Context {
	return context.WithValue(ctx, securityCtxKey, sc)
}

// SecurityFromContext finds the SecurityContext in the standard context.
func SecurityFromContext(ctx context.Context) (SecurityContext, bool) {
	sc, ok := ctx.Value(securityCtxKey).(SecurityContext)
	return sc, ok
}

// SecurityFromRouterContext finds the SecurityContext in the router locals.
func SecurityFromRouterContext(ctx router.Context) (SecurityContext, bool) {
	raw := ctx.Locals(LocalsSecurityKey)
	if raw == nil {
		return SecurityContext{}, false
	}
	sc, ok := raw.(SecurityContext)
	return sc, ok
}
