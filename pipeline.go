package secure

import (
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-secure/middleware/csrf"
)

// DefaultSessionCookieName carries the session ID between requests.
const DefaultSessionCookieName = "SESSION"

// LocalsCSRFToken is the router-locals key the pipeline stores the current
// CSRF token under so templates can embed it.
const LocalsCSRFToken = "csrf_token"

// Pipeline dispatches each request to the first zone whose prefix matches and
// runs the fixed stage order inside it: session resolution, CSRF validation,
// authentication extraction, authorization, outcome. Requests matching no
// registered zone fall back to a require-authenticated default.
//
// Zones are compiled and validated when the pipeline is created; zone prefixes
// must not overlap so that exactly one zone can claim any path.
type Pipeline struct {
	zones      []*Zone
	fallback   *Zone
	sessions   *Manager
	authn      *Authenticator
	guard      *csrf.Guard
	tokens     *TokenService
	bearer     BearerValidator
	cookieName string
	logger     Logger
	now        func() time.Time
}

// NewPipeline compiles the zones and wires the pipeline. Configuration errors
// like overlapping prefixes or invalid rule patterns surface here, at startup.
func NewPipeline(authn *Authenticator, sessions *Manager, zones ...*Zone) (*Pipeline, error) {
	if authn == nil {
		return nil, goerrors.New("pipeline requires an authenticator", goerrors.CategoryValidation)
	}
	if sessions == nil {
		return nil, goerrors.New("pipeline requires a session manager", goerrors.CategoryValidation)
	}
	if len(zones) == 0 {
		return nil, goerrors.New("pipeline requires at least one zone", goerrors.CategoryValidation)
	}

	p := &Pipeline{
		zones:      zones,
		sessions:   sessions,
		authn:      authn,
		guard:      csrf.New(),
		cookieName: DefaultSessionCookieName,
		logger:     defLogger{},
		now:        time.Now,
	}

	for _, z := range zones {
		if err := z.compile(p.logger); err != nil {
			return nil, err
		}
	}

	if err := checkZoneOverlap(zones); err != nil {
		return nil, err
	}

	fallback := NewZone("default", "/")
	if err := fallback.compile(p.logger); err != nil {
		return nil, err
	}
	p.fallback = fallback

	return p, nil
}

func (p *Pipeline) WithLogger(l Logger) *Pipeline {
	if l != nil {
		p.logger = l
	}
	return p
}

// WithCSRFGuard replaces the default guard, e.g. to pin the signing key or
// rename the header and cookie.
func (p *Pipeline) WithCSRFGuard(g *csrf.Guard) *Pipeline {
	if g != nil {
		p.guard = g
	}
	return p
}

// WithTokenService enables local bearer token minting and validation for
// stateless zones.
func (p *Pipeline) WithTokenService(ts *TokenService) *Pipeline {
	if ts != nil {
		p.tokens = ts
	}
	return p
}

// WithBearerValidator accepts externally issued bearer tokens, e.g. a
// JWKSValidator against an identity provider.
func (p *Pipeline) WithBearerValidator(v BearerValidator) *Pipeline {
	if v != nil {
		p.bearer = v
	}
	return p
}

func (p *Pipeline) WithSessionCookieName(name string) *Pipeline {
	if name != "" {
		p.cookieName = name
	}
	return p
}

// WithConfig applies cross-zone options from a Config provider. Apply before
// WithCSRFGuard when pinning a guard, the CSRF names here rebuild it.
func (p *Pipeline) WithConfig(cfg Config) *Pipeline {
	if cfg == nil {
		return p
	}
	p.WithSessionCookieName(cfg.GetSessionCookieName())
	p.sessions.WithMaxIdle(cfg.GetSessionMaxIdle())
	p.guard = csrf.New(csrf.Config{
		HeaderName:    cfg.GetCSRFHeaderName(),
		FormFieldName: cfg.GetCSRFFieldName(),
	})
	return p
}

// WithClock injects a custom clock (useful for tests).
func (p *Pipeline) WithClock(clock func() time.Time) *Pipeline {
	if clock != nil {
		p.now = clock
	}
	return p
}

// Middleware returns the request handler chain link. Register it before the
// application routes; requests only reach them on an allow verdict.
func (p *Pipeline) Middleware() router.MiddlewareFunc {
	for _, z := range p.zones {
		if z.tokenEndpoint != "" && p.tokens == nil {
			panic("secure: zone " + z.name + " declares a token endpoint but the pipeline has no token service")
		}
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			return p.serve(ctx, next)
		}
	}
}

func (p *Pipeline) serve(ctx router.Context, next router.HandlerFunc) error {
	method := strings.ToUpper(ctx.Method())
	path := ctx.Path()
	zone := p.selectZone(path)

	sess, err := p.resolveSession(ctx, zone)
	if err != nil {
		return p.internalError(ctx, zone, err)
	}

	if csrf.IsProtectedMethod(method) && !zone.csrfExemptPath(method, path) {
		var binding csrf.TokenBinding
		if sess != nil {
			binding = sess
		}
		if err := p.guard.Validate(ctx, binding); err != nil {
			p.logger.Info("csrf validation failed",
				"zone", zone.name, "method", method, "path", path, "error", err)
			return p.forbidden(ctx)
		}
	}

	p.issueCSRF(ctx, zone, sess)

	if handler := p.flowHandler(zone, method, path); handler != nil {
		return handler(ctx, zone, sess)
	}

	principal, handled, err := p.extractPrincipal(ctx, zone, sess)
	if handled || err != nil {
		return err
	}

	require, matched := zone.matcher.Match(method, path)
	if !matched {
		require = zone.defaultRequire
	}

	switch Authorize(principal, require) {
	case DecisionAllow:
		sc := NewSecurityContext(principal, sess)
		ctx.Locals(LocalsSecurityKey, sc)
		ctx.SetContext(WithSecurityContext(ctx.Context(), sc))
		return next(ctx)
	case DecisionRequiresAuth:
		return p.challenge(ctx, zone)
	default:
		p.logger.Info("authorization denied",
			"zone", zone.name, "path", path, "user", principal.Username(), "require", require.String())
		return p.forbidden(ctx)
	}
}

// selectZone returns the first registered zone claiming the path, falling back
// to the require-authenticated default zone.
func (p *Pipeline) selectZone(path string) *Zone {
	for _, z := range p.zones {
		if z.Matches(path) {
			return z
		}
	}
	return p.fallback
}

// resolveSession applies the zone's session policy. ALWAYS ensures a live
// session up front; IF_REQUIRED and NEVER only resolve what the cookie names,
// treating unknown or expired IDs as anonymous. STATELESS never touches the
// store.
func (p *Pipeline) resolveSession(ctx router.Context, zone *Zone) (*Session, error) {
	if !zone.policy.UsesSessions() {
		return nil, nil
	}

	id := ctx.Cookies(p.cookieName)
	if zone.policy == PolicyAlways {
		sess, err := p.sessions.Ensure(zone.policy, id)
		if err != nil {
			return nil, err
		}
		if sess != nil && sess.ID() != id {
			p.setSessionCookie(ctx, sess)
		}
		return sess, nil
	}

	if id == "" {
		return nil, nil
	}
	sess, _ := p.sessions.Resolve(id)
	return sess, nil
}

// issueCSRF makes a token available to downstream handlers and templates.
// With a session the token binds to it; without one a double-submit cookie
// pair covers forms served off sessionless pages.
func (p *Pipeline) issueCSRF(ctx router.Context, zone *Zone, sess *Session) {
	if zone.csrfDisabled || zone.policy == PolicyStateless {
		return
	}

	if sess != nil {
		token, err := p.guard.Issue(sess)
		if err != nil {
			p.logger.Error("failed to issue csrf token", "zone", zone.name, "error", err)
			return
		}
		ctx.Locals(LocalsCSRFToken, token)
		return
	}

	clientKey := ctx.Cookies(p.guard.CookieName())
	if clientKey == "" {
		key, err := csrf.NewClientKey()
		if err != nil {
			p.logger.Error("failed to generate csrf client key", "error", err)
			return
		}
		clientKey = key
		ctx.Cookie(&router.Cookie{
			Name:     p.guard.CookieName(),
			Value:    clientKey,
			Path:     "/",
			Secure:   true,
			SameSite: "Lax",
		})
	}

	token, err := p.guard.IssueStateless(clientKey)
	if err != nil {
		p.logger.Error("failed to issue csrf token", "zone", zone.name, "error", err)
		return
	}
	ctx.Locals(LocalsCSRFToken, token)
}

// extractPrincipal resolves the request's identity: session principal first,
// then a bearer token, then basic credentials when the zone enables them.
// handled means the request was already answered (rejected credentials).
func (p *Pipeline) extractPrincipal(ctx router.Context, zone *Zone, sess *Session) (*Principal, bool, error) {
	if sess != nil {
		if principal := sess.Principal(); principal != nil {
			return principal, false, nil
		}
	}

	if raw := bearerToken(ctx); raw != "" && p.acceptsBearer(zone) {
		claims, err := p.validateBearer(raw)
		if err != nil {
			p.logger.Info("bearer token rejected", "zone", zone.name, "error", err)
			return nil, true, p.unauthorized(ctx, zone)
		}
		return claims.Principal(), false, nil
	}

	if zone.basicAuth != nil {
		username, password, ok := basicCredentials(ctx)
		if ok {
			principal, err := p.authn.Authenticate(ctx.Context(), username, password)
			if err != nil {
				p.logFailure(zone, username, err)
				return nil, true, p.unauthorized(ctx, zone)
			}
			return principal, false, nil
		}
	}

	return nil, false, nil
}

func (p *Pipeline) acceptsBearer(zone *Zone) bool {
	if p.tokens == nil && p.bearer == nil {
		return false
	}
	return zone.policy == PolicyStateless
}

func (p *Pipeline) validateBearer(raw string) (*Claims, error) {
	var lastErr error
	if p.tokens != nil {
		claims, err := p.tokens.Validate(raw)
		if err == nil {
			return claims, nil
		}
		lastErr = err
	}
	if p.bearer != nil {
		claims, err := p.bearer.Validate(raw)
		if err == nil {
			return claims, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// challenge answers a request that needs authentication it does not have.
// Browser zones redirect to the login page; everything else gets a 401 with a
// WWW-Authenticate hint.
func (p *Pipeline) challenge(ctx router.Context, zone *Zone) error {
	if zone.formLogin != nil {
		return ctx.Redirect(zone.formLogin.LoginPage, redirectStatus(ctx))
	}
	return p.unauthorized(ctx, zone)
}

func (p *Pipeline) unauthorized(ctx router.Context, zone *Zone) error {
	if zone.basicAuth != nil {
		ctx.SetHeader("WWW-Authenticate", `Basic realm="`+zone.basicAuth.Realm+`"`)
	} else if p.acceptsBearer(zone) {
		ctx.SetHeader("WWW-Authenticate", "Bearer")
	}
	return ctx.Status(http.StatusUnauthorized).SendString("Unauthorized")
}

func (p *Pipeline) forbidden(ctx router.Context) error {
	return ctx.Status(http.StatusForbidden).SendString("Forbidden")
}

func (p *Pipeline) internalError(ctx router.Context, zone *Zone, err error) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Metadata != nil {
		p.logger.Error("pipeline error",
			"zone", zone.name, "error", err, "metadata", print.MaybePrettyJSON(rich.Metadata))
	} else {
		p.logger.Error("pipeline error", "zone", zone.name, "error", err)
	}
	return ctx.Status(http.StatusInternalServerError).SendString("Internal Server Error")
}

func (p *Pipeline) logFailure(zone *Zone, identifier string, err error) {
	reason := "unknown"
	if failure, ok := AsAuthFailure(err); ok {
		reason = string(failure.Reason)
	}
	p.logger.Info("authentication failed",
		"zone", zone.name, "identifier", identifier, "reason", reason)
}

func (p *Pipeline) setSessionCookie(ctx router.Context, sess *Session) {
	ctx.Cookie(&router.Cookie{
		Name:     p.cookieName,
		Value:    sess.ID(),
		Path:     "/",
		Expires:  p.now().Add(24 * time.Hour),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (p *Pipeline) expireSessionCookie(ctx router.Context) {
	ctx.Cookie(&router.Cookie{
		Name:     p.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  p.now().Add(-(time.Hour * 24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// redirectStatus picks 302 for GETs and 303 for everything else so that a
// redirected form post replays as a GET.
func redirectStatus(ctx router.Context) int {
	if strings.ToUpper(ctx.Method()) == "GET" {
		return http.StatusFound
	}
	return http.StatusSeeOther
}

func bearerToken(ctx router.Context) string {
	auth := ctx.GetString(router.HeaderAuthorization, "")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func basicCredentials(ctx router.Context) (string, string, bool) {
	auth := ctx.GetString(router.HeaderAuthorization, "")
	if len(auth) < 6 || !strings.EqualFold(auth[:6], "Basic ") {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(auth[6:]))
	if err != nil {
		return "", "", false
	}
	username, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return "", "", false
	}
	return username, password, true
}

// checkZoneOverlap rejects zone sets where one prefix nests inside another;
// dispatch must have exactly one candidate per path.
func checkZoneOverlap(zones []*Zone) error {
	for i := 0; i < len(zones); i++ {
		for j := i + 1; j < len(zones); j++ {
			a, b := zones[i], zones[j]
			if a.Matches(b.prefix) || b.Matches(a.prefix) {
				return goerrors.New("zone prefixes overlap", goerrors.CategoryValidation).
					WithTextCode("ZONE_OVERLAP").
					WithMetadata(map[string]any{
						"zones": []string{a.name, b.name},
					})
			}
		}
	}
	return nil
}
