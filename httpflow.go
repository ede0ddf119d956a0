package secure

import (
	"net/http"

	"github.com/goliatone/go-router"
)

type flowHandlerFunc func(ctx router.Context, zone *Zone, sess *Session) error

// flowHandler matches the request against the zone's built-in endpoints:
// form-login processing, logout, and token minting. Nil means the request is
// a regular one and continues through authorization.
func (p *Pipeline) flowHandler(zone *Zone, method, path string) flowHandlerFunc {
	if zone.formLogin != nil && method == http.MethodPost && path == zone.formLogin.ProcessingURL {
		return p.handleLogin
	}
	if zone.logout != nil && path == zone.logout.URL &&
		(method == http.MethodPost || method == http.MethodGet) {
		return p.handleLogout
	}
	if zone.tokenEndpoint != "" && method == http.MethodPost && path == zone.tokenEndpoint {
		return p.handleTokenMint
	}
	return nil
}

// handleLogin authenticates submitted form credentials. On success the
// session gets a fresh ID and CSRF token before the principal binds to it.
// Failures redirect with no detail beyond the error flag; the reason only
// goes to the log.
func (p *Pipeline) handleLogin(ctx router.Context, zone *Zone, sess *Session) error {
	form := zone.formLogin
	identifier := ctx.FormValue(form.UsernameParam)
	password := ctx.FormValue(form.PasswordParam)

	principal, err := p.authn.Authenticate(ctx.Context(), identifier, password)
	if err != nil {
		p.logFailure(zone, identifier, err)
		return ctx.Redirect(form.FailureURL, http.StatusSeeOther)
	}

	if zone.policy.AllowsCreation() {
		if sess != nil {
			sess = p.sessions.Migrate(sess)
		} else {
			sess = p.sessions.Create()
		}
	} else if sess != nil {
		sess = p.sessions.Migrate(sess)
	}

	if sess != nil {
		sess.SetPrincipal(principal)
		if _, err := p.guard.Rotate(sess); err != nil {
			p.logger.Error("failed to rotate csrf token on login", "zone", zone.name, "error", err)
		}
		p.setSessionCookie(ctx, sess)
	} else {
		p.logger.Warn("login succeeded but the zone never creates sessions, authentication will not persist",
			"zone", zone.name, "identifier", identifier)
	}

	p.logger.Info("login succeeded", "zone", zone.name, "identifier", principal.Username())
	return ctx.Redirect(form.DefaultSuccessURL, http.StatusSeeOther)
}

// handleLogout invalidates the session, expires the cookie, and redirects.
// Safe to call without a session.
func (p *Pipeline) handleLogout(ctx router.Context, zone *Zone, sess *Session) error {
	if sess != nil {
		p.sessions.Invalidate(sess.ID())
		p.logger.Info("logout", "zone", zone.name, "identifier", sess.Principal().Username())
	}
	p.expireSessionCookie(ctx)
	return ctx.Redirect(zone.logout.SuccessURL, http.StatusSeeOther)
}

// handleTokenMint exchanges basic credentials for a signed bearer token in
// stateless zones.
func (p *Pipeline) handleTokenMint(ctx router.Context, zone *Zone, _ *Session) error {
	identifier, password, ok := basicCredentials(ctx)
	if !ok {
		return p.unauthorized(ctx, zone)
	}

	principal, err := p.authn.Authenticate(ctx.Context(), identifier, password)
	if err != nil {
		p.logFailure(zone, identifier, err)
		return p.unauthorized(ctx, zone)
	}

	token, err := p.tokens.Mint(principal)
	if err != nil {
		return p.internalError(ctx, zone, err)
	}

	p.logger.Info("minted bearer token", "zone", zone.name, "identifier", principal.Username())
	return ctx.JSON(http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
	})
}
