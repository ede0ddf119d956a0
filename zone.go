package secure

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// FormLogin configures a zone's browser login surface.
type FormLogin struct {
	LoginPage         string
	ProcessingURL     string
	DefaultSuccessURL string
	FailureURL        string
	UsernameParam     string
	PasswordParam     string
}

// BasicAuth enables HTTP basic authentication for a zone.
type BasicAuth struct {
	Realm string
}

// Logout configures a zone's logout surface.
type Logout struct {
	URL        string
	SuccessURL string
}

// Zone is a path-prefix-scoped bundle of route rules, session policy, login
// flow, and CSRF configuration. Build one with NewZone and the chained
// methods, then hand it to NewPipeline which compiles and validates it.
// Zones are immutable once compiled.
type Zone struct {
	name   string
	prefix string

	rules          []Rule
	defaultRequire Requirement
	policy         SessionPolicy

	formLogin     *FormLogin
	basicAuth     *BasicAuth
	logout        *Logout
	tokenEndpoint string

	csrfDisabled bool
	csrfExempt   []string

	matcher       *CompiledMatcher
	exemptMatcher *CompiledMatcher
	compiled      bool
}

// NewZone starts a zone for the given path prefix. Unmatched requests inside
// the prefix default to requiring authentication; the session policy defaults
// to if-required.
func NewZone(name, prefix string) *Zone {
	return &Zone{
		name:           name,
		prefix:         prefix,
		defaultRequire: Authenticated(),
		policy:         PolicyIfRequired,
	}
}

func (z *Zone) Name() string          { return z.name }
func (z *Zone) Prefix() string        { return z.prefix }
func (z *Zone) Policy() SessionPolicy { return z.policy }

// Rule appends one ordered rule. Order is significant: first match wins.
func (z *Zone) Rule(method, pattern string, require Requirement) *Zone {
	z.rules = append(z.rules, Rule{Method: method, Pattern: pattern, Require: require})
	return z
}

// Permit marks patterns as open to everyone for any method.
func (z *Zone) Permit(patterns ...string) *Zone {
	for _, p := range patterns {
		z.Rule(MethodAny, p, PermitAll())
	}
	return z
}

// PermitMethod marks patterns as open to everyone for one method.
func (z *Zone) PermitMethod(method string, patterns ...string) *Zone {
	for _, p := range patterns {
		z.Rule(method, p, PermitAll())
	}
	return z
}

// Authenticated requires a usable principal on the given patterns.
func (z *Zone) Authenticated(patterns ...string) *Zone {
	for _, p := range patterns {
		z.Rule(MethodAny, p, Authenticated())
	}
	return z
}

// RequireRole requires the role on the given patterns.
func (z *Zone) RequireRole(role string, patterns ...string) *Zone {
	for _, p := range patterns {
		z.Rule(MethodAny, p, HasRole(role))
	}
	return z
}

// RequireAnyRole requires at least one of the roles on the given patterns.
func (z *Zone) RequireAnyRole(roles []string, patterns ...string) *Zone {
	for _, p := range patterns {
		z.Rule(MethodAny, p, HasAnyRole(roles...))
	}
	return z
}

// RequireRoleMethod requires the role on (method, pattern) pairs.
func (z *Zone) RequireRoleMethod(method, role string, patterns ...string) *Zone {
	for _, p := range patterns {
		z.Rule(method, p, HasRole(role))
	}
	return z
}

// DefaultRequirement overrides the fall-through requirement for requests no
// rule matched.
func (z *Zone) DefaultRequirement(req Requirement) *Zone {
	z.defaultRequire = req
	return z
}

// WithSessionPolicy fixes the zone's session-creation policy. The policy is
// set at definition time and cannot vary per request.
func (z *Zone) WithSessionPolicy(p SessionPolicy) *Zone {
	z.policy = p
	return z
}

// WithFormLogin enables a browser login flow. Zero-value fields get defaults
// derived from the login page.
func (z *Zone) WithFormLogin(cfg FormLogin) *Zone {
	z.formLogin = &cfg
	return z
}

// WithBasicAuth enables HTTP basic authentication with the given realm.
func (z *Zone) WithBasicAuth(realm string) *Zone {
	z.basicAuth = &BasicAuth{Realm: realm}
	return z
}

// WithLogout enables a logout surface.
func (z *Zone) WithLogout(url, successURL string) *Zone {
	z.logout = &Logout{URL: url, SuccessURL: successURL}
	return z
}

// WithTokenEndpoint enables minting bearer tokens at path for stateless
// zones: POST with basic credentials returns a signed token.
func (z *Zone) WithTokenEndpoint(path string) *Zone {
	z.tokenEndpoint = path
	return z
}

// DisableCSRF turns the CSRF guard off for the whole zone.
func (z *Zone) DisableCSRF() *Zone {
	z.csrfDisabled = true
	return z
}

// ExemptCSRF exempts matching paths from CSRF validation.
func (z *Zone) ExemptCSRF(patterns ...string) *Zone {
	z.csrfExempt = append(z.csrfExempt, patterns...)
	return z
}

// Matches reports whether a request path belongs to this zone: the prefix
// must match on a segment boundary.
func (z *Zone) Matches(path string) bool {
	if z.prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, z.prefix) {
		return false
	}
	rest := path[len(z.prefix):]
	return rest == "" || strings.HasPrefix(rest, "/")
}

// compile validates the zone configuration and builds its matchers. All
// configuration errors surface here, at startup, never on first request.
func (z *Zone) compile(logger Logger) error {
	if logger == nil {
		logger = defLogger{}
	}

	err := validation.Errors{
		"name":   validation.Validate(z.name, validation.Required),
		"prefix": validation.Validate(z.prefix, validation.Required, validation.By(checkPrefix)),
		"policy": validation.Validate(string(z.policy), validation.By(checkPolicy)),
	}.Filter()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid zone configuration").
			WithTextCode("INVALID_ZONE").
			WithMetadata(map[string]any{"zone": z.name})
	}

	if z.policy == PolicyStateless {
		if z.formLogin != nil {
			return goerrors.New("stateless zones cannot use form login", goerrors.CategoryValidation).
				WithTextCode("INVALID_ZONE").
				WithMetadata(map[string]any{"zone": z.name})
		}
	} else if z.tokenEndpoint != "" {
		return goerrors.New("token endpoints require the stateless policy", goerrors.CategoryValidation).
			WithTextCode("INVALID_ZONE").
			WithMetadata(map[string]any{"zone": z.name})
	}

	if z.formLogin != nil {
		if z.formLogin.LoginPage == "" {
			return goerrors.New("form login requires a login page", goerrors.CategoryValidation).
				WithTextCode("INVALID_ZONE").
				WithMetadata(map[string]any{"zone": z.name})
		}
		z.formLogin.applyDefaults()
	}
	if z.logout == nil && z.formLogin != nil {
		z.logout = &Logout{}
	}
	if z.logout != nil && z.formLogin != nil {
		z.logout.applyDefaults(z.formLogin)
	}

	matcher, err := CompileRules(z.rules)
	if err != nil {
		return err
	}
	z.matcher = matcher

	if shadowed := matcher.Shadowed(); len(shadowed) > 0 {
		for _, rule := range shadowed {
			logger.Warn("zone has an unreachable route rule",
				"zone", z.name, "method", rule.Method, "pattern", rule.Pattern)
		}
	}

	exemptRules := make([]Rule, 0, len(z.csrfExempt))
	for _, p := range z.csrfExempt {
		exemptRules = append(exemptRules, Rule{Method: MethodAny, Pattern: p, Require: PermitAll()})
	}
	exemptMatcher, err := CompileRules(exemptRules)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid CSRF exemption pattern").
			WithMetadata(map[string]any{"zone": z.name})
	}
	z.exemptMatcher = exemptMatcher

	z.compiled = true
	return nil
}

// csrfExemptPath reports whether CSRF validation is skipped for this request.
// Stateless zones skip the guard wholesale; there is no ambient cookie
// session to forge against.
func (z *Zone) csrfExemptPath(method, path string) bool {
	if z.csrfDisabled || z.policy == PolicyStateless {
		return true
	}
	if z.exemptMatcher == nil {
		return false
	}
	_, matched := z.exemptMatcher.Match(method, path)
	return matched
}

func (f *FormLogin) applyDefaults() {
	if f.ProcessingURL == "" {
		f.ProcessingURL = f.LoginPage
	}
	if f.DefaultSuccessURL == "" {
		f.DefaultSuccessURL = "/"
	}
	if f.FailureURL == "" {
		f.FailureURL = f.LoginPage + "?error=true"
	}
	if f.UsernameParam == "" {
		f.UsernameParam = "username"
	}
	if f.PasswordParam == "" {
		f.PasswordParam = "password"
	}
}

func (l *Logout) applyDefaults(form *FormLogin) {
	if l.URL == "" {
		l.URL = "/logout"
	}
	if l.SuccessURL == "" {
		l.SuccessURL = form.LoginPage + "?logout=true"
	}
}

func checkPrefix(value any) error {
	s, _ := value.(string)
	if !strings.HasPrefix(s, "/") {
		return fmt.Errorf("must start with /")
	}
	if s != "/" && strings.HasSuffix(s, "/") {
		return fmt.Errorf("must not end with /")
	}
	if strings.Contains(s, "*") {
		return fmt.Errorf("must be a literal prefix, wildcards belong in route rules")
	}
	return nil
}

func checkPolicy(value any) error {
	s, _ := value.(string)
	if !SessionPolicy(s).IsValid() {
		return fmt.Errorf("unknown session policy %q", s)
	}
	return nil
}
