package secure

import (
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// MethodAny matches every HTTP method when used in a Rule.
const MethodAny = ""

type requirementKind uint8

const (
	requirePermitAll requirementKind = iota
	requireAuthenticated
	requireRole
	requireAnyRole
)

// Requirement is what a matched route demands from the request's principal.
// Build one with PermitAll, Authenticated, HasRole, or HasAnyRole.
type Requirement struct {
	kind  requirementKind
	roles []string
}

// PermitAll allows every request, anonymous or not.
func PermitAll() Requirement {
	return Requirement{kind: requirePermitAll}
}

// Authenticated requires a usable (active, non-anonymous) principal.
func Authenticated() Requirement {
	return Requirement{kind: requireAuthenticated}
}

// HasRole requires an active principal holding the given role.
func HasRole(role string) Requirement {
	return Requirement{kind: requireRole, roles: []string{role}}
}

// HasAnyRole requires an active principal holding at least one of the roles.
func HasAnyRole(roles ...string) Requirement {
	granted := make([]string, len(roles))
	copy(granted, roles)
	return Requirement{kind: requireAnyRole, roles: granted}
}

func (r Requirement) String() string {
	switch r.kind {
	case requirePermitAll:
		return "permitAll"
	case requireAuthenticated:
		return "authenticated"
	case requireRole:
		return "hasRole(" + strings.Join(r.roles, ",") + ")"
	case requireAnyRole:
		return "hasAnyRole(" + strings.Join(r.roles, ",") + ")"
	default:
		return "unknown"
	}
}

// Rule is one ordered (method, pattern) -> requirement mapping. Method is
// matched exactly (upper-cased at compile time); MethodAny matches all.
// Patterns support "*" for exactly one path segment and a trailing "**" for
// zero or more segments.
type Rule struct {
	Method  string
	Pattern string
	Require Requirement
}

type compiledRule struct {
	method   string
	segments []string
	tailWild bool
	require  Requirement
	raw      Rule
}

// CompiledMatcher is an immutable, ordered decision list. Matching is a pure
// function of (rules, request); first match wins.
type CompiledMatcher struct {
	rules []compiledRule
}

// CompileRules validates and compiles an ordered rule list. Pattern syntax
// errors are configuration errors and fail compilation; rule shadowing is
// deliberately legal (ordering semantics are documented and tested), use
// Shadowed to lint for it.
func CompileRules(rules []Rule) (*CompiledMatcher, error) {
	compiled := make([]compiledRule, 0, len(rules))

	for i, rule := range rules {
		cr, err := compileRule(rule)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid route rule").
				WithTextCode("INVALID_ROUTE_RULE").
				WithMetadata(map[string]any{
					"index":   i,
					"pattern": rule.Pattern,
					"method":  rule.Method,
				})
		}
		compiled = append(compiled, cr)
	}

	return &CompiledMatcher{rules: compiled}, nil
}

func compileRule(rule Rule) (compiledRule, error) {
	if !strings.HasPrefix(rule.Pattern, "/") {
		return compiledRule{}, fmt.Errorf("pattern %q must start with /", rule.Pattern)
	}

	segments := splitPath(rule.Pattern)
	tailWild := false

	for i, seg := range segments {
		if seg == "**" {
			if i != len(segments)-1 {
				return compiledRule{}, fmt.Errorf("pattern %q: ** is only valid as the final segment", rule.Pattern)
			}
			tailWild = true
		}
	}

	if tailWild {
		segments = segments[:len(segments)-1]
	}

	return compiledRule{
		method:   strings.ToUpper(rule.Method),
		segments: segments,
		tailWild: tailWild,
		require:  rule.Require,
		raw:      rule,
	}, nil
}

// Match scans rules in registration order and returns the requirement of the
// first rule whose method and pattern match. The second return is false when
// no rule matched; callers fall through to their zone default.
func (m *CompiledMatcher) Match(method, path string) (Requirement, bool) {
	method = strings.ToUpper(method)
	segments := splitPath(path)

	for _, rule := range m.rules {
		if rule.method != MethodAny && rule.method != method {
			continue
		}
		if matchSegments(rule.segments, rule.tailWild, segments) {
			return rule.require, true
		}
	}

	return Requirement{}, false
}

// Shadowed returns rules that can never match because an earlier rule with a
// compatible method constraint covers every path they cover. The check is
// conservative: it only reports certain shadowing.
func (m *CompiledMatcher) Shadowed() []Rule {
	var shadowed []Rule

	for i, later := range m.rules {
		for _, earlier := range m.rules[:i] {
			if earlier.method != MethodAny && earlier.method != later.method {
				continue
			}
			if later.method == MethodAny && earlier.method != MethodAny {
				continue
			}
			if covers(earlier, later) {
				shadowed = append(shadowed, later.raw)
				break
			}
		}
	}

	return shadowed
}

// covers reports whether every path matched by b is also matched by a.
func covers(a, b compiledRule) bool {
	if !a.tailWild {
		if b.tailWild || len(a.segments) != len(b.segments) {
			return false
		}
		for i := range a.segments {
			if !segmentCovers(a.segments[i], b.segments[i]) {
				return false
			}
		}
		return true
	}

	// a ends in **: it covers b when b has at least a's fixed segments and
	// each of a's fixed segments covers b's corresponding segment.
	if len(b.segments) < len(a.segments) {
		return false
	}
	for i := range a.segments {
		if !segmentCovers(a.segments[i], b.segments[i]) {
			return false
		}
	}
	return true
}

func segmentCovers(pattern, other string) bool {
	return pattern == "*" || pattern == other
}

func matchSegments(pattern []string, tailWild bool, path []string) bool {
	if tailWild {
		if len(path) < len(pattern) {
			return false
		}
	} else if len(path) != len(pattern) {
		return false
	}

	for i, seg := range pattern {
		if seg == "*" {
			continue
		}
		if seg != path[i] {
			return false
		}
	}

	return true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
