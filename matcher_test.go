package secure_test

import (
	"testing"

	secure "github.com/goliatone/go-secure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileRulesRejectsBadPatterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
	}{
		{"missing leading slash", "api/**"},
		{"double star mid pattern", "/api/**/users"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := secure.CompileRules([]secure.Rule{
				{Method: secure.MethodAny, Pattern: tc.pattern, Require: secure.PermitAll()},
			})
			require.Error(t, err)
		})
	}
}

func TestMatchFirstMatchWins(t *testing.T) {
	// Registration order is the contract: the broad /api/** rule registered
	// first resolves /api/admin/metrics even though a more specific rule
	// follows it.
	matcher, err := secure.CompileRules([]secure.Rule{
		{Method: secure.MethodAny, Pattern: "/api/**", Require: secure.HasRole("USER")},
		{Method: secure.MethodAny, Pattern: "/api/admin/**", Require: secure.HasRole("ADMIN")},
	})
	require.NoError(t, err)

	req, ok := matcher.Match("GET", "/api/admin/metrics")
	require.True(t, ok)
	assert.Equal(t, secure.HasRole("USER"), req)

	shadowed := matcher.Shadowed()
	require.Len(t, shadowed, 1)
	assert.Equal(t, "/api/admin/**", shadowed[0].Pattern)
}

func TestMatchSpecificBeforeBroad(t *testing.T) {
	matcher, err := secure.CompileRules([]secure.Rule{
		{Method: secure.MethodAny, Pattern: "/api/admin/**", Require: secure.HasRole("ADMIN")},
		{Method: secure.MethodAny, Pattern: "/api/**", Require: secure.HasRole("USER")},
	})
	require.NoError(t, err)

	req, ok := matcher.Match("GET", "/api/admin/metrics")
	require.True(t, ok)
	assert.Equal(t, secure.HasRole("ADMIN"), req)

	req, ok = matcher.Match("GET", "/api/orders")
	require.True(t, ok)
	assert.Equal(t, secure.HasRole("USER"), req)

	assert.Empty(t, matcher.Shadowed())
}

func TestMatchSegmentWildcards(t *testing.T) {
	matcher, err := secure.CompileRules([]secure.Rule{
		{Method: secure.MethodAny, Pattern: "/users/*/profile", Require: secure.Authenticated()},
		{Method: secure.MethodAny, Pattern: "/public/**", Require: secure.PermitAll()},
	})
	require.NoError(t, err)

	tests := []struct {
		path    string
		matched bool
	}{
		{"/users/42/profile", true},
		{"/users/42/44/profile", false},
		{"/users/profile", false},
		{"/public", true},
		{"/public/css/site.css", true},
		{"/private/x", false},
	}

	for _, tc := range tests {
		_, ok := matcher.Match("GET", tc.path)
		assert.Equal(t, tc.matched, ok, "path %s", tc.path)
	}
}

func TestMatchMethodConstraint(t *testing.T) {
	matcher, err := secure.CompileRules([]secure.Rule{
		{Method: "POST", Pattern: "/orders/**", Require: secure.HasRole("ADMIN")},
		{Method: secure.MethodAny, Pattern: "/orders/**", Require: secure.Authenticated()},
	})
	require.NoError(t, err)

	req, ok := matcher.Match("POST", "/orders/7")
	require.True(t, ok)
	assert.Equal(t, secure.HasRole("ADMIN"), req)

	req, ok = matcher.Match("get", "/orders/7")
	require.True(t, ok)
	assert.Equal(t, secure.Authenticated(), req)
}

func TestMatchNoRuleFallsThrough(t *testing.T) {
	matcher, err := secure.CompileRules([]secure.Rule{
		{Method: secure.MethodAny, Pattern: "/health", Require: secure.PermitAll()},
	})
	require.NoError(t, err)

	_, ok := matcher.Match("GET", "/anything/else")
	assert.False(t, ok)
}

func TestMatchIsStable(t *testing.T) {
	matcher, err := secure.CompileRules([]secure.Rule{
		{Method: secure.MethodAny, Pattern: "/a/**", Require: secure.HasRole("A")},
		{Method: secure.MethodAny, Pattern: "/a/b/**", Require: secure.HasRole("B")},
	})
	require.NoError(t, err)

	first, ok := matcher.Match("GET", "/a/b/c")
	require.True(t, ok)
	for i := 0; i < 100; i++ {
		again, ok := matcher.Match("GET", "/a/b/c")
		require.True(t, ok)
		require.Equal(t, first, again)
	}
}
