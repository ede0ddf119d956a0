package secure_test

import (
	"testing"

	secure "github.com/goliatone/go-secure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthn(t *testing.T) *secure.Authenticator {
	t.Helper()
	store, err := secure.NewMemoryStore(activeCredential("alice", "password123", "ROLE_USER"))
	require.NoError(t, err)
	return secure.NewAuthenticator(store).WithLogger(testLogger{})
}

func TestZoneMatchesOnSegmentBoundary(t *testing.T) {
	zone := secure.NewZone("api", "/api")

	assert.True(t, zone.Matches("/api"))
	assert.True(t, zone.Matches("/api/orders"))
	assert.False(t, zone.Matches("/apiary"), "prefix must end on a segment boundary")
	assert.False(t, zone.Matches("/app"))

	root := secure.NewZone("root", "/")
	assert.True(t, root.Matches("/anything"))
}

func TestNewPipelineRejectsBadZones(t *testing.T) {
	authn := newTestAuthn(t)
	sessions := secure.NewManager().WithLogger(testLogger{})

	tests := []struct {
		name string
		zone *secure.Zone
	}{
		{"empty name", secure.NewZone("", "/a")},
		{"prefix without slash", secure.NewZone("a", "a")},
		{"prefix with trailing slash", secure.NewZone("a", "/a/")},
		{"prefix with wildcard", secure.NewZone("a", "/a/*")},
		{"unknown policy", secure.NewZone("a", "/a").WithSessionPolicy("sometimes")},
		{"bad rule pattern", secure.NewZone("a", "/a").Permit("no-slash")},
		{
			"stateless with form login",
			secure.NewZone("a", "/a").
				WithSessionPolicy(secure.PolicyStateless).
				WithFormLogin(secure.FormLogin{LoginPage: "/a/login"}),
		},
		{
			"token endpoint without stateless",
			secure.NewZone("a", "/a").WithTokenEndpoint("/a/token"),
		},
		{
			"form login without login page",
			secure.NewZone("a", "/a").WithFormLogin(secure.FormLogin{}),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := secure.NewPipeline(authn, sessions, tc.zone)
			require.Error(t, err)
		})
	}
}

func TestNewPipelineRejectsOverlappingZones(t *testing.T) {
	authn := newTestAuthn(t)
	sessions := secure.NewManager().WithLogger(testLogger{})

	_, err := secure.NewPipeline(authn, sessions,
		secure.NewZone("api", "/api"),
		secure.NewZone("admin-api", "/api/admin"),
	)
	require.Error(t, err)

	_, err = secure.NewPipeline(authn, sessions,
		secure.NewZone("api", "/api"),
		secure.NewZone("app", "/app"),
	)
	require.NoError(t, err)
}

func TestNewPipelineRequiresCollaborators(t *testing.T) {
	authn := newTestAuthn(t)
	sessions := secure.NewManager().WithLogger(testLogger{})
	zone := secure.NewZone("app", "/app")

	_, err := secure.NewPipeline(nil, sessions, zone)
	require.Error(t, err)

	_, err = secure.NewPipeline(authn, nil, zone)
	require.Error(t, err)

	_, err = secure.NewPipeline(authn, sessions)
	require.Error(t, err)
}

func TestFormLoginDefaults(t *testing.T) {
	authn := newTestAuthn(t)
	sessions := secure.NewManager().WithLogger(testLogger{})

	zone := secure.NewZone("app", "/app").
		WithFormLogin(secure.FormLogin{LoginPage: "/app/login"})

	_, err := secure.NewPipeline(authn, sessions, zone)
	require.NoError(t, err)
}

func TestMiddlewarePanicsOnTokenEndpointWithoutService(t *testing.T) {
	authn := newTestAuthn(t)
	sessions := secure.NewManager().WithLogger(testLogger{})

	zone := secure.NewZone("api", "/api").
		WithSessionPolicy(secure.PolicyStateless).
		WithTokenEndpoint("/api/token")

	pipeline, err := secure.NewPipeline(authn, sessions, zone)
	require.NoError(t, err)

	assert.Panics(t, func() {
		pipeline.Middleware()
	})
}
