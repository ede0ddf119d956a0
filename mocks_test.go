package secure_test

import (
	"context"
	"time"

	secure "github.com/goliatone/go-secure"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"
)

// MockCredentialStore implements secure.CredentialStore
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) GetByIdentifier(ctx context.Context, identifier string) (*secure.Credential, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*secure.Credential), args.Error(1)
}

// MockLoginTracker implements secure.LoginTracker
type MockLoginTracker struct {
	mock.Mock
}

func (m *MockLoginTracker) TrackSuccessfulLogin(ctx context.Context, identifier string, at time.Time) error {
	args := m.Called(ctx, identifier, at)
	return args.Error(0)
}

type testLogger struct{}

func (testLogger) Debug(format string, args ...any) {}
func (testLogger) Info(format string, args ...any)  {}
func (testLogger) Warn(format string, args ...any)  {}
func (testLogger) Error(format string, args ...any) {}

// quickDigest hashes at the cheapest cost; production digests go through
// secure.HashPassword.
func quickDigest(password string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}

func activeCredential(username, password string, authorities ...string) *secure.Credential {
	return &secure.Credential{
		Username:       username,
		PasswordDigest: quickDigest(password),
		Enabled:        true,
		Authorities:    authorities,
	}
}

// newRequestCtx builds a mock router context with the baseline stubs every
// pipeline request touches. Specific expectations from configure register
// first so they win over the catch-alls.
func newRequestCtx(method, path string, configure ...func(*router.MockContext)) *router.MockContext {
	ctx := router.NewMockContext()
	for _, fn := range configure {
		fn(ctx)
	}
	ctx.On("Method").Return(method).Maybe()
	ctx.On("Path").Return(path).Maybe()
	ctx.On("Context").Return(context.Background()).Maybe()
	ctx.On("SetContext", mock.Anything).Return().Maybe()
	ctx.On("Locals", mock.Anything, mock.Anything).Return(nil).Maybe()
	ctx.On("GetString", mock.Anything, mock.Anything).Return("").Maybe()
	ctx.On("Cookies", mock.Anything).Return("").Maybe()
	ctx.On("Cookie", mock.Anything).Return().Maybe()
	ctx.On("FormValue", mock.Anything).Return("").Maybe()
	ctx.On("SetHeader", mock.Anything, mock.Anything).Return(ctx).Maybe()
	ctx.On("Status", mock.Anything).Return(ctx).Maybe()
	ctx.On("SendString", mock.Anything).Return(nil).Maybe()
	ctx.On("Redirect", mock.Anything, mock.Anything).Return(nil).Maybe()
	ctx.On("JSON", mock.Anything, mock.Anything).Return(nil).Maybe()
	return ctx
}
