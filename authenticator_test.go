package secure_test

import (
	"context"
	"errors"
	"testing"
	"time"

	secure "github.com/goliatone/go-secure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAuthenticateSuccess(t *testing.T) {
	store := new(MockCredentialStore)
	cred := activeCredential("alice", "password123", "ROLE_USER")
	store.On("GetByIdentifier", mock.Anything, "alice").Return(cred, nil).Once()

	authn := secure.NewAuthenticator(store).WithLogger(testLogger{})

	principal, err := authn.Authenticate(context.Background(), "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, "alice", principal.Username())
	assert.True(t, principal.HasRole("USER"))
	assert.True(t, principal.Active())
	store.AssertExpectations(t)
}

func TestAuthenticateFailureReasons(t *testing.T) {
	digest := quickDigest("correct")

	tests := []struct {
		name     string
		cred     *secure.Credential
		storeErr error
		password string
		reason   secure.FailureReason
	}{
		{
			name:     "unknown identifier",
			storeErr: secure.ErrIdentityNotFound,
			password: "whatever",
			reason:   secure.FailureNotFound,
		},
		{
			name:     "wrong password",
			cred:     &secure.Credential{Username: "u", PasswordDigest: digest, Enabled: true},
			password: "wrong",
			reason:   secure.FailureBadCredential,
		},
		{
			name:     "disabled account",
			cred:     &secure.Credential{Username: "u", PasswordDigest: digest, Enabled: false},
			password: "correct",
			reason:   secure.FailureDisabled,
		},
		{
			name:     "locked account",
			cred:     &secure.Credential{Username: "u", PasswordDigest: digest, Enabled: true, Locked: true},
			password: "correct",
			reason:   secure.FailureLocked,
		},
		{
			name:     "expired credentials",
			cred:     &secure.Credential{Username: "u", PasswordDigest: digest, Enabled: true, CredentialsExpired: true},
			password: "correct",
			reason:   secure.FailureCredentialsExpired,
		},
		{
			name:     "store unavailable",
			storeErr: errors.New("connection refused"),
			password: "correct",
			reason:   secure.FailureUnavailable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := new(MockCredentialStore)
			if tc.storeErr != nil {
				store.On("GetByIdentifier", mock.Anything, "u").Return(nil, tc.storeErr)
			} else {
				store.On("GetByIdentifier", mock.Anything, "u").Return(tc.cred, nil)
			}

			authn := secure.NewAuthenticator(store).WithLogger(testLogger{})

			principal, err := authn.Authenticate(context.Background(), "u", tc.password)
			require.Error(t, err)
			assert.Nil(t, principal)
			assert.True(t, secure.IsAuthFailure(err, tc.reason))

			// every internal reason maps to the same client-facing text
			failure, ok := secure.AsAuthFailure(err)
			require.True(t, ok)
			assert.Equal(t, secure.GenericLoginMessage, failure.Message())
		})
	}
}

func TestAuthenticateLookupTimeout(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("GetByIdentifier", mock.Anything, "slow").
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).
		Return(nil, context.DeadlineExceeded)

	authn := secure.NewAuthenticator(store).
		WithLogger(testLogger{}).
		WithLookupTimeout(10 * time.Millisecond)

	_, err := authn.Authenticate(context.Background(), "slow", "pw")
	require.Error(t, err)
	assert.True(t, secure.IsAuthFailure(err, secure.FailureUnavailable))
}

func TestAuthenticateTracksSuccessfulLogin(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	store := new(MockCredentialStore)
	store.On("GetByIdentifier", mock.Anything, "alice").
		Return(activeCredential("alice", "pw", "ROLE_USER"), nil)

	tracker := new(MockLoginTracker)
	tracker.On("TrackSuccessfulLogin", mock.Anything, "alice", at).Return(nil).Once()

	authn := secure.NewAuthenticator(store).
		WithLogger(testLogger{}).
		WithLoginTracker(tracker).
		WithClock(func() time.Time { return at })

	_, err := authn.Authenticate(context.Background(), "alice", "pw")
	require.NoError(t, err)
	tracker.AssertExpectations(t)
}

func TestAuthenticateTrackerFailureDoesNotFailLogin(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("GetByIdentifier", mock.Anything, "alice").
		Return(activeCredential("alice", "pw", "ROLE_USER"), nil)

	tracker := new(MockLoginTracker)
	tracker.On("TrackSuccessfulLogin", mock.Anything, "alice", mock.Anything).
		Return(errors.New("bookkeeping db down"))

	authn := secure.NewAuthenticator(store).
		WithLogger(testLogger{}).
		WithLoginTracker(tracker)

	principal, err := authn.Authenticate(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "alice", principal.Username())
}
