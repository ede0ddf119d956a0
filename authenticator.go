package secure

import (
	"context"
	"errors"
	"time"
)

// DefaultLookupTimeout bounds a single credential lookup. A store that does
// not answer in time yields FailureUnavailable: fail closed, never open.
const DefaultLookupTimeout = 5 * time.Second

// Authenticator validates submitted credentials against a CredentialStore and
// produces an immutable Principal snapshot or an AuthFailure.
type Authenticator struct {
	store   CredentialStore
	tracker LoginTracker
	timeout time.Duration
	logger  Logger
	now     func() time.Time
}

// NewAuthenticator returns a new Authenticator bound to a store.
func NewAuthenticator(store CredentialStore) *Authenticator {
	return &Authenticator{
		store:   store,
		timeout: DefaultLookupTimeout,
		logger:  defLogger{},
		now:     time.Now,
	}
}

func (a *Authenticator) WithLogger(l Logger) *Authenticator {
	if l != nil {
		a.logger = l
	}
	return a
}

// WithLoginTracker sets the collaborator that records successful logins.
func (a *Authenticator) WithLoginTracker(t LoginTracker) *Authenticator {
	a.tracker = t
	return a
}

// WithLookupTimeout overrides the bounded store-lookup timeout.
func (a *Authenticator) WithLookupTimeout(d time.Duration) *Authenticator {
	if d > 0 {
		a.timeout = d
	}
	return a
}

// WithClock injects a custom clock (useful for tests).
func (a *Authenticator) WithClock(clock func() time.Time) *Authenticator {
	if clock != nil {
		a.now = clock
	}
	return a
}

// Authenticate validates identifier+secret and returns a Principal snapshot.
// Failures come back as *AuthFailure with a reason for logging; callers must
// surface only the uniform GenericLoginMessage to clients. Account flags are
// checked in a fixed order: enabled, then locked, then credentials-expired.
func (a *Authenticator) Authenticate(ctx context.Context, identifier, password string) (*Principal, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cred, err := a.store.GetByIdentifier(lookupCtx, identifier)
	if err != nil {
		switch {
		case errors.Is(err, ErrIdentityNotFound):
			a.logger.Debug("authenticate: unknown identifier", "identifier", identifier)
			return nil, newAuthFailure(FailureNotFound, err)
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			a.logger.Error("authenticate: credential store unavailable", "error", err)
			return nil, newAuthFailure(FailureUnavailable, err)
		default:
			a.logger.Error("authenticate: credential lookup failed", "error", err)
			return nil, newAuthFailure(FailureUnavailable, err)
		}
	}

	if err := ComparePasswordAndHash(password, cred.PasswordDigest); err != nil {
		a.logger.Debug("authenticate: digest mismatch", "identifier", identifier)
		return nil, newAuthFailure(FailureBadCredential, err)
	}

	if !cred.Enabled {
		return nil, newAuthFailure(FailureDisabled, nil)
	}
	if cred.Locked {
		return nil, newAuthFailure(FailureLocked, nil)
	}
	if cred.CredentialsExpired {
		return nil, newAuthFailure(FailureCredentialsExpired, nil)
	}

	if a.tracker != nil {
		if err := a.tracker.TrackSuccessfulLogin(ctx, cred.Username, a.now()); err != nil {
			// bookkeeping only, the login itself already succeeded
			a.logger.Warn("authenticate: failed to track successful login", "error", err)
		}
	}

	return cred.Principal(), nil
}
