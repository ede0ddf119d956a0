package secure

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// CredentialStore supplies identity records by identifier. Implementations
// must be safe for concurrent reads.
type CredentialStore interface {
	GetByIdentifier(ctx context.Context, identifier string) (*Credential, error)
}

// LoginTracker records a successful authentication as a side effect. The
// Authenticator never mutates credential records itself; it hands the
// bookkeeping to this collaborator and logs (but does not fail on) errors.
type LoginTracker interface {
	TrackSuccessfulLogin(ctx context.Context, identifier string, at time.Time) error
}

// Config holds pipeline-wide options. Zones carry their own login flow and
// CSRF configuration; these are the cross-zone knobs.
type Config interface {
	GetSessionCookieName() string
	GetSessionMaxIdle() time.Duration
	GetCSRFHeaderName() string
	GetCSRFFieldName() string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SECURE "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SECURE "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SECURE "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SECURE "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
