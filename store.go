package secure

import (
	"context"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Credential is one identity record as the Authenticator consumes it:
// identifier, password digest, account flags, and granted authorities.
type Credential struct {
	Username           string
	PasswordDigest     string
	Enabled            bool
	Locked             bool
	CredentialsExpired bool
	Authorities        []string
	LastLoginAt        *time.Time
}

// Validate checks the record shape before it enters a store.
func (c *Credential) Validate() error {
	return validation.Errors{
		"username": validation.Validate(c.Username, validation.Required, validation.Length(1, 255)),
		"digest":   validation.Validate(c.PasswordDigest, validation.Required),
	}.Filter()
}

// Principal returns the immutable snapshot authentication hands downstream.
func (c *Credential) Principal() *Principal {
	return NewPrincipal(c.Username, c.Authorities, c.Enabled, c.Locked, c.CredentialsExpired)
}

func (c *Credential) clone() *Credential {
	dup := *c
	dup.Authorities = make([]string, len(c.Authorities))
	copy(dup.Authorities, c.Authorities)
	if c.LastLoginAt != nil {
		at := *c.LastLoginAt
		dup.LastLoginAt = &at
	}
	return &dup
}

// MemoryStore is an in-memory CredentialStore for demos and tests: the
// InMemoryUserDetailsManager of this package. Read-mostly; writes touch one
// record at a time and never block concurrent reads for long.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Credential
	logger  Logger
}

// NewMemoryStore seeds a store with the given records. Invalid records are
// rejected; use Register when provisioning after startup.
func NewMemoryStore(creds ...*Credential) (*MemoryStore, error) {
	s := &MemoryStore{
		records: make(map[string]*Credential, len(creds)),
		logger:  defLogger{},
	}

	for _, c := range creds {
		if err := s.Register(c); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *MemoryStore) WithLogger(l Logger) *MemoryStore {
	if l != nil {
		s.logger = l
	}
	return s
}

// Register adds or replaces a credential record.
func (s *MemoryStore) Register(c *Credential) error {
	if err := c.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[normalizeIdentifier(c.Username)] = c.clone()
	return nil
}

// GetByIdentifier returns a copy of the record so callers can never mutate
// store state.
func (s *MemoryStore) GetByIdentifier(ctx context.Context, identifier string) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.records[normalizeIdentifier(identifier)]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return c.clone(), nil
}

// TrackSuccessfulLogin records the last authenticated-at timestamp.
func (s *MemoryStore) TrackSuccessfulLogin(ctx context.Context, identifier string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.records[normalizeIdentifier(identifier)]
	if !ok {
		return ErrIdentityNotFound
	}
	c.LastLoginAt = &at
	return nil
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

var (
	_ CredentialStore = (*MemoryStore)(nil)
	_ LoginTracker    = (*MemoryStore)(nil)
)
