package secure

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// ProvisionUserMessage describes one account to create. IDs derive
// deterministically from the username so repeated provisioning is stable.
type ProvisionUserMessage struct {
	Username           string   `json:"username"`
	Password           string   `json:"password"`
	Authorities        []string `json:"authorities"`
	Enabled            bool     `json:"enabled"`
	Locked             bool     `json:"locked"`
	CredentialsExpired bool     `json:"credentials_expired"`
}

func (e ProvisionUserMessage) Type() string { return "user.provision" }

type ProvisionUserHandler struct {
	db    *bun.DB
	users Users
}

func NewProvisionUserHandler(db *bun.DB, users Users) *ProvisionUserHandler {
	return &ProvisionUserHandler{db: db, users: users}
}

func (h *ProvisionUserHandler) Execute(ctx context.Context, event ProvisionUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user provisioning",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ProvisionUserHandler) execute(ctx context.Context, event ProvisionUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user := &User{
			Username:           strings.ToLower(strings.TrimSpace(event.Username)),
			PasswordHash:       hash,
			Enabled:            event.Enabled,
			Locked:             event.Locked,
			CredentialsExpired: event.CredentialsExpired,
			Authorities:        event.Authorities,
		}
		if id, err := hashid.NewUUID(user.Username); err == nil {
			user.ID = id
		}

		if _, err = h.users.RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user provisioning transaction failed")
	}

	return nil
}

// DefaultDemoCredentials returns the in-memory demo account set: a regular
// user, an admin, an API client, and a read-only guest.
func DefaultDemoCredentials() []*Credential {
	return []*Credential{
		demoCredential("user", "password", RolePrefix+"USER"),
		demoCredential("admin", "admin", RolePrefix+"ADMIN", RolePrefix+"USER"),
		demoCredential("apiuser", "api123", RolePrefix+"API"),
		demoCredential("guest", "guest", "READ_ONLY"),
	}
}

// SeedDemoUsers provisions the demo account set into the database. Existing
// accounts cause a conflict error, so run it against a fresh store.
func SeedDemoUsers(ctx context.Context, db *bun.DB, users Users) error {
	handler := NewProvisionUserHandler(db, users)
	for _, msg := range demoProvisionMessages() {
		if err := handler.Execute(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func demoProvisionMessages() []ProvisionUserMessage {
	return []ProvisionUserMessage{
		{Username: "user", Password: "password", Authorities: []string{RolePrefix + "USER"}, Enabled: true},
		{Username: "admin", Password: "admin", Authorities: []string{RolePrefix + "ADMIN", RolePrefix + "USER"}, Enabled: true},
		{Username: "apiuser", Password: "api123", Authorities: []string{RolePrefix + "API"}, Enabled: true},
		{Username: "guest", Password: "guest", Authorities: []string{"READ_ONLY"}, Enabled: true},
	}
}

func demoCredential(username, password string, authorities ...string) *Credential {
	digest, err := HashPassword(password)
	if err != nil {
		panic(err)
	}
	return &Credential{
		Username:       username,
		PasswordDigest: digest,
		Enabled:        true,
		Authorities:    authorities,
	}
}
