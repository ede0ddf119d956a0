package secure

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the persisted account record backing a Credential.
type User struct {
	bun.BaseModel      `bun:"table:users,alias:usr"`
	ID                 uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username           string     `bun:"username,notnull,unique" json:"username,omitempty"`
	PasswordHash       string     `bun:"password_hash" json:"password_hash,omitempty"`
	Enabled            bool       `bun:"is_enabled" json:"is_enabled,omitempty"`
	Locked             bool       `bun:"is_locked" json:"is_locked,omitempty"`
	CredentialsExpired bool       `bun:"credentials_expired" json:"credentials_expired,omitempty"`
	Authorities        []string   `bun:"authorities" json:"authorities,omitempty"`
	LoggedInAt         *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt          *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt          *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Credential maps the record into the shape the authenticator consumes.
func (u *User) Credential() *Credential {
	authorities := make([]string, len(u.Authorities))
	copy(authorities, u.Authorities)

	return &Credential{
		Username:           u.Username,
		PasswordDigest:     u.PasswordHash,
		Enabled:            u.Enabled,
		Locked:             u.Locked,
		CredentialsExpired: u.CredentialsExpired,
		Authorities:        authorities,
		LastLoginAt:        u.LoggedInAt,
	}
}
