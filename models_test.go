package secure_test

import (
	"testing"
	"time"

	secure "github.com/goliatone/go-secure"
	"github.com/stretchr/testify/assert"
)

func TestUserCredentialMapping(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	user := &secure.User{
		Username:           "alice",
		PasswordHash:       "digest",
		Enabled:            true,
		Locked:             true,
		CredentialsExpired: true,
		Authorities:        []string{"ROLE_USER"},
		LoggedInAt:         &at,
	}

	cred := user.Credential()
	assert.Equal(t, "alice", cred.Username)
	assert.Equal(t, "digest", cred.PasswordDigest)
	assert.True(t, cred.Enabled)
	assert.True(t, cred.Locked)
	assert.True(t, cred.CredentialsExpired)
	assert.Equal(t, []string{"ROLE_USER"}, cred.Authorities)
	assert.Equal(t, at, *cred.LastLoginAt)

	// the mapped record owns its authority slice
	cred.Authorities[0] = "ROLE_ADMIN"
	assert.Equal(t, []string{"ROLE_USER"}, user.Authorities)
}

func TestProvisionUserMessageType(t *testing.T) {
	assert.Equal(t, "user.provision", secure.ProvisionUserMessage{}.Type())
}
