package secure_test

import (
	"context"
	"testing"
	"time"

	secure "github.com/goliatone/go-secure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRejectsInvalidRecords(t *testing.T) {
	_, err := secure.NewMemoryStore(&secure.Credential{Username: "no-digest"})
	require.Error(t, err)

	_, err = secure.NewMemoryStore(&secure.Credential{PasswordDigest: "no-username"})
	require.Error(t, err)
}

func TestMemoryStoreLookup(t *testing.T) {
	store, err := secure.NewMemoryStore(activeCredential("Alice", "pw", "ROLE_USER"))
	require.NoError(t, err)

	ctx := context.Background()

	cred, err := store.GetByIdentifier(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", cred.Username)

	// identifiers normalize case and whitespace
	cred, err = store.GetByIdentifier(ctx, "  ALICE ")
	require.NoError(t, err)
	assert.Equal(t, "Alice", cred.Username)

	_, err = store.GetByIdentifier(ctx, "bob")
	assert.ErrorIs(t, err, secure.ErrIdentityNotFound)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store, err := secure.NewMemoryStore(activeCredential("alice", "pw", "ROLE_USER"))
	require.NoError(t, err)

	cred, err := store.GetByIdentifier(context.Background(), "alice")
	require.NoError(t, err)

	cred.Authorities[0] = "ROLE_ADMIN"
	cred.Enabled = false

	again, err := store.GetByIdentifier(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_USER"}, again.Authorities)
	assert.True(t, again.Enabled)
}

func TestMemoryStoreTrackSuccessfulLogin(t *testing.T) {
	store, err := secure.NewMemoryStore(activeCredential("alice", "pw"))
	require.NoError(t, err)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.TrackSuccessfulLogin(context.Background(), "alice", at))

	cred, err := store.GetByIdentifier(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, cred.LastLoginAt)
	assert.Equal(t, at, *cred.LastLoginAt)

	err = store.TrackSuccessfulLogin(context.Background(), "nobody", at)
	assert.ErrorIs(t, err, secure.ErrIdentityNotFound)
}

func TestMemoryStoreHonorsContext(t *testing.T) {
	store, err := secure.NewMemoryStore(activeCredential("alice", "pw"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.GetByIdentifier(ctx, "alice")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultDemoCredentials(t *testing.T) {
	creds := secure.DefaultDemoCredentials()
	require.Len(t, creds, 4)

	store, err := secure.NewMemoryStore(creds...)
	require.NoError(t, err)

	admin, err := store.GetByIdentifier(context.Background(), "admin")
	require.NoError(t, err)
	p := admin.Principal()
	assert.True(t, p.HasRole("ADMIN"))
	assert.True(t, p.HasRole("USER"))

	guest, err := store.GetByIdentifier(context.Background(), "guest")
	require.NoError(t, err)
	assert.True(t, guest.Principal().HasAuthority("READ_ONLY"))
	assert.False(t, guest.Principal().HasRole("READ_ONLY"))
}
