package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmuni/billdesk/auth"
	"github.com/openmuni/billdesk/billing/store"
)

// =============================================================================
// PASSWORD AUTHENTICATION
// =============================================================================

func TestAuthenticate_ValidAndInvalid(t *testing.T) {
	authn := auth.NewAuthenticator(store.NewMemory())
	ctx := context.Background()

	created, err := authn.CreateAdmin(ctx, "master", "Master@2024")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.NotEqual(t, "Master@2024", created.PasswordHash)

	admin, err := authn.Authenticate(ctx, "master", "Master@2024")
	require.NoError(t, err)
	assert.Equal(t, created.ID, admin.ID)

	// Wrong password and unknown user return the same error.
	_, err = authn.Authenticate(ctx, "master", "wrong-password")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = authn.Authenticate(ctx, "nobody", "Master@2024")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestCreateAdmin_RejectsWeakPassword(t *testing.T) {
	authn := auth.NewAuthenticator(store.NewMemory())

	_, err := authn.CreateAdmin(context.Background(), "master", "short")
	assert.ErrorIs(t, err, auth.ErrWeakPassword)
}

func TestSeedDefaultAdmin_OnlySeedsOnce(t *testing.T) {
	authn := auth.NewAuthenticator(store.NewMemory())
	ctx := context.Background()

	seeded, err := authn.SeedDefaultAdmin(ctx, "master", "Master@2024")
	require.NoError(t, err)
	assert.True(t, seeded)

	// Second run is a no-op: the existing account keeps its password.
	seeded, err = authn.SeedDefaultAdmin(ctx, "master", "Different@2024")
	require.NoError(t, err)
	assert.False(t, seeded)

	_, err = authn.Authenticate(ctx, "master", "Master@2024")
	assert.NoError(t, err)
}

// =============================================================================
// SESSION TOKENS
// =============================================================================

func TestJWT_GenerateAndValidate(t *testing.T) {
	mgr := auth.NewJWTManager("test-secret", time.Hour)
	admin := &auth.Admin{ID: "admin-1", Username: "master"}

	token, err := mgr.Generate(admin)
	require.NoError(t, err)

	claims, err := mgr.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.AdminID)
	assert.Equal(t, "master", claims.Username)
}

func TestJWT_RejectsForeignAndExpiredTokens(t *testing.T) {
	admin := &auth.Admin{ID: "admin-1", Username: "master"}

	// Token signed with a different secret.
	other := auth.NewJWTManager("other-secret", time.Hour)
	foreign, err := other.Generate(admin)
	require.NoError(t, err)

	mgr := auth.NewJWTManager("test-secret", time.Hour)
	_, err = mgr.Validate(foreign)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	// Token already past its lifetime.
	expiring := auth.NewJWTManager("test-secret", -time.Minute)
	expired, err := expiring.Generate(admin)
	require.NoError(t, err)
	_, err = expiring.Validate(expired)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = mgr.Validate("not-a-token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
