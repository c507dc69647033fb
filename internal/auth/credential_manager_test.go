package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rizonesoft/isotone-sub002/internal/models"
)

func TestCredentialManager_Generate(t *testing.T) {
	m := NewCredentialManager(bcrypt.MinCost)

	for _, env := range []string{models.CredentialEnvLive, models.CredentialEnvTest} {
		t.Run(env, func(t *testing.T) {
			secret, hash, prefix, err := m.Generate(env)
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(secret, "iso_"+env+"_sk_"))
			assert.Len(t, secret, len("iso_"+env+"_sk_")+48)
			assert.True(t, m.ValidFormat(secret))
			assert.Equal(t, secret[:DisplayPrefixLength], prefix)
			assert.NotEqual(t, secret, hash)
			assert.True(t, m.Verify(hash, secret))
		})
	}
}

func TestCredentialManager_GenerateUnique(t *testing.T) {
	m := NewCredentialManager(bcrypt.MinCost)

	a, hashA, _, err := m.Generate(models.CredentialEnvLive)
	require.NoError(t, err)
	b, _, _, err := m.Generate(models.CredentialEnvLive)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.False(t, m.Verify(hashA, b))
}

func TestCredentialManager_GenerateRejectsUnknownEnv(t *testing.T) {
	m := NewCredentialManager(bcrypt.MinCost)

	_, _, _, err := m.Generate("staging")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestCredentialManager_ValidFormat(t *testing.T) {
	m := NewCredentialManager(bcrypt.MinCost)
	body := strings.Repeat("a1B2", 8) // 32 chars

	tests := []struct {
		name   string
		secret string
		valid  bool
	}{
		{"live minimum length", "iso_live_sk_" + body, true},
		{"test long", "iso_test_sk_" + body + body, true},
		{"too short", "iso_live_sk_" + body[:31], false},
		{"unknown env", "iso_prod_sk_" + body, false},
		{"wrong product prefix", "kmn_live_sk_" + body, false},
		{"non alphanumeric", "iso_live_sk_" + body[:31] + "-", false},
		{"trailing newline", "iso_live_sk_" + body + "\n", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, m.ValidFormat(tt.secret))
		})
	}
}

func TestCredentialManager_VerifyRejectsGarbageHash(t *testing.T) {
	m := NewCredentialManager(bcrypt.MinCost)
	assert.False(t, m.Verify("not-a-bcrypt-hash", "iso_live_sk_whatever"))
}
