package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"

	"github.com/rizonesoft/isotone-sub002/internal/models"
)

// credentialPattern is the accepted shape of a presented API secret
var credentialPattern = regexp.MustCompile(`^iso_(live|test)_sk_[A-Za-z0-9]{32,}$`)

const (
	secretRandomBytes = 24 // 48 hex chars

	// DisplayPrefixLength covers the env tag plus a few random chars so
	// administrators can tell credentials apart in listings.
	DisplayPrefixLength = 16
)

// CredentialManager handles secret generation, hashing and verification
type CredentialManager struct {
	cost int
}

// NewCredentialManager creates a manager hashing with the given bcrypt cost
func NewCredentialManager(cost int) *CredentialManager {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &CredentialManager{cost: cost}
}

// Generate creates a new secret in the format iso_<env>_sk_<48 hex chars>.
// Returns the plaintext (shown once), its bcrypt hash and its display prefix.
func (m *CredentialManager) Generate(env string) (secret, hash, prefix string, err error) {
	if env != models.CredentialEnvLive && env != models.CredentialEnvTest {
		return "", "", "", fmt.Errorf("invalid credential environment %q: %w", env, models.ErrBadRequest)
	}

	randomBytes := make([]byte, secretRandomBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	secret = "iso_" + env + "_sk_" + hex.EncodeToString(randomBytes)

	hash, err = m.Hash(secret)
	if err != nil {
		return "", "", "", err
	}

	return secret, hash, secret[:DisplayPrefixLength], nil
}

// Hash returns the salted bcrypt hash of a secret
func (m *CredentialManager) Hash(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), m.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash credential: %w", err)
	}
	return string(hashed), nil
}

// ValidFormat reports whether the secret matches the credential pattern
func (m *CredentialManager) ValidFormat(secret string) bool {
	return credentialPattern.MatchString(secret)
}

// Verify compares a presented secret against a stored hash
func (m *CredentialManager) Verify(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
