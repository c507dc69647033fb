package models

import (
	"time"
)

// APICredential is a hashed API secret with its permissions and usage metadata
type APICredential struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	SecretHash   string     `json:"-"` // Never exposed
	SecretPrefix string     `json:"secret_prefix"`
	Name         string     `json:"name"`
	Permissions  []string   `json:"permissions"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	IPAllowlist  []string   `json:"ip_allowlist"`
	IsActive     bool       `json:"is_active"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	UsageCount   int64      `json:"usage_count"`
}

// GeneratedCredential is returned once when a credential is created (includes plaintext)
type GeneratedCredential struct {
	Secret     string         `json:"secret"` // Shown ONLY once at creation
	Credential *APICredential `json:"credential"`
}

// IsExpired reports whether the credential has passed its expiry at the given instant
func (c *APICredential) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// AllowsIP reports whether the client ip may use this credential.
// An empty allowlist allows every ip.
func (c *APICredential) AllowsIP(ip string) bool {
	if len(c.IPAllowlist) == 0 {
		return true
	}
	for _, allowed := range c.IPAllowlist {
		if allowed == ip {
			return true
		}
	}
	return false
}

// Identity is the resolved caller of an authenticated API request
type Identity struct {
	UserID       string   `json:"user_id"`
	CredentialID string   `json:"credential_id"`
	Name         string   `json:"name"`
	Permissions  []string `json:"permissions"`
}

// Credential environments encoded in the secret
const (
	CredentialEnvLive = "live"
	CredentialEnvTest = "test"
)
