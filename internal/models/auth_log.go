package models

import "time"

// AuthLogEntry is an append-only record of an API credential authentication outcome.
// Only a truncated credential prefix is retained, never the secret.
type AuthLogEntry struct {
	ID               string    `json:"id"`
	CredentialPrefix string    `json:"credential_prefix"`
	Success          bool      `json:"success"`
	Reason           *string   `json:"reason,omitempty"`
	IPAddress        string    `json:"ip_address"`
	UserAgent        string    `json:"user_agent"`
	Endpoint         string    `json:"endpoint"`
	CreatedAt        time.Time `json:"created_at"`
}

// CredentialPrefixLength is how many leading characters of a presented secret are logged
const CredentialPrefixLength = 12

// TruncateCredential returns the loggable prefix of a presented secret
func TruncateCredential(secret string) string {
	if len(secret) <= CredentialPrefixLength {
		if len(secret) <= 4 {
			return secret
		}
		return secret[:4]
	}
	return secret[:CredentialPrefixLength]
}
