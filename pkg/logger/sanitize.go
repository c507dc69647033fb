package logger

import (
	"log/slog"
	"strings"
)

// credentialVisibleChars is how much of a secret may appear in logs
const credentialVisibleChars = 12

// SanitizeCredential keeps only the non-secret prefix of an API secret (e.g., "iso_live_sk_***")
func SanitizeCredential(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= credentialVisibleChars {
		return "***"
	}
	return secret[:credentialVisibleChars] + "***"
}

// MaskUsername masks a username for logging (e.g., "a****")
func MaskUsername(username string) string {
	if username == "" {
		return ""
	}
	if len(username) == 1 {
		return "*"
	}
	return username[:1] + strings.Repeat("*", len(username)-1)
}

// RedactedAttr returns a redacted slog attribute for sensitive values
// In production, returns "[REDACTED]"; in development, returns the actual value
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

// SanitizeQueryString checks if query string contains sensitive parameters
// and returns true if the entire query string should be redacted
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := []string{
		"password",
		"token",
		"secret",
		"api_key",
		"apikey",
		"auth",
		"username",
	}

	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
