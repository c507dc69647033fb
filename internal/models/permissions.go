package models

import "strings"

// Permission constants used by the protection service's own endpoints
const (
	PermissionProtectionRead   = "protection.read"
	PermissionProtectionWrite  = "protection.write"
	PermissionCredentialsWrite = "credentials.write"
	PermissionSettingsRead     = "settings.read"
	PermissionSettingsWrite    = "settings.write"

	// Wildcard permission - grants everything
	PermissionAll = "*"
)

// MatchPermission reports whether a granted permission satisfies a required one.
// Supports exact match, "*" and a single trailing "<namespace>.*" segment.
func MatchPermission(granted, required string) bool {
	if granted == PermissionAll || granted == required {
		return true
	}
	namespace, ok := strings.CutSuffix(granted, ".*")
	if !ok || namespace == "" || strings.Contains(namespace, "*") {
		return false
	}
	rest, ok := strings.CutPrefix(required, namespace+".")
	return ok && rest != ""
}

// HasPermission checks if a permission set contains the required permission
func HasPermission(permissions []string, required string) bool {
	for _, p := range permissions {
		if MatchPermission(p, required) {
			return true
		}
	}
	return false
}

// ValidatePermissions rejects empty sets and malformed wildcard patterns
func ValidatePermissions(permissions []string) error {
	if len(permissions) == 0 {
		return ErrBadRequest
	}
	for _, p := range permissions {
		if p == "" {
			return ErrBadRequest
		}
		if p == PermissionAll {
			continue
		}
		idx := strings.Index(p, "*")
		if idx >= 0 && (idx != len(p)-1 || !strings.HasSuffix(p, ".*") || len(p) < 3) {
			return ErrBadRequest
		}
	}
	return nil
}
