package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Credential validation errors (recorded in the auth log, never returned to clients)
	ErrMalformedCredential = errors.New("credential has an invalid format")
	ErrUnknownCredential   = errors.New("credential is unknown or inactive")
	ErrExpiredCredential   = errors.New("credential has expired")
	ErrIPNotAllowlisted    = errors.New("client ip is not allowlisted for credential")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")

	// Brute force protection errors
	ErrLocked     = errors.New("subject is temporarily locked out")
	ErrDenylisted = errors.New("subject is denylisted")

	ErrStoreUnavailable = errors.New("protection store unavailable")
)

// Audit reasons written to the auth log
const (
	ReasonInvalidFormat     = "invalid_format"
	ReasonUnknownCredential = "unknown_credential"
	ReasonExpired           = "expired"
	ReasonIPNotAllowed      = "ip_not_allowed"
	ReasonRateLimited       = "rate_limited"
	ReasonStoreUnavailable  = "store_unavailable"
	ReasonLocked            = "locked"
	ReasonDenylisted        = "denylisted"
)

// ReasonFor maps an error from the taxonomy above to its audit reason.
func ReasonFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedCredential):
		return ReasonInvalidFormat
	case errors.Is(err, ErrUnknownCredential):
		return ReasonUnknownCredential
	case errors.Is(err, ErrExpiredCredential):
		return ReasonExpired
	case errors.Is(err, ErrIPNotAllowlisted):
		return ReasonIPNotAllowed
	case errors.Is(err, ErrRateLimitExceeded):
		return ReasonRateLimited
	case errors.Is(err, ErrLocked):
		return ReasonLocked
	case errors.Is(err, ErrDenylisted):
		return ReasonDenylisted
	default:
		return ReasonStoreUnavailable
	}
}
