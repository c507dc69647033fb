package models

import "time"

// RateWindowRecord is one accepted request attributed to a credential
type RateWindowRecord struct {
	ID           string    `db:"id"`
	CredentialID string    `db:"credential_id"`
	RecordedAt   time.Time `db:"recorded_at"`
	Endpoint     string    `db:"endpoint"`
	Method       string    `db:"method"`
	IPAddress    string    `db:"ip_address"`
}

// RequestMeta describes the request being attributed to a credential's budget
type RequestMeta struct {
	Endpoint string
	Method   string
	IP       string
}

// Sliding window parameters for the per-credential limiter
const (
	RateWindow          = time.Hour
	RateRetention       = 24 * time.Hour
	DefaultHourlyBudget = 1000
)
