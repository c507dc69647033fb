package models

import "time"

// LoginAttempt represents a single login POST seen by the protection layer
type LoginAttempt struct {
	ID          string    `db:"id" json:"id"`
	IPAddress   string    `db:"ip_address" json:"ip_address"`
	Username    *string   `db:"username" json:"username,omitempty"`
	UserAgent   string    `db:"user_agent" json:"user_agent"`
	AttemptTime time.Time `db:"attempt_time" json:"attempt_time"`
	Success     bool      `db:"success" json:"success"`
}

// AttemptRetention is how long login attempts are kept before the inline purge removes them
const AttemptRetention = 30 * 24 * time.Hour
