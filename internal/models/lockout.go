package models

import "time"

// Lockout is a time-bounded block on an (ip, username) pair.
// Expiry is lazy: a row stops governing once UnlockAt passes, it is never swept.
type Lockout struct {
	ID              string    `db:"id" json:"id"`
	SubjectIP       *string   `db:"subject_ip" json:"subject_ip,omitempty"`
	SubjectUsername *string   `db:"subject_username" json:"subject_username,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UnlockAt        time.Time `db:"unlock_at" json:"unlock_at"`
	Reason          string    `db:"reason" json:"reason"`
	Active          bool      `db:"active" json:"active"`
}

// IsEffective reports whether the lockout still blocks at the given instant
func (l *Lockout) IsEffective(now time.Time) bool {
	return l.Active && l.UnlockAt.After(now)
}

// Remaining returns the wait left at the given instant, never negative
func (l *Lockout) Remaining(now time.Time) time.Duration {
	if !l.IsEffective(now) {
		return 0
	}
	return l.UnlockAt.Sub(now)
}

// Decision is the result of a brute force check for a login request
type Decision struct {
	Blocked           bool   `json:"blocked"`
	WaitTimeSeconds   *int   `json:"wait_time_seconds,omitempty"`
	Message           string `json:"message,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

// DeniedWaitHint is the wait shown to denylisted subjects. It is a UX hint, not a timer.
const DeniedWaitHint = 15 * time.Minute
