package models

import (
	"fmt"
	"time"
)

// ListType distinguishes allow (safelist) from deny entries
type ListType string

const (
	ListTypeAllow ListType = "allow"
	ListTypeDeny  ListType = "deny"
)

// ListScope is the kind of subject a list entry matches
type ListScope string

const (
	ScopeIP       ListScope = "ip"
	ScopeUsername ListScope = "username"
)

// ParseListType validates a list type string
func ParseListType(s string) (ListType, error) {
	t := ListType(s)
	if t != ListTypeAllow && t != ListTypeDeny {
		return "", fmt.Errorf("invalid list type %q: %w", s, ErrBadRequest)
	}
	return t, nil
}

// ParseListScope validates a list scope string
func ParseListScope(s string) (ListScope, error) {
	sc := ListScope(s)
	if sc != ScopeIP && sc != ScopeUsername {
		return "", fmt.Errorf("invalid list scope %q: %w", s, ErrBadRequest)
	}
	return sc, nil
}

// ListEntry is an administrator-curated allow or deny entry, unique on (subject, list_type, scope)
type ListEntry struct {
	ID       string    `db:"id" json:"id"`
	Subject  string    `db:"subject" json:"subject"`
	ListType ListType  `db:"list_type" json:"list_type"`
	Scope    ListScope `db:"scope" json:"scope"`
	Reason   *string   `db:"reason" json:"reason,omitempty"`
	AddedBy  *string   `db:"added_by" json:"added_by,omitempty"`
	AddedAt  time.Time `db:"added_at" json:"added_at"`
	Active   bool      `db:"active" json:"active"`
}
