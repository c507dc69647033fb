package models

import (
	"fmt"
	"strconv"
	"time"
)

// SettingType tags how a stored setting value is parsed
type SettingType string

const (
	SettingTypeString  SettingType = "string"
	SettingTypeInteger SettingType = "integer"
	SettingTypeBoolean SettingType = "boolean"
	SettingTypeFloat   SettingType = "float"
)

// Setting is a raw row of the protection_settings table
type Setting struct {
	Key       string      `json:"key"`
	Value     string      `json:"value"`
	Type      SettingType `json:"type"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// SettingValue is a setting resolved to its typed value
type SettingValue struct {
	Type   SettingType
	String string
	Int    int
	Bool   bool
	Float  float64
}

// Parse resolves the raw row into a typed value
func (s Setting) Parse() (SettingValue, error) {
	v := SettingValue{Type: s.Type}
	var err error
	switch s.Type {
	case SettingTypeString:
		v.String = s.Value
	case SettingTypeInteger:
		v.Int, err = strconv.Atoi(s.Value)
	case SettingTypeBoolean:
		v.Bool, err = strconv.ParseBool(s.Value)
	case SettingTypeFloat:
		v.Float, err = strconv.ParseFloat(s.Value, 64)
	default:
		return v, fmt.Errorf("setting %s has unknown type %q: %w", s.Key, s.Type, ErrBadRequest)
	}
	if err != nil {
		return v, fmt.Errorf("setting %s is not a valid %s: %w", s.Key, s.Type, ErrBadRequest)
	}
	return v, nil
}

// Named protection settings
const (
	SettingMaxLoginAttempts       = "max_login_attempts"
	SettingLockoutDuration        = "lockout_duration"
	SettingResetTime              = "reset_time"
	SettingEnableIPDenylist       = "enable_ip_denylist"
	SettingEnableIPSafelist       = "enable_ip_safelist"
	SettingEnableUsernameDenylist = "enable_username_denylist"
	SettingEnableUsernameSafelist = "enable_username_safelist"
	SettingShowRemainingAttempts  = "show_remaining_attempts"
	SettingLockoutMessage         = "lockout_message"
	SettingNotifyAdminLockout     = "notify_admin_lockout"
)

// SettingTypes is the whitelist of known settings and their value types
var SettingTypes = map[string]SettingType{
	SettingMaxLoginAttempts:       SettingTypeInteger,
	SettingLockoutDuration:        SettingTypeInteger,
	SettingResetTime:              SettingTypeInteger,
	SettingEnableIPDenylist:       SettingTypeBoolean,
	SettingEnableIPSafelist:       SettingTypeBoolean,
	SettingEnableUsernameDenylist: SettingTypeBoolean,
	SettingEnableUsernameSafelist: SettingTypeBoolean,
	SettingShowRemainingAttempts:  SettingTypeBoolean,
	SettingLockoutMessage:         SettingTypeString,
	SettingNotifyAdminLockout:     SettingTypeBoolean,
}
