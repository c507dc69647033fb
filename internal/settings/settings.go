// Package settings resolves the typed brute force settings from the
// protection_settings table over the configured defaults.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rizonesoft/isotone-sub002/internal/config"
	"github.com/rizonesoft/isotone-sub002/internal/models"
)

// Settings is the resolved, typed view consumed by the protection services
type Settings struct {
	MaxLoginAttempts       int
	LockoutDuration        time.Duration
	ResetTime              time.Duration
	EnableIPDenylist       bool
	EnableIPSafelist       bool
	EnableUsernameDenylist bool
	EnableUsernameSafelist bool
	ShowRemainingAttempts  bool
	LockoutMessage         string
	NotifyAdminLockout     bool
}

// FromConfig builds Settings from the environment defaults
func FromConfig(cfg config.ProtectionConfig) Settings {
	return Settings{
		MaxLoginAttempts:       cfg.MaxLoginAttempts,
		LockoutDuration:        cfg.LockoutDuration,
		ResetTime:              cfg.ResetTime,
		EnableIPDenylist:       cfg.EnableIPDenylist,
		EnableIPSafelist:       cfg.EnableIPSafelist,
		EnableUsernameDenylist: cfg.EnableUsernameDenylist,
		EnableUsernameSafelist: cfg.EnableUsernameSafelist,
		ShowRemainingAttempts:  cfg.ShowRemainingAttempts,
		LockoutMessage:         cfg.LockoutMessage,
		NotifyAdminLockout:     cfg.NotifyAdminLockout,
	}
}

// Apply overlays one parsed setting. Unknown keys are rejected.
func (s *Settings) Apply(key string, v models.SettingValue) error {
	want, ok := models.SettingTypes[key]
	if !ok {
		return fmt.Errorf("unknown setting %q: %w", key, models.ErrBadRequest)
	}
	if v.Type != want {
		return fmt.Errorf("setting %s must be %s, got %s: %w", key, want, v.Type, models.ErrBadRequest)
	}

	switch key {
	case models.SettingMaxLoginAttempts:
		if v.Int < 1 {
			return fmt.Errorf("setting %s must be at least 1: %w", key, models.ErrBadRequest)
		}
		s.MaxLoginAttempts = v.Int
	case models.SettingLockoutDuration:
		if v.Int < 1 {
			return fmt.Errorf("setting %s must be positive: %w", key, models.ErrBadRequest)
		}
		s.LockoutDuration = time.Duration(v.Int) * time.Second
	case models.SettingResetTime:
		if v.Int < 1 {
			return fmt.Errorf("setting %s must be positive: %w", key, models.ErrBadRequest)
		}
		s.ResetTime = time.Duration(v.Int) * time.Second
	case models.SettingEnableIPDenylist:
		s.EnableIPDenylist = v.Bool
	case models.SettingEnableIPSafelist:
		s.EnableIPSafelist = v.Bool
	case models.SettingEnableUsernameDenylist:
		s.EnableUsernameDenylist = v.Bool
	case models.SettingEnableUsernameSafelist:
		s.EnableUsernameSafelist = v.Bool
	case models.SettingShowRemainingAttempts:
		s.ShowRemainingAttempts = v.Bool
	case models.SettingLockoutMessage:
		s.LockoutMessage = v.String
	case models.SettingNotifyAdminLockout:
		s.NotifyAdminLockout = v.Bool
	}
	return nil
}

// Rows renders the settings back into raw rows for the admin surface
func (s Settings) Rows() []models.Setting {
	return []models.Setting{
		{Key: models.SettingMaxLoginAttempts, Value: strconv.Itoa(s.MaxLoginAttempts), Type: models.SettingTypeInteger},
		{Key: models.SettingLockoutDuration, Value: strconv.Itoa(int(s.LockoutDuration / time.Second)), Type: models.SettingTypeInteger},
		{Key: models.SettingResetTime, Value: strconv.Itoa(int(s.ResetTime / time.Second)), Type: models.SettingTypeInteger},
		{Key: models.SettingEnableIPDenylist, Value: strconv.FormatBool(s.EnableIPDenylist), Type: models.SettingTypeBoolean},
		{Key: models.SettingEnableIPSafelist, Value: strconv.FormatBool(s.EnableIPSafelist), Type: models.SettingTypeBoolean},
		{Key: models.SettingEnableUsernameDenylist, Value: strconv.FormatBool(s.EnableUsernameDenylist), Type: models.SettingTypeBoolean},
		{Key: models.SettingEnableUsernameSafelist, Value: strconv.FormatBool(s.EnableUsernameSafelist), Type: models.SettingTypeBoolean},
		{Key: models.SettingShowRemainingAttempts, Value: strconv.FormatBool(s.ShowRemainingAttempts), Type: models.SettingTypeBoolean},
		{Key: models.SettingLockoutMessage, Value: s.LockoutMessage, Type: models.SettingTypeString},
		{Key: models.SettingNotifyAdminLockout, Value: strconv.FormatBool(s.NotifyAdminLockout), Type: models.SettingTypeBoolean},
	}
}

// Repository is the storage used to load and persist settings
type Repository interface {
	List(ctx context.Context) ([]*models.Setting, error)
	Upsert(ctx context.Context, s *models.Setting) (*models.Setting, error)
}

// Provider hands out the current Settings. Reads are lock free.
type Provider struct {
	current  atomic.Pointer[Settings]
	defaults Settings
	repo     Repository
	logger   *slog.Logger
	now      func() time.Time
}

// NewProvider creates a provider seeded with the defaults. Call Load to overlay stored rows.
func NewProvider(defaults Settings, repo Repository, logger *slog.Logger) *Provider {
	p := &Provider{defaults: defaults, repo: repo, logger: logger, now: time.Now}
	d := defaults
	p.current.Store(&d)
	return p
}

// Static returns a provider with fixed settings and no backing store
func Static(s Settings) *Provider {
	return NewProvider(s, nil, slog.Default())
}

// Current returns a snapshot of the active settings
func (p *Provider) Current() Settings {
	return *p.current.Load()
}

// Load resolves stored rows over the defaults. Rows that fail to parse are
// logged and skipped so one bad row cannot disable protection.
func (p *Provider) Load(ctx context.Context) error {
	if p.repo == nil {
		return nil
	}

	rows, err := p.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	resolved := p.defaults
	for _, row := range rows {
		v, err := row.Parse()
		if err == nil {
			err = resolved.Apply(row.Key, v)
		}
		if err != nil {
			p.logger.Warn("ignoring invalid protection setting",
				slog.String("key", row.Key),
				slog.Any("error", err),
			)
		}
	}

	p.current.Store(&resolved)
	return nil
}

// Update validates, persists and publishes a single setting
func (p *Provider) Update(ctx context.Context, key, value string) (Settings, error) {
	typ, ok := models.SettingTypes[key]
	if !ok {
		return Settings{}, fmt.Errorf("unknown setting %q: %w", key, models.ErrBadRequest)
	}

	row := models.Setting{Key: key, Value: value, Type: typ, UpdatedAt: p.now().UTC()}
	v, err := row.Parse()
	if err != nil {
		return Settings{}, err
	}

	next := p.Current()
	if err := next.Apply(key, v); err != nil {
		return Settings{}, err
	}

	if p.repo != nil {
		if _, err := p.repo.Upsert(ctx, &row); err != nil {
			return Settings{}, err
		}
	}

	p.current.Store(&next)
	p.logger.Info("protection setting updated", slog.String("key", key))
	return next, nil
}
