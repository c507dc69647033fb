package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/rizonesoft/isotone-sub002/internal/models"
	"github.com/rizonesoft/isotone-sub002/internal/settings"
)

// AccessListRepository is the storage behind the allow and deny lists
type AccessListRepository interface {
	Upsert(ctx context.Context, entry *models.ListEntry) (*models.ListEntry, error)
	IsListed(ctx context.Context, scope models.ListScope, subject string, listType models.ListType) (bool, error)
	Deactivate(ctx context.Context, scope models.ListScope, subject string, listType models.ListType) error
	List(ctx context.Context, listType models.ListType, scope models.ListScope) ([]*models.ListEntry, error)
}

// SettingsSource hands out the current protection settings
type SettingsSource interface {
	Current() settings.Settings
}

// AccessListService resolves allow and deny membership, gated by the list toggles
type AccessListService struct {
	repo         AccessListRepository
	settings     SettingsSource
	logger       *slog.Logger
	now          func() time.Time
	storeTimeout time.Duration
}

// NewAccessListService creates a new AccessListService
func NewAccessListService(repo AccessListRepository, src SettingsSource, logger *slog.Logger, storeTimeout time.Duration) *AccessListService {
	return &AccessListService{
		repo:         repo,
		settings:     src,
		logger:       logger,
		now:          time.Now,
		storeTimeout: storeTimeout,
	}
}

// SetClock replaces the time source
func (s *AccessListService) SetClock(now func() time.Time) {
	s.now = now
}

// IsDenylisted reports active deny membership. A disabled toggle answers false without a lookup.
func (s *AccessListService) IsDenylisted(ctx context.Context, scope models.ListScope, subject string) (bool, error) {
	return s.isListed(ctx, scope, subject, models.ListTypeDeny)
}

// IsSafelisted reports active allow membership. A disabled toggle answers false without a lookup.
func (s *AccessListService) IsSafelisted(ctx context.Context, scope models.ListScope, subject string) (bool, error) {
	return s.isListed(ctx, scope, subject, models.ListTypeAllow)
}

func (s *AccessListService) isListed(ctx context.Context, scope models.ListScope, subject string, listType models.ListType) (bool, error) {
	if subject == "" || !s.enabled(scope, listType) {
		return false, nil
	}
	if scope == models.ScopeIP {
		if ip := net.ParseIP(subject); ip != nil {
			subject = ip.String()
		}
	}

	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	listed, err := s.repo.IsListed(ctx, scope, subject, listType)
	if err != nil {
		return false, storeError(fmt.Sprintf("check %s %slist", scope, listType), err)
	}
	return listed, nil
}

func (s *AccessListService) enabled(scope models.ListScope, listType models.ListType) bool {
	cfg := s.settings.Current()
	switch {
	case scope == models.ScopeIP && listType == models.ListTypeDeny:
		return cfg.EnableIPDenylist
	case scope == models.ScopeIP && listType == models.ListTypeAllow:
		return cfg.EnableIPSafelist
	case scope == models.ScopeUsername && listType == models.ListTypeDeny:
		return cfg.EnableUsernameDenylist
	case scope == models.ScopeUsername && listType == models.ListTypeAllow:
		return cfg.EnableUsernameSafelist
	}
	return false
}

// AddToList upserts an entry on (subject, list type, scope), reactivating it and
// overwriting reason and addedBy.
func (s *AccessListService) AddToList(ctx context.Context, scope models.ListScope, subject string, listType models.ListType, reason, addedBy string) (*models.ListEntry, error) {
	subject, err := normalizeSubject(scope, subject)
	if err != nil {
		return nil, err
	}
	if listType != models.ListTypeAllow && listType != models.ListTypeDeny {
		return nil, fmt.Errorf("invalid list type %q: %w", listType, models.ErrBadRequest)
	}

	entry := &models.ListEntry{
		Subject:  subject,
		ListType: listType,
		Scope:    scope,
		AddedAt:  s.now().UTC(),
		Active:   true,
	}
	if reason != "" {
		entry.Reason = &reason
	}
	if addedBy != "" {
		entry.AddedBy = &addedBy
	}

	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	saved, err := s.repo.Upsert(ctx, entry)
	if err != nil {
		return nil, storeError("add list entry", err)
	}

	s.logger.InfoContext(ctx, "access list entry saved",
		slog.String("scope", string(scope)),
		slog.String("list_type", string(listType)),
		slog.String("added_by", addedBy),
	)
	return saved, nil
}

// RemoveFromList deactivates an entry. Returns ErrNotFound when no active entry matches.
func (s *AccessListService) RemoveFromList(ctx context.Context, scope models.ListScope, subject string, listType models.ListType) error {
	subject, err := normalizeSubject(scope, subject)
	if err != nil {
		return err
	}

	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.repo.Deactivate(ctx, scope, subject, listType); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		return storeError("remove list entry", err)
	}
	return nil
}

// ListEntries returns active entries. Empty filters match everything.
func (s *AccessListService) ListEntries(ctx context.Context, listType models.ListType, scope models.ListScope) ([]*models.ListEntry, error) {
	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	entries, err := s.repo.List(ctx, listType, scope)
	if err != nil {
		return nil, storeError("list entries", err)
	}
	return entries, nil
}

// normalizeSubject validates a subject for its scope. IPs are stored in canonical form.
func normalizeSubject(scope models.ListScope, subject string) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", fmt.Errorf("subject is required: %w", models.ErrBadRequest)
	}

	switch scope {
	case models.ScopeIP:
		ip := net.ParseIP(subject)
		if ip == nil {
			return "", fmt.Errorf("invalid ip %q: %w", subject, models.ErrBadRequest)
		}
		return ip.String(), nil
	case models.ScopeUsername:
		return subject, nil
	}
	return "", fmt.Errorf("invalid list scope %q: %w", scope, models.ErrBadRequest)
}
