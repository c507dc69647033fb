package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/rizonesoft/isotone-sub002/internal/models"
	"github.com/rizonesoft/isotone-sub002/pkg/logger"
)

// AuthLogRepository is the storage behind the credential audit trail
type AuthLogRepository interface {
	Create(ctx context.Context, entry *models.AuthLogEntry) error
	List(ctx context.Context, success *bool, limit, offset int) ([]*models.AuthLogEntry, error)
}

// RequestInfo is the request context recorded alongside an authentication outcome
type RequestInfo struct {
	IP        string
	UserAgent string
	Endpoint  string
	Method    string
}

// AuditService records credential authentication outcomes with a dual write (slog + database)
type AuditService struct {
	repo         AuthLogRepository
	audit        *logger.AuditLogger
	logger       *slog.Logger
	now          func() time.Time
	storeTimeout time.Duration
}

// NewAuditService creates a new AuditService
func NewAuditService(repo AuthLogRepository, audit *logger.AuditLogger, logger *slog.Logger, storeTimeout time.Duration) *AuditService {
	return &AuditService{
		repo:         repo,
		audit:        audit,
		logger:       logger,
		now:          time.Now,
		storeTimeout: storeTimeout,
	}
}

// SetClock replaces the time source
func (s *AuditService) SetClock(now func() time.Time) {
	s.now = now
}

// LogCredentialAuth records one authentication outcome. Only a truncated
// prefix of the presented secret is kept. It never fails the caller.
func (s *AuditService) LogCredentialAuth(ctx context.Context, secret string, success bool, reason string, info RequestInfo) {
	s.audit.LogCredentialAuth(ctx, secret, info.IP, info.Endpoint, success, reason)

	entry := &models.AuthLogEntry{
		CredentialPrefix: models.TruncateCredential(secret),
		Success:          success,
		IPAddress:        info.IP,
		UserAgent:        info.UserAgent,
		Endpoint:         info.Endpoint,
		CreatedAt:        s.now().UTC(),
	}
	if reason != "" {
		entry.Reason = &reason
	}

	// The request may already be past its store deadline when a rejection is logged
	ctx, cancel := withStoreTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist auth log entry",
			slog.Bool("success", success),
			slog.String("reason", reason),
			slog.Any("error", err),
		)
	}
}

// ListAuthLog returns entries newest first for the admin surface
func (s *AuditService) ListAuthLog(ctx context.Context, success *bool, limit, offset int) ([]*models.AuthLogEntry, error) {
	limit, offset = clampPage(limit, offset)

	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	entries, err := s.repo.List(ctx, success, limit, offset)
	if err != nil {
		return nil, storeError("list auth log", err)
	}
	return entries, nil
}

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// clampPage bounds admin listing parameters to 1..100 with a default of 50
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
