package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rizonesoft/isotone-sub002/internal/metrics"
	"github.com/rizonesoft/isotone-sub002/internal/models"
)

// RateWindowRepository is the storage behind the per-credential sliding window
type RateWindowRepository interface {
	CountSince(ctx context.Context, credentialID string, since time.Time) (int, error)
	Create(ctx context.Context, rec *models.RateWindowRecord) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RateLimiter enforces an hourly request budget per API credential.
// The budget is shared across every ip presenting the credential.
type RateLimiter struct {
	repo         RateWindowRepository
	locker       Locker
	logger       *slog.Logger
	metrics      *metrics.Metrics
	budget       int
	now          func() time.Time
	storeTimeout time.Duration
}

// NewRateLimiter creates a limiter with the default hourly budget
func NewRateLimiter(repo RateWindowRepository, locker Locker, logger *slog.Logger, m *metrics.Metrics, storeTimeout time.Duration) *RateLimiter {
	return &RateLimiter{
		repo:         repo,
		locker:       locker,
		logger:       logger,
		metrics:      m,
		budget:       models.DefaultHourlyBudget,
		now:          time.Now,
		storeTimeout: storeTimeout,
	}
}

// SetClock replaces the time source
func (l *RateLimiter) SetClock(now func() time.Time) {
	l.now = now
}

// CheckAndRecord admits the request when the credential has budget left in the
// trailing hour and records it. A rejected request is not recorded.
// Waiting for the lock counts against the store timeout.
func (l *RateLimiter) CheckAndRecord(ctx context.Context, credentialID string, meta models.RequestMeta) (bool, error) {
	var now time.Time
	allowed := false

	lockCtx, cancel := withStoreTimeout(ctx, l.storeTimeout)
	defer cancel()

	err := l.locker.WithLock(lockCtx, "ratelimit:"+credentialID, func(ctx context.Context) error {
		// Read under the lock so RecordedAt is monotonic per credential
		now = l.now().UTC()

		count, err := l.repo.CountSince(ctx, credentialID, now.Add(-models.RateWindow))
		if err != nil {
			return storeError("count rate window", err)
		}
		if count >= l.budget {
			return nil
		}

		rec := &models.RateWindowRecord{
			CredentialID: credentialID,
			RecordedAt:   now,
			Endpoint:     meta.Endpoint,
			Method:       meta.Method,
			IPAddress:    meta.IP,
		}
		if err := l.repo.Create(ctx, rec); err != nil {
			return storeError("record rate window", err)
		}

		allowed = true
		return nil
	})
	if err != nil {
		if !errors.Is(err, models.ErrStoreUnavailable) {
			err = storeError("acquire rate limit lock", err)
		}
		return false, err
	}

	if !allowed {
		l.metrics.IncRateLimitRejection()
		return false, nil
	}

	l.prune(ctx, now)
	return true, nil
}

// prune drops records past the retention horizon. Failures are only logged.
func (l *RateLimiter) prune(ctx context.Context, now time.Time) {
	ctx, cancel := withStoreTimeout(ctx, l.storeTimeout)
	defer cancel()

	if _, err := l.repo.DeleteBefore(ctx, now.Add(-models.RateRetention)); err != nil {
		l.logger.WarnContext(ctx, "failed to prune rate window records", slog.Any("error", err))
	}
}
