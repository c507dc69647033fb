package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mssola/useragent"
	"golang.org/x/sync/errgroup"

	"github.com/rizonesoft/isotone-sub002/internal/metrics"
	"github.com/rizonesoft/isotone-sub002/internal/models"
	"github.com/rizonesoft/isotone-sub002/pkg/logger"
)

// LoginAttemptRepository is the storage behind the attempt ledger
type LoginAttemptRepository interface {
	Create(ctx context.Context, attempt *models.LoginAttempt) error
	CountFailuresByIP(ctx context.Context, ipAddress string, since time.Time) (int, error)
	CountFailuresByIPAndUsername(ctx context.Context, ipAddress, username string, since time.Time) (int, error)
	CountFailuresByUsername(ctx context.Context, username string, since time.Time) (int, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListFailed(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error)
}

// DefaultFailureWindow is used when a caller passes a non-positive window
const DefaultFailureWindow = 900 * time.Second

// AttemptLedger records login attempts and answers windowed failure counts
type AttemptLedger struct {
	repo         LoginAttemptRepository
	audit        *logger.AuditLogger
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
	storeTimeout time.Duration
}

// NewAttemptLedger creates a new AttemptLedger
func NewAttemptLedger(repo LoginAttemptRepository, audit *logger.AuditLogger, logger *slog.Logger, m *metrics.Metrics, storeTimeout time.Duration) *AttemptLedger {
	return &AttemptLedger{
		repo:         repo,
		audit:        audit,
		logger:       logger,
		metrics:      m,
		now:          time.Now,
		storeTimeout: storeTimeout,
	}
}

// SetClock replaces the time source
func (l *AttemptLedger) SetClock(now func() time.Time) {
	l.now = now
}

// RecordAttempt appends an attempt and then purges attempts past retention.
// Persistence failures are logged, never returned.
func (l *AttemptLedger) RecordAttempt(ctx context.Context, ip, username string, success bool, userAgent string) {
	now := l.now().UTC()

	attempt := &models.LoginAttempt{
		IPAddress:   ip,
		UserAgent:   userAgent,
		AttemptTime: now,
		Success:     success,
	}
	if username != "" {
		attempt.Username = &username
	}

	if !success {
		l.audit.LogLoginAttempt(ctx, ip, username, deviceLabel(userAgent), false)
	}

	storeCtx, cancel := withStoreTimeout(ctx, l.storeTimeout)
	defer cancel()

	if err := l.repo.Create(storeCtx, attempt); err != nil {
		l.metrics.IncStoreError("ledger")
		l.logger.ErrorContext(ctx, "failed to record login attempt",
			slog.String("ip_address", ip),
			slog.Bool("success", success),
			slog.Any("error", err),
		)
		return
	}

	purgeCtx, cancelPurge := withStoreTimeout(ctx, l.storeTimeout)
	defer cancelPurge()

	removed, err := l.repo.DeleteBefore(purgeCtx, now.Add(-models.AttemptRetention))
	if err != nil {
		l.logger.WarnContext(ctx, "failed to purge old login attempts", slog.Any("error", err))
		return
	}
	if removed > 0 {
		l.logger.DebugContext(ctx, "purged old login attempts", slog.Int64("removed", removed))
	}
}

// CountRecentFailures returns max(ip failures, username failures) within window.
// The two counts are never summed. With a username, the ip signal is scoped to
// that (ip, username) pair, so users behind one address do not share a budget.
// Without one, every failure from the ip counts and the username side is 0.
func (l *AttemptLedger) CountRecentFailures(ctx context.Context, ip, username string, window time.Duration) (int, error) {
	if window <= 0 {
		window = DefaultFailureWindow
	}
	since := l.now().UTC().Add(-window)

	ctx, cancel := withStoreTimeout(ctx, l.storeTimeout)
	defer cancel()

	if username == "" {
		n, err := l.repo.CountFailuresByIP(ctx, ip, since)
		if err != nil {
			return 0, storeError("count recent failures", fmt.Errorf("count ip failures: %w", err))
		}
		return n, nil
	}

	var ipCount, userCount int
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := l.repo.CountFailuresByIPAndUsername(gctx, ip, username, since)
		if err != nil {
			return fmt.Errorf("count ip failures: %w", err)
		}
		ipCount = n
		return nil
	})

	g.Go(func() error {
		n, err := l.repo.CountFailuresByUsername(gctx, username, since)
		if err != nil {
			return fmt.Errorf("count username failures: %w", err)
		}
		userCount = n
		return nil
	})

	if err := g.Wait(); err != nil {
		return 0, storeError("count recent failures", err)
	}

	return max(ipCount, userCount), nil
}

// ListFailedAttempts returns failed attempts newest first
func (l *AttemptLedger) ListFailedAttempts(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error) {
	ctx, cancel := withStoreTimeout(ctx, l.storeTimeout)
	defer cancel()

	attempts, err := l.repo.ListFailed(ctx, limit, offset)
	if err != nil {
		return nil, storeError("list failed attempts", err)
	}
	return attempts, nil
}

// deviceLabel renders a short human label for a user agent, e.g. "Firefox on Linux"
func deviceLabel(userAgent string) string {
	if userAgent == "" {
		return ""
	}

	ua := useragent.New(userAgent)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot: " + name
	}

	name, _ := ua.Browser()
	platform := ua.OS()
	switch {
	case name == "" && platform == "":
		return ""
	case platform == "":
		return name
	case name == "":
		return platform
	}

	label := name + " on " + platform
	if ua.Mobile() {
		label += " (mobile)"
	}
	return label
}
