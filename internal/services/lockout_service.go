package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rizonesoft/isotone-sub002/internal/metrics"
	"github.com/rizonesoft/isotone-sub002/internal/models"
	"github.com/rizonesoft/isotone-sub002/internal/settings"
	"github.com/rizonesoft/isotone-sub002/pkg/logger"
)

// LockoutRepository is the storage behind lockouts
type LockoutRepository interface {
	Create(ctx context.Context, lockout *models.Lockout) error
	FindActive(ctx context.Context, ip, username string, now time.Time) (*models.Lockout, error)
	Clear(ctx context.Context, ip, username string) (int64, error)
	ListActive(ctx context.Context, now time.Time) ([]*models.Lockout, error)
}

// LockoutNotifier tells an administrator that a lockout was placed
type LockoutNotifier interface {
	NotifyLockout(ctx context.Context, lockout *models.Lockout, failures int) error
}

const notifyTimeout = 5 * time.Second

// LockoutService decides whether a login may proceed.
// Order, first match wins: locked, denylisted, safelisted, failure threshold.
type LockoutService struct {
	repo         LockoutRepository
	ledger       *AttemptLedger
	lists        *AccessListService
	locker       Locker
	settings     SettingsSource
	notifier     LockoutNotifier
	audit        *logger.AuditLogger
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
	storeTimeout time.Duration
}

// LockoutDeps groups the collaborators of a LockoutService
type LockoutDeps struct {
	Repo     LockoutRepository
	Ledger   *AttemptLedger
	Lists    *AccessListService
	Locker   Locker
	Settings SettingsSource
	Notifier LockoutNotifier
	Audit    *logger.AuditLogger
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(deps LockoutDeps, storeTimeout time.Duration) *LockoutService {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NoopLockoutNotifier{}
	}
	return &LockoutService{
		repo:         deps.Repo,
		ledger:       deps.Ledger,
		lists:        deps.Lists,
		locker:       deps.Locker,
		settings:     deps.Settings,
		notifier:     notifier,
		audit:        deps.Audit,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		now:          time.Now,
		storeTimeout: storeTimeout,
	}
}

// SetClock replaces the time source
func (s *LockoutService) SetClock(now func() time.Time) {
	s.now = now
}

// CheckBruteForce evaluates a login request. Store failures are logged and
// the request is allowed through.
func (s *LockoutService) CheckBruteForce(ctx context.Context, ip, username string) models.Decision {
	start := time.Now()
	defer s.metrics.ObserveCheck(start)

	ctx, span := tracer.Start(ctx, "lockout.check_brute_force",
		trace.WithAttributes(attribute.Bool("has_username", username != "")))
	defer span.End()

	cfg := s.settings.Current()
	now := s.now().UTC()

	lockout, err := s.findActive(ctx, ip, username, now)
	if err != nil {
		return s.failOpen(ctx, span, "find active lockout", err)
	}
	if lockout != nil {
		s.metrics.IncLoginDecision(metrics.OutcomeLocked)
		span.SetAttributes(attribute.String("outcome", metrics.OutcomeLocked))
		return blockedDecision(cfg.LockoutMessage, lockout.Remaining(now))
	}

	denied, err := s.onList(ctx, s.lists.IsDenylisted, ip, username)
	if err != nil {
		return s.failOpen(ctx, span, "check denylist", err)
	}
	if denied {
		s.metrics.IncLoginDecision(metrics.OutcomeDenied)
		span.SetAttributes(attribute.String("outcome", metrics.OutcomeDenied))
		return blockedDecision(cfg.LockoutMessage, models.DeniedWaitHint)
	}

	safe, err := s.onList(ctx, s.lists.IsSafelisted, ip, username)
	if err != nil {
		return s.failOpen(ctx, span, "check safelist", err)
	}
	if safe {
		s.metrics.IncLoginDecision(metrics.OutcomeSafelisted)
		span.SetAttributes(attribute.String("outcome", metrics.OutcomeSafelisted))
		return models.Decision{Blocked: false}
	}

	count, err := s.ledger.CountRecentFailures(ctx, ip, username, cfg.ResetTime)
	if err != nil {
		return s.failOpen(ctx, span, "count recent failures", err)
	}
	span.SetAttributes(attribute.Int("failures", count))

	if count >= cfg.MaxLoginAttempts {
		wait, err := s.lockOut(ctx, cfg, ip, username, count, now)
		if err != nil {
			return s.failOpen(ctx, span, "create lockout", err)
		}
		s.metrics.IncLoginDecision(metrics.OutcomeThreshold)
		span.SetAttributes(attribute.String("outcome", metrics.OutcomeThreshold))
		return blockedDecision(cfg.LockoutMessage, wait)
	}

	s.metrics.IncLoginDecision(metrics.OutcomeAllowed)
	span.SetAttributes(attribute.String("outcome", metrics.OutcomeAllowed))

	decision := models.Decision{Blocked: false}
	if cfg.ShowRemainingAttempts {
		remaining := cfg.MaxLoginAttempts - count
		decision.RemainingAttempts = &remaining
	}
	return decision
}

func (s *LockoutService) findActive(ctx context.Context, ip, username string, now time.Time) (*models.Lockout, error) {
	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	lockout, err := s.repo.FindActive(ctx, ip, username, now)
	if err != nil {
		return nil, storeError("find active lockout", err)
	}
	return lockout, nil
}

// onList reports whether the ip or the username is on the list checked by lookup
func (s *LockoutService) onList(ctx context.Context, lookup func(context.Context, models.ListScope, string) (bool, error), ip, username string) (bool, error) {
	listed, err := lookup(ctx, models.ScopeIP, ip)
	if err != nil || listed {
		return listed, err
	}
	return lookup(ctx, models.ScopeUsername, username)
}

// lockOut places a lockout for the pair unless a concurrent request already did,
// and returns the wait the caller must observe.
func (s *LockoutService) lockOut(ctx context.Context, cfg settings.Settings, ip, username string, failures int, now time.Time) (time.Duration, error) {
	var created *models.Lockout
	var wait time.Duration

	lockCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	err := s.locker.WithLock(lockCtx, lockoutLockKey(ip, username), func(ctx context.Context) error {
		existing, err := s.findActive(ctx, ip, username, now)
		if err != nil {
			return err
		}
		if existing != nil {
			wait = existing.Remaining(now)
			return nil
		}

		lockout := &models.Lockout{
			CreatedAt: now,
			UnlockAt:  now.Add(cfg.LockoutDuration),
			Reason:    fmt.Sprintf("%d failed login attempts within %s", failures, cfg.ResetTime),
			Active:    true,
		}
		if ip != "" {
			lockout.SubjectIP = &ip
		}
		if username != "" {
			lockout.SubjectUsername = &username
		}

		if err := s.repo.Create(ctx, lockout); err != nil {
			return storeError("create lockout", err)
		}

		created = lockout
		wait = cfg.LockoutDuration
		return nil
	})
	if err != nil {
		return 0, err
	}

	if created != nil {
		s.metrics.IncLockoutCreated()
		s.audit.LogLockout(ctx, ip, username, failures, created.UnlockAt)
		s.logger.WarnContext(ctx, "lockout created",
			slog.String("ip_address", ip),
			slog.Int("failures", failures),
			slog.Time("unlock_at", created.UnlockAt),
		)
		if cfg.NotifyAdminLockout {
			s.notify(ctx, created, failures)
		}
	}

	return wait, nil
}

func (s *LockoutService) notify(ctx context.Context, lockout *models.Lockout, failures int) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := s.notifier.NotifyLockout(ctx, lockout, failures); err != nil {
		s.logger.ErrorContext(ctx, "failed to notify administrator of lockout",
			slog.String("lockout_id", lockout.ID),
			slog.Any("error", err),
		)
	}
}

func (s *LockoutService) failOpen(ctx context.Context, span trace.Span, op string, err error) models.Decision {
	s.metrics.IncStoreError("lockout")
	s.metrics.IncLoginDecision(metrics.OutcomeFailOpen)
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	s.logger.ErrorContext(ctx, "brute force check failed, allowing request",
		slog.String("operation", op),
		slog.Any("error", err),
	)
	return models.Decision{Blocked: false}
}

// ClearLockout deactivates every active lockout on the ip or username.
// Attempt history is left untouched.
func (s *LockoutService) ClearLockout(ctx context.Context, ip, username string) (int64, error) {
	if ip == "" && username == "" {
		return 0, fmt.Errorf("ip or username is required: %w", models.ErrBadRequest)
	}

	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	cleared, err := s.repo.Clear(ctx, ip, username)
	if err != nil {
		return 0, storeError("clear lockout", err)
	}

	s.logger.InfoContext(ctx, "lockout cleared",
		slog.String("ip_address", ip),
		slog.Int64("cleared", cleared),
	)
	return cleared, nil
}

// GetActiveLockouts returns every lockout still in force
func (s *LockoutService) GetActiveLockouts(ctx context.Context) ([]*models.Lockout, error) {
	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	lockouts, err := s.repo.ListActive(ctx, s.now().UTC())
	if err != nil {
		return nil, storeError("list active lockouts", err)
	}
	return lockouts, nil
}

// GetDeniedAttemptsLog returns failed login attempts newest first.
// limit is clamped to 1..100 and defaults to 50.
func (s *LockoutService) GetDeniedAttemptsLog(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error) {
	limit, offset = clampPage(limit, offset)
	return s.ledger.ListFailedAttempts(ctx, limit, offset)
}

func lockoutLockKey(ip, username string) string {
	return "lockout:" + ip + "\x00" + username
}

// blockedDecision builds a blocked decision whose message is rendered from tmpl
func blockedDecision(tmpl string, wait time.Duration) models.Decision {
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return models.Decision{
		Blocked:         true,
		WaitTimeSeconds: &seconds,
		Message:         renderLockoutMessage(tmpl, seconds),
	}
}

// renderLockoutMessage fills {minutes} (rounded up) and {seconds}
func renderLockoutMessage(tmpl string, seconds int) string {
	minutes := (seconds + 59) / 60
	return strings.NewReplacer(
		"{minutes}", strconv.Itoa(minutes),
		"{seconds}", strconv.Itoa(seconds),
	).Replace(tmpl)
}
