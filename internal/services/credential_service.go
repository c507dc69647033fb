package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rizonesoft/isotone-sub002/internal/auth"
	"github.com/rizonesoft/isotone-sub002/internal/metrics"
	"github.com/rizonesoft/isotone-sub002/internal/models"
	pkghttp "github.com/rizonesoft/isotone-sub002/pkg/http"
	"github.com/rizonesoft/isotone-sub002/pkg/logger"
)

// CredentialRepository is the storage behind API credentials
type CredentialRepository interface {
	Create(ctx context.Context, c *models.APICredential) error
	ListActive(ctx context.Context) ([]*models.APICredential, error)
	GetByID(ctx context.Context, id string) (*models.APICredential, error)
	List(ctx context.Context, limit, offset int) ([]*models.APICredential, error)
	RecordUsage(ctx context.Context, id string, at time.Time) error
	Revoke(ctx context.Context, id string) error
}

// CredentialSource names where a presented secret was found
type CredentialSource string

const (
	SourceNone   CredentialSource = ""
	SourceHeader CredentialSource = "header"
	SourceBearer CredentialSource = "bearer"
	SourceQuery  CredentialSource = "query"
)

// CredentialService authenticates API requests and manages credentials.
// Every rejection looks the same to the caller; the reason only reaches the auth log.
type CredentialService struct {
	repo         CredentialRepository
	manager      *auth.CredentialManager
	limiter      *RateLimiter
	audit        *AuditService
	adminAudit   *logger.AuditLogger
	ipConfig     *pkghttp.IPConfig
	allowQuery   bool
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
	storeTimeout time.Duration
}

// CredentialDeps groups the collaborators of a CredentialService
type CredentialDeps struct {
	Repo       CredentialRepository
	Manager    *auth.CredentialManager
	Limiter    *RateLimiter
	Audit      *AuditService
	AdminAudit *logger.AuditLogger
	IPConfig   *pkghttp.IPConfig
	Logger     *slog.Logger
	Metrics    *metrics.Metrics

	// AllowQueryCredentials keeps the deprecated ?api_key= fallback working
	AllowQueryCredentials bool
}

// NewCredentialService creates a new CredentialService
func NewCredentialService(deps CredentialDeps, storeTimeout time.Duration) *CredentialService {
	return &CredentialService{
		repo:         deps.Repo,
		manager:      deps.Manager,
		limiter:      deps.Limiter,
		audit:        deps.Audit,
		adminAudit:   deps.AdminAudit,
		ipConfig:     deps.IPConfig,
		allowQuery:   deps.AllowQueryCredentials,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		now:          time.Now,
		storeTimeout: storeTimeout,
	}
}

// SetClock replaces the time source
func (s *CredentialService) SetClock(now func() time.Time) {
	s.now = now
}

// Authenticate resolves the caller of an API request. It returns false for
// every failure, including store errors.
func (s *CredentialService) Authenticate(ctx context.Context, r *http.Request) (*models.Identity, bool) {
	start := time.Now()
	defer s.metrics.ObserveAuthenticate(start)

	ctx, span := tracer.Start(ctx, "credential.authenticate")
	defer span.End()

	info := RequestInfo{
		IP:        pkghttp.ExtractClientIP(r, s.ipConfig),
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
		Method:    r.Method,
	}

	secret, source := ExtractCredential(r)
	if source == SourceQuery {
		s.logger.WarnContext(ctx, "api credential passed in query string is deprecated",
			slog.String("endpoint", info.Endpoint),
			slog.String("ip_address", info.IP),
		)
		if !s.allowQuery {
			secret = ""
		}
	}
	span.SetAttributes(attribute.String("credential.source", string(source)))

	identity, err := s.authenticate(ctx, secret, info)
	if err != nil {
		reason := models.ReasonFor(err)
		if errors.Is(err, models.ErrStoreUnavailable) {
			s.metrics.IncStoreError("credential")
			span.RecordError(err)
			span.SetStatus(codes.Error, "store unavailable")
			s.logger.ErrorContext(ctx, "credential store unavailable, rejecting request", slog.Any("error", err))
		}
		span.SetAttributes(attribute.String("reason", reason))
		s.metrics.IncCredentialAuth(reason)
		s.audit.LogCredentialAuth(ctx, secret, false, reason, info)
		return nil, false
	}

	span.SetAttributes(attribute.String("credential.id", identity.CredentialID))
	s.metrics.IncCredentialAuth("success")
	s.audit.LogCredentialAuth(ctx, secret, true, "", info)
	return identity, true
}

func (s *CredentialService) authenticate(ctx context.Context, secret string, info RequestInfo) (*models.Identity, error) {
	if !s.manager.ValidFormat(secret) {
		return nil, models.ErrMalformedCredential
	}

	cred, err := s.match(ctx, secret)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if !cred.IsActive {
		return nil, models.ErrUnknownCredential
	}
	if cred.IsExpired(now) {
		return nil, models.ErrExpiredCredential
	}
	if !cred.AllowsIP(info.IP) {
		return nil, models.ErrIPNotAllowlisted
	}

	allowed, err := s.limiter.CheckAndRecord(ctx, cred.ID, models.RequestMeta{
		Endpoint: info.Endpoint,
		Method:   info.Method,
		IP:       info.IP,
	})
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, models.ErrRateLimitExceeded
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.repo.RecordUsage(storeCtx, cred.ID, now); err != nil {
		return nil, storeError("record credential usage", err)
	}

	return &models.Identity{
		UserID:       cred.OwnerID,
		CredentialID: cred.ID,
		Name:         cred.Name,
		Permissions:  cred.Permissions,
	}, nil
}

// match finds the active credential whose hash verifies against secret.
// Hashes are salted so every active credential is tried in turn.
func (s *CredentialService) match(ctx context.Context, secret string) (*models.APICredential, error) {
	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	candidates, err := s.repo.ListActive(storeCtx)
	if err != nil {
		return nil, storeError("list active credentials", err)
	}

	for _, c := range candidates {
		if s.manager.Verify(c.SecretHash, secret) {
			return c, nil
		}
	}
	return nil, models.ErrUnknownCredential
}

// ExtractCredential returns the presented secret and where it came from.
// X-API-Key wins over a bearer token, which wins over the api_key query parameter.
func ExtractCredential(r *http.Request) (string, CredentialSource) {
	if v := strings.TrimSpace(r.Header.Get("X-API-Key")); v != "" {
		return v, SourceHeader
	}

	if authz := r.Header.Get("Authorization"); authz != "" {
		scheme, token, ok := strings.Cut(authz, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token, SourceBearer
			}
		}
	}

	if v := r.URL.Query().Get("api_key"); v != "" {
		return v, SourceQuery
	}

	return "", SourceNone
}

// HasPermission reports whether the identity holds the permission
func HasPermission(identity *models.Identity, permission string) bool {
	if identity == nil {
		return false
	}
	return models.HasPermission(identity.Permissions, permission)
}

// CreateCredentialInput describes a credential to issue
type CreateCredentialInput struct {
	OwnerID     string
	Name        string
	Permissions []string
	Env         string
	ExpiresAt   *time.Time
	IPAllowlist []string
	CreatedBy   string
}

// CreateCredential issues a new credential. The plaintext secret is only
// available in the returned value.
func (s *CredentialService) CreateCredential(ctx context.Context, input CreateCredentialInput) (*models.GeneratedCredential, error) {
	if strings.TrimSpace(input.OwnerID) == "" || strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("owner and name are required: %w", models.ErrBadRequest)
	}
	if err := models.ValidatePermissions(input.Permissions); err != nil {
		return nil, err
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return nil, fmt.Errorf("expiry must be in the future: %w", models.ErrBadRequest)
	}

	allowlist := make([]string, 0, len(input.IPAllowlist))
	for _, raw := range input.IPAllowlist {
		ip := net.ParseIP(strings.TrimSpace(raw))
		if ip == nil {
			return nil, fmt.Errorf("invalid allowlist ip %q: %w", raw, models.ErrBadRequest)
		}
		allowlist = append(allowlist, ip.String())
	}

	env := input.Env
	if env == "" {
		env = models.CredentialEnvLive
	}

	secret, hash, prefix, err := s.manager.Generate(env)
	if err != nil {
		return nil, err
	}

	cred := &models.APICredential{
		OwnerID:      input.OwnerID,
		SecretHash:   hash,
		SecretPrefix: prefix,
		Name:         input.Name,
		Permissions:  input.Permissions,
		CreatedAt:    s.now().UTC(),
		ExpiresAt:    input.ExpiresAt,
		IPAllowlist:  allowlist,
		IsActive:     true,
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.repo.Create(storeCtx, cred); err != nil {
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}

	s.adminAudit.LogAdminAction(ctx, "credential_created", input.CreatedBy, map[string]string{
		"credential_id": cred.ID,
		"prefix":        cred.SecretPrefix,
		"owner_id":      cred.OwnerID,
		"permissions":   strings.Join(cred.Permissions, ","),
	})

	return &models.GeneratedCredential{Secret: secret, Credential: cred}, nil
}

// RevokeCredential deactivates a credential. It is rejected on every later request.
func (s *CredentialService) RevokeCredential(ctx context.Context, id, revokedBy string) error {
	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.repo.Revoke(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		return storeError("revoke credential", err)
	}

	s.adminAudit.LogAdminAction(ctx, "credential_revoked", revokedBy, map[string]string{
		"credential_id": id,
	})
	return nil
}

// ListCredentials returns credentials without their hashes
func (s *CredentialService) ListCredentials(ctx context.Context, limit, offset int) ([]*models.APICredential, error) {
	limit, offset = clampPage(limit, offset)

	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	creds, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, storeError("list credentials", err)
	}
	return creds, nil
}

// GetCredential returns one credential by id
func (s *CredentialService) GetCredential(ctx context.Context, id string) (*models.APICredential, error) {
	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	cred, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, storeError("get credential", err)
	}
	return cred, nil
}
